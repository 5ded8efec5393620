package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CaptionFox/internal/pkg/cache"
)

const (
	// Redis key prefixes
	JobKeyPrefix     = "job:"
	JobQueueKey      = "job_queue"
	JobProcessingKey = "job_processing"
	JobDelayedKey    = "job_delayed"
	JobStatsKey      = "job_stats"

	// Job settings
	DefaultMaxRetries = 3
	JobTTL            = 24 * time.Hour // Jobs expire after 24 hours

	stuckMaxAge        = 10 * time.Minute
	stuckSweepInterval = time.Minute
	promoteInterval    = time.Second
)

// Stage is one registered job handler together with its retry policy.
type Stage struct {
	Type   JobType
	Policy RetryPolicy
	Handle func(ctx context.Context, job *Job) error
	// OnExhausted runs once when the job will not be attempted again.
	OnExhausted func(ctx context.Context, job *Job, err error)
}

// Queue manages background jobs using Redis
type Queue struct {
	client     *redis.Client
	workers    int
	workerPool chan struct{}
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool

	stagesMu sync.RWMutex
	stages   map[JobType]Stage
	now      func() time.Time
}

// NewQueue creates a job queue on client, or on the shared cache client when nil
func NewQueue(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = 3 // Default number of workers
	}
	if client == nil {
		client = cache.GetClient()
	}

	return &Queue{
		client:     client,
		workers:    workers,
		workerPool: make(chan struct{}, workers),
		stopCh:     make(chan struct{}),
		stages:     make(map[JobType]Stage),
		now:        time.Now,
	}
}

// Register adds or replaces the handler for stage.Type
func (q *Queue) Register(stage Stage) {
	q.stagesMu.Lock()
	defer q.stagesMu.Unlock()
	q.stages[stage.Type] = stage
}

func (q *Queue) stage(t JobType) (Stage, bool) {
	q.stagesMu.RLock()
	defer q.stagesMu.RUnlock()
	s, ok := q.stages[t]
	return s, ok
}

// Start starts the job queue workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.stopCh = make(chan struct{})
	q.running = true
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	// Initialize worker pool
	for i := 0; i < q.workers; i++ {
		q.workerPool <- struct{}{}
	}

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	q.wg.Add(2)
	go q.delayedPromoter(promoteInterval)
	go q.stuckSweeper(stuckMaxAge, stuckSweepInterval)
}

// Stop stops the job queue workers
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.wg.Wait()

	// Drain the pool so a restart starts from a clean slate
	for len(q.workerPool) > 0 {
		<-q.workerPool
	}
	log.Info("[JobQueue] All workers stopped")
}

// delayedPromoter moves retries whose backoff elapsed back onto the queue
func (q *Queue) delayedPromoter(interval time.Duration) {
	defer q.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			if _, err := q.PromoteDelayed(ctx); err != nil {
				log.Errorf("[JobQueue] Promoting delayed jobs failed: %v", err)
			}
		}
	}
}

// PromoteDelayed pushes every delayed job that is due. ZREM decides which
// promoter wins when several processes race for the same id.
func (q *Queue) PromoteDelayed(ctx context.Context) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, JobDelayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, id := range due {
		removed, err := q.client.ZRem(ctx, JobDelayedKey, id).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, JobQueueKey, id).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	if promoted > 0 {
		log.Debugf("[JobQueue] Promoted %d delayed jobs", promoted)
	}
	return promoted, nil
}

// stuckSweeper periodically requeues jobs stuck in processing, e.g. after a crash
func (q *Queue) stuckSweeper(maxAge time.Duration, interval time.Duration) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Stuck sweeper running (maxAge=%s, interval=%s)", maxAge, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			log.Info("[JobQueue] Stuck sweeper stopping")
			return
		case <-ticker.C:
			if _, err := q.RecoverStuck(ctx, maxAge); err != nil {
				log.Errorf("[JobQueue] Sweeper error: %v", err)
			}
		}
	}
}

// RecoverStuck moves jobs that have been processing for longer than maxAge
// back to the pending queue and returns how many were moved.
func (q *Queue) RecoverStuck(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	now := q.now()
	recovered := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Errorf("[JobQueue] Sweeper could not load job %s: %v", id, err)
			}
			_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
			continue
		}
		if job.Status != JobStatusProcessing {
			_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
			continue
		}
		started := job.UpdatedAt
		if job.ProcessedAt != nil && !job.ProcessedAt.IsZero() {
			started = *job.ProcessedAt
		} else if started.IsZero() {
			started = job.CreatedAt
		}
		if now.Sub(started) <= maxAge {
			continue
		}
		log.Warnf("[JobQueue] Recovering stuck job %s (type=%s), age=%s", job.ID, job.Type, now.Sub(started))
		job.Status = JobStatusPending
		job.ErrorMsg = "recovered by sweeper"
		job.UpdatedAt = now
		q.updateJob(ctx, job)
		_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
		if err := q.client.RPush(ctx, JobQueueKey, id).Err(); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

// worker processes jobs from the queue
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Worker %d started", id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-q.stopCh
		cancel()
	}()

	for {
		select {
		case <-q.stopCh:
			log.Infof("[JobQueue] Worker %d stopping", id)
			return
		case <-q.workerPool:
		}

		job, err := q.dequeueJob(ctx, time.Second)
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				log.Errorf("[JobQueue] Worker %d: Error dequeuing job: %v", id, err)
				time.Sleep(time.Second)
			}
			q.workerPool <- struct{}{}
			continue
		}

		log.Infof("[JobQueue] Worker %d processing job %s (Type: %s)", id, job.ID, job.Type)
		q.processJob(ctx, job)
		q.workerPool <- struct{}{}
	}
}

// EnqueueJob adds a new job to the queue
func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	maxRetries := DefaultMaxRetries
	if s, ok := q.stage(jobType); ok && s.Policy.MaxAttempts > 0 {
		maxRetries = s.Policy.MaxAttempts
	}

	now := q.now()
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		RetryCount: 0,
		MaxRetries: maxRetries,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Infof("[JobQueue] Enqueued job %s (Type: %s)", job.ID, job.Type)
	return job, nil
}

// dequeueJob moves the next job into the processing list. A zero block
// returns redis.Nil right away when the queue is empty.
func (q *Queue) dequeueJob(ctx context.Context, block time.Duration) (*Job, error) {
	var (
		jobID string
		err   error
	)
	if block > 0 {
		jobID, err = q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, block).Result()
	} else {
		jobID, err = q.client.RPopLPush(ctx, JobQueueKey, JobProcessingKey).Result()
	}
	if err != nil {
		return nil, err
	}

	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		q.client.LRem(ctx, JobProcessingKey, 1, jobID)
		return nil, fmt.Errorf("job data not found for ID %s: %w", jobID, err)
	}
	return job, nil
}

// ProcessNext runs the next pending job on the calling goroutine. It reports
// false when the queue was empty.
func (q *Queue) ProcessNext(ctx context.Context) (bool, error) {
	job, err := q.dequeueJob(ctx, 0)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	q.processJob(ctx, job)
	return true, nil
}

// processJob runs one attempt and applies the stage's retry policy
func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.updateJob(ctx, job)

	stage, ok := q.stage(job.Type)
	var err error
	if !ok {
		err = fmt.Errorf("unknown job type %s: %w", job.Type, ErrNonRetriable)
	} else {
		err = q.safeHandle(ctx, stage, job)
	}

	if err == nil {
		log.Infof("[JobQueue] Job %s completed successfully", job.ID)
		job.MarkAsCompleted()
		q.updateJobStats(ctx, JobStatusCompleted, 1)
		q.removeFromProcessing(ctx, job.ID)
		q.removeCompletedJob(ctx, job.ID)
		return
	}

	if ctx.Err() != nil {
		q.requeueInterrupted(context.WithoutCancel(ctx), job, err)
		return
	}

	log.Errorf("[JobQueue] Job %s failed: %v", job.ID, err)
	job.MarkAsFailed(err.Error())

	if ok && stage.Policy.ShouldRetry(job.RetryCount, err) {
		delay := stage.Policy.Delay(job.RetryCount)
		log.Infof("[JobQueue] Retrying job %s in %s (Attempt %d/%d)", job.ID, delay, job.RetryCount+1, stage.Policy.MaxAttempts)
		job.MarkAsRetrying()
		q.updateJob(ctx, job)
		q.removeFromProcessing(ctx, job.ID)
		q.scheduleRetry(ctx, job.ID, delay)
		return
	}

	log.Errorf("[JobQueue] Job %s permanently failed after %d attempts", job.ID, job.RetryCount)
	q.updateJob(ctx, job)
	q.updateJobStats(ctx, JobStatusFailed, 1)
	q.removeFromProcessing(ctx, job.ID)
	if ok && stage.OnExhausted != nil {
		stage.OnExhausted(ctx, job, err)
	}
}

// requeueInterrupted puts a job cut short by Stop back at the head of the
// queue. The attempt does not count against the retry budget.
func (q *Queue) requeueInterrupted(ctx context.Context, job *Job, cause error) {
	log.Warnf("[JobQueue] Job %s interrupted, returning it to the queue: %v", job.ID, cause)
	job.Status = JobStatusPending
	job.ErrorMsg = "interrupted by shutdown"
	job.UpdatedAt = q.now()
	q.updateJob(ctx, job)
	q.removeFromProcessing(ctx, job.ID)
	if err := q.client.RPush(ctx, JobQueueKey, job.ID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to requeue interrupted job %s: %v", job.ID, err)
	}
}

func (q *Queue) safeHandle(ctx context.Context, stage Stage, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return stage.Handle(ctx, job)
}

func (q *Queue) scheduleRetry(ctx context.Context, jobID string, delay time.Duration) {
	readyAt := q.now().Add(delay).UnixMilli()
	pipe := q.client.TxPipeline()
	pipe.ZAdd(ctx, JobDelayedKey, redis.Z{Score: float64(readyAt), Member: jobID})
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusRetrying), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Errorf("[JobQueue] Failed to schedule retry for job %s: %v", jobID, err)
	}
}

// updateJob updates job data in Redis
func (q *Queue) updateJob(ctx context.Context, job *Job) {
	jobData, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}

	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job %s: %v", job.ID, err)
	}
}

// removeFromProcessing removes a job from the processing queue
func (q *Queue) removeFromProcessing(ctx context.Context, jobID string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove job %s from processing queue: %v", jobID, err)
	}
}

// removeCompletedJob completely removes a completed job from Redis
func (q *Queue) removeCompletedJob(ctx context.Context, jobID string) {
	if err := q.client.Del(ctx, JobKeyPrefix+jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove completed job %s from Redis: %v", jobID, err)
	}
}

// updateJobStats updates job statistics
func (q *Queue) updateJobStats(ctx context.Context, status JobStatus, delta int64) {
	if err := q.client.HIncrBy(ctx, JobStatsKey, string(status), delta).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job stats: %v", err)
	}
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	jobData, err := q.client.Get(ctx, JobKeyPrefix+jobID).Result()
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// GetJobStats returns statistics about job statuses
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	stats, err := q.client.HGetAll(ctx, JobStatsKey).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[JobStatus]int64)
	for status, count := range stats {
		if n, err := strconv.ParseInt(count, 10, 64); err == nil {
			result[JobStatus(status)] = n
		}
	}
	return result, nil
}

// GetQueueSize returns the number of pending jobs
func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobQueueKey).Result()
}

// GetProcessingSize returns the number of jobs being processed
func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobProcessingKey).Result()
}

// GetDelayedSize returns the number of jobs waiting for their retry
func (q *Queue) GetDelayedSize(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, JobDelayedKey).Result()
}
