package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CaptionFox/internal/pkg/env"
)

// Config holds the worker and sweeper settings
type Config struct {
	Workers       int
	StaleAfter    time.Duration
	SweepInterval time.Duration
	SweepBatch    int
}

// LoadConfig reads JOBQUEUE_* settings
func LoadConfig() Config {
	return Config{
		Workers:       env.GetEnvInt("JOBQUEUE_WORKERS", 5),
		StaleAfter:    env.GetEnvDuration("JOBQUEUE_STALE_AFTER", 30*time.Minute),
		SweepInterval: env.GetEnvDuration("JOBQUEUE_STALE_SWEEP_INTERVAL", 5*time.Minute),
		SweepBatch:    env.GetEnvInt("JOBQUEUE_STALE_BATCH", 100),
	}
}

// Manager runs the queue workers and the stale photo sweeper
type Manager struct {
	pipeline  *Pipeline
	cfg       Config
	sweepTick *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

func NewManager(pipeline *Pipeline, cfg Config) *Manager {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Minute
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 100
	}
	return &Manager{
		pipeline: pipeline,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.pipeline.Queue()
}

func (m *Manager) Pipeline() *Pipeline {
	return m.pipeline
}

// Start starts the job queue and the stale sweeper
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.pipeline.Queue().Start()

	m.sweepTick = time.NewTicker(m.cfg.SweepInterval)
	m.wg.Add(1)
	go m.staleWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the stale sweeper and then the queue
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")
	if m.sweepTick != nil {
		m.sweepTick.Stop()
	}
	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.pipeline.Queue().Stop()
	log.Info("[JobQueue Manager] Stopped successfully")
}

func (m *Manager) staleWorker() {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started stale sweeper (interval: %s, stale after: %s)", m.cfg.SweepInterval, m.cfg.StaleAfter)

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Stale sweeper stopping")
			return
		case <-m.sweepTick.C:
			if _, err := m.RequeueStale(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] Stale sweep error: %v", err)
			}
		}
	}
}

// RequeueStale runs one stale sweep with the configured thresholds (admin use).
func (m *Manager) RequeueStale(ctx context.Context) (int, error) {
	return m.pipeline.RequeueStale(ctx, m.cfg.StaleAfter, m.cfg.SweepBatch)
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
