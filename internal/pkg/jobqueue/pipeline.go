package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CaptionFox/app/models"
	"github.com/ManuelReschke/CaptionFox/app/repository"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/captioner"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/imageprocessor"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/storage"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usercontext"
)

// captionLockTTL bounds how long a crashed worker can block a photo. A run
// outliving it is still kept to one caption per style by the captions table.
const captionLockTTL = 5 * time.Minute

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func captionLockKey(photoID uint) string {
	return fmt.Sprintf("photo:captioning:%d", photoID)
}

// Pipeline wires the metadata and caption stages onto a Queue.
type Pipeline struct {
	queue    *Queue
	repos    *repository.Repositories
	store    storage.Store
	images   captioner.ImageSource
	captions *captioner.Service
	now      func() time.Time
}

func NewPipeline(queue *Queue, repos *repository.Repositories, store storage.Store, captions *captioner.Service) *Pipeline {
	p := &Pipeline{
		queue:    queue,
		repos:    repos,
		store:    store,
		images:   captioner.StoreImageSource{Store: store},
		captions: captions,
		now:      time.Now,
	}
	queue.Register(Stage{
		Type:        JobTypeMetadataExtraction,
		Policy:      MetadataRetryPolicy,
		Handle:      p.handleMetadata,
		OnExhausted: p.metadataExhausted,
	})
	queue.Register(Stage{
		Type:        JobTypeCaptionGeneration,
		Policy:      CaptionRetryPolicy,
		Handle:      p.handleCaptions,
		OnExhausted: p.captionsExhausted,
	})
	return p
}

func (p *Pipeline) Queue() *Queue {
	return p.queue
}

// EnqueueMetadata starts the pipeline for a freshly stored photo.
func (p *Pipeline) EnqueueMetadata(ctx context.Context, photo *models.Photo) error {
	if photo == nil || photo.ID == 0 {
		return fmt.Errorf("cannot enqueue invalid photo")
	}
	if err := p.repos.Photo.MarkProcessingStarted(photo.ID, p.now()); err != nil {
		return fmt.Errorf("mark photo %d started: %w", photo.ID, err)
	}
	setStage(photo.ID, imageprocessor.StageMetadataPending)

	payload := PhotoJobPayload{PhotoID: photo.ID, UserID: photo.UserID}
	job, err := p.queue.EnqueueJob(ctx, JobTypeMetadataExtraction, payload.ToMap())
	if err != nil {
		return fmt.Errorf("enqueue metadata for photo %d: %w", photo.ID, err)
	}
	log.Infof("[Pipeline] Enqueued metadata job %s for photo %d", job.ID, photo.ID)
	return nil
}

// EnqueueCaptions schedules caption generation for a photo.
func (p *Pipeline) EnqueueCaptions(ctx context.Context, photoID, userID uint) error {
	setStage(photoID, imageprocessor.StageCaptionsPending)
	payload := PhotoJobPayload{PhotoID: photoID, UserID: userID}
	if _, err := p.queue.EnqueueJob(ctx, JobTypeCaptionGeneration, payload.ToMap()); err != nil {
		return fmt.Errorf("enqueue captions for photo %d: %w", photoID, err)
	}
	return nil
}

func setStage(photoID uint, stage imageprocessor.Stage) {
	if err := imageprocessor.SetPhotoStage(photoID, stage); err != nil {
		log.Warnf("[Pipeline] Failed to set stage %s for photo %d: %v", stage, photoID, err)
	}
}

func (p *Pipeline) loadPhoto(job *Job) (*models.Photo, error) {
	payload, err := PhotoJobPayloadFromMap(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("parse payload of job %s: %w: %w", job.ID, ErrNonRetriable, err)
	}
	photo, err := p.repos.Photo.GetByID(payload.PhotoID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("photo %d: %w", payload.PhotoID, captioner.ErrPhotoNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load photo %d: %w", payload.PhotoID, err)
	}
	return photo, nil
}

func (p *Pipeline) handleMetadata(ctx context.Context, job *Job) error {
	photo, err := p.loadPhoto(job)
	if errors.Is(err, captioner.ErrPhotoNotFound) {
		return fmt.Errorf("%w: %w", ErrNonRetriable, err)
	}
	if err != nil {
		return err
	}

	src, err := p.images.Fetch(ctx, photo)
	if err != nil {
		return err
	}
	defer src.Release()

	inspection, err := imageprocessor.Inspect(src.Path, photo.OriginalFilename)
	if err != nil {
		return err
	}
	defer inspection.Release()

	if err := p.repos.Photo.MergeMetadata(photo.ID, inspection.Metadata); err != nil {
		return fmt.Errorf("store metadata for photo %d: %w", photo.ID, err)
	}

	if inspection.Metadata.Has(models.MetadataExtractionError) {
		log.Warnf("[Pipeline] Metadata for photo %d is partial: %v", photo.ID, inspection.Metadata[models.MetadataExtractionError])
		setStage(photo.ID, imageprocessor.StageMetadataFailed)
	} else {
		setStage(photo.ID, imageprocessor.StageMetadataExtracted)
	}
	return p.EnqueueCaptions(ctx, photo.ID, photo.UserID)
}

// metadataExhausted records the failure and still lets captions run.
func (p *Pipeline) metadataExhausted(ctx context.Context, job *Job, cause error) {
	payload, err := PhotoJobPayloadFromMap(job.Payload)
	if err != nil || errors.Is(cause, captioner.ErrPhotoNotFound) {
		log.Errorf("[Pipeline] Dropping metadata job %s: %v", job.ID, cause)
		return
	}

	failure := models.Metadata{
		models.MetadataExtractionError:     cause.Error(),
		models.MetadataExtractionAttempted: p.now().UTC().Format(time.RFC3339),
	}
	if err := p.repos.Photo.MergeMetadata(payload.PhotoID, failure); err != nil {
		log.Errorf("[Pipeline] Failed to record metadata failure for photo %d: %v", payload.PhotoID, err)
	}
	setStage(payload.PhotoID, imageprocessor.StageMetadataFailed)

	if err := p.EnqueueCaptions(ctx, payload.PhotoID, payload.UserID); err != nil {
		log.Errorf("[Pipeline] %v", err)
	}
}

// claimCaptions takes the per-photo caption lock. It reports false while
// another job holds it.
func (p *Pipeline) claimCaptions(ctx context.Context, photoID uint) (func(), bool, error) {
	key := captionLockKey(photoID)
	token := uuid.NewString()
	ok, err := p.queue.client.SetNX(ctx, key, token, captionLockTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("claim captions for photo %d: %w", photoID, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		if err := releaseLockScript.Run(context.WithoutCancel(ctx), p.queue.client, []string{key}, token).Err(); err != nil {
			log.Warnf("[Pipeline] Failed to release caption lock for photo %d: %v", photoID, err)
		}
	}
	return release, true, nil
}

func (p *Pipeline) handleCaptions(ctx context.Context, job *Job) error {
	payload, err := PhotoJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("parse payload of job %s: %w: %w", job.ID, ErrNonRetriable, err)
	}
	release, ok, err := p.claimCaptions(ctx, payload.PhotoID)
	if err != nil {
		return err
	}
	if !ok {
		log.Infof("[Pipeline] Photo %d is already being captioned, dropping job %s", payload.PhotoID, job.ID)
		return nil
	}
	defer release()

	// Loaded after the claim so a finished run is seen as processed.
	photo, err := p.loadPhoto(job)
	if err != nil {
		return err
	}

	uc, err := p.userContext(photo.UserID)
	if err != nil {
		return err
	}

	res, err := p.captions.GenerateCaptions(ctx, uc, photo)
	if err != nil {
		return err
	}
	if !res.AlreadyProcessed {
		log.Infof("[Pipeline] Photo %d: %d captions, %d failed, %d skipped (quota exhausted: %t)",
			photo.ID, len(res.Captions), len(res.Failed), len(res.Skipped), res.QuotaExhausted)
	}
	setStage(photo.ID, imageprocessor.StageProcessed)

	p.generateVariants(ctx, photo)
	return nil
}

func (p *Pipeline) captionsExhausted(_ context.Context, job *Job, cause error) {
	payload, _ := PhotoJobPayloadFromMap(job.Payload)
	if payload == nil {
		payload = &PhotoJobPayload{}
	}
	log.Errorf("[Pipeline] Caption generation for photo %d gave up after %d attempts: %v", payload.PhotoID, job.RetryCount, cause)
}

// userContext resolves the tier the way a request for the photo's owner would.
func (p *Pipeline) userContext(userID uint) (usercontext.UserContext, error) {
	user, err := p.repos.User.GetByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return usercontext.UserContext{}, fmt.Errorf("user %d: %w", userID, captioner.ErrPhotoNotFound)
	}
	if err != nil {
		return usercontext.UserContext{}, fmt.Errorf("load user %d: %w", userID, err)
	}
	now := p.now()
	sub, err := p.repos.Subscription.GetActiveForUser(userID, now)
	if err != nil {
		return usercontext.UserContext{}, fmt.Errorf("load subscription for user %d: %w", userID, err)
	}
	return usercontext.UserContext{
		UserID:     user.ID,
		Email:      user.Email,
		IsLoggedIn: true,
		Tier:       entitlements.ResolveTier(user, sub, now),
	}, nil
}

// generateVariants never fails the caption job.
func (p *Pipeline) generateVariants(ctx context.Context, photo *models.Photo) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Pipeline] Variant generation for photo %d panicked: %v", photo.ID, r)
			setStage(photo.ID, imageprocessor.StageVariantsFailed)
		}
	}()

	setStage(photo.ID, imageprocessor.StageVariantsPending)
	if err := p.renderVariants(ctx, photo); err != nil {
		log.Errorf("[Pipeline] Variant generation for photo %d failed: %v", photo.ID, err)
		setStage(photo.ID, imageprocessor.StageVariantsFailed)
		return
	}
	setStage(photo.ID, imageprocessor.StageVariantsDone)
}

func (p *Pipeline) renderVariants(ctx context.Context, photo *models.Photo) error {
	src, err := p.images.Fetch(ctx, photo)
	if err != nil {
		return err
	}
	defer src.Release()

	format, err := imageprocessor.DetectFormat(photo.OriginalFilename, src.Path)
	if err != nil {
		return err
	}
	normalized, err := imageprocessor.Normalize(src.Path, format)
	if err != nil {
		return err
	}
	defer normalized.Release()
	if normalized.Owned() {
		format = imageprocessor.FormatJPEG
	}

	_, err = imageprocessor.GenerateSocialVariants(ctx, photo, normalized.Path, format, p.store, p.repos.Variant)
	return err
}

// RequeueStale re-enqueues captions for photos whose processing started
// before staleAfter ago and never finished. It returns how many were queued.
func (p *Pipeline) RequeueStale(ctx context.Context, staleAfter time.Duration, limit int) (int, error) {
	now := p.now()
	photos, err := p.repos.Photo.FindStale(now.Add(-staleAfter), limit)
	if err != nil {
		return 0, fmt.Errorf("find stale photos: %w", err)
	}

	queued := 0
	for _, photo := range photos {
		if !photo.IsStale(now, staleAfter) {
			continue
		}
		if err := p.repos.Photo.MarkProcessingStarted(photo.ID, now); err != nil {
			log.Errorf("[Pipeline] Failed to restart photo %d: %v", photo.ID, err)
			continue
		}
		if err := p.EnqueueCaptions(ctx, photo.ID, photo.UserID); err != nil {
			log.Errorf("[Pipeline] %v", err)
			continue
		}
		queued++
	}
	if queued > 0 {
		log.Infof("[Pipeline] Re-queued %d stale photos", queued)
	}
	return queued, nil
}
