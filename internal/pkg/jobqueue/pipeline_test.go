package jobqueue

import (
	"context"
	"image/color"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CaptionFox/app/models"
	"github.com/ManuelReschke/CaptionFox/app/repository"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/captioner"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/database"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/imageprocessor"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/storage"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usage"
)

// stubModel answers every call. With release set, calls block until it is
// closed and announce themselves on entered first.
type stubModel struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (m *stubModel) GenerateCaption(ctx context.Context, _ captioner.Request) (string, error) {
	m.calls.Add(1)
	if m.release != nil {
		m.entered <- struct{}{}
		select {
		case <-m.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "Form first, then load. #squat #legday #coaching", nil
}

type pipelineFixture struct {
	repos    *repository.Repositories
	store    storage.Store
	queue    *Queue
	clock    *testClock
	model    *stubModel
	pipeline *Pipeline
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	db, err := database.OpenTestDB()
	require.NoError(t, err)
	repos := repository.NewRepositories(db)

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	q, clock := newTestQueue(t)
	ledger := usage.NewLedger(repos.User, repos.Photo, repos.Caption, usage.PolicyMonthlyCounter).WithClock(clock.Now)
	model := &stubModel{}
	captions := captioner.NewService(model, ledger, repos, captioner.StoreImageSource{Store: store})

	p := NewPipeline(q, repos, store, captions)
	p.now = clock.Now
	return &pipelineFixture{repos: repos, store: store, queue: q, clock: clock, model: model, pipeline: p}
}

// createPhoto stores a JPEG for a pro user and returns its row. With
// withBlob false the row points at a key that was never written.
func (f *pipelineFixture) createPhoto(t *testing.T, withBlob bool) *models.Photo {
	t.Helper()
	user := &models.User{
		Email:              "pipeline@example.com",
		SubscriptionTier:   models.TierPro,
		SubscriptionStatus: models.TierStatusActive,
	}
	require.NoError(t, f.repos.User.Create(user))

	key := storage.PhotoKey(user.ID, "squat", ".jpg")
	if withBlob {
		src := filepath.Join(t.TempDir(), "squat.jpg")
		require.NoError(t, imaging.Save(imaging.New(1600, 1200, color.NRGBA{R: 180, G: 90, B: 40, A: 255}), src))
		_, err := storage.PutFile(context.Background(), f.store, key, src)
		require.NoError(t, err)
	}

	photo := &models.Photo{
		UserID:           user.ID,
		Title:            "Leg Day",
		OriginalFilename: "squat.jpg",
		ContentType:      "image/jpeg",
		StorageKey:       key,
	}
	require.NoError(t, f.repos.Photo.Create(photo))
	return photo
}

func TestPipeline_FullRun(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	photo := f.createPhoto(t, true)

	require.NoError(t, f.pipeline.EnqueueMetadata(ctx, photo))
	assert.Equal(t, imageprocessor.StageMetadataPending, imageprocessor.GetPhotoStage(photo.ID))

	// Metadata job, which enqueues the caption job.
	require.Equal(t, 2, drain(t, f.queue))

	stored, err := f.repos.Photo.GetByID(photo.ID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)
	assert.NotNil(t, stored.ProcessingStartedAt)
	width, ok := stored.Metadata.Int("width")
	require.True(t, ok)
	assert.Equal(t, 1600, width)
	assert.Equal(t, "landscape", stored.Metadata["orientation_type"])
	assert.False(t, stored.HasExtractionError())

	captions, err := f.repos.Caption.ListByPhotoID(photo.ID)
	require.NoError(t, err)
	assert.Len(t, captions, 3, "pro tier gets three styles")
	assert.Equal(t, int32(3), f.model.calls.Load())

	variants, err := f.repos.Variant.CountByPhotoID(photo.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(imageprocessor.SocialVariantSpecs)), variants)
	assert.Equal(t, imageprocessor.StageVariantsDone, imageprocessor.GetPhotoStage(photo.ID))
}

func TestPipeline_CaptionJobIsIdempotent(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	photo := f.createPhoto(t, true)

	require.NoError(t, f.pipeline.EnqueueCaptions(ctx, photo.ID, photo.UserID))
	require.NoError(t, f.pipeline.EnqueueCaptions(ctx, photo.ID, photo.UserID))
	require.Equal(t, 2, drain(t, f.queue))

	captions, err := f.repos.Caption.ListByPhotoID(photo.ID)
	require.NoError(t, err)
	assert.Len(t, captions, 3)
	assert.Equal(t, int32(3), f.model.calls.Load())
}

func TestPipeline_ConcurrentCaptionJobsCaptionOnce(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	photo := f.createPhoto(t, true)
	f.model.entered = make(chan struct{}, 3)
	f.model.release = make(chan struct{})

	payload := PhotoJobPayload{PhotoID: photo.ID, UserID: photo.UserID}.ToMap()
	first := &Job{ID: "first", Type: JobTypeCaptionGeneration, Payload: payload}
	second := &Job{ID: "second", Type: JobTypeCaptionGeneration, Payload: payload}

	done := make(chan error, 1)
	go func() { done <- f.pipeline.handleCaptions(ctx, first) }()
	select {
	case <-f.model.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first job never reached the model")
	}

	// The second job runs while the first is mid-batch.
	require.NoError(t, f.pipeline.handleCaptions(ctx, second))
	close(f.model.release)
	require.NoError(t, <-done)

	captions, err := f.repos.Caption.ListByPhotoID(photo.ID)
	require.NoError(t, err)
	assert.Len(t, captions, 3)
	assert.Equal(t, int32(3), f.model.calls.Load())

	owner, err := f.repos.User.GetByID(photo.UserID)
	require.NoError(t, err)
	assert.Equal(t, 3, owner.CurrentMonthCaptions, "usage is counted once per caption")

	// The lock is released, so a later job sees the processed photo.
	require.NoError(t, f.pipeline.handleCaptions(ctx, &Job{ID: "third", Type: JobTypeCaptionGeneration, Payload: payload}))
	assert.Equal(t, int32(3), f.model.calls.Load())
}

func TestPipeline_MetadataExhaustionStillCaptions(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	photo := f.createPhoto(t, false)

	require.NoError(t, f.pipeline.EnqueueMetadata(ctx, photo))

	for attempt := 1; attempt <= MetadataRetryPolicy.MaxAttempts; attempt++ {
		ran, err := f.queue.ProcessNext(ctx)
		require.NoError(t, err)
		require.True(t, ran, "attempt %d", attempt)
		f.clock.Advance(MetadataRetryPolicy.Delay(attempt))
		_, err = f.queue.PromoteDelayed(ctx)
		require.NoError(t, err)
	}

	stored, err := f.repos.Photo.GetByID(photo.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasExtractionError())
	attempted, ok := stored.Metadata.String(models.MetadataExtractionAttempted)
	require.True(t, ok)
	_, err = time.Parse(time.RFC3339, attempted)
	assert.NoError(t, err)

	// The caption stage was queued despite the failure.
	size, err := f.queue.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
	assert.Equal(t, imageprocessor.StageCaptionsPending, imageprocessor.GetPhotoStage(photo.ID))
}

func TestPipeline_MissingPhotoIsTerminal(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	job, err := f.queue.EnqueueJob(ctx, JobTypeCaptionGeneration, PhotoJobPayload{PhotoID: 404, UserID: 1}.ToMap())
	require.NoError(t, err)
	require.Equal(t, 1, drain(t, f.queue))

	stored, err := f.queue.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.True(t, strings.Contains(stored.ErrorMsg, captioner.ErrPhotoNotFound.Error()))

	delayed, err := f.queue.GetDelayedSize(ctx)
	require.NoError(t, err)
	assert.Zero(t, delayed)
}

func TestPipeline_RequeueStale(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	stale := f.createPhoto(t, true)
	require.NoError(t, f.repos.Photo.MarkProcessingStarted(stale.ID, f.clock.Now().Add(-time.Hour)))

	fresh := &models.Photo{UserID: stale.UserID, OriginalFilename: "fresh.jpg", ContentType: "image/jpeg", StorageKey: stale.StorageKey}
	require.NoError(t, f.repos.Photo.Create(fresh))
	require.NoError(t, f.repos.Photo.MarkProcessingStarted(fresh.ID, f.clock.Now().Add(-time.Minute)))

	queued, err := f.pipeline.RequeueStale(ctx, 30*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	// The restart pushes processing_started_at forward, so a second sweep finds nothing.
	queued, err = f.pipeline.RequeueStale(ctx, 30*time.Minute, 10)
	require.NoError(t, err)
	assert.Zero(t, queued)

	require.Equal(t, 1, drain(t, f.queue))
	stored, err := f.repos.Photo.GetByID(stale.ID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)
}
