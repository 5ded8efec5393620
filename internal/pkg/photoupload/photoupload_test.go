package photoupload

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"io/fs"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CaptionFox/app/models"
	"github.com/ManuelReschke/CaptionFox/app/repository"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/database"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/storage"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/upload"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usage"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usercontext"
)

type recordingEnqueuer struct {
	mu     sync.Mutex
	photos []uint
	err    error
}

func (r *recordingEnqueuer) EnqueueMetadata(_ context.Context, photo *models.Photo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.photos = append(r.photos, photo.ID)
	return r.err
}

type fixture struct {
	repos    *repository.Repositories
	store    storage.Store
	enqueuer *recordingEnqueuer
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenTestDB()
	require.NoError(t, err)
	repos := repository.NewRepositories(db)

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ledger := usage.NewLedger(repos.User, repos.Photo, repos.Caption, usage.PolicyMonthlyCounter)
	monitor := usage.NewMonitor(ledger, repos.User, nil)
	enq := &recordingEnqueuer{}
	return &fixture{
		repos:    repos,
		store:    store,
		enqueuer: enq,
		svc:      NewService(repos, store, monitor, enq),
	}
}

func (f *fixture) createUser(t *testing.T, tier entitlements.AccessTier) usercontext.UserContext {
	t.Helper()
	user := &models.User{
		Email:               "coach@example.com",
		SubscriptionTier:    models.TierStarter,
		SubscriptionStatus:  models.TierStatusTrial,
		MonthlyPhotoLimit:   models.DefaultMonthlyPhotoLimit,
		MonthlyCaptionLimit: models.DefaultMonthlyCaptionLimit,
	}
	if tier.IsProLevel() {
		user.SubscriptionTier = string(tier)
		user.SubscriptionStatus = models.TierStatusActive
	}
	require.NoError(t, f.repos.User.Create(user))
	return usercontext.UserContext{UserID: user.ID, Email: user.Email, IsLoggedIn: true, Tier: tier}
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		img.Set(x, x%48, color.RGBA{R: 180, G: 40, B: 40, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func TestCreate_LegDayRoundTrip(t *testing.T) {
	f := newFixture(t)
	uc := f.createUser(t, entitlements.TierPro)
	data := jpegBytes(t)

	res, err := f.svc.Create(context.Background(), uc, Input{
		Filename: "leg-day.jpg",
		Title:    "Leg Day",
		Size:     int64(len(data)),
		Body:     bytes.NewReader(data),
	})
	require.NoError(t, err)
	require.False(t, res.Refused())
	require.NotNil(t, res.Photo)

	stored, err := f.repos.Photo.GetByID(res.Photo.ID)
	require.NoError(t, err)
	assert.Equal(t, "Leg Day", stored.Title)
	assert.Equal(t, "leg-day.jpg", stored.OriginalFilename)
	assert.Equal(t, "image/jpeg", stored.ContentType)
	assert.Equal(t, int64(len(data)), stored.ByteSize)
	assert.False(t, stored.Processed)
	assert.NotNil(t, stored.ProcessingStartedAt)

	rc, err := f.store.Open(context.Background(), stored.StorageKey)
	require.NoError(t, err)
	blob, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, data, blob)

	user, err := f.repos.User.GetByID(uc.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, user.CurrentMonthPhotos)
	assert.Equal(t, 1, user.DailyPhotosUploaded)

	assert.Equal(t, []uint{stored.ID}, f.enqueuer.photos)
}

func TestCreate_RejectsUnsupportedContent(t *testing.T) {
	f := newFixture(t)
	uc := f.createUser(t, entitlements.TierPro)
	body := []byte("<html><body>not a photo</body></html>")

	_, err := f.svc.Create(context.Background(), uc, Input{Filename: "legs.jpg", Size: int64(len(body)), Body: bytes.NewReader(body)})
	assert.ErrorIs(t, err, upload.ErrUnsupportedType)

	count, err := f.repos.Photo.CountByUserID(uc.UserID)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, f.enqueuer.photos)
}

func TestCreate_RejectsOversizedUpload(t *testing.T) {
	f := newFixture(t)
	uc := f.createUser(t, entitlements.TierPro)

	_, err := f.svc.Create(context.Background(), uc, Input{Filename: "legs.jpg", Size: upload.MaxFileSize + 1, Body: bytes.NewReader(jpegBytes(t))})
	assert.ErrorIs(t, err, upload.ErrTooLarge)
}

func TestCreate_QuotaRefusalIsADecision(t *testing.T) {
	f := newFixture(t)
	uc := f.createUser(t, entitlements.TierStarter)
	data := jpegBytes(t)

	for i := 0; i < models.DefaultMonthlyPhotoLimit; i++ {
		res, err := f.svc.Create(context.Background(), uc, Input{Filename: "legs.jpg", Size: int64(len(data)), Body: bytes.NewReader(data)})
		require.NoError(t, err)
		require.False(t, res.Refused(), "upload %d", i+1)
	}

	res, err := f.svc.Create(context.Background(), uc, Input{Filename: "legs.jpg", Size: int64(len(data)), Body: bytes.NewReader(data)})
	require.NoError(t, err)
	assert.True(t, res.Refused())
	assert.Equal(t, usage.ReasonUpgradeRequired, res.Decision.Reason)
	assert.Len(t, f.enqueuer.photos, models.DefaultMonthlyPhotoLimit)
}

func TestCreate_ConcurrentUploadsStopAtLifetimeLimit(t *testing.T) {
	db, err := database.OpenTestDB()
	require.NoError(t, err)
	repos := repository.NewRepositories(db)
	root := t.TempDir()
	store, err := storage.NewLocalStore(root)
	require.NoError(t, err)
	ledger := usage.NewLedger(repos.User, repos.Photo, repos.Caption, usage.PolicyLifetimeTotal)
	enq := &recordingEnqueuer{}
	svc := NewService(repos, store, usage.NewMonitor(ledger, repos.User, nil), enq)

	f := &fixture{repos: repos}
	uc := f.createUser(t, entitlements.TierStarter)
	data := jpegBytes(t)

	const uploads = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		refused  int
	)
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Create(context.Background(), uc, Input{Filename: "legs.jpg", Size: int64(len(data)), Body: bytes.NewReader(data)})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Refused() {
				refused++
			} else {
				accepted++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, entitlements.StarterLifetimePhotoLimit, accepted)
	assert.Equal(t, uploads-entitlements.StarterLifetimePhotoLimit, refused)

	count, err := repos.Photo.CountByUserID(uc.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(entitlements.StarterLifetimePhotoLimit), count)

	blobs := 0
	require.NoError(t, filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			blobs++
		}
		return err
	}))
	assert.Equal(t, entitlements.StarterLifetimePhotoLimit, blobs, "refused uploads leave no blob behind")
}

func TestCreate_EnqueueFailureKeepsPhoto(t *testing.T) {
	f := newFixture(t)
	f.enqueuer.err = errors.New("redis down")
	uc := f.createUser(t, entitlements.TierPro)
	data := jpegBytes(t)

	res, err := f.svc.Create(context.Background(), uc, Input{Filename: "legs.jpg", Size: int64(len(data)), Body: bytes.NewReader(data)})
	require.NoError(t, err)
	require.NotNil(t, res.Photo)

	stored, err := f.repos.Photo.GetByID(res.Photo.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.ProcessingStartedAt, "stale sweeper needs a start time")
}
