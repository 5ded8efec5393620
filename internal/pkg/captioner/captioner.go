package captioner

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CaptionFox/app/models"
	"github.com/ManuelReschke/CaptionFox/app/repository"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/imageprocessor"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/storage"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usage"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usercontext"
)

// ErrPhotoNotFound means the photo row is gone; retrying cannot help.
var ErrPhotoNotFound = errors.New("photo not found")

const DefaultCallTimeout = 60 * time.Second

// ImageSource materialises a photo's stored blob as a local file.
type ImageSource interface {
	Fetch(ctx context.Context, photo *models.Photo) (*imageprocessor.ScopedFile, error)
}

// StoreImageSource downloads blobs from a storage.Store into temp files.
type StoreImageSource struct {
	Store storage.Store
}

func (s StoreImageSource) Fetch(ctx context.Context, photo *models.Photo) (*imageprocessor.ScopedFile, error) {
	tmp, err := imageprocessor.NewTempFile("photo-*" + filepath.Ext(photo.OriginalFilename))
	if err != nil {
		return nil, err
	}
	if err := storage.Download(ctx, s.Store, photo.StorageKey, tmp.Path); err != nil {
		tmp.Release()
		return nil, fmt.Errorf("fetch photo %d: %w", photo.ID, err)
	}
	return tmp, nil
}

// Result summarises one GenerateCaptions run.
type Result struct {
	Styles           []models.CaptionStyle
	Captions         []models.Caption
	Failed           []models.CaptionStyle
	Skipped          []models.CaptionStyle
	QuotaExhausted   bool
	AlreadyProcessed bool
}

// Service generates one caption per tier style for a photo.
type Service struct {
	model       VisionModel
	ledger      *usage.Ledger
	repos       *repository.Repositories
	captions    repository.CaptionRepository
	photos      repository.PhotoRepository
	users       repository.UserRepository
	images      ImageSource
	callTimeout time.Duration
}

func NewService(model VisionModel, ledger *usage.Ledger, repos *repository.Repositories, images ImageSource) *Service {
	return &Service{
		model:       model,
		ledger:      ledger,
		repos:       repos,
		captions:    repos.Caption,
		photos:      repos.Photo,
		users:       repos.User,
		images:      images,
		callTimeout: DefaultCallTimeout,
	}
}

// WithCallTimeout bounds every model call.
func (s *Service) WithCallTimeout(d time.Duration) *Service {
	if d > 0 {
		s.callTimeout = d
	}
	return s
}

// GenerateCaptions runs the per-style fan-out for photo under uc's tier.
// Already processed photos are left alone, and styles captioned by an earlier
// interrupted run are not generated again. When the caption quota is used up
// before any call, the photo is marked processed so pollers stop. If ctx is
// cancelled mid-batch the photo stays unprocessed and ctx's error is returned.
func (s *Service) GenerateCaptions(ctx context.Context, uc usercontext.UserContext, photo *models.Photo) (Result, error) {
	var res Result
	if photo == nil {
		return res, ErrPhotoNotFound
	}
	if photo.Processed {
		res.AlreadyProcessed = true
		return res, nil
	}

	res.Styles = entitlements.CaptionStyles(uc.Tier)
	pending, err := s.pendingStyles(photo.ID, res.Styles, &res)
	if err != nil {
		return res, err
	}
	if len(pending) == 0 {
		return res, s.markProcessed(photo)
	}

	ok, err := s.ledger.CanGenerateCaption(uc)
	if err != nil {
		return res, err
	}
	if !ok {
		log.Infof("[Captioner] Caption quota exhausted for user %d, skipping photo %d", uc.UserID, photo.ID)
		res.QuotaExhausted = true
		return res, s.markProcessed(photo)
	}

	user, err := s.users.GetByID(photo.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return res, fmt.Errorf("owner of photo %d: %w", photo.ID, ErrPhotoNotFound)
	}
	if err != nil {
		return res, fmt.Errorf("load owner of photo %d: %w", photo.ID, err)
	}

	imageURL, err := s.imageURL(ctx, photo)
	if err != nil {
		return res, err
	}
	metadataContext := imageprocessor.GenerateContext(photo.Metadata)

	start := time.Now()
	log.Infof("[Captioner] Generating %d captions for photo %d", len(pending), photo.ID)

	var (
		mu   sync.Mutex
		stop atomic.Bool
	)
	g := new(errgroup.Group)
	g.SetLimit(len(pending))

	for _, style := range pending {
		g.Go(func() error {
			if err := ctx.Err(); err != nil || stop.Load() {
				mu.Lock()
				res.Skipped = append(res.Skipped, style)
				mu.Unlock()
				return err
			}

			text, err := s.callModel(ctx, Request{
				Prompt:   BuildPrompt(style, user, metadataContext, photo),
				ImageURL: imageURL,
			})

			mu.Lock()
			defer mu.Unlock()
			if ctxErr := ctx.Err(); ctxErr != nil {
				res.Skipped = append(res.Skipped, style)
				return ctxErr
			}
			if err != nil || text == "" {
				log.Errorf("[Captioner] %s caption for photo %d failed: %v", style, photo.ID, err)
				res.Failed = append(res.Failed, style)
				return nil
			}
			if stop.Load() {
				res.Skipped = append(res.Skipped, style)
				return nil
			}
			caption, err := s.persist(uc, photo.ID, style, text)
			if err != nil {
				log.Errorf("[Captioner] Storing %s caption for photo %d failed: %v", style, photo.ID, err)
				res.Failed = append(res.Failed, style)
				return nil
			}
			if caption == nil {
				stop.Store(true)
				res.QuotaExhausted = true
				res.Skipped = append(res.Skipped, style)
				return nil
			}
			res.Captions = append(res.Captions, *caption)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warnf("[Captioner] Photo %d interrupted with %d/%d captions stored: %v", photo.ID, len(res.Captions), len(res.Styles), err)
		return res, fmt.Errorf("generate captions for photo %d: %w", photo.ID, err)
	}

	if err := s.markProcessed(photo); err != nil {
		return res, err
	}

	log.Infof("[Captioner] Completed photo %d in %s (%d/%d successful)",
		photo.ID, time.Since(start).Round(10*time.Millisecond), len(res.Captions), len(res.Styles))
	return res, nil
}

// pendingStyles returns the styles without a stored caption and adds the
// stored ones to res.Captions.
func (s *Service) pendingStyles(photoID uint, styles []models.CaptionStyle, res *Result) ([]models.CaptionStyle, error) {
	existing, err := s.captions.ListByPhotoID(photoID)
	if err != nil {
		return nil, fmt.Errorf("list captions of photo %d: %w", photoID, err)
	}
	stored := make(map[models.CaptionStyle]models.Caption, len(existing))
	for _, c := range existing {
		stored[c.Style] = c
	}
	pending := make([]models.CaptionStyle, 0, len(styles))
	for _, style := range styles {
		if c, ok := stored[style]; ok {
			res.Captions = append(res.Captions, c)
			continue
		}
		pending = append(pending, style)
	}
	return pending, nil
}

func (s *Service) markProcessed(photo *models.Photo) error {
	if _, err := s.photos.MarkProcessed(photo.ID); err != nil {
		return fmt.Errorf("mark photo %d processed: %w", photo.ID, err)
	}
	photo.Processed = true
	return nil
}

// persist re-checks the quota, stores the caption and counts it in one
// transaction. It returns nil when the quota ran out. Callers hold the batch
// mutex.
func (s *Service) persist(uc usercontext.UserContext, photoID uint, style models.CaptionStyle, text string) (*models.Caption, error) {
	var caption *models.Caption
	err := s.repos.Transaction(func(tx *repository.Repositories) error {
		ledger := s.ledger.WithRepositories(tx)
		ok, err := ledger.CanGenerateCaption(uc)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		row := &models.Caption{
			PhotoID:     photoID,
			Content:     text,
			Style:       style,
			GeneratedAt: ledger.Now(),
		}
		if err := tx.Caption.Create(row); err != nil {
			return err
		}
		if err := ledger.IncrementCaptionUsage(uc); err != nil {
			return fmt.Errorf("count caption usage: %w", err)
		}
		caption = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return caption, nil
}

func (s *Service) callModel(ctx context.Context, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.model.GenerateCaption(callCtx, req)
}

// imageURL builds the data URL of the AI-optimized rendition once per photo.
func (s *Service) imageURL(ctx context.Context, photo *models.Photo) (string, error) {
	src, err := s.images.Fetch(ctx, photo)
	if err != nil {
		return "", err
	}
	defer src.Release()

	format, err := imageprocessor.DetectFormat(photo.OriginalFilename, src.Path)
	if err != nil {
		return "", err
	}
	normalized, err := imageprocessor.Normalize(src.Path, format)
	if err != nil {
		return "", err
	}
	defer normalized.Release()

	decodeFormat := format
	if normalized.Owned() {
		decodeFormat = imageprocessor.FormatJPEG
	}
	optimized, info, err := imageprocessor.CreateAIOptimized(normalized.Path, decodeFormat)
	if err != nil {
		return "", err
	}
	defer optimized.Release()

	data, err := os.ReadFile(optimized.Path)
	if err != nil {
		return "", fmt.Errorf("read optimized image: %w", err)
	}
	log.Debugf("[Captioner] AI image for photo %d: %dx%d, %d bytes", photo.ID, info.Width, info.Height, info.ByteSize)
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}
