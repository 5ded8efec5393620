// Package photoupload is the synchronous half of the photo pipeline: it
// validates an upload, gates it on quota, stores the blob and hands the new
// photo to the job queue.
package photoupload

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/CaptionFox/app/models"
	"github.com/ManuelReschke/CaptionFox/app/repository"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/storage"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/upload"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usage"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usercontext"
)

// Enqueuer starts background processing for a stored photo.
type Enqueuer interface {
	EnqueueMetadata(ctx context.Context, photo *models.Photo) error
}

// Input is one uploaded file plus its form fields.
type Input struct {
	Filename    string
	Title       string
	Description string
	Size        int64
	Body        io.Reader
}

// Result carries the created photo, or the quota decision that refused it.
type Result struct {
	Photo    *models.Photo
	Decision usage.Decision
	// Warning is the usage banner to show after a successful upload.
	Warning string
}

// Refused reports whether the quota gate turned the upload away.
func (r *Result) Refused() bool {
	return r.Photo == nil && !r.Decision.Allowed
}

type Service struct {
	repos    *repository.Repositories
	store    storage.Store
	monitor  *usage.Monitor
	pipeline Enqueuer
	now      func() time.Time
}

func NewService(repos *repository.Repositories, store storage.Store, monitor *usage.Monitor, pipeline Enqueuer) *Service {
	return &Service{
		repos:    repos,
		store:    store,
		monitor:  monitor,
		pipeline: pipeline,
		now:      time.Now,
	}
}

// Create runs the upload create step. Validation failures return
// upload.ErrUnsupportedType, upload.ErrTooLarge or upload.ErrInvalidForm. A
// quota refusal is not an error: the Result carries the Decision instead.
//
// The gate runs twice. The first check avoids storing blobs that would be
// refused. The second runs under the user's row lock together with the photo
// insert and the usage increments, so concurrent uploads cannot overshoot.
func (s *Service) Create(ctx context.Context, uc usercontext.UserContext, in Input) (*Result, error) {
	if err := upload.ValidateForm(upload.Form{
		Title:       in.Title,
		Description: in.Description,
		Filename:    in.Filename,
		Size:        in.Size,
	}); err != nil {
		return nil, err
	}

	body := bufio.NewReaderSize(in.Body, upload.SniffLen)
	head, err := body.Peek(upload.SniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read upload head: %w", err)
	}
	contentType, err := upload.ValidateImageBySniff(in.Filename, head)
	if err != nil {
		return nil, err
	}

	decision, err := s.monitor.CanUploadPhoto(uc)
	if err != nil {
		return nil, fmt.Errorf("check upload quota for user %d: %w", uc.UserID, err)
	}
	if !decision.Allowed {
		log.Infof("[Upload] Refused upload for user %d: %s", uc.UserID, decision.Reason)
		return &Result{Decision: decision}, nil
	}

	ext := strings.ToLower(filepath.Ext(in.Filename))
	key := storage.PhotoKey(uc.UserID, uuid.NewString(), ext)
	limited := io.LimitReader(body, upload.MaxFileSize+1)
	if err := s.store.Put(ctx, key, limited, in.Size, contentType); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	startedAt := s.now()
	photo := &models.Photo{
		UserID:              uc.UserID,
		Title:               strings.TrimSpace(in.Title),
		Description:         strings.TrimSpace(in.Description),
		OriginalFilename:    filepath.Base(in.Filename),
		ContentType:         contentType,
		ByteSize:            in.Size,
		StorageKey:          key,
		ProcessingStartedAt: &startedAt,
		Metadata:            models.Metadata{},
	}
	decision, err = s.record(uc, photo)
	if err != nil || !decision.Allowed {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			log.Warnf("[Upload] Failed to remove orphaned blob %s: %v", key, delErr)
		}
		if err != nil {
			return nil, err
		}
		log.Infof("[Upload] Refused upload for user %d after recheck: %s", uc.UserID, decision.Reason)
		return &Result{Decision: decision}, nil
	}

	if _, _, err := s.monitor.CheckMonthlyUsageAndWarn(ctx, uc); err != nil {
		log.Warnf("[Upload] Usage warning check failed for user %d: %v", uc.UserID, err)
	}

	// The stale sweeper picks the photo up if this fails.
	if err := s.pipeline.EnqueueMetadata(ctx, photo); err != nil {
		log.Errorf("[Upload] Failed to enqueue photo %d: %v", photo.ID, err)
	}

	warning, err := s.monitor.UsageWarningMessage(uc)
	if err != nil {
		log.Warnf("[Upload] Failed to build usage banner for user %d: %v", uc.UserID, err)
	}
	log.Infof("[Upload] Stored photo %d for user %d (%s, %d bytes)", photo.ID, uc.UserID, contentType, in.Size)
	return &Result{Photo: photo, Decision: decision, Warning: warning}, nil
}

// record re-checks the gate and, when it still allows the upload, creates the
// photo and counts it in one transaction.
func (s *Service) record(uc usercontext.UserContext, photo *models.Photo) (usage.Decision, error) {
	var decision usage.Decision
	err := s.repos.Transaction(func(tx *repository.Repositories) error {
		if err := tx.User.LockForUpdate(uc.UserID); err != nil {
			return fmt.Errorf("lock user %d: %w", uc.UserID, err)
		}
		monitor := s.monitor.WithRepositories(tx)
		var err error
		decision, err = monitor.CanUploadPhoto(uc)
		if err != nil {
			return fmt.Errorf("check upload quota for user %d: %w", uc.UserID, err)
		}
		if !decision.Allowed {
			return nil
		}
		if err := tx.Photo.Create(photo); err != nil {
			return fmt.Errorf("create photo: %w", err)
		}
		if err := monitor.Ledger().IncrementPhotoUsage(uc); err != nil {
			return fmt.Errorf("count photo for user %d: %w", uc.UserID, err)
		}
		if err := monitor.IncrementDailyUsage(uc); err != nil {
			return fmt.Errorf("count daily upload for user %d: %w", uc.UserID, err)
		}
		return nil
	})
	if err != nil {
		return usage.Decision{}, err
	}
	return decision, nil
}
