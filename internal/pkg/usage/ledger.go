package usage

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ManuelReschke/CaptionFox/app/models"
	"github.com/ManuelReschke/CaptionFox/app/repository"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usercontext"
)

// Policy selects how the starter tier is metered.
type Policy string

const (
	// PolicyLifetimeTotal counts owned photo and caption rows against a fixed
	// lifetime allowance; counters are never incremented for starter users.
	PolicyLifetimeTotal Policy = "lifetime"
	// PolicyMonthlyCounter meters starter users with the monthly counters
	// against the per-account limit columns.
	PolicyMonthlyCounter Policy = "monthly"
)

// ParsePolicy maps a configuration value to a Policy, defaulting to lifetime.
func ParsePolicy(raw string) Policy {
	if Policy(strings.ToLower(strings.TrimSpace(raw))) == PolicyMonthlyCounter {
		return PolicyMonthlyCounter
	}
	return PolicyLifetimeTotal
}

const (
	columnMonthPhotos   = "current_month_photos"
	columnMonthCaptions = "current_month_captions"
	columnDailyPhotos   = "daily_photos_uploaded"
)

// Ledger gates and accounts for every quota-consuming action.
type Ledger struct {
	users    repository.UserRepository
	photos   repository.PhotoRepository
	captions repository.CaptionRepository
	policy   Policy
	now      func() time.Time
}

func NewLedger(users repository.UserRepository, photos repository.PhotoRepository, captions repository.CaptionRepository, policy Policy) *Ledger {
	return &Ledger{
		users:    users,
		photos:   photos,
		captions: captions,
		policy:   policy,
		now:      time.Now,
	}
}

// WithRepositories returns a copy of the ledger that reads and writes through
// repos, typically the repositories of an open transaction.
func (l *Ledger) WithRepositories(repos *repository.Repositories) *Ledger {
	cp := *l
	cp.users = repos.User
	cp.photos = repos.Photo
	cp.captions = repos.Caption
	return &cp
}

// WithClock replaces the time source, used by tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) Policy() Policy {
	return l.policy
}

func (l *Ledger) Now() time.Time {
	return l.now()
}

func (l *Ledger) loadUser(uc usercontext.UserContext) (*models.User, error) {
	user, err := l.users.GetByID(uc.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", uc.UserID, err)
	}
	return user, nil
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ResetMonthlyIfNeeded zeroes both monthly counters when the last reset lies in
// an earlier calendar month, or no reset happened yet. user is updated in place.
func (l *Ledger) ResetMonthlyIfNeeded(user *models.User) error {
	now := l.now()
	start := monthStart(now)
	if user.LastUsageReset != nil && !user.LastUsageReset.Before(start) {
		return nil
	}
	reset, err := l.users.ResetMonthlyUsage(user.ID, start, now)
	if err != nil {
		return fmt.Errorf("reset monthly usage for user %d: %w", user.ID, err)
	}
	if reset {
		user.CurrentMonthPhotos = 0
		user.CurrentMonthCaptions = 0
		user.LastUsageReset = &now
		return nil
	}
	// Another worker reset first; pick up its values.
	return l.refresh(user)
}

// ResetDailyIfNeeded zeroes the daily upload counter once per calendar day.
func (l *Ledger) ResetDailyIfNeeded(user *models.User) error {
	now := l.now()
	start := dayStart(now)
	if user.LastDailyReset != nil && !user.LastDailyReset.Before(start) {
		return nil
	}
	reset, err := l.users.ResetDailyUsage(user.ID, start, now)
	if err != nil {
		return fmt.Errorf("reset daily usage for user %d: %w", user.ID, err)
	}
	if reset {
		user.DailyPhotosUploaded = 0
		user.LastDailyReset = &now
		return nil
	}
	return l.refresh(user)
}

func (l *Ledger) refresh(user *models.User) error {
	fresh, err := l.users.GetByID(user.ID)
	if err != nil {
		return fmt.Errorf("reload user %d: %w", user.ID, err)
	}
	*user = *fresh
	return nil
}

func (l *Ledger) countsRows(tier entitlements.AccessTier) bool {
	return !tier.IsProLevel() && l.policy == PolicyLifetimeTotal
}

// Limits returns the effective photo and caption ceilings for the tier.
func (l *Ledger) Limits(user *models.User, tier entitlements.AccessTier) (photos, captions int) {
	switch {
	case tier.IsProLevel():
		return entitlements.ProMonthlyPhotoLimit, entitlements.ProMonthlyCaptionLimit
	case l.policy == PolicyLifetimeTotal:
		return entitlements.StarterLifetimePhotoLimit, entitlements.StarterLifetimeCaptionLimit
	default:
		return user.MonthlyPhotoLimit, user.MonthlyCaptionLimit
	}
}

// usageFor returns consumption for the current period after resetting counters.
func (l *Ledger) usageFor(user *models.User, tier entitlements.AccessTier) (photos, captions int, err error) {
	if l.countsRows(tier) {
		p, err := l.photos.CountByUserID(user.ID)
		if err != nil {
			return 0, 0, fmt.Errorf("count photos for user %d: %w", user.ID, err)
		}
		c, err := l.captions.CountByUserID(user.ID)
		if err != nil {
			return 0, 0, fmt.Errorf("count captions for user %d: %w", user.ID, err)
		}
		return int(p), int(c), nil
	}
	if err := l.ResetMonthlyIfNeeded(user); err != nil {
		return 0, 0, err
	}
	return user.CurrentMonthPhotos, user.CurrentMonthCaptions, nil
}

// Snapshot computes the quota for the user as of now.
func (l *Ledger) Snapshot(uc usercontext.UserContext) (usercontext.Quota, error) {
	user, err := l.loadUser(uc)
	if err != nil {
		return usercontext.Quota{}, err
	}
	return l.snapshotFor(user, uc.Tier)
}

func (l *Ledger) snapshotFor(user *models.User, tier entitlements.AccessTier) (usercontext.Quota, error) {
	usedPhotos, usedCaptions, err := l.usageFor(user, tier)
	if err != nil {
		return usercontext.Quota{}, err
	}
	if err := l.ResetDailyIfNeeded(user); err != nil {
		return usercontext.Quota{}, err
	}
	photoLimit, captionLimit := l.Limits(user, tier)
	return usercontext.Quota{
		PhotosUsed:        usedPhotos,
		PhotoLimit:        photoLimit,
		PhotosRemaining:   remaining(photoLimit, usedPhotos),
		CaptionsUsed:      usedCaptions,
		CaptionLimit:      captionLimit,
		CaptionsRemaining: remaining(captionLimit, usedCaptions),
		DailyPhotosUsed:   user.DailyPhotosUploaded,
		Percentage:        percentage(usedPhotos, photoLimit, tier),
	}, nil
}

func remaining(limit, used int) int {
	if used >= limit {
		return 0
	}
	return limit - used
}

// percentage is only meaningful for pro-level tiers; starter users get 0.
func percentage(used, limit int, tier entitlements.AccessTier) int {
	if !tier.IsProLevel() || limit <= 0 {
		return 0
	}
	return int(math.Round(float64(used) / float64(limit) * 100))
}

// CanUploadPhoto reports whether at least one photo remains this period.
func (l *Ledger) CanUploadPhoto(uc usercontext.UserContext) (bool, error) {
	q, err := l.Snapshot(uc)
	if err != nil {
		return false, err
	}
	return q.PhotosRemaining > 0, nil
}

// CanGenerateCaption reports whether at least one caption remains this period.
func (l *Ledger) CanGenerateCaption(uc usercontext.UserContext) (bool, error) {
	q, err := l.Snapshot(uc)
	if err != nil {
		return false, err
	}
	return q.CaptionsRemaining > 0, nil
}

// IncrementPhotoUsage counts one uploaded photo.
func (l *Ledger) IncrementPhotoUsage(uc usercontext.UserContext) error {
	return l.increment(uc, columnMonthPhotos)
}

// IncrementCaptionUsage counts one generated caption.
func (l *Ledger) IncrementCaptionUsage(uc usercontext.UserContext) error {
	return l.increment(uc, columnMonthCaptions)
}

func (l *Ledger) increment(uc usercontext.UserContext, column string) error {
	if l.countsRows(uc.Tier) {
		return nil
	}
	user, err := l.loadUser(uc)
	if err != nil {
		return err
	}
	if err := l.ResetMonthlyIfNeeded(user); err != nil {
		return err
	}
	if err := l.users.IncrementColumn(user.ID, column, 1); err != nil {
		return fmt.Errorf("increment %s for user %d: %w", column, user.ID, err)
	}
	return nil
}

// UsagePercentage is current monthly photos over the effective limit, rounded.
func (l *Ledger) UsagePercentage(uc usercontext.UserContext) (int, error) {
	q, err := l.Snapshot(uc)
	if err != nil {
		return 0, err
	}
	return q.Percentage, nil
}
