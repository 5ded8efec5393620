package usage

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CaptionFox/app/models"
	"github.com/ManuelReschke/CaptionFox/app/repository"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/mail"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usercontext"
)

// Reasons an upload can be refused.
const (
	ReasonDailyLimit      = "daily_limit"
	ReasonHardLimit       = "hard_limit"
	ReasonUpgradeRequired = "upgrade_required"
)

// Decision is the outcome of the upload gate. A refusal is a business state, not an error.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	// Warning is set while uploads are still allowed but usage is in a warning band.
	Warning string `json:"warning,omitempty"`
}

// Monitor layers daily ceilings and warning escalation over the Ledger.
type Monitor struct {
	ledger *Ledger
	users  repository.UserRepository
	mailer mail.Mailer
}

func NewMonitor(ledger *Ledger, users repository.UserRepository, mailer mail.Mailer) *Monitor {
	return &Monitor{ledger: ledger, users: users, mailer: mailer}
}

// WithRepositories returns a copy of the monitor bound to repos.
func (m *Monitor) WithRepositories(repos *repository.Repositories) *Monitor {
	return &Monitor{ledger: m.ledger.WithRepositories(repos), users: repos.User, mailer: m.mailer}
}

func (m *Monitor) Ledger() *Ledger {
	return m.ledger
}

// CheckDailyLimitBeforeUpload applies the pro-level daily ceiling. Starter users are not daily-gated.
func (m *Monitor) CheckDailyLimitBeforeUpload(uc usercontext.UserContext) (bool, error) {
	user, err := m.ledger.loadUser(uc)
	if err != nil {
		return false, err
	}
	if err := m.ledger.ResetDailyIfNeeded(user); err != nil {
		return false, err
	}
	if !uc.Tier.IsProLevel() {
		return true, nil
	}
	return user.DailyPhotosUploaded < entitlements.ProDailyPhotoLimit, nil
}

// IncrementDailyUsage counts one upload against the daily ceiling.
func (m *Monitor) IncrementDailyUsage(uc usercontext.UserContext) error {
	user, err := m.ledger.loadUser(uc)
	if err != nil {
		return err
	}
	if err := m.ledger.ResetDailyIfNeeded(user); err != nil {
		return err
	}
	if !uc.Tier.IsProLevel() {
		return nil
	}
	if err := m.users.IncrementColumn(user.ID, columnDailyPhotos, 1); err != nil {
		return fmt.Errorf("increment daily usage for user %d: %w", user.ID, err)
	}
	return nil
}

// CheckMonthlyUsageAndWarn maps monthly usage to a band and mails the user when
// ShouldSendWarning allows it. It returns the band that was sent, or
// WarningNone. Mail failures are logged and never fail the accounting.
func (m *Monitor) CheckMonthlyUsageAndWarn(ctx context.Context, uc usercontext.UserContext) (WarningLevel, bool, error) {
	if !uc.Tier.IsProLevel() {
		return WarningNone, false, nil
	}
	user, err := m.ledger.loadUser(uc)
	if err != nil {
		return WarningNone, false, err
	}
	quota, err := m.ledger.snapshotFor(user, uc.Tier)
	if err != nil {
		return WarningNone, false, err
	}

	level := LevelForPercentage(quota.Percentage)
	now := m.ledger.now()
	if !ShouldSendWarning(user, level, now) {
		return WarningNone, false, nil
	}

	m.sendWarning(ctx, user, level, quota)

	if err := m.users.RecordWarning(user.ID, int(level), now, level == WarningHardLimit); err != nil {
		return level, true, fmt.Errorf("record warning for user %d: %w", user.ID, err)
	}
	return level, true, nil
}

func (m *Monitor) sendWarning(ctx context.Context, user *models.User, level WarningLevel, quota usercontext.Quota) {
	if m.mailer == nil {
		return
	}
	data := map[string]interface{}{
		"current_usage":  quota.PhotosUsed,
		"monthly_limit":  quota.PhotoLimit,
		"percentage":     quota.Percentage,
		"days_remaining": daysUntilReset(m.ledger.now()),
	}
	if err := m.mailer.Send(ctx, level.Template(), user, data); err != nil {
		log.Errorf("[Usage] Failed to send %s warning to user %d: %v", level, user.ID, err)
		return
	}
	log.Infof("[Usage] Sent %s warning to user %d (%d/%d photos)", level, user.ID, quota.PhotosUsed, quota.PhotoLimit)
}

// CanUploadPhoto is the upload gate. It applies the daily ceiling first.
// Pro-level users may upload through the grace band and are blocked at the
// hard stop. Starter users need remaining ledger quota.
func (m *Monitor) CanUploadPhoto(uc usercontext.UserContext) (Decision, error) {
	okToday, err := m.CheckDailyLimitBeforeUpload(uc)
	if err != nil {
		return Decision{}, err
	}
	if !okToday {
		return Decision{
			Reason:  ReasonDailyLimit,
			Message: fmt.Sprintf("You've reached your daily limit of %d photos. Uploads resume tomorrow.", entitlements.ProDailyPhotoLimit),
		}, nil
	}

	quota, err := m.ledger.Snapshot(uc)
	if err != nil {
		return Decision{}, err
	}

	if uc.Tier.IsProLevel() {
		level := LevelForPercentage(quota.Percentage)
		msg := Message(level, quota.PhotosUsed, quota.PhotoLimit, quota.Percentage)
		if level == WarningHardLimit {
			return Decision{Reason: ReasonHardLimit, Message: msg}, nil
		}
		return Decision{Allowed: true, Warning: msg}, nil
	}

	if quota.PhotosRemaining > 0 {
		return Decision{Allowed: true}, nil
	}
	return Decision{
		Reason:  ReasonUpgradeRequired,
		Message: fmt.Sprintf("You've used all %d photos included in the free plan. Upgrade to Pro to keep creating captions.", quota.PhotoLimit),
	}, nil
}

// UsageWarningMessage returns the banner for the user's current band, if any.
func (m *Monitor) UsageWarningMessage(uc usercontext.UserContext) (string, error) {
	if !uc.Tier.IsProLevel() {
		return "", nil
	}
	quota, err := m.ledger.Snapshot(uc)
	if err != nil {
		return "", err
	}
	return Message(LevelForPercentage(quota.Percentage), quota.PhotosUsed, quota.PhotoLimit, quota.Percentage), nil
}
