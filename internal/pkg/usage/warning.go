package usage

import (
	"fmt"
	"math"
	"time"

	"github.com/ManuelReschke/CaptionFox/app/models"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/mail"
)

// WarningLevel is an ordered severity band of monthly usage.
type WarningLevel int

const (
	WarningNone WarningLevel = iota
	WarningGentle
	WarningApproaching
	WarningExceeded
	WarningHardLimit
)

// warningCooldown suppresses repeats of the same or a lower band.
const warningCooldown = 7 * 24 * time.Hour

func (w WarningLevel) String() string {
	switch w {
	case WarningGentle:
		return "gentle_warning"
	case WarningApproaching:
		return "approaching_limit"
	case WarningExceeded:
		return "limit_exceeded"
	case WarningHardLimit:
		return "hard_limit"
	default:
		return "none"
	}
}

// Template returns the mail template for the band.
func (w WarningLevel) Template() string {
	switch w {
	case WarningGentle:
		return mail.TemplateGentleWarning
	case WarningApproaching:
		return mail.TemplateApproachingLimit
	case WarningExceeded:
		return mail.TemplateLimitExceeded
	case WarningHardLimit:
		return mail.TemplateHardLimit
	default:
		return ""
	}
}

// LevelForPercentage maps rounded usage to its band.
func LevelForPercentage(pct int) WarningLevel {
	switch {
	case pct >= 110:
		return WarningHardLimit
	case pct >= 100:
		return WarningExceeded
	case pct >= 95:
		return WarningApproaching
	case pct >= 80:
		return WarningGentle
	default:
		return WarningNone
	}
}

// ShouldSendWarning decides whether level may be mailed now.
//
// The band recorded on the user only counts while its send time falls in the
// current calendar month. A warning is sent when the band is strictly higher
// than that recorded band. Independently, the same or a lower band than the
// last one mailed is never repeated within seven days, which also covers a
// month rollover right after a send.
func ShouldSendWarning(user *models.User, level WarningLevel, now time.Time) bool {
	if level == WarningNone {
		return false
	}
	if user.LastWarningSentAt == nil {
		return true
	}
	last := WarningLevel(user.LastWarningLevel)
	sentAt := *user.LastWarningSentAt

	recorded := WarningNone
	if !sentAt.Before(monthStart(now)) {
		recorded = last
	}
	if level <= recorded {
		return false
	}
	if now.Sub(sentAt) < warningCooldown && level <= last {
		return false
	}
	return true
}

// Message is the banner text for a band, or "" when there is nothing to say.
func Message(level WarningLevel, current, limit, pct int) string {
	switch level {
	case WarningGentle:
		return fmt.Sprintf("You've used %d/%d photos (%d%%) this month. You're doing great!", current, limit, pct)
	case WarningApproaching:
		return fmt.Sprintf("You're approaching your monthly limit: %d/%d photos (%d%%). Consider managing usage or upgrading.", current, limit, pct)
	case WarningExceeded:
		return fmt.Sprintf("You've exceeded your monthly limit (%d%%). You're in the grace period, but please consider upgrading to avoid interruptions.", pct)
	case WarningHardLimit:
		return fmt.Sprintf("You've reached the maximum usage limit (%d%%). Please upgrade to continue uploading photos.", pct)
	default:
		return ""
	}
}

// daysUntilReset counts calendar days until the first of next month.
func daysUntilReset(now time.Time) int {
	today := dayStart(now)
	next := monthStart(now).AddDate(0, 1, 0)
	return int(math.Round(next.Sub(today).Hours() / 24))
}
