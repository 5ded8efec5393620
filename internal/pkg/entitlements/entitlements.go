package entitlements

import (
	"strings"
	"time"

	"github.com/ManuelReschke/CaptionFox/app/models"
)

// AccessTier is the single, explicit tier a request is evaluated under.
type AccessTier string

const (
	TierStarter    AccessTier = "starter"
	TierPro        AccessTier = "pro"
	TierEnterprise AccessTier = "enterprise"
)

// Fixed pro-level monthly ceilings. They apply regardless of the per-account limit columns.
const (
	ProMonthlyPhotoLimit   = 250
	ProMonthlyCaptionLimit = 750
	ProDailyPhotoLimit     = 10
)

// Lifetime ceilings for the starter tier under the lifetime policy.
const (
	StarterLifetimePhotoLimit   = 5
	StarterLifetimeCaptionLimit = 5
)

// IsProLevel reports whether the tier gets pro limits and pro-only gates.
func (t AccessTier) IsProLevel() bool {
	return t == TierPro || t == TierEnterprise
}

func (t AccessTier) String() string {
	return string(t)
}

// ResolveTier derives the access tier once per request. Precedence:
//  1. a live subscription providing pro access wins (enterprise when its plan name says so)
//  2. otherwise a legacy pro or enterprise tier column
//  3. otherwise starter
func ResolveTier(user *models.User, active *models.Subscription, now time.Time) AccessTier {
	if active.ProvidesProAccess(now) {
		if strings.Contains(strings.ToLower(active.PlanName), "enterprise") {
			return TierEnterprise
		}
		return TierPro
	}
	if user != nil && user.HasLegacyProFlag() {
		if user.SubscriptionTier == models.TierEnterprise {
			return TierEnterprise
		}
		return TierPro
	}
	return TierStarter
}

// CaptionStyles returns the styles generated per photo for the tier. Every
// pro-level tier gets the same three.
func CaptionStyles(tier AccessTier) []models.CaptionStyle {
	if tier.IsProLevel() {
		return []models.CaptionStyle{models.StyleMotivational, models.StyleEducational, models.StyleFriendly}
	}
	return []models.CaptionStyle{models.StyleFriendly}
}
