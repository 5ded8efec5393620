package models

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Legacy tier flags kept on the user row.
const (
	TierStarter    = "starter"
	TierPro        = "pro"
	TierEnterprise = "enterprise"

	TierStatusTrial     = "trial"
	TierStatusActive    = "active"
	TierStatusExpired   = "expired"
	TierStatusCancelled = "cancelled"
)

// Column defaults for the per-account monthly limits.
const (
	DefaultMonthlyPhotoLimit   = 8
	DefaultMonthlyCaptionLimit = 5
)

var (
	FitnessFocusOptions = []string{
		"strength_training", "weight_loss", "bodybuilding", "crossfit", "yoga",
		"pilates", "functional_fitness", "sports_performance", "rehabilitation", "general_fitness",
	}
	TargetAudienceOptions = []string{
		"beginners", "intermediate", "advanced", "seniors", "athletes", "women", "men", "all_levels",
	}
	BusinessTypeOptions = []string{
		"independent_trainer", "gym_owner", "online_coach", "studio_owner", "corporate_trainer",
	}
)

type User struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	Email string `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`

	SubscriptionTier   string `gorm:"type:varchar(20);not null;default:'starter'" json:"subscription_tier" validate:"oneof=starter pro enterprise"`
	SubscriptionStatus string `gorm:"type:varchar(20);not null;default:'trial'" json:"subscription_status" validate:"oneof=trial active expired cancelled"`

	CurrentMonthPhotos   int        `gorm:"not null;default:0" json:"current_month_photos"`
	CurrentMonthCaptions int        `gorm:"not null;default:0" json:"current_month_captions"`
	MonthlyPhotoLimit    int        `gorm:"not null;default:8" json:"monthly_photo_limit"`
	MonthlyCaptionLimit  int        `gorm:"not null;default:5" json:"monthly_caption_limit"`
	LastUsageReset       *time.Time `gorm:"default:null" json:"last_usage_reset,omitempty"`

	DailyPhotosUploaded int        `gorm:"not null;default:0" json:"daily_photos_uploaded"`
	LastDailyReset      *time.Time `gorm:"default:null" json:"last_daily_reset,omitempty"`

	UsageWarningsSent int        `gorm:"not null;default:0" json:"usage_warnings_sent"`
	LastWarningSentAt *time.Time `gorm:"default:null" json:"last_warning_sent_at,omitempty"`
	LastWarningLevel  int        `gorm:"not null;default:0" json:"last_warning_level"`
	FairUseViolations int        `gorm:"not null;default:0" json:"fair_use_violations"`

	Bio                    string `gorm:"type:text" json:"bio" validate:"max=1000"`
	FitnessFocus           string `gorm:"type:varchar(50)" json:"fitness_focus"`
	TargetAudience         string `gorm:"type:varchar(50)" json:"target_audience"`
	BusinessType           string `gorm:"type:varchar(50)" json:"business_type"`
	TonePreference         string `gorm:"type:varchar(32)" json:"tone_preference"`
	UniqueApproach         string `gorm:"type:text" json:"unique_approach"`
	BrandPersonality       string `gorm:"type:text" json:"brand_personality"`
	ClientPainPoints       string `gorm:"type:text" json:"client_pain_points"`
	CallToActionPreference string `gorm:"type:varchar(255)" json:"call_to_action_preference"`
	Location               string `gorm:"type:varchar(255)" json:"location"`
	WordsToAvoid           string `gorm:"type:text" json:"words_to_avoid"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// HasLegacyProFlag reports whether the legacy tier column grants pro-level
// access. The legacy status column does not take part.
func (u *User) HasLegacyProFlag() bool {
	return u.SubscriptionTier == TierPro || u.SubscriptionTier == TierEnterprise
}

// WordsToAvoidList splits the comma separated exclusion list.
func (u *User) WordsToAvoidList() []string {
	var out []string
	for _, w := range strings.Split(u.WordsToAvoid, ",") {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// Humanize turns an enum value like "strength_training" into "Strength Training".
func Humanize(value string) string {
	parts := strings.Fields(strings.ReplaceAll(value, "_", " "))
	for i, p := range parts {
		r, size := utf8.DecodeRuneInString(p)
		parts[i] = string(unicode.ToUpper(r)) + p[size:]
	}
	return strings.Join(parts, " ")
}

func FindUserByID(db *gorm.DB, id uint) (*User, error) {
	var user User
	if err := db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
