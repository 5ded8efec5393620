package mail

import (
	"fmt"
	"strings"

	"github.com/ManuelReschke/CaptionFox/app/models"
)

// Usage warning template names
const (
	TemplateGentleWarning    = "gentle_warning"
	TemplateApproachingLimit = "approaching_limit"
	TemplateLimitExceeded    = "limit_exceeded"
	TemplateHardLimit        = "hard_limit"
)

type templateFunc func(user *models.User, data map[string]interface{}) (subject, body string)

var templates = map[string]templateFunc{
	TemplateGentleWarning: func(u *models.User, d map[string]interface{}) (string, string) {
		return fmt.Sprintf("%v%% of your monthly photos used - You're doing great! 📸", d["percentage"]),
			usageBody(u, d, "You're making great use of CaptionFox this month. Keep the content coming!")
	},
	TemplateApproachingLimit: func(u *models.User, d map[string]interface{}) (string, string) {
		return fmt.Sprintf("⚠️ Approaching your monthly photo limit (%v%% used)", d["percentage"]),
			usageBody(u, d, "You're close to your monthly limit. Plan your remaining uploads for the rest of the month.")
	},
	TemplateLimitExceeded: func(u *models.User, d map[string]interface{}) (string, string) {
		return "Grace period: You've exceeded your monthly photo limit",
			usageBody(u, d, "You're now in the grace period. Uploads keep working for a little while longer, but please consider upgrading.")
	},
	TemplateHardLimit: func(u *models.User, d map[string]interface{}) (string, string) {
		return "🔒 Photo uploads temporarily paused - Let's get you back on track",
			usageBody(u, d, "Uploads are paused until your usage resets. Reply to this email if you need more capacity.")
	},
}

func firstName(u *models.User) string {
	if parts := strings.Fields(u.Name); len(parts) > 0 {
		return parts[0]
	}
	return "there"
}

func usageBody(u *models.User, d map[string]interface{}, lead string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n%s\n\n", firstName(u), lead)
	fmt.Fprintf(&b, "Photos this month: %v of %v (%v%%)\n", d["current_usage"], d["monthly_limit"], d["percentage"])
	fmt.Fprintf(&b, "Days until your usage resets: %v\n\n", d["days_remaining"])
	b.WriteString("The CaptionFox team\n")
	return b.String()
}
