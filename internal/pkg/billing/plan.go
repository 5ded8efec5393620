package billing

import (
	"strings"

	"github.com/ManuelReschke/CaptionFox/app/models"
)

const defaultPlanName = "Pro"

// normalizePlanName keeps the provider's plan label, defaulting to Pro.
func normalizePlanName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return defaultPlanName
}

func normalizeInterval(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	switch i {
	case models.BillingIntervalMonth, models.BillingIntervalYear:
		return i
	default:
		return ""
	}
}

// normalizeStatus maps a provider status onto the known set, treating
// anything unrecognised as incomplete.
func normalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	for _, known := range models.SubscriptionStatuses {
		if s == known {
			return s
		}
	}
	return models.SubscriptionStatusIncomplete
}
