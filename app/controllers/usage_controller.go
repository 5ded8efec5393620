package controllers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CaptionFox/app/repository"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usage"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usercontext"
)

type UsageController struct {
	monitor       *usage.Monitor
	subscriptions repository.SubscriptionRepository
}

func NewUsageController(monitor *usage.Monitor, subscriptions repository.SubscriptionRepository) *UsageController {
	return &UsageController{monitor: monitor, subscriptions: subscriptions}
}

type subscriptionView struct {
	PlanName      string `json:"plan_name"`
	Status        string `json:"status"`
	StatusDisplay string `json:"status_display"`
	Annual        bool   `json:"annual"`
	Ended         bool   `json:"ended"`
}

// HandleUsage returns a fresh quota snapshot and the current warning banner.
func (uc *UsageController) HandleUsage(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)

	quota, err := uc.monitor.Ledger().Snapshot(user)
	if err != nil {
		return fmt.Errorf("usage snapshot for user %d: %w", user.UserID, err)
	}
	warning, err := uc.monitor.UsageWarningMessage(user)
	if err != nil {
		return fmt.Errorf("usage warning for user %d: %w", user.UserID, err)
	}
	decision, err := uc.monitor.CanUploadPhoto(user)
	if err != nil {
		return fmt.Errorf("upload gate for user %d: %w", user.UserID, err)
	}

	subs, err := uc.subscriptions.ListByUser(user.UserID)
	if err != nil {
		return fmt.Errorf("subscriptions for user %d: %w", user.UserID, err)
	}
	views := make([]subscriptionView, 0, len(subs))
	for i := range subs {
		sub := &subs[i]
		views = append(views, subscriptionView{
			PlanName:      sub.PlanName,
			Status:        sub.Status,
			StatusDisplay: sub.StatusDisplay(),
			Annual:        sub.IsAnnual(),
			Ended:         sub.IsTerminal(),
		})
	}

	return c.JSON(fiber.Map{
		"tier":          user.Tier,
		"policy":        uc.monitor.Ledger().Policy(),
		"quota":         quota,
		"warning":       warning,
		"can_upload":    decision.Allowed,
		"reason":        decision.Reason,
		"subscriptions": views,
	})
}
