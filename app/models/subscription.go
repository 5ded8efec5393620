package models

import "time"

const (
	BillingIntervalMonth = "month"
	BillingIntervalYear  = "year"
)

const (
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusActive            = "active"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusUnpaid            = "unpaid"
	SubscriptionStatusPaused            = "paused"
)

var SubscriptionStatuses = []string{
	SubscriptionStatusIncomplete,
	SubscriptionStatusIncompleteExpired,
	SubscriptionStatusTrialing,
	SubscriptionStatusActive,
	SubscriptionStatusPastDue,
	SubscriptionStatusCanceled,
	SubscriptionStatusUnpaid,
	SubscriptionStatusPaused,
}

// Subscription mirrors a billing-provider subscription. Status is only ever
// synchronised from provider events.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 uint       `gorm:"not null;index" json:"user_id"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_subscription_id"`
	ProviderCustomerID     string     `gorm:"type:varchar(191);index" json:"provider_customer_id"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'incomplete';index" json:"status"`
	CurrentPeriodStart     *time.Time `gorm:"default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `gorm:"default:null" json:"current_period_end,omitempty"`
	TrialEnd               *time.Time `gorm:"default:null" json:"trial_end,omitempty"`
	Amount                 float64    `gorm:"not null;default:0" json:"amount"`
	Interval               string     `gorm:"type:varchar(16)" json:"interval"`
	PlanName               string     `gorm:"type:varchar(100)" json:"plan_name"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProvidesProAccess holds iff the subscription is active or trialing and its
// current period has not ended.
func (s *Subscription) ProvidesProAccess(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusTrialing {
		return false
	}
	return s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.After(now)
}

func (s *Subscription) IsTerminal() bool {
	return s.Status == SubscriptionStatusCanceled || s.Status == SubscriptionStatusUnpaid ||
		s.Status == SubscriptionStatusIncompleteExpired
}

// StatusDisplay is the label shown to users for the current status.
func (s *Subscription) StatusDisplay() string {
	switch s.Status {
	case SubscriptionStatusActive:
		return "Active"
	case SubscriptionStatusTrialing:
		return "Trial"
	case SubscriptionStatusPastDue:
		return "Payment Due"
	case SubscriptionStatusCanceled:
		return "Canceled"
	case SubscriptionStatusUnpaid:
		return "Unpaid"
	case SubscriptionStatusPaused:
		return "Paused"
	default:
		return "Incomplete"
	}
}

func (s *Subscription) IsAnnual() bool {
	return s.Interval == BillingIntervalYear
}
