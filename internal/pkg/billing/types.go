package billing

import (
	"strconv"
	"time"
)

// Subset of the Stripe objects the subscription mirror consumes. Decoding
// into local shapes keeps the handler independent of the SDK's API version.

type stripePrice struct {
	UnitAmount int64 `json:"unit_amount"`
	Recurring  *struct {
		Interval string `json:"interval"`
	} `json:"recurring"`
}

type stripeSubscriptionItem struct {
	Price              stripePrice `json:"price"`
	CurrentPeriodStart int64       `json:"current_period_start"`
	CurrentPeriodEnd   int64       `json:"current_period_end"`
}

type stripeSubscription struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	TrialEnd           int64             `json:"trial_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []stripeSubscriptionItem `json:"data"`
	} `json:"items"`
}

type stripeCheckoutSession struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type stripeInvoice struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// subscriptionID handles both the classic and the parent-based invoice layout.
func (i stripeInvoice) subscriptionID() string {
	if i.Subscription != "" {
		return i.Subscription
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return i.Parent.SubscriptionDetails.Subscription
	}
	return ""
}

// periodBounds falls back to the first item for API versions that moved the
// period onto subscription items.
func (s stripeSubscription) periodBounds() (start, end *time.Time) {
	startUnix, endUnix := s.CurrentPeriodStart, s.CurrentPeriodEnd
	if len(s.Items.Data) > 0 {
		if startUnix == 0 {
			startUnix = s.Items.Data[0].CurrentPeriodStart
		}
		if endUnix == 0 {
			endUnix = s.Items.Data[0].CurrentPeriodEnd
		}
	}
	return unixTime(startUnix), unixTime(endUnix)
}

func (s stripeSubscription) price() (amount float64, interval string) {
	if len(s.Items.Data) == 0 {
		return 0, ""
	}
	p := s.Items.Data[0].Price
	if p.Recurring != nil {
		interval = p.Recurring.Interval
	}
	return float64(p.UnitAmount) / 100.0, interval
}

func unixTime(v int64) *time.Time {
	if v <= 0 {
		return nil
	}
	t := time.Unix(v, 0).UTC()
	return &t
}

func metadataUserID(md map[string]string) uint {
	v, err := strconv.ParseUint(md["user_id"], 10, 64)
	if err != nil {
		return 0
	}
	return uint(v)
}
