package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v81/webhook"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CaptionFox/app/models"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/env"
)

const ProviderStripe = "stripe"

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// Outcome tells the HTTP layer what happened to a delivered event.
type Outcome struct {
	EventID   string
	EventType string
	Duplicate bool
	Handled   bool
}

// Service verifies Stripe webhooks and mirrors subscription state locally.
type Service struct {
	repo   Repository
	secret string
	now    func() time.Time
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, webhookSecret string) *Service {
	return &Service{repo: repo, secret: webhookSecret, now: time.Now}
}

// NewServiceFromEnv reads STRIPE_WEBHOOK_SECRET.
func NewServiceFromEnv(db *gorm.DB) *Service {
	return NewService(NewRepository(db), env.GetEnv("STRIPE_WEBHOOK_SECRET", ""))
}

// HandleWebhook verifies, de-duplicates and applies one delivery. Unknown
// event types are acknowledged without changes.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (Outcome, error) {
	if s.secret == "" {
		return Outcome{}, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, s.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrNotSigned), errors.Is(err, webhook.ErrInvalidHeader),
			errors.Is(err, webhook.ErrNoValidSignature), errors.Is(err, webhook.ErrTooOld):
			return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		default:
			return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	if event.ID == "" || event.Data == nil {
		return Outcome{}, fmt.Errorf("%w: event without id or data", ErrInvalidPayload)
	}

	out := Outcome{EventID: event.ID, EventType: string(event.Type)}
	sum := sha256.Sum256(payload)
	record := &models.WebhookEvent{
		Provider:        ProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadHash:     hex.EncodeToString(sum[:]),
	}
	created, err := s.repo.CreateWebhookEventIfNotExists(record)
	if err != nil {
		return out, fmt.Errorf("record webhook event %s: %w", event.ID, err)
	}
	if !created && record.ProcessedAt != nil && record.ProcessingError == "" {
		log.Infof("[Billing] Ignoring duplicate event %s (%s)", event.ID, event.Type)
		out.Duplicate = true
		return out, nil
	}

	handled, applyErr := s.Apply(ctx, string(event.Type), event.Data.Raw)
	out.Handled = handled

	msg := ""
	if applyErr != nil {
		msg = applyErr.Error()
	}
	if err := s.repo.MarkWebhookProcessed(record.ID, s.now(), msg); err != nil {
		log.Errorf("[Billing] Failed to mark event %s processed: %v", event.ID, err)
	}
	return out, applyErr
}

// Apply changes the subscription mirror for one event object. It reports
// whether the event type is one the mirror reacts to.
func (s *Service) Apply(_ context.Context, eventType string, raw json.RawMessage) (bool, error) {
	log.Infof("[Billing] Processing webhook event: %s", eventType)

	switch eventType {
	case "checkout.session.completed":
		var sess stripeCheckoutSession
		if err := json.Unmarshal(raw, &sess); err != nil {
			return true, fmt.Errorf("%w: checkout session: %v", ErrInvalidPayload, err)
		}
		return true, s.checkoutCompleted(sess)
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripeSubscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return true, fmt.Errorf("%w: subscription: %v", ErrInvalidPayload, err)
		}
		return true, s.syncSubscription(sub)
	case "customer.subscription.deleted":
		var sub stripeSubscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return true, fmt.Errorf("%w: subscription: %v", ErrInvalidPayload, err)
		}
		return true, s.subscriptionDeleted(sub)
	case "invoice.payment_succeeded", "invoice.payment_failed":
		var inv stripeInvoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return true, fmt.Errorf("%w: invoice: %v", ErrInvalidPayload, err)
		}
		return true, s.invoiceResult(inv, eventType == "invoice.payment_succeeded")
	default:
		log.Infof("[Billing] Unhandled event type: %s", eventType)
		return false, nil
	}
}

// checkoutCompleted links the new subscription id to the user. Status and
// period arrive with the subscription events.
func (s *Service) checkoutCompleted(sess stripeCheckoutSession) error {
	userID := metadataUserID(sess.Metadata)
	if userID == 0 || sess.Subscription == "" {
		log.Warnf("[Billing] Checkout session %s has no user_id or subscription, skipping", sess.ID)
		return nil
	}
	ok, err := s.repo.UserExists(userID)
	if err != nil {
		return err
	}
	if !ok {
		log.Warnf("[Billing] Checkout session %s references unknown user %d", sess.ID, userID)
		return nil
	}

	existing, err := s.repo.GetSubscription(sess.Subscription)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.ProviderCustomerID == "" && sess.Customer != "" {
			existing.ProviderCustomerID = sess.Customer
			return s.repo.UpsertSubscription(existing)
		}
		return nil
	}
	return s.repo.UpsertSubscription(&models.Subscription{
		UserID:                 userID,
		ProviderSubscriptionID: sess.Subscription,
		ProviderCustomerID:     sess.Customer,
		Status:                 models.SubscriptionStatusIncomplete,
		PlanName:               normalizePlanName(sess.Metadata["plan_name"]),
	})
}

// syncSubscription upserts by provider subscription id. Unknown subscriptions
// are only created when the metadata names an existing user.
func (s *Service) syncSubscription(in stripeSubscription) error {
	if in.ID == "" {
		return fmt.Errorf("%w: subscription without id", ErrInvalidPayload)
	}
	existing, err := s.repo.GetSubscription(in.ID)
	if err != nil {
		return err
	}

	sub := existing
	if sub == nil {
		userID := metadataUserID(in.Metadata)
		if userID == 0 {
			log.Warnf("[Billing] Subscription %s is unknown and has no user_id, skipping", in.ID)
			return nil
		}
		ok, err := s.repo.UserExists(userID)
		if err != nil {
			return err
		}
		if !ok {
			log.Warnf("[Billing] Subscription %s references unknown user %d", in.ID, userID)
			return nil
		}
		sub = &models.Subscription{UserID: userID, ProviderSubscriptionID: in.ID}
	}

	start, end := in.periodBounds()
	amount, interval := in.price()
	sub.Status = normalizeStatus(in.Status)
	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = end
	sub.TrialEnd = unixTime(in.TrialEnd)
	sub.Amount = amount
	sub.Interval = normalizeInterval(interval)
	if in.Customer != "" {
		sub.ProviderCustomerID = in.Customer
	}
	if name := in.Metadata["plan_name"]; name != "" || sub.PlanName == "" {
		sub.PlanName = normalizePlanName(name)
	}

	if err := s.repo.UpsertSubscription(sub); err != nil {
		return fmt.Errorf("upsert subscription %s: %w", in.ID, err)
	}
	log.Infof("[Billing] Subscription %s for user %d is %s", sub.ProviderSubscriptionID, sub.UserID, sub.Status)
	return nil
}

func (s *Service) subscriptionDeleted(in stripeSubscription) error {
	existing, err := s.repo.GetSubscription(in.ID)
	if err != nil || existing == nil {
		return err
	}
	existing.Status = models.SubscriptionStatusCanceled
	if _, end := in.periodBounds(); end != nil {
		existing.CurrentPeriodEnd = end
	}
	return s.repo.UpsertSubscription(existing)
}

// invoiceResult reactivates past_due subscriptions on payment and marks them
// past_due on failure.
func (s *Service) invoiceResult(inv stripeInvoice, paid bool) error {
	subID := inv.subscriptionID()
	if subID == "" {
		return nil
	}
	existing, err := s.repo.GetSubscription(subID)
	if err != nil || existing == nil {
		return err
	}
	switch {
	case paid && existing.Status == models.SubscriptionStatusPastDue:
		return s.repo.UpdateSubscriptionStatus(existing.ID, models.SubscriptionStatusActive)
	case !paid:
		return s.repo.UpdateSubscriptionStatus(existing.ID, models.SubscriptionStatusPastDue)
	}
	return nil
}
