package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CaptionFox/app/models"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/database"
)

const testSecret = "whsec_test_captionfox"

func newTestService(t *testing.T) (*Service, *gorm.DB, *models.User) {
	t.Helper()
	db, err := database.OpenTestDB()
	require.NoError(t, err)
	user := &models.User{Email: "coach@example.com"}
	require.NoError(t, db.Create(user).Error)
	svc := NewService(NewRepository(db), testSecret)
	svc.now = func() time.Time { return time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC) }
	return svc, db, user
}

func eventPayload(t *testing.T, id, eventType string, object map[string]interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": "2020-08-27",
		"data":        map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return raw
}

func sign(payload []byte) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func deliver(t *testing.T, svc *Service, payload []byte) (Outcome, error) {
	t.Helper()
	return svc.HandleWebhook(context.Background(), payload, sign(payload))
}

func subscriptionObject(userID uint, status string, periodEnd time.Time) map[string]interface{} {
	return map[string]interface{}{
		"id":                   "sub_123",
		"object":               "subscription",
		"customer":             "cus_123",
		"status":               status,
		"current_period_start": periodEnd.AddDate(0, -1, 0).Unix(),
		"current_period_end":   periodEnd.Unix(),
		"metadata":             map[string]string{"user_id": fmt.Sprint(userID)},
		"items": map[string]interface{}{
			"data": []map[string]interface{}{
				{"price": map[string]interface{}{"unit_amount": 1900, "recurring": map[string]string{"interval": "month"}}},
			},
		},
	}
}

func loadSubscription(t *testing.T, db *gorm.DB) models.Subscription {
	t.Helper()
	var sub models.Subscription
	require.NoError(t, db.Where("provider_subscription_id = ?", "sub_123").First(&sub).Error)
	return sub
}

func TestHandleWebhook_RejectsBadSignature(t *testing.T) {
	svc, _, user := newTestService(t)
	payload := eventPayload(t, "evt_1", "customer.subscription.created", subscriptionObject(user.ID, "active", time.Now().AddDate(0, 1, 0)))

	_, err := svc.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = svc.HandleWebhook(context.Background(), payload, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestHandleWebhook_MissingSecret(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.secret = ""
	payload := []byte(`{"id":"evt_1"}`)
	_, err := svc.HandleWebhook(context.Background(), payload, sign(payload))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestHandleWebhook_RejectsMalformedPayload(t *testing.T) {
	svc, _, _ := newTestService(t)
	payload := []byte(`{not json`)
	_, err := deliver(t, svc, payload)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestHandleWebhook_SubscriptionLifecycle(t *testing.T) {
	svc, db, user := newTestService(t)
	periodEnd := time.Date(2026, time.November, 19, 0, 0, 0, 0, time.UTC)

	out, err := deliver(t, svc, eventPayload(t, "evt_created", "customer.subscription.created", subscriptionObject(user.ID, "active", periodEnd)))
	require.NoError(t, err)
	assert.True(t, out.Handled)

	sub := loadSubscription(t, db)
	assert.Equal(t, user.ID, sub.UserID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "cus_123", sub.ProviderCustomerID)
	assert.Equal(t, 19.0, sub.Amount)
	assert.Equal(t, models.BillingIntervalMonth, sub.Interval)
	assert.Equal(t, "Pro", sub.PlanName)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.True(t, sub.CurrentPeriodEnd.Equal(periodEnd))

	_, err = deliver(t, svc, eventPayload(t, "evt_updated", "customer.subscription.updated", subscriptionObject(user.ID, "trialing", periodEnd)))
	require.NoError(t, err)
	updated := loadSubscription(t, db)
	assert.Equal(t, sub.ID, updated.ID)
	assert.Equal(t, models.SubscriptionStatusTrialing, updated.Status)

	_, err = deliver(t, svc, eventPayload(t, "evt_failed", "invoice.payment_failed", map[string]interface{}{"id": "in_1", "subscription": "sub_123"}))
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusPastDue, loadSubscription(t, db).Status)

	_, err = deliver(t, svc, eventPayload(t, "evt_paid", "invoice.payment_succeeded", map[string]interface{}{
		"id":     "in_2",
		"parent": map[string]interface{}{"subscription_details": map[string]string{"subscription": "sub_123"}},
	}))
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, loadSubscription(t, db).Status)

	_, err = deliver(t, svc, eventPayload(t, "evt_deleted", "customer.subscription.deleted", subscriptionObject(user.ID, "canceled", periodEnd)))
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, loadSubscription(t, db).Status)

	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestHandleWebhook_PaymentSucceededLeavesActiveAlone(t *testing.T) {
	svc, db, user := newTestService(t)
	periodEnd := time.Date(2026, time.November, 19, 0, 0, 0, 0, time.UTC)
	_, err := deliver(t, svc, eventPayload(t, "evt_created", "customer.subscription.created", subscriptionObject(user.ID, "canceled", periodEnd)))
	require.NoError(t, err)

	_, err = deliver(t, svc, eventPayload(t, "evt_paid", "invoice.payment_succeeded", map[string]interface{}{"id": "in_1", "subscription": "sub_123"}))
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, loadSubscription(t, db).Status)
}

func TestHandleWebhook_CheckoutCompletedLinksUser(t *testing.T) {
	svc, db, user := newTestService(t)
	_, err := deliver(t, svc, eventPayload(t, "evt_checkout", "checkout.session.completed", map[string]interface{}{
		"id":           "cs_1",
		"customer":     "cus_123",
		"subscription": "sub_123",
		"metadata":     map[string]string{"user_id": fmt.Sprint(user.ID), "plan_name": "Enterprise"},
	}))
	require.NoError(t, err)

	sub := loadSubscription(t, db)
	assert.Equal(t, user.ID, sub.UserID)
	assert.Equal(t, models.SubscriptionStatusIncomplete, sub.Status)
	assert.Equal(t, "Enterprise", sub.PlanName)
	assert.False(t, sub.ProvidesProAccess(svc.now()))
}

func TestHandleWebhook_UnknownUserIsSkipped(t *testing.T) {
	svc, db, _ := newTestService(t)
	out, err := deliver(t, svc, eventPayload(t, "evt_1", "customer.subscription.created", subscriptionObject(9999, "active", time.Now().AddDate(0, 1, 0))))
	require.NoError(t, err)
	assert.True(t, out.Handled)

	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestHandleWebhook_DuplicateDeliveryIsIgnored(t *testing.T) {
	svc, db, user := newTestService(t)
	payload := eventPayload(t, "evt_dup", "customer.subscription.created", subscriptionObject(user.ID, "active", time.Now().AddDate(0, 1, 0)))

	first, err := deliver(t, svc, payload)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	require.NoError(t, db.Model(&models.Subscription{}).Where("provider_subscription_id = ?", "sub_123").
		Update("status", models.SubscriptionStatusPaused).Error)

	second, err := deliver(t, svc, payload)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, models.SubscriptionStatusPaused, loadSubscription(t, db).Status)

	var event models.WebhookEvent
	require.NoError(t, db.Where("provider_event_id = ?", "evt_dup").First(&event).Error)
	assert.Equal(t, ProviderStripe, event.Provider)
	assert.Len(t, event.PayloadHash, 64)
	assert.NotNil(t, event.ProcessedAt)
}

func TestHandleWebhook_UnknownTypeIsAcknowledged(t *testing.T) {
	svc, db, _ := newTestService(t)
	out, err := deliver(t, svc, eventPayload(t, "evt_x", "customer.created", map[string]interface{}{"id": "cus_1"}))
	require.NoError(t, err)
	assert.False(t, out.Handled)

	var event models.WebhookEvent
	require.NoError(t, db.Where("provider_event_id = ?", "evt_x").First(&event).Error)
	assert.NotNil(t, event.ProcessedAt)
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, "Pro", normalizePlanName("  "))
	assert.Equal(t, "Enterprise", normalizePlanName("Enterprise"))
	assert.Equal(t, models.BillingIntervalYear, normalizeInterval("YEAR"))
	assert.Equal(t, "", normalizeInterval("week"))
	assert.Equal(t, models.SubscriptionStatusPastDue, normalizeStatus("past_due"))
	assert.Equal(t, models.SubscriptionStatusIncomplete, normalizeStatus("mystery"))
}
