package billing

import (
	"errors"
	"time"

	"github.com/ManuelReschke/CaptionFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	UserExists(userID uint) (bool, error)
	GetSubscription(providerSubscriptionID string) (*models.Subscription, error)
	UpsertSubscription(sub *models.Subscription) error
	UpdateSubscriptionStatus(id uint, status string) error
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, error)
	MarkWebhookProcessed(id uint, at time.Time, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) UserExists(userID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error
	return count > 0, err
}

// GetSubscription returns nil without an error when no row matches.
func (r *gormRepository) GetSubscription(providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("provider_subscription_id = ?", providerSubscriptionID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpsertSubscription keys on the provider subscription id. The local primary
// key is cleared so an update never collides on it.
func (r *gormRepository) UpsertSubscription(sub *models.Subscription) error {
	row := *sub
	row.ID = 0
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"provider_customer_id",
			"status",
			"current_period_start",
			"current_period_end",
			"trial_end",
			"amount",
			"interval",
			"plan_name",
			"updated_at",
		}),
	}).Create(&row).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("provider_subscription_id = ?", sub.ProviderSubscriptionID).First(sub).Error
}

func (r *gormRepository) UpdateSubscriptionStatus(id uint, status string) error {
	return r.db.Model(&models.Subscription{}).Where("id = ?", id).Update("status", status).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected > 0 {
		return true, nil
	}
	return false, r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(event).Error
}

func (r *gormRepository) MarkWebhookProcessed(id uint, at time.Time, processingError string) error {
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed_at":     at,
		"processing_error": processingError,
	}).Error
}
