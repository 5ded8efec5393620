package repository

import (
	"time"

	"github.com/ManuelReschke/CaptionFox/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error

	// ResetMonthlyUsage zeroes both monthly counters when the stored reset
	// predates monthStart. It reports whether a reset happened.
	ResetMonthlyUsage(id uint, monthStart, now time.Time) (bool, error)
	// ResetDailyUsage zeroes the daily upload counter when the stored reset
	// predates dayStart.
	ResetDailyUsage(id uint, dayStart, now time.Time) (bool, error)
	// LockForUpdate serialises quota checks for the user within a transaction.
	LockForUpdate(id uint) error
	// IncrementColumn adds delta to an integer usage column in a single statement.
	IncrementColumn(id uint, column string, delta int) error
	RecordWarning(id uint, level int, sentAt time.Time, violation bool) error
}

// PhotoRepository defines the interface for photo-related database operations
type PhotoRepository interface {
	Create(photo *models.Photo) error
	GetByID(id uint) (*models.Photo, error)
	GetByIDForUser(id, userID uint) (*models.Photo, error)
	GetWithCaptionsAndVariants(id, userID uint) (*models.Photo, error)
	MergeMetadata(id uint, metadata models.Metadata) error
	// MarkProcessed flips processed to true once; it reports whether this call did the flip.
	MarkProcessed(id uint) (bool, error)
	MarkProcessingStarted(id uint, at time.Time) error
	FindStale(startedBefore time.Time, limit int) ([]models.Photo, error)
	CountByUserID(userID uint) (int64, error)
	Delete(id uint) error
}

// CaptionRepository is append-only.
type CaptionRepository interface {
	Create(caption *models.Caption) error
	ListByPhotoID(photoID uint) ([]models.Caption, error)
	CountByPhotoID(photoID uint) (int64, error)
	CountByUserID(userID uint) (int64, error)
}

// VariantRepository defines the interface for photo variant records
type VariantRepository interface {
	Create(variant *models.PhotoVariant) error
	ListByPhotoID(photoID uint) ([]models.PhotoVariant, error)
	CountByPhotoID(photoID uint) (int64, error)
}

// SubscriptionRepository is the read side of subscriptions used for tier resolution.
type SubscriptionRepository interface {
	GetByProviderID(providerSubscriptionID string) (*models.Subscription, error)
	GetActiveForUser(userID uint, now time.Time) (*models.Subscription, error)
	ListByUser(userID uint) ([]models.Subscription, error)
}

// QueueRepository exposes raw queue sizes for the admin endpoint
type QueueRepository interface {
	GetListLength(key string) (int64, error)
	GetSortedSetLength(key string) (int64, error)
	GetHash(key string) (map[string]string, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	Photo        PhotoRepository
	Caption      CaptionRepository
	Variant      VariantRepository
	Subscription SubscriptionRepository
	Queue        QueueRepository

	db *gorm.DB
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Photo:        NewPhotoRepository(db),
		Caption:      NewCaptionRepository(db),
		Variant:      NewVariantRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Queue:        NewQueueRepository(),
		db:           db,
	}
}

// Transaction runs fn with repositories bound to a single database
// transaction. The transaction commits when fn returns nil.
func (r *Repositories) Transaction(fn func(tx *Repositories) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
