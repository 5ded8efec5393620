package repository

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/CaptionFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Columns that may be incremented through IncrementColumn.
var incrementableColumns = map[string]bool{
	"current_month_photos":   true,
	"current_month_captions": true,
	"daily_photos_uploaded":  true,
}

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	return models.FindUserByID(r.db, id)
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update saves all fields of the user
func (r *userRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

func (r *userRepository) ResetMonthlyUsage(id uint, monthStart, now time.Time) (bool, error) {
	tx := r.db.Model(&models.User{}).
		Where("id = ? AND (last_usage_reset IS NULL OR last_usage_reset < ?)", id, monthStart).
		Updates(map[string]interface{}{
			"current_month_photos":   0,
			"current_month_captions": 0,
			"last_usage_reset":       now,
		})
	return tx.RowsAffected > 0, tx.Error
}

func (r *userRepository) ResetDailyUsage(id uint, dayStart, now time.Time) (bool, error) {
	tx := r.db.Model(&models.User{}).
		Where("id = ? AND (last_daily_reset IS NULL OR last_daily_reset < ?)", id, dayStart).
		Updates(map[string]interface{}{
			"daily_photos_uploaded": 0,
			"last_daily_reset":      now,
		})
	return tx.RowsAffected > 0, tx.Error
}

// LockForUpdate takes a row lock on the user until the surrounding
// transaction ends. SQLite has no row locks and serialises writers instead.
func (r *userRepository) LockForUpdate(id uint) error {
	var user models.User
	return r.db.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&user, id).Error
}

func (r *userRepository) IncrementColumn(id uint, column string, delta int) error {
	if !incrementableColumns[column] {
		return fmt.Errorf("column %q is not a usage counter", column)
	}
	return r.db.Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", delta)).Error
}

func (r *userRepository) RecordWarning(id uint, level int, sentAt time.Time, violation bool) error {
	updates := map[string]interface{}{
		"usage_warnings_sent":  gorm.Expr("usage_warnings_sent + 1"),
		"last_warning_sent_at": sentAt,
		"last_warning_level":   level,
	}
	if violation {
		updates["fair_use_violations"] = gorm.Expr("fair_use_violations + 1")
	}
	return r.db.Model(&models.User{}).Where("id = ?", id).UpdateColumns(updates).Error
}
