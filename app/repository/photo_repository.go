package repository

import (
	"time"

	"github.com/ManuelReschke/CaptionFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// photoRepository implements the PhotoRepository interface
type photoRepository struct {
	db *gorm.DB
}

// NewPhotoRepository creates a new photo repository instance
func NewPhotoRepository(db *gorm.DB) PhotoRepository {
	return &photoRepository{db: db}
}

// Create creates a new photo in the database
func (r *photoRepository) Create(photo *models.Photo) error {
	return r.db.Create(photo).Error
}

// GetByID retrieves a photo by its ID
func (r *photoRepository) GetByID(id uint) (*models.Photo, error) {
	return models.FindPhotoByID(r.db, id)
}

// GetByIDForUser retrieves a photo only when it belongs to the given user
func (r *photoRepository) GetByIDForUser(id, userID uint) (*models.Photo, error) {
	var photo models.Photo
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&photo).Error
	if err != nil {
		return nil, err
	}
	return &photo, nil
}

func (r *photoRepository) GetWithCaptionsAndVariants(id, userID uint) (*models.Photo, error) {
	var photo models.Photo
	err := r.db.Preload("Captions", func(db *gorm.DB) *gorm.DB {
		return db.Order("generated_at ASC")
	}).Preload("Variants").
		Where("id = ? AND user_id = ?", id, userID).First(&photo).Error
	if err != nil {
		return nil, err
	}
	return &photo, nil
}

// MergeMetadata merges keys into the stored metadata map inside a transaction
func (r *photoRepository) MergeMetadata(id uint, metadata models.Metadata) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var photo models.Photo
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "metadata").First(&photo, id).Error; err != nil {
			return err
		}
		merged := photo.Metadata.Merge(metadata)
		return tx.Model(&models.Photo{}).Where("id = ?", id).UpdateColumn("metadata", merged).Error
	})
}

func (r *photoRepository) MarkProcessed(id uint) (bool, error) {
	tx := r.db.Model(&models.Photo{}).
		Where("id = ? AND processed = ?", id, false).
		Updates(map[string]interface{}{"processed": true, "updated_at": time.Now()})
	return tx.RowsAffected > 0, tx.Error
}

func (r *photoRepository) MarkProcessingStarted(id uint, at time.Time) error {
	return r.db.Model(&models.Photo{}).Where("id = ?", id).UpdateColumn("processing_started_at", at).Error
}

// FindStale returns unprocessed photos whose processing started before the cutoff
func (r *photoRepository) FindStale(startedBefore time.Time, limit int) ([]models.Photo, error) {
	var photos []models.Photo
	err := r.db.
		Where("processed = ? AND processing_started_at IS NOT NULL AND processing_started_at < ?", false, startedBefore).
		Order("processing_started_at ASC").
		Limit(limit).
		Find(&photos).Error
	return photos, err
}

// CountByUserID counts all photos owned by a user
func (r *photoRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Photo{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// Delete removes a photo together with its captions and variant rows
func (r *photoRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("photo_id = ?", id).Delete(&models.Caption{}).Error; err != nil {
			return err
		}
		if err := tx.Where("photo_id = ?", id).Delete(&models.PhotoVariant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Photo{}, id).Error
	})
}
