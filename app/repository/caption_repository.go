package repository

import (
	"github.com/ManuelReschke/CaptionFox/app/models"
	"gorm.io/gorm"
)

type captionRepository struct {
	db *gorm.DB
}

// NewCaptionRepository creates a new caption repository instance
func NewCaptionRepository(db *gorm.DB) CaptionRepository {
	return &captionRepository{db: db}
}

func (r *captionRepository) Create(caption *models.Caption) error {
	return r.db.Create(caption).Error
}

func (r *captionRepository) ListByPhotoID(photoID uint) ([]models.Caption, error) {
	var captions []models.Caption
	err := r.db.Where("photo_id = ?", photoID).Order("generated_at ASC").Find(&captions).Error
	return captions, err
}

func (r *captionRepository) CountByPhotoID(photoID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Caption{}).Where("photo_id = ?", photoID).Count(&count).Error
	return count, err
}

// CountByUserID counts captions across all photos owned by the user
func (r *captionRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Caption{}).
		Joins("JOIN photos ON photos.id = captions.photo_id").
		Where("photos.user_id = ?", userID).
		Count(&count).Error
	return count, err
}
