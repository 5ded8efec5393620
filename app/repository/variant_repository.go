package repository

import (
	"github.com/ManuelReschke/CaptionFox/app/models"
	"gorm.io/gorm"
)

type variantRepository struct {
	db *gorm.DB
}

// NewVariantRepository creates a new variant repository instance
func NewVariantRepository(db *gorm.DB) VariantRepository {
	return &variantRepository{db: db}
}

func (r *variantRepository) Create(variant *models.PhotoVariant) error {
	return r.db.Create(variant).Error
}

func (r *variantRepository) ListByPhotoID(photoID uint) ([]models.PhotoVariant, error) {
	var variants []models.PhotoVariant
	err := r.db.Where("photo_id = ?", photoID).Order("id ASC").Find(&variants).Error
	return variants, err
}

func (r *variantRepository) CountByPhotoID(photoID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.PhotoVariant{}).Where("photo_id = ?", photoID).Count(&count).Error
	return count, err
}
