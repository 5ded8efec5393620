package models

import (
	"time"

	"gorm.io/gorm"
)

// Metadata keys written when extraction could not complete.
const (
	MetadataExtractionError     = "extraction_error"
	MetadataExtractionAttempted = "extraction_attempted_at"
)

type Photo struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	UserID              uint           `gorm:"index;not null" json:"user_id"`
	User                User           `gorm:"foreignKey:UserID" json:"-"`
	Title               string         `gorm:"type:varchar(255)" json:"title"`
	Description         string         `gorm:"type:text" json:"description"`
	OriginalFilename    string         `gorm:"type:varchar(255);not null" json:"original_filename"`
	ContentType         string         `gorm:"type:varchar(100);not null" json:"content_type"`
	ByteSize            int64          `gorm:"not null" json:"byte_size"`
	StorageKey          string         `gorm:"type:varchar(255);not null" json:"-"`
	Processed           bool           `gorm:"not null;default:false;index" json:"processed"`
	ProcessingStartedAt *time.Time     `gorm:"default:null;index" json:"processing_started_at,omitempty"`
	Metadata            Metadata       `gorm:"type:text" json:"metadata"`
	Captions            []Caption      `gorm:"foreignKey:PhotoID;constraint:OnDelete:CASCADE" json:"captions,omitempty"`
	Variants            []PhotoVariant `gorm:"foreignKey:PhotoID;constraint:OnDelete:CASCADE" json:"variants,omitempty"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsStale reports whether the photo has been waiting for processing longer than after.
func (p *Photo) IsStale(now time.Time, after time.Duration) bool {
	if p.Processed {
		return false
	}
	started := p.CreatedAt
	if p.ProcessingStartedAt != nil {
		started = *p.ProcessingStartedAt
	}
	return now.Sub(started) > after
}

// HasExtractionError reports whether metadata extraction was recorded as failed.
func (p *Photo) HasExtractionError() bool {
	return p.Metadata.Has(MetadataExtractionError)
}

func FindPhotoByID(db *gorm.DB, id uint) (*Photo, error) {
	var photo Photo
	if err := db.First(&photo, id).Error; err != nil {
		return nil, err
	}
	return &photo, nil
}
