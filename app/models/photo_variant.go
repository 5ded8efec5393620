package models

import "time"

// Social variant names
const (
	VariantInstagramSquare    = "instagram_square"
	VariantInstagramPortrait  = "instagram_portrait"
	VariantInstagramLandscape = "instagram_landscape"
	VariantFacebook           = "facebook"
	VariantWebHQ              = "web_hq"
)

type PhotoVariant struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PhotoID    uint      `gorm:"not null;uniqueIndex:ux_photo_variants_photo_name,priority:1" json:"photo_id"`
	Name       string    `gorm:"type:varchar(50);not null;uniqueIndex:ux_photo_variants_photo_name,priority:2" json:"name"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	ByteSize   int64     `gorm:"not null" json:"byte_size"`
	StorageKey string    `gorm:"type:varchar(255);not null" json:"storage_key"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for the PhotoVariant model
func (PhotoVariant) TableName() string {
	return "photo_variants"
}
