package models

import "time"

// CaptionStyle is the tone a caption was generated in.
type CaptionStyle string

const (
	StyleMotivational CaptionStyle = "motivational"
	StyleEducational  CaptionStyle = "educational"
	StyleFriendly     CaptionStyle = "friendly"
	StyleProfessional CaptionStyle = "professional"
	StyleInspiring    CaptionStyle = "inspiring"
)

// AllCaptionStyles lists every style in display order.
var AllCaptionStyles = []CaptionStyle{
	StyleMotivational,
	StyleEducational,
	StyleFriendly,
	StyleProfessional,
	StyleInspiring,
}

func (s CaptionStyle) Valid() bool {
	for _, known := range AllCaptionStyles {
		if s == known {
			return true
		}
	}
	return false
}

// Caption is append-only; rows are never updated after creation. A photo has
// at most one caption per style.
type Caption struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	PhotoID     uint         `gorm:"not null;uniqueIndex:ux_captions_photo_style,priority:1" json:"photo_id"`
	Content     string       `gorm:"type:text;not null" json:"content"`
	Style       CaptionStyle `gorm:"type:varchar(32);not null;index;uniqueIndex:ux_captions_photo_style,priority:2" json:"style"`
	GeneratedAt time.Time    `gorm:"not null" json:"generated_at"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
}
