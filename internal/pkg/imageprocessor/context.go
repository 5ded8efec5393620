package imageprocessor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/CaptionFox/app/models"
)

// GenerateContext summarises metadata as prose for the caption prompt.
// Empty metadata yields "".
func GenerateContext(md models.Metadata) string {
	var parts []string

	if iphone, ok := md.String("iphone_model"); ok {
		parts = append(parts, "Shot on "+iphone)
		if ios, ok := md.String("ios_version"); ok {
			parts = append(parts, "iOS "+ios)
		}
	} else if cameraMake, ok := md.String("camera_make"); ok {
		if model, ok := md.String("camera_model"); ok {
			parts = append(parts, fmt.Sprintf("Photo taken with %s %s", cameraMake, model))
		}
	}

	if lens, ok := md.String("lens_model"); ok {
		parts = append(parts, fmt.Sprintf("Using %s lens", lens))
	}

	var settings []string
	if iso, ok := md.Int("iso"); ok {
		settings = append(settings, fmt.Sprintf("ISO %d", iso))
	}
	if aperture, ok := md.Float("aperture"); ok {
		settings = append(settings, "f/"+formatNumber(aperture))
	}
	if shutter, ok := md.String("shutter_speed"); ok {
		settings = append(settings, shutter+"s")
	}
	if focal, ok := md.Float("focal_length"); ok {
		settings = append(settings, formatNumber(focal)+"mm")
	}
	if focal35, ok := md.Int("focal_length_35mm"); ok {
		settings = append(settings, fmt.Sprintf("%dmm equivalent", focal35))
	}
	if len(settings) > 0 {
		parts = append(parts, "Camera settings: "+strings.Join(settings, ", "))
	}

	var shooting []string
	if flash, ok := md.String("flash_mode"); ok {
		shooting = append(shooting, flash)
	}
	if mode, ok := md.String("exposure_mode"); ok {
		shooting = append(shooting, mode+" mode")
	}
	if wb, ok := md.String("white_balance"); ok {
		shooting = append(shooting, wb+" white balance")
	}
	if len(shooting) > 0 {
		parts = append(parts, "Shooting details: "+strings.Join(shooting, ", "))
	}

	if orientation, ok := md.String("orientation_type"); ok {
		parts = append(parts, strings.ToUpper(orientation[:1])+orientation[1:]+" orientation")
	}

	width, okW := md.Int("width")
	height, okH := md.Int("height")
	if okW && okH {
		megapixels := round(float64(width*height)/1_000_000, 1)
		parts = append(parts, fmt.Sprintf("%d×%d resolution (%sMP)", width, height, formatNumber(megapixels)))
	}

	if raw, ok := md.String("date_taken_original"); ok {
		if taken, err := time.Parse(time.RFC3339, raw); err == nil {
			parts = append(parts, fmt.Sprintf("Taken in the %s on %s", timeOfDay(taken.Hour()), taken.Format("January 02, 2006")))
		}
	}

	if md.Bool("has_location") {
		var location []string
		if ctx, ok := md.String("location_context"); ok {
			location = append(location, ctx)
		}
		if alt, ok := md.String("altitude_display"); ok {
			location = append(location, alt)
		}
		if md.Bool("likely_indoor") {
			location = append(location, "likely indoors")
		} else if alt, ok := md.Float("gps_altitude"); ok && alt > 100 {
			location = append(location, "elevated location")
		}
		if md.Bool("likely_in_motion") {
			speed, _ := md.String("movement_speed")
			location = append(location, fmt.Sprintf("taken while moving (%s)", speed))
		}
		if len(location) > 0 {
			parts = append(parts, "Location: "+strings.Join(location, ", "))
		} else {
			parts = append(parts, "Location data available")
		}
	}

	if zoom, ok := md.Float("digital_zoom_ratio"); ok && zoom > 1 {
		parts = append(parts, fmt.Sprintf("Image quality: %sx digital zoom used", formatNumber(zoom)))
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ". ") + "."
}

func timeOfDay(hour int) string {
	switch {
	case hour >= 5 && hour <= 11:
		return "morning"
	case hour >= 12 && hour <= 17:
		return "afternoon"
	case hour >= 18 && hour <= 21:
		return "evening"
	default:
		return "night"
	}
}

// formatNumber prints 1.8 as "1.8" and 4.0 as "4".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
