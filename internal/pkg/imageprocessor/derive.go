package imageprocessor

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ManuelReschke/CaptionFox/app/models"
)

// walkingSpeedKmh is the speed above which a photo counts as taken in motion.
const walkingSpeedKmh = 5.0

type region struct {
	name           string
	latMin, latMax float64
	lngMin, lngMax float64
}

// regions are matched in order; the first containing box wins.
var regions = []region{
	{"Continental United States", 24, 49, -125, -66},
	{"Canada", 49, 72, -141, -52},
	{"Europe", 36, 71, -25, 45},
	{"North America", 7, 72, -170, -50},
	{"South America", -56, 12, -82, -34},
}

// LocationContext names the coarse region a coordinate falls in.
func LocationContext(lat, lng float64) string {
	for _, r := range regions {
		if lat >= r.latMin && lat <= r.latMax && lng >= r.lngMin && lng <= r.lngMax {
			return r.name
		}
	}
	return "Unknown region"
}

// FlashMode decodes the fired/return bits of the EXIF flash field.
func FlashMode(v int) string {
	switch v & 0x07 {
	case 0:
		return "No Flash"
	case 1:
		return "Flash Fired"
	case 5:
		return "Flash Fired, Return not detected"
	case 7:
		return "Flash Fired, Return detected"
	default:
		return fmt.Sprintf("Flash Mode %d", v)
	}
}

// OrientationType buckets a width/height ratio.
func OrientationType(width, height int) string {
	ratio := float64(width) / float64(height)
	switch {
	case ratio <= 0.8:
		return "portrait"
	case ratio <= 1.2:
		return "square"
	default:
		return "landscape"
	}
}

// likelyIndoor is a barometric heuristic: phones report a finely resolved
// altitude indoors, and the value stays in a plausible building range.
func likelyIndoor(altitude float64) bool {
	s := strconv.FormatFloat(altitude, 'f', -1, 64)
	decimals := 0
	if i := strings.IndexByte(s, '.'); i >= 0 {
		decimals = len(s) - i - 1
	}
	return decimals > 1 && altitude >= -100 && altitude <= 2000
}

func addDerivedFields(md models.Metadata) {
	width, okW := md.Int("width")
	height, okH := md.Int("height")
	if okW && okH && height > 0 {
		md["aspect_ratio"] = round(float64(width)/float64(height), 2)
		md["orientation_type"] = OrientationType(width, height)
	}

	lat, okLat := md.Float("gps_latitude")
	lng, okLng := md.Float("gps_longitude")
	if !okLat || !okLng {
		return
	}
	md["has_location"] = true
	md["gps_coordinates"] = fmt.Sprintf("%.6f, %.6f", lat, lng)
	md["location_context"] = LocationContext(lat, lng)

	if alt, ok := md.Float("gps_altitude"); ok {
		md["altitude_display"] = fmt.Sprintf("%.0fm (%.0fft)", math.Round(alt), math.Round(alt*3.28084))
		md["likely_indoor"] = likelyIndoor(alt)
	}
	if speed, ok := md.Float("gps_speed"); ok && speed > 0 {
		kmh := speed * 3.6
		md["movement_speed"] = fmt.Sprintf("%.1f km/h", kmh)
		md["likely_in_motion"] = kmh > walkingSpeedKmh
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
