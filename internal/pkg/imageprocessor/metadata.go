package imageprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/jdeng/goheif"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/ManuelReschke/CaptionFox/app/models"
)

func init() {
	// Register Nikon and Canon maker notes
	exif.RegisterParsers(mknote.All...)
}

const exifTimeLayout = "2006:01:02 15:04:05"

// ExtractMetadata collects EXIF, raster and derived fields for the image at
// path. It never fails: problems are recorded under extraction_error next to
// whatever could be read.
func ExtractMetadata(path, filename string) models.Metadata {
	insp, err := Inspect(path, filename)
	if err != nil {
		return recordFailure(models.Metadata{}, err)
	}
	defer insp.Release()
	return insp.Metadata
}

func extractInto(md models.Metadata, path, filename string, format Format, normalized *ScopedFile) {
	if fields, err := readExif(path, format); err != nil {
		log.Debugf("[ImageProcessor] No EXIF data for %s: %v", filename, err)
	} else {
		for k, v := range fields {
			md[k] = v
		}
	}

	rasterFormat := format
	if normalized.Owned() {
		rasterFormat = FormatJPEG
	}
	if err := readRaster(md, path, normalized.Path, rasterFormat); err != nil {
		recordFailure(md, err)
		return
	}
	addDerivedFields(md)
}

func recordFailure(md models.Metadata, err error) models.Metadata {
	log.Warnf("[ImageProcessor] Metadata extraction failed: %v", err)
	md[models.MetadataExtractionError] = err.Error()
	md[models.MetadataExtractionAttempted] = time.Now().UTC().Format(time.RFC3339)
	return md
}

func readRaster(md models.Metadata, originalPath, decodePath string, format Format) error {
	info, err := os.Stat(originalPath)
	if err != nil {
		return fmt.Errorf("stat image: %w", err)
	}

	var width, height int
	if format == FormatWebP {
		img, err := loadImage(decodePath, format)
		if err != nil {
			return err
		}
		width, height = img.Bounds().Dx(), img.Bounds().Dy()
	} else {
		f, err := os.Open(decodePath)
		if err != nil {
			return fmt.Errorf("open image: %w", err)
		}
		defer f.Close()
		cfg, _, err := image.DecodeConfig(f)
		if err != nil {
			return fmt.Errorf("decode image header: %w", err)
		}
		width, height = cfg.Width, cfg.Height
	}

	md["width"] = width
	md["height"] = height
	md["format"] = string(format)
	md["file_size"] = info.Size()
	return nil
}

func readExif(path string, format Format) (map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var x *exif.Exif
	switch {
	case format.IsHEIF():
		raw, err := goheif.ExtractExif(f)
		if err != nil {
			return nil, fmt.Errorf("extract heic exif: %w", err)
		}
		tiffData, err := tiffPayload(raw)
		if err != nil {
			return nil, err
		}
		x, err = exif.Decode(bytes.NewReader(tiffData))
		if err != nil && x == nil {
			return nil, err
		}
	case format == FormatJPEG:
		x, err = exif.Decode(f)
		if err != nil && x == nil {
			return nil, err
		}
	default:
		return nil, errors.New("format carries no EXIF we read")
	}
	return exifFields(x), nil
}

// tiffPayload locates the TIFF header inside a raw EXIF block. HEIC files
// prefix it with an offset and usually an "Exif\0\0" marker.
func tiffPayload(raw []byte) ([]byte, error) {
	for _, marker := range [][]byte{[]byte("II*\x00"), []byte("MM\x00*")} {
		if i := bytes.Index(raw, marker); i >= 0 {
			return raw[i:], nil
		}
	}
	return nil, errors.New("no TIFF header in EXIF block")
}

func exifFields(x *exif.Exif) map[string]interface{} {
	fields := map[string]interface{}{}

	setString := func(key string, name exif.FieldName) (string, bool) {
		s, ok := exifString(x, name)
		if ok {
			fields[key] = s
		}
		return s, ok
	}

	cameraMake, _ := setString("camera_make", exif.Make)
	model, hasModel := setString("camera_model", exif.Model)
	setString("lens_model", exif.LensModel)
	setString("lens_make", exif.LensMake)
	software, hasSoftware := setString("software", exif.Software)
	setString("artist", exif.Artist)
	setString("copyright", exif.Copyright)

	if v, ok := exifInt(x, exif.ISOSpeedRatings); ok {
		fields["iso"] = v
	}
	if v, ok := exifFloat(x, exif.FNumber); ok {
		fields["aperture"] = round(v, 1)
	}
	if v, ok := exifRatString(x, exif.ExposureTime); ok {
		fields["shutter_speed"] = v
	}
	if v, ok := exifFloat(x, exif.FocalLength); ok {
		fields["focal_length"] = round(v, 2)
	}
	if v, ok := exifInt(x, exif.FocalLengthIn35mmFilm); ok {
		fields["focal_length_35mm"] = v
	}
	if v, ok := exifFloat(x, exif.ExposureBiasValue); ok {
		fields["exposure_bias"] = round(v, 2)
	}
	if v, ok := exifInt(x, exif.ExposureMode); ok {
		fields["exposure_mode"] = exposureModeName(v)
	}
	if v, ok := exifInt(x, exif.ExposureProgram); ok {
		fields["exposure_program"] = v
	}
	if v, ok := exifInt(x, exif.MeteringMode); ok {
		fields["metering_mode"] = v
	}
	if v, ok := exifInt(x, exif.WhiteBalance); ok {
		fields["white_balance"] = whiteBalanceName(v)
	}
	if v, ok := exifInt(x, exif.Flash); ok {
		fields["flash"] = v
		fields["flash_mode"] = FlashMode(v)
	}
	if v, ok := exifInt(x, exif.Orientation); ok {
		fields["orientation"] = v
	}
	if v, ok := exifFloat(x, exif.DigitalZoomRatio); ok && v > 0 {
		fields["digital_zoom_ratio"] = round(v, 2)
	}

	if t, ok := exifTime(x, exif.DateTime); ok {
		fields["date_taken"] = t
	}
	if t, ok := exifTime(x, exif.DateTimeOriginal); ok {
		fields["date_taken_original"] = t
	}

	if lat, lng, err := x.LatLong(); err == nil {
		fields["gps_latitude"] = lat
		fields["gps_longitude"] = lng
		if alt, ok := exifFloat(x, exif.GPSAltitude); ok {
			if ref, ok := exifInt(x, exif.GPSAltitudeRef); ok && ref == 1 {
				alt = -alt
			}
			fields["gps_altitude"] = alt
		}
		if speed, ok := exifFloat(x, exif.GPSSpeed); ok {
			ref, _ := exifString(x, exif.GPSSpeedRef)
			fields["gps_speed"] = speedMetersPerSecond(speed, ref)
		}
	}

	if strings.Contains(strings.ToLower(cameraMake), "apple") {
		fields["device_make"] = cameraMake
	}
	if hasModel && strings.Contains(strings.ToLower(model), "iphone") {
		fields["iphone_model"] = model
		if hasSoftware {
			fields["ios_version"] = software
		}
	}
	return fields
}

func exifTag(x *exif.Exif, name exif.FieldName) *tiff.Tag {
	tag, err := x.Get(name)
	if err != nil || tag == nil || tag.Count == 0 {
		return nil
	}
	return tag
}

func exifString(x *exif.Exif, name exif.FieldName) (string, bool) {
	tag := exifTag(x, name)
	if tag == nil {
		return "", false
	}
	s, err := tag.StringVal()
	if err != nil {
		s = strings.Trim(tag.String(), `"`)
	}
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	return s, s != ""
}

func exifInt(x *exif.Exif, name exif.FieldName) (int, bool) {
	tag := exifTag(x, name)
	if tag == nil {
		return 0, false
	}
	if v, err := tag.Int(0); err == nil {
		return v, true
	}
	if f, ok := tagFloat(tag); ok {
		return int(f), true
	}
	return 0, false
}

func exifFloat(x *exif.Exif, name exif.FieldName) (float64, bool) {
	tag := exifTag(x, name)
	if tag == nil {
		return 0, false
	}
	return tagFloat(tag)
}

func tagFloat(tag *tiff.Tag) (float64, bool) {
	switch tag.Format() {
	case tiff.RatVal:
		num, den, err := tag.Rat2(0)
		if err != nil || den == 0 {
			return 0, false
		}
		return float64(num) / float64(den), true
	case tiff.IntVal:
		v, err := tag.Int64(0)
		return float64(v), err == nil
	case tiff.FloatVal:
		v, err := tag.Float(0)
		return v, err == nil
	}
	return 0, false
}

// exifRatString renders a rational such as an exposure time as "1/250".
func exifRatString(x *exif.Exif, name exif.FieldName) (string, bool) {
	tag := exifTag(x, name)
	if tag == nil || tag.Format() != tiff.RatVal {
		return "", false
	}
	r, err := tag.Rat(0)
	if err != nil {
		return "", false
	}
	if r.IsInt() {
		return r.Num().String(), true
	}
	return r.RatString(), true
}

func exifTime(x *exif.Exif, name exif.FieldName) (string, bool) {
	s, ok := exifString(x, name)
	if !ok {
		return "", false
	}
	t, err := time.Parse(exifTimeLayout, s)
	if err != nil {
		return "", false
	}
	return t.Format(time.RFC3339), true
}

func speedMetersPerSecond(v float64, ref string) float64 {
	switch strings.ToUpper(ref) {
	case "M":
		return v * 0.44704
	case "N":
		return v * 0.514444
	default: // K, km/h
		return v / 3.6
	}
}

func exposureModeName(v int) string {
	switch v {
	case 0:
		return "Auto"
	case 1:
		return "Manual"
	case 2:
		return "Auto bracket"
	default:
		return fmt.Sprintf("Mode %d", v)
	}
}

func whiteBalanceName(v int) string {
	if v == 1 {
		return "Manual"
	}
	return "Auto"
}
