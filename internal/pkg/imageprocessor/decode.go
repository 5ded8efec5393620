package imageprocessor

import (
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	"github.com/jdeng/goheif"
	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/webp"
)

// loadImage decodes path into pixels, honouring the EXIF orientation for
// formats imaging understands.
func loadImage(path string, format Format) (image.Image, error) {
	switch {
	case format == FormatWebP:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		img, err := webp.Decode(f, &decoder.Options{})
		if err != nil {
			return nil, fmt.Errorf("decode webp: %w", err)
		}
		return img, nil
	case format.IsHEIF():
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		img, err := goheif.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("decode heic: %w", err)
		}
		return img, nil
	default:
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		return img, nil
	}
}

// saveJPEG writes img to an owned temp file at the given quality.
func saveJPEG(img image.Image, pattern string, quality int) (*ScopedFile, error) {
	out, err := NewTempFile(pattern)
	if err != nil {
		return nil, err
	}
	if err := imaging.Save(img, out.Path, imaging.JPEGQuality(quality)); err != nil {
		out.Release()
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return out, nil
}

// Normalize returns a path that imaging can decode directly. HEIC and HEIF
// inputs are converted to a JPEG at quality 90 in an owned temp file; any other
// input is borrowed as is.
func Normalize(path string, format Format) (*ScopedFile, error) {
	if !format.IsHEIF() {
		return Borrow(path), nil
	}
	img, err := loadImage(path, format)
	if err != nil {
		return nil, fmt.Errorf("HEIC conversion failed: %w", err)
	}
	out, err := saveJPEG(img, "converted-*.jpg", HEICConversionQuality)
	if err != nil {
		return nil, fmt.Errorf("HEIC conversion failed: %w", err)
	}
	return out, nil
}

// Encoding qualities.
const (
	HEICConversionQuality = 90
	AIOptimizedQuality    = 85
	SocialVariantQuality  = 92
	AIOptimizedMaxSide    = 1200
)
