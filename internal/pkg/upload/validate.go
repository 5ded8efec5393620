package upload

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

// MaxFileSize is the largest accepted photo upload.
const MaxFileSize int64 = 10 << 20

// SniffLen is how many leading bytes ValidateImageBySniff needs.
const SniffLen = 3072

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("file too large")
	ErrInvalidForm     = errors.New("invalid upload form")
)

var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".heic": true,
	".heif": true,
}

var allowedMime = map[string]bool{
	"image/jpeg":          true,
	"image/png":           true,
	"image/webp":          true,
	"image/heic":          true,
	"image/heif":          true,
	"image/heic-sequence": true,
	"image/heif-sequence": true,
}

// Form is the validated shape of a photo upload.
type Form struct {
	Title       string `validate:"max=255"`
	Description string `validate:"max=2000"`
	Filename    string `validate:"required,max=255"`
	Size        int64  `validate:"gt=0"`
}

var validate = validator.New()

// ValidateForm checks the form fields and the size ceiling.
func ValidateForm(f Form) error {
	if f.Size > MaxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, f.Size, MaxFileSize)
	}
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed on %s", ErrInvalidForm, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}
	return nil
}

// ValidateImageBySniff checks the filename extension and the leading bytes
// against the allowlist. It returns the detected MIME type.
func ValidateImageBySniff(filename string, head []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", fmt.Errorf("%w: only JPG, PNG, WEBP, HEIC and HEIF are supported", ErrUnsupportedType)
	}

	detected := mimetype.Detect(head)
	for m := detected; m != nil; m = m.Parent() {
		if allowedMime[m.String()] {
			return m.String(), nil
		}
	}
	return "", fmt.Errorf("%w: content is %s", ErrUnsupportedType, detected.String())
}
