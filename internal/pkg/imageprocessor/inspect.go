package imageprocessor

import (
	"fmt"
	"os"

	"github.com/ManuelReschke/CaptionFox/app/models"
)

// Inspection is the result of looking at one uploaded image. It owns the
// normalized file; callers must Release it.
type Inspection struct {
	Format     Format
	Normalized *ScopedFile
	Metadata   models.Metadata
}

// NormalizedFormat is the format of Normalized.Path.
func (i *Inspection) NormalizedFormat() Format {
	if i.Normalized.Owned() {
		return FormatJPEG
	}
	return i.Format
}

func (i *Inspection) Release() {
	if i != nil {
		i.Normalized.Release()
	}
}

// Inspect detects the format, converts HEIC/HEIF to JPEG and extracts
// metadata. Conversion and decode problems end up in Metadata; the error is
// reserved for a source that cannot be read at all.
func Inspect(path, filename string) (*Inspection, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("inspect %s: %w", filename, err)
	}

	md := models.Metadata{}
	format, err := DetectFormat(filename, path)
	if err != nil {
		return &Inspection{Format: FormatUnknown, Normalized: Borrow(path), Metadata: recordFailure(md, err)}, nil
	}
	if format != FormatUnknown {
		md["original_format"] = string(format)
	}

	normalized, err := Normalize(path, format)
	if err != nil {
		// Keep whatever EXIF is readable from the original.
		if fields, exifErr := readExif(path, format); exifErr == nil {
			for k, v := range fields {
				md[k] = v
			}
		}
		return &Inspection{Format: format, Normalized: Borrow(path), Metadata: recordFailure(md, err)}, nil
	}

	extractInto(md, path, filename, format, normalized)
	return &Inspection{Format: format, Normalized: normalized, Metadata: md}, nil
}
