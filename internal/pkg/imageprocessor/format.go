package imageprocessor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Format is a normalized image format name.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatHEIC    Format = "heic"
	FormatHEIF    Format = "heif"
	FormatGIF     Format = "gif"
	FormatUnknown Format = "unknown"
)

// IsHEIF reports whether the format needs conversion before it can be decoded.
func (f Format) IsHEIF() bool {
	return f == FormatHEIC || f == FormatHEIF
}

var extensionFormats = map[string]Format{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".webp": FormatWebP,
	".heic": FormatHEIC,
	".heif": FormatHEIF,
	".gif":  FormatGIF,
}

var mimeFormats = map[string]Format{
	"image/jpeg": FormatJPEG,
	"image/png":  FormatPNG,
	"image/webp": FormatWebP,
	"image/heic": FormatHEIC,
	"image/heif": FormatHEIF,
	"image/gif":  FormatGIF,
	// heic sequences are still decodable as a single image
	"image/heic-sequence": FormatHEIC,
	"image/heif-sequence": FormatHEIF,
}

// DetectFormat resolves the format from the filename extension and falls back
// to sniffing the file content at path.
func DetectFormat(filename, path string) (Format, error) {
	if f, ok := extensionFormats[strings.ToLower(filepath.Ext(filename))]; ok {
		return f, nil
	}
	if path == "" {
		return FormatUnknown, nil
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("sniff %s: %w", path, err)
	}
	return FormatForMIME(mtype.String()), nil
}

// FormatForMIME maps a MIME type to a Format.
func FormatForMIME(mime string) Format {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if f, ok := mimeFormats[strings.TrimSpace(strings.ToLower(mime))]; ok {
		return f
	}
	return FormatUnknown
}
