package upload

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encoded(t *testing.T, format string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	switch format {
	case "png":
		require.NoError(t, png.Encode(&buf, img))
	default:
		require.NoError(t, jpeg.Encode(&buf, img, nil))
	}
	return buf.Bytes()
}

// heicHead is the ftyp box of an iPhone HEIC file.
var heicHead = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'h', 'e', 'i', 'c',
	0x00, 0x00, 0x00, 0x00, 'm', 'i', 'f', '1', 'h', 'e', 'i', 'c',
}

func TestValidateImageBySniff(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		head     []byte
		want     string
		wantErr  bool
	}{
		{"jpeg", "legs.jpg", encoded(t, "jpeg"), "image/jpeg", false},
		{"uppercase extension", "LEGS.JPEG", encoded(t, "jpeg"), "image/jpeg", false},
		{"png", "squat.png", encoded(t, "png"), "image/png", false},
		{"heic", "IMG_0001.HEIC", heicHead, "image/heic", false},
		{"gif extension refused", "anim.gif", []byte("GIF89a"), "", true},
		{"html disguised as jpeg", "legs.jpg", []byte("<!DOCTYPE html><html><script>alert(1)</script>"), "", true},
		{"svg refused", "logo.png", []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`), "", true},
		{"no extension", "legs", encoded(t, "jpeg"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateImageBySniff(tt.filename, tt.head)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateForm(t *testing.T) {
	assert.NoError(t, ValidateForm(Form{Title: "Leg Day", Filename: "legs.jpg", Size: 1024}))
	assert.ErrorIs(t, ValidateForm(Form{Filename: "legs.jpg", Size: MaxFileSize + 1}), ErrTooLarge)
	assert.ErrorIs(t, ValidateForm(Form{Filename: "legs.jpg", Size: 0}), ErrInvalidForm)
	assert.ErrorIs(t, ValidateForm(Form{Size: 10}), ErrInvalidForm)
	assert.ErrorIs(t, ValidateForm(Form{Title: strings.Repeat("x", 256), Filename: "legs.jpg", Size: 10}), ErrInvalidForm)
}
