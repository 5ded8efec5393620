package imageprocessor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CaptionFox/app/models"
	"github.com/ManuelReschke/CaptionFox/app/repository"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/storage"
)

// ResizeMode controls how a variant reaches its target box.
type ResizeMode string

const (
	// ModeCrop fills the box exactly, cropping around the centre.
	ModeCrop ResizeMode = "crop"
	// ModeFit scales up or down until the image fits the box.
	ModeFit ResizeMode = "fit"
	// ModeResize only shrinks images larger than the box.
	ModeResize ResizeMode = "resize"
)

// VariantSpec describes one social media rendition.
type VariantSpec struct {
	Name   string
	Width  int
	Height int
	Mode   ResizeMode
}

// SocialVariantSpecs are generated for every processed photo.
var SocialVariantSpecs = []VariantSpec{
	{models.VariantInstagramSquare, 1080, 1080, ModeCrop},
	{models.VariantInstagramPortrait, 1080, 1350, ModeFit},
	{models.VariantInstagramLandscape, 1080, 566, ModeFit},
	{models.VariantFacebook, 1200, 630, ModeFit},
	{models.VariantWebHQ, 1920, 1920, ModeResize},
}

// VariantInfo describes an encoded rendition.
type VariantInfo struct {
	Width    int
	Height   int
	ByteSize int64
}

func describe(img image.Image, path string) (VariantInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return VariantInfo{}, err
	}
	return VariantInfo{Width: img.Bounds().Dx(), Height: img.Bounds().Dy(), ByteSize: st.Size()}, nil
}

// CreateAIOptimized renders the image sent to the vision model: at most
// 1200px on the longest side, JPEG quality 85, no source metadata.
func CreateAIOptimized(src string, format Format) (*ScopedFile, VariantInfo, error) {
	img, err := loadImage(src, format)
	if err != nil {
		return nil, VariantInfo{}, fmt.Errorf("AI optimization failed: %w", err)
	}
	b := img.Bounds()
	if b.Dx() > AIOptimizedMaxSide || b.Dy() > AIOptimizedMaxSide {
		img = imaging.Fit(img, AIOptimizedMaxSide, AIOptimizedMaxSide, imaging.Lanczos)
	}

	out, err := saveJPEG(img, "ai-optimized-*.jpg", AIOptimizedQuality)
	if err != nil {
		return nil, VariantInfo{}, fmt.Errorf("AI optimization failed: %w", err)
	}
	info, err := describe(img, out.Path)
	if err != nil {
		out.Release()
		return nil, VariantInfo{}, err
	}
	return out, info, nil
}

// RenderVariant applies spec to img.
func RenderVariant(img image.Image, spec VariantSpec) image.Image {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	switch spec.Mode {
	case ModeCrop:
		return imaging.Fill(img, spec.Width, spec.Height, imaging.Center, imaging.Lanczos)
	case ModeFit:
		scale := math.Min(float64(spec.Width)/float64(w), float64(spec.Height)/float64(h))
		nw := int(math.Max(1, math.Round(float64(w)*scale)))
		nh := int(math.Max(1, math.Round(float64(h)*scale)))
		return imaging.Resize(img, nw, nh, imaging.Lanczos)
	default:
		if w <= spec.Width && h <= spec.Height {
			return img
		}
		return imaging.Fit(img, spec.Width, spec.Height, imaging.Lanczos)
	}
}

// GenerateSocialVariants renders, stores and records every social variant.
// Photos that already have variants are skipped. A failing variant does not
// stop the others; the returned error joins all failures.
func GenerateSocialVariants(ctx context.Context, photo *models.Photo, src string, format Format, store storage.Store, variants repository.VariantRepository) (int, error) {
	existing, err := variants.CountByPhotoID(photo.ID)
	if err != nil {
		return 0, fmt.Errorf("count variants for photo %d: %w", photo.ID, err)
	}
	if existing > 0 {
		log.Debugf("[ImageProcessor] Photo %d already has %d variants, skipping", photo.ID, existing)
		return 0, nil
	}

	img, err := loadImage(src, format)
	if err != nil {
		return 0, fmt.Errorf("variant source for photo %d: %w", photo.ID, err)
	}

	var errs []error
	created := 0
	for _, spec := range SocialVariantSpecs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := createVariant(ctx, photo, img, spec, store, variants); err != nil {
			log.Errorf("[ImageProcessor] Variant %s for photo %d failed: %v", spec.Name, photo.ID, err)
			errs = append(errs, fmt.Errorf("%s: %w", spec.Name, err))
			continue
		}
		created++
	}

	log.Infof("[ImageProcessor] Created %d/%d variants for photo %d", created, len(SocialVariantSpecs), photo.ID)
	return created, errors.Join(errs...)
}

func createVariant(ctx context.Context, photo *models.Photo, img image.Image, spec VariantSpec, store storage.Store, variants repository.VariantRepository) error {
	rendered := RenderVariant(img, spec)

	out, err := saveJPEG(rendered, "variant-*.jpg", SocialVariantQuality)
	if err != nil {
		return err
	}
	defer out.Release()

	info, err := describe(rendered, out.Path)
	if err != nil {
		return err
	}

	key := storage.VariantKey(photo.ID, spec.Name)
	if _, err := storage.PutFile(ctx, store, key, out.Path); err != nil {
		return err
	}

	return variants.Create(&models.PhotoVariant{
		PhotoID:    photo.ID,
		Name:       spec.Name,
		Width:      info.Width,
		Height:     info.Height,
		ByteSize:   info.ByteSize,
		StorageKey: key,
	})
}
