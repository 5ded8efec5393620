package imageprocessor

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/CaptionFox/internal/pkg/cache"
)

// PhotoStageKeyFormat is the cache key of a photo's pipeline stage: photo:stage:<id>
const PhotoStageKeyFormat = "photo:stage:%d"

const stageTTL = 24 * time.Hour

// Stage is the last pipeline step a photo reached.
type Stage string

const (
	StageUploaded          Stage = "uploaded"
	StageMetadataPending   Stage = "metadata_pending"
	StageMetadataExtracted Stage = "metadata_extracted"
	StageMetadataFailed    Stage = "metadata_failed"
	StageCaptionsPending   Stage = "captions_pending"
	StageProcessed         Stage = "processed"
	StageVariantsPending   Stage = "variants_pending"
	StageVariantsDone      Stage = "variants_done"
	StageVariantsFailed    Stage = "variants_failed"
)

// Swappable for tests.
var (
	SetCacheImplementation = cache.Set
	GetCacheImplementation = cache.Get
)

// SetPhotoStage records the stage a photo reached.
func SetPhotoStage(photoID uint, stage Stage) error {
	return SetCacheImplementation(fmt.Sprintf(PhotoStageKeyFormat, photoID), string(stage), stageTTL)
}

// GetPhotoStage returns the cached stage, or "" when nothing is cached.
func GetPhotoStage(photoID uint) Stage {
	if photoID == 0 {
		return ""
	}
	v, err := GetCacheImplementation(fmt.Sprintf(PhotoStageKeyFormat, photoID))
	if err != nil {
		return ""
	}
	return Stage(v)
}

// StageFor reports the stage to show for a photo, falling back to what the
// database says when the cache has nothing.
func StageFor(photoID uint, processed bool) Stage {
	stage := GetPhotoStage(photoID)
	if processed && (stage == "" || !stage.afterProcessed()) {
		return StageProcessed
	}
	if stage == "" {
		return StageUploaded
	}
	return stage
}

func (s Stage) afterProcessed() bool {
	switch s {
	case StageProcessed, StageVariantsPending, StageVariantsDone, StageVariantsFailed:
		return true
	}
	return false
}
