package imageprocessor_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/CaptionFox/internal/pkg/imageprocessor"
)

func TestPhotoStage(t *testing.T) {
	originalGet := imageprocessor.GetCacheImplementation
	originalSet := imageprocessor.SetCacheImplementation
	t.Cleanup(func() {
		imageprocessor.GetCacheImplementation = originalGet
		imageprocessor.SetCacheImplementation = originalSet
	})

	store := map[string]string{}
	imageprocessor.SetCacheImplementation = func(key string, value interface{}, _ time.Duration) error {
		store[key] = fmt.Sprint(value)
		return nil
	}
	imageprocessor.GetCacheImplementation = func(key string) (string, error) {
		v, ok := store[key]
		if !ok {
			return "", fmt.Errorf("cache miss")
		}
		return v, nil
	}

	t.Run("round trip uses photo:stage key", func(t *testing.T) {
		assert.NoError(t, imageprocessor.SetPhotoStage(12, imageprocessor.StageCaptionsPending))
		assert.Equal(t, "captions_pending", store["photo:stage:12"])
		assert.Equal(t, imageprocessor.StageCaptionsPending, imageprocessor.GetPhotoStage(12))
	})

	t.Run("cache miss falls back to database state", func(t *testing.T) {
		assert.Equal(t, imageprocessor.StageUploaded, imageprocessor.StageFor(99, false))
		assert.Equal(t, imageprocessor.StageProcessed, imageprocessor.StageFor(99, true))
	})

	t.Run("processed wins over an earlier cached stage", func(t *testing.T) {
		assert.NoError(t, imageprocessor.SetPhotoStage(13, imageprocessor.StageMetadataFailed))
		assert.Equal(t, imageprocessor.StageProcessed, imageprocessor.StageFor(13, true))

		assert.NoError(t, imageprocessor.SetPhotoStage(13, imageprocessor.StageVariantsDone))
		assert.Equal(t, imageprocessor.StageVariantsDone, imageprocessor.StageFor(13, true))
	})

	t.Run("zero id skips cache", func(t *testing.T) {
		called := false
		imageprocessor.GetCacheImplementation = func(key string) (string, error) {
			called = true
			return "", nil
		}
		assert.Equal(t, imageprocessor.Stage(""), imageprocessor.GetPhotoStage(0))
		assert.False(t, called)
	})
}
