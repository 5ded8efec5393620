package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	cfg := LoadConfig()
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, 30*time.Minute, cfg.StaleAfter)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)

	t.Setenv("JOBQUEUE_WORKERS", "8")
	t.Setenv("JOBQUEUE_STALE_AFTER", "45m")
	t.Setenv("JOBQUEUE_STALE_SWEEP_INTERVAL", "not-a-duration")
	cfg = LoadConfig()
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 45*time.Minute, cfg.StaleAfter)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
}

func TestManager_StartStop(t *testing.T) {
	f := newPipelineFixture(t)
	manager := NewManager(f.pipeline, Config{Workers: 1})

	assert.False(t, manager.IsRunning())
	manager.Stop()
	assert.False(t, manager.IsRunning(), "stop without start is a no-op")

	manager.Start()
	assert.True(t, manager.IsRunning())
	assert.Same(t, f.queue, manager.GetQueue())

	manager.Stop()
	assert.False(t, manager.IsRunning())

	// Restartable
	manager.Start()
	assert.True(t, manager.IsRunning())
	manager.Stop()
}
