package imageprocessor

import (
	"fmt"
	"os"
	"sync"

	"github.com/gofiber/fiber/v2/log"
)

// ScopedFile is a path that may be owned by the holder. Owned files are
// removed by Release. Callers defer Release right after acquiring one.
type ScopedFile struct {
	Path  string
	owned bool
	once  sync.Once
}

// Borrow wraps a path the caller does not own; Release leaves it alone.
func Borrow(path string) *ScopedFile {
	return &ScopedFile{Path: path}
}

// NewTempFile creates an empty owned temp file.
func NewTempFile(pattern string) (*ScopedFile, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	return &ScopedFile{Path: f.Name(), owned: true}, nil
}

// Owned reports whether Release will delete the file.
func (s *ScopedFile) Owned() bool {
	return s != nil && s.owned
}

// Release deletes an owned file. It is safe to call more than once and on nil.
func (s *ScopedFile) Release() {
	if s == nil || !s.owned {
		return
	}
	s.once.Do(func() {
		if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
			log.Warnf("[ImageProcessor] Failed to remove temp file %s: %v", s.Path, err)
		}
	})
}
