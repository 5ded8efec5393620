package jobqueue

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/CaptionFox/internal/pkg/captioner"
)

// ErrNonRetriable marks an error that ends a job immediately.
var ErrNonRetriable = errors.New("non-retriable")

// RetryPolicy bounds how often and how fast a stage is retried.
type RetryPolicy struct {
	// MaxAttempts includes the first run.
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	// Retriable classifies errors; nil treats every error as transient.
	Retriable func(error) bool
}

// FixedBackoff waits d between every attempt.
func FixedBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// ShouldRetry reports whether another attempt follows attempt failed ones.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if err == nil || errors.Is(err, ErrNonRetriable) || errors.Is(err, context.Canceled) {
		return false
	}
	if p.Retriable != nil && !p.Retriable(err) {
		return false
	}
	return attempt < p.MaxAttempts
}

// Delay is the wait before the attempt after attempt failed ones.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

var (
	MetadataRetryPolicy = RetryPolicy{
		MaxAttempts: 3,
		Backoff:     FixedBackoff(5 * time.Second),
	}
	CaptionRetryPolicy = RetryPolicy{
		MaxAttempts: 3,
		Backoff:     FixedBackoff(30 * time.Second),
		Retriable: func(err error) bool {
			return !errors.Is(err, captioner.ErrPhotoNotFound)
		},
	}
)
