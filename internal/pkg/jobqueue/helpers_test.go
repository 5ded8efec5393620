package jobqueue

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CaptionFox/internal/pkg/cache"
)

// testClock is a settable time source shared by a queue and its pipeline.
type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	// Stage status goes through the shared cache client.
	cache.UseClient(client)
	return client
}

func newTestQueue(t *testing.T) (*Queue, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)}
	q := NewQueue(newTestRedis(t), 2)
	q.now = clock.Now
	return q, clock
}

// drain processes jobs until the queue is empty and returns how many ran.
func drain(t *testing.T, q *Queue) int {
	t.Helper()
	n := 0
	for {
		ran, err := q.ProcessNext(t.Context())
		require.NoError(t, err)
		if !ran {
			return n
		}
		n++
		require.Less(t, n, 100, "queue does not drain")
	}
}
