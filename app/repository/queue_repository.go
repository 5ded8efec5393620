package repository

import (
	"context"

	"github.com/ManuelReschke/CaptionFox/internal/pkg/cache"
)

// queueRepository reads job queue structures directly from Redis
type queueRepository struct{}

// NewQueueRepository creates a new queue repository instance
func NewQueueRepository() QueueRepository {
	return &queueRepository{}
}

// GetListLength returns the length of a Redis list
func (r *queueRepository) GetListLength(key string) (int64, error) {
	return cache.GetClient().LLen(context.Background(), key).Result()
}

// GetSortedSetLength returns the cardinality of a Redis sorted set
func (r *queueRepository) GetSortedSetLength(key string) (int64, error) {
	return cache.GetClient().ZCard(context.Background(), key).Result()
}

// GetHash returns every field of a Redis hash
func (r *queueRepository) GetHash(key string) (map[string]string, error) {
	return cache.GetClient().HGetAll(context.Background(), key).Result()
}
