package repository

import (
	"context"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ListingHub/internal/pkg/cache"
)

const keyBatch = 500

// queueRepository reads and prunes job queue keys for the ops endpoints.
type queueRepository struct {
	client *redis.Client
}

// NewQueueRepository creates a queue repository. A nil client uses the
// shared cache connection.
func NewQueueRepository(client *redis.Client) QueueRepository {
	return &queueRepository{client: client}
}

func (r *queueRepository) redis() *redis.Client {
	if r.client != nil {
		return r.client
	}
	return cache.GetClient()
}

func (r *queueRepository) GetValue(key string) (string, error) {
	return r.redis().Get(context.Background(), key).Result()
}

// GetTTL returns -1 alongside any error.
func (r *queueRepository) GetTTL(key string) (time.Duration, error) {
	ttl, err := r.redis().TTL(context.Background(), key).Result()
	if err != nil {
		return -1, err
	}
	return ttl, nil
}

func (r *queueRepository) DeleteKey(key string) (int64, error) {
	return r.redis().Del(context.Background(), key).Result()
}

func (r *queueRepository) GetListLength(key string) (int64, error) {
	return r.redis().LLen(context.Background(), key).Result()
}

// FindKeysByPatterns SCANs every pattern and returns the sorted union.
func (r *queueRepository) FindKeysByPatterns(patterns []string) ([]string, error) {
	ctx := context.Background()
	seen := make(map[string]struct{})
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		iter := r.redis().Scan(ctx, 0, pattern, keyBatch).Iterator()
		for iter.Next(ctx) {
			seen[iter.Val()] = struct{}{}
		}
		if err := iter.Err(); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// DeleteKeys deletes in batches and reports how many keys were removed before
// any error.
func (r *queueRepository) DeleteKeys(keys []string) (int64, error) {
	ctx := context.Background()
	var deleted int64
	for start := 0; start < len(keys); start += keyBatch {
		end := min(start+keyBatch, len(keys))
		n, err := r.redis().Del(ctx, keys[start:end]...).Result()
		deleted += n
		if err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}
