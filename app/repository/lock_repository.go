package repository

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/ManuelReschke/SubFox/internal/pkg/cache"
	"github.com/redis/go-redis/v9"
)

// lockRepository implements the LockRepository interface
type lockRepository struct {
	// Operates on the cache client, not on GORM
}

// NewLockRepository creates a new lock repository instance
func NewLockRepository() LockRepository {
	return &lockRepository{}
}

// List returns the sweep locks currently held, using SCAN.
func (r *lockRepository) List() ([]LockInfo, error) {
	redisClient := cache.GetClient()
	ctx := context.Background()

	var keys []string
	var cursor uint64
	for {
		batch, next, err := redisClient.Scan(ctx, cursor, cache.LockKeyPrefix+"*", 500).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)

	locks := make([]LockInfo, 0, len(keys))
	for _, key := range keys {
		token, err := redisClient.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			// Released between SCAN and GET
			continue
		}
		if err != nil {
			return nil, err
		}
		ttl, err := redisClient.PTTL(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		locks = append(locks, LockInfo{
			Key:   key,
			Name:  strings.TrimPrefix(key, cache.LockKeyPrefix),
			Token: token,
			TTL:   ttl,
		})
	}
	return locks, nil
}

// ForceRelease deletes a sweep lock regardless of its owner
func (r *lockRepository) ForceRelease(name string) (int64, error) {
	return cache.GetClient().Del(context.Background(), cache.LockKeyPrefix+name).Result()
}
