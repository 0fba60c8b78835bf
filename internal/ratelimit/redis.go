package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the window counters in a shared cache so every
// instance behind the load balancer sees the same budget. The key TTL
// is the window itself, so cleanup is Redis's problem.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	k := s.prefix + key

	count, err := s.rdb.Incr(ctx, k).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if count == 1 {
		if err := s.rdb.PExpire(ctx, k, window).Err(); err != nil {
			return 0, time.Time{}, err
		}
		return int(count), time.Now().Add(window), nil
	}

	ttl, err := s.rdb.PTTL(ctx, k).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if ttl < 0 {
		// Counter without a TTL (e.g. the PExpire above got lost):
		// reattach one rather than rate-limit the key forever.
		_ = s.rdb.PExpire(ctx, k, window).Err()
		ttl = window
	}
	return int(count), time.Now().Add(ttl), nil
}
