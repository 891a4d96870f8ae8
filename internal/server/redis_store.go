package server

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// redisStore shares login-attempt counters across replicas using a fixed
// window: INCR the key, set its TTL on first increment, reject once the count
// exceeds the limit.
type redisStore struct {
	client *redis.Client
}

func newRedisStore(addr, password string, timeout time.Duration) *redisStore {
	return &redisStore{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     password,
			DialTimeout:  timeout,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
			MaxRetries:   1,
		}),
	}
}

func (s *redisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return false, 0, err
		}
	}
	if count <= int64(limit) {
		return true, 0, nil
	}
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl < 0 {
		return false, window, nil
	}
	return false, ttl, nil
}
