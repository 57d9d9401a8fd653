package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ipFailureKeyPrefix = "ipguard:fail:"
	ipBlockKeyPrefix   = "ipguard:block:"
)

// RedisBlockStore backs the IP guard with a shared Redis instance so
// the failure counters survive restarts and are visible to every
// horizontally scaled replica.
type RedisBlockStore struct {
	client *redis.Client
}

// NewRedisBlockStore creates a store on an existing client.
func NewRedisBlockStore(client *redis.Client) *RedisBlockStore {
	return &RedisBlockStore{client: client}
}

func (s *RedisBlockStore) Increment(ctx context.Context, ip string) (int, error) {
	key := ipFailureKeyPrefix + ip

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("ip guard incr: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, IPBlockDuration).Err(); err != nil {
			return int(count), fmt.Errorf("ip guard expire: %w", err)
		}
	}

	if count >= MaxIPFailures {
		if err := s.client.Set(ctx, ipBlockKeyPrefix+ip, 1, IPBlockDuration).Err(); err != nil {
			return int(count), fmt.Errorf("ip guard set block: %w", err)
		}
	}

	return int(count), nil
}

func (s *RedisBlockStore) IsBlocked(ctx context.Context, ip string) (bool, time.Duration, error) {
	ttl, err := s.client.TTL(ctx, ipBlockKeyPrefix+ip).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ip guard ttl: %w", err)
	}
	if ttl <= 0 {
		return false, 0, nil
	}
	return true, ttl, nil
}

func (s *RedisBlockStore) Reset(ctx context.Context, ip string) error {
	if err := s.client.Del(ctx, ipFailureKeyPrefix+ip, ipBlockKeyPrefix+ip).Err(); err != nil {
		return fmt.Errorf("ip guard reset: %w", err)
	}
	return nil
}
