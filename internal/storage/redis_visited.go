package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisVisitedSet is a dedup ledger shared through Redis. Keys are scoped to
// one run by prefix and expire after ttl, so nothing outlives the run.
type RedisVisitedSet struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisVisitedSet connects to addr and namespaces keys under runID
func NewRedisVisitedSet(ctx context.Context, addr, runID string, ttl time.Duration) (*RedisVisitedSet, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisVisitedSet{
		client: client,
		prefix: "crawl:" + runID + ":visited:",
		ttl:    ttl,
	}, nil
}

// TryMark sets the key only if absent; true means this caller inserted it
func (s *RedisVisitedSet) TryMark(ctx context.Context, url string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+url, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", url, err)
	}
	return ok, nil
}

// Close closes the Redis client
func (s *RedisVisitedSet) Close() error {
	return s.client.Close()
}
