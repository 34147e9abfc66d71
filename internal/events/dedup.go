package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "booking:payment-event:"

// Deduplicator remembers message ids already handled.
type Deduplicator interface {
	// FirstSeen claims id and reports whether no earlier delivery claimed it.
	FirstSeen(ctx context.Context, id string) (bool, error)
	// Forget releases a claim so a failed delivery can be retried.
	Forget(ctx context.Context, id string) error
}

// RedisDeduplicator claims ids with SETNX and a TTL.
type RedisDeduplicator struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduplicator connects to the Redis instance at url.
func NewRedisDeduplicator(ctx context.Context, url string, ttl time.Duration) (*RedisDeduplicator, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisDeduplicator{client: client, ttl: ttl}, nil
}

// NewRedisDeduplicatorFromClient wraps an existing client.
func NewRedisDeduplicatorFromClient(client *redis.Client, ttl time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{client: client, ttl: ttl}
}

func (d *RedisDeduplicator) FirstSeen(ctx context.Context, id string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupKeyPrefix+id, time.Now().UTC().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim event %s: %w", id, err)
	}
	return ok, nil
}

func (d *RedisDeduplicator) Forget(ctx context.Context, id string) error {
	if err := d.client.Del(ctx, dedupKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to release event %s: %w", id, err)
	}
	return nil
}

func (d *RedisDeduplicator) Close() error {
	return d.client.Close()
}
