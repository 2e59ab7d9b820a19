package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a thin handle around the go-redis client this package needs:
// just enough surface for the pub/sub bridge (internal/redisbridge) to work
// with, not a general-purpose cache client.
type Redis struct {
	client *redis.Client
}

// NewRedis parses redisURL, dials, and pings once before returning so a bad
// URL or unreachable server fails fast at startup rather than on first use.
func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Redis{client: client}, nil
}

// Client exposes the underlying go-redis client for callers that need
// something this wrapper doesn't surface.
func (r *Redis) Client() *redis.Client {
	return r.client
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// HealthCheck pings Redis, for the /healthz route.
func (r *Redis) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Publish sends message on channel, used to mirror inbound frames onto
// "from:<topic>:<event>".
func (r *Redis) Publish(ctx context.Context, channel string, message interface{}) error {
	return r.client.Publish(ctx, channel, message).Err()
}

// PSubscribe subscribes to every channel matching the given glob patterns,
// used for "to:<channel>:*" (spec.md §4.9).
func (r *Redis) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	return r.client.PSubscribe(ctx, patterns...)
}
