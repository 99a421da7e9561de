// Package redisindex is an optional best-effort accelerator for the
// llm_response_cache namespace. It is never the source of truth: the JSON
// store in internal/kgstore remains authoritative, and every method here
// degrades to a cache miss (or a logged, swallowed error) rather than
// failing a caller. Grounded on
// internal/orchestrator/dedupe.go's RedisDedupeStore (same
// get/set-with-TTL shape, ping-on-construct).
package redisindex

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Index is a read-through accelerator in front of the llm_response_cache
// JSON store.
type Index struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// New connects to addr and pings it, failing fast at startup the same way
// RedisDedupeStore does — callers that don't want the accelerator simply
// don't construct one; nothing downstream requires it.
func New(ctx context.Context, addr string, ttl time.Duration, log zerolog.Logger) (*Index, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Index{client: client, ttl: ttl, log: log.With().Str("component", "kgstore.redisindex").Logger()}, nil
}

// Get returns the cached value for key, or ("", false) on a miss or any
// transport error (logged, never propagated).
func (i *Index) Get(ctx context.Context, key string) (string, bool) {
	if i == nil {
		return "", false
	}
	v, err := i.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		i.log.Warn().Err(err).Str("key", key).Msg("redisindex get failed, treating as miss")
		return "", false
	}
	return v, true
}

// Set writes key/value with the index's configured TTL. Errors are logged
// and swallowed: a Redis outage never fails an ingestion write.
func (i *Index) Set(ctx context.Context, key, value string) {
	if i == nil {
		return
	}
	if err := i.client.Set(ctx, key, value, i.ttl).Err(); err != nil {
		i.log.Warn().Err(err).Str("key", key).Msg("redisindex set failed, cache write dropped")
	}
}

// Close releases the underlying connection pool.
func (i *Index) Close() error {
	if i == nil {
		return nil
	}
	return i.client.Close()
}
