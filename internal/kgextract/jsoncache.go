package kgextract

import (
	"context"

	"github.com/kgraph/ingestcore/internal/kgstore"
)

// JSONResponseCache adapts a JSONKVStore over the llm_response_cache
// namespace into ResponseCache. It is the durable side of the cache:
// redisindex.Index only ever accelerates reads in front of it.
type JSONResponseCache struct {
	store *kgstore.JSONKVStore
}

// NewJSONResponseCache wraps store, which the caller must already have
// Initialize'd.
func NewJSONResponseCache(store *kgstore.JSONKVStore) *JSONResponseCache {
	return &JSONResponseCache{store: store}
}

// Get looks up key's cached LLMCacheEntry and returns its Return value as a
// string, or ("", false) on a miss or a non-string payload.
func (c *JSONResponseCache) Get(ctx context.Context, key string) (string, bool) {
	rec, err := c.store.GetByID(key)
	if err != nil {
		return "", false
	}
	v, ok := rec["return"].(string)
	if !ok {
		return "", false
	}
	return v, true
}

// Set upserts key's LLMCacheEntry without flushing. The scheduler's
// persistAll does not cover this namespace; the entry reaches disk when
// the store is finalized.
func (c *JSONResponseCache) Set(ctx context.Context, key, value string) {
	_ = c.store.Upsert(map[string]kgstore.Record{
		key: kgstore.ToRecord(kgstore.LLMCacheEntry{Return: value}),
	})
}

// TieredCache checks a fast cache first and falls back to a durable one,
// backfilling the fast cache on a durable hit. Either side may be nil.
type TieredCache struct {
	fast, durable ResponseCache
}

// NewTieredCache composes fast (e.g. a redisindex.Index) in front of durable
// (a JSONResponseCache).
func NewTieredCache(fast, durable ResponseCache) *TieredCache {
	return &TieredCache{fast: fast, durable: durable}
}

func (t *TieredCache) Get(ctx context.Context, key string) (string, bool) {
	if t.fast != nil {
		if v, ok := t.fast.Get(ctx, key); ok {
			return v, true
		}
	}
	if t.durable == nil {
		return "", false
	}
	v, ok := t.durable.Get(ctx, key)
	if !ok {
		return "", false
	}
	if t.fast != nil {
		t.fast.Set(ctx, key, v)
	}
	return v, true
}

func (t *TieredCache) Set(ctx context.Context, key, value string) {
	if t.fast != nil {
		t.fast.Set(ctx, key, value)
	}
	if t.durable != nil {
		t.durable.Set(ctx, key, value)
	}
}
