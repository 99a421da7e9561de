package kgextract

import (
	"context"
	"encoding/json"
)

// ResponseCache is the narrow read-through cache surface ChunkExtractor
// optionally consults before calling the provider, satisfied by
// *internal/kgstore/redisindex.Index (nil-receiver safe) or an in-memory
// fake in tests. Keys follow the llm_response_cache flat keying
// "{mode}:{cache_type}:{hash}" kgstore.JSONKVStore migrates legacy caches
// into.
type ResponseCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

// ExtractionPrompt holds the fixed system instruction and the per-call
// model/strictness settings ChunkExtractor wraps around a chunk's content.
type ExtractionPrompt struct {
	Model        string
	SystemPrompt string
	Strict       bool
}

// DefaultSystemPrompt is the instruction sent with every extraction call,
// reproduced in substance from original_source/runtime/src/ai/prompts.rs.
const DefaultSystemPrompt = "You are an expert at extracting entities and relationships from scientific and technical text. " +
	"Identify every entity matching the controlled vocabulary and every relationship between them, grounded strictly in the given text."

// ChunkExtractor adapts a Client into the narrow per-chunk Extract surface
// the scheduler's worker pool consumes, fixing the model/prompt/schema for
// every call.
type ChunkExtractor struct {
	client *Client
	prompt ExtractionPrompt
	cache  ResponseCache
}

// NewChunkExtractor constructs a ChunkExtractor. An empty prompt.SystemPrompt
// falls back to DefaultSystemPrompt.
func NewChunkExtractor(client *Client, prompt ExtractionPrompt) *ChunkExtractor {
	if prompt.SystemPrompt == "" {
		prompt.SystemPrompt = DefaultSystemPrompt
	}
	return &ChunkExtractor{client: client, prompt: prompt}
}

// WithCache attaches a read-through response cache (e.g. a
// redisindex.Index). Extract consults it before calling the provider and
// populates it after a successful call; a nil cache (the default) makes
// Extract always call through.
func (e *ChunkExtractor) WithCache(cache ResponseCache) *ChunkExtractor {
	e.cache = cache
	return e
}

// Extract runs one structured-extraction call over content and returns the
// resulting entities/relationships, satisfying kgscheduler.Extractor. A
// chunk id is itself content-addressed, so it doubles as the cache hash
// component without a separate digest.
func (e *ChunkExtractor) Extract(ctx context.Context, chunkID, content string) (EntitiesRelationships, error) {
	cacheKey := e.prompt.Model + ":extract:" + chunkID
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, cacheKey); ok {
			var result EntitiesRelationships
			if err := json.Unmarshal([]byte(cached), &result); err == nil {
				return result, nil
			}
		}
	}

	req := StructuredRequest{
		Model:        e.prompt.Model,
		SystemPrompt: e.prompt.SystemPrompt,
		UserPrompt:   content,
		ChunkID:      chunkID,
		SchemaName:   EntitiesRelationshipsSchemaName,
		Schema:       EntitiesRelationshipsSchema(),
		Strict:       e.prompt.Strict,
	}
	result, err := ResponsesStructured[EntitiesRelationships](ctx, e.client, req)
	if err != nil {
		return EntitiesRelationships{}, err
	}

	if e.cache != nil {
		if b, mErr := json.Marshal(result); mErr == nil {
			e.cache.Set(ctx, cacheKey, string(b))
		}
	}
	return result, nil
}
