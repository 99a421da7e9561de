package kgchunk

import (
	"fmt"
	"strings"

	"github.com/kgraph/ingestcore/internal/kgstore"
)

// Chunk is one ordered, content-addressed slice of a document.
type Chunk struct {
	ID         string
	Content    string
	Order      int
	TokenCount int
}

// Config controls chunk boundaries. SplitByCharacter, when non-empty,
// switches from the sliding-window strategy to a delimiter-based one;
// SplitByCharacterOnly (only meaningful alongside SplitByCharacter) skips
// re-splitting oversized pieces.
type Config struct {
	MaxTokens            int
	OverlapTokens        int
	SplitByCharacter     string
	SplitByCharacterOnly bool
}

// ErrOverlapTooLarge is returned when OverlapTokens >= MaxTokens, per the
// chunker's precondition.
var ErrOverlapTooLarge = fmt.Errorf("kgchunk: overlap_tokens must be less than max_tokens")

// Split splits text into ordered chunks per cfg, dispatching to one of the
// three algorithms in spec §4.3.
func Split(tok Tokenizer, text string, cfg Config) ([]Chunk, error) {
	if cfg.OverlapTokens >= cfg.MaxTokens {
		return nil, ErrOverlapTooLarge
	}

	if cfg.SplitByCharacter == "" {
		return slidingWindow(tok, text, cfg, 0), nil
	}

	pieces := strings.Split(text, cfg.SplitByCharacter)
	if cfg.SplitByCharacterOnly {
		return delimiterOnly(tok, pieces), nil
	}
	return delimiterBounded(tok, pieces, cfg), nil
}

func newChunk(content string, order int) Chunk {
	return Chunk{
		ID:      kgstore.ChunkID(content),
		Content: content,
		Order:   order,
	}
}

// slidingWindow encodes the whole text and slides a window of MaxTokens
// with stride MaxTokens-OverlapTokens, decoding and trimming each slice.
// startOrder lets delimiterBounded continue the sequential index across
// pieces.
func slidingWindow(tok Tokenizer, text string, cfg Config, startOrder int) []Chunk {
	ids := tok.Encode(text)
	if len(ids) == 0 {
		return nil
	}

	stride := cfg.MaxTokens - cfg.OverlapTokens
	var out []Chunk
	order := startOrder
	for start := 0; start < len(ids); start += stride {
		end := start + cfg.MaxTokens
		if end > len(ids) {
			end = len(ids)
		}
		slice := ids[start:end]
		content := strings.TrimSpace(tok.Decode(slice))
		if content != "" {
			c := newChunk(content, order)
			c.TokenCount = len(slice)
			out = append(out, c)
			order++
		}
		if end == len(ids) {
			break
		}
	}
	return out
}

// delimiterOnly emits one chunk per non-empty piece, reporting its token
// count without re-splitting.
func delimiterOnly(tok Tokenizer, pieces []string) []Chunk {
	var out []Chunk
	order := 0
	for _, p := range pieces {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		c := newChunk(trimmed, order)
		c.TokenCount = tok.Count(trimmed)
		out = append(out, c)
		order++
	}
	return out
}

// delimiterBounded emits one chunk per piece unless the piece's encoded
// length exceeds MaxTokens, in which case that piece is re-split with the
// sliding window. Order is sequential across the whole output.
func delimiterBounded(tok Tokenizer, pieces []string, cfg Config) []Chunk {
	var out []Chunk
	order := 0
	for _, p := range pieces {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		ids := tok.Encode(trimmed)
		if len(ids) <= cfg.MaxTokens {
			c := newChunk(trimmed, order)
			c.TokenCount = len(ids)
			out = append(out, c)
			order++
			continue
		}
		sub := slidingWindow(tok, trimmed, cfg, order)
		out = append(out, sub...)
		order += len(sub)
	}
	return out
}
