// Package kgchunk splits document text into ordered, overlapping,
// content-addressed token windows. The chunking algorithms are grounded on
// internal/rag/chunker/chunker.go's SimpleChunker strategy dispatch, but
// operate on genuine token (encode/decode round-trip) slices rather than
// that file's approximate 4-chars-per-token heuristic, per the precision
// spec §4.3 asks of the chunk-coverage invariant.
package kgchunk

import (
	"regexp"
	"strings"
	"sync"
)

// Tokenizer is the minimal encode/decode/count surface the chunker needs.
// Grounded in shape on internal/documents/tokenizer.go's Tokenizer
// interface, but this implementation satisfies genuine round-trip rather
// than that file's rune-counting stub.
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) string
	Count(text string) int
}

// wordPiece splits a string into whitespace-run and non-whitespace-run
// pieces; concatenating the pieces in order exactly reconstructs the
// original string.
var wordPiece = regexp.MustCompile(`\s+|\S+`)

// WordTokenizer is a hand-rolled, session-scoped BPE-adjacent tokenizer:
// each distinct whitespace/word piece becomes a vocabulary entry the first
// time it is seen, and subsequent occurrences reuse the same id. It targets
// o200k_base-comparable granularity (one token per word/punctuation run)
// without vendoring a BPE table or a tokenizer library.
type WordTokenizer struct {
	mu      sync.RWMutex
	byToken map[string]int
	byID    []string
}

// NewWordTokenizer returns an empty, ready-to-use tokenizer.
func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{byToken: make(map[string]int)}
}

// Encode splits text into pieces and returns their (possibly newly
// assigned) vocabulary ids, in order.
func (t *WordTokenizer) Encode(text string) []int {
	pieces := wordPiece.FindAllString(text, -1)
	ids := make([]int, len(pieces))
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, p := range pieces {
		id, ok := t.byToken[p]
		if !ok {
			id = len(t.byID)
			t.byToken[p] = id
			t.byID = append(t.byID, p)
		}
		ids[i] = id
	}
	return ids
}

// Decode joins the pieces for ids back into their original concatenation.
// Unknown ids are skipped (can only happen if called with ids from a
// different tokenizer instance).
func (t *WordTokenizer) Decode(ids []int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var b strings.Builder
	for _, id := range ids {
		if id >= 0 && id < len(t.byID) {
			b.WriteString(t.byID[id])
		}
	}
	return b.String()
}

// Count returns the token length of text without mutating decode state
// beyond what Encode already does (pieces are still registered, since a
// later Decode of a slice containing them must resolve).
func (t *WordTokenizer) Count(text string) int {
	return len(t.Encode(text))
}
