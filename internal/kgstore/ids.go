package kgstore

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// sha256Hex returns the lowercase hex-encoded SHA-256 digest of s.
func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// DocID computes the content-addressed document id for normalized content.
func DocID(normalizedContent string) string {
	return "doc-" + sha256Hex(normalizedContent)
}

// ChunkID computes the content-addressed chunk id for chunk content.
func ChunkID(content string) string {
	return "chunk-" + sha256Hex(content)
}

// EntityID computes the stable entity id for a (doc, name, type) tuple.
func EntityID(docID, entityName, entityType string) string {
	return "entity-" + sha256Hex(docID+":"+entityName+":"+entityType)
}

// RelationID computes the stable relation id for a (doc, source, target) tuple.
// Description is folded in to disambiguate multi-edges between the same pair.
func RelationID(docID, sourceName, targetName, description string) string {
	return "rel-" + sha256Hex(docID+":"+sourceName+":"+targetName+":"+description)
}

// JobID computes a scheduler job id from a doc id and a creation epoch.
func JobID(docID string, createdEpoch int64) string {
	return "job-" + sha256Hex(docID+":"+strconv.FormatInt(createdEpoch, 10))
}

// ErrorRecordID computes the synthetic doc-status key for an intake failure.
func ErrorRecordID(trackID, filename string) string {
	return "error-" + sha256Hex("error-"+trackID+"-"+filename)
}
