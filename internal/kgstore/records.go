// Package kgstore implements the durable, namespaced JSON stores that back
// the ingestion core: a generic atomic key-value store and a typed
// doc-status store layered on the same physical model.
package kgstore

import "encoding/json"

// DocStatus is the lifecycle state of a document's processing record.
type DocStatus string

const (
	DocPending          DocStatus = "PENDING"
	DocProcessing       DocStatus = "PROCESSING"
	DocProcessed        DocStatus = "PROCESSED"
	DocFailed           DocStatus = "FAILED"
	DocPartiallyFailed  DocStatus = "PARTIALLY_FAILED"
	DocStatusAll        DocStatus = "ALL"
	NoFilePathSentinel            = "no-file-path"
)

// ChunkStatus is the on-disk lifecycle state of a persisted chunk record,
// distinct from the scheduler's in-memory ChunkState.Status.
type ChunkStatus string

const (
	ChunkRecordPending ChunkStatus = "Pending"
	ChunkRecordRunning ChunkStatus = "Running"
	ChunkRecordSuccess ChunkStatus = "Success"
	ChunkRecordFailed  ChunkStatus = "Failed"
)

// DocumentRecord is the full_docs namespace value: content-addressed,
// immutable after insert. ID/CreateTime/UpdateTime are store-managed: they
// are omitted on encode so ToRecord never hands decorateUpsert a zero value
// that looks like an already-stamped create_time.
type DocumentRecord struct {
	ID         string `json:"_id,omitempty"`
	Content    string `json:"content"`
	CreateTime int64  `json:"create_time,omitempty"`
	UpdateTime int64  `json:"update_time,omitempty"`
}

// DocProcessingStatus is the doc_status namespace value.
type DocProcessingStatus struct {
	ID             string         `json:"_id,omitempty"`
	Status         DocStatus      `json:"status"`
	ContentSummary string         `json:"content_summary"`
	ContentLength  int            `json:"content_length"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      string         `json:"updated_at"`
	FilePath       string         `json:"file_path"`
	TrackID        string         `json:"track_id"`
	ChunksList     []string       `json:"chunks_list"`
	Metadata       map[string]any `json:"metadata"`
	ErrorMsg       string         `json:"error_msg,omitempty"`
}

// ChunkRecord is the text_chunks namespace value.
type ChunkRecord struct {
	ID              string      `json:"_id,omitempty"`
	Content         string      `json:"content"`
	FullDocID       string      `json:"full_doc_id"`
	ChunkOrderIndex int         `json:"chunk_order_index"`
	Tokens          int         `json:"tokens"`
	FilePath        string      `json:"file_path"`
	Status          ChunkStatus `json:"status"`
	Error           string      `json:"error,omitempty"`
	OAIRespID       string      `json:"oai_resp_id,omitempty"`
	LLMCacheList    []string    `json:"llm_cache_list"`
	CreateTime      int64       `json:"create_time,omitempty"`
	UpdateTime      int64       `json:"update_time,omitempty"`
}

// EntityRecord is the full_entities namespace value.
type EntityRecord struct {
	ID                string `json:"_id,omitempty"`
	EntityName        string `json:"entity_name"`
	EntityType        string `json:"entity_type"`
	EntityDescription string `json:"entity_description"`
	DocID             string `json:"doc_id"`
	ChunkID           string `json:"chunk_id"`
	ChunkOrderIndex   int    `json:"chunk_order_index"`
	CreateTime        int64  `json:"create_time,omitempty"`
	UpdateTime        int64  `json:"update_time,omitempty"`
}

// RelationRecord is the full_relations namespace value.
type RelationRecord struct {
	ID             string   `json:"_id,omitempty"`
	SourceEntityID string   `json:"source_entity_id"`
	TargetEntityID string   `json:"target_entity_id"`
	Keywords       []string `json:"keywords"`
	Description    string   `json:"description"`
	DocID          string   `json:"doc_id"`
	ChunkID        string   `json:"chunk_id"`
	CreateTime     int64    `json:"create_time,omitempty"`
	UpdateTime     int64    `json:"update_time,omitempty"`
}

// LLMCacheEntry is the llm_response_cache namespace value, keyed flat as
// "{mode}:{cache_type}:{hash}".
type LLMCacheEntry struct {
	Return any `json:"return"`
}

// ToRecord marshals v (one of the typed record structs above) through its
// JSON tags into the generic Record map JSONKVStore.Upsert consumes, so a
// call site builds its payload from a typed value instead of a hand-typed
// map literal that can drift from the field names above. Unlike the
// unexported toRecord used by legacy cache migration, this always goes
// through json.Marshal/Unmarshal rather than wrapping an arbitrary value.
func ToRecord(v any) Record {
	b, err := json.Marshal(v)
	if err != nil {
		return Record{}
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}
	}
	return rec
}
