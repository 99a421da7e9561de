// Package kgevents is an optional, best-effort publisher of document
// lifecycle transitions (PENDING -> PROCESSING -> PROCESSED | FAILED |
// PARTIALLY_FAILED) onto a Kafka topic for downstream consumers. It is
// never on the critical path: publish errors are logged, never propagated,
// matching SPEC_FULL.md's DOMAIN STACK note on internal/orchestrator/kafka.go
// being the grounding source for this package's writer shape.
package kgevents

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/kgraph/ingestcore/internal/kgstore"
)

// StatusEvent is the JSON payload published for one document status
// transition.
type StatusEvent struct {
	DocID     string           `json:"doc_id"`
	Status    kgstore.DocStatus `json:"status"`
	TrackID   string           `json:"track_id,omitempty"`
	ErrorMsg  string           `json:"error_msg,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// Publisher wraps a kafka.Writer. A nil *Publisher is a valid no-op, so
// callers that don't configure Kafka can pass one around unconditionally.
type Publisher struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

// New constructs a Publisher writing to topic on the given brokers. The
// underlying kafka.Writer load-balances over brokers and batches writes
// the way internal/orchestrator/kafka.go's producer does; construction
// never dials — the first Publish call establishes the connection.
func New(brokers []string, topic string, log zerolog.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
			Async:        false,
		},
		log: log.With().Str("component", "kgevents").Logger(),
	}
}

// PublishStatus emits one StatusEvent. Errors are logged and swallowed:
// a Kafka outage must never fail a document's status transition.
func (p *Publisher) PublishStatus(ctx context.Context, ev StatusEvent) {
	if p == nil || p.writer == nil {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Str("doc_id", ev.DocID).Msg("failed to marshal status event")
		return
	}
	msg := kafka.Message{Key: []byte(ev.DocID), Value: body}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warn().Err(err).Str("doc_id", ev.DocID).Str("status", string(ev.Status)).Msg("failed to publish status event, continuing without it")
	}
}

// Close flushes and releases the writer's connections.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
