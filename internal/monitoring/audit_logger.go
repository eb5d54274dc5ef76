// Package monitoring records auditable engine operations: ingestions,
// searches, deletions and store maintenance.
package monitoring

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/emsi-ai/tariff-engine/internal/observability"
)

// Publisher fans audit events out to interested subscribers. The Redis
// cache client satisfies this; a nil publisher keeps events log-only.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Channel on which audit events are published.
const auditChannel = "audit.events"

// Event actions.
const (
	ActionIngest         = "ingest"
	ActionSearch         = "search"
	ActionChat           = "chat"
	ActionDeleteChunk    = "delete_chunk"
	ActionDeleteDocument = "delete_document"
	ActionPurge          = "purge"
	ActionSync           = "sync"
)

// AuditEvent is one auditable engine operation.
type AuditEvent struct {
	ID         uuid.UUID              `json:"id"`
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// AuditLogger writes audit events to the structured log and optionally
// publishes them for external consumers.
type AuditLogger struct {
	logger    *observability.Logger
	publisher Publisher
}

// NewAuditLogger creates an audit logger. publisher may be nil.
func NewAuditLogger(logger *observability.Logger, publisher Publisher) *AuditLogger {
	return &AuditLogger{logger: logger, publisher: publisher}
}

// LogEvent records one event. Publishing failures are logged, never fatal:
// audit fan-out must not break the operation it describes.
func (a *AuditLogger) LogEvent(ctx context.Context, event AuditEvent) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	a.logger.Info().
		Str("event_id", event.ID.String()).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Interface("payload", event.Payload).
		Msg("Audit event")

	if a.publisher == nil {
		return
	}
	if err := a.publisher.Publish(ctx, auditChannel, event); err != nil {
		a.logger.Warn().Err(err).Str("action", event.Action).Msg("Audit event publish failed")
	}
}

// LogIngestion records a completed document ingestion.
func (a *AuditLogger) LogIngestion(ctx context.Context, documentID int64, sourceName, language string, chunksCreated, metadataCreated int) {
	a.LogEvent(ctx, AuditEvent{
		Action:   ActionIngest,
		Resource: sourceName,
		Payload: map[string]interface{}{
			"document_id":      documentID,
			"language":         language,
			"chunks_created":   chunksCreated,
			"metadata_created": metadataCreated,
		},
	})
}

// LogSearch records a retrieval query with its outcome.
func (a *AuditLogger) LogSearch(ctx context.Context, query string, latency time.Duration, resultCount int) {
	a.LogEvent(ctx, AuditEvent{
		Action: ActionSearch,
		Payload: map[string]interface{}{
			"query":        query,
			"latency_ms":   latency.Milliseconds(),
			"result_count": resultCount,
		},
	})
}

// LogChat records one chat turn.
func (a *AuditLogger) LogChat(ctx context.Context, sessionID string, latency time.Duration) {
	a.LogEvent(ctx, AuditEvent{
		Action:   ActionChat,
		Resource: sessionID,
		Payload: map[string]interface{}{
			"latency_ms": latency.Milliseconds(),
		},
	})
}

// LogChunkDeletion records a single chunk removal.
func (a *AuditLogger) LogChunkDeletion(ctx context.Context, chunkID string) {
	a.LogEvent(ctx, AuditEvent{Action: ActionDeleteChunk, Resource: chunkID})
}

// LogDocumentDeletion records a document removal.
func (a *AuditLogger) LogDocumentDeletion(ctx context.Context, documentID int64) {
	a.LogEvent(ctx, AuditEvent{
		Action:  ActionDeleteDocument,
		Payload: map[string]interface{}{"document_id": documentID},
	})
}

// LogPurge records a full store wipe.
func (a *AuditLogger) LogPurge(ctx context.Context) {
	a.LogEvent(ctx, AuditEvent{Action: ActionPurge})
}

// LogSync records a reconciliation run.
func (a *AuditLogger) LogSync(ctx context.Context, orphans, recovered, failed int) {
	a.LogEvent(ctx, AuditEvent{
		Action: ActionSync,
		Payload: map[string]interface{}{
			"orphans":   orphans,
			"recovered": recovered,
			"failed":    failed,
		},
	})
}
