package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emsi-ai/tariff-engine/internal/observability"
)

type recordingPublisher struct {
	channel  string
	messages []interface{}
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, message interface{}) error {
	p.channel = channel
	p.messages = append(p.messages, message)
	return p.err
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Level: "error", Format: "console"})
}

func TestAuditLogger_LogEvent_PublishesOnAuditChannel(t *testing.T) {
	pub := &recordingPublisher{}
	audit := NewAuditLogger(testLogger(), pub)

	audit.LogEvent(context.Background(), AuditEvent{Action: ActionPurge})

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "audit.events", pub.channel)

	event, ok := pub.messages[0].(AuditEvent)
	require.True(t, ok)
	assert.Equal(t, ActionPurge, event.Action)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.False(t, event.OccurredAt.IsZero())
}

func TestAuditLogger_LogEvent_KeepsProvidedIdentity(t *testing.T) {
	pub := &recordingPublisher{}
	audit := NewAuditLogger(testLogger(), pub)

	id := uuid.New()
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	audit.LogEvent(context.Background(), AuditEvent{ID: id, Action: ActionSearch, OccurredAt: at})

	require.Len(t, pub.messages, 1)
	event := pub.messages[0].(AuditEvent)
	assert.Equal(t, id, event.ID)
	assert.Equal(t, at, event.OccurredAt)
}

func TestAuditLogger_LogEvent_NilPublisher(t *testing.T) {
	audit := NewAuditLogger(testLogger(), nil)

	assert.NotPanics(t, func() {
		audit.LogEvent(context.Background(), AuditEvent{Action: ActionIngest})
	})
}

func TestAuditLogger_LogEvent_PublishFailureIsSwallowed(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("connexion perdue")}
	audit := NewAuditLogger(testLogger(), pub)

	assert.NotPanics(t, func() {
		audit.LogEvent(context.Background(), AuditEvent{Action: ActionSync})
	})
	assert.Len(t, pub.messages, 1)
}

func TestAuditLogger_LogIngestion_Payload(t *testing.T) {
	pub := &recordingPublisher{}
	audit := NewAuditLogger(testLogger(), pub)

	audit.LogIngestion(context.Background(), 7, "Tarif_2025.txt", "fr", 12, 9)

	require.Len(t, pub.messages, 1)
	event := pub.messages[0].(AuditEvent)
	assert.Equal(t, ActionIngest, event.Action)
	assert.Equal(t, "Tarif_2025.txt", event.Resource)
	assert.Equal(t, int64(7), event.Payload["document_id"])
	assert.Equal(t, "fr", event.Payload["language"])
	assert.Equal(t, 12, event.Payload["chunks_created"])
	assert.Equal(t, 9, event.Payload["metadata_created"])
}

func TestAuditLogger_LogSearch_Payload(t *testing.T) {
	pub := &recordingPublisher{}
	audit := NewAuditLogger(testLogger(), pub)

	audit.LogSearch(context.Background(), "droit importation bovins", 250*time.Millisecond, 4)

	require.Len(t, pub.messages, 1)
	event := pub.messages[0].(AuditEvent)
	assert.Equal(t, ActionSearch, event.Action)
	assert.Equal(t, "droit importation bovins", event.Payload["query"])
	assert.Equal(t, int64(250), event.Payload["latency_ms"])
	assert.Equal(t, 4, event.Payload["result_count"])
}

func TestAuditLogger_DeletionEvents(t *testing.T) {
	pub := &recordingPublisher{}
	audit := NewAuditLogger(testLogger(), pub)

	audit.LogChunkDeletion(context.Background(), "chunk_42")
	audit.LogDocumentDeletion(context.Background(), 3)

	require.Len(t, pub.messages, 2)

	chunkEvent := pub.messages[0].(AuditEvent)
	assert.Equal(t, ActionDeleteChunk, chunkEvent.Action)
	assert.Equal(t, "chunk_42", chunkEvent.Resource)

	docEvent := pub.messages[1].(AuditEvent)
	assert.Equal(t, ActionDeleteDocument, docEvent.Action)
	assert.Equal(t, int64(3), docEvent.Payload["document_id"])
}

func TestAuditLogger_LogSync_Payload(t *testing.T) {
	pub := &recordingPublisher{}
	audit := NewAuditLogger(testLogger(), pub)

	audit.LogSync(context.Background(), 5, 5, 0)

	require.Len(t, pub.messages, 1)
	event := pub.messages[0].(AuditEvent)
	assert.Equal(t, ActionSync, event.Action)
	assert.Equal(t, 5, event.Payload["orphans"])
	assert.Equal(t, 5, event.Payload["recovered"])
	assert.Equal(t, 0, event.Payload["failed"])
}
