package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emsi-ai/tariff-engine/internal/cache"
	"github.com/emsi-ai/tariff-engine/internal/config"
	"github.com/emsi-ai/tariff-engine/internal/embedding"
	"github.com/emsi-ai/tariff-engine/internal/llm"
	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/internal/retrieval"
	"github.com/emsi-ai/tariff-engine/internal/storage"
	"github.com/emsi-ai/tariff-engine/internal/vector"
)

const tariffFixture = `Le code SH 0102291000 correspond à la viande des animaux vivants de l'espèce bovine. Ce code identifie les animaux vivants de l'espèce bovine destinés à l'abattage. Il s'agit de la catégorie bovins domestiques, animaux âgés de moins de 6 mois. Les mesures fiscales appliquées sont le droit d'importation (DI): 2,5 %, la taxe parafiscale à l'importation (TPI): 0,25 % et la taxe sur la valeur ajoutée (TVA): 20 %.`

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Database.SQLite.Path = ":memory:"
	cfg.Vector.Adapter = "memory"
	cfg.Ingestion = config.IngestionConfig{MinChunkWords: 5, PreferredChunkWords: 120, MaxChunkWords: 400}
	cfg.Retrieval.CacheResults = false

	logger := observability.NewLogger(observability.LogConfig{Level: "error", Format: "console"})
	db, err := storage.Open(cfg.Database)
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(context.Background(), db, "sqlite"))

	eng := NewWithDependencies(
		cfg, logger, db,
		vector.NewMemoryStore(),
		cache.NewMemoryClient(100),
		embedding.NewMockClient(8),
		&llm.MockClient{Response: "Position Tarifaire : 0102291000, bovins domestiques."},
	)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestEngine_IngestThenSearch(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	result, err := eng.Ingest(ctx, tariffFixture, "tarif.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunksCreated)
	assert.Equal(t, "fr", result.Language)

	// A bare code query resolves through the shortcut path.
	hits, err := eng.SearchHybrid(ctx, "Que signifie le code 0102291000 ?", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "0102291000", hits[0].CodeSH)
	assert.Equal(t, retrieval.SourceShortcut, hits[0].Source)

	chunks, err := eng.FindRelevantChunks(ctx, "viande bovine pour l'abattage", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestEngine_ExtractQueryAttributes(t *testing.T) {
	eng := newTestEngine(t)

	attrs := eng.ExtractQueryAttributes("viande bovine congelée désossée")
	assert.Equal(t, "bovine", attrs["type"])
	assert.Equal(t, "congele", attrs["etat"])
}

func TestEngine_AskAndHistory(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	_, err := eng.Ingest(ctx, tariffFixture, "tarif.txt")
	require.NoError(t, err)

	answer, err := eng.Ask(ctx, "session-1", "Quels sont les droits pour le code 0102291000 ?")
	require.NoError(t, err)
	assert.Contains(t, answer, "0102291000")

	history, err := eng.ChatHistory(ctx, "session-1")
	require.NoError(t, err)
	assert.Contains(t, history, "Quels sont les droits")

	require.NoError(t, eng.ClearChatHistory(ctx, "session-1"))
	history, err = eng.ChatHistory(ctx, "session-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestEngine_SyncAndStatus(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	_, err := eng.Ingest(ctx, tariffFixture, "tarif.txt")
	require.NoError(t, err)

	status, err := eng.SyncStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SYNCHRONIZED", status.Status)
	assert.Equal(t, 1, status.VectorCount)

	report, err := eng.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Orphans)
}

func TestEngine_DeleteDocument(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	result, err := eng.Ingest(ctx, tariffFixture, "tarif.txt")
	require.NoError(t, err)

	require.NoError(t, eng.DeleteDocument(ctx, result.DocumentID))

	docs, err := eng.Documents(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	status, err := eng.SyncStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.VectorCount)
	assert.Zero(t, status.RelationalCount)
}

func TestEngine_ClearAll(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	_, err := eng.Ingest(ctx, tariffFixture, "tarif.txt")
	require.NoError(t, err)

	require.NoError(t, eng.ClearAll(ctx))

	status, err := eng.SyncStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.DocumentCount)
	assert.Zero(t, status.MetadataCount)
}

func TestEngine_Health(t *testing.T) {
	eng := newTestEngine(t)
	health := eng.Health(context.Background())
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "ok", health["database"])
	assert.Equal(t, "ok", health["vector"])
}
