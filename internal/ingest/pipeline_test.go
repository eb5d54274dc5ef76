package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emsi-ai/tariff-engine/internal/config"
	"github.com/emsi-ai/tariff-engine/internal/embedding"
	"github.com/emsi-ai/tariff-engine/internal/storage"
	"github.com/emsi-ai/tariff-engine/internal/vector"
)

// failingEmbedder always errors, simulating an unreachable model server.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("connection refused")
}
func (failingEmbedder) Model() string  { return "failing" }
func (failingEmbedder) Dimension() int { return 0 }

func testPipeline(t *testing.T, embedder embedding.Embedder) (*Pipeline, *storage.Repositories, *vector.MemoryStore) {
	t.Helper()

	db, err := storage.Open(config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:", MaxOpenConns: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Migrate(context.Background(), db, "sqlite"))

	repos := storage.NewRepositories(db)
	store := vector.NewMemoryStore()
	cfg := config.IngestionConfig{MinChunkWords: 5, PreferredChunkWords: 120, MaxChunkWords: 400}
	return NewPipeline(testLogger(), cfg, repos, embedder, store), repos, store
}

func TestPipeline_Ingest_EndToEnd(t *testing.T) {
	ctx := context.Background()
	p, repos, store := testPipeline(t, embedding.NewMockClient(8))

	result, err := p.Ingest(ctx, bovineSection+"\n\n"+equineSection, "tarif.txt")
	require.NoError(t, err)

	assert.Equal(t, "fr", result.Language)
	assert.Equal(t, 2, result.ChunksCreated)
	assert.Zero(t, result.ChunksSkipped)
	assert.Equal(t, 2, result.MetadataCreated)
	assert.Empty(t, result.Errors)
	assert.NotZero(t, result.DocumentID)

	doc, err := repos.Documents.GetByID(ctx, result.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "tarif.txt", doc.Name)

	chunks, err := repos.Chunks.ListByDocument(ctx, result.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// The vector index holds the same IDs and text as the chunk rows.
	for _, chunk := range chunks {
		text, err := store.GetDocument(ctx, chunk.ID)
		require.NoError(t, err)
		assert.Equal(t, chunk.Text, text)
	}

	meta, err := repos.Metadata.GetByCode(ctx, "0102291000")
	require.NoError(t, err)
	require.NotNil(t, meta.ChunkID)
	require.NotNil(t, meta.ImportDuty)
	assert.InDelta(t, 2.5, *meta.ImportDuty, 1e-9)
}

func TestPipeline_Ingest_EmptyDocument(t *testing.T) {
	p, _, _ := testPipeline(t, embedding.NewMockClient(8))
	_, err := p.Ingest(context.Background(), "   \n  ", "vide.txt")
	assert.Error(t, err)
}

func TestPipeline_Ingest_EmbeddingFailureSkipsChunks(t *testing.T) {
	ctx := context.Background()
	p, repos, store := testPipeline(t, failingEmbedder{})

	result, err := p.Ingest(ctx, bovineSection, "tarif.txt")
	require.NoError(t, err)

	assert.Zero(t, result.ChunksCreated)
	assert.Equal(t, 1, result.ChunksSkipped)
	assert.NotEmpty(t, result.Errors)

	// The document row stays, chunks and vectors do not.
	count, err := repos.Chunks.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	vcount, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, vcount)
}

func TestPipeline_LastDetectedLanguage(t *testing.T) {
	p, _, _ := testPipeline(t, embedding.NewMockClient(8))
	assert.Equal(t, "fr", p.LastDetectedLanguage())

	_, err := p.Ingest(context.Background(), bovineSection, "tarif.txt")
	require.NoError(t, err)
	assert.Equal(t, "fr", p.LastDetectedLanguage())
}
