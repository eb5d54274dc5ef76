package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emsi-ai/tariff-engine/internal/config"
	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/internal/storage"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Level: "error", Format: "console"})
}

// testRepos opens an in-memory sqlite database with the full schema applied.
func testRepos(t *testing.T) *storage.Repositories {
	t.Helper()

	db, err := storage.Open(config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:", MaxOpenConns: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, storage.Migrate(context.Background(), db, "sqlite"))
	return storage.NewRepositories(db)
}

func seedChunk(t *testing.T, repos *storage.Repositories, id, text string) {
	t.Helper()
	require.NoError(t, repos.Chunks.Create(context.Background(), &storage.Chunk{ID: id, Text: text}))
}

func strptr(s string) *string { return &s }
