package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emsi-ai/tariff-engine/internal/config"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:", MaxOpenConns: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db, "sqlite"))
	return db
}

func strptr(s string) *string { return &s }

func TestDocumentRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(testDB(t))

	doc := &Document{Name: "tarif.pdf", Language: "fr"}
	require.NoError(t, repos.Documents.Create(ctx, doc))
	require.NotZero(t, doc.ID)

	got, err := repos.Documents.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "tarif.pdf", got.Name)
	assert.Equal(t, "fr", got.Language)
}

func TestDocumentRepository_GetMissing(t *testing.T) {
	repos := NewRepositories(testDB(t))
	_, err := repos.Documents.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentRepository_ListAndCount(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(testDB(t))
	require.NoError(t, repos.Documents.Create(ctx, &Document{Name: "a.pdf", Language: "fr"}))
	require.NoError(t, repos.Documents.Create(ctx, &Document{Name: "b.pdf", Language: "en"}))

	docs, err := repos.Documents.List(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	count, err := repos.Documents.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestDocumentRepository_DeleteMissing(t *testing.T) {
	repos := NewRepositories(testDB(t))
	err := repos.Documents.Delete(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChunkRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(testDB(t))

	doc := &Document{Name: "tarif.pdf", Language: "fr"}
	require.NoError(t, repos.Documents.Create(ctx, doc))
	require.NoError(t, repos.Chunks.Create(ctx, &Chunk{
		ID:         "c1",
		DocumentID: &doc.ID,
		Text:       "Le code SH 0102291000 correspond aux bovins domestiques.",
	}))

	got, err := repos.Chunks.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
	require.NotNil(t, got.DocumentID)
	assert.Equal(t, doc.ID, *got.DocumentID)

	// Keyword lookup is case-insensitive.
	found, err := repos.Chunks.FindFirstByKeyword(ctx, "BOVINS")
	require.NoError(t, err)
	assert.Equal(t, "c1", found.ID)

	_, err = repos.Chunks.FindFirstByKeyword(ctx, "ovins et caprins")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChunkRepository_FindByKeywordAndCode(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(testDB(t))
	require.NoError(t, repos.Chunks.Create(ctx, &Chunk{ID: "c1", Text: "Bovins, code 0102291000."}))
	require.NoError(t, repos.Chunks.Create(ctx, &Chunk{ID: "c2", Text: "Bovins, code 0102292000."}))

	chunks, err := repos.Chunks.FindByKeywordAndCode(ctx, "bovins", "0102291000", 0)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "c1", chunks[0].ID)
}

func TestChunkRepository_NilDocumentAllowed(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(testDB(t))

	// Recovered orphans carry no document reference.
	require.NoError(t, repos.Chunks.Create(ctx, &Chunk{ID: "orphelin", Text: "texte"}))

	got, err := repos.Chunks.GetByID(ctx, "orphelin")
	require.NoError(t, err)
	assert.Nil(t, got.DocumentID)
}

func TestChunkRepository_ListIDsAndByDocument(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(testDB(t))

	doc := &Document{Name: "tarif.pdf", Language: "fr"}
	require.NoError(t, repos.Documents.Create(ctx, doc))
	require.NoError(t, repos.Chunks.Create(ctx, &Chunk{ID: "c1", DocumentID: &doc.ID, Text: "un"}))
	require.NoError(t, repos.Chunks.Create(ctx, &Chunk{ID: "c2", DocumentID: &doc.ID, Text: "deux"}))
	require.NoError(t, repos.Chunks.Create(ctx, &Chunk{ID: "c3", Text: "trois"}))

	ids, err := repos.Chunks.ListIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, ids)

	owned, err := repos.Chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, "c1", owned[0].ID)
	assert.Equal(t, "c2", owned[1].ID)
}

func TestChunkRepository_CascadeOnDocumentDelete(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(testDB(t))

	doc := &Document{Name: "tarif.pdf", Language: "fr"}
	require.NoError(t, repos.Documents.Create(ctx, doc))
	require.NoError(t, repos.Chunks.Create(ctx, &Chunk{ID: "c1", DocumentID: &doc.ID, Text: "un"}))

	require.NoError(t, repos.Documents.Delete(ctx, doc.ID))

	_, err := repos.Chunks.GetByID(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMetadataRepository_CreateAndQuery(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(testDB(t))
	require.NoError(t, repos.Chunks.Create(ctx, &Chunk{ID: "c1", Text: "bovins"}))

	chunkID := "c1"
	duty := 2.5
	m := &ProductMetadata{
		CodeSH:       "0102291000",
		Description:  "Bovins domestiques",
		ProductType:  strptr("bovine"),
		ProductState: strptr("congele"),
		ImportDuty:   &duty,
		ChunkID:      &chunkID,
		Keywords:     "bovins, importation",
		Synonyms:     "boeuf, vache",
	}
	m.SetAgreements([]PreferentialAgreement{{Name: "Union Européenne", Rate: 0}})
	require.NoError(t, repos.Metadata.Create(ctx, m))
	require.NotZero(t, m.ID)

	got, err := repos.Metadata.GetByCode(ctx, "0102291000")
	require.NoError(t, err)
	require.NotNil(t, got.ProductType)
	assert.Equal(t, "bovine", *got.ProductType)
	require.NotNil(t, got.ImportDuty)
	assert.InDelta(t, 2.5, *got.ImportDuty, 1e-9)

	agreements := got.Agreements()
	require.Len(t, agreements, 1)
	assert.Equal(t, "Union Européenne", agreements[0].Name)

	byChunk, err := repos.Metadata.FindByChunkID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, m.ID, byChunk.ID)
}

func TestMetadataRepository_FindByMultipleCriteria(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(testDB(t))
	require.NoError(t, repos.Metadata.Create(ctx, &ProductMetadata{
		CodeSH: "0102291000", ProductType: strptr("bovine"), ProductState: strptr("congele"),
	}))
	require.NoError(t, repos.Metadata.Create(ctx, &ProductMetadata{
		CodeSH: "0102292000", ProductType: strptr("bovine"), ProductState: strptr("frais"),
	}))

	rows, err := repos.Metadata.FindByMultipleCriteria(ctx, strptr("bovine"), strptr("congele"), nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "0102291000", rows[0].CodeSH)

	// Nil criteria act as wildcards.
	rows, err = repos.Metadata.FindByMultipleCriteria(ctx, strptr("bovine"), nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestMetadataRepository_FindByKeywordsOrSynonyms(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(testDB(t))
	require.NoError(t, repos.Metadata.Create(ctx, &ProductMetadata{
		CodeSH: "0102291000", Keywords: "bovins, importation", Synonyms: "boeuf, vache",
	}))

	rows, err := repos.Metadata.FindByKeywordsOrSynonyms(ctx, "BOEUF")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = repos.Metadata.FindByKeywordsOrSynonyms(ctx, "cheval")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMetadataRepository_DeleteByChunkID(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(testDB(t))
	require.NoError(t, repos.Chunks.Create(ctx, &Chunk{ID: "c1", Text: "bovins"}))
	chunkID := "c1"
	require.NoError(t, repos.Metadata.Create(ctx, &ProductMetadata{CodeSH: "0102291000", ChunkID: &chunkID}))

	require.NoError(t, repos.Metadata.DeleteByChunkID(ctx, "c1"))
	_, err := repos.Metadata.FindByChunkID(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is not an error.
	assert.NoError(t, repos.Metadata.DeleteByChunkID(ctx, "c1"))
}

func TestProductMetadata_AgreementsRoundTrip(t *testing.T) {
	m := &ProductMetadata{}
	assert.Nil(t, m.Agreements())

	m.SetAgreements([]PreferentialAgreement{
		{Name: "Union Européenne", Rate: 0},
		{Name: "Ligue Arabe", Rate: 2.5},
	})
	agreements := m.Agreements()
	require.Len(t, agreements, 2)
	assert.InDelta(t, 2.5, agreements[1].Rate, 1e-9)

	m.Preferentials = "not json"
	assert.Nil(t, m.Agreements())
}
