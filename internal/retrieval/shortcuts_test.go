package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMatcher(t *testing.T) (*ShortcutMatcher, func(id, text string)) {
	t.Helper()
	repos := testRepos(t)
	matcher := NewShortcutMatcher(repos.Chunks, DefaultShortcuts(), testLogger())
	return matcher, func(id, text string) { seedChunk(t, repos, id, text) }
}

func TestShortcutMatcher_ZooMammals(t *testing.T) {
	matcher, seed := testMatcher(t)
	seed("chunk_zoo", "Le code SH 0106201000 couvre les mammifères destinés aux parcs zoologiques.")
	seed("chunk_tva", "La TVA applicable aux mammifères importés est de 20 %.")

	results, err := matcher.Search(context.Background(), "importation de mammifères pour parcs zoologiques", 10)
	require.NoError(t, err)

	require.NotEmpty(t, results)
	ids := make(map[string]bool)
	for _, r := range results {
		ids[r.ChunkID] = true
		assert.Equal(t, "0106201000", r.CodeSH)
		assert.Equal(t, SourceShortcut, r.Source)
		assert.InDelta(t, 1.0, r.Score, 1e-9)
	}
	assert.True(t, ids["chunk_zoo"])
	assert.True(t, ids["chunk_tva"])
}

func TestShortcutMatcher_FilterTermExcludesUnrelatedSupport(t *testing.T) {
	matcher, seed := testMatcher(t)
	seed("chunk_zoo", "Le code SH 0106201000 couvre les mammifères destinés aux parcs zoologiques.")
	// A taxe chunk with no mention of mammifères must not ride along.
	seed("chunk_taxe", "La taxe parafiscale s'applique aux produits laitiers.")

	results, err := matcher.Search(context.Background(), "mammifères pour parcs zoologiques", 10)
	require.NoError(t, err)

	for _, r := range results {
		assert.NotEqual(t, "chunk_taxe", r.ChunkID)
	}
}

func TestShortcutMatcher_RacehorsesFallbackKeyword(t *testing.T) {
	matcher, seed := testMatcher(t)
	// The chunk mentions course but not cheval, exercising the fallback
	// keyword lookup.
	seed("chunk_course", "Le code SH 0101292000 vise les animaux de course, importés temporairement.")

	results, err := matcher.Search(context.Background(), "droits pour les chevaux de course", 10)
	require.NoError(t, err)

	require.NotEmpty(t, results)
	assert.Equal(t, "chunk_course", results[0].ChunkID)
	assert.Equal(t, "0101292000", results[0].CodeSH)
}

func TestShortcutMatcher_BareTariffCode(t *testing.T) {
	matcher, seed := testMatcher(t)
	seed("chunk_bovins", "Le code SH 0102291000 correspond aux bovins domestiques.")

	results, err := matcher.Search(context.Background(), "Que signifie le code 0102291000 ?", 10)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "chunk_bovins", results[0].ChunkID)
	assert.Equal(t, "0102291000", results[0].CodeSH)
	assert.Equal(t, SourceShortcut, results[0].Source)
}

func TestShortcutMatcher_PartialEntityTermsDoNotMatch(t *testing.T) {
	matcher, seed := testMatcher(t)
	seed("chunk_zoo", "Le code SH 0106201000 couvre les mammifères destinés aux parcs zoologiques.")

	// Only one of the two term groups is present.
	results, err := matcher.Search(context.Background(), "importation de mammifères marins", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestShortcutMatcher_NoMatch(t *testing.T) {
	matcher, seed := testMatcher(t)
	seed("chunk_bovins", "Viande bovine congelée.")

	results, err := matcher.Search(context.Background(), "viande bovine congelée", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
