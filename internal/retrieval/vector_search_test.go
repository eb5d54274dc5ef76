package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emsi-ai/tariff-engine/internal/vector"
)

func TestRemapDistance_Bands(t *testing.T) {
	cases := []struct {
		name     string
		distance float64
		want     float64
	}{
		{"identical", 0.0, 1.0},
		{"very close", 0.2, 0.94},
		{"close", 0.5, 0.83},
		{"moderate", 1.0, 0.66},
		{"far", 2.0, 0.46},
		{"very far", 4.0, 0.26},
		{"beyond bands", 10.0, 0.64 / 6.0},
		{"noise floor", 100.0, 0.02},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, RemapDistance(tc.distance), 1e-9)
		})
	}
}

func TestRemapDistance_NeverIncreasesWithDistance(t *testing.T) {
	// Straddle every band boundary: a closer neighbor must never score
	// below a farther one.
	boundaries := []float64{0.3, 0.8, 1.5, 3.0, 6.0}
	for _, b := range boundaries {
		closer := RemapDistance(b - 0.01)
		farther := RemapDistance(b + 0.01)
		assert.GreaterOrEqual(t, closer, farther, "boundary %v", b)
	}

	// Dense sweep across the bands, the tail and the floor.
	prev := RemapDistance(0)
	for d := 0.01; d < 70; d += 0.01 {
		cur := RemapDistance(d)
		require.GreaterOrEqual(t, prev, cur, "distance %v", d)
		prev = cur
	}
}

func TestApplyContentBoost_Floors(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		score float64
		want  float64
	}{
		{
			name:  "zoo mammals by terms",
			text:  "Mammifères destinés aux parcs zoologiques, vivants.",
			score: 0.1,
			want:  0.85,
		},
		{
			name:  "zoo mammals by code",
			text:  "Le code SH 0106201000 couvre ces animaux.",
			score: 0.2,
			want:  0.85,
		},
		{
			name:  "racehorses",
			text:  "Chevaux de course importés temporairement.",
			score: 0.3,
			want:  0.8,
		},
		{
			name:  "bare tariff code",
			text:  "Voir la position 0102291000 du tarif.",
			score: 0.4,
			want:  0.75,
		},
		{
			name:  "duty rates",
			text:  "Le droit d'importation est de 2,5 % et la TVA de 20 %.",
			score: 0.5,
			want:  0.7,
		},
		{
			name:  "no rule matches",
			text:  "Texte sans rapport avec le tarif douanier.",
			score: 0.33,
			want:  0.33,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, ApplyContentBoost(tc.text, tc.score), 1e-9)
		})
	}
}

func TestApplyContentBoost_KeepsHigherScore(t *testing.T) {
	text := "Mammifères destinés aux parcs zoologiques."
	assert.InDelta(t, 0.95, ApplyContentBoost(text, 0.95), 1e-9)
}

func TestApplyContentBoost_HighestFloorWins(t *testing.T) {
	// The text carries a bare code (floor 0.75) and a racehorse code
	// (floor 0.8); the higher floor applies.
	text := "Le code 0101292000 vise les chevaux de course."
	assert.InDelta(t, 0.8, ApplyContentBoost(text, 0.1), 1e-9)
}

func TestVectorSearcher_Search_RanksByRemappedScore(t *testing.T) {
	ctx := context.Background()
	store := vector.NewMemoryStore()
	require.NoError(t, store.Add(ctx,
		[]string{"près", "moyen", "loin"},
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 5}},
		[]string{"texte un", "texte deux", "texte trois"},
	))

	s := NewVectorSearcher(store, testLogger())
	results, err := s.Search(ctx, []float32{1, 0, 0}, 10, 0.25)
	require.NoError(t, err)

	// Distances 0, √2 and √26 remap to 1.0, ~0.556 and ~0.205; the last
	// falls under the 0.25 threshold.
	require.Len(t, results, 2)
	assert.Equal(t, "près", results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "moyen", results[1].ChunkID)
	assert.InDelta(t, 0.91-0.25*1.4142135623730951, results[1].Score, 1e-9)
	for _, r := range results {
		assert.Equal(t, SourceVector, r.Source)
		assert.Equal(t, r.Score, r.VectorScore)
	}
}

func TestVectorSearcher_Search_BoostRescuesWeakMatch(t *testing.T) {
	ctx := context.Background()
	store := vector.NewMemoryStore()
	require.NoError(t, store.Add(ctx,
		[]string{"neutre", "zoo"},
		[][]float32{{1, 0, 0}, {0, 0, 5}},
		[]string{
			"Texte proche sans contenu tarifaire.",
			"Le code SH 0106201000 couvre les mammifères destinés aux parcs zoologiques.",
		},
	))

	s := NewVectorSearcher(store, testLogger())
	results, err := s.Search(ctx, []float32{1, 0, 0}, 10, 0.5)
	require.NoError(t, err)

	// The zoo chunk remaps to ~0.205, well under the 0.5 threshold, but the
	// content boost lifts it to 0.85 before filtering.
	require.Len(t, results, 2)
	assert.Equal(t, "neutre", results[0].ChunkID)
	assert.Equal(t, "zoo", results[1].ChunkID)
	assert.InDelta(t, 0.85, results[1].Score, 1e-9)
}
