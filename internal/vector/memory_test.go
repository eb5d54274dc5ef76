package vector

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Query_OrdersByDistance(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Add(ctx,
		[]string{"loin", "près", "moyen"},
		[][]float32{{0, 3, 0}, {1, 0, 0}, {0, 1, 0}},
		[]string{"texte loin", "texte près", "texte moyen"},
	))

	results, err := s.Query(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "près", results[0].ID)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-9)
	assert.Equal(t, "moyen", results[1].ID)
	assert.InDelta(t, math.Sqrt2, results[1].Distance, 1e-9)
	assert.Equal(t, "loin", results[2].ID)
	assert.Equal(t, "texte près", results[0].Document)
}

func TestMemoryStore_Query_TopK(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Add(ctx,
		[]string{"a", "b", "c"},
		[][]float32{{1, 0}, {0, 1}, {1, 1}},
		[]string{"a", "b", "c"},
	))

	results, err := s.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMemoryStore_Query_SkipsMismatchedDimensions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Add(ctx,
		[]string{"deux", "trois"},
		[][]float32{{1, 0}, {1, 0, 0}},
		[]string{"dim deux", "dim trois"},
	))

	results, err := s.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "deux", results[0].ID)
}

func TestMemoryStore_Add_SkipsEmptyEmbeddings(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Add(ctx,
		[]string{"vide", "plein"},
		[][]float32{{}, {1, 0}},
		[]string{"vide", "plein"},
	))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = s.GetDocument(ctx, "vide")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Add(ctx,
		[]string{"a", "b"},
		[][]float32{{1}, {2}},
		[]string{"un", "deux"},
	))

	require.NoError(t, s.Delete(ctx, []string{"a"}))
	ids, err := s.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)

	require.NoError(t, s.Clear(ctx))
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryStore_GetDocument(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{1}}, []string{"texte"}))

	text, err := s.GetDocument(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "texte", text)
}
