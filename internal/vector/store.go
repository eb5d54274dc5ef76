// Package vector provides embedding storage and nearest-neighbor search,
// backed by a Chroma server or an in-memory index.
package vector

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested entry does not exist in the store.
var ErrNotFound = errors.New("vector entry not found")

// Result is one nearest-neighbor hit. Distance is the raw metric distance;
// score remapping is the retrieval layer's job.
type Result struct {
	ID       string
	Document string
	Distance float64
}

// Store defines the vector index operations the engine needs.
type Store interface {
	// Add indexes documents with their embeddings. The three slices are
	// parallel.
	Add(ctx context.Context, ids []string, embeddings [][]float32, documents []string) error

	// Query returns the topK nearest entries to the embedding, closest
	// first.
	Query(ctx context.Context, embedding []float32, topK int) ([]Result, error)

	// Delete removes entries by ID. Missing IDs are not an error.
	Delete(ctx context.Context, ids []string) error

	// ListIDs returns every indexed ID.
	ListIDs(ctx context.Context) ([]string, error)

	// GetDocument returns the stored text for one entry.
	GetDocument(ctx context.Context, id string) (string, error)

	// Count returns the number of indexed entries.
	Count(ctx context.Context) (int, error)

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Close releases resources.
	Close() error
}
