package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is a pure-Go in-memory index, used for tests and for running
// without a Chroma server. Distances are Euclidean, matching what Chroma
// reports by default.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	document string
	vector   []float32
}

// NewMemoryStore creates an empty in-memory vector store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Add indexes documents with their embeddings. Empty vectors are skipped.
func (s *MemoryStore) Add(ctx context.Context, ids []string, embeddings [][]float32, documents []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range ids {
		if i >= len(embeddings) || len(embeddings[i]) == 0 {
			continue
		}
		document := ""
		if i < len(documents) {
			document = documents[i]
		}
		s.entries[id] = memoryEntry{document: document, vector: embeddings[i]}
	}
	return nil
}

// Query returns the topK nearest entries by Euclidean distance, closest
// first. Entries with a different dimension than the query are skipped.
func (s *MemoryStore) Query(ctx context.Context, embedding []float32, topK int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Result, 0, len(s.entries))
	for id, entry := range s.entries {
		if len(entry.vector) != len(embedding) {
			continue
		}
		results = append(results, Result{
			ID:       id,
			Document: entry.document,
			Distance: euclideanDistance(embedding, entry.vector),
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Delete removes entries by ID.
func (s *MemoryStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.entries, id)
	}
	return nil
}

// ListIDs returns every indexed ID.
func (s *MemoryStore) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// GetDocument returns the stored text for one entry.
func (s *MemoryStore) GetDocument(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return "", ErrNotFound
	}
	return entry.document, nil
}

// Count returns the number of indexed entries.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Clear removes every entry.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
	return nil
}

// Close releases resources.
func (s *MemoryStore) Close() error {
	return nil
}

func euclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

var _ Store = (*MemoryStore)(nil)
