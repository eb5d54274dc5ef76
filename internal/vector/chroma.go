package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/emsi-ai/tariff-engine/internal/observability"
)

// ChromaStore talks to a Chroma server over its v1 REST API. The collection
// is resolved lazily and created on first use.
type ChromaStore struct {
	httpClient *http.Client
	baseURL    string
	collection string
	logger     *observability.Logger

	mu           sync.Mutex
	collectionID string
}

// ChromaConfig holds Chroma client configuration.
type ChromaConfig struct {
	BaseURL    string // Default: http://localhost:8000/api/v1
	Collection string // Default: emsi-ai-collection
	Timeout    time.Duration
}

// NewChromaStore creates a Chroma-backed vector store.
func NewChromaStore(cfg ChromaConfig, logger *observability.Logger) *ChromaStore {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000/api/v1"
	}
	if cfg.Collection == "" {
		cfg.Collection = "emsi-ai-collection"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &ChromaStore{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		collection: cfg.Collection,
		logger:     logger,
	}
}

// collectionIDFor resolves the collection's ID, creating the collection when
// it does not exist yet. The ID is cached until Clear drops it.
func (s *ChromaStore) collectionIDFor(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collectionID != "" {
		return s.collectionID, nil
	}

	var got struct {
		ID string `json:"id"`
	}
	err := s.do(ctx, http.MethodGet, "/collections/"+s.collection, nil, &got)
	if err == nil && got.ID != "" {
		s.collectionID = got.ID
		return s.collectionID, nil
	}

	// Not found: create it.
	body := map[string]any{"name": s.collection, "get_or_create": true}
	var created struct {
		ID string `json:"id"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections", body, &created); err != nil {
		return "", fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("create collection %s: empty id in response", s.collection)
	}
	s.logger.Info().Str("collection", s.collection).Str("collection_id", created.ID).Msg("Created vector collection")
	s.collectionID = created.ID
	return s.collectionID, nil
}

// Add indexes documents with their embeddings.
func (s *ChromaStore) Add(ctx context.Context, ids []string, embeddings [][]float32, documents []string) error {
	if len(ids) == 0 {
		return nil
	}
	id, err := s.collectionIDFor(ctx)
	if err != nil {
		return err
	}
	body := map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  documents,
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+id+"/add", body, nil); err != nil {
		return fmt.Errorf("add embeddings: %w", err)
	}
	return nil
}

// Query returns the topK nearest entries, closest first. Entries whose
// document came back null are skipped.
func (s *ChromaStore) Query(ctx context.Context, embedding []float32, topK int) ([]Result, error) {
	id, err := s.collectionIDFor(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"query_embeddings": [][]float32{embedding},
		"n_results":        topK,
		"include":          []string{"documents", "distances", "metadatas"},
	}
	var resp struct {
		IDs       [][]string   `json:"ids"`
		Documents [][]*string  `json:"documents"`
		Distances [][]float64  `json:"distances"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+id+"/query", body, &resp); err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	ids, docs, dists := resp.IDs[0], resp.Documents[0], resp.Distances[0]
	results := make([]Result, 0, len(ids))
	for i := range ids {
		if i >= len(docs) || docs[i] == nil || i >= len(dists) {
			continue
		}
		results = append(results, Result{ID: ids[i], Document: *docs[i], Distance: dists[i]})
	}
	return results, nil
}

// Delete removes entries by ID.
func (s *ChromaStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	id, err := s.collectionIDFor(ctx)
	if err != nil {
		return err
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+id+"/delete", map[string]any{"ids": ids}, nil); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	return nil
}

// ListIDs returns every indexed ID.
func (s *ChromaStore) ListIDs(ctx context.Context) ([]string, error) {
	id, err := s.collectionIDFor(ctx)
	if err != nil {
		return nil, err
	}
	var resp struct {
		IDs []string `json:"ids"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+id+"/get", map[string]any{"include": []string{}}, &resp); err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	return resp.IDs, nil
}

// GetDocument returns the stored text for one entry.
func (s *ChromaStore) GetDocument(ctx context.Context, entryID string) (string, error) {
	id, err := s.collectionIDFor(ctx)
	if err != nil {
		return "", err
	}
	body := map[string]any{
		"ids":     []string{entryID},
		"include": []string{"documents"},
	}
	var resp struct {
		IDs       []string  `json:"ids"`
		Documents []*string `json:"documents"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+id+"/get", body, &resp); err != nil {
		return "", fmt.Errorf("get document: %w", err)
	}
	if len(resp.Documents) == 0 || resp.Documents[0] == nil {
		return "", ErrNotFound
	}
	return *resp.Documents[0], nil
}

// Count returns the number of indexed entries.
func (s *ChromaStore) Count(ctx context.Context) (int, error) {
	id, err := s.collectionIDFor(ctx)
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.do(ctx, http.MethodGet, "/collections/"+id+"/count", nil, &count); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// Clear drops the whole collection; the next operation recreates it empty.
func (s *ChromaStore) Clear(ctx context.Context) error {
	if err := s.do(ctx, http.MethodDelete, "/collections/"+s.collection, nil, nil); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	s.mu.Lock()
	s.collectionID = ""
	s.mu.Unlock()
	s.logger.Info().Str("collection", s.collection).Msg("Cleared vector collection")
	return nil
}

// Close releases resources.
func (s *ChromaStore) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

// do sends one JSON request and decodes the JSON response into out when out
// is non-nil.
func (s *ChromaStore) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chroma %s %s: status %d, body: %s", method, path, resp.StatusCode, string(raw))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

var _ Store = (*ChromaStore)(nil)
