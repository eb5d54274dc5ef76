// Package datasync reconciles the vector index with the relational store
// and owns the destructive maintenance operations.
package datasync

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/internal/storage"
	"github.com/emsi-ai/tariff-engine/internal/vector"
)

// Service performs synchronization and deletion across both stores.
type Service struct {
	repos   *storage.Repositories
	vectors vector.Store
	logger  *observability.Logger
}

// NewService creates a datasync service.
func NewService(repos *storage.Repositories, vectors vector.Store, logger *observability.Logger) *Service {
	return &Service{repos: repos, vectors: vectors, logger: logger}
}

// SyncReport summarizes one reconciliation run.
type SyncReport struct {
	VectorCount     int      `json:"vector_count"`
	RelationalCount int      `json:"relational_count"`
	Orphans         int      `json:"orphans"`
	Recovered       int      `json:"recovered"`
	Failed          int      `json:"failed"`
	RecoveryDoc     string   `json:"recovery_document,omitempty"`
	Errors          []string `json:"errors,omitempty"`
}

// Sync recovers vector entries that have no relational chunk row. Orphans
// are attached to a freshly created recovery document so nothing dangles.
// Per-entry failures are reported, not fatal.
func (s *Service) Sync(ctx context.Context) (*SyncReport, error) {
	vectorIDs, err := s.vectors.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vector ids: %w", err)
	}
	chunkIDs, err := s.repos.Chunks.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chunk ids: %w", err)
	}

	known := make(map[string]struct{}, len(chunkIDs))
	for _, id := range chunkIDs {
		known[id] = struct{}{}
	}

	var orphans []string
	for _, id := range vectorIDs {
		if _, ok := known[id]; !ok {
			orphans = append(orphans, id)
		}
	}

	report := &SyncReport{
		VectorCount:     len(vectorIDs),
		RelationalCount: len(chunkIDs),
		Orphans:         len(orphans),
	}
	if len(orphans) == 0 {
		s.logger.Info().Int("vector_count", report.VectorCount).Msg("Stores already in sync")
		return report, nil
	}

	recoveryName := fmt.Sprintf("Recovered_Document_%s", uuid.New().String()[:8])
	doc := &storage.Document{Name: recoveryName, Language: "unknown"}
	if err := s.repos.Documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create recovery document: %w", err)
	}
	report.RecoveryDoc = recoveryName

	for _, id := range orphans {
		text, err := s.vectors.GetDocument(ctx, id)
		if err != nil {
			s.logger.Warn().Err(err).Str("chunk_id", id).Msg("Could not read orphan text, skipping")
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("read %s: %v", id, err))
			continue
		}
		chunk := &storage.Chunk{ID: id, DocumentID: &doc.ID, Text: text}
		if err := s.repos.Chunks.Create(ctx, chunk); err != nil {
			s.logger.Warn().Err(err).Str("chunk_id", id).Msg("Could not persist orphan chunk, skipping")
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("persist %s: %v", id, err))
			continue
		}
		report.Recovered++
	}

	s.logger.Info().
		Int("orphans", report.Orphans).
		Int("recovered", report.Recovered).
		Int("failed", report.Failed).
		Str("recovery_document", recoveryName).
		Msg("Store reconciliation completed")
	return report, nil
}

// SyncStatus reports the counts on both sides and whether they agree.
type SyncStatus struct {
	VectorCount     int    `json:"vector_count"`
	RelationalCount int64  `json:"relational_count"`
	DocumentCount   int64  `json:"document_count"`
	MetadataCount   int64  `json:"metadata_count"`
	Status          string `json:"status"`
}

// Status compares entry counts across stores.
func (s *Service) Status(ctx context.Context) (*SyncStatus, error) {
	vectorCount, err := s.vectors.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count vectors: %w", err)
	}
	chunkCount, err := s.repos.Chunks.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	docCount, err := s.repos.Documents.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	metaCount, err := s.repos.Metadata.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count metadata: %w", err)
	}

	status := "SYNCHRONIZED"
	if int64(vectorCount) != chunkCount {
		status = "OUT OF SYNC"
	}
	return &SyncStatus{
		VectorCount:     vectorCount,
		RelationalCount: chunkCount,
		DocumentCount:   docCount,
		MetadataCount:   metaCount,
		Status:          status,
	}, nil
}

// ClearAll wipes both stores: metadata, chunks, documents, then the vector
// collection.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.repos.Metadata.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear metadata: %w", err)
	}
	if err := s.repos.Chunks.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if err := s.repos.Documents.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	if err := s.vectors.Clear(ctx); err != nil {
		return fmt.Errorf("clear vector collection: %w", err)
	}
	s.logger.Info().Msg("All data cleared")
	return nil
}

// DeleteChunk removes one chunk everywhere: its metadata row, its vector
// entry, then the chunk row itself.
func (s *Service) DeleteChunk(ctx context.Context, chunkID string) error {
	if err := s.repos.Metadata.DeleteByChunkID(ctx, chunkID); err != nil {
		return fmt.Errorf("delete chunk metadata: %w", err)
	}
	if err := s.vectors.Delete(ctx, []string{chunkID}); err != nil {
		return fmt.Errorf("delete chunk embedding: %w", err)
	}
	if err := s.repos.Chunks.Delete(ctx, chunkID); err != nil {
		return fmt.Errorf("delete chunk row: %w", err)
	}
	s.logger.Info().Str("chunk_id", chunkID).Msg("Chunk deleted")
	return nil
}

// DeleteDocument removes a document with all of its chunks, their metadata
// and their vector entries. A failed bulk vector delete is logged but does
// not block the relational delete, since Sync can repair the index later.
func (s *Service) DeleteDocument(ctx context.Context, documentID int64) error {
	chunks, err := s.repos.Chunks.ListByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("list document chunks: %w", err)
	}

	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if err := s.repos.Metadata.DeleteByChunkID(ctx, chunk.ID); err != nil {
			return fmt.Errorf("delete metadata for chunk %s: %w", chunk.ID, err)
		}
		ids = append(ids, chunk.ID)
	}

	if len(ids) > 0 {
		if err := s.vectors.Delete(ctx, ids); err != nil {
			s.logger.Warn().Err(err).Int64("document_id", documentID).Msg("Vector delete failed, index will need a sync")
		}
	}

	// Chunk rows go with the document via the schema's cascade.
	if err := s.repos.Documents.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	s.logger.Info().Int64("document_id", documentID).Int("chunks", len(chunks)).Msg("Document deleted")
	return nil
}
