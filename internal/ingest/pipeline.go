// Package ingest provides the tariff document ingestion pipeline.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emsi-ai/tariff-engine/internal/config"
	"github.com/emsi-ai/tariff-engine/internal/embedding"
	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/internal/storage"
	"github.com/emsi-ai/tariff-engine/internal/vector"
)

// Pipeline orchestrates document ingestion: normalize, chunk, embed, then
// persist chunks and their extracted metadata.
type Pipeline struct {
	logger    *observability.Logger
	chunker   *Chunker
	extractor *Extractor
	repos     *storage.Repositories
	embedder  embedding.Embedder
	vectors   vector.Store

	mu           sync.Mutex
	lastLanguage string
}

// IngestResult summarizes one ingestion run.
type IngestResult struct {
	DocumentID      int64
	DocumentUUID    uuid.UUID
	SourceName      string
	Language        string
	ChunksCreated   int
	ChunksSkipped   int
	MetadataCreated int
	Errors          []string
	StartedAt       time.Time
	CompletedAt     time.Time
	Duration        time.Duration
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(
	logger *observability.Logger,
	cfg config.IngestionConfig,
	repos *storage.Repositories,
	embedder embedding.Embedder,
	vectors vector.Store,
) *Pipeline {
	return &Pipeline{
		logger:    logger,
		chunker:   NewChunker(cfg, logger),
		extractor: NewExtractor(DefaultRules(), DefaultNormalization(), DefaultSynonyms(), logger),
		repos:     repos,
		embedder:  embedder,
		vectors:   vectors,
	}
}

// Extractor exposes the pipeline's attribute extractor so the search layer
// shares the same dictionaries as ingestion.
func (p *Pipeline) Extractor() *Extractor {
	return p.extractor
}

// IngestFile extracts text from a file on disk and ingests it under the
// file's base name.
func (p *Pipeline) IngestFile(ctx context.Context, path, sourceName string) (*IngestResult, error) {
	text, err := ExtractText(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	return p.Ingest(ctx, text, sourceName)
}

// Ingest processes raw document text end to end. Individual chunk failures
// (embedding, vector insert, metadata) are logged and skipped so one bad
// chunk never loses the rest of the document.
func (p *Pipeline) Ingest(ctx context.Context, rawText, sourceName string) (*IngestResult, error) {
	docUUID := uuid.New()
	result := &IngestResult{
		DocumentUUID: docUUID,
		SourceName:   sourceName,
		StartedAt:    time.Now(),
	}

	p.logger.Info().
		Str("document_uuid", docUUID.String()).
		Str("source", sourceName).
		Int("raw_bytes", len(rawText)).
		Msg("Starting document ingestion")

	// Step 1: detect language on the normalized text.
	normalized := Normalize(rawText)
	if normalized == "" {
		return nil, fmt.Errorf("document %s is empty after normalization", sourceName)
	}
	result.Language = DetectLanguage(normalized)
	p.setLastLanguage(result.Language)

	// Step 2: create the document record.
	doc := &storage.Document{Name: sourceName, Language: result.Language}
	if err := p.repos.Documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("persist document: %w", err)
	}
	result.DocumentID = doc.ID

	// Step 3: chunk on tariff code boundaries.
	chunks := p.chunker.Chunk(rawText, sourceName)
	if len(chunks) == 0 {
		p.logger.Warn().Str("source", sourceName).Msg("Document produced no chunks")
		result.CompletedAt = time.Now()
		result.Duration = result.CompletedAt.Sub(result.StartedAt)
		return result, nil
	}

	// Step 4: embed and persist each chunk. Metadata rows are prepared here
	// but saved only after their chunk row exists, so the foreign key holds.
	var pendingMetadata []*storage.ProductMetadata
	for i, chunk := range chunks {
		chunkID := fmt.Sprintf("%s_chunk_%d", docUUID, i)

		emb, err := p.embedder.Embed(ctx, chunk.Text)
		if err != nil || len(emb) == 0 {
			p.logger.Warn().
				Err(err).
				Str("chunk_id", chunkID).
				Msg("Embedding failed, skipping chunk")
			result.ChunksSkipped++
			result.Errors = append(result.Errors, fmt.Sprintf("embed chunk %d: %v", i, err))
			continue
		}

		if err := p.vectors.Add(ctx, []string{chunkID}, [][]float32{emb}, []string{chunk.Text}); err != nil {
			p.logger.Warn().
				Err(err).
				Str("chunk_id", chunkID).
				Msg("Vector insert failed, skipping chunk")
			result.ChunksSkipped++
			result.Errors = append(result.Errors, fmt.Sprintf("vector add chunk %d: %v", i, err))
			continue
		}

		record := &storage.Chunk{ID: chunkID, DocumentID: &doc.ID, Text: chunk.Text}
		if err := p.repos.Chunks.Create(ctx, record); err != nil {
			p.logger.Warn().
				Err(err).
				Str("chunk_id", chunkID).
				Msg("Chunk persist failed, skipping chunk")
			result.ChunksSkipped++
			result.Errors = append(result.Errors, fmt.Sprintf("persist chunk %d: %v", i, err))
			continue
		}
		result.ChunksCreated++

		if meta := p.extractor.Extract(chunk); meta != nil {
			id := chunkID
			meta.ChunkID = &id
			pendingMetadata = append(pendingMetadata, meta)
		}
	}

	// Step 5: persist metadata, warn-and-continue per row.
	for _, meta := range pendingMetadata {
		if err := p.repos.Metadata.Create(ctx, meta); err != nil {
			p.logger.Warn().
				Err(err).
				Str("code_sh", meta.CodeSH).
				Msg("Metadata persist failed")
			result.Errors = append(result.Errors, fmt.Sprintf("persist metadata %s: %v", meta.CodeSH, err))
			continue
		}
		result.MetadataCreated++
	}

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	p.logger.Info().
		Str("document_uuid", docUUID.String()).
		Int64("document_id", doc.ID).
		Str("language", result.Language).
		Int("chunks_created", result.ChunksCreated).
		Int("chunks_skipped", result.ChunksSkipped).
		Int("metadata_created", result.MetadataCreated).
		Dur("duration", result.Duration).
		Msg("Document ingestion completed")

	return result, nil
}

// LastDetectedLanguage reports the language of the most recently ingested
// document, defaulting to "fr" before the first run.
func (p *Pipeline) LastDetectedLanguage() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastLanguage == "" {
		return "fr"
	}
	return p.lastLanguage
}

func (p *Pipeline) setLastLanguage(lang string) {
	p.mu.Lock()
	p.lastLanguage = lang
	p.mu.Unlock()
}
