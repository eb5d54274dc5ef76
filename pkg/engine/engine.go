// Package engine assembles the tariff engine's components into one
// in-process facade, used by the API server, the CLI and embedding callers.
package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emsi-ai/tariff-engine/internal/cache"
	"github.com/emsi-ai/tariff-engine/internal/chat"
	"github.com/emsi-ai/tariff-engine/internal/config"
	"github.com/emsi-ai/tariff-engine/internal/datasync"
	"github.com/emsi-ai/tariff-engine/internal/embedding"
	"github.com/emsi-ai/tariff-engine/internal/ingest"
	"github.com/emsi-ai/tariff-engine/internal/llm"
	"github.com/emsi-ai/tariff-engine/internal/monitoring"
	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/internal/retrieval"
	"github.com/emsi-ai/tariff-engine/internal/storage"
	"github.com/emsi-ai/tariff-engine/internal/vector"
)

// Engine is the assembled application: storage, search, chat and
// maintenance behind one handle.
type Engine struct {
	cfg    *config.Config
	logger *observability.Logger

	db          *sql.DB
	repos       *storage.Repositories
	vectors     vector.Store
	cacheClient cache.Client

	pipeline  *ingest.Pipeline
	retrieval *retrieval.Service
	chat      *chat.Service
	datasync  *datasync.Service
	audit     *monitoring.AuditLogger
}

// New wires an engine from configuration. It opens the database, runs
// migrations and connects the configured vector and cache backends.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Engine, error) {
	db, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.Migrate(ctx, db, cfg.Database.Driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	repos := storage.NewRepositories(db)

	var vectors vector.Store
	switch cfg.Vector.Adapter {
	case "memory":
		vectors = vector.NewMemoryStore()
	default:
		vectors = vector.NewChromaStore(vector.ChromaConfig{
			BaseURL:    cfg.Vector.Chroma.BaseURL,
			Collection: cfg.Vector.Collection,
			Timeout:    cfg.Vector.Chroma.Timeout,
		}, logger)
	}

	var cacheClient cache.Client
	if cfg.Cache.Driver == "redis" {
		cacheClient, err = cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, using in-memory cache")
			cacheClient = cache.NewMemoryClient(cfg.Cache.MaxEntries)
		}
	} else {
		cacheClient = cache.NewMemoryClient(cfg.Cache.MaxEntries)
	}

	embedder := embedding.NewClient(embedding.Config{
		BaseURL:   cfg.Embedding.BaseURL,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.Embedding.Timeout,
	})
	generator := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		TopP:        cfg.LLM.TopP,
		TopK:        cfg.LLM.TopK,
		Timeout:     cfg.LLM.Timeout,
	})

	return assemble(cfg, logger, db, repos, vectors, cacheClient, embedder, generator), nil
}

// NewWithDependencies wires an engine around externally provided backends.
// Tests use it with the memory store and mock clients.
func NewWithDependencies(
	cfg *config.Config,
	logger *observability.Logger,
	db *sql.DB,
	vectors vector.Store,
	cacheClient cache.Client,
	embedder embedding.Embedder,
	generator llm.Generator,
) *Engine {
	return assemble(cfg, logger, db, storage.NewRepositories(db), vectors, cacheClient, embedder, generator)
}

func assemble(
	cfg *config.Config,
	logger *observability.Logger,
	db *sql.DB,
	repos *storage.Repositories,
	vectors vector.Store,
	cacheClient cache.Client,
	embedder embedding.Embedder,
	generator llm.Generator,
) *Engine {
	pipeline := ingest.NewPipeline(logger, cfg.Ingestion, repos, embedder, vectors)

	retrievalSvc := retrieval.NewService(
		cfg.Retrieval, logger, embedder, pipeline.Extractor(),
		vectors, repos, cacheClient, cfg.Cache.TTL,
	)

	var history chat.HistoryStore
	if cfg.Cache.Driver == "redis" {
		history = chat.NewCachedHistory(cacheClient, 0)
	} else {
		history = chat.NewMemoryHistory()
	}
	chatSvc := chat.NewService(retrievalSvc, generator, history, cfg.Retrieval.MaxContextChunks, logger)

	var publisher monitoring.Publisher
	if redisClient, ok := cacheClient.(*cache.RedisClient); ok {
		publisher = redisClient
	}

	return &Engine{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		repos:       repos,
		vectors:     vectors,
		cacheClient: cacheClient,
		pipeline:    pipeline,
		retrieval:   retrievalSvc,
		chat:        chatSvc,
		datasync:    datasync.NewService(repos, vectors, logger),
		audit:       monitoring.NewAuditLogger(logger, publisher),
	}
}

// Ingest processes raw document text under a source name.
func (e *Engine) Ingest(ctx context.Context, rawText, sourceName string) (*ingest.IngestResult, error) {
	result, err := e.pipeline.Ingest(ctx, rawText, sourceName)
	if err == nil {
		e.audit.LogIngestion(ctx, result.DocumentID, result.SourceName, result.Language, result.ChunksCreated, result.MetadataCreated)
	}
	return result, err
}

// IngestFile extracts and ingests a file from disk.
func (e *Engine) IngestFile(ctx context.Context, path, sourceName string) (*ingest.IngestResult, error) {
	result, err := e.pipeline.IngestFile(ctx, path, sourceName)
	if err == nil {
		e.audit.LogIngestion(ctx, result.DocumentID, result.SourceName, result.Language, result.ChunksCreated, result.MetadataCreated)
	}
	return result, err
}

// SearchHybrid runs the fused vector and metadata search.
func (e *Engine) SearchHybrid(ctx context.Context, query string, topK int) ([]retrieval.SearchResult, error) {
	return e.retrieval.SearchHybrid(ctx, query, topK)
}

// FindRelevantChunks runs the staged retrieval flow used by chat.
func (e *Engine) FindRelevantChunks(ctx context.Context, query string, topK int) ([]retrieval.SearchResult, error) {
	return e.retrieval.FindRelevantChunks(ctx, query, topK)
}

// ExtractQueryAttributes detects categorical attributes in a query.
func (e *Engine) ExtractQueryAttributes(query string) map[string]string {
	return e.retrieval.ExtractQueryAttributes(query)
}

// Ask answers a question within a chat session.
func (e *Engine) Ask(ctx context.Context, sessionID, question string) (string, error) {
	return e.chat.Ask(ctx, sessionID, question)
}

// ChatHistory returns the rendered conversation for a session.
func (e *Engine) ChatHistory(ctx context.Context, sessionID string) (string, error) {
	return e.chat.History(ctx, sessionID)
}

// ClearChatHistory forgets a chat session.
func (e *Engine) ClearChatHistory(ctx context.Context, sessionID string) error {
	return e.chat.ClearHistory(ctx, sessionID)
}

// Sync reconciles the vector index with the relational store.
func (e *Engine) Sync(ctx context.Context) (*datasync.SyncReport, error) {
	report, err := e.datasync.Sync(ctx)
	if err == nil {
		e.audit.LogSync(ctx, report.Orphans, report.Recovered, report.Failed)
	}
	return report, err
}

// SyncStatus reports store counts and whether they agree.
func (e *Engine) SyncStatus(ctx context.Context) (*datasync.SyncStatus, error) {
	return e.datasync.Status(ctx)
}

// ClearAll wipes every store.
func (e *Engine) ClearAll(ctx context.Context) error {
	if err := e.datasync.ClearAll(ctx); err != nil {
		return err
	}
	e.audit.LogPurge(ctx)
	return nil
}

// DeleteChunk removes one chunk from every store.
func (e *Engine) DeleteChunk(ctx context.Context, chunkID string) error {
	if err := e.datasync.DeleteChunk(ctx, chunkID); err != nil {
		return err
	}
	e.audit.LogChunkDeletion(ctx, chunkID)
	return nil
}

// DeleteDocument removes a document and everything derived from it.
func (e *Engine) DeleteDocument(ctx context.Context, documentID int64) error {
	if err := e.datasync.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	e.audit.LogDocumentDeletion(ctx, documentID)
	return nil
}

// Documents lists ingested documents, newest first.
func (e *Engine) Documents(ctx context.Context) ([]*storage.Document, error) {
	return e.repos.Documents.List(ctx)
}

// Repositories exposes the storage layer for advanced callers.
func (e *Engine) Repositories() *storage.Repositories {
	return e.repos
}

// Health pings the engine's backends.
func (e *Engine) Health(ctx context.Context) map[string]string {
	health := map[string]string{"status": "ok"}

	if err := e.db.PingContext(ctx); err != nil {
		health["database"] = err.Error()
		health["status"] = "degraded"
	} else {
		health["database"] = "ok"
	}

	if _, err := e.vectors.Count(ctx); err != nil {
		health["vector"] = err.Error()
		health["status"] = "degraded"
	} else {
		health["vector"] = "ok"
	}

	return health
}

// Close releases the engine's resources.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.vectors.Close(); err != nil {
		firstErr = err
	}
	if err := e.cacheClient.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
