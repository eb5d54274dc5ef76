package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/emsi-ai/tariff-engine/internal/cache"
	"github.com/emsi-ai/tariff-engine/internal/config"
	"github.com/emsi-ai/tariff-engine/internal/embedding"
	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/internal/storage"
	"github.com/emsi-ai/tariff-engine/internal/vector"
)

// vectorOverfetch widens the candidate pool before content filtering trims
// it back to topK.
const vectorOverfetch = 5

// defaultTopK applies when a caller passes a non-positive k.
const defaultTopK = 5

// AttributeExtractor pulls categorical attributes out of a query. The
// ingestion extractor satisfies this, so search and ingestion share one
// dictionary.
type AttributeExtractor interface {
	ExtractQueryAttributes(query string) map[string]string
}

// Service is the retrieval front door: priority shortcuts, hybrid fusion of
// vector and metadata legs, and the degradation chain down to keyword
// search.
type Service struct {
	cfg       config.RetrievalConfig
	logger    *observability.Logger
	embedder  embedding.Embedder
	extractor AttributeExtractor
	vectors   *VectorSearcher
	metadata  *MetadataSearcher
	keyword   *KeywordSearcher
	shortcuts *ShortcutMatcher
	repos     *storage.Repositories
	cache     cache.Client
	cacheTTL  time.Duration
}

// NewService wires the retrieval service. cacheClient may be nil to disable
// result caching.
func NewService(
	cfg config.RetrievalConfig,
	logger *observability.Logger,
	embedder embedding.Embedder,
	extractor AttributeExtractor,
	store vector.Store,
	repos *storage.Repositories,
	cacheClient cache.Client,
	cacheTTL time.Duration,
) *Service {
	return &Service{
		cfg:       cfg,
		logger:    logger,
		embedder:  embedder,
		extractor: extractor,
		vectors:   NewVectorSearcher(store, logger),
		metadata:  NewMetadataSearcher(repos, cfg.FuzzyThreshold, cfg.KeywordScanLimit, logger),
		keyword:   NewKeywordSearcher(repos.Chunks, cfg.KeywordScanLimit, logger),
		shortcuts: NewShortcutMatcher(repos.Chunks, DefaultShortcuts(), logger),
		repos:     repos,
		cache:     cacheClient,
		cacheTTL:  cacheTTL,
	}
}

// ExtractQueryAttributes exposes the attribute extractor for API callers.
func (s *Service) ExtractQueryAttributes(query string) map[string]string {
	return s.extractor.ExtractQueryAttributes(query)
}

// SearchHybrid runs both search legs and fuses their scores. Shortcuts win
// outright; a failed leg degrades to pure vector search with synthetic
// scores rather than failing the request.
func (s *Service) SearchHybrid(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	if cached, ok := s.cacheGet(ctx, query, topK); ok {
		return cached, nil
	}

	if results, err := s.shortcuts.Search(ctx, query, topK); err != nil {
		s.logger.Warn().Err(err).Msg("Shortcut search failed, continuing with hybrid flow")
	} else if len(results) > 0 {
		s.cacheSet(ctx, query, topK, results)
		return results, nil
	}

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil || len(emb) == 0 {
		s.logger.Warn().Err(err).Msg("Query embedding unavailable, using keyword search")
		return s.keyword.Search(ctx, query, topK)
	}

	attrs := s.extractor.ExtractQueryAttributes(query)

	var vectorResults, metadataResults []SearchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Fetch twice the ask so fusion can promote candidates the
		// metadata leg scores highly; the fused list is trimmed to topK.
		var err error
		vectorResults, err = s.vectors.Search(gctx, emb, 2*topK, s.cfg.MinVectorScore)
		return err
	})
	g.Go(func() error {
		var err error
		metadataResults, err = s.metadata.Search(gctx, attrs, topK)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn().Err(err).Msg("Hybrid search leg failed, falling back to vector search")
		return s.fallbackVector(ctx, emb, query, topK)
	}

	results := s.fuse(ctx, attrs, metadataResults, vectorResults, topK)
	if len(results) == 0 {
		return s.keyword.Search(ctx, query, topK)
	}
	s.cacheSet(ctx, query, topK, results)
	return results, nil
}

// FindRelevantChunks is the retrieval path behind chat: shortcuts, then a
// metadata short circuit, then wide vector search, then keyword search.
// Unlike SearchHybrid it returns as soon as any stage produces results.
func (s *Service) FindRelevantChunks(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	if results, err := s.shortcuts.Search(ctx, query, topK); err != nil {
		s.logger.Warn().Err(err).Msg("Shortcut search failed, continuing")
	} else if len(results) > 0 {
		return results, nil
	}

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil || len(emb) == 0 {
		s.logger.Warn().Err(err).Msg("Query embedding unavailable, using keyword search")
		return s.keyword.Search(ctx, query, topK)
	}

	attrs := s.extractor.ExtractQueryAttributes(query)
	if metadataResults, err := s.metadata.Search(ctx, attrs, topK); err != nil {
		s.logger.Warn().Err(err).Msg("Metadata search failed, continuing")
	} else if len(metadataResults) > 0 {
		return metadataResults, nil
	}

	vectorResults, err := s.vectors.Search(ctx, emb, topK*vectorOverfetch, s.cfg.MinVectorScore)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Vector search failed, using keyword search")
		return s.keyword.Search(ctx, query, topK)
	}
	if len(vectorResults) > topK {
		vectorResults = vectorResults[:topK]
	}
	if len(vectorResults) == 0 {
		return s.keyword.Search(ctx, query, topK)
	}
	return vectorResults, nil
}

// fuse merges the two result lists by chunk ID. The vector leg's score is
// authoritative for vectorScore; a vector-only result picks up its metadata
// score lazily from the linked metadata row. Combined score is the weighted
// sum with an agreement bonus when both legs are confident.
func (s *Service) fuse(ctx context.Context, attrs map[string]string, metadataResults, vectorResults []SearchResult, topK int) []SearchResult {
	type fused struct {
		result        SearchResult
		vectorScore   float64
		metadataScore float64
	}

	merged := make(map[string]*fused)
	order := make([]string, 0, len(metadataResults)+len(vectorResults))

	for _, m := range metadataResults {
		merged[m.ChunkID] = &fused{result: m, metadataScore: m.MetadataScore}
		order = append(order, m.ChunkID)
	}

	for _, v := range vectorResults {
		f, ok := merged[v.ChunkID]
		if !ok {
			f = &fused{result: v}
			merged[v.ChunkID] = f
			order = append(order, v.ChunkID)
		}
		f.vectorScore = v.VectorScore
		if f.metadataScore == 0 && len(attrs) > 0 {
			if row, err := s.repos.Metadata.FindByChunkID(ctx, v.ChunkID); err == nil {
				f.metadataScore = ExactScore(attrs, row)
			}
		}
	}

	results := make([]SearchResult, 0, len(merged))
	for _, id := range order {
		f := merged[id]
		v := clip(f.vectorScore)
		m := clip(f.metadataScore)
		total := s.cfg.VectorWeight*v + s.cfg.MetadataWeight*m
		if v > 0.5 && m > 0.5 {
			total *= s.cfg.AgreementBonus
		}
		if total > 1.0 {
			total = 1.0
		}

		r := f.result
		r.VectorScore = v
		r.MetadataScore = m
		r.Score = total
		r.Source = SourceHybrid
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// fallbackVector re-runs plain vector search and rewrites the results with
// synthetic rank-based scores, so the caller still gets a usable ordering
// when the hybrid path broke.
func (s *Service) fallbackVector(ctx context.Context, emb []float32, query string, topK int) ([]SearchResult, error) {
	results, err := s.vectors.Search(ctx, emb, topK, s.cfg.MinVectorScore)
	if err != nil || len(results) == 0 {
		return s.keyword.Search(ctx, query, topK)
	}
	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		score := 0.8 - 0.1*float64(i)
		if score < 0.1 {
			score = 0.1
		}
		results[i].ChunkID = fmt.Sprintf("fallback_%d", i)
		results[i].Score = score
		results[i].Source = SourceFallback
	}
	return results, nil
}

func (s *Service) cacheGet(ctx context.Context, query string, topK int) ([]SearchResult, bool) {
	if !s.cfg.CacheResults || s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, cache.SearchCacheKey(query, topK))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("Search cache read failed")
		return nil, false
	}
	var results []SearchResult
	if err := json.Unmarshal(raw, &results); err != nil {
		s.logger.Warn().Err(err).Msg("Search cache entry unreadable, ignoring")
		return nil, false
	}
	return results, true
}

func (s *Service) cacheSet(ctx context.Context, query string, topK int, results []SearchResult) {
	if !s.cfg.CacheResults || s.cache == nil {
		return
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.SearchCacheKey(query, topK), raw, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Msg("Search cache write failed")
	}
}

func clip(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
