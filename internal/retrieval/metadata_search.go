package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/internal/storage"
)

// Attribute keys understood by metadata search. They match what the query
// attribute extractor emits.
const (
	AttrType   = "type"
	AttrState  = "etat"
	AttrBoning = "desossage"
	AttrAge    = "age"
	AttrUsage  = "usage"
)

// exactWeights are the per-attribute weights for exact metadata scoring.
// Product type dominates; age is the weakest signal.
var exactWeights = map[string]float64{
	AttrType:   3,
	AttrState:  2,
	AttrBoning: 2,
	AttrAge:    1,
	AttrUsage:  2,
}

// fuzzyWeights are the per-attribute increments for fuzzy scoring.
var fuzzyWeights = map[string]float64{
	AttrType:   0.3,
	AttrState:  0.2,
	AttrBoning: 0.2,
	AttrUsage:  0.3,
}

// fuzzyMultiBonus scales the fuzzy score up when more than one attribute
// matched.
const fuzzyMultiBonus = 1.5

// MetadataSearcher matches query attributes against extracted product
// metadata: exact multi-criteria first, fuzzy substring scan second.
type MetadataSearcher struct {
	repos          *storage.Repositories
	fuzzyThreshold float64
	scanLimit      int
	logger         *observability.Logger
}

// NewMetadataSearcher creates a metadata searcher. fuzzyThreshold is the
// minimum fuzzy score to keep; scanLimit bounds the fuzzy scan.
func NewMetadataSearcher(repos *storage.Repositories, fuzzyThreshold float64, scanLimit int, logger *observability.Logger) *MetadataSearcher {
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = 0.3
	}
	if scanLimit <= 0 {
		scanLimit = 500
	}
	return &MetadataSearcher{
		repos:          repos,
		fuzzyThreshold: fuzzyThreshold,
		scanLimit:      scanLimit,
		logger:         logger,
	}
}

// Search returns chunks whose metadata matches the query attributes, best
// first. Exact criteria matching runs first; when it yields fewer than topK
// rows, a fuzzy pass over the keyword and synonym blobs supplements the
// tail. Exact hits win on chunk collisions.
func (s *MetadataSearcher) Search(ctx context.Context, attrs map[string]string, topK int) ([]SearchResult, error) {
	if len(attrs) == 0 {
		return nil, nil
	}

	results, err := s.searchExact(ctx, attrs, topK)
	if err != nil {
		return nil, err
	}
	if topK > 0 && len(results) >= topK {
		return results, nil
	}

	fuzzy, err := s.searchFuzzy(ctx, attrs, topK)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		seen[r.ChunkID] = true
	}
	for _, r := range fuzzy {
		if seen[r.ChunkID] {
			continue
		}
		results = append(results, r)
		if topK > 0 && len(results) == topK {
			break
		}
	}
	return results, nil
}

func (s *MetadataSearcher) searchExact(ctx context.Context, attrs map[string]string, topK int) ([]SearchResult, error) {
	rows, err := s.repos.Metadata.FindByMultipleCriteria(ctx,
		attrValue(attrs, AttrType),
		attrValue(attrs, AttrState),
		attrValue(attrs, AttrBoning),
		attrValue(attrs, AttrUsage),
	)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		score := ExactScore(attrs, row)
		if score == 0 {
			continue
		}
		result, ok := s.toResult(ctx, row, score)
		if !ok {
			continue
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}

	s.logger.Debug().Int("candidates", len(rows)).Int("kept", len(results)).Msg("Exact metadata search completed")
	return results, nil
}

func (s *MetadataSearcher) searchFuzzy(ctx context.Context, attrs map[string]string, topK int) ([]SearchResult, error) {
	rows, err := s.fuzzyCandidates(ctx, attrs)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, row := range rows {
		score := FuzzyScore(attrs, row)
		if score <= s.fuzzyThreshold {
			continue
		}
		result, ok := s.toResult(ctx, row, score)
		if !ok {
			continue
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}

	s.logger.Debug().Int("scanned", len(rows)).Int("kept", len(results)).Msg("Fuzzy metadata search completed")
	return results, nil
}

// fuzzyCandidates collects rows whose keyword or synonym blob mentions any
// query attribute value, deduplicated by row id. The scan limit bounds the
// candidate pool.
func (s *MetadataSearcher) fuzzyCandidates(ctx context.Context, attrs map[string]string) ([]*storage.ProductMetadata, error) {
	seen := make(map[int64]bool)
	var rows []*storage.ProductMetadata
	for _, attr := range []string{AttrType, AttrState, AttrBoning, AttrUsage} {
		value := attrs[attr]
		if value == "" {
			continue
		}
		found, err := s.repos.Metadata.FindByKeywordsOrSynonyms(ctx, value)
		if err != nil {
			return nil, err
		}
		for _, row := range found {
			if seen[row.ID] || len(rows) >= s.scanLimit {
				continue
			}
			seen[row.ID] = true
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// toResult resolves the metadata row's chunk text. Rows without a linked
// chunk or with a missing chunk are dropped.
func (s *MetadataSearcher) toResult(ctx context.Context, row *storage.ProductMetadata, score float64) (SearchResult, bool) {
	if row.ChunkID == nil {
		return SearchResult{}, false
	}
	chunk, err := s.repos.Chunks.GetByID(ctx, *row.ChunkID)
	if err != nil {
		s.logger.Warn().Err(err).Str("chunk_id", *row.ChunkID).Msg("Metadata row points at missing chunk")
		return SearchResult{}, false
	}
	return SearchResult{
		ChunkID:       chunk.ID,
		Text:          chunk.Text,
		CodeSH:        row.CodeSH,
		MetadataScore: score,
		Score:         score,
		Source:        SourceMetadata,
	}, true
}

// ExactScore computes the weighted exact match ratio between query
// attributes and a metadata row. Only attributes present on BOTH sides
// contribute to the achievable maximum, so a row missing a field is not
// penalized for it. Match is case-insensitive containment of the query
// value inside the row's field.
func ExactScore(attrs map[string]string, row *storage.ProductMetadata) float64 {
	var score, maxScore float64

	check := func(attr string, field *string) {
		value, ok := attrs[attr]
		if !ok || value == "" || field == nil || *field == "" {
			return
		}
		weight := exactWeights[attr]
		maxScore += weight
		if strings.Contains(strings.ToLower(*field), strings.ToLower(value)) {
			score += weight
		}
	}

	check(AttrType, row.ProductType)
	check(AttrState, row.ProductState)
	check(AttrBoning, row.Boning)
	check(AttrAge, row.AnimalAge)
	check(AttrUsage, row.SpecificUse)

	if maxScore == 0 {
		return 0
	}
	return score / maxScore
}

// FuzzyScore computes the loose substring score between query attributes
// and a metadata row: fixed increments per matching attribute, scaled by
// 1.5 when more than one matched, capped at 1.0.
func FuzzyScore(attrs map[string]string, row *storage.ProductMetadata) float64 {
	var score float64
	matches := 0

	check := func(attr string, field *string) {
		value, ok := attrs[attr]
		if !ok || value == "" || field == nil || *field == "" {
			return
		}
		f := strings.ToLower(*field)
		v := strings.ToLower(value)
		if strings.Contains(f, v) || strings.Contains(v, f) {
			score += fuzzyWeights[attr]
			matches++
		}
	}

	check(AttrType, row.ProductType)
	check(AttrState, row.ProductState)
	check(AttrBoning, row.Boning)
	check(AttrUsage, row.SpecificUse)

	if matches > 1 {
		score *= fuzzyMultiBonus
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func attrValue(attrs map[string]string, key string) *string {
	if v, ok := attrs[key]; ok && v != "" {
		return &v
	}
	return nil
}
