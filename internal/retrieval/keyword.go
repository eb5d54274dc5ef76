package retrieval

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/internal/storage"
)

// frenchStopwords are skipped when tokenizing queries for the keyword
// fallback.
var frenchStopwords = map[string]struct{}{
	"les": {}, "des": {}, "une": {}, "est": {}, "sont": {}, "dans": {},
	"pour": {}, "avec": {}, "sur": {}, "par": {}, "que": {}, "qui": {},
	"pas": {}, "aux": {}, "ces": {}, "ses": {}, "son": {}, "leur": {},
	"mais": {}, "comme": {}, "tout": {}, "tous": {}, "cette": {}, "quel": {},
	"quelle": {}, "quels": {}, "quelles": {}, "ont": {}, "être": {},
}

var tokenCleaner = regexp.MustCompile(`[^a-zA-Z0-9éèêàùçôûîïöü' ]`)

// KeywordSearcher is the last-resort search path: plain token containment
// over a bounded scan of stored chunks.
type KeywordSearcher struct {
	chunks    *storage.ChunkRepository
	scanLimit int
	logger    *observability.Logger
}

// NewKeywordSearcher creates a keyword searcher scanning at most scanLimit
// chunks.
func NewKeywordSearcher(chunks *storage.ChunkRepository, scanLimit int, logger *observability.Logger) *KeywordSearcher {
	if scanLimit <= 0 {
		scanLimit = 500
	}
	return &KeywordSearcher{chunks: chunks, scanLimit: scanLimit, logger: logger}
}

// Search scores chunks by how many query tokens their text contains and
// returns the topK best, zero-score chunks dropped.
func (s *KeywordSearcher) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	chunks, err := s.chunks.FindTopN(ctx, s.scanLimit)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, chunk := range chunks {
		lower := strings.ToLower(chunk.Text)
		hits := 0
		for _, token := range tokens {
			if strings.Contains(lower, token) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		results = append(results, SearchResult{
			ChunkID: chunk.ID,
			Text:    chunk.Text,
			Score:   float64(hits),
			Source:  SourceKeyword,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}

	s.logger.Debug().
		Int("tokens", len(tokens)).
		Int("scanned", len(chunks)).
		Int("kept", len(results)).
		Msg("Keyword search completed")
	return results, nil
}

// Tokenize lowercases, strips punctuation and returns the query's
// non-stopword tokens longer than two characters.
func Tokenize(query string) []string {
	cleaned := tokenCleaner.ReplaceAllString(strings.ToLower(query), " ")
	var tokens []string
	for _, t := range strings.Fields(cleaned) {
		if len([]rune(t)) <= 2 {
			continue
		}
		if _, stop := frenchStopwords[t]; stop {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}
