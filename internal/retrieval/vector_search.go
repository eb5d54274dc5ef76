package retrieval

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/internal/vector"
)

// remapBand is one segment of the piecewise distance-to-similarity mapping:
// for distance < Upper, similarity = Base - Slope*distance.
type remapBand struct {
	Upper float64
	Base  float64
	Slope float64
}

// remapBands maps raw vector distances onto [0,1] similarity. Each base is
// chosen so segments join at the breakpoints and similarity never increases
// with distance. The bands are tuned for Euclidean distances over normalized
// embeddings, where useful neighbors land well under 1.5 and anything past 6
// is noise.
var remapBands = []remapBand{
	{Upper: 0.3, Base: 1.0, Slope: 0.3},   // 1.0 down to 0.91
	{Upper: 0.8, Base: 1.03, Slope: 0.4},  // 0.91 down to 0.71
	{Upper: 1.5, Base: 0.91, Slope: 0.25}, // 0.71 down to 0.535
	{Upper: 3.0, Base: 0.76, Slope: 0.15}, // 0.535 down to 0.31
	{Upper: 6.0, Base: 0.46, Slope: 0.05}, // 0.31 down to 0.16
}

// RemapDistance converts a raw distance to a similarity score. Distances
// beyond the last band decay hyperbolically from the last segment's 0.16
// endpoint, with a 0.02 floor.
func RemapDistance(d float64) float64 {
	for _, band := range remapBands {
		if d < band.Upper {
			return band.Base - band.Slope*d
		}
	}
	return math.Max(0.02, 0.64/(1.0+0.5*d))
}

var tenDigitCode = regexp.MustCompile(`\b\d{10}\b`)

// boostRule raises a result's score to Floor when its text matches. Rules
// are ordered by descending floor and the first match wins, so a chunk that
// satisfies several rules gets the highest floor.
type boostRule struct {
	Name    string
	Floor   float64
	Matches func(lower string) bool
}

var boostRules = []boostRule{
	{
		Name:  "zoo_mammals",
		Floor: 0.85,
		Matches: func(t string) bool {
			return strings.Contains(t, "0106201000") ||
				(strings.Contains(t, "mammifères") && strings.Contains(t, "zoologiques")) ||
				(strings.Contains(t, "destinés aux parcs") && strings.Contains(t, "zoologiques"))
		},
	},
	{
		Name:  "racehorses",
		Floor: 0.8,
		Matches: func(t string) bool {
			return strings.Contains(t, "0101292000") ||
				strings.Contains(t, "0101210000") ||
				strings.Contains(t, "de course")
		},
	},
	{
		Name:    "tariff_code",
		Floor:   0.75,
		Matches: tenDigitCode.MatchString,
	},
	{
		Name:  "duty_rates",
		Floor: 0.7,
		Matches: func(t string) bool {
			return strings.Contains(t, "droit d'importation") &&
				strings.Contains(t, "%") &&
				(strings.Contains(t, "tva") || strings.Contains(t, "tpi"))
		},
	},
}

// ApplyContentBoost raises the score to the matching rule's floor, if any.
func ApplyContentBoost(text string, score float64) float64 {
	lower := strings.ToLower(text)
	for _, rule := range boostRules {
		if rule.Matches(lower) {
			if score < rule.Floor {
				return rule.Floor
			}
			return score
		}
	}
	return score
}

// VectorSearcher runs similarity search against the vector store, remapping
// distances and applying content boosts before the score threshold.
type VectorSearcher struct {
	store  vector.Store
	logger *observability.Logger
}

// NewVectorSearcher creates a vector searcher.
func NewVectorSearcher(store vector.Store, logger *observability.Logger) *VectorSearcher {
	return &VectorSearcher{store: store, logger: logger}
}

// Search returns up to topK chunks scored by remapped similarity. Content
// boosts run after remapping; results below minScore are dropped after
// boosting, so a boosted chunk survives a weak embedding match.
func (s *VectorSearcher) Search(ctx context.Context, embedding []float32, topK int, minScore float64) ([]SearchResult, error) {
	hits, err := s.store.Query(ctx, embedding, topK)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		score := RemapDistance(hit.Distance)
		score = ApplyContentBoost(hit.Document, score)
		if score < minScore {
			continue
		}
		results = append(results, SearchResult{
			ChunkID:     hit.ID,
			Text:        hit.Document,
			VectorScore: score,
			Score:       score,
			Source:      SourceVector,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	s.logger.Debug().
		Int("hits", len(hits)).
		Int("kept", len(results)).
		Float64("min_score", minScore).
		Msg("Vector search completed")
	return results, nil
}
