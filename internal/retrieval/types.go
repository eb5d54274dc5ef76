// Package retrieval provides hybrid retrieval combining vector similarity
// and structured metadata search over tariff chunks.
package retrieval

// Result sources, recorded so callers can tell which search path produced a
// hit.
const (
	SourceVector   = "vector"
	SourceMetadata = "metadata"
	SourceHybrid   = "hybrid"
	SourceShortcut = "shortcut"
	SourceKeyword  = "keyword"
	SourceFallback = "fallback"
)

// SearchResult is one retrieved chunk with its scores. VectorScore and
// MetadataScore are the per-leg scores; Score is the final ranking score.
type SearchResult struct {
	ChunkID       string  `json:"chunk_id"`
	Text          string  `json:"text"`
	CodeSH        string  `json:"code_sh,omitempty"`
	VectorScore   float64 `json:"vector_score"`
	MetadataScore float64 `json:"metadata_score"`
	Score         float64 `json:"score"`
	Source        string  `json:"source"`
}
