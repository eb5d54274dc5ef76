package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/internal/retrieval"
	"github.com/emsi-ai/tariff-engine/pkg/engine"
)

// SearchHandler handles hybrid search and attribute extraction requests.
type SearchHandler struct {
	logger *observability.Logger
	engine *engine.Engine
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(logger *observability.Logger, eng *engine.Engine) *SearchHandler {
	return &SearchHandler{logger: logger, engine: eng}
}

// SearchRequestDTO represents the API request for a search.
type SearchRequestDTO struct {
	Query string `json:"query"`
	TopK  int    `json:"topK,omitempty"`
}

// SearchResponseDTO represents the API response for a search.
type SearchResponseDTO struct {
	Query   string                   `json:"query"`
	Count   int                      `json:"count"`
	Results []retrieval.SearchResult `json:"results"`
}

// Hybrid handles POST /api/v1/search/hybrid.
func (h *SearchHandler) Hybrid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO SearchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if reqDTO.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required", "")
		return
	}

	results, err := h.engine.SearchHybrid(ctx, reqDTO.Query, reqDTO.TopK)
	if err != nil {
		h.logger.Error().Err(err).Str("query", reqDTO.Query).Msg("Hybrid search failed")
		writeError(w, http.StatusInternalServerError, "search failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SearchResponseDTO{
		Query:   reqDTO.Query,
		Count:   len(results),
		Results: results,
	})
}

// Chunks handles POST /api/v1/search/chunks.
func (h *SearchHandler) Chunks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO SearchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if reqDTO.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required", "")
		return
	}

	results, err := h.engine.FindRelevantChunks(ctx, reqDTO.Query, reqDTO.TopK)
	if err != nil {
		h.logger.Error().Err(err).Str("query", reqDTO.Query).Msg("Chunk search failed")
		writeError(w, http.StatusInternalServerError, "search failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SearchResponseDTO{
		Query:   reqDTO.Query,
		Count:   len(results),
		Results: results,
	})
}

// AttributesResponseDTO represents extracted query attributes.
type AttributesResponseDTO struct {
	Query      string            `json:"query"`
	Attributes map[string]string `json:"attributes"`
}

// Attributes handles POST /api/v1/search/attributes.
func (h *SearchHandler) Attributes(w http.ResponseWriter, r *http.Request) {
	var reqDTO SearchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if reqDTO.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required", "")
		return
	}

	attrs := h.engine.ExtractQueryAttributes(reqDTO.Query)

	writeJSON(w, http.StatusOK, AttributesResponseDTO{
		Query:      reqDTO.Query,
		Attributes: attrs,
	})
}
