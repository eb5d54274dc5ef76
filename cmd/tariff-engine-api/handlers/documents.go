package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/internal/storage"
	"github.com/emsi-ai/tariff-engine/pkg/engine"
)

// DocumentHandler handles document inventory requests.
type DocumentHandler struct {
	logger *observability.Logger
	engine *engine.Engine
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(logger *observability.Logger, eng *engine.Engine) *DocumentHandler {
	return &DocumentHandler{logger: logger, engine: eng}
}

// DocumentListResponseDTO represents the stored document inventory.
type DocumentListResponseDTO struct {
	Count     int                 `json:"count"`
	Documents []*storage.Document `json:"documents"`
}

// List handles GET /api/v1/documents.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docs, err := h.engine.Documents(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list documents")
		writeError(w, http.StatusInternalServerError, "failed to list documents", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, DocumentListResponseDTO{
		Count:     len(docs),
		Documents: docs,
	})
}

// Delete handles DELETE /api/v1/documents/{documentID}.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "documentID")
	documentID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id", idStr)
		return
	}

	if err := h.engine.DeleteDocument(ctx, documentID); err != nil {
		h.logger.Error().Err(err).Int64("document_id", documentID).Msg("Failed to delete document")
		writeError(w, http.StatusInternalServerError, "failed to delete document", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteChunk handles DELETE /api/v1/chunks/{chunkID}.
func (h *DocumentHandler) DeleteChunk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	chunkID := chi.URLParam(r, "chunkID")
	if chunkID == "" {
		writeError(w, http.StatusBadRequest, "chunkID is required", "")
		return
	}

	if err := h.engine.DeleteChunk(ctx, chunkID); err != nil {
		h.logger.Error().Err(err).Str("chunk_id", chunkID).Msg("Failed to delete chunk")
		writeError(w, http.StatusInternalServerError, "failed to delete chunk", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
