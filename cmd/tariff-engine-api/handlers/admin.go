package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/pkg/engine"
)

// AdminHandler handles maintenance operations on the stores.
type AdminHandler struct {
	logger *observability.Logger
	engine *engine.Engine
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(logger *observability.Logger, eng *engine.Engine) *AdminHandler {
	return &AdminHandler{logger: logger, engine: eng}
}

// Sync handles POST /api/v1/admin/sync.
func (h *AdminHandler) Sync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, err := h.engine.Sync(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Store sync failed")
		writeError(w, http.StatusInternalServerError, "sync failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// SyncStatus handles GET /api/v1/admin/sync/status.
func (h *AdminHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, err := h.engine.SyncStatus(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Sync status check failed")
		writeError(w, http.StatusInternalServerError, "sync status failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// PurgeRequestDTO guards the destructive purge endpoint.
type PurgeRequestDTO struct {
	Confirm bool `json:"confirm"`
}

// Purge handles POST /api/v1/admin/purge. It wipes every store and
// requires an explicit confirmation flag in the body.
func (h *AdminHandler) Purge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO PurgeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !reqDTO.Confirm {
		writeError(w, http.StatusBadRequest, "confirm must be true to purge all data", "")
		return
	}

	if err := h.engine.ClearAll(ctx); err != nil {
		h.logger.Error().Err(err).Msg("Purge failed")
		writeError(w, http.StatusInternalServerError, "purge failed", err.Error())
		return
	}

	h.logger.Warn().Msg("All stores purged via admin API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "purged"})
}
