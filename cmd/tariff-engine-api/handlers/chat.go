package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/pkg/engine"
)

// ChatHandler handles conversational requests.
type ChatHandler struct {
	logger *observability.Logger
	engine *engine.Engine
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(logger *observability.Logger, eng *engine.Engine) *ChatHandler {
	return &ChatHandler{logger: logger, engine: eng}
}

// ChatRequestDTO represents the API request for a chat turn.
type ChatRequestDTO struct {
	SessionID string `json:"sessionId,omitempty"`
	Question  string `json:"question"`
}

// ChatResponseDTO represents the API response for a chat turn.
type ChatResponseDTO struct {
	SessionID string `json:"sessionId"`
	Answer    string `json:"answer"`
}

// Ask handles POST /api/v1/chat.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO ChatRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if reqDTO.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required", "")
		return
	}
	if reqDTO.SessionID == "" {
		reqDTO.SessionID = uuid.New().String()
	}

	answer, err := h.engine.Ask(ctx, reqDTO.SessionID, reqDTO.Question)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", reqDTO.SessionID).Msg("Chat turn failed")
		writeError(w, http.StatusInternalServerError, "chat failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ChatResponseDTO{
		SessionID: reqDTO.SessionID,
		Answer:    answer,
	})
}

// HistoryResponseDTO represents a session transcript.
type HistoryResponseDTO struct {
	SessionID string `json:"sessionId"`
	History   string `json:"history"`
}

// History handles GET /api/v1/chat/{sessionID}/history.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionID is required", "")
		return
	}

	history, err := h.engine.ChatHistory(ctx, sessionID)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to load chat history")
		writeError(w, http.StatusInternalServerError, "failed to load history", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponseDTO{
		SessionID: sessionID,
		History:   history,
	})
}

// ClearHistory handles DELETE /api/v1/chat/{sessionID}/history.
func (h *ChatHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionID is required", "")
		return
	}

	if err := h.engine.ClearChatHistory(ctx, sessionID); err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to clear chat history")
		writeError(w, http.StatusInternalServerError, "failed to clear history", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
