package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/emsi-ai/tariff-engine/internal/ingest"
	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/pkg/engine"
)

const maxUploadBytes = 64 << 20 // 64 MiB

// IngestionHandler handles document ingestion requests.
type IngestionHandler struct {
	logger *observability.Logger
	engine *engine.Engine
}

// NewIngestionHandler creates a new ingestion handler.
func NewIngestionHandler(logger *observability.Logger, eng *engine.Engine) *IngestionHandler {
	return &IngestionHandler{logger: logger, engine: eng}
}

// IngestRequestDTO represents the API request for raw-text ingestion.
type IngestRequestDTO struct {
	Text       string `json:"text"`
	SourceName string `json:"sourceName"`
}

// IngestResponseDTO represents the outcome of an ingestion run.
type IngestResponseDTO struct {
	DocumentID      int64    `json:"documentId"`
	DocumentUUID    string   `json:"documentUuid"`
	SourceName      string   `json:"sourceName"`
	Language        string   `json:"language"`
	ChunksCreated   int      `json:"chunksCreated"`
	ChunksSkipped   int      `json:"chunksSkipped"`
	MetadataCreated int      `json:"metadataCreated"`
	DurationMs      int64    `json:"durationMs"`
	Errors          []string `json:"errors,omitempty"`
}

// Ingest handles POST /api/v1/ingest.
func (h *IngestionHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO IngestRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if reqDTO.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required", "")
		return
	}
	if reqDTO.SourceName == "" {
		reqDTO.SourceName = "inline"
	}

	result, err := h.engine.Ingest(ctx, reqDTO.Text, reqDTO.SourceName)
	if err != nil {
		h.logger.Error().Err(err).Str("source", reqDTO.SourceName).Msg("Ingestion failed")
		writeError(w, http.StatusInternalServerError, "ingestion failed", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, toIngestDTO(result))
}

// Upload handles POST /api/v1/documents/upload (multipart form, field "file").
func (h *IngestionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required", err.Error())
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".pdf" && ext != ".docx" {
		writeError(w, http.StatusBadRequest, "unsupported file type",
			"only .pdf and .docx files are accepted")
		return
	}

	// Spool to a temp file so format-specific extractors can reopen it.
	tmp, err := os.CreateTemp("", "upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store upload", err.Error())
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		writeError(w, http.StatusInternalServerError, "failed to store upload", err.Error())
		return
	}
	if err := tmp.Close(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store upload", err.Error())
		return
	}

	result, err := h.engine.IngestFile(ctx, tmp.Name(), header.Filename)
	if err != nil {
		h.logger.Error().Err(err).Str("filename", header.Filename).Msg("Upload ingestion failed")
		writeError(w, http.StatusInternalServerError, "ingestion failed", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, toIngestDTO(result))
}

func toIngestDTO(result *ingest.IngestResult) IngestResponseDTO {
	return IngestResponseDTO{
		DocumentID:      result.DocumentID,
		DocumentUUID:    result.DocumentUUID.String(),
		SourceName:      result.SourceName,
		Language:        result.Language,
		ChunksCreated:   result.ChunksCreated,
		ChunksSkipped:   result.ChunksSkipped,
		MetadataCreated: result.MetadataCreated,
		DurationMs:      result.Duration.Milliseconds(),
		Errors:          result.Errors,
	}
}
