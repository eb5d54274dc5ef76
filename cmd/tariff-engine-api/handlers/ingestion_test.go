package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emsi-ai/tariff-engine/internal/observability"
)

func multipartUpload(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestIngestionHandler_Upload_RejectsUnsupportedFileType(t *testing.T) {
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Format: "console"})
	// The extension check runs before the engine is touched.
	h := NewIngestionHandler(logger, nil)

	for _, filename := range []string{"tarif.csv", "tarif.exe", "tarif"} {
		rec := httptest.NewRecorder()
		h.Upload(rec, multipartUpload(t, filename, []byte("contenu")))

		assert.Equal(t, http.StatusBadRequest, rec.Code, "filename %q", filename)
		assert.Contains(t, rec.Body.String(), "unsupported file type")
	}
}

func TestIngestionHandler_Upload_MissingFile(t *testing.T) {
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Format: "console"})
	h := NewIngestionHandler(logger, nil)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
