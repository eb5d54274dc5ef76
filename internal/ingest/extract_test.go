package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText_PlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tarif.txt")
	require.NoError(t, os.WriteFile(path, []byte("Le code SH 0102291000 correspond à la viande bovine."), 0o644))

	text, err := ExtractText(path)
	require.NoError(t, err)
	assert.Contains(t, text, "0102291000")
}

func TestExtractText_RejectsUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tarif.csv")
	require.NoError(t, os.WriteFile(path, []byte("code;droit"), 0o644))

	_, err := ExtractText(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non supporté")
}

func TestExtractText_RejectsMissingExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tarif")
	require.NoError(t, os.WriteFile(path, []byte("texte"), 0o644))

	_, err := ExtractText(path)
	require.Error(t, err)
}
