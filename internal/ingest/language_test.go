package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage_French(t *testing.T) {
	text := "Les droits de douane sont calculés sur la valeur des marchandises pour une importation dans le royaume."
	assert.Equal(t, "fr", DetectLanguage(text))
}

func TestDetectLanguage_English(t *testing.T) {
	text := "The customs duties are calculated from the declared value of the goods and this rate applies for the whole year."
	assert.Equal(t, "en", DetectLanguage(text))
}

func TestDetectLanguage_ShortTextDefaultsToFrench(t *testing.T) {
	assert.Equal(t, "fr", DetectLanguage("customs duty rate"))
	assert.Equal(t, "fr", DetectLanguage(""))
}
