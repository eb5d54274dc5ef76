package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emsi-ai/tariff-engine/internal/config"
	"github.com/emsi-ai/tariff-engine/internal/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Level: "error", Format: "console"})
}

func testChunker(min, preferred, max int) *Chunker {
	return NewChunker(config.IngestionConfig{
		MinChunkWords:       min,
		PreferredChunkWords: preferred,
		MaxChunkWords:       max,
	}, testLogger())
}

const bovineSection = `Le code SH 0102291000 correspond à la viande des animaux vivants de l'espèce bovine. Ce code identifie les animaux vivants de l'espèce bovine destinés à l'abattage. Il s'agit de la catégorie bovins domestiques, animaux âgés de moins de 6 mois. Les mesures fiscales appliquées sont le droit d'importation (DI): 2,5 %, la taxe parafiscale à l'importation (TPI): 0,25 % et la taxe sur la valeur ajoutée (TVA): 20 %. Les accords accordent à l'importation Union Européenne un droit préférentiel de 0 %. Ces animaux entrent dans la limite d'un contingent de 5000 têtes.`

const equineSection = `Le code SH 0101210000 correspond à des chevaux reproducteurs de race pure. L'importation est soumise au droit d'importation (DI): 2,5 % et à la taxe sur la valeur ajoutée (TVA): 20 %.`

func TestChunker_OneChunkPerCodeBoundary(t *testing.T) {
	c := testChunker(5, 120, 400)

	chunks := c.Chunk(bovineSection+"\n\n"+equineSection, "tarifs.txt")

	require.Len(t, chunks, 2)
	assert.Equal(t, "0102291000", chunks[0].CodeSH)
	assert.Equal(t, "0101210000", chunks[1].CodeSH)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "Le code SH 0102291000"))
	assert.True(t, strings.HasPrefix(chunks[1].Text, "Le code SH 0101210000"))
	assert.Less(t, chunks[0].Start, chunks[1].Start)
}

func TestChunker_NoBoundaryFallsBackToWholeDocument(t *testing.T) {
	c := testChunker(5, 120, 400)

	text := "Les conditions générales d'importation sont décrites dans la circulaire douanière annuelle."
	chunks := c.Chunk(text, "circulaire.txt")

	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].CodeSH)
	assert.Equal(t, text, chunks[0].Text)
}

func TestChunker_EmptyDocument(t *testing.T) {
	c := testChunker(5, 120, 400)
	assert.Nil(t, c.Chunk("   \n\n  ", "vide.txt"))
}

func TestChunker_SeedsStructuredFields(t *testing.T) {
	c := testChunker(5, 200, 500)

	chunks := c.Chunk(bovineSection, "tarifs.txt")
	require.Len(t, chunks, 1)
	chunk := chunks[0]

	assert.Equal(t, "bovins domestiques", chunk.Category)
	assert.Equal(t, "les animaux vivants de l'espèce bovine destinés à l'abattage", chunk.Description)

	require.NotNil(t, chunk.ImportDuty)
	assert.InDelta(t, 2.5, *chunk.ImportDuty, 1e-9)
	require.NotNil(t, chunk.TPI)
	assert.InDelta(t, 0.25, *chunk.TPI, 1e-9)
	require.NotNil(t, chunk.VAT)
	assert.InDelta(t, 20.0, *chunk.VAT, 1e-9)

	require.Len(t, chunk.Agreements, 1)
	assert.Equal(t, "Union Européenne", chunk.Agreements[0].Name)
	assert.Equal(t, 0.0, chunk.Agreements[0].Rate)

	assert.Equal(t, "5000 têtes", chunk.Quota)
}

func TestChunker_SplitsOversizedChunk(t *testing.T) {
	c := testChunker(5, 30, 50)

	header := "Le code SH 0102291000 correspond à la viande bovine."
	var paragraphs []string
	for i := 0; i < 6; i++ {
		paragraphs = append(paragraphs, "Les mesures fiscales appliquées à cette position tarifaire comportent plusieurs taxes et redevances douanières cumulées sur la valeur déclarée.")
	}
	text := header + "\n\n" + strings.Join(paragraphs, "\n\n")

	chunks := c.Chunk(text, "gros.txt")

	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.Equal(t, "0102291000", chunk.CodeSH)
		assert.True(t, strings.HasPrefix(chunk.Text, header), "sub-chunk lost its header")
		assert.LessOrEqual(t, chunk.WordCount, c.maxWords+wordCount(header))
	}
}

func TestChunker_MergesUndersizedSameFamily(t *testing.T) {
	c := testChunker(30, 120, 400)

	first := `Le code SH 0101292000 correspond à des chevaux de course importés pour la compétition hippique. Les mesures fiscales appliquées comportent le droit d'importation (DI): 2,5 % ainsi que la taxe sur la valeur ajoutée (TVA): 20 % sur la valeur en douane déclarée lors du dédouanement.`
	second := `Le code SH 0101293000 correspond à d'autres chevaux vivants.`

	chunks := c.Chunk(first+"\n\n"+second, "chevaux.txt")

	require.Len(t, chunks, 1)
	assert.Equal(t, "0101292000", chunks[0].CodeSH)
	assert.Contains(t, chunks[0].Text, "0101293000")
}

func TestChunker_DoesNotMergeAcrossFamilies(t *testing.T) {
	c := testChunker(30, 120, 400)

	first := `Le code SH 0101292000 correspond à des chevaux de course importés pour la compétition hippique. Les mesures fiscales appliquées comportent le droit d'importation (DI): 2,5 % ainsi que la taxe sur la valeur ajoutée (TVA): 20 % sur la valeur en douane déclarée lors du dédouanement.`
	second := `Le code SH 0106201000 correspond à des reptiles vivants.`

	chunks := c.Chunk(first+"\n\n"+second, "mixte.txt")

	require.Len(t, chunks, 2)
	assert.Equal(t, "0101292000", chunks[0].CodeSH)
	assert.Equal(t, "0106201000", chunks[1].CodeSH)
}

func TestSplitSentenceGroups_ManualFollowSet(t *testing.T) {
	paragraph := "La première phrase se termine ici. Les mesures suivantes s'appliquent. et la suite minuscule reste attachée."
	groups := splitSentenceGroups(paragraph)

	require.Len(t, groups, 2)
	assert.Equal(t, "La première phrase se termine ici.", groups[0])
	assert.True(t, strings.HasPrefix(groups[1], "Les mesures"))
}

func TestParseDecimal_DecimalComma(t *testing.T) {
	v, err := parseDecimal("2,5")
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	v, err = parseDecimal("20")
	require.NoError(t, err)
	assert.Equal(t, 20.0, v)
}
