package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/emsi-ai/tariff-engine/internal/config"
	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/internal/storage"
)

// Tariff document patterns. The boundary phrase anchors every chunk; the
// rest seed the structured fields of each chunk before the category
// extractor runs.
var (
	codeBoundaryPattern = regexp.MustCompile(`(?i)(?:le\s+)?code\s+sh\s+(\d{10})\s+correspond\s+à`)

	importDutyPattern = regexp.MustCompile(`(?is)droit\s+d['’]importation.*?[:(]?\s*di\s*[):]*\s*(\d+(?:[.,]\d+)?)\s*%`)
	tpiPattern        = regexp.MustCompile(`(?is)taxe\s+parafiscale.*?[:(]?\s*tpi\s*[):]*\s*(\d+(?:[.,]\d+)?)\s*%`)
	vatPattern        = regexp.MustCompile(`(?is)taxe\s+sur\s+la\s+valeur\s+ajoutée.*?[:(]?\s*tva\s*[):]*\s*(\d+(?:[.,]\d+)?)\s*%`)

	categoryPattern    = regexp.MustCompile(`(?i)catégorie\s+([^,.]+?)(?:,|\.|$)`)
	quotaPattern       = regexp.MustCompile(`(?is)(?:contingent|quota).*?(\d+(?:[.,]\d+)?)\s*(têtes|unités|tonnes)?`)
	// The name charset excludes clause punctuation so the lazy group cannot
	// span fiscal clauses when a whole section normalizes to one line.
	agreementPattern = regexp.MustCompile(`(?i)importation\s+([^\n,.:%]+?)\s+un\s+droit\s+pr[ée]f[ée]rentiel\s+de\s+(\d+(?:[.,]\d+)?)\s*%`)
	descriptionPattern = regexp.MustCompile(`(?i)ce\s+code\s+identifie\s+([^.]+?)(?:\.|$)`)
)

// splitTransitions are phrases that open a new regulatory clause; a sentence
// boundary right before one of them is a preferred split point for oversized
// chunks.
var splitTransitions = []string{"Les mesures", "L'importation", "importation"}

// codeFamilyPrefixLen is the number of leading code digits that define a
// tariff family for merge purposes.
const codeFamilyPrefixLen = 6

// DocumentChunk is the transient parsing unit produced by the chunker and
// consumed by the ingestion pipeline. It is never persisted itself.
type DocumentChunk struct {
	Text        string
	CodeSH      string // empty when no boundary matched
	Category    string
	Description string
	ImportDuty  *float64
	TPI         *float64
	VAT         *float64
	Agreements  []storage.PreferentialAgreement
	Quota       string
	Start       int
	End         int
	WordCount   int
}

// Chunker segments normalized document text into one chunk per tariff-code
// boundary, then rebalances chunk sizes.
type Chunker struct {
	minWords       int
	preferredWords int
	maxWords       int
	logger         *observability.Logger
}

// NewChunker creates a chunker with the configured word-count bounds.
func NewChunker(cfg config.IngestionConfig, logger *observability.Logger) *Chunker {
	return &Chunker{
		minWords:       cfg.MinChunkWords,
		preferredWords: cfg.PreferredChunkWords,
		maxWords:       cfg.MaxChunkWords,
		logger:         logger,
	}
}

// Chunk parses a document into size-balanced chunks, one per tariff-code
// boundary, in original document order. A document with no boundary at all
// degenerates to a single whole-document chunk with no code, so keyword
// search still has material.
func (c *Chunker) Chunk(text, sourceName string) []DocumentChunk {
	normalized := NormalizeKeepLines(text)
	if normalized == "" {
		return nil
	}

	boundaries := codeBoundaryPattern.FindAllStringSubmatchIndex(normalized, -1)
	c.logger.Debug().
		Str("source", sourceName).
		Int("boundaries", len(boundaries)).
		Msg("Scanned document for tariff code boundaries")

	if len(boundaries) == 0 {
		chunk := c.newChunk(normalized, "", 0, len(normalized))
		return []DocumentChunk{chunk}
	}

	// Each chunk spans from its boundary to the next one (or end of text).
	raw := make([]DocumentChunk, 0, len(boundaries))
	for i, b := range boundaries {
		start := b[0]
		end := len(normalized)
		if i+1 < len(boundaries) {
			end = boundaries[i+1][0]
		}
		span := strings.TrimSpace(normalized[start:end])
		if span == "" {
			continue
		}
		code := normalized[b[2]:b[3]]
		raw = append(raw, c.newChunk(span, code, start, end))
	}

	optimized := c.rebalance(raw)

	c.logger.Info().
		Str("source", sourceName).
		Int("raw_chunks", len(raw)).
		Int("chunks", len(optimized)).
		Msg("Chunked document")
	return optimized
}

// newChunk builds a chunk and seeds its structured fields from the span text.
func (c *Chunker) newChunk(span, code string, start, end int) DocumentChunk {
	chunk := DocumentChunk{
		Text:      span,
		CodeSH:    code,
		Start:     start,
		End:       end,
		WordCount: wordCount(span),
	}

	if m := categoryPattern.FindStringSubmatch(span); m != nil {
		chunk.Category = strings.TrimSpace(m[1])
	}
	if m := descriptionPattern.FindStringSubmatch(span); m != nil {
		chunk.Description = strings.TrimSpace(strings.TrimLeft(m[1], "- "))
	}

	chunk.ImportDuty = c.parseRate(importDutyPattern, span, "import_duty")
	chunk.TPI = c.parseRate(tpiPattern, span, "tpi")
	chunk.VAT = c.parseRate(vatPattern, span, "vat")

	if m := quotaPattern.FindStringSubmatch(span); m != nil {
		chunk.Quota = strings.TrimSpace(m[1] + " " + m[2])
	}

	for _, m := range agreementPattern.FindAllStringSubmatch(span, -1) {
		rate, err := parseDecimal(m[2])
		if err != nil {
			c.logger.Warn().Str("raw", m[2]).Msg("Unparseable preferential rate, skipping agreement")
			continue
		}
		chunk.Agreements = append(chunk.Agreements, storage.PreferentialAgreement{
			Name: strings.TrimSpace(m[1]),
			Rate: rate,
		})
	}

	return chunk
}

// rebalance applies the size optimization pass in document order: oversized
// chunks are split, undersized chunks are merged into the previous optimized
// chunk when the codes allow it.
func (c *Chunker) rebalance(chunks []DocumentChunk) []DocumentChunk {
	var optimized []DocumentChunk
	for _, chunk := range chunks {
		switch {
		case chunk.WordCount > c.maxWords:
			optimized = append(optimized, c.split(chunk)...)
		case chunk.WordCount < c.minWords && len(optimized) > 0 && c.canMerge(optimized[len(optimized)-1], chunk):
			optimized[len(optimized)-1] = c.merge(optimized[len(optimized)-1], chunk)
		default:
			optimized = append(optimized, chunk)
		}
	}
	return optimized
}

// split breaks an oversized chunk on paragraph and clause boundaries,
// accumulating pieces up to the preferred size. Every sub-chunk keeps the
// original code header line as its first line and inherits the parent's
// extracted metadata verbatim. If no usable split point exists the chunk
// passes through unchanged.
func (c *Chunker) split(chunk DocumentChunk) []DocumentChunk {
	header, _, hasLines := strings.Cut(chunk.Text, "\n")
	header = strings.TrimSpace(header)
	if !hasLines {
		// Single-paragraph chunk: the whole text is one line, so fall back
		// to the boundary phrase itself as the carried header.
		header = ""
		if loc := codeBoundaryPattern.FindStringIndex(chunk.Text); loc != nil {
			header = strings.TrimSpace(chunk.Text[loc[0]:loc[1]])
		}
	}

	pieces := splitPieces(chunk.Text)
	if len(pieces) < 2 {
		return []DocumentChunk{chunk}
	}

	var subs []DocumentChunk
	var current []string
	currentWords := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.Join(current, "\n\n")
		if header != "" && !strings.HasPrefix(text, header) {
			text = header + "\n\n" + text
		}
		sub := chunk
		sub.Text = text
		sub.WordCount = wordCount(text)
		subs = append(subs, sub)
		current = nil
		currentWords = 0
	}

	for _, piece := range pieces {
		pw := wordCount(piece)
		if currentWords > 0 && currentWords+pw > c.preferredWords {
			flush()
		}
		current = append(current, piece)
		currentWords += pw
	}
	flush()

	if len(subs) == 0 {
		return []DocumentChunk{chunk}
	}
	c.logger.Debug().
		Str("code", chunk.CodeSH).
		Int("words", chunk.WordCount).
		Int("sub_chunks", len(subs)).
		Msg("Split oversized chunk")
	return subs
}

// splitPieces cuts chunk text into paragraphs, then further cuts paragraphs
// on sentence boundaries that precede a capital letter or a clause
// transition phrase.
func splitPieces(text string) []string {
	var pieces []string
	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		pieces = append(pieces, splitSentenceGroups(paragraph)...)
	}
	return pieces
}

var sentenceGap = regexp.MustCompile(`\.\s+`)

// splitSentenceGroups cuts a paragraph after ". " when the following text
// starts a new clause. Go's regexp has no lookaround, so the follow-set
// check is done by hand.
func splitSentenceGroups(paragraph string) []string {
	locs := sentenceGap.FindAllStringIndex(paragraph, -1)
	if len(locs) == 0 {
		return []string{paragraph}
	}

	var groups []string
	start := 0
	for _, loc := range locs {
		rest := paragraph[loc[1]:]
		if rest == "" || !startsNewClause(rest) {
			continue
		}
		piece := strings.TrimSpace(paragraph[start:loc[1]])
		if piece != "" {
			groups = append(groups, piece)
		}
		start = loc[1]
	}
	if tail := strings.TrimSpace(paragraph[start:]); tail != "" {
		groups = append(groups, tail)
	}
	if len(groups) == 0 {
		return []string{paragraph}
	}
	return groups
}

func startsNewClause(rest string) bool {
	for _, phrase := range splitTransitions {
		if strings.HasPrefix(rest, phrase) {
			return true
		}
	}
	r := []rune(rest)[0]
	return r >= 'A' && r <= 'Z' || strings.ContainsRune("ÀÂÉÈÊÎÏÔÙÛÇ", r)
}

// canMerge reports whether an undersized chunk may be folded into the
// previous one: both codes present, identical or sharing the 6-digit family
// prefix, and the combined size within the upper bound.
func (c *Chunker) canMerge(prev, next DocumentChunk) bool {
	if prev.CodeSH == "" || next.CodeSH == "" {
		return false
	}
	if prev.WordCount+next.WordCount > c.maxWords {
		return false
	}
	if prev.CodeSH == next.CodeSH {
		return true
	}
	if len(prev.CodeSH) >= codeFamilyPrefixLen && len(next.CodeSH) >= codeFamilyPrefixLen {
		return prev.CodeSH[:codeFamilyPrefixLen] == next.CodeSH[:codeFamilyPrefixLen]
	}
	return false
}

// merge concatenates two chunks. Scalar duty fields combine
// first-non-nil-wins; agreements are unioned.
func (c *Chunker) merge(prev, next DocumentChunk) DocumentChunk {
	merged := prev
	merged.Text = prev.Text + "\n\n" + next.Text
	merged.WordCount = prev.WordCount + next.WordCount
	merged.End = next.End

	if merged.Category == "" {
		merged.Category = next.Category
	}
	if merged.Description == "" {
		merged.Description = next.Description
	}
	if merged.ImportDuty == nil {
		merged.ImportDuty = next.ImportDuty
	}
	if merged.TPI == nil {
		merged.TPI = next.TPI
	}
	if merged.VAT == nil {
		merged.VAT = next.VAT
	}
	if merged.Quota == "" {
		merged.Quota = next.Quota
	}
	merged.Agreements = append(merged.Agreements, next.Agreements...)

	c.logger.Debug().
		Str("code", prev.CodeSH).
		Str("merged_code", next.CodeSH).
		Int("words", merged.WordCount).
		Msg("Merged undersized chunk")
	return merged
}

func (c *Chunker) parseRate(pattern *regexp.Regexp, span, field string) *float64 {
	m := pattern.FindStringSubmatch(span)
	if m == nil {
		return nil
	}
	rate, err := parseDecimal(m[1])
	if err != nil {
		c.logger.Warn().Str("field", field).Str("raw", m[1]).Msg("Unparseable duty rate, leaving unset")
		return nil
	}
	return &rate
}

// parseDecimal parses a number that may use a decimal comma.
func parseDecimal(raw string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
