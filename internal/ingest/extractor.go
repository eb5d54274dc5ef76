package ingest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/internal/storage"
)

// CategoryRule ties a metadata field to the pattern that detects its value
// in free text. Rules run in order; the first match per field wins.
type CategoryRule struct {
	Field   string
	Pattern *regexp.Regexp
}

// Metadata field names shared by document extraction and query attribute
// extraction.
const (
	FieldType       = "type"
	FieldState      = "etat"
	FieldBoning     = "desossage"
	FieldAge        = "age"
	FieldAnatomical = "partie_anatomique"
	FieldUsage      = "usage"
)

var agePattern = regexp.MustCompile(`(?i)(?:âgés?\s+de\s+)?(?:(moins)\s+de\s+(\d+)\s+mois|de\s+(\d+)\s+à\s+(\d+)\s+mois|(plus)\s+de\s+(\d+)\s+mois)`)

// DefaultRules returns the category detection rules for Moroccan tariff
// nomenclature text. Longer alternatives come first so "non désossée" is not
// swallowed by "désossée".
func DefaultRules() []CategoryRule {
	// \b is ASCII-only in RE2, which breaks on accent-initial words like
	// "équidés", so word boundaries are spelled out with \p{L}.
	return []CategoryRule{
		{FieldType, regexp.MustCompile(`(?i)(?:^|[^\p{L}])(bovine?s?|ovine?s?|caprine?s?|porcine?s?|[ée]quid[ée]s?|chevaux|cheval|volailles?|mammif[èe]res?)(?:[^\p{L}]|$)`)},
		{FieldState, regexp.MustCompile(`(?i)(?:^|[^\p{L}])(fra[îi]ches?|frais|r[ée]frig[ée]r[ée]e?s?|congel[ée]e?s?)(?:[^\p{L}]|$)`)},
		{FieldBoning, regexp.MustCompile(`(?i)(?:^|[^\p{L}])(non\s+d[ée]soss[ée]e?s?|d[ée]soss[ée]e?s?|sans\s+os|avec\s+os)(?:[^\p{L}]|$)`)},
		{FieldAnatomical, regexp.MustCompile(`(?i)(?:^|[^\p{L}])(demi-carcasses?|carcasses?|quartiers?\s+avant|quartiers?\s+arri[èe]res?|quartiers?|morceaux)(?:[^\p{L}]|$)`)},
		{FieldUsage, regexp.MustCompile(`(?i)(?:^|[^\p{L}])(reproduction|reproducteurs?|engraissement|abattage|boucherie|course|concours|parcs?\s+zoologiques?)(?:[^\p{L}]|$)`)},
	}
}

// DefaultNormalization maps raw detected values to their canonical form, so
// "chevaux", "cheval" and "équidés" all land on "equine".
func DefaultNormalization() map[string]string {
	return map[string]string{
		"bovin": "bovine", "bovins": "bovine", "bovines": "bovine",
		"ovin": "ovine", "ovins": "ovine", "ovines": "ovine",
		"caprin": "caprine", "caprins": "caprine", "caprines": "caprine",
		"porcin": "porcine", "porcins": "porcine", "porcines": "porcine",
		"cheval": "equine", "chevaux": "equine", "équidé": "equine",
		"équidés": "equine", "equidés": "equine", "equidé": "equine",
		"volaille": "volaille", "volailles": "volaille",
		"mammifère": "mammifere", "mammifères": "mammifere", "mammiferes": "mammifere",

		"fraîche": "frais", "fraiche": "frais", "fraiches": "frais", "fraîches": "frais",
		"réfrigérée": "refrigere", "réfrigérées": "refrigere", "réfrigéré": "refrigere", "réfrigérés": "refrigere",
		"congelée": "congele", "congelées": "congele", "congelé": "congele", "congelés": "congele",

		"non désossée": "non_desossee", "non désossées": "non_desossee",
		"désossée": "desossee", "désossées": "desossee", "désossé": "desossee", "désossés": "desossee",
		"sans os": "desossee",
		"avec os": "non_desossee",

		"demi-carcasse": "demi_carcasse", "demi-carcasses": "demi_carcasse",
		"carcasse": "carcasse", "carcasses": "carcasse",
		"quartier": "quartier", "quartiers": "quartier",
		"morceaux": "morceaux",

		"reproducteur": "reproduction", "reproducteurs": "reproduction",
		"parc zoologique": "parc_zoologique", "parcs zoologiques": "parc_zoologique",
	}
}

// DefaultSynonyms maps canonical values to vernacular equivalents; they feed
// the synonyms search blob so "boeuf" can reach a "bovine" chunk.
func DefaultSynonyms() map[string][]string {
	return map[string][]string{
		"bovine":   {"bœuf", "boeuf", "vache", "taureau", "veau", "génisse"},
		"ovine":    {"mouton", "agneau", "brebis", "bélier"},
		"caprine":  {"chèvre", "chevreau", "bouc"},
		"porcine":  {"porc", "cochon", "truie"},
		"equine":   {"cheval", "chevaux", "jument", "étalon", "poulain"},
		"volaille": {"poulet", "poule", "coq", "dinde", "canard"},

		"frais":     {"fraîche", "fraiche"},
		"refrigere": {"réfrigérée", "réfrigéré", "frigo"},
		"congele":   {"congelée", "congelé", "surgelée", "surgelé"},

		"desossee":     {"désossée", "sans os"},
		"non_desossee": {"non désossée", "avec os"},

		"reproduction":  {"reproducteur", "élevage"},
		"engraissement": {"embouche"},
		"abattage":      {"boucherie"},
		"course":        {"courses", "hippique", "pur-sang"},
	}
}

// Extractor turns a parsed chunk into a persistent metadata record, and
// pulls search attributes out of user queries with the same rule table.
type Extractor struct {
	rules         []CategoryRule
	normalization map[string]string
	synonyms      map[string][]string
	logger        *observability.Logger
}

func NewExtractor(rules []CategoryRule, normalization map[string]string, synonyms map[string][]string, logger *observability.Logger) *Extractor {
	return &Extractor{
		rules:         rules,
		normalization: normalization,
		synonyms:      synonyms,
		logger:        logger,
	}
}

// Extract builds the metadata record for a chunk: categorical fields from
// the rule table, duty figures carried over from the chunk seeds, and the
// keyword/synonym search blobs. Returns nil when the chunk carries no code
// and no detectable category at all.
func (e *Extractor) Extract(chunk DocumentChunk) *storage.ProductMetadata {
	fields := e.detectFields(chunk.Text)

	if chunk.CodeSH == "" && len(fields) == 0 {
		return nil
	}

	// Rows always carry a description: the chunk text stands in when no
	// product description was parsed.
	description := chunk.Description
	if description == "" {
		description = chunk.Text
	}

	meta := &storage.ProductMetadata{
		CodeSH:      chunk.CodeSH,
		Description: description,
		ImportDuty:  chunk.ImportDuty,
		TPI:         chunk.TPI,
		VAT:         chunk.VAT,
	}
	meta.ProductType = optional(fields[FieldType])
	meta.ProductState = optional(fields[FieldState])
	meta.Boning = optional(fields[FieldBoning])
	meta.AnimalAge = optional(fields[FieldAge])
	meta.AnatomicalPart = optional(fields[FieldAnatomical])
	meta.SpecificUse = optional(fields[FieldUsage])
	if chunk.Quota != "" {
		meta.Quotas = &chunk.Quota
	}
	if len(chunk.Agreements) > 0 {
		meta.SetAgreements(chunk.Agreements)
	}

	meta.Keywords = e.buildKeywords(chunk, fields)
	meta.Synonyms = e.buildSynonyms(fields)
	return meta
}

// ExtractQueryAttributes detects the categorical attributes present in a
// free-text query. Only attributes a user actually phrases are returned;
// anatomical parts are a document-side detail and are not query criteria.
func (e *Extractor) ExtractQueryAttributes(query string) map[string]string {
	fields := e.detectFields(query)
	delete(fields, FieldAnatomical)
	return fields
}

// detectFields runs every rule over the text and normalizes the first match
// per field. Age gets its own pattern because the value is a range, not a
// vocabulary word.
func (e *Extractor) detectFields(text string) map[string]string {
	fields := make(map[string]string)
	for _, rule := range e.rules {
		if _, seen := fields[rule.Field]; seen {
			continue
		}
		m := rule.Pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		fields[rule.Field] = e.normalize(m[1])
	}
	if age := normalizeAge(text); age != "" {
		fields[FieldAge] = age
	}
	return fields
}

func (e *Extractor) normalize(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = whitespaceRun.ReplaceAllString(value, " ")
	if canonical, ok := e.normalization[value]; ok {
		return canonical
	}
	return strings.ReplaceAll(value, " ", "_")
}

// normalizeAge maps an age phrase to its canonical bucket: "moins de 6
// mois" becomes "moins_6_mois", "de 6 à 20 mois" becomes "6_20_mois",
// "plus de 20 mois" becomes "plus_20_mois".
func normalizeAge(text string) string {
	m := agePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	switch {
	case m[1] != "":
		return "moins_" + m[2] + "_mois"
	case m[3] != "":
		return m[3] + "_" + m[4] + "_mois"
	default:
		return "plus_" + m[6] + "_mois"
	}
}

// buildKeywords assembles the comma-separated keyword blob the fuzzy
// metadata pass and the fallback keyword search match against: every
// normalized categorical value, plus fixed and derived tokens.
func (e *Extractor) buildKeywords(chunk DocumentChunk, fields map[string]string) string {
	keywords := []string{"importation", "produit_alimentaire"}
	for _, field := range []string{FieldType, FieldState, FieldBoning, FieldAge, FieldAnatomical, FieldUsage} {
		if v, ok := fields[field]; ok {
			keywords = append(keywords, v)
		}
	}
	if t, ok := fields[FieldType]; ok {
		keywords = append(keywords, "viande "+t)
	}
	if chunk.ImportDuty != nil {
		rate := strings.ReplaceAll(fmt.Sprintf("%g", *chunk.ImportDuty), ".", "_")
		keywords = append(keywords, "droit_importation_"+rate)
	}
	if chunk.CodeSH != "" {
		keywords = append(keywords, "code_sh_"+chunk.CodeSH)
	}
	return strings.Join(keywords, ",")
}

// buildSynonyms assembles the synonym blob from every detected categorical
// value that has dictionary entries.
func (e *Extractor) buildSynonyms(fields map[string]string) string {
	var values []string
	for _, field := range []string{FieldType, FieldState, FieldBoning, FieldUsage} {
		v, ok := fields[field]
		if !ok {
			continue
		}
		values = append(values, e.synonyms[v]...)
	}
	sort.Strings(values)
	return strings.Join(values, ",")
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
