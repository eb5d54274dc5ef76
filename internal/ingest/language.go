package ingest

import "strings"

// Stopword samples for the two languages the corpus contains. Detection is
// a simple hit count, which is plenty for routing tariff documents.
var (
	frenchMarkers  = []string{"le", "la", "les", "des", "une", "est", "dans", "pour", "avec", "sont", "aux", "cette", "être", "que"}
	englishMarkers = []string{"the", "and", "for", "with", "this", "that", "are", "from", "which", "was", "have", "been"}
)

// DetectLanguage reports "fr" or "en" for a document, defaulting to "fr"
// when the text is too short to tell.
func DetectLanguage(text string) string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) < 5 {
		return "fr"
	}

	seen := make(map[string]int, len(words))
	for _, w := range words {
		seen[w]++
	}

	var fr, en int
	for _, m := range frenchMarkers {
		fr += seen[m]
	}
	for _, m := range englishMarkers {
		en += seen[m]
	}
	if en > fr {
		return "en"
	}
	return "fr"
}
