// Package ingest turns raw regulatory document text into persisted chunks
// with structured tariff metadata.
package ingest

import (
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// mojibakeReplacer repairs the UTF-8-decoded-as-Latin-1 sequences that show
// up in text extracted from the customs PDFs. Order matters: multi-byte
// punctuation sequences must be repaired before the bare "â" fallback.
var mojibakeReplacer = strings.NewReplacer(
	"â€™", "'",
	"â€“", "–",
	"â€”", "—",
	"Ã©", "é",
	"Ã ", "à",
	"Ã¨", "è",
	"Ã´", "ô",
	"Ã¢", "â",
	"Ã§", "ç",
	"Ãª", "ê",
	"Ã®", "î",
	"Ã¯", "ï",
	"Ã¹", "ù",
	"Ã»", "û",
)

// Normalize collapses whitespace runs to single spaces, trims, and repairs
// known mojibake sequences. Pure and total: unmapped sequences pass through
// unchanged.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	repaired := mojibakeReplacer.Replace(raw)
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(repaired, " "))
}

// NormalizeKeepLines behaves like Normalize but preserves paragraph breaks
// (blank-line separators), which the chunk splitter relies on.
func NormalizeKeepLines(raw string) string {
	if raw == "" {
		return ""
	}
	repaired := mojibakeReplacer.Replace(raw)

	paragraphs := strings.Split(repaired, "\n\n")
	for i, p := range paragraphs {
		paragraphs[i] = strings.TrimSpace(whitespaceRun.ReplaceAllString(p, " "))
	}
	var kept []string
	for _, p := range paragraphs {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
