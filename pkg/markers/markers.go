// Package markers locates inline citation markers in markdown text.
package markers

import (
	"regexp"

	"github.com/dtnitsch/citation-cleaner/models"
)

// markerPattern matches ([Display Text](URL)). The display text cannot
// contain ']' and the URL cannot contain ')', so markers never nest or
// overlap.
var markerPattern = regexp.MustCompile(`\(\[([^\]]+)\]\(([^)]+)\)\)`)

// Extract returns every marker in text in document order with exact byte
// spans. A document without markers yields an empty slice, not an error.
func Extract(text string) []models.MarkerOccurrence {
	matches := markerPattern.FindAllStringSubmatchIndex(text, -1)
	occs := make([]models.MarkerOccurrence, 0, len(matches))
	for _, m := range matches {
		occs = append(occs, models.MarkerOccurrence{
			Start:       m[0],
			End:         m[1],
			DisplayText: text[m[2]:m[3]],
			URL:         text[m[4]:m[5]],
		})
	}
	return occs
}

// UniqueURLs returns the distinct URLs among occs in first-appearance
// order. URLs are compared verbatim; no normalization is applied.
func UniqueURLs(occs []models.MarkerOccurrence) []string {
	seen := make(map[string]bool, len(occs))
	urls := make([]string, 0, len(occs))
	for _, occ := range occs {
		if seen[occ.URL] {
			continue
		}
		seen[occ.URL] = true
		urls = append(urls, occ.URL)
	}
	return urls
}
