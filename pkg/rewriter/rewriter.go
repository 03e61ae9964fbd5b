// Package rewriter applies the numbered reference substitution and
// appends the Sources section. It is pure over its inputs: no network,
// no cache, no filesystem.
package rewriter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dtnitsch/citation-cleaner/models"
)

// Rewrite replaces every marker span with a [N](#source-N) reference and
// appends a numerically ordered Sources section. Spans are replaced in
// descending offset order: the replacement text generally differs in
// length from the marker, so working backwards keeps every remaining
// span valid.
func Rewrite(text string, occs []models.MarkerOccurrence, sources map[string]*models.SourceEntry) string {
	ordered := make([]models.MarkerOccurrence, len(occs))
	copy(ordered, occs)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Start > ordered[j].Start
	})

	out := text
	for _, occ := range ordered {
		entry, ok := sources[occ.URL]
		if !ok {
			continue
		}
		ref := fmt.Sprintf("[%d](#source-%d)", entry.Number, entry.Number)
		out = out[:occ.Start] + ref + out[occ.End:]
	}

	out = strings.TrimRight(out, " \t\r\n")

	entries := make([]*models.SourceEntry, 0, len(sources))
	for _, entry := range sources {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Number < entries[j].Number
	})

	var sb strings.Builder
	sb.WriteString(out)
	sb.WriteString("\n\n# Sources\n")
	for _, entry := range entries {
		fmt.Fprintf(&sb, "\n<a id=\"source-%d\"></a>%d. %s\n", entry.Number, entry.Number, entry.Citation)
	}
	return sb.String()
}
