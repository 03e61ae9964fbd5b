package models

// MarkerOccurrence is one inline citation marker `([Display Text](URL))`
// found in the document. Start and End are byte offsets into the original
// text, half-open [Start, End).
type MarkerOccurrence struct {
	Start       int
	End         int
	DisplayText string
	URL         string
}
