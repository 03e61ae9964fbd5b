package models

// SourceEntry is one unique cited URL. Number is assigned in order of
// first appearance among the markers, before any citation fetch starts,
// and never changes afterwards.
type SourceEntry struct {
	URL         string
	Number      int
	Citation    string
	NeedsReview bool
	Failed      bool
	CacheHit    bool
}
