package models

// SourceReport is the per-URL line item of a run report.
type SourceReport struct {
	Number int    `json:"number" yaml:"number"`
	URL    string `json:"url" yaml:"url"`
	Status string `json:"status" yaml:"status"` // resolved, cached, needs_review, failed
}

// RunStats summarizes a clean operation.
type RunStats struct {
	Markers          int     `json:"markers" yaml:"markers"`
	UniqueURLs       int     `json:"unique_urls" yaml:"unique_urls"`
	CacheHits        int     `json:"cache_hits" yaml:"cache_hits"`
	Fetched          int     `json:"fetched" yaml:"fetched"`
	Failed           int     `json:"failed" yaml:"failed"`
	NeedsReview      int     `json:"needs_review" yaml:"needs_review"`
	TotalTimeSeconds float64 `json:"total_time_seconds" yaml:"total_time_seconds"`
}

// RunReport is the final machine-readable output of the clean command.
type RunReport struct {
	Status  string         `json:"status" yaml:"status"`
	Input   string         `json:"input" yaml:"input"`
	Output  string         `json:"output,omitempty" yaml:"output,omitempty"`
	Sources []SourceReport `json:"sources,omitempty" yaml:"sources,omitempty"`
	Stats   RunStats       `json:"stats" yaml:"stats"`
}
