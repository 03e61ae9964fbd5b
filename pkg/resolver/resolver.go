// Package resolver assigns stable sequence numbers to cited URLs and
// obtains one citation per unique URL through a bounded worker pool.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dtnitsch/citation-cleaner/models"
	"github.com/dtnitsch/citation-cleaner/pkg/citations"
)

// DefaultWorkers bounds concurrent in-flight citation fetches.
const DefaultWorkers = 32

// FetchFunc obtains a citation outcome for one URL.
type FetchFunc func(ctx context.Context, url string) (citations.Outcome, error)

// Job defines one fetch task for a worker.
type Job struct {
	URL string
}

// Result holds the outcome of a processed job.
type Result struct {
	URL     string
	Outcome citations.Outcome
	Err     error
}

// Placeholder is the citation text recorded for a URL whose fetch failed.
// It embeds the URL and the failure reason so the degraded entry stays
// identifiable inside the generated Sources section.
func Placeholder(url, reason string) string {
	return fmt.Sprintf("[citation unavailable for %s: %s]", url, reason)
}

// Resolve deduplicates the occurrence URLs preserving first-appearance
// order, assigns 1-based numbers before any fetch is dispatched, then
// resolves every unique URL concurrently. Per-URL failures degrade to
// placeholder citations; cache-layer failures abort the whole batch.
// The returned map is complete: every unique URL has a terminal citation.
func Resolve(ctx context.Context, logger *slog.Logger, occs []models.MarkerOccurrence, fetch FetchFunc, workers int) (map[string]*models.SourceEntry, error) {
	sources := make(map[string]*models.SourceEntry, len(occs))

	// Numbering pass. Completion order of the fetches below must never
	// influence these assignments.
	number := 0
	order := make([]string, 0, len(occs))
	for _, occ := range occs {
		if _, seen := sources[occ.URL]; seen {
			continue
		}
		number++
		sources[occ.URL] = &models.SourceEntry{URL: occ.URL, Number: number}
		order = append(order, occ.URL)
	}

	if len(order) == 0 {
		return sources, nil
	}

	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(order) {
		workers = len(order)
	}

	logger.Info("Starting citation fetch phase", "unique_urls", len(order), "workers", workers)

	var wg sync.WaitGroup
	jobs := make(chan Job, len(order))
	results := make(chan Result, len(order))

	for w := 1; w <= workers; w++ {
		wg.Add(1)
		go worker(ctx, w, logger, fetch, &wg, jobs, results)
	}

	for _, url := range order {
		jobs <- Job{URL: url}
	}
	close(jobs)

	wg.Wait()
	close(results)
	logger.Info("All citation workers finished")

	var fatalErr error
	for result := range results {
		entry := sources[result.URL]
		if result.Err != nil {
			var fetchErr *citations.FetchError
			switch {
			case errors.Is(result.Err, citations.ErrCache):
				// Persistent environment problem, not a per-URL condition.
				if fatalErr == nil {
					fatalErr = result.Err
				}
			case errors.As(result.Err, &fetchErr):
				entry.Citation = Placeholder(result.URL, fetchErr.Reason)
				entry.Failed = true
			default:
				entry.Citation = Placeholder(result.URL, result.Err.Error())
				entry.Failed = true
			}
			continue
		}
		entry.Citation = result.Outcome.Text
		entry.NeedsReview = result.Outcome.NeedsReview
		entry.CacheHit = result.Outcome.CacheHit
	}

	if fatalErr != nil {
		return nil, fatalErr
	}
	return sources, nil
}

// worker processes jobs until the channel closes. Fetch failures are
// reported through the result, never by aborting the pool.
func worker(ctx context.Context, id int, logger *slog.Logger, fetch FetchFunc, wg *sync.WaitGroup, jobs <-chan Job, results chan<- Result) {
	defer wg.Done()
	for job := range jobs {
		logger.Info("Worker started job", "worker_id", id, "url", job.URL)
		outcome, err := fetch(ctx, job.URL)
		if err != nil {
			logger.Error("Error fetching citation", "worker_id", id, "url", job.URL, "error", err)
		} else {
			logger.Info("Worker finished job", "worker_id", id, "url", job.URL, "cache_hit", outcome.CacheHit)
		}
		results <- Result{URL: job.URL, Outcome: outcome, Err: err}
	}
}
