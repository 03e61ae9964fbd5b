// Package clean implements the clean command: the full marker-to-Sources
// rewrite pipeline.
package clean

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/citation-cleaner/models"
	"github.com/dtnitsch/citation-cleaner/pkg/citations"
	"github.com/dtnitsch/citation-cleaner/pkg/db"
	"github.com/dtnitsch/citation-cleaner/pkg/fallback"
	"github.com/dtnitsch/citation-cleaner/pkg/fetcher"
	"github.com/dtnitsch/citation-cleaner/pkg/llm"
	"github.com/dtnitsch/citation-cleaner/pkg/markers"
	"github.com/dtnitsch/citation-cleaner/pkg/resolver"
	"github.com/dtnitsch/citation-cleaner/pkg/rewriter"
	"github.com/dtnitsch/citation-cleaner/pkg/storage"
)

func Action(c *cli.Context) error {
	logLevel := slog.LevelInfo
	if c.Bool("quiet") {
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	startTime := time.Now()

	if c.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Error: input and output files required")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  citation-cleaner clean report.md report-clean.md")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Need help? Run: citation-cleaner clean --help")
		os.Exit(1)
	}
	inputPath := c.Args().Get(0)
	outputPath := c.Args().Get(1)

	svc, err := resolveServiceSettings(c)
	if err != nil {
		logger.Error("invalid service settings", "error", err)
		os.Exit(2)
	}

	apiKey := c.String("api-key")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: citation service API key not found")
		fmt.Fprintln(os.Stderr, "Provide it with --api-key or set the CITE_API_KEY environment variable")
		os.Exit(1)
	}

	s := &storage.Storage{}
	content, err := s.ReadFile(inputPath)
	if err != nil {
		logger.Error("failed to read input document", "input", inputPath, "error", err)
		os.Exit(2)
	}
	text := string(content)

	occs := markers.Extract(text)
	if len(occs) == 0 {
		logger.Info("no citation markers found", "input", inputPath)
		if c.Bool("passthrough") {
			if err := s.SaveFile(outputPath, content); err != nil {
				logger.Error("failed to write output document", "output", outputPath, "error", err)
				os.Exit(2)
			}
			fmt.Printf("No citation markers found; input copied unchanged to %s\n", outputPath)
		} else {
			fmt.Println("No citation markers found; nothing to do")
		}
		return nil
	}
	logger.Info("found citation markers", "count", len(occs), "unique_urls", len(markers.UniqueURLs(occs)))

	var store citations.Store
	var database *db.DB
	if dbPath := c.String("cache-db"); dbPath != "" {
		database, err = db.OpenAt(dbPath)
	} else {
		database, err = db.Open()
	}
	if err != nil {
		logger.Error("failed to open cache database", "error", err)
		os.Exit(2)
	}
	defer database.Close()
	store = database

	llmClient := llm.New(svc.endpoint, apiKey, svc.model, svc.requestTimeout)
	citClient := citations.New(llmClient, store, logger, citations.Options{
		Endpoint:       llmClient.Endpoint(),
		PromptTemplate: svc.promptTemplate,
		RequestDelay:   svc.requestDelay,
		SkipCacheRead:  c.Bool("no-cache"),
	})

	fetch := resolver.FetchFunc(citClient.Fetch)
	if c.Bool("fallback-fetch") {
		fb := fallback.New(fetcher.New(svc.requestTimeout), logger)
		base := fetch
		fetch = func(ctx context.Context, url string) (citations.Outcome, error) {
			outcome, err := base(ctx, url)
			var fetchErr *citations.FetchError
			if err != nil && errors.As(err, &fetchErr) {
				text, fbErr := fb.Citation(ctx, url)
				if fbErr != nil {
					logger.Warn("fallback citation failed", "url", url, "error", fbErr)
					return outcome, err
				}
				logger.Warn("using fallback citation", "url", url, "reason", fetchErr.Reason)
				return citations.Outcome{Text: text, NeedsReview: true}, nil
			}
			return outcome, err
		}
	}

	sources, err := resolver.Resolve(c.Context, logger, occs, fetch, c.Int("workers"))
	if err != nil {
		logger.Error("citation resolution aborted", "error", err)
		os.Exit(2)
	}

	final := rewriter.Rewrite(text, occs, sources)
	if err := s.SaveFile(outputPath, []byte(final)); err != nil {
		logger.Error("failed to write output document", "output", outputPath, "error", err)
		os.Exit(2)
	}
	logger.Info("output document written", "output", outputPath)

	report := buildReport(inputPath, outputPath, occs, sources, time.Since(startTime))

	var outputData []byte
	var marshalErr error
	if strings.ToLower(c.String("format")) == "yaml" {
		outputData, marshalErr = yaml.Marshal(report)
	} else {
		outputData, marshalErr = json.MarshalIndent(report, "", "  ")
	}
	if marshalErr != nil {
		logger.Error("failed to marshal run report", "error", marshalErr)
		os.Exit(2)
	}
	fmt.Println(string(outputData))

	if report.Stats.Failed == report.Stats.UniqueURLs {
		os.Exit(2)
	}
	if report.Stats.Failed > 0 {
		os.Exit(1)
	}

	return nil
}

func buildReport(inputPath, outputPath string, occs []models.MarkerOccurrence, sources map[string]*models.SourceEntry, elapsed time.Duration) *models.RunReport {
	report := &models.RunReport{
		Input:  inputPath,
		Output: outputPath,
		Stats: models.RunStats{
			Markers:          len(occs),
			UniqueURLs:       len(sources),
			TotalTimeSeconds: elapsed.Seconds(),
		},
	}

	ordered := make([]*models.SourceEntry, 0, len(sources))
	for _, entry := range sources {
		ordered = append(ordered, entry)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Number < ordered[j].Number
	})

	for _, entry := range ordered {
		status := "resolved"
		switch {
		case entry.Failed:
			status = "failed"
			report.Stats.Failed++
		case entry.NeedsReview:
			status = "needs_review"
			report.Stats.NeedsReview++
		case entry.CacheHit:
			status = "cached"
			report.Stats.CacheHits++
		}
		if !entry.Failed && !entry.CacheHit {
			report.Stats.Fetched++
		}
		report.Sources = append(report.Sources, models.SourceReport{
			Number: entry.Number,
			URL:    entry.URL,
			Status: status,
		})
	}

	if report.Stats.Failed > 0 {
		report.Status = "partial_failure"
	} else {
		report.Status = "success"
	}
	return report
}
