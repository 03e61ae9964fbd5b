// Package scan implements the scan command: extract-only inspection of a
// document's citation markers, without any network or cache access.
package scan

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/citation-cleaner/pkg/markers"
	"github.com/dtnitsch/citation-cleaner/pkg/storage"
)

type markerOutput struct {
	Start       int    `json:"start" yaml:"start"`
	End         int    `json:"end" yaml:"end"`
	DisplayText string `json:"display_text" yaml:"display_text"`
	URL         string `json:"url" yaml:"url"`
}

type scanOutput struct {
	Input      string         `json:"input" yaml:"input"`
	Markers    []markerOutput `json:"markers" yaml:"markers"`
	UniqueURLs []string       `json:"unique_urls" yaml:"unique_urls"`
}

func Action(c *cli.Context) error {
	logLevel := slog.LevelInfo
	if c.Bool("quiet") {
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if c.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: input file required")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  citation-cleaner scan report.md")
		os.Exit(1)
	}
	inputPath := c.Args().Get(0)

	s := &storage.Storage{}
	content, err := s.ReadFile(inputPath)
	if err != nil {
		logger.Error("failed to read input document", "input", inputPath, "error", err)
		os.Exit(2)
	}

	occs := markers.Extract(string(content))
	output := scanOutput{
		Input:      inputPath,
		Markers:    make([]markerOutput, 0, len(occs)),
		UniqueURLs: markers.UniqueURLs(occs),
	}
	for _, occ := range occs {
		output.Markers = append(output.Markers, markerOutput{
			Start:       occ.Start,
			End:         occ.End,
			DisplayText: occ.DisplayText,
			URL:         occ.URL,
		})
	}

	var outputData []byte
	var marshalErr error
	if strings.ToLower(c.String("format")) == "yaml" {
		outputData, marshalErr = yaml.Marshal(output)
	} else {
		outputData, marshalErr = json.MarshalIndent(output, "", "  ")
	}
	if marshalErr != nil {
		logger.Error("failed to marshal scan output", "error", marshalErr)
		os.Exit(2)
	}
	fmt.Println(string(outputData))

	return nil
}
