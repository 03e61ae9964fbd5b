package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/citation-cleaner/internal/cachecmd"
	"github.com/dtnitsch/citation-cleaner/internal/clean"
	"github.com/dtnitsch/citation-cleaner/internal/scan"
	"github.com/dtnitsch/citation-cleaner/pkg/resolver"
)

func main() {
	app := &cli.App{
		Name:  "citation-cleaner",
		Usage: "Consolidate inline ([Text](URL)) markers in markdown into a numbered Sources section",
		Commands: []*cli.Command{
			{
				Name:      "clean",
				Usage:     "Rewrite a markdown document, replacing markers with numbered references",
				ArgsUsage: "<input.md> <output.md>",
				Action:    clean.Action,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "api-key",
						Aliases: []string{"k"},
						Usage:   "citation service API key",
						EnvVars: []string{"CITE_API_KEY", "OPENAI_API_KEY"},
					},
					&cli.StringFlag{
						Name:  "endpoint",
						Usage: "chat-completions base URL",
					},
					&cli.StringFlag{
						Name:  "model",
						Usage: "model name sent in the request body",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "maximum concurrent citation fetches",
						Value: resolver.DefaultWorkers,
					},
					&cli.StringFlag{
						Name:  "request-delay",
						Usage: "minimum delay between network-issuing service calls (cached hits bypass it)",
					},
					&cli.StringFlag{
						Name:  "request-timeout",
						Usage: "per-call timeout for service requests",
					},
					&cli.BoolFlag{
						Name:  "fallback-fetch",
						Usage: "on service failure, fetch the page and build a minimal citation",
					},
					&cli.BoolFlag{
						Name:  "passthrough",
						Usage: "copy the input unchanged to the output when no markers are found",
					},
					&cli.BoolFlag{
						Name:  "no-cache",
						Usage: "bypass cache lookups (responses are still recorded)",
					},
					&cli.StringFlag{
						Name:  "cache-db",
						Usage: "cache database path (default: next to the binary)",
					},
					&cli.StringFlag{
						Name:  "config",
						Usage: "YAML file with service settings (flags override)",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "run report format: json or yaml",
						Value: "json",
					},
					&cli.BoolFlag{
						Name:  "quiet",
						Usage: "log errors only",
					},
				},
			},
			{
				Name:      "scan",
				Usage:     "List citation markers and unique URLs without fetching anything",
				ArgsUsage: "<input.md>",
				Action:    scan.Action,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "output format: json or yaml",
						Value: "json",
					},
					&cli.BoolFlag{
						Name:  "quiet",
						Usage: "log errors only",
					},
				},
			},
			{
				Name:  "cache",
				Usage: "Inspect and prune the citation cache",
				Subcommands: []*cli.Command{
					{
						Name:   "stats",
						Usage:  "Show cache entry and hit counts",
						Action: cachecmd.StatsAction,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "cache-db",
								Usage: "cache database path (default: next to the binary)",
							},
							&cli.StringFlag{
								Name:  "format",
								Usage: "output format: json or yaml",
								Value: "json",
							},
						},
					},
					{
						Name:   "clear",
						Usage:  "Remove cache entries",
						Action: cachecmd.ClearAction,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "cache-db",
								Usage: "cache database path (default: next to the binary)",
							},
							&cli.StringFlag{
								Name:  "endpoint",
								Usage: "only remove entries for this endpoint",
							},
						},
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(2)
	}
}
