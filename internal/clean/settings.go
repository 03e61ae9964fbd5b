package clean

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/citation-cleaner/models"
	"github.com/dtnitsch/citation-cleaner/pkg/citations"
	"github.com/dtnitsch/citation-cleaner/pkg/llm"
)

const (
	defaultEndpoint = "https://api.openai.com"
	defaultModel    = "gpt-4o-mini"
)

// serviceSettings is the merged view of service configuration: defaults,
// then the optional YAML config file, then CLI flags.
type serviceSettings struct {
	endpoint       string
	model          string
	promptTemplate string
	requestDelay   time.Duration
	requestTimeout time.Duration
}

func resolveServiceSettings(c *cli.Context) (*serviceSettings, error) {
	settings := &serviceSettings{
		endpoint:       defaultEndpoint,
		model:          defaultModel,
		promptTemplate: citations.DefaultPromptTemplate,
		requestDelay:   citations.DefaultRequestDelay,
		requestTimeout: llm.DefaultTimeout,
	}

	if c.IsSet("config") {
		cfg, err := models.LoadServiceConfig(c.String("config"))
		if err != nil {
			return nil, err
		}
		if cfg.Endpoint != "" {
			settings.endpoint = cfg.Endpoint
		}
		if cfg.Model != "" {
			settings.model = cfg.Model
		}
		if cfg.PromptTemplate != "" {
			settings.promptTemplate = cfg.PromptTemplate
		}
		if cfg.RequestDelay != "" {
			d, err := time.ParseDuration(cfg.RequestDelay)
			if err != nil {
				return nil, fmt.Errorf("invalid request_delay in config: %w", err)
			}
			settings.requestDelay = d
		}
		if cfg.RequestTimeout != "" {
			d, err := time.ParseDuration(cfg.RequestTimeout)
			if err != nil {
				return nil, fmt.Errorf("invalid request_timeout in config: %w", err)
			}
			settings.requestTimeout = d
		}
	}

	if c.IsSet("endpoint") {
		settings.endpoint = c.String("endpoint")
	}
	if c.IsSet("model") {
		settings.model = c.String("model")
	}
	if c.IsSet("request-delay") {
		d, err := time.ParseDuration(c.String("request-delay"))
		if err != nil {
			return nil, fmt.Errorf("invalid request-delay duration: %w", err)
		}
		settings.requestDelay = d
	}
	if c.IsSet("request-timeout") {
		d, err := time.ParseDuration(c.String("request-timeout"))
		if err != nil {
			return nil, fmt.Errorf("invalid request-timeout duration: %w", err)
		}
		settings.requestTimeout = d
	}

	return settings, nil
}
