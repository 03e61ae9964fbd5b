// Package models defines data structures for configuration and the
// citation pipeline.
package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServiceConfig holds citation service settings that may be provided via
// an optional YAML config file. CLI flags override anything set here.
// Durations are kept as strings and parsed by the command layer.
type ServiceConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Model          string `yaml:"model"`
	PromptTemplate string `yaml:"prompt_template"`
	RequestDelay   string `yaml:"request_delay"`
	RequestTimeout string `yaml:"request_timeout"`
}

// LoadServiceConfig reads and parses a YAML service config file.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg ServiceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}
