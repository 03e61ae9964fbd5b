// Package cachecmd implements the cache inspection commands.
package cachecmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/citation-cleaner/pkg/db"
)

func openCache(c *cli.Context) (*db.DB, error) {
	if dbPath := c.String("cache-db"); dbPath != "" {
		return db.OpenAt(dbPath)
	}
	return db.Open()
}

func StatsAction(c *cli.Context) error {
	database, err := openCache(c)
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}
	defer database.Close()

	stats, err := database.Stats()
	if err != nil {
		return fmt.Errorf("failed to read cache stats: %w", err)
	}

	var outputData []byte
	if strings.ToLower(c.String("format")) == "yaml" {
		outputData, err = yaml.Marshal(stats)
	} else {
		outputData, err = json.MarshalIndent(stats, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal cache stats: %w", err)
	}
	fmt.Println(string(outputData))

	return nil
}

func ClearAction(c *cli.Context) error {
	database, err := openCache(c)
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}
	defer database.Close()

	endpoint := c.String("endpoint")
	removed, err := database.Clear(endpoint)
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	if endpoint == "" {
		fmt.Printf("Removed %d cache entries\n", removed)
	} else {
		fmt.Printf("Removed %d cache entries for endpoint %s\n", removed, endpoint)
	}
	return nil
}
