package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Get returns the cached raw response for (endpoint, url, promptHash).
// A hit bumps the access counters. The second return value reports
// whether the key was present.
func (db *DB) Get(endpoint, url, promptHash string) (string, bool, error) {
	var citationID int64
	var response string
	err := db.QueryRow(`
		SELECT citation_id, response FROM citations
		WHERE endpoint = ? AND url = ? AND prompt_hash = ?
	`, endpoint, url, promptHash).Scan(&citationID, &response)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	_, err = db.Exec(`
		UPDATE citations SET hit_count = hit_count + 1, last_hit_at = ?
		WHERE citation_id = ?
	`, time.Now().UTC(), citationID)
	if err != nil {
		return "", false, fmt.Errorf("failed to record cache hit: %w", err)
	}

	return response, true, nil
}

// Put stores the raw response for (endpoint, url, promptHash). Writing
// the same key again replaces the previous entry.
func (db *DB) Put(endpoint, url, promptHash, response string) error {
	_, err := db.Exec(`
		INSERT INTO citations (endpoint, url, prompt_hash, response)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(endpoint, url, prompt_hash)
		DO UPDATE SET response = excluded.response, created_at = CURRENT_TIMESTAMP
	`, endpoint, url, promptHash, response)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// CacheStats summarizes the cache contents for the stats command.
type CacheStats struct {
	Entries   int64          `json:"entries" yaml:"entries"`
	TotalHits int64          `json:"total_hits" yaml:"total_hits"`
	Endpoints map[string]int `json:"endpoints" yaml:"endpoints"`
	OldestAt  string         `json:"oldest_at,omitempty" yaml:"oldest_at,omitempty"`
	NewestAt  string         `json:"newest_at,omitempty" yaml:"newest_at,omitempty"`
}

// Stats returns aggregate cache statistics.
func (db *DB) Stats() (*CacheStats, error) {
	stats := &CacheStats{Endpoints: make(map[string]int)}

	var oldest, newest sql.NullString
	err := db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(hit_count), 0), MIN(created_at), MAX(created_at)
		FROM citations
	`).Scan(&stats.Entries, &stats.TotalHits, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache stats: %w", err)
	}
	stats.OldestAt = oldest.String
	stats.NewestAt = newest.String

	rows, err := db.Query("SELECT endpoint, COUNT(*) FROM citations GROUP BY endpoint")
	if err != nil {
		return nil, fmt.Errorf("failed to read endpoint stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var endpoint string
		var count int
		if err := rows.Scan(&endpoint, &count); err != nil {
			return nil, fmt.Errorf("failed to scan endpoint stats: %w", err)
		}
		stats.Endpoints[endpoint] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate endpoint stats: %w", err)
	}

	return stats, nil
}

// Clear removes cache entries. An empty endpoint removes everything;
// otherwise only entries for that endpoint are dropped. Returns the
// number of removed rows.
func (db *DB) Clear(endpoint string) (int64, error) {
	var result sql.Result
	var err error
	if endpoint == "" {
		result, err = db.Exec("DELETE FROM citations")
	} else {
		result, err = db.Exec("DELETE FROM citations WHERE endpoint = ?", endpoint)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count removed entries: %w", err)
	}
	return removed, nil
}
