package db

const schema = `
-- Performance and reliability settings
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA temp_store = MEMORY;

-- Citation responses: one row per (endpoint, url, prompt) submission.
-- The prompt is stored hashed; the response is the raw service output
-- before delimiter extraction, so post-processing stays deterministic.
CREATE TABLE IF NOT EXISTS citations (
    citation_id INTEGER PRIMARY KEY AUTOINCREMENT,
    endpoint TEXT NOT NULL,
    url TEXT NOT NULL,
    prompt_hash TEXT NOT NULL,
    response TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    hit_count INTEGER DEFAULT 0,
    last_hit_at TIMESTAMP,
    UNIQUE(endpoint, url, prompt_hash)
);

CREATE INDEX IF NOT EXISTS idx_citations_url ON citations(url);
CREATE INDEX IF NOT EXISTS idx_citations_endpoint ON citations(endpoint);
CREATE INDEX IF NOT EXISTS idx_citations_created ON citations(created_at);
`
