package store

const SchemaVersion = 2

// The schema is written in the subset shared by SQLite and PostgreSQL:
// timestamps are unix seconds and JSON payloads are TEXT.
const schemaSQL = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);

-- Cached motif counts keyed by the hash of task, size and graph text
CREATE TABLE IF NOT EXISTS count_results (
    cache_key TEXT PRIMARY KEY,
    task TEXT NOT NULL,
    size INTEGER NOT NULL,
    nodes INTEGER NOT NULL,
    edges INTEGER NOT NULL,
    output TEXT NOT NULL,
    created_at BIGINT NOT NULL
);

-- Graphs processed by the census, one row per file
CREATE TABLE IF NOT EXISTS graphs (
    path TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    content_hash TEXT,
    encoding TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    error_message TEXT,
    run_id TEXT,
    size INTEGER,
    nodes INTEGER,
    edges INTEGER,
    gdm TEXT,
    updated_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_graphs_status ON graphs(status);
CREATE INDEX IF NOT EXISTS idx_graphs_name ON graphs(name);
`

func GetSchema() string {
	return schemaSQL
}

func GetSchemaVersion() int {
	return SchemaVersion
}
