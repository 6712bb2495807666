package storage

// Schema is applied on every open; statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS instances (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	version TEXT NOT NULL DEFAULT '',
	data TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_instances_type ON instances(type);
CREATE INDEX IF NOT EXISTS idx_instances_created ON instances(created_at);
`
