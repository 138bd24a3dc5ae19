package sqlite

// Schema defines the SQLite schema for the Chronicler stores.
// Links, fields, tags, and metadata are stored as JSON text columns;
// the analysis engine always works on full entity snapshots, so there is
// no need to normalize links into a separate edge table.
const Schema = `
CREATE TABLE IF NOT EXISTS entities (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	summary     TEXT NOT NULL DEFAULT '',
	notes       TEXT NOT NULL DEFAULT '',
	tags        TEXT,
	fields      TEXT,
	links       TEXT,
	metadata    TEXT,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);

CREATE TABLE IF NOT EXISTS suggestions (
	id               TEXT PRIMARY KEY,
	type             TEXT NOT NULL,
	title            TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	relevance_score  INTEGER NOT NULL DEFAULT 0,
	affected_ids     TEXT NOT NULL,
	suggested_action TEXT,
	status           TEXT NOT NULL DEFAULT 'pending',
	created_at       TIMESTAMP NOT NULL,
	expires_at       TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_suggestions_status ON suggestions(status);
CREATE INDEX IF NOT EXISTS idx_suggestions_type ON suggestions(type);
CREATE INDEX IF NOT EXISTS idx_suggestions_expires ON suggestions(expires_at);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	ran_at       TIMESTAMP NOT NULL,
	entity_count INTEGER NOT NULL
);
`
