// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

package sqlite

import (
	"database/sql"

	werr "github.com/weft-dev/weft/pkg/errors"
)

// schemaVersion is the version a fully migrated database reports.
const schemaVersion = 2

// migration is one schema step. Steps run in ascending order starting
// after the stored version; a fully migrated store is a no-op.
type migration struct {
	version int
	ddl     string
}

var migrations = []migration{
	{version: 1, ddl: `
CREATE TABLE IF NOT EXISTS entities (
	id         TEXT PRIMARY KEY NOT NULL,
	kind       TEXT NOT NULL,
	name       TEXT NOT NULL,
	attributes TEXT NOT NULL DEFAULT '{}',
	first_seen INTEGER NOT NULL,
	last_seen  INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_natural_key ON entities(kind, name);
CREATE INDEX IF NOT EXISTS idx_entities_last_seen ON entities(last_seen);

CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY NOT NULL,
	timestamp  INTEGER NOT NULL,
	source     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	subject_id TEXT NOT NULL REFERENCES entities(id),
	metadata   TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_source    ON events(source);
CREATE INDEX IF NOT EXISTS idx_events_subject   ON events(subject_id);

CREATE TABLE IF NOT EXISTS event_context (
	event_id  TEXT NOT NULL REFERENCES events(id),
	entity_id TEXT NOT NULL REFERENCES entities(id),
	PRIMARY KEY (event_id, entity_id)
);

CREATE TABLE IF NOT EXISTS edges (
	id              TEXT PRIMARY KEY NOT NULL,
	from_id         TEXT NOT NULL REFERENCES entities(id),
	to_id           TEXT NOT NULL REFERENCES entities(id),
	relation        TEXT NOT NULL,
	strength        REAL NOT NULL,
	created_at      INTEGER NOT NULL,
	last_reinforced INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_edges_triple ON edges(from_id, to_id, relation);
CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id);

CREATE VIRTUAL TABLE IF NOT EXISTS entities_fts USING fts5(
	name,
	attributes,
	content='entities',
	content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS entities_fts_ai AFTER INSERT ON entities BEGIN
	INSERT INTO entities_fts(rowid, name, attributes)
	VALUES (new.rowid, new.name, new.attributes);
END;
CREATE TRIGGER IF NOT EXISTS entities_fts_ad AFTER DELETE ON entities BEGIN
	INSERT INTO entities_fts(entities_fts, rowid, name, attributes)
	VALUES ('delete', old.rowid, old.name, old.attributes);
END;
CREATE TRIGGER IF NOT EXISTS entities_fts_au AFTER UPDATE ON entities BEGIN
	INSERT INTO entities_fts(entities_fts, rowid, name, attributes)
	VALUES ('delete', old.rowid, old.name, old.attributes);
	INSERT INTO entities_fts(rowid, name, attributes)
	VALUES (new.rowid, new.name, new.attributes);
END;
`},
	{version: 2, ddl: `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY NOT NULL,
	app_name      TEXT NOT NULL,
	window_titles TEXT NOT NULL DEFAULT '[]',
	project       TEXT,
	category      TEXT NOT NULL DEFAULT 'other',
	start_time    INTEGER NOT NULL,
	end_time      INTEGER NOT NULL,
	duration_secs INTEGER NOT NULL,
	event_count   INTEGER NOT NULL DEFAULT 0,
	metadata      TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_sessions_time ON sessions(start_time, end_time);
CREATE INDEX IF NOT EXISTS idx_sessions_app  ON sessions(app_name);
`},
}

// migrate brings the database to the current schema version.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return werr.Wrap(err, werr.CodeStoreMigrateFailure, "creating schema_version table")
	}

	var current int
	err := db.QueryRow(`SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`).Scan(&current)
	if err == sql.ErrNoRows {
		current = 0
	} else if err != nil {
		return werr.Wrap(err, werr.CodeStoreMigrateFailure, "reading schema version")
	}

	if current >= schemaVersion {
		return nil
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := db.Exec(m.ddl); err != nil {
			return werr.Wrapf(err, werr.CodeStoreMigrateFailure, "applying migration v%d", m.version)
		}
	}

	if current == 0 {
		_, err = db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion)
	} else {
		_, err = db.Exec(`UPDATE schema_version SET version = ?`, schemaVersion)
	}
	if err != nil {
		return werr.Wrap(err, werr.CodeStoreMigrateFailure, "recording schema version")
	}
	return nil
}
