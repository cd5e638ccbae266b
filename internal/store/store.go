// Package store holds the SQLite-backed persistence for the attribution
// engine: the affiliation cache, the geocoding cache, the institution
// registry, and the authorship records the reconciler repairs in place.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS affiliation_cache (
	raw         TEXT PRIMARY KEY,
	country     TEXT NOT NULL DEFAULT '',
	region      TEXT NOT NULL DEFAULT '',
	city        TEXT NOT NULL DEFAULT '',
	institution TEXT NOT NULL DEFAULT '',
	department  TEXT NOT NULL DEFAULT '',
	confidence  TEXT NOT NULL DEFAULT 'none',
	source      TEXT NOT NULL DEFAULT 'rules',
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	location_key TEXT PRIMARY KEY,
	country      TEXT NOT NULL,
	city         TEXT NOT NULL DEFAULT '',
	latitude     REAL,
	longitude    REAL,
	samples      TEXT NOT NULL DEFAULT '[]',
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS institutions (
	normalized_name TEXT PRIMARY KEY,
	primary_name    TEXT NOT NULL,
	aliases         TEXT NOT NULL DEFAULT '[]',
	country         TEXT NOT NULL DEFAULT '',
	city            TEXT NOT NULL DEFAULT '',
	rank            INTEGER,
	registry_id     TEXT NOT NULL DEFAULT '',
	provenance      TEXT NOT NULL DEFAULT 'curated',
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS authorship_records (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id     TEXT NOT NULL,
	author_name     TEXT NOT NULL,
	raw_affiliation TEXT NOT NULL,
	country         TEXT NOT NULL DEFAULT '',
	region          TEXT NOT NULL DEFAULT '',
	city            TEXT NOT NULL DEFAULT '',
	institution     TEXT NOT NULL DEFAULT '',
	confidence      TEXT NOT NULL DEFAULT 'none',
	run_id          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_records_run ON authorship_records(run_id);
CREATE INDEX IF NOT EXISTS idx_records_affiliation ON authorship_records(raw_affiliation);
`

// Open opens (or creates) the engine database. WAL plus a serialized
// connection keeps concurrent cache writers from tripping over SQLITE_BUSY.
func Open(dbPath string) (*sqlx.DB, error) {
	dsn := dbPath + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	if dbPath == ":memory:" {
		dsn = dbPath
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func marshalJSON(v any) string {
	if v == nil {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
