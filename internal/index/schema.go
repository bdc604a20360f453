// Package index keeps note metadata in SQLite, with optional FTS5 full-text
// search over titles and content.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// seq keeps list order equal to creation order, including for rows copied
// in from another location.
const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id        TEXT PRIMARY KEY,
	seq       INTEGER NOT NULL,
	title     TEXT NOT NULL DEFAULT '',
	parent_id TEXT,
	checksum  TEXT NOT NULL DEFAULT '',
	body      TEXT NOT NULL DEFAULT '',
	created   DATETIME NOT NULL,
	modified  DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_notes_seq ON notes(seq);
CREATE INDEX IF NOT EXISTS idx_notes_parent ON notes(parent_id);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
