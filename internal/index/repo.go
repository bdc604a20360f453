package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

// NoteRow represents a row in the notes table. ParentID is empty for roots.
type NoteRow struct {
	ID       string
	ParentID string
	Title    string
	Checksum string
	Created  time.Time
	Modified time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string
	Title   string
	Snippet string
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Insert adds a new note at the end of the list order. The parent, when set,
// must already be indexed.
func (db *DB) Insert(n NoteRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if n.ParentID != "" {
		var one int
		err := tx.QueryRow(`SELECT 1 FROM notes WHERE id = ?`, n.ParentID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("index: parent %s: %w", n.ParentID, apperr.ErrValidation)
		}
		if err != nil {
			return fmt.Errorf("index: lookup parent: %w", err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO notes (id, seq, title, parent_id, checksum, body, created, modified)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM notes), ?, ?, ?, ?, ?, ?)
	`, n.ID, n.Title, nullable(n.ParentID), n.Checksum, body, n.Created.UTC(), n.Modified.UTC())
	if err != nil {
		return fmt.Errorf("index: insert note: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, n.ID, n.Title, body); err != nil {
		return err
	}
	return tx.Commit()
}

// Update replaces title, checksum, body and modified time of an existing note.
// Parent, position and creation time never change.
func (db *DB) Update(n NoteRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`
		UPDATE notes SET title = ?, checksum = ?, body = ?, modified = ?
		WHERE id = ?
	`, n.Title, n.Checksum, body, n.Modified.UTC(), n.ID)
	if err != nil {
		return fmt.Errorf("index: update note: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("index: note %s: %w", n.ID, apperr.ErrNotFound)
	}
	if err := ftsUpsert(tx, n.ID, n.Title, body); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordContent stores content that changed outside the application.
func (db *DB) RecordContent(id, checksum, body string, modified time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var title string
	err = tx.QueryRow(`SELECT title FROM notes WHERE id = ?`, id).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("index: note %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("index: lookup note: %w", err)
	}
	if _, err := tx.Exec(`UPDATE notes SET checksum = ?, body = ?, modified = ? WHERE id = ?`,
		checksum, body, modified.UTC(), id); err != nil {
		return fmt.Errorf("index: record content: %w", err)
	}
	if err := ftsUpsert(tx, id, title, body); err != nil {
		return err
	}
	return tx.Commit()
}

const selectRow = `SELECT id, COALESCE(parent_id, ''), title, checksum, created, modified FROM notes`

func scanRow(sc interface{ Scan(...any) error }) (NoteRow, error) {
	var r NoteRow
	err := sc.Scan(&r.ID, &r.ParentID, &r.Title, &r.Checksum, &r.Created, &r.Modified)
	return r, err
}

// Get returns a single note row.
func (db *DB) Get(id string) (*NoteRow, error) {
	r, err := scanRow(db.conn.QueryRow(selectRow+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: note %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	return &r, nil
}

// List returns every note in creation order.
func (db *DB) List() ([]NoteRow, error) {
	rows, err := db.conn.Query(selectRow + ` ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()

	var out []NoteRow
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of indexed notes.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// DeleteTree removes id and all notes below it in one transaction and
// returns the removed ids. beforeCommit, when set, runs inside the
// transaction with the ids; an error from it rolls everything back.
func (db *DB) DeleteTree(id string, beforeCommit func(ids []string) error) ([]string, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// UNION (not UNION ALL) stops at rows already visited, so a corrupt
	// parent cycle cannot loop forever.
	rows, err := tx.Query(`
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM notes WHERE id = ?
			UNION
			SELECT n.id FROM notes n JOIN subtree s ON n.parent_id = s.id
		)
		SELECT id FROM subtree
	`, id)
	if err != nil {
		return nil, fmt.Errorf("index: collect subtree: %w", err)
	}
	var ids []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("index: note %s: %w", id, apperr.ErrNotFound)
	}

	for _, s := range ids {
		ftsDelete(tx, s)
		if _, err := tx.Exec(`DELETE FROM notes WHERE id = ?`, s); err != nil {
			return nil, fmt.Errorf("index: delete note: %w", err)
		}
	}
	if beforeCommit != nil {
		if err := beforeCommit(ids); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("index: commit delete: %w", err)
	}
	return ids, nil
}

// Checksums returns the stored content checksum of every note.
func (db *DB) Checksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT id, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}
