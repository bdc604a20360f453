package index

import "time"

// NoteIndex defines the interface for note metadata operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type NoteIndex interface {
	Insert(n NoteRow, body string) error
	Update(n NoteRow, body string) error
	RecordContent(id, checksum, body string, modified time.Time) error
	Get(id string) (*NoteRow, error)
	List() ([]NoteRow, error)
	Count() (int, error)
	DeleteTree(id string, beforeCommit func(ids []string) error) ([]string, error)
	Checksums() (map[string]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
