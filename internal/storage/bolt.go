package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/tree"
)

var bucketNotes = []byte("notes")

// boltRecord is the JSON value stored per note key. Seq keeps creation order
// for imported notes whose ids are not time-ordered.
type boltRecord struct {
	models.Note
	Seq uint64 `json:"seq"`
}

// BoltStore keeps every note as one JSON value in a bbolt bucket.
type BoltStore struct {
	db *bolt.DB
	mu sync.Mutex
}

// OpenBolt opens (or creates) notes.bolt in dir.
func OpenBolt(dir string) (*BoltStore, error) {
	path := filepath.Join(dir, BoltFile)
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open bolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketNotes)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: init bolt: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func readRecords(tx *bolt.Tx) ([]boltRecord, error) {
	b := tx.Bucket(bucketNotes)
	if b == nil {
		return nil, errors.New("storage: notes bucket missing")
	}
	var out []boltRecord
	err := b.ForEach(func(_, v []byte) error {
		var rec boltRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func getRecord(tx *bolt.Tx, id models.NoteID) (boltRecord, error) {
	b := tx.Bucket(bucketNotes)
	if b == nil {
		return boltRecord{}, errors.New("storage: notes bucket missing")
	}
	raw := b.Get([]byte(id))
	if raw == nil {
		return boltRecord{}, fmt.Errorf("storage: note %s: %w", id, apperr.ErrNotFound)
	}
	var rec boltRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return boltRecord{}, err
	}
	return rec, nil
}

func putRecord(tx *bolt.Tx, rec boltRecord) error {
	b := tx.Bucket(bucketNotes)
	if b == nil {
		return errors.New("storage: notes bucket missing")
	}
	if rec.Seq == 0 {
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		rec.Seq = seq
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put([]byte(rec.ID), raw)
}

// List returns every note in creation order.
func (s *BoltStore) List(_ context.Context) ([]models.Note, error) {
	var out []models.Note
	err := s.db.View(func(tx *bolt.Tx) error {
		recs, err := readRecords(tx)
		if err != nil {
			return err
		}
		out = make([]models.Note, len(recs))
		for i, r := range recs {
			out[i] = r.Note
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Get returns one note.
func (s *BoltStore) Get(_ context.Context, id models.NoteID) (models.Note, error) {
	var rec boltRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = getRecord(tx, id)
		return err
	})
	if err != nil {
		return models.Note{}, fmt.Errorf("storage: get: %w", err)
	}
	return rec.Note, nil
}

// Create stores a new note.
func (s *BoltStore) Create(_ context.Context, title, content string, parent *models.NoteID) (models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := newID()
	if err != nil {
		return models.Note{}, err
	}
	now := time.Now().UTC()
	n := models.Note{ID: id, Title: title, Content: content, Created: now, Modified: now}
	err = s.db.Update(func(tx *bolt.Tx) error {
		if parent != nil {
			if _, err := getRecord(tx, *parent); err != nil {
				if errors.Is(err, apperr.ErrNotFound) {
					return fmt.Errorf("storage: parent %s: %w", *parent, apperr.ErrValidation)
				}
				return err
			}
			n.ParentID = models.ParentRef(*parent)
		}
		return putRecord(tx, boltRecord{Note: n})
	})
	if err != nil {
		return models.Note{}, fmt.Errorf("storage: create: %w", err)
	}
	return n, nil
}

// Update rewrites title and content of an existing note.
func (s *BoltStore) Update(_ context.Context, id models.NoteID, title, content string) (models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out models.Note
	err := s.db.Update(func(tx *bolt.Tx) error {
		rec, err := getRecord(tx, id)
		if err != nil {
			return err
		}
		rec.Title = title
		rec.Content = content
		rec.Modified = time.Now().UTC()
		out = rec.Note
		return putRecord(tx, rec)
	})
	if err != nil {
		return models.Note{}, fmt.Errorf("storage: update: %w", err)
	}
	return out, nil
}

// Delete removes id and its descendants in one transaction.
func (s *BoltStore) Delete(_ context.Context, id models.NoteID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		recs, err := readRecords(tx)
		if err != nil {
			return err
		}
		notes := make([]models.Note, len(recs))
		for i, r := range recs {
			notes[i] = r.Note
		}
		ids := tree.Descendants(notes, id)
		if ids == nil {
			return fmt.Errorf("storage: note %s: %w", id, apperr.ErrNotFound)
		}
		b := tx.Bucket(bucketNotes)
		for _, victim := range ids {
			if err := b.Delete([]byte(victim)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage: delete: %w", err)
	}
	return nil
}

// Import copies notes with their ids and timestamps.
func (s *BoltStore) Import(_ context.Context, notes []models.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		imported := make(map[models.NoteID]struct{}, len(notes))
		for _, n := range notes {
			n = n.Clone()
			if _, ok := imported[n.Parent()]; n.ParentID != nil && !ok {
				n.ParentID = nil
			}
			if err := putRecord(tx, boltRecord{Note: n}); err != nil {
				return err
			}
			imported[n.ID] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage: import: %w", err)
	}
	return nil
}

// Search does a case-insensitive substring scan over titles and content.
func (s *BoltStore) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	notes, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var hits []SearchHit
	for _, n := range notes {
		if len(hits) == limit {
			break
		}
		if !strings.Contains(strings.ToLower(n.Title), q) && !strings.Contains(strings.ToLower(n.Content), q) {
			continue
		}
		snippet := n.Content
		if r := []rune(snippet); len(r) > 200 {
			snippet = string(r[:200])
		}
		hits = append(hits, SearchHit{ID: n.ID, Title: n.Title, Snippet: snippet})
	}
	return hits, nil
}

// Count returns the number of notes.
func (s *BoltStore) Count(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotes)
		if b == nil {
			return errors.New("storage: notes bucket missing")
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
