package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/models"
)

// FilesStore keeps content in <id>.md files and metadata in note_index.db,
// both inside the same directory.
type FilesStore struct {
	files  *FS
	db     index.NoteIndex
	logger *slog.Logger

	// mu keeps a content file and its index row in step.
	mu sync.Mutex
}

// OpenFiles opens (or initializes) a files store in dir.
func OpenFiles(dir string, logger *slog.Logger) (*FilesStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	files, err := NewFS(dir)
	if err != nil {
		return nil, err
	}
	db, err := index.Open(filepath.Join(files.Root(), IndexFile))
	if err != nil {
		return nil, fmt.Errorf("storage: open index: %w", err)
	}
	s := &FilesStore{files: files, db: db, logger: logger}
	n, err := s.importLegacyIndex(context.Background())
	if err != nil {
		// The directory stays usable; the legacy file is left for another try.
		logger.Warn("storage: legacy index import failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("storage: imported legacy index", slog.Int("notes", n), slog.String("dir", files.Root()))
	}
	return s, nil
}

// Root returns the storage directory.
func (s *FilesStore) Root() string {
	return s.files.Root()
}

func (s *FilesStore) note(r index.NoteRow) models.Note {
	n := models.Note{
		ID:       models.NoteID(r.ID),
		Title:    r.Title,
		ParentID: models.ParentRef(models.NoteID(r.ParentID)),
		Created:  r.Created,
		Modified: r.Modified,
	}
	data, err := s.files.Read(r.ID)
	switch {
	case err == nil:
		n.Content = string(data)
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Warn("storage: content file missing", slog.String("note_id", r.ID))
	default:
		s.logger.Warn("storage: read content failed",
			slog.String("note_id", r.ID),
			slog.String("error", err.Error()))
	}
	return n
}

// List returns every note in creation order.
func (s *FilesStore) List(_ context.Context) ([]models.Note, error) {
	rows, err := s.db.List()
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	out := make([]models.Note, len(rows))
	for i, r := range rows {
		out[i] = s.note(r)
	}
	return out, nil
}

// Get returns one note.
func (s *FilesStore) Get(_ context.Context, id models.NoteID) (models.Note, error) {
	r, err := s.db.Get(string(id))
	if err != nil {
		return models.Note{}, fmt.Errorf("storage: get: %w", err)
	}
	return s.note(*r), nil
}

// Create writes the content file and then indexes it.
func (s *FilesStore) Create(_ context.Context, title, content string, parent *models.NoteID) (models.Note, error) {
	id, err := newID()
	if err != nil {
		return models.Note{}, err
	}
	now := time.Now().UTC()
	n := models.Note{ID: id, Title: title, Content: content, Created: now, Modified: now}
	if parent != nil {
		n.ParentID = models.ParentRef(*parent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insertLocked(n); err != nil {
		return models.Note{}, fmt.Errorf("storage: create: %w", err)
	}
	return n, nil
}

func (s *FilesStore) insertLocked(n models.Note) error {
	data := []byte(n.Content)
	if err := s.files.Write(string(n.ID), data); err != nil {
		return err
	}
	row := index.NoteRow{
		ID:       string(n.ID),
		ParentID: string(n.Parent()),
		Title:    n.Title,
		Checksum: checksum(data),
		Created:  n.Created,
		Modified: n.Modified,
	}
	if err := s.db.Insert(row, n.Content); err != nil {
		_ = s.files.Delete(string(n.ID))
		return err
	}
	return nil
}

// Update rewrites title and content of an existing note.
func (s *FilesStore) Update(_ context.Context, id models.NoteID, title, content string) (models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.db.Get(string(id))
	if err != nil {
		return models.Note{}, fmt.Errorf("storage: update: %w", err)
	}
	data := []byte(content)
	if err := s.files.Write(string(id), data); err != nil {
		return models.Note{}, fmt.Errorf("storage: update: %w", err)
	}
	r.Title = title
	r.Checksum = checksum(data)
	r.Modified = time.Now().UTC()
	if err := s.db.Update(*r, content); err != nil {
		return models.Note{}, fmt.Errorf("storage: update: %w", err)
	}
	return models.Note{
		ID:       id,
		Title:    title,
		Content:  content,
		ParentID: models.ParentRef(models.NoteID(r.ParentID)),
		Created:  r.Created,
		Modified: r.Modified,
	}, nil
}

// Delete removes id, its descendants and their content files in one index
// transaction.
func (s *FilesStore) Delete(_ context.Context, id models.NoteID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.DeleteTree(string(id), func(ids []string) error {
		for _, victim := range ids {
			if err := s.files.Delete(victim); err != nil {
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
func (s *FilesStore) Import(_ context.Context, notes []models.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	imported := make(map[models.NoteID]struct{}, len(notes))
	for _, n := range notes {
		n = n.Clone()
		if _, ok := imported[n.Parent()]; n.ParentID != nil && !ok {
			n.ParentID = nil
		}
		if err := s.insertLocked(n); err != nil {
			return fmt.Errorf("storage: import %s: %w", n.ID, err)
		}
		imported[n.ID] = struct{}{}
	}
	return nil
}

// Search delegates to the index.
func (s *FilesStore) Search(_ context.Context, query string, limit int) ([]SearchHit, error) {
	results, err := s.db.Search(query, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: search: %w", err)
	}
	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = SearchHit{ID: models.NoteID(r.ID), Title: r.Title, Snippet: r.Snippet}
	}
	return hits, nil
}

// Count returns the number of notes.
func (s *FilesStore) Count(_ context.Context) (int, error) {
	return s.db.Count()
}

// Reconcile records content files that were changed outside the application
// and returns the ids whose content differs from the index. Files without an
// index row are ignored.
func (s *FilesStore) Reconcile(_ context.Context) ([]models.NoteID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.files.List()
	if err != nil {
		return nil, err
	}
	sums, err := s.db.Checksums()
	if err != nil {
		return nil, fmt.Errorf("storage: reconcile: %w", err)
	}

	var changed []models.NoteID
	for _, f := range files {
		known, ok := sums[f.ID]
		if !ok || known == f.Checksum {
			continue
		}
		data, err := s.files.Read(f.ID)
		if err != nil {
			s.logger.Warn("reconcile: read failed", slog.String("note_id", f.ID), slog.String("error", err.Error()))
			continue
		}
		if err := s.db.RecordContent(f.ID, checksum(data), string(data), f.ModTime.UTC()); err != nil {
			s.logger.Warn("reconcile: record failed", slog.String("note_id", f.ID), slog.String("error", err.Error()))
			continue
		}
		s.logger.Debug("reconcile: external edit", slog.String("note_id", f.ID))
		changed = append(changed, models.NoteID(f.ID))
	}
	return changed, nil
}

// Close closes the index.
func (s *FilesStore) Close() error {
	return s.db.Close()
}
