package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/tree"
	pkgconfig "github.com/starford/ansuz/pkg/config"
)

// LibraryOptions configures OpenLibrary.
type LibraryOptions struct {
	Backend string
	// Location is used when the settings file does not name one.
	Location     string
	SettingsFile string
	Logger       *slog.Logger
}

// Library is the note repository used by the application: the active backend
// plus the persisted settings that select its location.
type Library struct {
	backend      string
	settingsFile string
	logger       *slog.Logger

	mu        sync.RWMutex
	store     Store
	settings  models.Settings
	relocated chan struct{} // closed and replaced on every relocation
}

// OpenLibrary opens the backend at the persisted (or default) location.
func OpenLibrary(opts LibraryOptions) (*Library, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Backend == "" {
		opts.Backend = BackendFiles
	}

	location := opts.Location
	if opts.SettingsFile != "" {
		var saved models.Settings
		err := pkgconfig.Load(opts.SettingsFile, &saved)
		switch {
		case err == nil && strings.TrimSpace(saved.StorageLocation) != "":
			location = saved.StorageLocation
		case err != nil && !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("storage: load settings: %w", err)
		}
	}

	abs, err := prepareLocation(location)
	if err != nil {
		return nil, err
	}
	store, err := Open(opts.Backend, abs, opts.Logger)
	if err != nil {
		return nil, err
	}
	return &Library{
		backend:      opts.Backend,
		settingsFile: opts.SettingsFile,
		logger:       opts.Logger,
		store:        store,
		settings:     models.Settings{StorageLocation: abs},
		relocated:    make(chan struct{}),
	}, nil
}

func prepareLocation(location string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", fmt.Errorf("storage: empty location: %w", apperr.ErrValidation)
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return "", fmt.Errorf("storage: resolve location: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("storage: create location: %w", err)
	}
	return abs, nil
}

// Backend returns the backend name.
func (l *Library) Backend() string {
	return l.backend
}

// Location returns the absolute path of the active location.
func (l *Library) Location() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings.StorageLocation
}

// Every store call holds the read lock until it returns, so a relocation
// never closes a store that is still in use.

// List returns every note in creation order.
func (l *Library) List(ctx context.Context) ([]models.Note, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.List(ctx)
}

// Get returns one note.
func (l *Library) Get(ctx context.Context, id models.NoteID) (models.Note, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.Get(ctx, id)
}

// Create adds a note below parent (or as a root).
func (l *Library) Create(ctx context.Context, title, content string, parent *models.NoteID) (models.Note, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.Create(ctx, title, content, parent)
}

// Update rewrites title and content of id.
func (l *Library) Update(ctx context.Context, id models.NoteID, title, content string) (models.Note, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.Update(ctx, id, title, content)
}

// Delete removes id and its descendants.
func (l *Library) Delete(ctx context.Context, id models.NoteID) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.Delete(ctx, id)
}

// Search finds notes whose title or content matches query.
func (l *Library) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.Search(ctx, query, limit)
}

// Count returns the number of notes.
func (l *Library) Count(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.Count(ctx)
}

// Settings returns the persisted settings.
func (l *Library) Settings(_ context.Context) (models.Settings, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings, nil
}

// UpdateSettings moves the library to s.StorageLocation. The new location is
// created if needed and opened with the same backend; when it holds no notes
// yet, the current notes are copied over (parents before children). Writes
// wait until the switch is complete. Failures carry
// apperr.ErrStorageRelocation and leave the library where it was.
func (l *Library) UpdateSettings(ctx context.Context, s models.Settings) (models.Settings, error) {
	if strings.TrimSpace(s.StorageLocation) == "" {
		return models.Settings{}, fmt.Errorf("storage: relocate: empty location: %w: %w",
			apperr.ErrStorageRelocation, apperr.ErrValidation)
	}
	abs, err := prepareLocation(s.StorageLocation)
	if err != nil {
		return models.Settings{}, fmt.Errorf("storage: relocate: %w: %w", apperr.ErrStorageRelocation, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if abs == l.settings.StorageLocation {
		return l.settings, nil
	}

	next, err := Open(l.backend, abs, l.logger)
	if err != nil {
		return models.Settings{}, fmt.Errorf("storage: relocate: %w: %w", apperr.ErrStorageRelocation, err)
	}
	migrated, err := migrate(ctx, l.store, next)
	if err != nil {
		_ = next.Close()
		return models.Settings{}, fmt.Errorf("storage: relocate: %w: %w", apperr.ErrStorageRelocation, err)
	}

	old, from := l.store, l.settings.StorageLocation
	l.store = next
	l.settings = models.Settings{StorageLocation: abs}
	close(l.relocated)
	l.relocated = make(chan struct{})

	if err := old.Close(); err != nil {
		l.logger.Warn("storage: close previous location", slog.String("error", err.Error()))
	}
	if l.settingsFile != "" {
		if err := pkgconfig.Save(l.settingsFile, &l.settings); err != nil {
			l.logger.Error("storage: persist settings", slog.String("error", err.Error()))
		}
	}
	l.logger.Info("storage: relocated",
		slog.String("from", from),
		slog.String("to", abs),
		slog.Int("migrated", migrated))
	return l.settings, nil
}

// migrate copies every note of from into to when to is empty.
func migrate(ctx context.Context, from, to Store) (int, error) {
	n, err := to.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	notes, err := from.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(notes) == 0 {
		return 0, nil
	}
	ordered := parentsFirst(notes)
	if err := to.Import(ctx, ordered); err != nil {
		return 0, err
	}
	return len(ordered), nil
}

// parentsFirst orders notes so every parent precedes its children while
// siblings keep their relative order.
func parentsFirst(notes []models.Note) []models.Note {
	out := make([]models.Note, 0, len(notes))
	var walk func([]*tree.Node)
	walk = func(nodes []*tree.Node) {
		for _, n := range nodes {
			out = append(out, n.Note)
			walk(n.Children)
		}
	}
	walk(tree.Build(notes))
	return out
}

func (l *Library) watchTarget() (*FilesStore, <-chan struct{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fs, _ := l.store.(*FilesStore)
	return fs, l.relocated
}

// Close closes the active backend.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Close()
}
