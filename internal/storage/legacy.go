package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/starford/ansuz/internal/models"
)

// LegacyIndexFile is the flat JSON index kept by older note directories.
const LegacyIndexFile = "index.json"

type legacyEntry struct {
	ID       any    `json:"id"`
	Title    string `json:"title"`
	Created  string `json:"created"`
	Modified string `json:"modified"`
}

var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseLegacyTime(s string, fallback time.Time) time.Time {
	for _, layout := range legacyTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return fallback
}

// importLegacyIndex fills an empty index from index.json. The legacy format
// has no hierarchy, so every imported note is a root. Content is taken from
// the <id>.md files already in the directory. It returns the number of notes
// imported; a missing index.json imports nothing.
func (s *FilesStore) importLegacyIndex(ctx context.Context) (int, error) {
	raw, err := os.ReadFile(filepath.Join(s.files.Root(), LegacyIndexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage: read legacy index: %w", err)
	}
	if n, err := s.db.Count(); err != nil || n > 0 {
		return 0, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var entries []legacyEntry
	if err := dec.Decode(&entries); err != nil {
		return 0, fmt.Errorf("storage: parse legacy index: %w", err)
	}

	now := time.Now().UTC()
	notes := make([]models.Note, 0, len(entries))
	seen := make(map[models.NoteID]struct{}, len(entries))
	for _, e := range entries {
		id := models.NoteID(fmt.Sprint(e.ID))
		if e.ID == nil || id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		data, err := s.files.Read(string(id))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("storage: legacy note unreadable",
				slog.String("note_id", string(id)),
				slog.String("error", err.Error()))
			continue
		}
		created := parseLegacyTime(e.Created, now)
		notes = append(notes, models.Note{
			ID:       id,
			Title:    models.NormalizeTitle(e.Title),
			Content:  string(data),
			Created:  created,
			Modified: parseLegacyTime(e.Modified, created),
		})
	}
	if err := s.Import(ctx, notes); err != nil {
		return 0, err
	}
	return len(notes), nil
}
