// Package notesync keeps the in-memory note forest, the selection and the
// expansion state consistent with an authoritative Repository.
//
// All state lives in one explicit object owned by the Controller. The state
// mutex is never held across a repository call: an operation reads what it
// needs, releases the lock, talks to the repository and only then applies the
// repository's answer. A failed repository call therefore leaves the state
// untouched.
package notesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/autosave"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/selection"
	"github.com/starford/ansuz/internal/tree"
)

// Options configures a Controller.
type Options struct {
	Quiescence  time.Duration
	StatusReset time.Duration
	Logger      *slog.Logger
	Events      EventSink
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	Notes    []models.Note   `json:"notes"`
	Tree     []*tree.Node    `json:"tree"`
	Selected *models.NoteID  `json:"selected"`
	Expanded []models.NoteID `json:"expanded"`
	Status   autosave.Status `json:"status"`
}

type state struct {
	notes  []models.Note
	index  map[models.NoteID]int
	forest []*tree.Node
	sel    *selection.State
	// gen counts forest rebuilds. A list fetched under an older gen is stale.
	gen uint64
}

// maxListAttempts bounds how often load re-lists while local mutations keep
// landing during the repository call.
const maxListAttempts = 3

// Controller is the synchronization engine between the UI and a Repository.
type Controller struct {
	repo   Repository
	logger *slog.Logger
	events EventSink
	saves  *autosave.Coordinator
	locks  *noteLocks
	loads  singleflight.Group

	mu sync.Mutex
	st state
}

// New creates a Controller. Call LoadAll before use and Close on shutdown.
func New(repo Repository, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Events == nil {
		opts.Events = nopSink{}
	}
	c := &Controller{
		repo:   repo,
		logger: opts.Logger,
		events: opts.Events,
		locks:  newNoteLocks(),
		st: state{
			index: make(map[models.NoteID]int),
			sel:   selection.New(),
		},
	}
	c.saves = autosave.New(c.saveEdit, autosave.Options{
		Quiescence:  opts.Quiescence,
		StatusReset: opts.StatusReset,
		Logger:      opts.Logger,
		OnStatus:    c.statusChanged,
	})
	return c
}

func (c *Controller) saveEdit(ctx context.Context, e autosave.Edit) error {
	_, err := c.Update(ctx, e.NoteID, e.Title, e.Content)
	return err
}

func (c *Controller) statusChanged(ch autosave.Change) {
	data := StatusData{Status: string(ch.Status)}
	if ch.Err != nil {
		data.Error = ch.Err.Error()
	}
	c.events.Publish(Event{Type: EventStatusChanged, NoteID: ch.NoteID, Data: data})
}

// LoadAll replaces the collection with the repository's list, rebuilds the
// forest and drops a selection that no longer resolves. When nothing is
// selected the first root becomes the selection.
func (c *Controller) LoadAll(ctx context.Context) (Snapshot, error) {
	return c.load(ctx, true)
}

// Refresh re-syncs from the repository after an outside change. Pending edits
// are kept. Concurrent calls share one repository round trip.
func (c *Controller) Refresh(ctx context.Context) (Snapshot, error) {
	return c.load(ctx, false)
}

func (c *Controller) load(ctx context.Context, selectFirst bool) (Snapshot, error) {
	key := "refresh"
	if selectFirst {
		key = "load"
	}
	v, err, _ := c.loads.Do(key, func() (any, error) {
		var notes []models.Note
		for attempt := 1; ; attempt++ {
			c.mu.Lock()
			gen := c.st.gen
			c.mu.Unlock()

			list, err := c.repo.List(ctx)
			if err != nil {
				return Snapshot{}, fmt.Errorf("notesync: load: %w", err)
			}

			c.mu.Lock()
			if c.st.gen == gen {
				notes = list
				break
			}
			if attempt == maxListAttempts {
				// The local state already holds the repository's answers to
				// the mutations that raced the list; keep it.
				snap := c.snapshotLocked()
				c.mu.Unlock()
				c.logger.Debug("notesync: stale list dropped", slog.Int("attempts", attempt))
				return snap, nil
			}
			c.mu.Unlock()
		}

		// c.mu is held from the generation check on.
		before, _ := c.st.sel.Current()
		c.replaceLocked(notes)
		c.st.sel.Prune(c.existsLocked)
		if _, ok := c.st.sel.Current(); !ok && selectFirst && len(c.st.forest) > 0 {
			c.st.sel.Select(c.st.forest[0].ID, c.existsLocked)
		}
		after, _ := c.st.sel.Current()
		snap := c.snapshotLocked()
		c.mu.Unlock()

		c.events.Publish(Event{Type: EventNotesReloaded, Data: map[string]int{"count": len(notes)}})
		if before != after {
			c.events.Publish(Event{Type: EventSelectionChanged, NoteID: after})
		}
		return snap, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

// Create asks the repository for a new note, selects it and expands its
// parent so it is visible.
func (c *Controller) Create(ctx context.Context, title, content string, parent *models.NoteID) (models.Note, error) {
	note, err := c.repo.Create(ctx, models.NormalizeTitle(title), content, parent)
	if err != nil {
		return models.Note{}, fmt.Errorf("notesync: create: %w", err)
	}

	c.mu.Lock()
	prev, hadPrev := c.st.sel.Current()
	c.upsertLocked(note)
	if note.ParentID != nil {
		c.st.sel.Expand(*note.ParentID)
	}
	c.rebuildLocked()
	c.st.sel.Select(note.ID, c.existsLocked)
	c.mu.Unlock()

	c.events.Publish(Event{Type: EventNoteCreated, NoteID: note.ID, Data: note})
	c.events.Publish(Event{Type: EventSelectionChanged, NoteID: note.ID})
	if hadPrev && prev != note.ID {
		c.flushLogged(ctx, prev)
	}
	return note, nil
}

// Update writes title and content through to the repository and replaces the
// local entry with the repository's answer. A blank title is stored as
// "Untitled".
func (c *Controller) Update(ctx context.Context, id models.NoteID, title, content string) (models.Note, error) {
	title = models.NormalizeTitle(title)

	unlock := c.locks.Lock(id)
	note, err := c.repo.Update(ctx, id, title, content)
	unlock()
	if err != nil {
		return models.Note{}, fmt.Errorf("notesync: update %s: %w", id, err)
	}

	c.mu.Lock()
	// A note deleted while the write was in flight stays deleted.
	if i, ok := c.st.index[id]; ok {
		c.st.notes[i] = note.Clone()
		c.rebuildLocked()
	}
	c.mu.Unlock()

	c.events.Publish(Event{Type: EventNoteUpdated, NoteID: id, Data: note})
	return note, nil
}

// Delete removes id and its descendants. Their pending edits are dropped
// first; if the repository refuses, the edits are put back.
func (c *Controller) Delete(ctx context.Context, id models.NoteID) error {
	c.mu.Lock()
	ids := tree.Descendants(c.st.notes, id)
	c.mu.Unlock()
	if ids == nil {
		ids = []models.NoteID{id}
	}

	dropped := c.saves.Discard(ids...)
	unlock := c.locks.Lock(id)
	err := c.repo.Delete(ctx, id)
	unlock()
	if err != nil {
		c.saves.Restore(dropped)
		return fmt.Errorf("notesync: delete %s: %w", id, err)
	}
	// Saves that were in flight during the delete may have failed since.
	c.saves.Discard(ids...)

	c.mu.Lock()
	if now := tree.Descendants(c.st.notes, id); now != nil {
		ids = now
	}
	c.removeLocked(ids)
	cleared := c.st.sel.OnDelete(ids...)
	c.rebuildLocked()
	var fallback models.NoteID
	if cleared && len(c.st.forest) > 0 {
		fallback = c.st.forest[0].ID
		c.st.sel.Select(fallback, c.existsLocked)
	}
	c.mu.Unlock()

	c.events.Publish(Event{Type: EventNoteDeleted, NoteID: id, Data: DeletedData{IDs: ids}})
	if cleared {
		c.events.Publish(Event{Type: EventSelectionChanged, NoteID: fallback})
	}
	return nil
}

// ChangeStorageLocation points the repository at a new location and reloads
// everything from there. Pending edits are discarded. On failure the state is
// left as it was and the error carries apperr.ErrStorageRelocation.
func (c *Controller) ChangeStorageLocation(ctx context.Context, location string) (Snapshot, error) {
	dropped := c.saves.DiscardAll()

	settings, err := c.repo.UpdateSettings(ctx, models.Settings{StorageLocation: location})
	if err != nil {
		c.saves.Restore(dropped)
		if errors.Is(err, apperr.ErrStorageRelocation) {
			return Snapshot{}, fmt.Errorf("notesync: relocate: %w", err)
		}
		return Snapshot{}, fmt.Errorf("notesync: relocate to %q: %w: %w", location, apperr.ErrStorageRelocation, err)
	}
	if len(dropped) > 0 {
		c.logger.Warn("notesync: pending edits discarded by relocation",
			slog.Int("count", len(dropped)),
			slog.String("location", settings.StorageLocation))
	}

	c.mu.Lock()
	c.replaceLocked(nil)
	c.st.sel.Reset()
	c.mu.Unlock()
	c.events.Publish(Event{Type: EventSettingsUpdated, Data: settings})

	snap, err := c.load(ctx, true)
	if err != nil {
		return Snapshot{}, fmt.Errorf("notesync: reload after relocation: %w", err)
	}
	return snap, nil
}

// Settings returns the repository settings.
func (c *Controller) Settings(ctx context.Context) (models.Settings, error) {
	s, err := c.repo.Settings(ctx)
	if err != nil {
		return models.Settings{}, fmt.Errorf("notesync: settings: %w", err)
	}
	return s, nil
}

// Select moves the selection to id. The pending edit of the previously
// selected note is saved first. Selecting an unknown id clears the selection
// and returns apperr.ErrNotFound.
func (c *Controller) Select(ctx context.Context, id models.NoteID) error {
	c.mu.Lock()
	prev, hadPrev := c.st.sel.Current()
	c.mu.Unlock()

	if hadPrev && prev != id {
		c.flushLogged(ctx, prev)
	}

	c.mu.Lock()
	changed := c.st.sel.Select(id, c.existsLocked)
	cur, ok := c.st.sel.Current()
	c.mu.Unlock()

	if changed {
		c.events.Publish(Event{Type: EventSelectionChanged, NoteID: cur})
	}
	if !ok {
		return fmt.Errorf("notesync: select %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// ToggleExpansion flips the expanded flag of id and returns the new value.
func (c *Controller) ToggleExpansion(id models.NoteID) (bool, error) {
	c.mu.Lock()
	if !c.existsLocked(id) {
		c.mu.Unlock()
		return false, fmt.Errorf("notesync: toggle %s: %w", id, apperr.ErrNotFound)
	}
	expanded := c.st.sel.Toggle(id)
	c.mu.Unlock()

	c.events.Publish(Event{Type: EventExpansionToggled, NoteID: id, Data: ExpansionData{Expanded: expanded}})
	return expanded, nil
}

// Edit buffers a keystroke-level change; it is saved once the note has been
// quiet for the configured window.
func (c *Controller) Edit(id models.NoteID, title, content string) error {
	c.mu.Lock()
	ok := c.existsLocked(id)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("notesync: edit %s: %w", id, apperr.ErrNotFound)
	}
	c.saves.Schedule(id, title, content)
	return nil
}

// Retry re-issues the last failed save of id.
func (c *Controller) Retry(ctx context.Context, id models.NoteID) error {
	if err := c.saves.Retry(ctx, id); err != nil {
		return fmt.Errorf("notesync: retry %s: %w", id, err)
	}
	return nil
}

// Pending returns the buffered or failed edit of id, if any.
func (c *Controller) Pending(id models.NoteID) (autosave.Edit, bool) {
	return c.saves.Pending(id)
}

// Note returns the local copy of id.
func (c *Controller) Note(id models.NoteID) (models.Note, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.st.index[id]
	if !ok {
		return models.Note{}, false
	}
	return c.st.notes[i].Clone(), true
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close saves every pending edit and stops the timers.
func (c *Controller) Close(ctx context.Context) error {
	err := c.saves.FlushAll(ctx)
	c.saves.Close()
	if err != nil {
		return fmt.Errorf("notesync: close: %w", err)
	}
	return nil
}

func (c *Controller) flushLogged(ctx context.Context, id models.NoteID) {
	if err := c.saves.Flush(ctx, id); err != nil {
		// The failed edit is kept for Retry and the status reports the error.
		c.logger.Warn("notesync: flush on switch failed",
			slog.String("note_id", string(id)),
			slog.String("error", err.Error()))
	}
}

func (c *Controller) existsLocked(id models.NoteID) bool {
	_, ok := c.st.index[id]
	return ok
}

func (c *Controller) replaceLocked(notes []models.Note) {
	c.st.notes = make([]models.Note, 0, len(notes))
	c.st.index = make(map[models.NoteID]int, len(notes))
	for _, n := range notes {
		c.upsertLocked(n)
	}
	c.rebuildLocked()
}

func (c *Controller) upsertLocked(n models.Note) {
	if i, ok := c.st.index[n.ID]; ok {
		c.st.notes[i] = n.Clone()
		return
	}
	c.st.index[n.ID] = len(c.st.notes)
	c.st.notes = append(c.st.notes, n.Clone())
}

func (c *Controller) removeLocked(ids []models.NoteID) {
	drop := make(map[models.NoteID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := c.st.notes[:0]
	for _, n := range c.st.notes {
		if _, ok := drop[n.ID]; !ok {
			kept = append(kept, n)
		}
	}
	clear(c.st.notes[len(kept):])
	c.st.notes = kept
	c.st.index = make(map[models.NoteID]int, len(kept))
	for i, n := range kept {
		c.st.index[n.ID] = i
	}
}

func (c *Controller) rebuildLocked() {
	c.st.forest = tree.Build(c.st.notes)
	c.st.gen++
}

func (c *Controller) snapshotLocked() Snapshot {
	notes := make([]models.Note, len(c.st.notes))
	for i, n := range c.st.notes {
		notes[i] = n.Clone()
	}
	snap := Snapshot{
		Notes:    notes,
		Tree:     c.st.forest,
		Expanded: c.st.sel.Expanded(),
		Status:   c.saves.Status(),
	}
	if id, ok := c.st.sel.Current(); ok {
		snap.Selected = &id
	}
	return snap
}
