// Package selection tracks which note is active and which tree nodes are
// expanded. The state lives for one session and is never persisted.
package selection

import (
	"slices"

	"github.com/starford/ansuz/internal/models"
)

// State holds the current selection and the expansion set.
// It is not safe for concurrent use; the owner serializes access.
type State struct {
	current  models.NoteID
	expanded map[models.NoteID]struct{}
}

// New returns an empty State.
func New() *State {
	return &State{expanded: make(map[models.NoteID]struct{})}
}

// Current returns the selected id, if any.
func (s *State) Current() (models.NoteID, bool) {
	return s.current, s.current != ""
}

// Select makes id the current selection when exists(id) holds. Selecting an
// unknown id clears the selection instead. It reports whether the selection
// changed.
func (s *State) Select(id models.NoteID, exists func(models.NoteID) bool) bool {
	next := id
	if id == "" || exists == nil || !exists(id) {
		next = ""
	}
	if next == s.current {
		return false
	}
	s.current = next
	return true
}

// Clear drops the selection. It reports whether anything was selected.
func (s *State) Clear() bool {
	had := s.current != ""
	s.current = ""
	return had
}

// Toggle flips id in the expansion set and returns the new state.
func (s *State) Toggle(id models.NoteID) bool {
	if _, ok := s.expanded[id]; ok {
		delete(s.expanded, id)
		return false
	}
	s.expanded[id] = struct{}{}
	return true
}

// Expand marks id as expanded.
func (s *State) Expand(id models.NoteID) {
	if id != "" {
		s.expanded[id] = struct{}{}
	}
}

// IsExpanded reports whether id is expanded.
func (s *State) IsExpanded(id models.NoteID) bool {
	_, ok := s.expanded[id]
	return ok
}

// Expanded returns the expanded ids in sorted order.
func (s *State) Expanded() []models.NoteID {
	out := make([]models.NoteID, 0, len(s.expanded))
	for id := range s.expanded {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// OnDelete forgets deleted ids: the selection is cleared if it pointed at one
// of them and all of them leave the expansion set. It reports whether the
// selection was cleared.
func (s *State) OnDelete(ids ...models.NoteID) bool {
	cleared := false
	for _, id := range ids {
		delete(s.expanded, id)
		if id != "" && id == s.current {
			cleared = s.Clear()
		}
	}
	return cleared
}

// Prune clears a selection that no longer resolves. Stale expansion ids are
// left alone; they are harmless if the id never comes back.
func (s *State) Prune(exists func(models.NoteID) bool) bool {
	if s.current == "" || exists(s.current) {
		return false
	}
	return s.Clear()
}

// Reset clears selection and expansion.
func (s *State) Reset() {
	s.current = ""
	clear(s.expanded)
}
