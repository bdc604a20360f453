package notesync

import (
	"sync"

	"github.com/starford/ansuz/internal/models"
)

// noteLocks serializes repository writes per note id. Entries are dropped
// when the last holder releases them.
type noteLocks struct {
	mu sync.Mutex
	m  map[models.NoteID]*noteLock
}

type noteLock struct {
	mu   sync.Mutex
	refs int
}

func newNoteLocks() *noteLocks {
	return &noteLocks{m: make(map[models.NoteID]*noteLock)}
}

// Lock blocks until id is free and returns the matching unlock.
func (l *noteLocks) Lock(id models.NoteID) func() {
	l.mu.Lock()
	nl, ok := l.m[id]
	if !ok {
		nl = &noteLock{}
		l.m[id] = nl
	}
	nl.refs++
	l.mu.Unlock()

	nl.mu.Lock()
	return func() {
		nl.mu.Unlock()
		l.mu.Lock()
		nl.refs--
		if nl.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}
