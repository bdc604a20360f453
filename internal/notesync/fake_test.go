package notesync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/tree"
)

// memRepo is an in-memory Repository. Setting fail[op] makes the next call
// of that operation return the error.
type memRepo struct {
	mu       sync.Mutex
	notes    []models.Note
	next     int
	settings models.Settings
	// locations maps a storage location to the collection found there.
	locations map[string][]models.Note
	fail      map[string]error
	updates   []update

	// listGate, when set, holds the next List after it has read the
	// collection. listEntered is closed once that List is waiting.
	listGate    chan struct{}
	listEntered chan struct{}

	inFlight    map[models.NoteID]*atomic.Int32
	maxParallel atomic.Int32
	updateDelay time.Duration
}

type update struct {
	id      models.NoteID
	title   string
	content string
	at      time.Time
}

func newMemRepo(notes ...models.Note) *memRepo {
	return &memRepo{
		notes:     notes,
		next:      len(notes),
		settings:  models.Settings{StorageLocation: "/data/a"},
		locations: make(map[string][]models.Note),
		fail:      make(map[string]error),
		inFlight:  make(map[models.NoteID]*atomic.Int32),
	}
}

func (r *memRepo) failNext(op string, err error) {
	r.mu.Lock()
	r.fail[op] = err
	r.mu.Unlock()
}

func (r *memRepo) takeFail(op string) error {
	err := r.fail[op]
	delete(r.fail, op)
	return err
}

func (r *memRepo) indexOf(id models.NoteID) int {
	for i, n := range r.notes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// holdNextList makes the next List return a collection read before release
// is closed. entered is closed when that List is waiting.
func (r *memRepo) holdNextList() (entered <-chan struct{}, release chan<- struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listGate = make(chan struct{})
	r.listEntered = make(chan struct{})
	return r.listEntered, r.listGate
}

func (r *memRepo) List(context.Context) ([]models.Note, error) {
	r.mu.Lock()
	if err := r.takeFail("list"); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	out := make([]models.Note, len(r.notes))
	for i, n := range r.notes {
		out[i] = n.Clone()
	}
	gate, entered := r.listGate, r.listEntered
	r.listGate, r.listEntered = nil, nil
	r.mu.Unlock()

	if gate != nil {
		close(entered)
		<-gate
	}
	return out, nil
}

func (r *memRepo) Create(_ context.Context, title, content string, parent *models.NoteID) (models.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFail("create"); err != nil {
		return models.Note{}, err
	}
	if parent != nil && r.indexOf(*parent) < 0 {
		return models.Note{}, fmt.Errorf("parent %s: %w", *parent, apperr.ErrValidation)
	}
	r.next++
	n := models.Note{ID: models.NoteID(fmt.Sprintf("n%d", r.next)), Title: title, Content: content}
	if parent != nil {
		n.ParentID = models.ParentRef(*parent)
	}
	r.notes = append(r.notes, n)
	return n.Clone(), nil
}

func (r *memRepo) Update(_ context.Context, id models.NoteID, title, content string) (models.Note, error) {
	r.mu.Lock()
	counter, ok := r.inFlight[id]
	if !ok {
		counter = new(atomic.Int32)
		r.inFlight[id] = counter
	}
	delay := r.updateDelay
	r.mu.Unlock()

	n := counter.Add(1)
	for {
		m := r.maxParallel.Load()
		if n <= m || r.maxParallel.CompareAndSwap(m, n) {
			break
		}
	}
	defer counter.Add(-1)
	if delay > 0 {
		time.Sleep(delay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update{id: id, title: title, content: content, at: time.Now()})
	if err := r.takeFail("update"); err != nil {
		return models.Note{}, err
	}
	i := r.indexOf(id)
	if i < 0 {
		return models.Note{}, fmt.Errorf("note %s: %w", id, apperr.ErrNotFound)
	}
	r.notes[i].Title = title
	r.notes[i].Content = content
	return r.notes[i].Clone(), nil
}

func (r *memRepo) Delete(_ context.Context, id models.NoteID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFail("delete"); err != nil {
		return err
	}
	ids := tree.Descendants(r.notes, id)
	if ids == nil {
		return fmt.Errorf("note %s: %w", id, apperr.ErrNotFound)
	}
	drop := make(map[models.NoteID]bool, len(ids))
	for _, d := range ids {
		drop[d] = true
	}
	kept := r.notes[:0]
	for _, n := range r.notes {
		if !drop[n.ID] {
			kept = append(kept, n)
		}
	}
	r.notes = kept
	return nil
}

func (r *memRepo) Settings(context.Context) (models.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings, nil
}

func (r *memRepo) UpdateSettings(_ context.Context, s models.Settings) (models.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFail("settings"); err != nil {
		return models.Settings{}, err
	}
	if s.StorageLocation == "" {
		return models.Settings{}, fmt.Errorf("empty location: %w", apperr.ErrValidation)
	}
	r.locations[r.settings.StorageLocation] = r.notes
	r.notes = r.locations[s.StorageLocation]
	r.settings = s
	return s, nil
}

func (r *memRepo) updateCalls() []update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]update(nil), r.updates...)
}

// sink records published events.
type sink struct {
	mu     sync.Mutex
	events []Event
}

func (s *sink) Publish(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *sink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

func (s *sink) has(t EventType) bool {
	for _, got := range s.types() {
		if got == t {
			return true
		}
	}
	return false
}

func mk(id, parent, title string) models.Note {
	return models.Note{ID: models.NoteID(id), Title: title, ParentID: models.ParentRef(models.NoteID(parent))}
}
