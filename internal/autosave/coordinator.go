// Package autosave buffers per-note edits and persists each settled burst
// with a single save call.
//
// The coordinator keeps an explicit timer table keyed by note id. A new edit
// for a note stops that note's timer and replaces its buffer, so a burst of
// keystrokes produces exactly one save carrying the last value. Notes never
// share a timer. While a save for a note is in flight, a newer buffer for the
// same note is held back and saved right after the in-flight call returns.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// Defaults taken from the editor behaviour users are used to.
const (
	DefaultQuiescence  = time.Second
	DefaultStatusReset = 3 * time.Second
)

// Status is the coarse save indicator shown to the user.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

// Edit is the buffered state of one note.
type Edit struct {
	NoteID  models.NoteID `json:"note_id"`
	Title   string        `json:"title"`
	Content string        `json:"content"`
}

// Change describes a status transition. NoteID and Err refer to the edit that
// caused it, when there is one.
type Change struct {
	Status Status
	NoteID models.NoteID
	Err    error
}

// Saver persists a settled edit.
type Saver func(ctx context.Context, e Edit) error

// Options configures a Coordinator. Zero values select the defaults; a
// negative StatusReset keeps "saved" until the next edit.
type Options struct {
	Quiescence  time.Duration
	StatusReset time.Duration
	OnStatus    func(Change)
	Logger      *slog.Logger
}

type entry struct {
	edit     Edit
	timer    *time.Timer
	gen      uint64
	pending  bool // edit has not been handed to the saver yet
	inFlight bool
	// dropped marks an entry discarded while its save was in flight; the
	// outcome of that save is not recorded.
	dropped bool
}

// Coordinator debounces saves per note id.
type Coordinator struct {
	save        Saver
	quiescence  time.Duration
	statusReset time.Duration
	onStatus    func(Change)
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	entries    map[models.NoteID]*entry
	failed     map[models.NoteID]Edit
	status     Status
	resetTimer *time.Timer
	closed     bool
}

// New returns a Coordinator that hands settled edits to save.
func New(save Saver, opts Options) *Coordinator {
	if opts.Quiescence <= 0 {
		opts.Quiescence = DefaultQuiescence
	}
	if opts.StatusReset == 0 {
		opts.StatusReset = DefaultStatusReset
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		save:        save,
		quiescence:  opts.Quiescence,
		statusReset: opts.StatusReset,
		onStatus:    opts.OnStatus,
		logger:      opts.Logger,
		ctx:         ctx,
		cancel:      cancel,
		entries:     make(map[models.NoteID]*entry),
		failed:      make(map[models.NoteID]Edit),
		status:      StatusIdle,
	}
}

// Schedule buffers an edit and (re)starts the note's timer with the default
// quiescence window.
func (c *Coordinator) Schedule(id models.NoteID, title, content string) {
	c.ScheduleAfter(id, title, content, c.quiescence)
}

// ScheduleAfter buffers an edit and (re)starts the note's timer with window d.
// Any earlier buffer for the same note is superseded.
func (c *Coordinator) ScheduleAfter(id models.NoteID, title, content string, d time.Duration) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	e, ok := c.entries[id]
	if !ok {
		e = &entry{}
		c.entries[id] = e
	}
	e.edit = Edit{NoteID: id, Title: title, Content: content}
	e.pending = true
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
	}
	gen := e.gen
	e.timer = time.AfterFunc(d, func() { c.fire(id, gen) })
	// The newer buffer replaces whatever failed earlier.
	delete(c.failed, id)
	change := c.setStatusLocked(StatusSaving, id, nil)
	c.mu.Unlock()

	c.emit(change)
}

func (c *Coordinator) fire(id models.NoteID, gen uint64) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok || e.gen != gen || !e.pending {
		// Superseded, flushed or discarded after this timer was armed.
		c.mu.Unlock()
		return
	}
	e.timer = nil
	if e.inFlight {
		// The running save picks the buffer up when it returns.
		c.mu.Unlock()
		return
	}
	edit := e.edit
	e.pending = false
	e.inFlight = true
	c.wg.Add(1)
	c.mu.Unlock()

	defer c.wg.Done()
	_ = c.run(c.ctx, id, edit)
}

// run saves edit and keeps saving newer buffers for id that arrived while a
// call was in flight. It returns the error of the last save.
func (c *Coordinator) run(ctx context.Context, id models.NoteID, edit Edit) error {
	for {
		err := c.save(ctx, edit)

		c.mu.Lock()
		e := c.entries[id]
		dropped := e != nil && e.dropped
		if e != nil {
			e.dropped = false
		}
		switch {
		case dropped:
			c.logger.Debug("autosave: save of discarded note finished", slog.String("note_id", string(id)))
		case err != nil:
			c.failed[id] = edit
			c.logger.Warn("autosave: save failed",
				slog.String("note_id", string(id)),
				slog.String("error", err.Error()))
		default:
			delete(c.failed, id)
			c.logger.Debug("autosave: saved", slog.String("note_id", string(id)))
		}

		if e != nil && e.pending && e.timer == nil {
			// A newer buffer settled while we were saving.
			edit = e.edit
			e.pending = false
			c.mu.Unlock()
			continue
		}
		if e != nil {
			e.inFlight = false
			if !e.pending {
				delete(c.entries, id)
			}
		}
		var change *Change
		switch {
		case dropped:
			change = c.settleLocked()
		case err != nil:
			change = c.setStatusLocked(StatusError, id, err)
		case c.busyLocked():
			change = c.setStatusLocked(StatusSaving, id, nil)
		case len(c.failed) > 0:
			change = c.setStatusLocked(StatusError, id, nil)
		default:
			change = c.setStatusLocked(StatusSaved, id, nil)
		}
		c.mu.Unlock()

		c.emit(change)
		return err
	}
}

// Flush saves the buffered edit for id now instead of waiting for its timer.
// It is a no-op when nothing is buffered. If a save for id is already in
// flight, the buffer is queued behind it and Flush returns without waiting.
func (c *Coordinator) Flush(ctx context.Context, id models.NoteID) error {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok || !e.pending {
		c.mu.Unlock()
		return nil
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
	if e.inFlight {
		c.mu.Unlock()
		return nil
	}
	edit := e.edit
	e.pending = false
	e.inFlight = true
	c.wg.Add(1)
	c.mu.Unlock()

	defer c.wg.Done()
	return c.run(ctx, id, edit)
}

// FlushAll flushes every buffered edit and joins the errors.
func (c *Coordinator) FlushAll(ctx context.Context) error {
	c.mu.Lock()
	ids := make([]models.NoteID, 0, len(c.entries))
	for id, e := range c.entries {
		if e.pending {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := c.Flush(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Retry re-issues the failed edit for id. An edit buffered after the failure
// takes precedence and is flushed instead.
func (c *Coordinator) Retry(ctx context.Context, id models.NoteID) error {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok && e.pending {
		c.mu.Unlock()
		return c.Flush(ctx, id)
	}
	edit, ok := c.failed[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("autosave: no failed edit for %s: %w", id, apperr.ErrNotFound)
	}
	if e, busy := c.entries[id]; busy && e.inFlight {
		e.edit = edit
		e.pending = true
		c.mu.Unlock()
		return nil
	}
	c.entries[id] = &entry{edit: edit, inFlight: true}
	c.wg.Add(1)
	change := c.setStatusLocked(StatusSaving, id, nil)
	c.mu.Unlock()

	c.emit(change)
	defer c.wg.Done()
	return c.run(ctx, id, edit)
}

// Discard cancels the timers of ids and drops their buffered and failed edits
// without saving them. The dropped edits are returned so a caller can put
// them back if the operation that required the discard fails.
func (c *Coordinator) Discard(ids ...models.NoteID) []Edit {
	c.mu.Lock()
	var dropped []Edit
	for _, id := range ids {
		dropped = c.discardLocked(id, dropped)
	}
	change := c.settleLocked()
	c.mu.Unlock()

	c.emit(change)
	return dropped
}

// DiscardAll drops every buffered and failed edit.
func (c *Coordinator) DiscardAll() []Edit {
	c.mu.Lock()
	ids := make(map[models.NoteID]struct{}, len(c.entries)+len(c.failed))
	for id := range c.entries {
		ids[id] = struct{}{}
	}
	for id := range c.failed {
		ids[id] = struct{}{}
	}
	var dropped []Edit
	for id := range ids {
		dropped = c.discardLocked(id, dropped)
	}
	change := c.settleLocked()
	c.mu.Unlock()

	c.emit(change)
	return dropped
}

func (c *Coordinator) discardLocked(id models.NoteID, dropped []Edit) []Edit {
	if e, ok := c.entries[id]; ok {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.gen++
		if e.pending {
			dropped = append(dropped, e.edit)
			e.pending = false
		}
		if e.inFlight {
			e.dropped = true
		} else {
			delete(c.entries, id)
		}
	}
	if edit, ok := c.failed[id]; ok {
		dropped = append(dropped, edit)
		delete(c.failed, id)
	}
	return dropped
}

// Restore re-buffers edits returned by Discard, restarting their timers.
func (c *Coordinator) Restore(edits []Edit) {
	for _, e := range edits {
		c.Schedule(e.NoteID, e.Title, e.Content)
	}
}

// Pending returns the buffered or failed edit for id.
func (c *Coordinator) Pending(id models.NoteID) (Edit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok && e.pending {
		return e.edit, true
	}
	edit, ok := c.failed[id]
	return edit, ok
}

// Status returns the current save indicator.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Close stops every timer and waits for in-flight saves. Buffered edits are
// not saved; call FlushAll first to keep them.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	for _, e := range c.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.gen++
	}
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.cancel()
}

func (c *Coordinator) busyLocked() bool {
	for _, e := range c.entries {
		if e.pending || e.inFlight {
			return true
		}
	}
	return false
}

// settleLocked recomputes the status after buffers were dropped.
func (c *Coordinator) settleLocked() *Change {
	switch {
	case c.busyLocked():
		return nil
	case len(c.failed) > 0:
		return c.setStatusLocked(StatusError, "", nil)
	case c.status == StatusSaving, c.status == StatusError:
		return c.setStatusLocked(StatusIdle, "", nil)
	default:
		return nil
	}
}

func (c *Coordinator) setStatusLocked(s Status, id models.NoteID, err error) *Change {
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	if s == StatusSaved && c.statusReset > 0 && !c.closed {
		c.resetTimer = time.AfterFunc(c.statusReset, c.resetToIdle)
	}
	if s == c.status && err == nil {
		return nil
	}
	c.status = s
	return &Change{Status: s, NoteID: id, Err: err}
}

func (c *Coordinator) resetToIdle() {
	c.mu.Lock()
	if c.status != StatusSaved {
		c.mu.Unlock()
		return
	}
	c.resetTimer = nil
	c.status = StatusIdle
	c.mu.Unlock()

	c.emit(&Change{Status: StatusIdle})
}

func (c *Coordinator) emit(change *Change) {
	if change != nil && c.onStatus != nil {
		c.onStatus(*change)
	}
}
