// Package sse implements a Server-Sent Events broker for real-time updates.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/ansuz/internal/notesync"
)

// EventTreeUpdated tells clients to refetch the tree. It follows structural
// changes and is throttled.
const EventTreeUpdated notesync.EventType = "tree.updated"

// DefaultTreeThrottle is the minimum spacing of tree.updated events.
const DefaultTreeThrottle = 2 * time.Second

// Broker manages SSE client connections and broadcasts controller events.
// It implements notesync.EventSink.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + tree throttle). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	treeMin time.Duration
	logger  *slog.Logger

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan notesync.Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

var _ notesync.EventSink = (*Broker)(nil)

// NewBroker creates a new SSE broker with the given tree throttle interval.
func NewBroker(treeThrottle time.Duration, logger *slog.Logger) *Broker {
	if treeThrottle <= 0 {
		treeThrottle = DefaultTreeThrottle
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Broker{
		treeMin:       treeThrottle,
		logger:        logger,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan notesync.Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

// structural reports whether e changes the shape or titles of the tree.
func structural(t notesync.EventType) bool {
	switch t {
	case notesync.EventNoteCreated, notesync.EventNoteUpdated,
		notesync.EventNoteDeleted, notesync.EventNotesReloaded:
		return true
	}
	return false
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastTree time.Time
		trailing *time.Timer
		trailCh  <-chan time.Time
	)

	broadcast := func(event notesync.Event) {
		payload, err := json.Marshal(event)
		if err != nil {
			b.logger.Warn("sse: encode event",
				slog.String("type", string(event.Type)),
				slog.String("error", err.Error()))
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	treeUpdated := func(now time.Time) {
		lastTree = now
		broadcast(notesync.Event{Type: EventTreeUpdated})
	}

	for {
		select {
		case <-b.stopCh:
			if trailing != nil {
				trailing.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)
			if !structural(event.Type) {
				continue
			}
			now := time.Now()
			if now.Sub(lastTree) >= b.treeMin {
				treeUpdated(now)
			} else if trailing == nil {
				// One more tree.updated at the end of the window so the
				// last change is never lost.
				trailing = time.NewTimer(b.treeMin - now.Sub(lastTree))
				trailCh = trailing.C
			}

		case now := <-trailCh:
			trailing, trailCh = nil, nil
			treeUpdated(now)

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients. Structural events are
// followed by a throttled tree.updated.
func (b *Broker) Publish(event notesync.Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
