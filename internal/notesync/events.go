package notesync

import "github.com/starford/ansuz/internal/models"

// EventType names a notification sent to the UI.
type EventType string

const (
	EventSelectionChanged EventType = "selection.changed"
	EventExpansionToggled EventType = "expansion.toggled"
	EventNoteCreated      EventType = "note.created"
	EventNoteUpdated      EventType = "note.updated"
	EventNoteDeleted      EventType = "note.deleted"
	EventNotesReloaded    EventType = "notes.reloaded"
	EventStatusChanged    EventType = "status.changed"
	EventSettingsUpdated  EventType = "settings.updated"
)

// Event is a state change the UI may want to react to.
type Event struct {
	Type   EventType     `json:"type"`
	NoteID models.NoteID `json:"note_id,omitempty"`
	Data   any           `json:"data,omitempty"`
}

// EventSink receives controller events. Publish must not block for long and
// must not call back into the controller.
type EventSink interface {
	Publish(Event)
}

type nopSink struct{}

func (nopSink) Publish(Event) {}

// StatusData is the payload of EventStatusChanged.
type StatusData struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ExpansionData is the payload of EventExpansionToggled.
type ExpansionData struct {
	Expanded bool `json:"expanded"`
}

// DeletedData is the payload of EventNoteDeleted.
type DeletedData struct {
	IDs []models.NoteID `json:"ids"`
}
