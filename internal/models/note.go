// Package models defines the domain types for Ansuz.
package models

import (
	"strings"
	"time"
)

// UntitledTitle replaces blank titles before they reach a repository.
const UntitledTitle = "Untitled"

// NoteID is the opaque identifier a repository assigns on create.
type NoteID string

// Note is a single persisted note. ParentID is nil for roots.
type Note struct {
	ID       NoteID    `json:"id"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	ParentID *NoteID   `json:"parent_id"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// Parent returns the parent id or the empty id for roots.
func (n Note) Parent() NoteID {
	if n.ParentID == nil {
		return ""
	}
	return *n.ParentID
}

// Clone returns a copy that shares no pointers with n.
func (n Note) Clone() Note {
	out := n
	if n.ParentID != nil {
		p := *n.ParentID
		out.ParentID = &p
	}
	return out
}

// ParentRef returns a pointer to id, or nil when id is empty.
func ParentRef(id NoteID) *NoteID {
	if id == "" {
		return nil
	}
	return &id
}

// NormalizeTitle trims title and substitutes UntitledTitle for blank input.
func NormalizeTitle(title string) string {
	t := strings.TrimSpace(title)
	if t == "" {
		return UntitledTitle
	}
	return t
}

// Settings holds user-adjustable repository settings.
type Settings struct {
	StorageLocation string `json:"storage_location" yaml:"storage_location"`
}
