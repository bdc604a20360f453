package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/models"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type changeLog struct {
	mu  sync.Mutex
	ids []models.NoteID
}

func (c *changeLog) record(ids []models.NoteID) {
	c.mu.Lock()
	c.ids = append(c.ids, ids...)
	c.mu.Unlock()
}

func (c *changeLog) contains(id models.NoteID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, got := range c.ids {
		if got == id {
			return true
		}
	}
	return false
}

func TestWatchFiles_ReportsExternalEdit(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFiles(dir, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	n, _ := s.Create(context.Background(), "A", "v1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := &changeLog{}
	done := make(chan error, 1)
	go func() { done <- WatchFiles(ctx, s, 50*time.Millisecond, quietLogger(), changes.record) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, string(n.ID)+".md"), []byte("v2 from editor"), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool { return changes.contains(n.ID) },
		"external edit not reported")
	got, _ := s.Get(context.Background(), n.ID)
	if got.Content != "v2 from editor" {
		t.Errorf("content = %q", got.Content)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("WatchFiles returned %v", err)
	}
}

func TestLibraryWatch_FollowsRelocation(t *testing.T) {
	lib, root := openLibrary(t, BackendFiles)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := &changeLog{}
	done := make(chan error, 1)
	go func() { done <- lib.Watch(ctx, 50*time.Millisecond, changes.record) }()
	time.Sleep(100 * time.Millisecond)

	dest := filepath.Join(root, "moved")
	if _, err := lib.UpdateSettings(context.Background(), models.Settings{StorageLocation: dest}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	n, err := lib.Create(context.Background(), "N", "v1", nil)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dest, string(n.ID)+".md"), []byte("changed"), 0o644); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool { return changes.contains(n.ID) },
		"edit in relocated directory not reported")

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}
