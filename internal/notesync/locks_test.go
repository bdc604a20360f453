package notesync

import (
	"testing"
)

func TestNoteLocks_ReleasesEntries(t *testing.T) {
	l := newNoteLocks()
	unlockA := l.Lock("a")
	unlockB := l.Lock("b")
	if len(l.m) != 2 {
		t.Fatalf("entries = %d, want 2", len(l.m))
	}
	unlockA()
	unlockB()
	if len(l.m) != 0 {
		t.Errorf("entries = %d after release, want 0", len(l.m))
	}
}

func TestNoteLocks_SameIDQueues(t *testing.T) {
	l := newNoteLocks()
	unlock := l.Lock("a")

	acquired := make(chan struct{})
	go func() {
		release := l.Lock("a")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	default:
	}
	unlock()
	<-acquired
}
