package fslock

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestWriteFileAtomicLeavesNoTmpFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := WriteFileAtomic(path, []byte(`{"ok":true}`), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "config.json" {
		t.Fatalf("expected only config.json, got %v", entries)
	}
}

func TestWriteFileAtomicNoTmpLeftOnCreateFailure(t *testing.T) {
	dir := t.TempDir()
	// Target a path whose parent doesn't exist so creating the temp
	// file there fails.
	path := filepath.Join(dir, "missing-subdir", "config.json")

	err := WriteFileAtomic(path, []byte(`{}`), 0o644)
	if err == nil {
		t.Fatal("expected error writing into nonexistent directory")
	}

	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		t.Fatalf("ReadDir: %v", readErr)
	}
	for _, e := range entries {
		t.Errorf("unexpected leftover entry: %s", e.Name())
	}
}

// TestLockBlocksConcurrentReader demonstrates that a reader blocked on
// a held lock cannot complete until the holder releases it.
func TestLockBlocksConcurrentReader(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, ".lock")

	holder := New(lockPath)
	if err := holder.Lock(); err != nil {
		t.Fatalf("holder.Lock: %v", err)
	}

	var mu sync.Mutex
	acquired := false

	done := make(chan struct{})
	go func() {
		defer close(done)
		waiter := New(lockPath)
		if err := waiter.Lock(); err != nil {
			t.Errorf("waiter.Lock: %v", err)
			return
		}
		defer waiter.Unlock()
		mu.Lock()
		acquired = true
		mu.Unlock()
	}()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	gotEarly := acquired
	mu.Unlock()
	if gotEarly {
		t.Fatal("waiter acquired lock while holder still held it")
	}

	if err := holder.Unlock(); err != nil {
		t.Fatalf("holder.Unlock: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired lock after release")
	}

	mu.Lock()
	defer mu.Unlock()
	if !acquired {
		t.Fatal("waiter did not report acquiring the lock")
	}
}
