package runlock

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestAcquireThenAcquireAgainFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Release()

	if _, err := Acquire(path); err == nil {
		t.Fatal("expected second Acquire to fail while the lock is held")
	}
}

func TestReleaseThenAcquireSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	l2, err := Acquire(path)
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	l2.Release()
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	// A PID very unlikely to be alive, simulating a stale lock left
	// behind by a crashed process.
	deadPID := 1 << 30
	if err := os.WriteFile(path, []byte(strconv.Itoa(deadPID)), 0o644); err != nil {
		t.Fatalf("write stale lock: %v", err)
	}
	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire over stale lock: %v", err)
	}
	l.Release()
}
