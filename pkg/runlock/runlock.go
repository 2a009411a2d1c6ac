// Package runlock prevents two concurrent orchestrator runs from acting on
// the same run-state directory, using an acquire/release/stale-reclaim
// PID-file pattern.
package runlock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Lock holds an acquired run lock. Release must be called to drop it.
type Lock struct {
	path string
}

// Acquire creates a lock file at path recording the current process PID.
// It fails if another live process already holds the lock. If the
// existing lock file names a dead process, it is reclaimed automatically.
func Acquire(path string) (*Lock, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("runlock: create directory: %w", err)
	}

	if existing, err := readPID(path); err == nil {
		if isProcessAlive(existing) {
			return nil, fmt.Errorf("runlock: another run already holds %s (pid %d)", path, existing)
		}
		os.Remove(path)
	}

	pid := os.Getpid()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return nil, fmt.Errorf("runlock: write temp lock file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("runlock: rename lock file: %w", err)
	}

	return &Lock{path: path}, nil
}

// Release removes the lock file. Safe to call once per successfully
// acquired Lock.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("runlock: remove lock file: %w", err)
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("runlock: parse lock file: %w", err)
	}
	return pid, nil
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
