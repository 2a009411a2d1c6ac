// Package mutexmgr implements the named-lock service of spec §4.2: a
// fair, deadlock-detecting, acquire-all-or-none mutex manager whose lock
// set per plugin is partly static and partly discovered at runtime.
package mutexmgr

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"
)

// ErrTimeout is returned by Acquire when the requested mutex set could not
// be granted within the caller's timeout.
var ErrTimeout = errors.New("mutexmgr: acquire timeout")

// ErrDeadlock is returned by Acquire when granting the request would close
// a wait-for cycle; the caller should back off and retry.
var ErrDeadlock = errors.New("mutexmgr: deadlock detected")

// nameGrammar is the closed `category:resource` grammar from spec §3:
// lowercase, alphanumeric plus -_, <= 64 chars total.
var nameGrammar = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*:[a-z0-9][a-z0-9_-]*$`)

// ValidName reports whether name conforms to the `category:resource`
// mutex grammar.
func ValidName(name string) bool {
	return len(name) <= 64 && nameGrammar.MatchString(name)
}

type waiter struct {
	owner   string
	mutexes []string
	ready   chan error
}

// Manager is a process-wide named-lock service. It is safe for concurrent
// use.
type Manager struct {
	mu      sync.Mutex
	holders map[string]string    // mutex -> owning plugin
	waiting map[string]*waiter   // owner -> its single outstanding waiter, if blocked
	order   []*waiter            // global FIFO arrival order of pending waiters
	logger  *slog.Logger
}

// New creates an empty Manager.
func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		holders: make(map[string]string),
		waiting: make(map[string]*waiter),
		logger:  logger.With("component", "mutexmgr"),
	}
}

// Acquire atomically grants owner all of mutexes, or none. If not all are
// immediately free, the request is enqueued and retried as mutexes are
// released, in FIFO order, waking a waiter only once every mutex it needs
// can be granted (batch semantics prevent starvation and partial holds).
// It fails with ErrTimeout after timeout, or ErrDeadlock if granting it
// would close a wait-for cycle.
func (m *Manager) Acquire(owner string, mutexes []string, timeout time.Duration) error {
	if len(mutexes) == 0 {
		return nil
	}
	mutexes = dedupe(mutexes)

	m.mu.Lock()
	if m.allFreeLocked(owner, mutexes) {
		m.grantLocked(owner, mutexes)
		m.mu.Unlock()
		return nil
	}

	if m.wouldDeadlockLocked(owner, mutexes) {
		m.mu.Unlock()
		m.logger.Warn("deadlock detected, aborting acquire", "owner", owner, "mutexes", mutexes)
		return ErrDeadlock
	}

	w := &waiter{owner: owner, mutexes: mutexes, ready: make(chan error, 1)}
	m.waiting[owner] = w
	m.order = append(m.order, w)
	m.mu.Unlock()

	select {
	case err := <-w.ready:
		return err
	case <-time.After(timeout):
		m.mu.Lock()
		delete(m.waiting, owner)
		m.removeFromOrderLocked(w)
		m.mu.Unlock()
		return ErrTimeout
	}
}

// Release releases all of mutexes held by owner. Releasing a mutex owner
// does not hold is illegal; it is logged and ignored rather than
// returning an error, per spec §4.2.
func (m *Manager) Release(owner string, mutexes []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, name := range mutexes {
		if m.holders[name] != owner {
			m.logger.Warn("illegal mutex release ignored", "owner", owner, "mutex", name, "actual_holder", m.holders[name])
			continue
		}
		delete(m.holders, name)
	}
	m.wakeEligibleLocked()
}

// Holder returns the current owner of mutex, and whether it is held.
func (m *Manager) Holder(mutex string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.holders[mutex]
	return owner, ok
}

// allFreeLocked reports whether every named mutex is either free or
// already held by owner (re-entrant acquisition is harmless since release
// is idempotent per-owner).
func (m *Manager) allFreeLocked(owner string, mutexes []string) bool {
	for _, name := range mutexes {
		if h, held := m.holders[name]; held && h != owner {
			return false
		}
	}
	return true
}

func (m *Manager) grantLocked(owner string, mutexes []string) {
	for _, name := range mutexes {
		m.holders[name] = owner
	}
}

// wakeEligibleLocked scans pending waiters in FIFO arrival order and
// grants any whose full mutex set is now free, per the batch-fairness
// rule of spec §4.2.
func (m *Manager) wakeEligibleLocked() {
	remaining := m.order[:0:0]
	for _, w := range m.order {
		if m.allFreeLocked(w.owner, w.mutexes) {
			m.grantLocked(w.owner, w.mutexes)
			delete(m.waiting, w.owner)
			w.ready <- nil
			continue
		}
		remaining = append(remaining, w)
	}
	m.order = remaining
}

func (m *Manager) removeFromOrderLocked(target *waiter) {
	remaining := m.order[:0:0]
	for _, w := range m.order {
		if w != target {
			remaining = append(remaining, w)
		}
	}
	m.order = remaining
}

// wouldDeadlockLocked builds the wait-for graph rooted at owner's
// requested mutexes and reports whether it cycles back to owner: owner
// waits for holder(m) for each requested m that is currently held, and
// transitively for whatever that holder is itself waiting on.
func (m *Manager) wouldDeadlockLocked(owner string, mutexes []string) bool {
	visited := make(map[string]bool)
	var dfs func(reqMutexes []string) bool
	dfs = func(reqMutexes []string) bool {
		for _, name := range reqMutexes {
			holder, held := m.holders[name]
			if !held {
				continue
			}
			if holder == owner {
				return true
			}
			if visited[holder] {
				continue
			}
			visited[holder] = true
			if w, ok := m.waiting[holder]; ok {
				if dfs(w.mutexes) {
					return true
				}
			}
		}
		return false
	}
	return dfs(mutexes)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// String is a debug helper describing the current holder set, used by
// scheduler cycle-abort error messages.
func (m *Manager) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("mutexmgr{held=%d waiting=%d}", len(m.holders), len(m.order))
}
