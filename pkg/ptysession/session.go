// Package ptysession spawns plugin phase commands under a POSIX PTY and
// streams their output, per spec §4.5. One Session exists per running
// (plugin, phase) execution; it does not outlive that execution, unlike
// the terminal screen and metrics store it feeds, which persist across
// the tab's lifetime (spec §3 ownership rules).
package ptysession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// readBufferSize is the chunk size used for each PTY read, matching the
// order of magnitude reference terminal multiplexer implementations use
// for interactive I/O.
const readBufferSize = 32 * 1024

// closeGrace is how long Close waits for the child to exit after SIGTERM
// before escalating to SIGKILL, matching the default cancellation grace
// period.
const closeGrace = 5 * time.Second

// ErrClosed is returned by Write/Resize/Signal after the session has been
// closed.
var ErrClosed = errors.New("ptysession: session closed")

// Spec describes a command to run under a PTY.
type Spec struct {
	Path string
	Args []string
	Env  []string
	Dir  string
	Cols int
	Rows int
}

// Session wraps one running child process attached to a PTY. Read output
// by ranging Output(); the channel closes when the PTY reader hits EOF or
// the session is closed.
type Session struct {
	cmd    *exec.Cmd
	pty    *os.File
	logger *slog.Logger

	output chan []byte
	done   chan struct{}

	mu     sync.Mutex
	closed bool

	waitDone chan struct{}
	waitRes  error
}

// Spawn starts spec.Path under a new PTY of the requested size and begins
// streaming its output. The returned Session must eventually be closed
// with Close to release the PTY and reap the child.
func Spawn(ctx context.Context, spec Spec, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ptysession", "cmd", spec.Path)

	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}

	cols, rows := spec.Cols, spec.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, fmt.Errorf("start pty for %s: %w", spec.Path, err)
	}

	s := &Session{
		cmd:    cmd,
		pty:    f,
		logger: logger,
		output:   make(chan []byte, 64),
		done:     make(chan struct{}),
		waitDone: make(chan struct{}),
	}

	go s.readLoop()
	go s.waitLoop()

	return s, nil
}

// Output returns the channel of output chunks read from the PTY. It is
// closed once the PTY reader has permanently stopped.
func (s *Session) Output() <-chan []byte {
	return s.output
}

// Pid returns the child process's PID, or 0 if it has not started.
func (s *Session) Pid() int32 {
	if s.cmd.Process == nil {
		return 0
	}
	return int32(s.cmd.Process.Pid)
}

func (s *Session) readLoop() {
	defer close(s.output)
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.pty.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.output <- chunk:
			case <-s.done:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("pty read ended", "error", err)
			}
			return
		}
	}
}

func (s *Session) waitLoop() {
	s.waitRes = s.cmd.Wait()
	close(s.waitDone)
}

// Write sends input bytes to the child's stdin (the PTY master).
func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	s.mu.Unlock()
	return s.pty.Write(p)
}

// Resize updates the PTY window size, propagating SIGWINCH to the child.
func (s *Session) Resize(cols, rows int) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()
	if cols <= 0 {
		cols = 1
	}
	if rows <= 0 {
		rows = 1
	}
	return pty.Setsize(s.pty, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Signal forwards sig to the child process group.
func (s *Session) Signal(sig syscall.Signal) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()
	if s.cmd.Process == nil {
		return nil
	}
	return s.cmd.Process.Signal(sig)
}

// Wait blocks until the child process exits and returns its error (nil on
// a clean zero exit, *exec.ExitError otherwise). Safe to call more than
// once and from multiple goroutines; all callers observe the same result.
func (s *Session) Wait() error {
	<-s.waitDone
	return s.waitRes
}

// Close requests graceful termination: SIGTERM, then SIGKILL after
// closeGrace if the child has not exited. The PTY file descriptor is
// always closed regardless of child exit status.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)

	if s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-s.waitDone:
		case <-time.After(closeGrace):
			s.logger.Warn("child did not exit after SIGTERM, sending SIGKILL")
			_ = s.cmd.Process.Kill()
			<-s.waitDone
		}
	}

	return s.pty.Close()
}
