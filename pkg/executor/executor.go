// Package executor drives one plugin through one phase (spec §4.7):
// admission, mutex acquisition, PTY spawn, event bridging, metrics
// sampling, and exit classification.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/sysupdate/pkg/event"
	"gitlab.com/tinyland/lab/sysupdate/pkg/metrics"
	"gitlab.com/tinyland/lab/sysupdate/pkg/mutexmgr"
	"gitlab.com/tinyland/lab/sysupdate/pkg/plugin"
	"gitlab.com/tinyland/lab/sysupdate/pkg/ptysession"
	"gitlab.com/tinyland/lab/sysupdate/pkg/resctl"
	"gitlab.com/tinyland/lab/sysupdate/pkg/term"
)

// DefaultPhaseTimeout bounds mutex acquisition and, absent a per-command
// override, overall command run time.
const DefaultPhaseTimeout = 30 * time.Minute

// DefaultGracePeriod is how long a cancelled execution waits after
// SIGTERM before SIGKILL (spec §5).
const DefaultGracePeriod = 5 * time.Second

// sampleInterval is how often a running child's resource usage is
// sampled into the metrics store (spec §4.7 step 7).
const sampleInterval = metrics.SampleInterval

// Config controls executor-wide timing.
type Config struct {
	PhaseTimeout time.Duration
	GracePeriod  time.Duration
}

// Executor runs plugin phases against the shared mutex manager, resource
// controller, metrics store, and event queue.
type Executor struct {
	cfg       Config
	mutexes   *mutexmgr.Manager
	resources *resctl.Controller
	metricsDB *metrics.Store
	queue     *event.Queue
	logger    *slog.Logger

	activeMu sync.Mutex
	active   map[string]*ptysession.Session
}

// New creates an Executor wired to the shared subsystems.
func New(cfg Config, mutexes *mutexmgr.Manager, resources *resctl.Controller, metricsDB *metrics.Store, queue *event.Queue, logger *slog.Logger) *Executor {
	if cfg.PhaseTimeout <= 0 {
		cfg.PhaseTimeout = DefaultPhaseTimeout
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		cfg:       cfg,
		mutexes:   mutexes,
		resources: resources,
		metricsDB: metricsDB,
		queue:     queue,
		logger:    logger.With("component", "executor"),
		active:    make(map[string]*ptysession.Session),
	}
}

// WritePTY forwards data to pluginName's currently running PTY session, if
// any. This is how the UI's focused-tab keystroke forwarding (spec
// §4.11/§8) reaches a live command; it is a no-op error when no command is
// currently running for that plugin.
func (ex *Executor) WritePTY(pluginName string, data []byte) error {
	ex.activeMu.Lock()
	sess, ok := ex.active[pluginName]
	ex.activeMu.Unlock()
	if !ok {
		return fmt.Errorf("no active session for plugin %q", pluginName)
	}
	_, err := sess.Write(data)
	return err
}

func (ex *Executor) setActive(pluginName string, sess *ptysession.Session) {
	ex.activeMu.Lock()
	ex.active[pluginName] = sess
	ex.activeMu.Unlock()
}

func (ex *Executor) clearActive(pluginName string) {
	ex.activeMu.Lock()
	delete(ex.active, pluginName)
	ex.activeMu.Unlock()
}

func eventPhase(p plugin.Phase) event.Phase {
	switch p {
	case plugin.Check:
		return event.PhaseCheck
	case plugin.Download:
		return event.PhaseDownload
	default:
		return event.PhaseExecute
	}
}

// RunPhase runs every command of phase for p/desc in sequence, against
// dynMutexes (the effective dynamic mutex set discovered after CHECK, nil
// for the CHECK phase itself). screen receives the raw PTY bytes for
// terminal rendering; it may be nil (tests, headless runs). isLastPhase
// controls whether a Completion event follows this phase's PhaseEnd.
func (ex *Executor) RunPhase(ctx context.Context, desc *plugin.Descriptor, p plugin.Plugin, phase plugin.Phase, dynMutexes []string, screen *term.Screen, isLastPhase bool) error {
	cmds, err := p.CommandsForPhase(ctx, phase)
	if err != nil {
		return fmt.Errorf("commands for %s/%s: %w", desc.Name, phase, err)
	}
	if len(cmds) == 0 {
		return nil
	}

	permit, err := ex.resources.Admit(ctx, phase == plugin.Download)
	if err != nil {
		return fmt.Errorf("admit %s/%s: %w", desc.Name, phase, err)
	}

	mutexSet := desc.EffectiveMutexes(phase, dynMutexes)
	if err := ex.mutexes.Acquire(desc.Name, mutexSet, ex.cfg.PhaseTimeout); err != nil {
		permit.Release()
		ex.publishFailedPhaseEnd(desc.Name, phase, isLastPhase, err)
		return fmt.Errorf("acquire mutexes for %s/%s: %w", desc.Name, phase, err)
	}

	rec := ex.metricsDB.BeginPhase(ctx, desc.Name, phase.String())
	ex.queue.Publish(event.PhaseStart(desc.Name, eventPhase(phase), time.Now()))

	var collected bytes.Buffer
	packagesTotal := 0
	exitCode := 0
	var runErr error

	for i, cmd := range cmds {
		ok, out, code, err := ex.runCommand(ctx, desc.Name, phase, cmd, rec, screen)
		collected.Write(out)
		exitCode = code
		if err != nil {
			runErr = err
		}
		if !ok {
			runErr = errors.Join(runErr, fmt.Errorf("command %d/%d failed", i+1, len(cmds)))
			break
		}
	}

	packagesTotal = p.CountPackages(phase, collected.Bytes())

	success := runErr == nil
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	ex.metricsDB.EndPhase(rec, metrics.Outcome{
		Success:         success,
		ExitCode:        exitCode,
		ErrorMessage:    errMsg,
		PackagesTouched: packagesTotal,
	})
	ex.mutexes.Release(desc.Name, mutexSet)
	permit.Release()

	now := time.Now()
	ex.queue.Publish(event.PhaseEnd(desc.Name, eventPhase(phase), success, errMsg, now))

	if isLastPhase {
		roll := metrics.RollupFor(rec)
		ex.queue.Publish(event.Completion(desc.Name, success, packagesTotal, roll.Duration, errMsg, now))
	}

	return runErr
}

// publishFailedPhaseEnd emits a PhaseEnd without a preceding PhaseStart,
// for failures that occur before a command ever runs (spec §4.7 "spawn
// failures emit PhaseEnd before any PhaseStart").
func (ex *Executor) publishFailedPhaseEnd(pluginName string, phase plugin.Phase, isLastPhase bool, err error) {
	now := time.Now()
	ex.queue.Publish(event.PhaseEnd(pluginName, eventPhase(phase), false, err.Error(), now))
	if isLastPhase {
		ex.queue.Publish(event.Completion(pluginName, false, 0, 0, err.Error(), now))
	}
}

// runCommand spawns one Command under a PTY, bridges its output into
// Output/Progress events and the terminal screen, samples resource usage,
// and classifies the exit. It returns whether the command succeeded, the
// raw bytes collected (for package counting), and the process exit code.
func (ex *Executor) runCommand(ctx context.Context, pluginName string, phase plugin.Phase, cmd plugin.Command, rec *metrics.PhaseRecord, screen *term.Screen) (bool, []byte, int, error) {
	timeout := ex.cfg.PhaseTimeout
	if cmd.Timeout > 0 {
		timeout = time.Duration(cmd.Timeout) * time.Second
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if len(cmd.Argv) == 0 {
		return false, nil, -1, errors.New("empty command argv")
	}

	sess, err := ptysession.Spawn(cmdCtx, ptysession.Spec{
		Path: cmd.Argv[0],
		Args: cmd.Argv[1:],
		Cols: 80,
		Rows: 24,
	}, ex.logger)
	if err != nil {
		return false, nil, -1, fmt.Errorf("spawn: %w", err)
	}
	defer sess.Close()
	ex.setActive(pluginName, sess)
	defer ex.clearActive(pluginName)

	var collected bytes.Buffer
	pending := make([]byte, 0, 4096)
	sampleTicker := time.NewTicker(sampleInterval)
	defer sampleTicker.Stop()

	pid := sess.Pid()

	errPatterns := compilePatterns(cmd.ErrorPatterns)
	okPatterns := compilePatterns(cmd.SuccessPatterns)
	matchedError := false
	matchedSuccess := false

loop:
	for {
		select {
		case chunk, ok := <-sess.Output():
			if !ok {
				break loop
			}
			collected.Write(chunk)
			if screen != nil {
				screen.Feed(chunk)
			}
			pending = append(pending, chunk...)
			pending = ex.drainLines(pluginName, phase, pending, errPatterns, okPatterns, &matchedError, &matchedSuccess)
		case <-sampleTicker.C:
			if pid > 0 {
				sample := ex.metricsDB.RecordSample(ctx, rec, pid)
				ex.queue.Publish(event.Metrics(pluginName, sample.CPUPct, sample.RSSBytes, sample.CPUTimeSeconds, sample.BytesRead, sample.BytesWritten, sample.BytesSent, sample.BytesRecv, time.Now()))
			}
		case <-cmdCtx.Done():
			_ = sess.Close()
			for range sess.Output() {
				// Drain remaining buffered bytes so the reader goroutine
				// can exit; their content no longer matters.
			}
			return false, collected.Bytes(), -1, fmt.Errorf("timeout: %w", cmdCtx.Err())
		}
	}

	if len(pending) > 0 {
		ex.drainLines(pluginName, phase, append(pending, '\n'), errPatterns, okPatterns, &matchedError, &matchedSuccess)
	}

	waitErr := sess.Wait()
	exitCode := exitCodeOf(waitErr)

	success := classify(matchedError, matchedSuccess, exitCode, cmd.IgnoreExitCodes)
	if !success {
		return false, collected.Bytes(), exitCode, fmt.Errorf("exit code %d", exitCode)
	}
	return true, collected.Bytes(), exitCode, nil
}

// drainLines splits buf on newlines, publishing an Output or Progress
// event per complete line, and returns the unconsumed remainder.
func (ex *Executor) drainLines(pluginName string, phase plugin.Phase, buf []byte, errPatterns, okPatterns []*regexp.Regexp, matchedError, matchedSuccess *bool) []byte {
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			return buf
		}
		line := buf[:idx]
		buf = buf[idx+1:]

		if frame, ok := parseProgressLine(line); ok {
			ex.publishProgress(pluginName, phase, frame)
			continue
		}

		for _, re := range errPatterns {
			if re.Match(line) {
				*matchedError = true
			}
		}
		for _, re := range okPatterns {
			if re.Match(line) {
				*matchedSuccess = true
			}
		}

		cp := make([]byte, len(line))
		copy(cp, line)
		ex.queue.Publish(event.Output(pluginName, event.StreamStdout, cp, time.Now()))
	}
}

func (ex *Executor) publishProgress(pluginName string, phase plugin.Phase, f progressFrame) {
	now := time.Now()
	switch f.Type {
	case "phase_start":
		ex.queue.Publish(event.PhaseStart(pluginName, eventPhase(phase), now))
	case "phase_end":
		success := f.Success != nil && *f.Success
		ex.queue.Publish(event.PhaseEnd(pluginName, eventPhase(phase), success, f.Error, now))
	default:
		e := event.Progress(pluginName, eventPhase(phase), f.Percent, f.Message, now)
		if f.BytesDownloaded != nil && f.BytesTotal != nil {
			e.HasBytes = true
			e.BytesDone = *f.BytesDownloaded
			e.BytesTotal = *f.BytesTotal
		}
		if f.ItemsCompleted != nil && f.ItemsTotal != nil {
			e.HasItems = true
			e.ItemsDone = *f.ItemsCompleted
			e.ItemsTotal = *f.ItemsTotal
		}
		ex.queue.Publish(e)
	}
}

// classify implements the success rule of spec §4.7 step 8.
func classify(matchedError, matchedSuccess bool, exitCode int, ignoreExitCodes []int) bool {
	if matchedError {
		return false
	}
	if matchedSuccess {
		return true
	}
	for _, c := range ignoreExitCodes {
		if c == exitCode {
			return true
		}
	}
	return exitCode == 0
}

// exitCodeOf extracts a process exit code from the error Session.Wait
// returns: nil means 0, *exec.ExitError carries the real code, anything
// else (signal kill, I/O error) is reported as -1.
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			// Fall back to a literal substring match.
			re = regexp.MustCompile(regexp.QuoteMeta(p))
		}
		out = append(out, re)
	}
	return out
}
