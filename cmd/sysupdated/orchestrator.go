package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/sysupdate/pkg/config"
	"gitlab.com/tinyland/lab/sysupdate/pkg/event"
	"gitlab.com/tinyland/lab/sysupdate/pkg/executor"
	"gitlab.com/tinyland/lab/sysupdate/pkg/logsave"
	"gitlab.com/tinyland/lab/sysupdate/pkg/metrics"
	"gitlab.com/tinyland/lab/sysupdate/pkg/mutexmgr"
	"gitlab.com/tinyland/lab/sysupdate/pkg/phasectl"
	"gitlab.com/tinyland/lab/sysupdate/pkg/plugin"
	"gitlab.com/tinyland/lab/sysupdate/pkg/resctl"
	"gitlab.com/tinyland/lab/sysupdate/pkg/runstate"
	"gitlab.com/tinyland/lab/sysupdate/pkg/scheduler"
	"gitlab.com/tinyland/lab/sysupdate/pkg/term"
)

// orchestrator drives the applicable plugin set through CHECK, DOWNLOAD,
// and EXECUTE (spec §4.8/§4.9/§5), wiring the scheduler's per-phase waves
// into the executor and persisting run state after every per-plugin
// transition.
type orchestrator struct {
	registry  *plugin.Registry
	mutexes   *mutexmgr.Manager
	resources *resctl.Controller
	metricsDB *metrics.Store
	queue     *event.Queue
	exec      *executor.Executor
	phase     *phasectl.Controller
	state     *runstate.RunState
	store     *runstate.Store
	logger    *slog.Logger

	continueOnError bool
	logDir          string

	mu      sync.Mutex
	screens map[string]*term.Screen
}

// newOrchestrator wires the shared subsystems into an orchestrator ready
// to run the named plugin roster.
func newOrchestrator(cfg *config.Config, registry *plugin.Registry, state *runstate.RunState, store *runstate.Store, logger *slog.Logger) *orchestrator {
	mutexes := mutexmgr.New(logger)
	metricsDB := metrics.NewStore()
	resources := resctl.New(resctl.Config{
		MaxTasks:     cfg.Concurrency,
		MaxDownloads: cfg.DownloadConcurrency,
		MemoryCapMB:  uint64(cfg.MemoryCapMB),
	}, metricsDB)
	queue := event.NewQueue(event.DefaultCapacity, logger)
	ex := executor.New(executor.Config{}, mutexes, resources, metricsDB, queue, logger)

	return &orchestrator{
		registry:        registry,
		mutexes:         mutexes,
		resources:       resources,
		metricsDB:       metricsDB,
		queue:           queue,
		exec:            ex,
		phase:           phasectl.New(cfg.PauseBetweenPhases),
		state:           state,
		store:           store,
		logger:          logger,
		continueOnError: cfg.ContinueOnError,
		logDir:          cfg.LogDir,
		screens:         make(map[string]*term.Screen),
	}
}

// SaveLogs implements ui.LogSaver: it renders pluginName's current Rollup
// history alongside the UI-supplied terminal lines and writes the
// combined document under the run's log directory (spec §6 save-logs
// format).
func (o *orchestrator) SaveLogs(pluginName, phase, status string, lines []string) (string, error) {
	var rollups []metrics.Rollup
	for _, rec := range o.metricsDB.Snapshot(pluginName) {
		rollups = append(rollups, metrics.RollupFor(rec))
	}
	header := logsave.Header{Plugin: pluginName, Phase: phase, Status: status, Now: time.Now()}
	return logsave.Save(filepath.Join(o.logDir, "saved"), header, lines, rollups)
}

// Screen returns the tab's long-lived terminal screen for pluginName,
// creating it on first use. Screens outlive any one phase's PTY session
// (spec §3 ownership rules).
func (o *orchestrator) Screen(pluginName string) *term.Screen {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.screens[pluginName]
	if !ok {
		s = term.NewScreen(80, 24, term.DefaultMaxScrollback, o.logger)
		o.screens[pluginName] = s
	}
	return s
}

// WritePTY implements ui.KeystrokeWriter, forwarding a focused tab's
// keystrokes to its plugin's currently running PTY session.
func (o *orchestrator) WritePTY(pluginName string, data []byte) error {
	return o.exec.WritePTY(pluginName, data)
}

// Screens returns a snapshot of every screen created so far, keyed by
// plugin name. The UI uses this to attach its tabs to the same
// *term.Screen the executor writes into, rather than owning its own
// (spec §3: a tab's screen outlives any one phase's PTY session, and the
// executor — not the UI — is the single writer).
func (o *orchestrator) Screens() map[string]*term.Screen {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]*term.Screen, len(o.screens))
	for k, v := range o.screens {
		out[k] = v
	}
	return out
}

// result is the outcome of one phase's wave execution for one plugin.
type result struct {
	name string
	err  error
}

// Run drives the whole CHECK → DOWNLOAD → EXECUTE lifecycle for the
// plugins in names, returning true iff every phase of every applicable
// plugin succeeded; any failure makes it return false, whether or not
// continue-on-error is set. Without continue-on-error, a failed CHECK or
// DOWNLOAD phase ends the run before the next phase starts; a scheduling
// error (such as a dependency cycle) ends it in either mode.
func (o *orchestrator) Run(ctx context.Context, names []string) bool {
	applicable := o.filterApplicable(ctx, names)
	if len(applicable) == 0 {
		o.phase.Abort()
		return true
	}

	// stopAfter ends the run after a phase that hit a scheduling error, or
	// after a failed phase when continue-on-error is not set.
	stopAfter := func(phaseOK bool) bool {
		if o.phase.State() != phasectl.Failed && (phaseOK || o.continueOnError) {
			return false
		}
		o.phase.Abort()
		o.saveState(o.phase.State().String())
		return true
	}

	o.phase.BeginChecking()
	o.saveState("check")
	checkOK := o.runPhaseWave(ctx, applicable, plugin.Check, nil, false)
	if stopAfter(checkOK) {
		return false
	}

	noActionRemaining := o.noActionRemaining(ctx, applicable, plugin.Download, plugin.Execute)
	o.phase.FinishChecking(noActionRemaining)
	o.phase.AwaitResume()

	o.saveState("download")
	dynDownload := o.collectDynamicMutexes(ctx, applicable, plugin.Download)
	downloadOK := o.runPhaseWave(ctx, applicable, plugin.Download, dynDownload, false)
	if stopAfter(downloadOK) {
		return false
	}

	noActionExecuteOnly := o.noActionRemaining(ctx, applicable, plugin.Execute)
	o.phase.FinishDownloading(noActionExecuteOnly)
	o.phase.AwaitResume()

	o.saveState("execute")
	dynExecute := o.collectDynamicMutexes(ctx, applicable, plugin.Execute)
	executeOK := o.runPhaseWave(ctx, applicable, plugin.Execute, dynExecute, true)

	allOK := checkOK && downloadOK && executeOK
	o.phase.FinishExecuting(allOK)
	o.saveState(o.phase.State().String())
	return allOK
}

// filterApplicable calls IsApplicable on every named plugin, recording
// skips in the run state, and returns the descriptors that remain.
func (o *orchestrator) filterApplicable(ctx context.Context, names []string) []*plugin.Descriptor {
	var out []*plugin.Descriptor
	for _, name := range names {
		p, desc, ok := o.registry.Get(name)
		if !ok {
			continue
		}
		applicable, err := p.IsApplicable(ctx)
		if err != nil {
			o.logger.Warn("is-applicable probe failed", "plugin", name, "error", err)
			continue
		}
		if !applicable {
			o.state.MarkSkipped(name, plugin.Check.String())
			continue
		}
		out = append(out, desc)
	}
	return out
}

// noActionRemaining reports whether every applicable plugin has no
// commands to run in any of phases (spec §4.9's pause-gate condition).
func (o *orchestrator) noActionRemaining(ctx context.Context, descs []*plugin.Descriptor, phases ...plugin.Phase) bool {
	for _, d := range descs {
		p, _, ok := o.registry.Get(d.Name)
		if !ok {
			continue
		}
		for _, ph := range phases {
			cmds, err := p.CommandsForPhase(ctx, ph)
			if err != nil || len(cmds) > 0 {
				return false
			}
		}
	}
	return true
}

// collectDynamicMutexes queries each descriptor's plugin for its dynamic
// mutex set ahead of the given phase (spec §3: obtained once CHECK has
// completed).
func (o *orchestrator) collectDynamicMutexes(ctx context.Context, descs []*plugin.Descriptor, phase plugin.Phase) map[string][]string {
	out := make(map[string][]string, len(descs))
	for _, d := range descs {
		p, _, ok := o.registry.Get(d.Name)
		if !ok {
			continue
		}
		dyn, err := p.DynamicMutexes(ctx, phase)
		if err != nil {
			o.logger.Warn("dynamic mutex probe failed", "plugin", d.Name, "phase", phase, "error", err)
			continue
		}
		out[d.Name] = dyn
	}
	return out
}

// runPhaseWave builds the scheduler DAG for phase over descs and drains
// it wave by wave, running every admissible node in a wave concurrently.
// It returns false if any plugin's phase failed, whether or not
// continue-on-error is set; without continue-on-error no further wave is
// started after the wave in which a failure occurred.
func (o *orchestrator) runPhaseWave(ctx context.Context, descs []*plugin.Descriptor, phase plugin.Phase, dyn map[string][]string, isLastPhase bool) bool {
	effective := make(map[string][]string, len(descs))
	for _, d := range descs {
		effective[d.Name] = d.EffectiveMutexes(phase, dyn[d.Name])
	}

	graph, err := scheduler.Build(descs, effective)
	if err != nil {
		o.logger.Error("scheduler aborted run", "phase", phase, "error", err)
		o.phase.Abort()
		return false
	}

	done := make(map[string]bool, len(descs))
	ok := true
	for graph.Remaining(done) {
		wave := graph.Wave(done)
		if len(wave) == 0 {
			break
		}
		results := make(chan result, len(wave))
		for _, name := range wave {
			name := name
			go func() {
				results <- o.runOne(ctx, name, phase, dyn[name], isLastPhase)
			}()
		}
		for range wave {
			r := <-results
			done[r.name] = true
			if r.err != nil {
				ok = false
				if !o.continueOnError {
					o.logger.Error("plugin phase failed, aborting run", "plugin", r.name, "phase", phase, "error", r.err)
				}
			}
		}
		if !ok && !o.continueOnError {
			break
		}
	}
	return ok
}

// runOne runs one plugin through one phase and persists the resulting
// run-state transition.
func (o *orchestrator) runOne(ctx context.Context, name string, phase plugin.Phase, dynMutexes []string, isLastPhase bool) result {
	p, desc, ok := o.registry.Get(name)
	if !ok {
		return result{name: name, err: nil}
	}

	o.state.MarkRunning(name, phase.String(), time.Now())
	o.saveState(o.phase.State().String())

	screen := o.Screen(name)
	err := o.exec.RunPhase(ctx, desc, p, phase, dynMutexes, screen, isLastPhase)

	if err != nil {
		o.state.MarkFailed(name, time.Now(), err)
	} else {
		o.state.MarkCompleted(name, time.Now())
	}
	o.saveState(o.phase.State().String())
	return result{name: name, err: err}
}

// saveState persists the current run state under globalPhase, logging
// but not failing the run on a write error (spec §7: persistence errors
// are surfaced, never fatal to an in-flight run).
func (o *orchestrator) saveState(globalPhase string) {
	o.state.Phase = globalPhase
	if err := o.store.Save(o.state); err != nil {
		o.logger.Warn("failed to persist run state", "error", err)
	}
}
