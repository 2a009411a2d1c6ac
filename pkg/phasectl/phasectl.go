// Package phasectl implements the global phase controller of spec §4.9:
// the Init→Checking→...→Completed/Failed state machine, with pause gates
// at the DOWNLOAD and EXECUTE boundaries.
package phasectl

import (
	"sync"

	"gitlab.com/tinyland/lab/sysupdate/pkg/plugin"
)

// State is the controller's closed set of global states.
type State int

const (
	Init State = iota
	Checking
	WaitingForDownload
	Downloading
	WaitingForExecute
	Executing
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Init:
		return "Init"
	case Checking:
		return "Checking"
	case WaitingForDownload:
		return "WaitingForDownload"
	case Downloading:
		return "Downloading"
	case WaitingForExecute:
		return "WaitingForExecute"
	case Executing:
		return "Executing"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Controller owns the single global phase state for a run. It is safe for
// concurrent use.
type Controller struct {
	mu                sync.Mutex
	state             State
	pauseBetweenPhase bool
	resume            chan struct{}
}

// New creates a Controller in the Init state. pauseBetweenPhases mirrors
// the --pause-phases CLI flag (spec §6).
func New(pauseBetweenPhases bool) *Controller {
	return &Controller{
		state:             Init,
		pauseBetweenPhase: pauseBetweenPhases,
		resume:            make(chan struct{}, 1),
	}
}

// State returns the current global state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// BeginChecking transitions Init -> Checking.
func (c *Controller) BeginChecking() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Checking
}

// FinishChecking transitions out of Checking once every plugin has
// completed its CHECK phase. noActionRemaining is true if every plugin
// reported "no action needed" for all of its remaining phases (spec
// §4.9): combined with the configured pause flag, this decides whether
// the controller gates at WaitingForDownload or proceeds straight to
// Downloading.
func (c *Controller) FinishChecking(noActionRemaining bool) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pauseBetweenPhase || noActionRemaining {
		c.state = WaitingForDownload
	} else {
		c.state = Downloading
	}
	return c.state
}

// Resume unblocks a pending pause gate, advancing WaitingForDownload ->
// Downloading or WaitingForExecute -> Executing.
func (c *Controller) Resume() {
	c.mu.Lock()
	switch c.state {
	case WaitingForDownload:
		c.state = Downloading
	case WaitingForExecute:
		c.state = Executing
	default:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	select {
	case c.resume <- struct{}{}:
	default:
	}
}

// AwaitResume blocks the caller until the pause gate at the controller's
// current WaitingFor* state is lifted by Resume. It returns immediately
// if the controller is not currently paused.
func (c *Controller) AwaitResume() {
	c.mu.Lock()
	paused := c.state == WaitingForDownload || c.state == WaitingForExecute
	c.mu.Unlock()
	if !paused {
		return
	}
	<-c.resume
}

// FinishDownloading transitions Downloading into WaitingForExecute or
// straight to Executing, under the same pause-gate rule as
// FinishChecking.
func (c *Controller) FinishDownloading(noActionRemaining bool) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pauseBetweenPhase || noActionRemaining {
		c.state = WaitingForExecute
	} else {
		c.state = Executing
	}
	return c.state
}

// FinishExecuting transitions Executing -> Completed if allSucceeded, else
// Failed. The orchestrator passes true only when every phase of every
// plugin succeeded; continue-on-error does not change that value.
func (c *Controller) FinishExecuting(allSucceeded bool) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if allSucceeded {
		c.state = Completed
	} else {
		c.state = Failed
	}
	return c.state
}

// Abort forces a transition to Failed from any state. The orchestrator
// calls it when a run ends before EXECUTE: no applicable plugin, a
// scheduling error (e.g. a dependency cycle) in any phase, or a failed
// phase without continue-on-error.
func (c *Controller) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Failed
}

// Label returns the display-only phase rename for the controller's
// current in-flight phase, or "" outside Checking/Downloading/Executing.
func (c *Controller) Label() string {
	switch c.State() {
	case Checking, WaitingForDownload:
		return plugin.Check.Label()
	case Downloading, WaitingForExecute:
		return plugin.Download.Label()
	case Executing:
		return plugin.Execute.Label()
	default:
		return ""
	}
}
