// Package ui implements the tabbed terminal UI of spec.md §4.10/§4.11:
// one tab per applicable plugin, each showing its live PTY terminal and a
// status bar, plus the input router that splits keystrokes between
// tab-navigation bindings and the focused tab's PTY stdin.
package ui

import (
	"time"

	"gitlab.com/tinyland/lab/sysupdate/pkg/metrics"
	"gitlab.com/tinyland/lab/sysupdate/pkg/plugin"
	"gitlab.com/tinyland/lab/sysupdate/pkg/term"
)

// Status is a tab's visual lifecycle status (spec §4.10).
type Status int

const (
	StatusPending Status = iota
	StatusLocked
	StatusRunning
	StatusCompleted
	StatusError
)

// String returns the status's display name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusLocked:
		return "Locked"
	case StatusRunning:
		return "Running"
	case StatusCompleted:
		return "Completed"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// cpuHistoryLen bounds the CPU sparkline history kept per tab (spec §4.18
// "sparklines for CPU history").
const cpuHistoryLen = 40

// Tab is the UI surface dedicated to one plugin: its terminal view,
// status bar data, and scroll state. The tab's terminal screen lives for
// the whole run, outliving any individual PTY session (spec §3
// ownership rules, §9 "scrollback that in the source was tied to the PTY
// session lifetime").
type Tab struct {
	PluginName string
	Screen     *term.Screen
	Status     Status
	Phase      plugin.Phase
	ErrorText  string

	// ScrollOffset is the number of lines scrolled back from the live
	// viewport; 0 means the viewport shows the most recent output.
	ScrollOffset int

	// PhaseStarted is when the current phase's PhaseStart event arrived,
	// used to project ETA from the completion fraction (spec §4.10 "ETA
	// estimate, externally provided").
	PhaseStarted time.Time

	// Live status-bar fields, refreshed from metrics + progress events.
	ETA            time.Duration
	ItemsCompleted int
	ItemsTotal     int
	BytesDone      int64
	BytesTotal     int64
	PeakRSS        uint64
	CPUPercent     float64
	CPUHistory     []float64
	NetSentBytes   uint64
	NetRecvBytes   uint64
	DiskReadBytes  uint64
	DiskWriteBytes uint64
}

// NewTab creates a Tab for pluginName with a fresh terminal screen of the
// given viewport size.
func NewTab(pluginName string, cols, rows int) *Tab {
	return &Tab{
		PluginName: pluginName,
		Screen:     term.NewScreen(cols, rows, term.DefaultMaxScrollback, nil),
		Status:     StatusPending,
	}
}

// ScrollUp moves the scroll offset back toward older scrollback, clamped
// to the scrollback's length.
func (t *Tab) ScrollUp(lines int) {
	t.ScrollOffset += lines
	if max := t.Screen.ScrollbackLen(); t.ScrollOffset > max {
		t.ScrollOffset = max
	}
}

// ScrollDown moves the scroll offset toward the live viewport.
func (t *Tab) ScrollDown(lines int) {
	t.ScrollOffset -= lines
	if t.ScrollOffset < 0 {
		t.ScrollOffset = 0
	}
}

// ScrollTop jumps to the oldest available scrollback line.
func (t *Tab) ScrollTop() {
	t.ScrollOffset = t.Screen.ScrollbackLen()
}

// ScrollBottom returns to the live viewport.
func (t *Tab) ScrollBottom() {
	t.ScrollOffset = 0
}

// ApplyRollup refreshes the tab's status-bar CPU/memory/IO fields from a
// rollup computed by the metrics store.
func (t *Tab) ApplyRollup(r metrics.Rollup) {
	t.PeakRSS = r.PeakRSS
	t.CPUPercent = r.AvgCPU
	t.DiskReadBytes = r.BytesRead
	t.DiskWriteBytes = r.BytesWritten
	t.NetSentBytes = r.BytesSent
	t.NetRecvBytes = r.BytesRecv
}

// ApplyMetrics folds one live metrics.Sample into the tab's status-bar
// fields and CPU history, then re-estimates ETA from the current
// completion fraction projected over elapsed phase time (spec §4.10 "ETA
// estimate, externally provided").
func (t *Tab) ApplyMetrics(s metrics.Sample) {
	t.CPUPercent = s.CPUPct
	if s.RSSBytes > t.PeakRSS {
		t.PeakRSS = s.RSSBytes
	}
	t.DiskReadBytes = s.BytesRead
	t.DiskWriteBytes = s.BytesWritten
	t.NetSentBytes = s.BytesSent
	t.NetRecvBytes = s.BytesRecv

	t.CPUHistory = append(t.CPUHistory, s.CPUPct)
	if n := len(t.CPUHistory); n > cpuHistoryLen {
		t.CPUHistory = t.CPUHistory[n-cpuHistoryLen:]
	}

	t.ETA = t.estimateETA(s.Time)
}

// estimateETA projects the remaining time for the current phase by
// linear extrapolation from the fraction of items/bytes completed so far
// against elapsed time since PhaseStarted. It returns 0 when there isn't
// enough information (no progress yet, or phase start unknown).
func (t *Tab) estimateETA(now time.Time) time.Duration {
	if t.PhaseStarted.IsZero() {
		return 0
	}
	elapsed := now.Sub(t.PhaseStarted)
	if elapsed <= 0 {
		return 0
	}

	frac := t.completionFraction()
	if frac <= 0 || frac >= 1 {
		return 0
	}
	total := time.Duration(float64(elapsed) / frac)
	remaining := total - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// completionFraction reports how much of the current phase's known work
// is done, preferring byte progress over item progress (bytes better
// reflect download-phase work).
func (t *Tab) completionFraction() float64 {
	if t.BytesTotal > 0 {
		return float64(t.BytesDone) / float64(t.BytesTotal)
	}
	if t.ItemsTotal > 0 {
		return float64(t.ItemsCompleted) / float64(t.ItemsTotal)
	}
	return 0
}
