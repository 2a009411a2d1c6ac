// Package event defines the typed stream-event variants that flow from a
// plugin's subprocess up to the UI, and the bounded, backpressured queue
// that carries them.
package event

import "time"

// Phase is the closed set of update-lifecycle phases a plugin passes
// through.
type Phase int

const (
	PhaseCheck Phase = iota
	PhaseDownload
	PhaseExecute
)

func (p Phase) String() string {
	switch p {
	case PhaseCheck:
		return "check"
	case PhaseDownload:
		return "download"
	case PhaseExecute:
		return "execute"
	default:
		return "unknown"
	}
}

// Stream identifies which subprocess stream an Output event came from.
type Stream int

const (
	StreamStdout Stream = iota
	StreamStderr
)

// Kind discriminates the Event variants.
type Kind int

const (
	KindOutput Kind = iota
	KindProgress
	KindPhaseStart
	KindPhaseEnd
	KindCompletion
	KindMetrics
)

// Event is a tagged variant carrying a timestamp and plugin identifier, per
// spec §3. Only the fields relevant to Kind are populated; the rest are
// zero.
type Event struct {
	Kind   Kind
	Plugin string
	Time   time.Time

	// Output fields.
	Stream Stream
	Line   []byte

	// Progress fields.
	Phase          Phase
	Percent        float64
	Message        string
	HasBytes       bool
	BytesDone      int64
	BytesTotal     int64
	HasItems       bool
	ItemsDone      int64
	ItemsTotal     int64

	// PhaseEnd / Completion fields.
	Success bool
	Error   string

	// Completion-only fields.
	PackagesUpdated int
	Duration        time.Duration

	// Metrics fields (spec §3 "Phase metrics"): a live resource-usage
	// sample for the plugin's currently running command.
	CPUPercent     float64
	RSSBytes       uint64
	CPUTimeSeconds float64
	DiskReadBytes  uint64
	DiskWriteBytes uint64
	NetSentBytes   uint64
	NetRecvBytes   uint64
}

// Output builds a KindOutput event.
func Output(plugin string, stream Stream, line []byte, now time.Time) Event {
	return Event{Kind: KindOutput, Plugin: plugin, Stream: stream, Line: line, Time: now}
}

// Progress builds a KindProgress event.
func Progress(plugin string, phase Phase, percent float64, message string, now time.Time) Event {
	return Event{Kind: KindProgress, Plugin: plugin, Phase: phase, Percent: percent, Message: message, Time: now}
}

// PhaseStart builds a KindPhaseStart event.
func PhaseStart(plugin string, phase Phase, now time.Time) Event {
	return Event{Kind: KindPhaseStart, Plugin: plugin, Phase: phase, Time: now}
}

// PhaseEnd builds a KindPhaseEnd event.
func PhaseEnd(plugin string, phase Phase, success bool, errMsg string, now time.Time) Event {
	return Event{Kind: KindPhaseEnd, Plugin: plugin, Phase: phase, Success: success, Error: errMsg, Time: now}
}

// Completion builds a KindCompletion event.
func Completion(plugin string, success bool, packagesUpdated int, dur time.Duration, errMsg string, now time.Time) Event {
	return Event{
		Kind:            KindCompletion,
		Plugin:          plugin,
		Success:         success,
		Error:           errMsg,
		PackagesUpdated: packagesUpdated,
		Duration:        dur,
		Time:            now,
	}
}

// Metrics builds a KindMetrics event carrying one live resource-usage
// sample for plugin's currently running command.
func Metrics(plugin string, cpuPct float64, rssBytes uint64, cpuTimeSeconds float64, diskRead, diskWrite, netSent, netRecv uint64, now time.Time) Event {
	return Event{
		Kind:           KindMetrics,
		Plugin:         plugin,
		Time:           now,
		CPUPercent:     cpuPct,
		RSSBytes:       rssBytes,
		CPUTimeSeconds: cpuTimeSeconds,
		DiskReadBytes:  diskRead,
		DiskWriteBytes: diskWrite,
		NetSentBytes:   netSent,
		NetRecvBytes:   netRecv,
	}
}

// samePlugPhase reports whether two events target the same (plugin, phase)
// pair, used to coalesce queued Progress events.
func samePlugPhase(a, b Event) bool {
	return a.Plugin == b.Plugin && a.Phase == b.Phase
}

// mandatory reports whether an event kind must never be dropped.
func mandatory(k Kind) bool {
	return k == KindPhaseStart || k == KindPhaseEnd || k == KindCompletion
}
