// Package metrics samples per-process CPU and memory usage for running
// plugin executions (spec §4.6). A Store is keyed by plugin name and is
// owned independently of any terminal screen or PTY session: metrics for
// a finished phase remain available after its PTY session has closed,
// until the plugin tab itself is torn down.
package metrics

import (
	"context"
	"sync"
	"time"

	gopsnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

// SampleInterval is the default cadence at which a running execution is
// polled for CPU/memory/IO usage.
const SampleInterval = 2 * time.Second

// Sample is one resource-usage reading for a running phase execution.
type Sample struct {
	Time     time.Time
	CPUPct   float64
	RSSBytes uint64

	// CPUTimeSeconds is the process's cumulative user+kernel CPU time at
	// the moment of this sample (spec §3 "CPU user+kernel seconds").
	CPUTimeSeconds float64

	// BytesRead/BytesWritten are the process's cumulative disk I/O
	// counters at the moment of this sample.
	BytesRead    uint64
	BytesWritten uint64

	// BytesSent/BytesRecv are cumulative host-wide network counters,
	// measured relative to the phase's start (spec §3 "bytes sent/
	// received"). gopsutil has no portable per-process network counter,
	// so this is a delta of the host's aggregate interface counters over
	// the phase's lifetime: an approximation, accurate only when the
	// sampled process is the dominant source of network traffic on the
	// host for the phase's duration.
	BytesSent uint64
	BytesRecv uint64
}

// Outcome summarizes how a phase execution finished (spec §4.6
// end_phase(plugin, phase, outcome)).
type Outcome struct {
	Success bool

	// ExitCode is the last command's process exit status; 0 on success.
	ExitCode int

	// ErrorMessage is the classification failure reason, empty on success.
	ErrorMessage string

	// PackagesTouched is the plugin-reported count of packages the phase
	// acted on (install/upgrade/remove), from Plugin.CountPackages.
	PackagesTouched int
}

// PhaseRecord accumulates samples and summary stats for one (plugin,
// phase) execution.
type PhaseRecord struct {
	Plugin   string
	Phase    string
	Started  time.Time
	Ended    time.Time
	Finished bool
	Samples  []Sample

	PeakRSS uint64
	PeakCPU float64

	// Latest cumulative readings, monotone non-decreasing across samples
	// for the same record (Testable property #7).
	CPUTimeSeconds float64
	BytesRead      uint64
	BytesWritten   uint64
	BytesSent      uint64
	BytesRecv      uint64

	// Outcome fields, populated by EndPhase.
	Success         bool
	ExitCode        int
	ErrorMessage    string
	PackagesTouched int

	netBaselineSent uint64
	netBaselineRecv uint64
}

// Rollup summarizes a PhaseRecord for display.
type Rollup struct {
	Plugin   string
	Phase    string
	Duration time.Duration
	PeakRSS  uint64
	PeakCPU  float64
	AvgCPU   float64
	SampleN  int

	CPUTimeSeconds  float64
	BytesRead       uint64
	BytesWritten    uint64
	BytesSent       uint64
	BytesRecv       uint64
	PackagesTouched int
	ExitCode        int
	Success         bool
	ErrorMessage    string
}

// Store holds PhaseRecords for every plugin the executor has run, across
// every phase, for the lifetime of the process.
type Store struct {
	mu      sync.RWMutex
	records map[string][]*PhaseRecord // keyed by plugin name
}

// NewStore creates an empty metrics store.
func NewStore() *Store {
	return &Store{records: make(map[string][]*PhaseRecord)}
}

// BeginPhase starts a new PhaseRecord for plugin/phase and returns a
// handle for recording samples against it. Callers drive periodic
// sampling via RecordSample; BeginPhase itself does not
// spawn a sampling goroutine so callers can tie its lifetime to the
// executor's own phase loop. ctx bounds the host network-counter baseline
// read; a failure there just leaves the phase's network-byte fields at 0.
func (s *Store) BeginPhase(ctx context.Context, plugin, phase string) *PhaseRecord {
	rec := &PhaseRecord{
		Plugin:  plugin,
		Phase:   phase,
		Started: time.Now(),
	}
	if sent, recv, err := hostNetCounters(ctx); err == nil {
		rec.netBaselineSent = sent
		rec.netBaselineRecv = recv
	}
	s.mu.Lock()
	s.records[plugin] = append(s.records[plugin], rec)
	s.mu.Unlock()
	return rec
}

// RecordSample samples the process at pid and appends the reading to
// rec. Errors (process already exited, permission denied) are swallowed:
// a missed sample is not fatal to the phase execution. It returns the
// Sample taken, for callers that want to surface it live (e.g. the
// executor publishing a metrics event for the UI).
func (s *Store) RecordSample(ctx context.Context, rec *PhaseRecord, pid int32) Sample {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return Sample{}
	}
	cpuPct, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		cpuPct = 0
	}
	var rss uint64
	if mi, err := proc.MemoryInfoWithContext(ctx); err == nil && mi != nil {
		rss = mi.RSS
	}
	var cpuTime float64
	if t, err := proc.TimesWithContext(ctx); err == nil && t != nil {
		cpuTime = t.User + t.System
	}
	var diskRead, diskWrite uint64
	if io, err := proc.IOCountersWithContext(ctx); err == nil && io != nil {
		diskRead = io.ReadBytes
		diskWrite = io.WriteBytes
	}
	var netSent, netRecv uint64
	if sent, recv, err := hostNetCounters(ctx); err == nil {
		netSent = subFloor(sent, rec.netBaselineSent)
		netRecv = subFloor(recv, rec.netBaselineRecv)
	}

	sample := Sample{
		Time:           time.Now(),
		CPUPct:         cpuPct,
		RSSBytes:       rss,
		CPUTimeSeconds: cpuTime,
		BytesRead:      diskRead,
		BytesWritten:   diskWrite,
		BytesSent:      netSent,
		BytesRecv:      netRecv,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Samples = append(rec.Samples, sample)
	if rss > rec.PeakRSS {
		rec.PeakRSS = rss
	}
	if cpuPct > rec.PeakCPU {
		rec.PeakCPU = cpuPct
	}
	rec.CPUTimeSeconds = monoMax(rec.CPUTimeSeconds, cpuTime)
	rec.BytesRead = monoMaxU(rec.BytesRead, diskRead)
	rec.BytesWritten = monoMaxU(rec.BytesWritten, diskWrite)
	rec.BytesSent = monoMaxU(rec.BytesSent, netSent)
	rec.BytesRecv = monoMaxU(rec.BytesRecv, netRecv)
	return sample
}

// EndPhase marks rec as finished and records its outcome. The record and
// its samples remain in the store for later Snapshot/Rollup calls.
func (s *Store) EndPhase(rec *PhaseRecord, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Ended = time.Now()
	rec.Finished = true
	rec.Success = outcome.Success
	rec.ExitCode = outcome.ExitCode
	rec.ErrorMessage = outcome.ErrorMessage
	rec.PackagesTouched = outcome.PackagesTouched
}

// Snapshot returns a copy of every PhaseRecord recorded for plugin, oldest
// first.
func (s *Store) Snapshot(plugin string) []*PhaseRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.records[plugin]
	out := make([]*PhaseRecord, len(recs))
	copy(out, recs)
	return out
}

// AggregateActiveMB implements resctl.MemoryProbe: it sums PeakRSS across
// every unfinished PhaseRecord, converted to MB.
func (s *Store) AggregateActiveMB() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, recs := range s.records {
		for _, r := range recs {
			if !r.Finished {
				total += r.PeakRSS
			}
		}
	}
	return total / (1024 * 1024)
}

// RollupFor computes a Rollup summary for rec.
func RollupFor(rec *PhaseRecord) Rollup {
	end := rec.Ended
	if !rec.Finished {
		end = time.Now()
	}
	var sumCPU float64
	for _, sm := range rec.Samples {
		sumCPU += sm.CPUPct
	}
	avg := 0.0
	if n := len(rec.Samples); n > 0 {
		avg = sumCPU / float64(n)
	}
	return Rollup{
		Plugin:          rec.Plugin,
		Phase:           rec.Phase,
		Duration:        end.Sub(rec.Started),
		PeakRSS:         rec.PeakRSS,
		PeakCPU:         rec.PeakCPU,
		AvgCPU:          avg,
		SampleN:         len(rec.Samples),
		CPUTimeSeconds:  rec.CPUTimeSeconds,
		BytesRead:       rec.BytesRead,
		BytesWritten:    rec.BytesWritten,
		BytesSent:       rec.BytesSent,
		BytesRecv:       rec.BytesRecv,
		PackagesTouched: rec.PackagesTouched,
		ExitCode:        rec.ExitCode,
		Success:         rec.Success,
		ErrorMessage:    rec.ErrorMessage,
	}
}

// hostNetCounters returns the host's aggregate (all-interface) cumulative
// bytes sent/received.
func hostNetCounters(ctx context.Context) (sent, recv uint64, err error) {
	stats, err := gopsnet.IOCountersWithContext(ctx, false)
	if err != nil || len(stats) == 0 {
		return 0, 0, err
	}
	return stats[0].BytesSent, stats[0].BytesRecv, nil
}

// subFloor returns a-b, floored at 0 (a host counter can wrap or a
// baseline race can otherwise momentarily put b above a).
func subFloor(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

func monoMax(a, b float64) float64 {
	if b > a {
		return b
	}
	return a
}

func monoMaxU(a, b uint64) uint64 {
	if b > a {
		return b
	}
	return a
}
