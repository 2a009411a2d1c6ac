// Package resctl implements the resource controller of spec §4.3: bounded
// permits for concurrent plugin executions, concurrent downloads, and
// aggregate memory, acquired in the fixed order task → download → memory
// (spec §5) so the mutex manager and resource controller can never
// deadlock against each other.
package resctl

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultDownloadConcurrency is the default cap on simultaneous
// DOWNLOAD-phase executions.
const DefaultDownloadConcurrency = 2

// memoryPollInterval is how often a blocked memory-permit acquisition
// rechecks aggregate usage against the cap, per spec §4.3.
const memoryPollInterval = time.Second

// MemoryProbe reports the current aggregate resident-set size, in MB, of
// all actively running plugin children. The resource controller consults
// it on every memory-permit acquisition and, while blocked, once per
// memoryPollInterval.
type MemoryProbe interface {
	AggregateActiveMB() uint64
}

// Config controls the controller's permit limits.
type Config struct {
	// MaxTasks is the maximum concurrent plugin executions. Clamped to
	// [1, 32]; 0 defaults to runtime.NumCPU() (also clamped).
	MaxTasks int

	// MaxDownloads is the maximum concurrent DOWNLOAD-phase executions.
	// 0 defaults to DefaultDownloadConcurrency.
	MaxDownloads int

	// MemoryCapMB is the soft aggregate memory cap. 0 disables the
	// memory gate entirely (AcquireMemory always succeeds).
	MemoryCapMB uint64
}

// clampTasks applies the [1, 32] clamp from spec §4.3, defaulting to the
// host's CPU count when n <= 0.
func clampTasks(n int) int {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n < 1 {
		n = 1
	}
	if n > 32 {
		n = 32
	}
	return n
}

// Controller grants the three independent permits described in spec
// §4.3. It is safe for concurrent use.
type Controller struct {
	tasks     *semaphore.Weighted
	downloads *semaphore.Weighted
	memCapMB  uint64
	probe     MemoryProbe
}

// New creates a Controller from cfg, consulting probe (if non-nil) for
// memory-permit admission.
func New(cfg Config, probe MemoryProbe) *Controller {
	maxTasks := clampTasks(cfg.MaxTasks)
	maxDownloads := cfg.MaxDownloads
	if maxDownloads <= 0 {
		maxDownloads = DefaultDownloadConcurrency
	}
	return &Controller{
		tasks:     semaphore.NewWeighted(int64(maxTasks)),
		downloads: semaphore.NewWeighted(int64(maxDownloads)),
		memCapMB:  cfg.MemoryCapMB,
		probe:     probe,
	}
}

// Permit represents the permits held by one admitted plugin execution.
// Release returns them in the reverse of the acquisition order (memory,
// download, task), per spec §5.
type Permit struct {
	c            *Controller
	heldDownload bool
}

// Admit acquires a task permit, a download permit if isDownload is true,
// and the memory gate, in that order. ctx cancellation unblocks any of
// the three waits.
func (c *Controller) Admit(ctx context.Context, isDownload bool) (*Permit, error) {
	if err := c.tasks.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if isDownload {
		if err := c.downloads.Acquire(ctx, 1); err != nil {
			c.tasks.Release(1)
			return nil, err
		}
	}
	if err := c.waitForMemory(ctx); err != nil {
		if isDownload {
			c.downloads.Release(1)
		}
		c.tasks.Release(1)
		return nil, err
	}
	return &Permit{c: c, heldDownload: isDownload}, nil
}

// waitForMemory blocks until aggregate active memory is below the cap,
// rechecking every memoryPollInterval, per spec §4.3.
func (c *Controller) waitForMemory(ctx context.Context) error {
	if c.memCapMB == 0 || c.probe == nil {
		return nil
	}
	for {
		if c.probe.AggregateActiveMB() < c.memCapMB {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(memoryPollInterval):
		}
	}
}

// Release returns the held permits. The memory gate holds no permit
// object (it is a point-in-time check), so only the download and task
// permits are released, download first.
func (p *Permit) Release() {
	if p.heldDownload {
		p.c.downloads.Release(1)
	}
	p.c.tasks.Release(1)
}
