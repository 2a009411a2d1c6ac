package phasectl

import (
	"testing"
	"time"
)

func TestNoPauseAdvancesStraightThrough(t *testing.T) {
	c := New(false)
	c.BeginChecking()
	if got := c.FinishChecking(false); got != Downloading {
		t.Fatalf("FinishChecking = %v, want Downloading", got)
	}
	if got := c.FinishDownloading(false); got != Executing {
		t.Fatalf("FinishDownloading = %v, want Executing", got)
	}
	if got := c.FinishExecuting(true); got != Completed {
		t.Fatalf("FinishExecuting = %v, want Completed", got)
	}
}

func TestPauseBetweenPhasesGatesAtWaitingForDownload(t *testing.T) {
	c := New(true)
	c.BeginChecking()
	if got := c.FinishChecking(false); got != WaitingForDownload {
		t.Fatalf("FinishChecking = %v, want WaitingForDownload", got)
	}

	done := make(chan struct{})
	go func() {
		c.AwaitResume()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("AwaitResume returned before Resume was called")
	case <-time.After(50 * time.Millisecond):
	}

	c.Resume()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AwaitResume did not unblock after Resume")
	}
	if got := c.State(); got != Downloading {
		t.Fatalf("state after resume = %v, want Downloading", got)
	}
}

func TestNoActionRemainingForcesWaitEvenWithoutPauseFlag(t *testing.T) {
	c := New(false)
	c.BeginChecking()
	if got := c.FinishChecking(true); got != WaitingForDownload {
		t.Fatalf("FinishChecking(noActionRemaining=true) = %v, want WaitingForDownload", got)
	}
}

func TestFailedExecutionTransitionsToFailed(t *testing.T) {
	c := New(false)
	c.BeginChecking()
	c.FinishChecking(false)
	c.FinishDownloading(false)
	if got := c.FinishExecuting(false); got != Failed {
		t.Fatalf("FinishExecuting(false) = %v, want Failed", got)
	}
}

func TestAbortForcesFailed(t *testing.T) {
	c := New(false)
	c.Abort()
	if got := c.State(); got != Failed {
		t.Fatalf("state after Abort = %v, want Failed", got)
	}
}
