package resctl

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeProbe struct {
	mb atomic.Uint64
}

func (f *fakeProbe) AggregateActiveMB() uint64 { return f.mb.Load() }

func TestSingleTaskSerializesExecution(t *testing.T) {
	c := New(Config{MaxTasks: 1}, nil)

	var running atomic.Int32
	var maxObserved atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.Admit(context.Background(), false)
			if err != nil {
				t.Errorf("Admit: %v", err)
				return
			}
			n := running.Add(1)
			for {
				cur := maxObserved.Load()
				if n <= cur || maxObserved.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			p.Release()
		}()
	}
	wg.Wait()

	if got := maxObserved.Load(); got != 1 {
		t.Errorf("max concurrent = %d, want 1", got)
	}
}

func TestDownloadPermitIndependentOfTasks(t *testing.T) {
	c := New(Config{MaxTasks: 8, MaxDownloads: 1}, nil)

	p1, err := c.Admit(context.Background(), true)
	if err != nil {
		t.Fatalf("Admit 1: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Admit(ctx, true); err == nil {
		t.Fatal("expected second download admit to block past the download cap")
	}

	p1.Release()
	p2, err := c.Admit(context.Background(), true)
	if err != nil {
		t.Fatalf("Admit after release: %v", err)
	}
	p2.Release()
}

func TestMemoryGateBlocksUntilBelowCap(t *testing.T) {
	probe := &fakeProbe{}
	probe.mb.Store(2000)
	c := New(Config{MaxTasks: 4, MemoryCapMB: 1024}, probe)

	done := make(chan error, 1)
	go func() {
		_, err := c.Admit(context.Background(), false)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("Admit returned before memory dropped below cap")
	case <-time.After(50 * time.Millisecond):
	}

	probe.mb.Store(512)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Admit after memory dropped = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Admit never unblocked after memory dropped below cap")
	}
}
