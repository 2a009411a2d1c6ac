package metrics

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestBeginRecordEndRoundTrip(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	rec := s.BeginPhase(ctx, "apt", "CHECK")
	s.RecordSample(ctx, rec, int32(os.Getpid()))
	s.EndPhase(rec, Outcome{Success: true})

	snap := s.Snapshot("apt")
	if len(snap) != 1 {
		t.Fatalf("Snapshot len = %d, want 1", len(snap))
	}
	if !snap[0].Finished {
		t.Fatal("expected phase to be marked finished")
	}
	if !snap[0].Success {
		t.Fatal("expected outcome success to be recorded")
	}
	if len(snap[0].Samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(snap[0].Samples))
	}
}

func TestMetricsSurviveAfterFinish(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	rec := s.BeginPhase(ctx, "flatpak", "DOWNLOAD")
	s.RecordSample(ctx, rec, int32(os.Getpid()))
	s.EndPhase(rec, Outcome{Success: false, ExitCode: 1, ErrorMessage: "network timeout"})

	time.Sleep(time.Millisecond)

	snap := s.Snapshot("flatpak")
	if len(snap) != 1 || !snap[0].Finished {
		t.Fatal("expected finished phase record to remain queryable")
	}
	roll := RollupFor(snap[0])
	if roll.Plugin != "flatpak" || roll.Phase != "DOWNLOAD" {
		t.Fatalf("unexpected rollup: %+v", roll)
	}
	if roll.Success {
		t.Fatal("expected rollup to carry failure outcome")
	}
	if roll.ExitCode != 1 || roll.ErrorMessage != "network timeout" {
		t.Fatalf("unexpected outcome fields in rollup: %+v", roll)
	}
}

func TestAggregateActiveMBOnlyCountsUnfinished(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	active := s.BeginPhase(ctx, "pip", "EXECUTE")
	active.PeakRSS = 50 * 1024 * 1024

	finished := s.BeginPhase(ctx, "pip", "CHECK")
	finished.PeakRSS = 999 * 1024 * 1024
	s.EndPhase(finished, Outcome{Success: true})

	if got := s.AggregateActiveMB(); got != 50 {
		t.Fatalf("AggregateActiveMB = %d, want 50 (finished phases excluded)", got)
	}
}

func TestRecordSampleAccumulatesMonotoneCumulativeFields(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	rec := s.BeginPhase(ctx, "apt", "DOWNLOAD")

	s.RecordSample(ctx, rec, int32(os.Getpid()))
	cpu1, read1 := rec.CPUTimeSeconds, rec.BytesRead
	s.RecordSample(ctx, rec, int32(os.Getpid()))

	// Cumulative fields must never decrease across samples for the same
	// phase record (Testable property #7).
	if rec.CPUTimeSeconds < 0 {
		t.Fatalf("cumulative CPU time went negative: %+v", rec)
	}
	if rec.CPUTimeSeconds < cpu1 || rec.BytesRead < read1 {
		t.Fatalf("cumulative fields decreased: cpu %v -> %v, read %d -> %d",
			cpu1, rec.CPUTimeSeconds, read1, rec.BytesRead)
	}
}
