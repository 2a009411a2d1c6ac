package probecache

import (
	"testing"
	"time"

	"gitlab.com/tinyland/lab/sysupdate/pkg/plugin"
)

func TestPutGetBoolRoundTrips(t *testing.T) {
	c, err := New(t.TempDir(), time.Minute, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if err := c.PutBool("apt", plugin.VerbIsApplicable, plugin.Check, true); err != nil {
		t.Fatalf("PutBool: %v", err)
	}
	got, ok := c.GetBool("apt", plugin.VerbIsApplicable, plugin.Check)
	if !ok || !got {
		t.Fatalf("GetBool = (%v, %v), want (true, true)", got, ok)
	}
}

func TestMutatingVerbsAreNeverCached(t *testing.T) {
	c, err := New(t.TempDir(), time.Minute, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if err := c.PutBool("apt", plugin.VerbDownload, plugin.Download, true); err != nil {
		t.Fatalf("PutBool: %v", err)
	}
	if _, ok := c.GetBool("apt", plugin.VerbDownload, plugin.Download); ok {
		t.Fatal("GetBool returned a cached answer for a mutating verb")
	}
}

func TestBypassDisablesCaching(t *testing.T) {
	c, err := New(t.TempDir(), time.Minute, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if err := c.PutBool("apt", plugin.VerbIsApplicable, plugin.Check, true); err != nil {
		t.Fatalf("PutBool: %v", err)
	}
	if _, ok := c.GetBool("apt", plugin.VerbIsApplicable, plugin.Check); ok {
		t.Fatal("GetBool returned a cached answer while bypassed")
	}
}

func TestProbeAnswerExpiresAfterTTL(t *testing.T) {
	c, err := New(t.TempDir(), 5*time.Millisecond, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if err := c.PutBool("apt", plugin.VerbIsApplicable, plugin.Check, true); err != nil {
		t.Fatalf("PutBool: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.GetBool("apt", plugin.VerbIsApplicable, plugin.Check); ok {
		t.Fatal("GetBool returned an answer past its TTL")
	}
}

func TestStatsReportHitsAndMisses(t *testing.T) {
	c, err := New(t.TempDir(), time.Minute, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	c.GetBool("apt", plugin.VerbIsApplicable, plugin.Check) // miss
	_ = c.PutBool("apt", plugin.VerbIsApplicable, plugin.Check, true)
	c.GetBool("apt", plugin.VerbIsApplicable, plugin.Check) // hit

	hits, misses, _ := c.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("Stats = (hits=%d, misses=%d), want (1, 1)", hits, misses)
	}
}

func TestGetStringsRoundTrips(t *testing.T) {
	c, err := New(t.TempDir(), time.Minute, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	want := []string{"pkgmgr:apt", "system:dpkg-lock"}
	if err := c.PutStrings("apt", plugin.VerbCheckMutexes, plugin.Check, want); err != nil {
		t.Fatalf("PutStrings: %v", err)
	}
	got, ok := c.GetStrings("apt", plugin.VerbCheckMutexes, plugin.Check)
	if !ok || len(got) != len(want) {
		t.Fatalf("GetStrings = (%v, %v), want %v", got, ok, want)
	}
}
