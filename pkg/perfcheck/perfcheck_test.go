package perfcheck

import (
	"errors"
	"testing"
	"time"
)

func TestValidateTargetPassesWithinBudget(t *testing.T) {
	target := Target{Name: "fast", MaxDuration: 20 * time.Millisecond}
	result := ValidateTarget(target, func() {}, 10)
	if !result.Passed {
		t.Fatalf("result = %+v, want Passed", result)
	}
}

func TestValidateTargetFailsOverBudget(t *testing.T) {
	target := Target{Name: "slow", MaxDuration: time.Microsecond}
	result := ValidateTarget(target, func() { time.Sleep(5 * time.Millisecond) }, 3)
	if result.Passed {
		t.Fatalf("result = %+v, want not Passed", result)
	}
}

func TestValidateAllSkipsTargetsWithoutFunction(t *testing.T) {
	targets := DefaultTargets()
	report := ValidateAll(targets, map[string]func(){
		"queue.publish": func() {},
	}, 5)
	if len(report.Results) != 1 {
		t.Fatalf("Results = %v, want exactly one matched target", report.Results)
	}
	if !report.AllPassed {
		t.Fatal("AllPassed = false, want true")
	}
}

func TestRunSoakReportsErrorRate(t *testing.T) {
	calls := 0
	result := RunSoak(SoakConfig{
		Duration: 30 * time.Millisecond,
		Interval: 5 * time.Millisecond,
		WorkFn: func() error {
			calls++
			if calls%2 == 0 {
				return errors.New("boom")
			}
			return nil
		},
	})
	if result.Iterations == 0 {
		t.Fatal("expected at least one iteration")
	}
	if result.Errors == 0 {
		t.Fatal("expected some recorded errors")
	}
}
