package retry

import (
	"testing"
	"time"

	"github.com/kadirpekel/supervisor/internal/state"
)

func TestOnValidationFailureRetriesWithinBudget(t *testing.T) {
	p, decision := OnValidationFailure(state.TaskProgress{}, "missing file", 2)
	if decision != DecisionRetry {
		t.Fatalf("decision = %v, want retry", decision)
	}
	if p.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", p.RetryCount)
	}
}

func TestOnValidationFailureFinalInterrogationThenBlock(t *testing.T) {
	p := state.TaskProgress{RetryCount: 1}
	p, decision := OnValidationFailure(p, "missing file", 1)
	if decision != DecisionFinalInterrogate {
		t.Fatalf("decision = %v, want final_interrogate on first overflow", decision)
	}

	p, decision = OnValidationFailure(p, "missing file entirely different", 1)
	if decision != DecisionBlock {
		t.Fatalf("decision = %v, want block after interrogation already done", decision)
	}
	_ = p
}

func TestRepeatedErrorBlocksImmediately(t *testing.T) {
	p := state.TaskProgress{}
	var decision Decision
	for i := 0; i < 3; i++ {
		p, decision = OnValidationFailure(p, "same error every time", 10)
	}
	if decision != DecisionBlock {
		t.Fatalf("decision = %v, want block after 3 consecutive identical errors", decision)
	}
}

func TestDifferentErrorsResetRepeatedCount(t *testing.T) {
	p := state.TaskProgress{}
	p, _ = OnValidationFailure(p, "error A", 10)
	p, _ = OnValidationFailure(p, "error B", 10)
	if p.RepeatedErrorCount != 1 {
		t.Fatalf("RepeatedErrorCount = %d, want reset to 1 on a different error", p.RepeatedErrorCount)
	}
}

func TestOnResourceExhaustedFollowsBackoffLadder(t *testing.T) {
	now := time.Now()
	p := state.TaskProgress{}

	wantDelays := []time.Duration{time.Minute, 5 * time.Minute, 20 * time.Minute, time.Hour, 2 * time.Hour}
	for i, want := range wantDelays {
		var decision Decision
		var deadline time.Time
		p, decision, deadline = OnResourceExhausted(p, now)
		if decision != DecisionBackoff {
			t.Fatalf("stage %d: decision = %v, want backoff", i, decision)
		}
		if !deadline.Equal(now.Add(want)) {
			t.Fatalf("stage %d: deadline = %v, want now+%v", i, deadline, want)
		}
	}

	_, decision, _ := OnResourceExhausted(p, now)
	if decision != DecisionHaltExhausted {
		t.Fatalf("decision after ladder exhausted = %v, want halt_resource_exhausted", decision)
	}
}

func TestBackoffElapsed(t *testing.T) {
	now := time.Now()
	p := state.TaskProgress{BackoffUntil: now.Add(-time.Minute)}
	if !BackoffElapsed(p, now) {
		t.Fatal("BackoffElapsed() = false for a past deadline, want true")
	}

	future := state.TaskProgress{BackoffUntil: now.Add(time.Minute)}
	if BackoffElapsed(future, now) {
		t.Fatal("BackoffElapsed() = true for a future deadline, want false")
	}
}
