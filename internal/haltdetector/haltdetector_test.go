package haltdetector

import "testing"

func TestDetectAmbiguity(t *testing.T) {
	got := Detect(Input{RawOutput: "Could you clarify which database you want me to use?"})
	if got != ReasonAmbiguityDetected {
		t.Fatalf("Detect() = %q, want %q", got, ReasonAmbiguityDetected)
	}
}

func TestDetectBlocked(t *testing.T) {
	got := Detect(Input{RawOutput: "I cannot proceed without additional credentials."})
	if got != ReasonBlocked {
		t.Fatalf("Detect() = %q, want %q", got, ReasonBlocked)
	}
}

func TestDetectResourceExhausted(t *testing.T) {
	got := Detect(Input{Stderr: "Error: rate limit exceeded for this model"})
	if got != ReasonResourceExhausted {
		t.Fatalf("Detect() = %q, want %q", got, ReasonResourceExhausted)
	}
}

func TestDetectOutputFormatInvalidForCodingTask(t *testing.T) {
	got := Detect(Input{RawOutput: "not json at all", TaskType: "coding"})
	if got != ReasonOutputFormatInvalid {
		t.Fatalf("Detect() = %q, want %q", got, ReasonOutputFormatInvalid)
	}
}

func TestDetectValidCodingOutputPasses(t *testing.T) {
	got := Detect(Input{RawOutput: `{"summary": "added the endpoint"}`, TaskType: "coding"})
	if got != ReasonNone {
		t.Fatalf("Detect() = %q, want none", got)
	}
}

func TestDetectExecFailure(t *testing.T) {
	got := Detect(Input{ExitCode: 1})
	if got != ReasonProviderExecFailure {
		t.Fatalf("Detect() = %q, want %q", got, ReasonProviderExecFailure)
	}
}

func TestDetectNone(t *testing.T) {
	got := Detect(Input{RawOutput: "all done", ExitCode: 0})
	if got != ReasonNone {
		t.Fatalf("Detect() = %q, want none", got)
	}
}

func TestIsCritical(t *testing.T) {
	critical := []Reason{ReasonBlocked, ReasonOutputFormatInvalid, ReasonProviderCircuitBroken}
	for _, r := range critical {
		if !r.IsCritical() {
			t.Errorf("%q.IsCritical() = false, want true", r)
		}
	}
	nonCritical := []Reason{ReasonNone, ReasonResourceExhausted, ReasonProviderExecFailure, ReasonAmbiguityDetected}
	for _, r := range nonCritical {
		if r.IsCritical() {
			t.Errorf("%q.IsCritical() = true, want false", r)
		}
	}
}
