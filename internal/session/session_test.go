package session

import (
	"testing"
	"time"

	"github.com/kadirpekel/supervisor/internal/state"
)

func TestResolveReusesLiveSession(t *testing.T) {
	r := New(false)
	sessions := map[string]state.SessionInfo{
		"feat1": {SessionID: "s1", Provider: "claude", ErrorCount: 1},
	}
	if got := r.Resolve(sessions, "claude", "feat1"); got != "s1" {
		t.Fatalf("Resolve() = %q, want s1", got)
	}
}

func TestResolveDiscardsOnErrorBudget(t *testing.T) {
	r := New(false)
	sessions := map[string]state.SessionInfo{
		"feat1": {SessionID: "s1", Provider: "claude", ErrorCount: 5},
	}
	if got := r.Resolve(sessions, "claude", "feat1"); got != "" {
		t.Fatalf("Resolve() = %q, want empty (error_count >= 5)", got)
	}
}

func TestResolveDiscardsOnTokenBudget(t *testing.T) {
	r := New(false)
	sessions := map[string]state.SessionInfo{
		"feat1": {SessionID: "s1", Provider: "claude", TotalTokens: 200000, ContextLimit: 100000},
	}
	if got := r.Resolve(sessions, "claude", "feat1"); got != "" {
		t.Fatalf("Resolve() = %q, want empty (over context limit)", got)
	}
}

func TestResolveContextLimitBoundary(t *testing.T) {
	r := New(false)
	sessions := map[string]state.SessionInfo{
		"feat1": {SessionID: "s1", Provider: "claude", TotalTokens: 99999, ContextLimit: 100000},
	}
	if got := r.Resolve(sessions, "claude", "feat1"); got != "s1" {
		t.Fatalf("Resolve() = %q, want s1 (cap-1 is still reusable)", got)
	}
	sessions["feat1"] = state.SessionInfo{SessionID: "s1", Provider: "claude", TotalTokens: 100000, ContextLimit: 100000}
	if got := r.Resolve(sessions, "claude", "feat1"); got != "" {
		t.Fatalf("Resolve() = %q, want empty at cap", got)
	}
}

func TestResolveRespectsDisableReuse(t *testing.T) {
	r := New(true)
	sessions := map[string]state.SessionInfo{
		"feat1": {SessionID: "s1", Provider: "claude"},
	}
	if got := r.Resolve(sessions, "claude", "feat1"); got != "" {
		t.Fatalf("Resolve() = %q, want empty when reuse disabled", got)
	}
}

func TestResolveMismatchedProviderIsFresh(t *testing.T) {
	r := New(false)
	sessions := map[string]state.SessionInfo{
		"feat1": {SessionID: "s1", Provider: "claude"},
	}
	if got := r.Resolve(sessions, "codex", "feat1"); got != "" {
		t.Fatalf("Resolve() = %q, want empty for a different provider", got)
	}
}

func TestFeatureIDPrefersTaskMeta(t *testing.T) {
	task := state.Task{Meta: state.TaskMeta{Feature: "checkout"}}
	if got := FeatureID(task, "proj1"); got != "checkout" {
		t.Fatalf("FeatureID() = %q, want checkout", got)
	}
}

func TestFeatureIDFallsBackToProject(t *testing.T) {
	task := state.Task{}
	if got := FeatureID(task, "proj1"); got != "project:proj1" {
		t.Fatalf("FeatureID() = %q, want project:proj1", got)
	}
}

func TestTouchCreatesAndUpdates(t *testing.T) {
	sessions := Touch(nil, "claude", "feat1", "s1", 100)
	if sessions["feat1"].TotalTokens != 100 {
		t.Fatalf("TotalTokens = %d, want 100", sessions["feat1"].TotalTokens)
	}
	before := sessions["feat1"].LastUsed
	time.Sleep(time.Millisecond)
	sessions = Touch(sessions, "claude", "feat1", "s1", 50)
	if sessions["feat1"].TotalTokens != 150 {
		t.Fatalf("TotalTokens = %d, want 150", sessions["feat1"].TotalTokens)
	}
	if !sessions["feat1"].LastUsed.After(before) {
		t.Fatal("LastUsed was not updated on second Touch")
	}
}

func TestTouchSetsProviderContextLimit(t *testing.T) {
	sessions := Touch(nil, "claude", "feat1", "s1", 100)
	if got := sessions["feat1"].ContextLimit; got != ContextLimitFor("claude") {
		t.Fatalf("ContextLimit = %d, want %d", got, ContextLimitFor("claude"))
	}

	// An entry persisted without a limit picks one up on next use.
	sessions["feat2"] = state.SessionInfo{SessionID: "s2", Provider: "codex"}
	sessions = Touch(sessions, "codex", "feat2", "s2", 10)
	if got := sessions["feat2"].ContextLimit; got != ContextLimitFor("codex") {
		t.Fatalf("backfilled ContextLimit = %d, want %d", got, ContextLimitFor("codex"))
	}
}

func TestTouchedSessionEvictedAtTokenBudget(t *testing.T) {
	r := New(false)
	limit := ContextLimitFor("claude")

	sessions := Touch(nil, "claude", "feat1", "s1", limit-1)
	if got := r.Resolve(sessions, "claude", "feat1"); got != "s1" {
		t.Fatalf("Resolve() = %q, want s1 one token under the budget", got)
	}
	sessions = Touch(sessions, "claude", "feat1", "s1", 1)
	if got := r.Resolve(sessions, "claude", "feat1"); got != "" {
		t.Fatalf("Resolve() = %q, want empty once the budget is spent", got)
	}
}

func TestContextLimitForUnknownProviderFallsBack(t *testing.T) {
	if got := ContextLimitFor("some-new-agent"); got != fallbackContextLimit {
		t.Fatalf("ContextLimitFor() = %d, want fallback %d", got, fallbackContextLimit)
	}
}

func TestRecordError(t *testing.T) {
	sessions := map[string]state.SessionInfo{"feat1": {SessionID: "s1"}}
	RecordError(sessions, "feat1")
	RecordError(sessions, "feat1")
	if sessions["feat1"].ErrorCount != 2 {
		t.Fatalf("ErrorCount = %d, want 2", sessions["feat1"].ErrorCount)
	}
}
