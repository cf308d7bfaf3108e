package validator

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/kadirpekel/supervisor/internal/provider"
)

// promptRecorder is a Provider double that captures every prompt it is
// sent, for asserting on the text a pipeline stage actually dispatched.
type promptRecorder struct {
	response string
	prompts  []string
}

func (p *promptRecorder) Name() string { return "recorder" }

func (p *promptRecorder) Execute(ctx context.Context, req provider.Request) (*provider.Result, error) {
	p.prompts = append(p.prompts, req.Prompt)
	return &provider.Result{RawOutput: p.response}, nil
}

func TestPipelineRunBehavioral(t *testing.T) {
	p := NewPipeline(nil, nil, nil, nil)
	outcome := p.RunBehavioral("Hello there, happy to help!", []BehavioralCriterion{
		{Criterion: "greets the user", RequireGreeting: true},
	})
	if !outcome.Report.Valid || outcome.NeedsRetry {
		t.Fatalf("outcome = %+v, want valid with no retry", outcome)
	}
}

func TestPipelineDeterministicHighConfidencePassSkipsHelper(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "handler.go", "package main")
	det := NewDeterministic(root)

	rules := RuleTable{
		{Keyword: regexp.MustCompile(`(?i)creates a handler`), Checks: []Check{{Kind: CheckFileExists, Path: "handler.go"}}},
	}
	p := NewPipeline(det, nil, nil, rules)

	outcome, err := p.RunNonBehavioral(context.Background(), []string{"creates a handler"}, provider.Request{}, provider.Request{}, 0, false)
	if err != nil {
		t.Fatalf("RunNonBehavioral() error = %v", err)
	}
	if !outcome.Report.Valid || outcome.NeedsRetry {
		t.Fatalf("outcome = %+v, want valid with no retry", outcome)
	}
}

func TestPipelineDeterministicFailureNeedsRetry(t *testing.T) {
	root := t.TempDir()
	det := NewDeterministic(root)

	rules := RuleTable{
		{Keyword: regexp.MustCompile(`(?i)creates a handler`), Checks: []Check{{Kind: CheckFileExists, Path: "handler.go"}}},
	}
	p := NewPipeline(det, nil, nil, rules)

	outcome, err := p.RunNonBehavioral(context.Background(), []string{"creates a handler"}, provider.Request{}, provider.Request{}, 0, false)
	if err != nil {
		t.Fatalf("RunNonBehavioral() error = %v", err)
	}
	if outcome.Report.Valid || !outcome.NeedsRetry {
		t.Fatalf("outcome = %+v, want invalid with retry (handler.go missing)", outcome)
	}
}

// TestPipelineFinalRetryCycleSkipsInterrogation asserts that the
// final-retry cycle runs zero Stage 4 rounds of its own: when the helper
// rejects and finalRetryCycle is true, the interrogator must never be
// invoked, leaving the one-shot final interrogation entirely to the
// Retry Orchestrator.
func TestPipelineFinalRetryCycleSkipsInterrogation(t *testing.T) {
	root := t.TempDir()
	det := NewDeterministic(root)
	helperStub := provider.NewStubProvider(provider.Result{
		RawOutput: `{"isValid": false, "verificationCommands": [], "reasoning": "still missing evidence"}`,
	})
	helper := NewHelperOrchestrator(helperStub, root, false)
	interrogateStub := provider.NewStubProvider(provider.Result{RawOutput: "not json, would fail if ever called"})
	interrogator := NewInterrogator(interrogateStub)

	p := NewPipeline(det, helper, interrogator, nil)
	outcome, err := p.RunNonBehavioral(context.Background(), []string{"behaves reasonably"}, provider.Request{}, provider.Request{}, 0, true)
	if err != nil {
		t.Fatalf("RunNonBehavioral() error = %v (interrogator should not have been called)", err)
	}
	if outcome.InterrogationRan {
		t.Fatalf("outcome.InterrogationRan = true, want false for the final-retry cycle")
	}
	if outcome.Report.Valid || !outcome.NeedsRetry {
		t.Fatalf("outcome = %+v, want invalid with retry", outcome)
	}
}

// TestPipelineExistsCriterionUsesDefaultRules drives the DefaultRules
// table with a plain "<file> exists" criterion: the named file being
// present must validate at HIGH confidence without any helper call.
func TestPipelineExistsCriterionUsesDefaultRules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"name":"demo"}`)
	det := NewDeterministic(root)

	p := NewPipeline(det, nil, nil, DefaultRules)
	outcome, err := p.RunNonBehavioral(context.Background(), []string{"package.json exists"}, provider.Request{}, provider.Request{}, 0, false)
	if err != nil {
		t.Fatalf("RunNonBehavioral() error = %v", err)
	}
	if !outcome.Report.Valid || outcome.Report.Confidence != "HIGH" {
		t.Fatalf("outcome = %+v, want a HIGH-confidence deterministic pass", outcome.Report)
	}
}

// TestPipelinePathlessRuleFallsToHelper covers the rule-matched-but-
// unbindable case: the criterion matches a DefaultRules keyword but
// names no file path, so the check cannot run and the criterion must
// reach the helper agent, whose prompt quotes both the criterion and
// the agent's response excerpt.
func TestPipelinePathlessRuleFallsToHelper(t *testing.T) {
	root := t.TempDir()
	det := NewDeterministic(root)
	rec := &promptRecorder{response: `{"isValid": true, "verificationCommands": [], "reasoning": "confirmed"}`}
	helper := NewHelperOrchestrator(rec, root, false)

	p := NewPipeline(det, helper, nil, DefaultRules)
	interrogateReq := provider.Request{Prompt: "I wrote the request logger"}
	outcome, err := p.RunNonBehavioral(context.Background(), []string{"creates a file for request logging"}, provider.Request{}, interrogateReq, 0, false)
	if err != nil {
		t.Fatalf("RunNonBehavioral() error = %v", err)
	}
	if !outcome.Report.Valid {
		t.Fatalf("outcome = %+v, want the helper's verdict to validate", outcome.Report)
	}
	if len(rec.prompts) != 1 {
		t.Fatalf("helper dispatched %d times, want exactly 1", len(rec.prompts))
	}
	if !strings.Contains(rec.prompts[0], "creates a file for request logging") {
		t.Fatalf("helper prompt does not quote the unresolved criterion:\n%s", rec.prompts[0])
	}
	if !strings.Contains(rec.prompts[0], "I wrote the request logger") {
		t.Fatalf("helper prompt does not quote the agent response excerpt:\n%s", rec.prompts[0])
	}
}

func TestPipelineUnmappedCriterionFallsToHelper(t *testing.T) {
	root := t.TempDir()
	det := NewDeterministic(root)
	stub := provider.NewStubProvider(provider.Result{
		RawOutput: `{"isValid": true, "verificationCommands": [], "reasoning": "looks fine"}`,
	})
	helper := NewHelperOrchestrator(stub, root, false)

	p := NewPipeline(det, helper, nil, nil)
	outcome, err := p.RunNonBehavioral(context.Background(), []string{"behaves reasonably"}, provider.Request{}, provider.Request{}, 0, false)
	if err != nil {
		t.Fatalf("RunNonBehavioral() error = %v", err)
	}
	if !outcome.Report.Valid {
		t.Fatalf("outcome = %+v, want helper to validate the unmapped criterion", outcome)
	}
}
