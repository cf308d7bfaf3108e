package prompt

import (
	"strings"
	"testing"

	"github.com/kadirpekel/supervisor/internal/state"
)

func TestBuildIncludesCriteriaAndOutputContract(t *testing.T) {
	task := state.Task{
		TaskType:           state.TaskTypeCoding,
		Intent:             "add a health endpoint",
		Instructions:       "Add GET /healthz returning 200.",
		AcceptanceCriteria: []string{"GET /healthz returns 200", "response includes status field"},
	}
	got := Build(task, "ship the health check feature")

	if !strings.Contains(got, "GET /healthz returns 200") {
		t.Errorf("Build() missing acceptance criterion:\n%s", got)
	}
	if !strings.Contains(got, `{"summary"`) {
		t.Errorf("Build() missing coding-task output contract:\n%s", got)
	}
}

func TestBuildBehavioralHasPlainTextContract(t *testing.T) {
	task := state.Task{TaskType: state.TaskTypeBehavioral, Intent: "greet the user"}
	got := Build(task, "be friendly")
	if strings.Contains(got, `{"summary"`) {
		t.Errorf("Build() behavioral task should not require JSON output:\n%s", got)
	}
}

func TestBuildFixPromptIncludesEvidence(t *testing.T) {
	task := state.Task{TaskType: state.TaskTypeCoding, Intent: "add a health endpoint"}
	got := BuildFixPrompt(task, "ship health check", "connection refused", []string{"GET /healthz returns 200"}, "curl exited 7")

	if !strings.Contains(got, "connection refused") {
		t.Errorf("BuildFixPrompt() missing last error:\n%s", got)
	}
	if !strings.Contains(got, "curl exited 7") {
		t.Errorf("BuildFixPrompt() missing helper evidence:\n%s", got)
	}
}

func TestBuildGoalCheckPromptAsksForJSON(t *testing.T) {
	got := BuildGoalCheckPrompt("ship the feature", []state.CompletedTask{{TaskID: "t1"}})
	if !strings.Contains(got, `"completed"|"incomplete"|"ambiguous"`) {
		t.Errorf("BuildGoalCheckPrompt() missing result enum:\n%s", got)
	}
}
