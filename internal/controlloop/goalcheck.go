package controlloop

import (
	"context"
	"encoding/json"

	"github.com/kadirpekel/supervisor/internal/prompt"
	"github.com/kadirpekel/supervisor/internal/provider"
	"github.com/kadirpekel/supervisor/internal/state"
)

// GoalResult is the Goal Completion Checker's verdict.
type GoalResult string

const (
	GoalCompleted  GoalResult = "completed"
	GoalIncomplete GoalResult = "incomplete"
	GoalAmbiguous  GoalResult = "ambiguous"
)

type goalCheckResponse struct {
	Result    string `json:"result"`
	Reasoning string `json:"reasoning"`
}

// GoalChecker asks a configured AI provider whether completed_tasks
// satisfy the goal description, invoked only when the queue is
// exhausted.
type GoalChecker struct {
	provider provider.Provider
}

// NewGoalChecker binds a GoalChecker to the provider used for the
// goal-check prompt.
func NewGoalChecker(p provider.Provider) *GoalChecker {
	return &GoalChecker{provider: p}
}

// Check dispatches the goal-check prompt and classifies the response.
func (g *GoalChecker) Check(ctx context.Context, goal state.Goal, completed []state.CompletedTask) (GoalResult, string, error) {
	req := provider.Request{
		Prompt:    prompt.BuildGoalCheckPrompt(goal.Description, completed),
		FeatureID: "goal-check:" + goal.ProjectID,
	}
	result, err := g.provider.Execute(ctx, req)
	if err != nil {
		return GoalAmbiguous, "", err
	}

	var parsed goalCheckResponse
	if err := json.Unmarshal([]byte(result.RawOutput), &parsed); err != nil {
		return GoalAmbiguous, "goal-check response was not valid JSON", nil
	}

	switch GoalResult(parsed.Result) {
	case GoalCompleted:
		return GoalCompleted, parsed.Reasoning, nil
	case GoalIncomplete:
		return GoalIncomplete, parsed.Reasoning, nil
	default:
		return GoalAmbiguous, parsed.Reasoning, nil
	}
}
