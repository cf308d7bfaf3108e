package validator

import "testing"

func TestEvaluateBehavioralGreeting(t *testing.T) {
	passed, failed := EvaluateBehavioral("Hello! How can I help you today?", []BehavioralCriterion{
		{Criterion: "greets the user", RequireGreeting: true},
	})
	if len(failed) != 0 || len(passed) != 1 {
		t.Fatalf("passed=%v failed=%v, want 1 passed, 0 failed", passed, failed)
	}
}

func TestEvaluateBehavioralMinWords(t *testing.T) {
	_, failed := EvaluateBehavioral("short", []BehavioralCriterion{
		{Criterion: "gives a detailed answer", MinWords: 10},
	})
	if len(failed) != 1 {
		t.Fatalf("failed = %v, want 1 entry for too-short response", failed)
	}
}

func TestEvaluateBehavioralParagraphs(t *testing.T) {
	response := "First paragraph.\n\nSecond paragraph.\n\nThird paragraph."
	passed, failed := EvaluateBehavioral(response, []BehavioralCriterion{
		{Criterion: "structured into paragraphs", MinParagraphs: 3},
	})
	if len(failed) != 0 || len(passed) != 1 {
		t.Fatalf("passed=%v failed=%v, want pass", passed, failed)
	}
}
