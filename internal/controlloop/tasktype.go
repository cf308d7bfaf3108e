package controlloop

import (
	"regexp"

	"github.com/kadirpekel/supervisor/internal/state"
)

var (
	behavioralKeywords    = regexp.MustCompile(`(?i)\b(greet|respond|explain|answer|conversation|chat)\b`)
	testingKeywords       = regexp.MustCompile(`(?i)\b(test|tests|unit test|coverage)\b`)
	documentationKeywords = regexp.MustCompile(`(?i)\b(document|documentation|readme|changelog|docstring)\b`)
	configurationKeywords = regexp.MustCompile(`(?i)\b(config|configure|\.env|yaml|environment variable)\b`)
)

// DetectTaskType classifies a task's intent and instructions into a
// TaskType when the operator did not set one explicitly. Coding is the
// default.
func DetectTaskType(task state.Task) state.TaskType {
	if task.TaskType != "" {
		return task.TaskType
	}
	text := task.Intent + " " + task.Instructions
	switch {
	case behavioralKeywords.MatchString(text):
		return state.TaskTypeBehavioral
	case testingKeywords.MatchString(text):
		return state.TaskTypeTesting
	case documentationKeywords.MatchString(text):
		return state.TaskTypeDocumentation
	case configurationKeywords.MatchString(text):
		return state.TaskTypeConfiguration
	default:
		return state.TaskTypeCoding
	}
}
