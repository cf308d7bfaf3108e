// Package prompt assembles task-type-specific prompts from a task and
// a minimal projection of supervisor state. Strategies are selected on
// state.TaskType and merged with
// a shared base slot set, mirroring how prompt composition is done
// elsewhere in the stack.
package prompt

import (
	"fmt"
	"strings"

	"github.com/kadirpekel/supervisor/internal/state"
)

// Slots is the fixed contract every task-type strategy populates
// before rendering into the final prompt string.
type Slots struct {
	SystemRole     string
	Intent         string
	Instructions   string
	Criteria       []string
	Context        string
	OutputContract string
}

// Render flattens Slots into the text sent to the provider.
func (s Slots) Render() string {
	var b strings.Builder
	writeSection(&b, s.SystemRole)
	writeSection(&b, s.Intent)
	writeSection(&b, s.Instructions)
	if len(s.Criteria) > 0 {
		b.WriteString("Acceptance criteria (all must pass):\n")
		for _, c := range s.Criteria {
			b.WriteString(fmt.Sprintf("- %s\n", c))
		}
		b.WriteString("\n")
	}
	writeSection(&b, s.Context)
	writeSection(&b, s.OutputContract)
	return strings.TrimSpace(b.String())
}

func writeSection(b *strings.Builder, s string) {
	if s == "" {
		return
	}
	b.WriteString(s)
	b.WriteString("\n\n")
}

// systemRoleFor names the assistant's identity per task type.
func systemRoleFor(t state.TaskType) string {
	switch t {
	case state.TaskTypeCoding:
		return "You are an autonomous coding agent operating inside a project sandbox."
	case state.TaskTypeBehavioral:
		return "You are a conversational assistant responding directly to the operator's request."
	case state.TaskTypeConfiguration:
		return "You are an infrastructure agent responsible for project configuration changes."
	case state.TaskTypeTesting:
		return "You are a testing agent responsible for writing and running verification for the project."
	case state.TaskTypeDocumentation:
		return "You are a documentation agent responsible for accurate, concise written artifacts."
	default:
		return "You are an autonomous agent completing a task inside a project sandbox."
	}
}

// outputContractFor names the response shape a task type expects;
// coding tasks must return the JSON schema the Halt Detector checks.
func outputContractFor(t state.TaskType) string {
	if t == state.TaskTypeCoding || t == state.TaskTypeConfiguration || t == state.TaskTypeTesting {
		return `Respond with a single JSON object: {"summary": "<what you changed>"}. Do not include any other top-level keys.`
	}
	return "Respond directly in plain text."
}

// Build assembles the prompt for a fresh dispatch of task.
func Build(task state.Task, projectDescription string) string {
	slots := Slots{
		SystemRole:     systemRoleFor(task.TaskType),
		Intent:         fmt.Sprintf("Goal: %s\nTask: %s", projectDescription, task.Intent),
		Instructions:   task.Instructions,
		Criteria:       task.AcceptanceCriteria,
		OutputContract: outputContractFor(task.TaskType),
	}
	return slots.Render()
}

// BuildFixPrompt assembles a retry prompt incorporating prior failure
// evidence, so the agent corrects rather than repeats its last attempt.
func BuildFixPrompt(task state.Task, projectDescription, lastError string, failedCriteria []string, helperEvidence string) string {
	var context strings.Builder
	context.WriteString("Your previous attempt did not satisfy the acceptance criteria.\n")
	if lastError != "" {
		context.WriteString(fmt.Sprintf("Last error: %s\n", lastError))
	}
	if len(failedCriteria) > 0 {
		context.WriteString("Still failing:\n")
		for _, c := range failedCriteria {
			context.WriteString(fmt.Sprintf("- %s\n", c))
		}
	}
	if helperEvidence != "" {
		context.WriteString(fmt.Sprintf("Verification evidence: %s\n", helperEvidence))
	}

	slots := Slots{
		SystemRole:     systemRoleFor(task.TaskType),
		Intent:         fmt.Sprintf("Goal: %s\nTask: %s", projectDescription, task.Intent),
		Instructions:   task.Instructions,
		Criteria:       task.AcceptanceCriteria,
		Context:        context.String(),
		OutputContract: outputContractFor(task.TaskType),
	}
	return slots.Render()
}

// BuildGoalCheckPrompt assembles the goal-completion prompt sent when
// the queue is exhausted.
func BuildGoalCheckPrompt(goalDescription string, completed []state.CompletedTask) string {
	var b strings.Builder
	b.WriteString("You are checking whether a project goal has been fully achieved.\n\n")
	b.WriteString(fmt.Sprintf("Goal: %s\n\n", goalDescription))
	b.WriteString(fmt.Sprintf("%d tasks have been completed.\n\n", len(completed)))
	b.WriteString(`Respond with a single JSON object: {"result": "completed"|"incomplete"|"ambiguous", "reasoning": "<why>"}.`)
	return b.String()
}

// BuildHelperPrompt assembles Stage 3's verification-command synthesis prompt.
func BuildHelperPrompt(failedCriteria []string, responseExcerpt, fileTreeSummary string) string {
	var b strings.Builder
	b.WriteString("You are a verification assistant. Given a set of unresolved acceptance criteria, an excerpt of the agent's response, and a summary of the project's file tree, decide whether the work is valid or propose read-only shell commands to verify it.\n\n")
	b.WriteString("Unresolved criteria:\n")
	for _, c := range failedCriteria {
		b.WriteString(fmt.Sprintf("- %s\n", c))
	}
	b.WriteString(fmt.Sprintf("\nAgent response excerpt:\n%s\n\n", responseExcerpt))
	b.WriteString(fmt.Sprintf("File tree summary:\n%s\n\n", fileTreeSummary))
	b.WriteString(`Respond with a single JSON object: {"isValid": bool, "verificationCommands": string[], "reasoning": "<why>"}. Commands must be read-only.`)
	return b.String()
}
