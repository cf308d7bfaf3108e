package controlloop

import (
	"time"

	"github.com/kadirpekel/supervisor/internal/state"
)

// Finalizer applies the terminal transitions of a task's lifecycle,
// completed or blocked, to the supervisor state.
type Finalizer struct{}

// NewFinalizer returns a Finalizer. It is stateless; all mutation
// happens on the *state.State passed to its methods.
func NewFinalizer() *Finalizer {
	return &Finalizer{}
}

// Complete records task as permanently completed: appends a
// CompletedTask, clears current_task and its scratchpad progress.
func (f *Finalizer) Complete(s *state.State, task state.Task, report state.ValidationReport) state.CompletedTask {
	ct := state.CompletedTask{
		TaskID:           task.TaskID,
		CompletedAt:      time.Now(),
		ValidationReport: report,
		Iteration:        s.Iteration,
	}
	s.CompletedTasks = append(s.CompletedTasks, ct)
	s.CurrentTask = nil
	s.ClearProgress(task.TaskID)
	s.LastValidationReport = &report
	return ct
}

// Block records task as permanently blocked with reason and the
// validation report/last error that led to it, clearing current_task
// and its scratchpad progress. Blocked tasks are never auto-revived.
func (f *Finalizer) Block(s *state.State, task state.Task, reason, lastError string, report state.ValidationReport) state.BlockedTask {
	bt := state.BlockedTask{
		Task:             task,
		Reason:           reason,
		BlockedAt:        time.Now(),
		LastError:        lastError,
		ValidationReport: report,
	}
	s.BlockedTasks = append(s.BlockedTasks, bt)
	s.CurrentTask = nil
	s.ClearProgress(task.TaskID)
	s.LastValidationReport = &report
	return bt
}
