// Package controlloop implements the supervisor's top-level state
// machine: it sequences the Task Retriever, Goal Completion Checker,
// Task Finalizer, and every leaf component (provider dispatch, halt
// detection, validation, retry) into one restart-safe loop.
package controlloop

import (
	"context"

	"github.com/kadirpekel/supervisor/internal/queue"
	"github.com/kadirpekel/supervisor/internal/state"
)

// Source names where a retrieved task came from.
type Source string

const (
	SourceCurrentTaskRecovery Source = "current_task_recovery"
	SourceRetryTask           Source = "retry_task"
	SourceQueue               Source = "queue"
	SourceNone                Source = "none"
)

// Retrieved is the Task Retriever's verdict for one iteration.
type Retrieved struct {
	Task           *state.Task
	Source         Source
	QueueExhausted bool
}

// Retriever resolves the next unit of work: current_task recovery
// takes priority (crash recovery), then a pending retry, then a fresh
// queue pop. It guarantees at most one task in flight and that no task
// is silently dropped across restarts.
type Retriever struct {
	queue *queue.Queue
}

// NewRetriever binds a Retriever to the task queue.
func NewRetriever(q *queue.Queue) *Retriever {
	return &Retriever{queue: q}
}

// Retrieve returns the task the control loop must work on this
// iteration.
func (r *Retriever) Retrieve(ctx context.Context, s *state.State) (Retrieved, error) {
	// current_task persists across every retry of the same task (the
	// control loop clears it only on completion or blocking), so crash
	// recovery and mid-retry recovery are the same case: a separate
	// retry-pending signal degenerates into this branch. A set
	// TaskProgress.RetryTaskPending also marks the task as a retry,
	// though nothing in the control loop sets it.
	if s.CurrentTask != nil {
		source := SourceCurrentTaskRecovery
		if p := s.ProgressFor(s.CurrentTask.TaskID); p.RetryCount > 0 || p.RetryTaskPending {
			source = SourceRetryTask
		}
		return Retrieved{Task: s.CurrentTask, Source: source}, nil
	}

	task, err := r.queue.Pop(ctx)
	if err != nil {
		return Retrieved{}, err
	}
	if task == nil {
		return Retrieved{Source: SourceNone, QueueExhausted: true}, nil
	}
	return Retrieved{Task: task, Source: SourceQueue}, nil
}
