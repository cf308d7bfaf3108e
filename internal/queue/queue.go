// Package queue implements the task queue: an LPUSH/RPOP FIFO on top of
// the KV+List port, with crash-safe dequeue (the caller is responsible
// for stashing a popped task into state.current_task before acting on
// it, so a mid-processing crash recovers via current_task rather than
// losing the pop).
package queue

import (
	"context"
	"encoding/json"

	apperrors "github.com/kadirpekel/supervisor/internal/errors"
	"github.com/kadirpekel/supervisor/internal/kvstore"
	"github.com/kadirpekel/supervisor/internal/state"
)

// Queue is the FIFO of pending tasks.
type Queue struct {
	store kvstore.Store
	name  string
}

// New binds a Queue to the given store and list key.
func New(store kvstore.Store, name string) *Queue {
	return &Queue{store: store, name: name}
}

// Enqueue appends task to the tail of the queue (LPUSH; RPOP drains in
// the order pushed).
func (q *Queue) Enqueue(ctx context.Context, task state.Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindInvariantViolation, "marshal task")
	}
	if err := q.store.LPush(ctx, q.name, raw); err != nil {
		return apperrors.Wrap(err, apperrors.KindTransientIO, "enqueue task")
	}
	return nil
}

// EnqueueAll enqueues tasks in order, preserving FIFO across the batch.
func (q *Queue) EnqueueAll(ctx context.Context, tasks []state.Task) error {
	for _, t := range tasks {
		if err := q.Enqueue(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Pop removes and returns the oldest task, or (nil, nil) if the queue
// is empty.
func (q *Queue) Pop(ctx context.Context) (*state.Task, error) {
	raw, err := q.store.RPop(ctx, q.name)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindTransientIO, "pop task")
	}
	if raw == nil {
		return nil, nil
	}
	var t state.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInvariantViolation, "unmarshal popped task")
	}
	return &t, nil
}

// Len returns the number of pending tasks.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.store.LLen(ctx, q.name)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindTransientIO, "queue length")
	}
	return n, nil
}

// Peek returns up to limit pending tasks without removing them, oldest
// first, for status reporting.
func (q *Queue) Peek(ctx context.Context, limit int64) ([]state.Task, error) {
	raw, err := q.store.LRange(ctx, q.name, -limit, -1)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindTransientIO, "peek queue")
	}
	tasks := make([]state.Task, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var t state.Task
		if err := json.Unmarshal(raw[i], &t); err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindInvariantViolation, "unmarshal peeked task")
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
