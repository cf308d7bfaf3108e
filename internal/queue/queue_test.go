package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/kadirpekel/supervisor/internal/kvstore"
	"github.com/kadirpekel/supervisor/internal/state"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(kvstore.NewRedisStoreFromClient(client), "tasks")
}

func TestQueueFIFOOrder(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	if err := q.EnqueueAll(ctx, []state.Task{
		{TaskID: "t1"}, {TaskID: "t2"}, {TaskID: "t3"},
	}); err != nil {
		t.Fatalf("EnqueueAll() error = %v", err)
	}

	n, err := q.Len(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Len() = (%d, %v), want (3, nil)", n, err)
	}

	for _, want := range []string{"t1", "t2", "t3"} {
		task, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if task == nil || task.TaskID != want {
			t.Fatalf("Pop() = %+v, want task_id %s", task, want)
		}
	}

	empty, err := q.Pop(ctx)
	if err != nil || empty != nil {
		t.Fatalf("Pop() on empty queue = (%v, %v), want (nil, nil)", empty, err)
	}
}

func TestQueuePeekDoesNotRemove(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	if err := q.EnqueueAll(ctx, []state.Task{{TaskID: "a"}, {TaskID: "b"}}); err != nil {
		t.Fatalf("EnqueueAll() error = %v", err)
	}

	peeked, err := q.Peek(ctx, 10)
	if err != nil {
		t.Fatalf("Peek() error = %v", err)
	}
	if len(peeked) != 2 || peeked[0].TaskID != "a" || peeked[1].TaskID != "b" {
		t.Fatalf("Peek() = %+v, want [a, b]", peeked)
	}

	n, err := q.Len(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Len() after Peek = (%d, %v), want (2, nil)", n, err)
	}
}
