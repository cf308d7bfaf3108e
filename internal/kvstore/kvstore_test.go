package kvstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &RedisStore{client: client}
}

func TestRedisStoreGetSetDel(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if got, err := s.Get(ctx, "missing"); err != nil || got != nil {
		t.Fatalf("Get(missing) = (%v, %v), want (nil, nil)", got, err)
	}

	if err := s.Set(ctx, "k", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Fatalf("Get() = %q, want {\"a\":1}", got)
	}

	if err := s.Del(ctx, "k"); err != nil {
		t.Fatalf("Del() error = %v", err)
	}
	if got, err := s.Get(ctx, "k"); err != nil || got != nil {
		t.Fatalf("Get() after Del = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestRedisStoreListFIFO(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.LPush(ctx, "tasks", []byte("t1")); err != nil {
		t.Fatalf("LPush(t1) error = %v", err)
	}
	if err := s.LPush(ctx, "tasks", []byte("t2")); err != nil {
		t.Fatalf("LPush(t2) error = %v", err)
	}

	n, err := s.LLen(ctx, "tasks")
	if err != nil {
		t.Fatalf("LLen() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("LLen() = %d, want 2", n)
	}

	first, err := s.RPop(ctx, "tasks")
	if err != nil {
		t.Fatalf("RPop() error = %v", err)
	}
	if string(first) != "t1" {
		t.Fatalf("RPop() = %q, want t1 (FIFO: first pushed, first popped)", first)
	}

	second, err := s.RPop(ctx, "tasks")
	if err != nil || string(second) != "t2" {
		t.Fatalf("RPop() = (%q, %v), want (t2, nil)", second, err)
	}

	if empty, err := s.RPop(ctx, "tasks"); err != nil || empty != nil {
		t.Fatalf("RPop() on empty list = (%v, %v), want (nil, nil)", empty, err)
	}
}

func TestRedisStoreLRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, v := range []string{"a", "b", "c"} {
		if err := s.LPush(ctx, "l", []byte(v)); err != nil {
			t.Fatalf("LPush(%s) error = %v", v, err)
		}
	}

	all, err := s.LRange(ctx, "l", 0, -1)
	if err != nil {
		t.Fatalf("LRange() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("LRange() returned %d items, want 3", len(all))
	}
}
