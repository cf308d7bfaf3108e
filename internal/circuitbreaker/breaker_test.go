package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kadirpekel/supervisor/internal/kvstore"
	"github.com/redis/go-redis/v9"
)

func newTestBreaker(t *testing.T, ttl time.Duration) *Breaker {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(kvstore.NewRedisStoreFromClient(client), ttl)
}

func TestAuthTripsImmediately(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(t, time.Hour)

	if err := b.RecordFailure(ctx, "claude", ErrorAuth); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}
	open, err := b.IsOpen(ctx, "claude")
	if err != nil {
		t.Fatalf("IsOpen() error = %v", err)
	}
	if !open {
		t.Fatal("IsOpen() = false, want true after single AUTH failure")
	}
}

func TestUnknownRequiresThreeConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(t, time.Hour)

	for i := 0; i < 2; i++ {
		if err := b.RecordFailure(ctx, "codex", ErrorUnknown); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}
	open, err := b.IsOpen(ctx, "codex")
	if err != nil {
		t.Fatalf("IsOpen() error = %v", err)
	}
	if open {
		t.Fatal("IsOpen() = true after only 2 UNKNOWN failures, want false")
	}

	if err := b.RecordFailure(ctx, "codex", ErrorUnknown); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}
	open, err = b.IsOpen(ctx, "codex")
	if err != nil {
		t.Fatalf("IsOpen() error = %v", err)
	}
	if !open {
		t.Fatal("IsOpen() = false after 3 consecutive UNKNOWN failures, want true")
	}
}

func TestResourceExhaustedDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(t, time.Hour)

	for i := 0; i < 5; i++ {
		if err := b.RecordFailure(ctx, "gemini", ErrorResourceExhausted); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}
	open, err := b.IsOpen(ctx, "gemini")
	if err != nil {
		t.Fatalf("IsOpen() error = %v", err)
	}
	if open {
		t.Fatal("IsOpen() = true for RESOURCE_EXHAUSTED, want false (handled by backoff, not breaker)")
	}
}

func TestExpiredRecordIsPurged(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(t, -time.Second) // already expired

	if err := b.RecordFailure(ctx, "claude", ErrorAuth); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}
	open, err := b.IsOpen(ctx, "claude")
	if err != nil {
		t.Fatalf("IsOpen() error = %v", err)
	}
	if open {
		t.Fatal("IsOpen() = true for already-expired record, want false (purged on read)")
	}
}

func TestSelectProviderSkipsOpenBreakers(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(t, time.Hour)

	if err := b.RecordFailure(ctx, "gemini", ErrorAuth); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}

	selected, err := b.SelectProvider(ctx, []string{"gemini", "copilot", "claude"})
	if err != nil {
		t.Fatalf("SelectProvider() error = %v", err)
	}
	if selected != "copilot" {
		t.Fatalf("SelectProvider() = %q, want copilot (gemini is broken)", selected)
	}
}

func TestSelectProviderNoneEligible(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(t, time.Hour)

	for _, p := range []string{"gemini", "copilot"} {
		if err := b.RecordFailure(ctx, p, ErrorAuth); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}
	selected, err := b.SelectProvider(ctx, []string{"gemini", "copilot"})
	if err != nil {
		t.Fatalf("SelectProvider() error = %v", err)
	}
	if selected != "" {
		t.Fatalf("SelectProvider() = %q, want empty (no eligible provider)", selected)
	}
}
