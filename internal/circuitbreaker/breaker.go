// Package circuitbreaker implements the per-provider TTL-based failure
// latch: a provider with an unexpired breaker record is
// ineligible for selection. Consecutive-UNKNOWN-error counting (the
// "≥3 consecutive trips the breaker" rule) is delegated to an
// in-memory gobreaker.CircuitBreaker per provider; AUTH and RATE_LIMIT
// classifications trip the persisted record immediately, on the first
// occurrence.
package circuitbreaker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/kadirpekel/supervisor/internal/errors"
	"github.com/kadirpekel/supervisor/internal/kvstore"
	"github.com/sony/gobreaker"
)

// ErrorClass is the classifier's verdict on a provider failure.
type ErrorClass string

const (
	ErrorAuth              ErrorClass = "AUTH"
	ErrorRateLimit         ErrorClass = "RATE_LIMIT"
	ErrorResourceExhausted ErrorClass = "RESOURCE_EXHAUSTED"
	ErrorInvalidModel      ErrorClass = "INVALID_MODEL"
	ErrorUnknown           ErrorClass = "UNKNOWN"
)

// tripsImmediately reports whether a class breaks the provider on first occurrence.
func (c ErrorClass) tripsImmediately() bool {
	return c == ErrorAuth || c == ErrorRateLimit
}

// Record is the persisted breaker state for one provider.
type Record struct {
	Provider    string     `json:"provider"`
	TriggeredAt time.Time  `json:"triggered_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ErrorType   ErrorClass `json:"error_type"`
}

func keyFor(provider string) string {
	return fmt.Sprintf("circuit_breaker:%s", provider)
}

// Breaker owns every provider's circuit-breaker record.
type Breaker struct {
	store kvstore.Store
	ttl   time.Duration

	mu       sync.Mutex
	counters map[string]*gobreaker.CircuitBreaker
}

// New binds a Breaker to store with the given default TTL for tripped records.
func New(store kvstore.Store, ttl time.Duration) *Breaker {
	return &Breaker{
		store:    store,
		ttl:      ttl,
		counters: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (b *Breaker) counterFor(provider string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.counters[provider]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1,
		Timeout:     b.ttl,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	b.counters[provider] = cb
	return cb
}

// RecordFailure classifies one provider failure. For AUTH/RATE_LIMIT it
// trips the persisted record immediately. For UNKNOWN it feeds the
// in-memory consecutive-failure counter and trips the persisted
// record once that counter opens.
func (b *Breaker) RecordFailure(ctx context.Context, provider string, class ErrorClass) error {
	if class.tripsImmediately() {
		return b.trip(ctx, provider, class)
	}
	if class != ErrorUnknown {
		return nil
	}

	cb := b.counterFor(provider)
	_, _ = cb.Execute(func() (interface{}, error) {
		return nil, fmt.Errorf("unknown provider error")
	})
	if cb.State() == gobreaker.StateOpen {
		return b.trip(ctx, provider, class)
	}
	return nil
}

// RecordSuccess resets the in-memory consecutive-failure counter.
func (b *Breaker) RecordSuccess(provider string) {
	cb := b.counterFor(provider)
	_, _ = cb.Execute(func() (interface{}, error) { return nil, nil })
}

func (b *Breaker) trip(ctx context.Context, provider string, class ErrorClass) error {
	now := time.Now()
	rec := Record{
		Provider:    provider,
		TriggeredAt: now,
		ExpiresAt:   now.Add(b.ttl),
		ErrorType:   class,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindInvariantViolation, "marshal breaker record")
	}
	if err := b.store.Set(ctx, keyFor(provider), raw); err != nil {
		return apperrors.Wrap(err, apperrors.KindTransientIO, "persist breaker record")
	}
	return nil
}

// IsOpen reports whether provider currently has an unexpired breaker
// record, purging it first if it has expired.
func (b *Breaker) IsOpen(ctx context.Context, provider string) (bool, error) {
	raw, err := b.store.Get(ctx, keyFor(provider))
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.KindTransientIO, "read breaker record")
	}
	if raw == nil {
		return false, nil
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return false, apperrors.Wrap(err, apperrors.KindInvariantViolation, "unmarshal breaker record")
	}

	if !rec.ExpiresAt.After(time.Now()) {
		if err := b.store.Del(ctx, keyFor(provider)); err != nil {
			return false, apperrors.Wrap(err, apperrors.KindTransientIO, "purge expired breaker record")
		}
		return false, nil
	}
	return true, nil
}

// SelectProvider returns the first provider in priority order with no
// open breaker record, or "" if none are eligible.
func (b *Breaker) SelectProvider(ctx context.Context, priority []string) (string, error) {
	for _, p := range priority {
		open, err := b.IsOpen(ctx, p)
		if err != nil {
			return "", err
		}
		if !open {
			return p, nil
		}
	}
	return "", nil
}
