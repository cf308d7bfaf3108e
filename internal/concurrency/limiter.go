// Package concurrency implements the global concurrent-command cap:
// I/O-bound subtasks within one control loop iteration (N verification
// commands, N ensemble validators) may run concurrently, but never
// more than a fixed number at once.
package concurrency

import "context"

// Limiter bounds how many callers may hold a slot simultaneously.
type Limiter struct {
	sem chan struct{}
}

// NewLimiter returns a Limiter allowing at most n concurrent holders.
// n <= 0 is treated as 1.
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		n = 1
	}
	return &Limiter{sem: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot acquired by Acquire.
func (l *Limiter) Release() {
	<-l.sem
}

// Run executes fns concurrently, each bounded by l's cap, and returns
// their results in the same order as fns. If ctx is cancelled before a
// fn acquires its slot, that slot's result is the zero value of T and
// err is ctx.Err().
func Run[T any](ctx context.Context, l *Limiter, fns []func(context.Context) (T, error)) ([]T, []error) {
	results := make([]T, len(fns))
	errs := make([]error, len(fns))

	done := make(chan struct{}, len(fns))
	for i, fn := range fns {
		i, fn := i, fn
		go func() {
			defer func() { done <- struct{}{} }()
			if err := l.Acquire(ctx); err != nil {
				errs[i] = err
				return
			}
			defer l.Release()
			results[i], errs[i] = fn(ctx)
		}()
	}
	for range fns {
		<-done
	}
	return results, errs
}
