// Package retry decides what happens to a task after a failed attempt:
// retry counting, repeated-error detection, and the resource-exhausted
// backoff sequence. It mutates only the per-task TaskProgress entry;
// the control loop is responsible for persisting state afterward.
package retry

import (
	"time"

	"github.com/kadirpekel/supervisor/internal/state"
)

// backoffSequence is the resource-exhausted retry ladder; after the
// last stage the loop halts permanently.
var backoffSequence = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	20 * time.Minute,
	1 * time.Hour,
	2 * time.Hour,
}

// repeatedErrorThreshold is how many consecutive identical errors block a task immediately.
const repeatedErrorThreshold = 3

// Decision tells the control loop what to do after a failed validation.
type Decision string

const (
	DecisionRetry            Decision = "retry"
	DecisionFinalInterrogate Decision = "final_interrogate"
	DecisionBlock            Decision = "block"
	DecisionBackoff          Decision = "backoff"
	DecisionHaltExhausted    Decision = "halt_resource_exhausted"
)

// OnValidationFailure advances a task's retry bookkeeping after a
// failed validation attempt (the control loop also routes ambiguity and
// provider exec failures through it) and returns what the control loop
// should do next.
func OnValidationFailure(progress state.TaskProgress, errMsg string, maxRetries int) (state.TaskProgress, Decision) {
	if progress.LastError != "" && progress.LastError == errMsg {
		progress.RepeatedErrorCount++
	} else {
		progress.RepeatedErrorCount = 1
	}
	progress.LastError = errMsg

	if progress.RepeatedErrorCount >= repeatedErrorThreshold {
		return progress, DecisionBlock
	}

	progress.RetryCount++
	if progress.RetryCount > maxRetries {
		if !progress.InterrogationDone {
			progress.InterrogationDone = true
			return progress, DecisionFinalInterrogate
		}
		return progress, DecisionBlock
	}
	return progress, DecisionRetry
}

// OnResourceExhausted advances the backoff ladder and returns the
// deadline the control loop must sleep until, or DecisionHaltExhausted
// once the ladder is spent.
func OnResourceExhausted(progress state.TaskProgress, now time.Time) (state.TaskProgress, Decision, time.Time) {
	if progress.BackoffStage >= len(backoffSequence) {
		return progress, DecisionHaltExhausted, time.Time{}
	}
	delay := backoffSequence[progress.BackoffStage]
	progress.BackoffStage++
	progress.ResourceExhaustedAt = now
	progress.BackoffUntil = now.Add(delay)
	return progress, DecisionBackoff, progress.BackoffUntil
}

// BackoffElapsed reports whether a pending backoff deadline has passed.
func BackoffElapsed(progress state.TaskProgress, now time.Time) bool {
	return !progress.BackoffUntil.IsZero() && !now.Before(progress.BackoffUntil)
}
