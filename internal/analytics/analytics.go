// Package analytics aggregates per-task metrics and flushes them to
// the project sandbox's metrics.jsonl, reset after each task
// finalizes.
package analytics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Accumulator collects one in-flight task's metrics before they are
// flushed and reset on finalization.
type Accumulator struct {
	TaskID              string
	StartedAt           time.Time
	ProviderCalls       int
	HelperCalls         int
	InterrogationRounds int
	RetryCount          int
	TotalInputTokens    int
	TotalOutputTokens   int
}

// New starts an accumulator for a newly dispatched task.
func New(taskID string) *Accumulator {
	return &Accumulator{TaskID: taskID, StartedAt: time.Now()}
}

// RecordProviderCall tallies one provider dispatch's token usage.
func (a *Accumulator) RecordProviderCall(inputTokens, outputTokens int) {
	a.ProviderCalls++
	a.TotalInputTokens += inputTokens
	a.TotalOutputTokens += outputTokens
}

// RecordHelperCall tallies one helper-agent verification round.
func (a *Accumulator) RecordHelperCall() {
	a.HelperCalls++
}

// RecordInterrogationRound tallies one interrogation round.
func (a *Accumulator) RecordInterrogationRound() {
	a.InterrogationRounds++
}

// RecordRetry tallies one retry attempt.
func (a *Accumulator) RecordRetry() {
	a.RetryCount++
}

// Snapshot is the JSONL record written per finalized task.
type Snapshot struct {
	TaskID              string    `json:"task_id"`
	StartedAt           time.Time `json:"started_at"`
	CompletedAt         time.Time `json:"completed_at"`
	DurationSeconds     float64   `json:"duration_seconds"`
	ProviderCalls       int       `json:"provider_calls"`
	HelperCalls         int       `json:"helper_calls"`
	InterrogationRounds int       `json:"interrogation_rounds"`
	RetryCount          int       `json:"retry_count"`
	TotalInputTokens    int       `json:"total_input_tokens"`
	TotalOutputTokens   int       `json:"total_output_tokens"`
}

func (a *Accumulator) snapshot(completedAt time.Time) Snapshot {
	return Snapshot{
		TaskID:              a.TaskID,
		StartedAt:           a.StartedAt,
		CompletedAt:         completedAt,
		DurationSeconds:     completedAt.Sub(a.StartedAt).Seconds(),
		ProviderCalls:       a.ProviderCalls,
		HelperCalls:         a.HelperCalls,
		InterrogationRounds: a.InterrogationRounds,
		RetryCount:          a.RetryCount,
		TotalInputTokens:    a.TotalInputTokens,
		TotalOutputTokens:   a.TotalOutputTokens,
	}
}

// Sink appends per-task Snapshots to one project's metrics.jsonl.
type Sink struct {
	path string
}

// NewSink binds a Sink to the metrics log at path; each Flush opens the
// file (creating it if needed) for appending.
func NewSink(path string) *Sink {
	return &Sink{path: path}
}

// Flush appends acc's snapshot to the metrics log; the caller is
// responsible for discarding acc afterward (the "reset analytics
// accumulator" step of Task Finalizer).
func (s *Sink) Flush(acc *Accumulator) error {
	snap := acc.snapshot(time.Now())
	line, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal metrics snapshot: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open metrics log %q: %w", s.path, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append metrics log %q: %w", s.path, err)
	}
	return nil
}

// Summary aggregates every Snapshot in the metrics log, for the
// `metrics` CLI command.
type Summary struct {
	TasksCompleted      int     `json:"tasks_completed"`
	TotalProviderCalls  int     `json:"total_provider_calls"`
	TotalRetries        int     `json:"total_retries"`
	TotalInputTokens    int     `json:"total_input_tokens"`
	TotalOutputTokens   int     `json:"total_output_tokens"`
	AverageDurationSecs float64 `json:"average_duration_seconds"`
}

// ReadSummary loads and aggregates every snapshot in the metrics log at path.
func ReadSummary(path string) (Summary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Summary{}, nil
		}
		return Summary{}, fmt.Errorf("read metrics log %q: %w", path, err)
	}

	var sum Summary
	var totalDuration float64
	decoder := json.NewDecoder(bytes.NewReader(raw))
	for decoder.More() {
		var snap Snapshot
		if err := decoder.Decode(&snap); err != nil {
			return Summary{}, fmt.Errorf("decode metrics snapshot: %w", err)
		}
		sum.TasksCompleted++
		sum.TotalProviderCalls += snap.ProviderCalls
		sum.TotalRetries += snap.RetryCount
		sum.TotalInputTokens += snap.TotalInputTokens
		sum.TotalOutputTokens += snap.TotalOutputTokens
		totalDuration += snap.DurationSeconds
	}
	if sum.TasksCompleted > 0 {
		sum.AverageDurationSecs = totalDuration / float64(sum.TasksCompleted)
	}
	return sum, nil
}
