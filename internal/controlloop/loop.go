package controlloop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kadirpekel/supervisor/internal/analytics"
	"github.com/kadirpekel/supervisor/internal/audit"
	"github.com/kadirpekel/supervisor/internal/circuitbreaker"
	apperrors "github.com/kadirpekel/supervisor/internal/errors"
	"github.com/kadirpekel/supervisor/internal/haltdetector"
	"github.com/kadirpekel/supervisor/internal/logging"
	"github.com/kadirpekel/supervisor/internal/prompt"
	"github.com/kadirpekel/supervisor/internal/provider"
	"github.com/kadirpekel/supervisor/internal/queue"
	"github.com/kadirpekel/supervisor/internal/retry"
	"github.com/kadirpekel/supervisor/internal/sandbox"
	"github.com/kadirpekel/supervisor/internal/session"
	"github.com/kadirpekel/supervisor/internal/state"
	"github.com/kadirpekel/supervisor/internal/validator"
)

// Loop is the top-level control-loop state machine: it sequences
// LOADING -> READY -> DISPATCHING -> VALIDATING -> FINALIZING ->
// LOADING, exiting to a halted status on critical halts and pausing
// (without halting) on resource-exhausted backoff.
type Loop struct {
	manager      *state.Manager
	queue        *queue.Queue
	sandbox      *sandbox.Sandbox
	retriever    *Retriever
	dispatcher   *Dispatcher
	sessions     *session.Resolver
	pipeline     *validator.Pipeline
	interrogator *validator.Interrogator
	goalChecker  *GoalChecker
	finalizer    *Finalizer
	auditSink    *audit.Sink
	promptSink   *audit.PromptSink
	metrics      *analytics.Sink
	log          *slog.Logger

	accumulators map[string]*analytics.Accumulator
}

// Deps bundles every collaborator a Loop needs, built once by the CLI
// entrypoint from a Config.
type Deps struct {
	Manager      *state.Manager
	Queue        *queue.Queue
	Sandbox      *sandbox.Sandbox
	Providers    *provider.Registry
	Breaker      *circuitbreaker.Breaker
	Sessions     *session.Resolver
	Pipeline     *validator.Pipeline
	Interrogator *validator.Interrogator
	GoalProvider provider.Provider
	Audit        *audit.Sink
	Prompts      *audit.PromptSink
	Metrics      *analytics.Sink
	Priority     []string
}

// NewLoop wires Deps into a ready-to-run Loop.
func NewLoop(d Deps) *Loop {
	return &Loop{
		manager:      d.Manager,
		queue:        d.Queue,
		sandbox:      d.Sandbox,
		retriever:    NewRetriever(d.Queue),
		dispatcher:   NewDispatcher(d.Providers, d.Breaker, d.Sessions, d.Priority),
		sessions:     d.Sessions,
		pipeline:     d.Pipeline,
		interrogator: d.Interrogator,
		goalChecker:  NewGoalChecker(d.GoalProvider),
		finalizer:    NewFinalizer(),
		auditSink:    d.Audit,
		promptSink:   d.Prompts,
		metrics:      d.Metrics,
		log:          logging.Component("controlloop"),
		accumulators: make(map[string]*analytics.Accumulator),
	}
}

// signal tells Run what to do after one iteration.
type signal struct {
	stop       bool
	sleepUntil time.Time
}

// Run drives iterations until the loop stops (halted, completed, or
// the status was flipped out-of-band by an operator `halt`), honoring
// resource-exhausted backoff by sleeping in 1-second increments so a
// cancelled context or an out-of-band halt is observed promptly.
func (l *Loop) Run(ctx context.Context) error {
	for {
		sig, err := l.RunIteration(ctx)
		if err != nil {
			return err
		}
		if sig.stop {
			return nil
		}
		if !sig.sleepUntil.IsZero() {
			if err := l.sleepUntilOrCancel(ctx, sig.sleepUntil); err != nil {
				return err
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (l *Loop) sleepUntilOrCancel(ctx context.Context, deadline time.Time) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		if !time.Now().Before(deadline) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s, err := l.manager.Load(ctx); err == nil && s.Status != state.StatusRunning {
				return nil
			}
		}
	}
}

// RunIteration executes exactly one LOADING..FINALIZING cycle.
func (l *Loop) RunIteration(ctx context.Context) (signal, error) {
	s, err := l.manager.Load(ctx)
	if err != nil {
		return signal{}, err
	}
	if s.Status != state.StatusRunning {
		return signal{stop: true}, nil
	}
	s.Iteration++

	retrieved, err := l.retriever.Retrieve(ctx, s)
	if err != nil {
		return signal{}, err
	}
	if retrieved.Task == nil {
		return l.handleQueueExhausted(ctx, s)
	}

	task := *retrieved.Task
	task.TaskType = DetectTaskType(task)
	progress := s.ProgressFor(task.TaskID)

	if retrieved.Source == SourceQueue {
		task.Status = state.TaskInProgress
		s.CurrentTask = &task
		if err := l.manager.Persist(ctx, s); err != nil {
			return signal{}, err
		}
		l.auditSink.Append(audit.Entry{TaskID: task.TaskID, Event: "task.retrieved", Type: "queue"})
	}
	if _, tracked := l.accumulators[task.TaskID]; !tracked {
		l.accumulators[task.TaskID] = analytics.New(task.TaskID)
	}

	if !progress.BackoffUntil.IsZero() && !retry.BackoffElapsed(progress, time.Now()) {
		return signal{sleepUntil: progress.BackoffUntil}, nil
	}

	featureID := session.FeatureID(task, s.Goal.ProjectID)
	cwd, err := l.sandbox.Resolve(task.WorkingDirectory)
	if err != nil {
		return signal{}, apperrors.Wrap(err, apperrors.KindInvariantViolation, "resolve sandbox working directory")
	}

	promptText := l.buildPrompt(task, s, progress)
	l.promptSink.Append(audit.PromptLogEntry{TaskID: task.TaskID, Stage: "dispatch", Prompt: promptText})

	outcome, dispatchErr := l.dispatcher.Dispatch(ctx, task, featureID, cwd, promptText, s.ActiveSessions)
	if dispatchErr != nil || outcome.CircuitOpen {
		if dispatchErr != nil {
			// The session's error budget accrues on every failed
			// dispatch; once it hits the cap the resolver stops
			// reusing the session and the next call opens a fresh one.
			session.RecordError(s.ActiveSessions, featureID)
		}
		return l.handleDispatchFailure(ctx, s, task, progress, outcome, dispatchErr)
	}

	s.ActiveSessions = session.Touch(s.ActiveSessions, outcome.ProviderUsed, featureID, outcome.Result.SessionID, usageTokens(outcome.Result))
	l.accumulators[task.TaskID].RecordProviderCall(inputTokens(outcome.Result), outputTokens(outcome.Result))
	l.promptSink.Append(audit.PromptLogEntry{TaskID: task.TaskID, Stage: "dispatch", Response: outcome.Result.RawOutput})

	reason := haltdetector.Detect(haltdetector.Input{
		RawOutput: outcome.Result.RawOutput,
		ExitCode:  outcome.Result.ExitCode,
		Stderr:    outcome.Result.Stderr,
		TaskType:  string(task.TaskType),
	})

	if reason.IsCritical() {
		return l.haltCritical(ctx, s, string(reason), "provider output classified as a critical halt")
	}
	if reason == haltdetector.ReasonResourceExhausted {
		return l.handleResourceExhausted(ctx, s, task, progress)
	}
	if reason == haltdetector.ReasonAmbiguityDetected {
		return l.handleValidationFailure(ctx, s, task, progress, state.ValidationReport{
			Valid: false, Confidence: state.ConfidenceMedium, Reason: "agent response asked a clarifying question",
		}, "ambiguity_detected")
	}
	if reason == haltdetector.ReasonProviderExecFailure {
		return l.handleValidationFailure(ctx, s, task, progress, state.ValidationReport{
			Valid: false, Confidence: state.ConfidenceLow, Reason: "provider exited with a non-zero status",
		}, "provider_exec_failure")
	}

	return l.validate(ctx, s, task, progress, outcome.Result)
}

func (l *Loop) handleQueueExhausted(ctx context.Context, s *state.State) (signal, error) {
	s.QueueMeta.Exhausted = true
	result, reasoning, err := l.goalChecker.Check(ctx, s.Goal, s.CompletedTasks)
	if err != nil {
		return signal{}, err
	}

	if result == GoalCompleted {
		s.Status = state.StatusCompleted
		s.Goal.Completed = true
	} else {
		s.Status = state.StatusHalted
		s.HaltReason = "TASK_LIST_EXHAUSTED_GOAL_INCOMPLETE"
		s.HaltDetails = reasoning
	}
	if err := l.manager.Persist(ctx, s); err != nil {
		return signal{}, err
	}
	l.auditSink.Append(audit.Entry{Event: "goal_check", HaltReason: s.HaltReason, Metadata: map[string]string{"result": string(result)}})
	return signal{stop: true}, nil
}

func (l *Loop) buildPrompt(task state.Task, s *state.State, progress state.TaskProgress) string {
	if progress.RetryCount == 0 && progress.LastError == "" {
		return prompt.Build(task, s.Goal.Description)
	}
	var failedCriteria []string
	var evidence string
	if s.LastValidationReport != nil {
		failedCriteria = s.LastValidationReport.FailedCriteria
		evidence = s.LastValidationReport.Reason
	}
	return prompt.BuildFixPrompt(task, s.Goal.Description, progress.LastError, failedCriteria, evidence)
}

func (l *Loop) handleDispatchFailure(ctx context.Context, s *state.State, task state.Task, progress state.TaskProgress, outcome DispatchOutcome, dispatchErr error) (signal, error) {
	if outcome.CircuitOpen {
		return l.haltCritical(ctx, s, "PROVIDER_CIRCUIT_BROKEN", "no eligible provider remained for this task")
	}
	switch outcome.ErrorClass {
	case circuitbreaker.ErrorResourceExhausted:
		return l.handleResourceExhausted(ctx, s, task, progress)
	case circuitbreaker.ErrorInvalidModel:
		report := state.ValidationReport{Valid: false, Confidence: state.ConfidenceHigh, Reason: "invalid model argument"}
		l.finalizer.Block(s, task, "invalid_model_schema_error", errString(dispatchErr), report)
		if err := l.manager.Persist(ctx, s); err != nil {
			return signal{}, err
		}
		l.auditSink.Append(audit.Entry{TaskID: task.TaskID, Event: "task.blocked", ValidationSummary: "invalid_model_schema_error"})
		l.log.Warn("task blocked", "task_id", task.TaskID, "reason", "invalid_model_schema_error")
		if acc, ok := l.accumulators[task.TaskID]; ok {
			l.metrics.Flush(acc)
			delete(l.accumulators, task.TaskID)
		}
		return signal{}, nil
	default:
		return l.handleValidationFailure(ctx, s, task, progress, state.ValidationReport{
			Valid: false, Confidence: state.ConfidenceLow, Reason: "provider execution failed",
		}, errString(dispatchErr))
	}
}

func (l *Loop) handleResourceExhausted(ctx context.Context, s *state.State, task state.Task, progress state.TaskProgress) (signal, error) {
	progress, decision, deadline := retry.OnResourceExhausted(progress, time.Now())
	s.SetProgress(task.TaskID, progress)

	if decision == retry.DecisionHaltExhausted {
		if err := l.haltState(ctx, s, "RESOURCE_EXHAUSTED_FINAL", "backoff ladder exhausted"); err != nil {
			return signal{}, err
		}
		return signal{stop: true}, nil
	}
	if err := l.manager.Persist(ctx, s); err != nil {
		return signal{}, err
	}
	l.auditSink.Append(audit.Entry{TaskID: task.TaskID, Event: "task.backoff", Metadata: map[string]string{"until": deadline.Format(time.RFC3339)}})
	return signal{sleepUntil: deadline}, nil
}

func (l *Loop) validate(ctx context.Context, s *state.State, task state.Task, progress state.TaskProgress, result *provider.Result) (signal, error) {
	var outcome validator.Outcome
	var err error

	if task.TaskType == state.TaskTypeBehavioral {
		criteria := make([]validator.BehavioralCriterion, 0, len(task.AcceptanceCriteria))
		for _, c := range task.AcceptanceCriteria {
			criteria = append(criteria, validator.DeriveBehavioralCriterion(c))
		}
		outcome = l.pipeline.RunBehavioral(result.RawOutput, criteria)
	} else {
		featureID := session.FeatureID(task, s.Goal.ProjectID)
		helperFeatureID := session.HelperFeatureID(s.Goal.ProjectID)
		helperReq := provider.Request{FeatureID: helperFeatureID}
		interrogateReq := provider.Request{FeatureID: featureID, Prompt: result.RawOutput}
		finalRetryCycle := progress.RetryCount >= task.RetryPolicy.MaxRetries
		outcome, err = l.pipeline.RunNonBehavioral(ctx, task.AcceptanceCriteria, helperReq, interrogateReq, progress.InterrogationRounds, finalRetryCycle)
		if err != nil {
			return signal{}, err
		}
		if outcome.HelperCalled {
			l.accumulators[task.TaskID].RecordHelperCall()
		}
		if outcome.InterrogationRan {
			progress.InterrogationRounds++
			l.accumulators[task.TaskID].RecordInterrogationRound()
		}
	}

	s.LastValidationReport = &outcome.Report
	if outcome.Report.Valid {
		ct := l.finalizer.Complete(s, task, outcome.Report)
		if err := l.manager.Persist(ctx, s); err != nil {
			return signal{}, err
		}
		l.auditSink.Append(audit.Entry{TaskID: task.TaskID, Event: "task.completed", ValidationSummary: outcome.Report.Reason,
			Metadata: map[string]any{"iteration": ct.Iteration}})
		l.log.Info("task completed", "task_id", task.TaskID, "reason", outcome.Report.Reason)
		if acc, ok := l.accumulators[task.TaskID]; ok {
			l.metrics.Flush(acc)
			delete(l.accumulators, task.TaskID)
		}
		return signal{}, nil
	}

	s.SetProgress(task.TaskID, progress)
	return l.handleValidationFailure(ctx, s, task, progress, outcome.Report, errorSignature(outcome.Report))
}

func (l *Loop) handleValidationFailure(ctx context.Context, s *state.State, task state.Task, progress state.TaskProgress, report state.ValidationReport, errMsg string) (signal, error) {
	progress, decision := retry.OnValidationFailure(progress, errMsg, task.RetryPolicy.MaxRetries)
	if acc, ok := l.accumulators[task.TaskID]; ok {
		acc.RecordRetry()
	}

	switch decision {
	case retry.DecisionRetry:
		s.SetProgress(task.TaskID, progress)
		if err := l.manager.Persist(ctx, s); err != nil {
			return signal{}, err
		}
		l.auditSink.Append(audit.Entry{TaskID: task.TaskID, Event: "task.retry", ValidationSummary: report.Reason})
		l.log.Debug("task retry scheduled", "task_id", task.TaskID, "retry_count", progress.RetryCount, "reason", report.Reason)
		return signal{}, nil

	case retry.DecisionFinalInterrogate:
		finalReport := report
		if l.interrogator != nil && len(report.FailedCriteria) > 0 {
			round, err := l.interrogator.Run(ctx, provider.Request{FeatureID: session.FeatureID(task, s.Goal.ProjectID)}, report.FailedCriteria, nil, 1, nil)
			if err == nil {
				finalReport.Reason = fmt.Sprintf("%s; final interrogation resolved %d/%d criteria", report.Reason, len(round.Resolved), len(report.FailedCriteria))
			}
		}
		s.SetProgress(task.TaskID, progress)
		l.finalizer.Block(s, task, "max_retries exceeded after final interrogation", errMsg, finalReport)
		if err := l.manager.Persist(ctx, s); err != nil {
			return signal{}, err
		}
		l.auditSink.Append(audit.Entry{TaskID: task.TaskID, Event: "task.blocked", ValidationSummary: finalReport.Reason})
		l.log.Warn("task blocked", "task_id", task.TaskID, "reason", finalReport.Reason)
		if acc, ok := l.accumulators[task.TaskID]; ok {
			l.metrics.Flush(acc)
			delete(l.accumulators, task.TaskID)
		}
		return signal{}, nil

	default: // DecisionBlock
		reason := "max_retries exceeded after final interrogation"
		if progress.RepeatedErrorCount >= 3 {
			reason = "repeated_identical_error"
		}
		s.SetProgress(task.TaskID, progress)
		l.finalizer.Block(s, task, reason, errMsg, report)
		if err := l.manager.Persist(ctx, s); err != nil {
			return signal{}, err
		}
		l.auditSink.Append(audit.Entry{TaskID: task.TaskID, Event: "task.blocked", ValidationSummary: reason})
		l.log.Warn("task blocked", "task_id", task.TaskID, "reason", reason)
		if acc, ok := l.accumulators[task.TaskID]; ok {
			l.metrics.Flush(acc)
			delete(l.accumulators, task.TaskID)
		}
		return signal{}, nil
	}
}

func (l *Loop) haltCritical(ctx context.Context, s *state.State, reason, details string) (signal, error) {
	if err := l.haltState(ctx, s, reason, details); err != nil {
		return signal{}, err
	}
	return signal{stop: true}, nil
}

func (l *Loop) haltState(ctx context.Context, s *state.State, reason, details string) error {
	s.Status = state.StatusHalted
	s.HaltReason = reason
	s.HaltDetails = details
	if err := l.manager.Persist(ctx, s); err != nil {
		return err
	}
	l.auditSink.Append(audit.Entry{Event: "halt", HaltReason: reason, Metadata: details})
	l.log.Warn("control loop halted", "reason", reason, "details", details)
	return nil
}

// errorSignature collapses a ValidationReport into the string the
// Retry Orchestrator's repeated-error check compares across iterations.
func errorSignature(report state.ValidationReport) string {
	return report.Reason + "|" + strings.Join(report.FailedCriteria, ",")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func usageTokens(r *provider.Result) int {
	if r == nil || r.Usage == nil {
		return 0
	}
	return r.Usage.InputTokens + r.Usage.OutputTokens
}

func inputTokens(r *provider.Result) int {
	if r == nil || r.Usage == nil {
		return 0
	}
	return r.Usage.InputTokens
}

func outputTokens(r *provider.Result) int {
	if r == nil || r.Usage == nil {
		return 0
	}
	return r.Usage.OutputTokens
}
