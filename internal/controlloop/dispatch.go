package controlloop

import (
	"context"

	"github.com/kadirpekel/supervisor/internal/circuitbreaker"
	apperrors "github.com/kadirpekel/supervisor/internal/errors"
	"github.com/kadirpekel/supervisor/internal/provider"
	"github.com/kadirpekel/supervisor/internal/session"
	"github.com/kadirpekel/supervisor/internal/state"
)

// DispatchOutcome is the result of one Dispatcher.Dispatch call.
type DispatchOutcome struct {
	Result       *provider.Result
	ProviderUsed string
	ErrorClass   circuitbreaker.ErrorClass
	CircuitOpen  bool // true when no eligible provider remained
}

// Dispatcher resolves a provider and session for a task, dispatches
// its prompt, and falls back to the next eligible provider within the
// same iteration on AUTH/RATE_LIMIT failures.
type Dispatcher struct {
	providers *provider.Registry
	breaker   *circuitbreaker.Breaker
	sessions  *session.Resolver
	priority  []string
}

// NewDispatcher binds a Dispatcher to its collaborators and the static
// provider priority list (overridable via CLI_PROVIDER_PRIORITY).
func NewDispatcher(providers *provider.Registry, breaker *circuitbreaker.Breaker, sessions *session.Resolver, priority []string) *Dispatcher {
	return &Dispatcher{providers: providers, breaker: breaker, sessions: sessions, priority: priority}
}

// priorityFor narrows the static list to a task's preferred tool, if
// any, then drops any priority entry with no registered provider so
// selectExcluding never burns a breaker lookup on a name nothing backs.
func (d *Dispatcher) priorityFor(task state.Task) []string {
	if task.Tool != "" {
		return d.providers.Filter([]string{task.Tool})
	}
	return d.providers.Filter(d.priority)
}

// Dispatch sends promptText to the first eligible provider for task,
// retrying within this same call against the next eligible provider
// when the failure classifies as AUTH or RATE_LIMIT (both trip the
// breaker immediately). Any other provider-level
// failure is returned to the caller without task-level retry counting.
func (d *Dispatcher) Dispatch(ctx context.Context, task state.Task, featureID, cwd, promptText string, sessions map[string]state.SessionInfo) (DispatchOutcome, error) {
	priority := d.priorityFor(task)
	excluded := make(map[string]bool)

	for {
		providerName, err := d.selectExcluding(ctx, priority, excluded)
		if err != nil {
			return DispatchOutcome{}, err
		}
		if providerName == "" {
			return DispatchOutcome{CircuitOpen: true}, nil
		}

		p, ok := d.providers.Get(providerName)
		if !ok {
			excluded[providerName] = true
			continue
		}

		sessionID := d.sessions.Resolve(sessions, providerName, featureID)
		req := provider.Request{
			Prompt:           promptText,
			Cwd:              cwd,
			AgentMode:        task.AgentMode,
			SessionID:        sessionID,
			FeatureID:        featureID,
			ProviderOverride: providerName,
		}

		result, execErr := p.Execute(ctx, req)
		if execErr == nil {
			d.breaker.RecordSuccess(providerName)
			return DispatchOutcome{Result: result, ProviderUsed: providerName}, nil
		}

		stderr, exitCode := detailsOf(execErr)
		class := circuitbreaker.Classify(stderr, exitCode)
		if recordErr := d.breaker.RecordFailure(ctx, providerName, class); recordErr != nil {
			return DispatchOutcome{}, recordErr
		}

		if class == circuitbreaker.ErrorAuth || class == circuitbreaker.ErrorRateLimit {
			excluded[providerName] = true
			continue
		}
		return DispatchOutcome{ProviderUsed: providerName, ErrorClass: class}, execErr
	}
}

func (d *Dispatcher) selectExcluding(ctx context.Context, priority []string, excluded map[string]bool) (string, error) {
	remaining := make([]string, 0, len(priority))
	for _, p := range priority {
		if !excluded[p] {
			remaining = append(remaining, p)
		}
	}
	return d.breaker.SelectProvider(ctx, remaining)
}

// detailsOf extracts the stderr-equivalent text an apperrors.Error
// carries in Details (or a plain error's message), for classification.
// No dispatch error carries an exit code, so the code is always -1.
func detailsOf(err error) (string, int) {
	var appErr *apperrors.Error
	if e, ok := err.(*apperrors.Error); ok {
		appErr = e
	}
	if appErr == nil {
		return err.Error(), -1
	}
	return appErr.Details, -1
}
