// Package session resolves which session_id a dispatch should reuse
// for a given (provider, feature_id) pair: sessions outlive individual
// tasks and are discarded once they exceed the provider's error or
// token budget.
package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/kadirpekel/supervisor/internal/state"
)

const (
	// maxErrorCount is the error budget before a session is discarded.
	maxErrorCount = 5

	// fallbackContextLimit caps sessions of providers with no entry in
	// defaultContextLimits.
	fallbackContextLimit = 128_000
)

// defaultContextLimits is the per-provider token budget a session may
// accumulate before the resolver stops reusing it and the next
// dispatch opens a fresh one. Values track each provider's advertised
// context window.
var defaultContextLimits = map[string]int{
	"gemini":      1_000_000,
	"claude":      200_000,
	"codex":       200_000,
	"copilot":     128_000,
	"cursor":      128_000,
	"ollama":      32_000,
	"gemini_stub": 1_000_000,
}

// ContextLimitFor returns the token budget for one provider's sessions.
func ContextLimitFor(provider string) int {
	if limit, ok := defaultContextLimits[provider]; ok {
		return limit
	}
	return fallbackContextLimit
}

// Resolver maps (provider, feature_id) to a reusable session_id.
type Resolver struct {
	disableReuse bool
}

// New returns a Resolver. When disableReuse is set (DISABLE_SESSION_REUSE),
// Resolve always reports no reusable session.
func New(disableReuse bool) *Resolver {
	return &Resolver{disableReuse: disableReuse}
}

// Resolve looks up sessions[featureID] and returns its session_id if it
// still passes the context-limit and error-count policy, or "" if a
// fresh session should be created.
func (r *Resolver) Resolve(sessions map[string]state.SessionInfo, provider, featureID string) string {
	if r.disableReuse {
		return ""
	}
	info, ok := sessions[featureID]
	if !ok {
		return ""
	}
	if info.Provider != provider {
		return ""
	}
	if info.ErrorCount >= maxErrorCount {
		return ""
	}
	if info.ContextLimit > 0 && info.TotalTokens >= info.ContextLimit {
		return ""
	}
	return info.SessionID
}

// Touch records that sessionID was just used for (provider, featureID),
// creating the entry if absent and incrementing its usage.
func Touch(sessions map[string]state.SessionInfo, provider, featureID, sessionID string, tokensUsed int) map[string]state.SessionInfo {
	if sessions == nil {
		sessions = make(map[string]state.SessionInfo)
	}
	info, existed := sessions[featureID]
	if !existed || info.SessionID != sessionID {
		info = state.SessionInfo{
			SessionID:    sessionID,
			Provider:     provider,
			FeatureID:    featureID,
			ContextLimit: ContextLimitFor(provider),
		}
	}
	if info.ContextLimit == 0 {
		// Entries persisted before context limits were tracked.
		info.ContextLimit = ContextLimitFor(provider)
	}
	info.LastUsed = time.Now()
	info.TotalTokens += tokensUsed
	sessions[featureID] = info
	return sessions
}

// RecordError increments the session's error count after a failed dispatch.
func RecordError(sessions map[string]state.SessionInfo, featureID string) {
	if info, ok := sessions[featureID]; ok {
		info.ErrorCount++
		sessions[featureID] = info
	}
}

// FeatureID derives the session-partitioning key for a task: the
// task's own meta.feature if set, else a deterministic project-scoped
// default so unrelated projects never collide on a bare prefix.
func FeatureID(task state.Task, projectID string) string {
	if task.Meta.Feature != "" {
		return task.Meta.Feature
	}
	return "project:" + projectID
}

// HelperFeatureID returns the dedicated per-project helper session key
// used by the Stage 3 helper agent, distinct from any task's own feature.
func HelperFeatureID(projectID string) string {
	return "helper:validation:" + projectID
}

// NewSessionID mints a new opaque session identifier for providers that
// don't issue their own.
func NewSessionID() string {
	return uuid.NewString()
}
