package state

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/kadirpekel/supervisor/internal/errors"
	"github.com/kadirpekel/supervisor/internal/kvstore"
)

// Manager is the exclusive owner of the state blob. Every read or
// write of supervisor state goes through it so persistence stays a
// single atomic replace.
type Manager struct {
	store    kvstore.Store
	stateKey string
}

// NewManager binds a Manager to the given store and state key.
func NewManager(store kvstore.Store, stateKey string) *Manager {
	return &Manager{store: store, stateKey: stateKey}
}

// Load returns the last fully persisted state, or a KindInvariantViolation
// error if no state has ever been written (NotInitialized).
func (m *Manager) Load(ctx context.Context) (*State, error) {
	raw, err := m.store.Get(ctx, m.stateKey)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindTransientIO, "load state")
	}
	if raw == nil {
		return nil, apperrors.New(apperrors.KindInvariantViolation, "state not initialized").
			WithDetails("run init-state before start")
	}

	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInvariantViolation, "state blob is not valid JSON")
	}
	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Persist atomically replaces the stored state blob with s.
func (m *Manager) Persist(ctx context.Context, s *State) error {
	if err := Validate(s); err != nil {
		return err
	}
	s.LastUpdated = time.Now()

	raw, err := json.Marshal(s)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindInvariantViolation, "failed to marshal state")
	}
	if err := m.store.Set(ctx, m.stateKey, raw); err != nil {
		return apperrors.Wrap(err, apperrors.KindTransientIO, "persist state")
	}
	return nil
}

// Init writes a brand-new state blob, failing if one already exists.
func (m *Manager) Init(ctx context.Context, s *State) error {
	existing, err := m.store.Get(ctx, m.stateKey)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindTransientIO, "check existing state")
	}
	if existing != nil {
		return apperrors.New(apperrors.KindInvariantViolation, "state already initialized")
	}
	return m.Persist(ctx, s)
}

// Validate fails with KindInvariantViolation if s is missing required
// fields or carries an unknown status.
func Validate(s *State) error {
	if s == nil {
		return apperrors.New(apperrors.KindInvariantViolation, "state is nil")
	}
	switch s.Status {
	case StatusRunning, StatusHalted, StatusBlocked, StatusCompleted:
	default:
		return apperrors.Newf(apperrors.KindInvariantViolation, "unknown status %q", s.Status)
	}
	if s.Goal.ProjectID == "" {
		return apperrors.New(apperrors.KindInvariantViolation, "goal.project_id is required")
	}
	seen := make(map[string]bool, len(s.CompletedTasks)+len(s.BlockedTasks))
	for _, t := range s.CompletedTasks {
		if t.TaskID == "" {
			return apperrors.New(apperrors.KindInvariantViolation, "completed task missing task_id")
		}
		if seen[t.TaskID] {
			return apperrors.Newf(apperrors.KindInvariantViolation, "duplicate task_id %q across completed/blocked tasks", t.TaskID)
		}
		seen[t.TaskID] = true
	}
	for _, b := range s.BlockedTasks {
		if b.Task.TaskID == "" {
			return apperrors.New(apperrors.KindInvariantViolation, "blocked task missing task_id")
		}
		if seen[b.Task.TaskID] {
			return apperrors.Newf(apperrors.KindInvariantViolation, "duplicate task_id %q across completed/blocked tasks", b.Task.TaskID)
		}
		seen[b.Task.TaskID] = true
	}
	return nil
}

// DeepCopy returns an independent copy of s via JSON round-trip, which
// is sufficient since State holds only JSON-serializable values.
func DeepCopy(s *State) (*State, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInvariantViolation, "deep copy marshal")
	}
	var out State
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInvariantViolation, "deep copy unmarshal")
	}
	return &out, nil
}
