// Package state owns the supervisor's single persisted state blob: the
// task lifecycle, session table, and per-task scratchpad the control
// loop reads and writes on every iteration.
package state

import "time"

// Status is the top-level run state of the control loop.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusHalted    Status = "HALTED"
	StatusBlocked   Status = "BLOCKED"
	StatusCompleted Status = "COMPLETED"
)

// TaskType classifies how a task is prompted and validated.
type TaskType string

const (
	TaskTypeCoding        TaskType = "coding"
	TaskTypeBehavioral    TaskType = "behavioral"
	TaskTypeConfiguration TaskType = "configuration"
	TaskTypeTesting       TaskType = "testing"
	TaskTypeDocumentation TaskType = "documentation"
)

// TaskStatus is a task's own lifecycle position, independent of Status.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskBlocked    TaskStatus = "blocked"
)

// RetryPolicy bounds how many times a task may be retried before it is blocked.
type RetryPolicy struct {
	MaxRetries int `json:"max_retries"`
}

// TaskMeta carries feature/session hints a task may arrive with.
type TaskMeta struct {
	Feature   string `json:"feature,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Task is one unit of work enqueued by the operator.
type Task struct {
	TaskID             string      `json:"task_id"`
	Intent             string      `json:"intent"`
	TaskType           TaskType    `json:"task_type"`
	Tool               string      `json:"tool,omitempty"`
	AgentMode          string      `json:"agent_mode,omitempty"`
	Instructions       string      `json:"instructions"`
	AcceptanceCriteria []string    `json:"acceptance_criteria"`
	RetryPolicy        RetryPolicy `json:"retry_policy"`
	Status             TaskStatus  `json:"status"`
	WorkingDirectory   string      `json:"working_directory,omitempty"`
	RequiredArtifacts  []string    `json:"required_artifacts,omitempty"`
	TestCommand        string      `json:"test_command,omitempty"`
	TestsRequired      bool        `json:"tests_required,omitempty"`
	Meta               TaskMeta    `json:"meta,omitempty"`
}

// TaskProgress is the structured record of a task's in-flight lifecycle
// bookkeeping, replacing scatter-gun scratchpad keys with one map entry
// per task.
type TaskProgress struct {
	RetryCount          int       `json:"retry_count"`
	LastError           string    `json:"last_error,omitempty"`
	RepeatedErrorCount  int       `json:"repeated_error_count"`
	InterrogationDone   bool      `json:"interrogation_done"`
	InterrogationRounds int       `json:"interrogation_rounds,omitempty"`
	ResourceExhaustedAt time.Time `json:"resource_exhausted_at,omitempty"`
	BackoffStage        int       `json:"backoff_stage,omitempty"`
	BackoffUntil        time.Time `json:"backoff_until,omitempty"`
	RetryTaskPending    bool      `json:"retry_task_pending,omitempty"`
}

// SessionInfo tracks one (provider, feature) conversation's lifecycle.
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	Provider     string    `json:"provider"`
	FeatureID    string    `json:"feature_id"`
	LastUsed     time.Time `json:"last_used"`
	ErrorCount   int       `json:"error_count"`
	TotalTokens  int       `json:"total_tokens,omitempty"`
	ContextLimit int       `json:"context_limit,omitempty"`
}

// Confidence grades how certain a ValidationReport's verdict is.
type Confidence string

const (
	ConfidenceHigh      Confidence = "HIGH"
	ConfidenceMedium    Confidence = "MEDIUM"
	ConfidenceLow       Confidence = "LOW"
	ConfidenceUncertain Confidence = "UNCERTAIN"
)

// ValidationReport is the validation pipeline's verdict for one task attempt.
type ValidationReport struct {
	Valid             bool       `json:"valid"`
	Confidence        Confidence `json:"confidence"`
	Reason            string     `json:"reason"`
	RulesPassed       []string   `json:"rules_passed,omitempty"`
	RulesFailed       []string   `json:"rules_failed,omitempty"`
	FailedCriteria    []string   `json:"failed_criteria,omitempty"`
	UncertainCriteria []string   `json:"uncertain_criteria,omitempty"`
}

// CompletedTask is the permanent record appended when a task passes validation.
type CompletedTask struct {
	TaskID           string           `json:"task_id"`
	CompletedAt      time.Time        `json:"completed_at"`
	ValidationReport ValidationReport `json:"validation_report"`
	Iteration        int              `json:"iteration"`
}

// BlockedTask is the permanent record appended when a task exhausts retries.
type BlockedTask struct {
	Task             Task             `json:"task"`
	Reason           string           `json:"reason"`
	BlockedAt        time.Time        `json:"blocked_at"`
	LastError        string           `json:"last_error,omitempty"`
	ValidationReport ValidationReport `json:"validation_report"`
}

// Goal is the operator-supplied objective the queue works toward.
type Goal struct {
	Description string `json:"description"`
	ProjectID   string `json:"project_id"`
	Completed   bool   `json:"completed"`
}

// QueueMeta tracks whether the task queue has been drained at least once.
type QueueMeta struct {
	Exhausted bool `json:"exhausted"`
}

// State is the single supervisor state blob, persisted atomically under
// one fixed key on every control loop iteration.
type State struct {
	Status        Status    `json:"status"`
	ExecutionMode string    `json:"execution_mode,omitempty"`
	Iteration     int       `json:"iteration"`
	Goal          Goal      `json:"goal"`
	QueueMeta     QueueMeta `json:"queue_meta"`

	CurrentTask *Task `json:"current_task,omitempty"`

	CompletedTasks []CompletedTask `json:"completed_tasks"`
	BlockedTasks   []BlockedTask   `json:"blocked_tasks"`

	LastValidationReport *ValidationReport `json:"last_validation_report,omitempty"`

	ActiveSessions map[string]SessionInfo `json:"active_sessions"`

	// TaskProgress is keyed by task_id; it is the structured replacement
	// for the supervisor's per-task scratchpad keys.
	TaskProgress map[string]TaskProgress `json:"task_progress"`

	HaltReason  string `json:"halt_reason,omitempty"`
	HaltDetails string `json:"halt_details,omitempty"`

	LastUpdated time.Time `json:"last_updated"`
}

// New returns a freshly initialized state for init-state.
func New(goal Goal) *State {
	return &State{
		Status:         StatusRunning,
		Goal:           goal,
		ActiveSessions: make(map[string]SessionInfo),
		TaskProgress:   make(map[string]TaskProgress),
		LastUpdated:    time.Now(),
	}
}

// ProgressFor returns the TaskProgress for taskID, or a zero value if absent.
func (s *State) ProgressFor(taskID string) TaskProgress {
	if s.TaskProgress == nil {
		return TaskProgress{}
	}
	return s.TaskProgress[taskID]
}

// SetProgress stores p under taskID.
func (s *State) SetProgress(taskID string, p TaskProgress) {
	if s.TaskProgress == nil {
		s.TaskProgress = make(map[string]TaskProgress)
	}
	s.TaskProgress[taskID] = p
}

// ClearProgress removes the scratchpad entry for taskID.
func (s *State) ClearProgress(taskID string) {
	delete(s.TaskProgress, taskID)
}

// IsTerminal reports whether a task status will never change again.
func (t TaskStatus) IsTerminal() bool {
	return t == TaskCompleted || t == TaskBlocked
}
