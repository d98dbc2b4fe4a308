package models

import "time"

// TaskState represents the lifecycle state of a task.
type TaskState string

const (
	// TaskStateNew indicates the task was just registered.
	TaskStateNew TaskState = "new"
	// TaskStateAnalyzing indicates the task is being classified.
	TaskStateAnalyzing TaskState = "analyzing"
	// TaskStateApproved indicates the task passed classification and requirement building.
	TaskStateApproved TaskState = "approved"
	// TaskStateQueued indicates the task is waiting in a priority queue.
	TaskStateQueued TaskState = "queued"
	// TaskStateRunning indicates the task has been dispatched to a worker.
	TaskStateRunning TaskState = "running"
	// TaskStateAwaitingSign indicates the task finished execution and waits for
	// an external approval step.
	TaskStateAwaitingSign TaskState = "awaiting_sign"
	// TaskStateConfirming indicates an approved task is being finalized.
	TaskStateConfirming TaskState = "confirming"
	// TaskStateCompleted indicates the task completed successfully.
	TaskStateCompleted TaskState = "completed"
	// TaskStateFailed indicates the task failed terminally.
	TaskStateFailed TaskState = "failed"
	// TaskStateCancelled indicates the task was cancelled by an external signal.
	TaskStateCancelled TaskState = "cancelled"
)

// Valid returns true if the state is a known value.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateNew, TaskStateAnalyzing, TaskStateApproved, TaskStateQueued,
		TaskStateRunning, TaskStateAwaitingSign, TaskStateConfirming,
		TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are allowed from this state.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
		return true
	default:
		return false
	}
}

// Priority represents the scheduling priority of a task.
type Priority string

const (
	// PriorityHigh tasks are always dispatched before medium and low.
	PriorityHigh Priority = "high"
	// PriorityMedium tasks are dispatched after high and before low.
	PriorityMedium Priority = "medium"
	// PriorityLow tasks are dispatched last.
	PriorityLow Priority = "low"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Task represents a unit of requested work in the system.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Owner identifies who requested the task.
	Owner string `json:"owner"`
	// Description is the free-text description of the work.
	Description string `json:"description"`
	// Category is the task type, used for capability derivation and duration history.
	Category string `json:"category"`
	// Priority determines which scheduling queue the task enters.
	Priority Priority `json:"priority"`
	// State is the current lifecycle state.
	State TaskState `json:"state"`
	// Capabilities lists the capability names required to execute the task.
	Capabilities []string `json:"capabilities,omitempty"`
	// Params holds structured task parameters passed through to workers.
	Params map[string]any `json:"params,omitempty"`
	// Result contains the result payload, present only when completed.
	Result any `json:"result,omitempty"`
	// Error contains the failure reason, present only when failed.
	Error string `json:"error,omitempty"`
	// RetryCount is the number of failed attempts so far.
	RetryCount int `json:"retry_count"`
	// MaxRetries bounds RetryCount before the task is forced to failed.
	MaxRetries int `json:"max_retries"`
	// RequiresSignOff marks tasks that need an external approval step
	// (awaiting_sign/confirming) before completion.
	RequiresSignOff bool `json:"requires_sign_off,omitempty"`
	// CreatedAt is when the task was registered.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task was last mutated.
	UpdatedAt time.Time `json:"updated_at"`
	// StartedAt is when the task entered running, if it has.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a copy of the task safe to hand to callers.
// Params are shallow-copied; workers must treat them as read-only.
func (t *Task) Clone() *Task {
	c := *t
	if t.Params != nil {
		c.Params = make(map[string]any, len(t.Params))
		for k, v := range t.Params {
			c.Params[k] = v
		}
	}
	c.Capabilities = append([]string(nil), t.Capabilities...)
	return &c
}
