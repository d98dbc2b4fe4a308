package models

import (
	"fmt"
	"time"
)

// MessageType identifies the kind of message carried on the bus.
type MessageType string

const (
	// MessageExecuteTask dispatches one execution step to a worker.
	MessageExecuteTask MessageType = "execute_task"
	// MessageTaskStepComplete reports a worker's step outcome back to the core.
	MessageTaskStepComplete MessageType = "task_step_complete"
	// MessageTaskRegistered announces a newly registered task.
	MessageTaskRegistered MessageType = "task_registered"
	// MessageTaskStateChanged announces a task state transition.
	MessageTaskStateChanged MessageType = "task_state_changed"
	// MessageTaskComplete announces terminal success of a task.
	MessageTaskComplete MessageType = "task_complete"
	// MessageTaskFailed announces terminal failure of a task.
	MessageTaskFailed MessageType = "task_failed"
)

// Payload is the tagged-union contract for message bodies. Each payload kind
// declares the message type it belongs to so the bus can reject mismatches
// before they reach a worker.
type Payload interface {
	// MessageType returns the message type this payload is valid for.
	MessageType() MessageType
}

// Message is the envelope exchanged between the core and workers.
type Message struct {
	// Type is the message kind; it must match the payload's declared type.
	Type MessageType `json:"type"`
	// ID is the unique message identifier.
	ID string `json:"id"`
	// Timestamp is when the message was created.
	Timestamp time.Time `json:"timestamp"`
	// SenderID identifies the publishing component or worker.
	SenderID string `json:"sender_id"`
	// TargetID identifies the intended recipient, if any.
	TargetID string `json:"target_id,omitempty"`
	// Payload is the typed message body.
	Payload Payload `json:"payload"`
}

// Validate checks that the envelope is well-formed and the payload matches
// the declared type.
func (m Message) Validate() error {
	if m.Type == "" {
		return fmt.Errorf("message %s: empty type", m.ID)
	}
	if m.Payload == nil {
		return fmt.Errorf("message %s: nil payload for type %s", m.ID, m.Type)
	}
	if got := m.Payload.MessageType(); got != m.Type {
		return fmt.Errorf("message %s: payload kind %s does not match type %s", m.ID, got, m.Type)
	}
	return nil
}

// ExecuteTaskPayload carries one execution step to a worker.
type ExecuteTaskPayload struct {
	// TaskID is the task being executed.
	TaskID string `json:"task_id"`
	// StepID is the plan step being executed; empty for single-worker tasks.
	StepID string `json:"step_id,omitempty"`
	// Capability is the capability the worker must apply.
	Capability string `json:"capability"`
	// Params holds the step inputs.
	Params map[string]any `json:"params,omitempty"`
}

// MessageType implements Payload.
func (ExecuteTaskPayload) MessageType() MessageType { return MessageExecuteTask }

// TaskStepCompletePayload reports a worker's outcome for one step.
type TaskStepCompletePayload struct {
	// TaskID is the task the step belongs to.
	TaskID string `json:"task_id"`
	// StepID is the completed plan step; empty for single-worker tasks.
	StepID string `json:"step_id,omitempty"`
	// AgentID is the worker reporting the outcome.
	AgentID string `json:"agent_id"`
	// Success indicates whether the step succeeded.
	Success bool `json:"success"`
	// Result is the step result payload on success.
	Result any `json:"result,omitempty"`
	// Error is the failure reason on failure.
	Error string `json:"error,omitempty"`
}

// MessageType implements Payload.
func (TaskStepCompletePayload) MessageType() MessageType { return MessageTaskStepComplete }

// TaskRegisteredPayload announces a newly registered task.
type TaskRegisteredPayload struct {
	// Task is the sanitized task record.
	Task *Task `json:"task"`
}

// MessageType implements Payload.
func (TaskRegisteredPayload) MessageType() MessageType { return MessageTaskRegistered }

// TaskStateChangedPayload announces a state transition.
type TaskStateChangedPayload struct {
	// TaskID is the transitioned task.
	TaskID string `json:"task_id"`
	// OldState is the state before the transition.
	OldState TaskState `json:"old_state"`
	// NewState is the state after the transition.
	NewState TaskState `json:"new_state"`
	// Task is the sanitized task record after the transition.
	Task *Task `json:"task"`
}

// MessageType implements Payload.
func (TaskStateChangedPayload) MessageType() MessageType { return MessageTaskStateChanged }

// TaskCompletePayload announces terminal success.
type TaskCompletePayload struct {
	// TaskID is the completed task.
	TaskID string `json:"task_id"`
	// Result is the task result payload.
	Result any `json:"result,omitempty"`
}

// MessageType implements Payload.
func (TaskCompletePayload) MessageType() MessageType { return MessageTaskComplete }

// TaskFailedPayload announces terminal failure.
type TaskFailedPayload struct {
	// TaskID is the failed task.
	TaskID string `json:"task_id"`
	// Reason is the human-readable failure reason.
	Reason string `json:"reason"`
}

// MessageType implements Payload.
func (TaskFailedPayload) MessageType() MessageType { return MessageTaskFailed }
