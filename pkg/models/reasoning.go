package models

import "time"

// ChainStepType classifies a reasoning step.
type ChainStepType string

const (
	// StepObservation records what the agent perceives.
	StepObservation ChainStepType = "observation"
	// StepThought records internal deliberation.
	StepThought ChainStepType = "thought"
	// StepAction records an action the agent decides to take.
	StepAction ChainStepType = "action"
	// StepReflection records evaluation of a prior action or conclusion.
	StepReflection ChainStepType = "reflection"
)

// ChainOfThoughtStep is one typed step in a reasoning chain.
type ChainOfThoughtStep struct {
	// Number is the 1-based position of the step in its chain.
	Number int `json:"number"`
	// Type is the kind of reasoning step.
	Type ChainStepType `json:"type"`
	// Content is the step's main text.
	Content string `json:"content"`
	// Reasoning explains how the step follows from the chain so far.
	Reasoning string `json:"reasoning"`
	// Confidence is the agent's confidence in the step, in [0,1].
	Confidence float64 `json:"confidence"`
	// Timestamp is when the step was produced.
	Timestamp time.Time `json:"timestamp"`
	// AgentID identifies the producing agent.
	AgentID string `json:"agent_id"`
}

// ReasoningChain is an append-only sequence of reasoning steps scoped to one
// session. Chains are archived to history on completion.
type ReasoningChain struct {
	// SessionID identifies the reasoning session.
	SessionID string `json:"session_id"`
	// TaskID is the task the chain reasons about, if any.
	TaskID string `json:"task_id,omitempty"`
	// AgentID is the agent that owns the chain.
	AgentID string `json:"agent_id"`
	// Style is the reasoning style the chain follows, e.g. "react".
	Style string `json:"style"`
	// Steps is the ordered step sequence.
	Steps []ChainOfThoughtStep `json:"steps"`
	// Score is the quality score assigned at archival, in [0,1].
	Score float64 `json:"score,omitempty"`
	// Completed marks chains whose pattern has been exhausted.
	Completed bool `json:"completed"`
}

// Append adds a step, assigning its number from the current length.
func (c *ReasoningChain) Append(step ChainOfThoughtStep) {
	step.Number = len(c.Steps) + 1
	c.Steps = append(c.Steps, step)
}
