package models

import "time"

// PlanRole describes how a participant contributes to a collaboration plan.
type PlanRole string

const (
	// RolePrimary is the agent responsible for the main work.
	RolePrimary PlanRole = "primary"
	// RoleSecondary is an agent executing supporting steps.
	RoleSecondary PlanRole = "secondary"
	// RoleFallback is a standby agent named by a contingency rule.
	RoleFallback PlanRole = "fallback"
	// RoleValidator is an agent that checks another agent's output.
	RoleValidator PlanRole = "validator"
)

// Participant is one agent taking part in a plan, with its role and the
// capabilities it contributes.
type Participant struct {
	// AgentID identifies the participating worker.
	AgentID string `json:"agent_id"`
	// Role is the participant's role in the plan.
	Role PlanRole `json:"role"`
	// Capabilities lists the capability names this participant covers.
	Capabilities []string `json:"capabilities"`
}

// ExecutionStep is one unit of a collaboration plan: the literal call one
// worker must perform, plus its ordering constraints.
type ExecutionStep struct {
	// ID is the step identifier, unique within the plan.
	ID string `json:"id"`
	// AgentID is the worker that executes this step.
	AgentID string `json:"agent_id"`
	// Capability is the capability the worker must apply.
	Capability string `json:"capability"`
	// Inputs holds step parameters passed to the worker.
	Inputs map[string]any `json:"inputs,omitempty"`
	// DependsOn lists step IDs that must complete before this step starts.
	DependsOn []string `json:"depends_on,omitempty"`
	// Parallel marks the step as eligible to run concurrently with other
	// steps it has no declared dependency on.
	Parallel bool `json:"parallel"`
}

// ContingencyRule maps a failure condition to a fallback assignment.
type ContingencyRule struct {
	// Condition names the situation that activates the rule, e.g. "primary_failure".
	Condition string `json:"condition"`
	// FallbackAgentID is the agent to substitute when the rule fires.
	FallbackAgentID string `json:"fallback_agent_id"`
	// FallbackCapability is the capability the fallback agent applies.
	FallbackCapability string `json:"fallback_capability"`
}

// CollaborationPlan is a multi-step execution graph spanning one or more
// workers for a single task. Plans are created per complex task, held until
// completion, then discarded.
type CollaborationPlan struct {
	// ID is the plan identifier.
	ID string `json:"id"`
	// TaskID is the task this plan executes.
	TaskID string `json:"task_id"`
	// Participants lists the agents involved and their roles.
	Participants []Participant `json:"participants"`
	// Steps is the ordered list of execution steps.
	Steps []ExecutionStep `json:"steps"`
	// Contingencies lists fallback rules applied on step failure.
	Contingencies []ContingencyRule `json:"contingencies,omitempty"`
	// Confidence is the planner's confidence in the assignment, in [0,1].
	Confidence float64 `json:"confidence"`
	// Reasoning is the trail of decisions that produced the plan.
	Reasoning []string `json:"reasoning,omitempty"`
	// CreatedAt is when the plan was built.
	CreatedAt time.Time `json:"created_at"`
}

// Step returns the step with the given ID, or nil.
func (p *CollaborationPlan) Step(id string) *ExecutionStep {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}
