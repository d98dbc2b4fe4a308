package models

import "time"

// SecurityLevel classifies how much trust a capability requires or provides.
type SecurityLevel string

const (
	// SecurityLow is for read-only or otherwise harmless operations.
	SecurityLow SecurityLevel = "low"
	// SecurityMedium is for operations with moderate blast radius.
	SecurityMedium SecurityLevel = "medium"
	// SecurityHigh is for operations that move value or mutate external state.
	SecurityHigh SecurityLevel = "high"
)

// Rank returns the ordering rank of the level (low=1, medium=2, high=3).
// Unknown levels rank as 0 so they never satisfy a floor.
func (l SecurityLevel) Rank() int {
	switch l {
	case SecurityLow:
		return 1
	case SecurityMedium:
		return 2
	case SecurityHigh:
		return 3
	default:
		return 0
	}
}

// Meets returns true if the level satisfies the given floor.
func (l SecurityLevel) Meets(floor SecurityLevel) bool {
	return l.Rank() >= floor.Rank()
}

// Capability is one advertised skill of one worker, with the performance
// metadata used for ranking. The (AgentID, Name) pair is the identity;
// re-registering the same pair overwrites the attributes.
type Capability struct {
	// AgentID identifies the worker advertising this capability.
	AgentID string `json:"agent_id" yaml:"agent_id"`
	// Name is the capability name, e.g. "balance_check".
	Name string `json:"name" yaml:"name"`
	// Description explains what the capability does.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// SecurityLevel is the trust level this capability operates at.
	SecurityLevel SecurityLevel `json:"security_level" yaml:"security_level"`
	// EstimatedLatency is the expected execution time.
	EstimatedLatency time.Duration `json:"estimated_latency" yaml:"estimated_latency"`
	// SuccessRate is the observed fraction of successful executions, in [0,1].
	SuccessRate float64 `json:"success_rate" yaml:"success_rate"`
	// CurrentLoad is the worker's current utilization for this capability, in [0,1].
	CurrentLoad float64 `json:"current_load" yaml:"current_load"`
	// Cost is the relative cost unit of invoking this capability.
	Cost float64 `json:"cost" yaml:"cost"`
	// Dependencies lists other capability names this one builds on.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// Key returns the catalog key for this capability.
func (c Capability) Key() string {
	return c.AgentID + "/" + c.Name
}

// TaskRequirement describes what the orchestrator needs from the catalog
// for one task: the capability set, a security floor, and a latency ceiling.
type TaskRequirement struct {
	// Capabilities is the set of capability names the task needs.
	Capabilities []string `json:"capabilities"`
	// MinSecurity is the security floor; candidates below it are excluded.
	MinSecurity SecurityLevel `json:"min_security"`
	// MaxLatency is the latency ceiling; candidates above it are excluded.
	MaxLatency time.Duration `json:"max_latency"`
}

// AgentCapabilityMatch is a derived, ephemeral ranking of one agent for one
// requirement. It is produced per task by the selection algorithm and never
// persisted.
type AgentCapabilityMatch struct {
	// AgentID is the matched worker.
	AgentID string `json:"agent_id"`
	// Capability is the matched entry for the first required capability.
	Capability Capability `json:"capability"`
	// Score is the combined match score in [0,1], higher is better.
	Score float64 `json:"score"`
	// Reasoning is a human-readable explanation of the score.
	Reasoning string `json:"reasoning"`
}
