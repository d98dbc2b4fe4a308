// Package planner builds multi-step collaboration plans for tasks that need
// more than one worker.
package planner

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/hive/internal/catalog"
	"github.com/ShayCichocki/hive/pkg/models"
)

// NegotiateFunc re-ranks or substitutes candidates before assignment. The
// default is an identity passthrough; real multi-agent bidding plugs in here.
type NegotiateFunc func(candidates []models.AgentCapabilityMatch, req models.TaskRequirement) []models.AgentCapabilityMatch

// PlanContext carries the orchestrator's classification results into plan
// construction.
type PlanContext struct {
	// Requirement is the task's capability set with its security floor and
	// latency ceiling.
	Requirement models.TaskRequirement
	// Sequential forces a linear dependency chain across steps. When false,
	// absence of a dependency edge is permission to run concurrently.
	Sequential bool
}

// Planner builds CollaborationPlans from the capability catalog.
type Planner struct {
	catalog   *catalog.Catalog
	negotiate NegotiateFunc
}

// New creates a Planner backed by the given catalog.
func New(c *catalog.Catalog) *Planner {
	return &Planner{
		catalog:   c,
		negotiate: func(m []models.AgentCapabilityMatch, _ models.TaskRequirement) []models.AgentCapabilityMatch { return m },
	}
}

// SetNegotiator replaces the candidate negotiation hook. Passing nil
// restores the identity passthrough.
func (p *Planner) SetNegotiator(fn NegotiateFunc) {
	if fn == nil {
		fn = func(m []models.AgentCapabilityMatch, _ models.TaskRequirement) []models.AgentCapabilityMatch { return m }
	}
	p.negotiate = fn
}

// CreatePlan selects an agent per required capability and emits a plan whose
// steps encode the literal call each worker must perform. Steps are chained
// by dependency when the context demands sequencing; otherwise they are
// parallel-eligible. Failing to find an agent for any capability is a
// structural error; the caller must fail the task without retrying.
func (p *Planner) CreatePlan(task *models.Task, ctx PlanContext) (*models.CollaborationPlan, error) {
	req := ctx.Requirement
	if len(req.Capabilities) == 0 {
		return nil, fmt.Errorf("plan for task %s: no required capabilities", task.ID)
	}

	plan := &models.CollaborationPlan{
		ID:        uuid.New().String()[:8],
		TaskID:    task.ID,
		CreatedAt: time.Now(),
	}

	var confidenceSum float64
	participants := make(map[string]*models.Participant)
	stepByCapability := make(map[string]string)

	for i, capName := range req.Capabilities {
		stepReq := models.TaskRequirement{
			Capabilities: []string{capName},
			MinSecurity:  req.MinSecurity,
			MaxLatency:   req.MaxLatency,
		}
		candidates := p.negotiate(p.catalog.FindBestAgents(stepReq), stepReq)
		if len(candidates) == 0 {
			return nil, fmt.Errorf("plan for task %s: no capable agent for %q", task.ID, capName)
		}

		chosen := candidates[0]
		confidenceSum += chosen.Score

		step := models.ExecutionStep{
			ID:         fmt.Sprintf("%s-step-%d", plan.ID, i+1),
			AgentID:    chosen.AgentID,
			Capability: capName,
			Inputs:     task.Params,
		}
		switch {
		case ctx.Sequential && i > 0:
			step.DependsOn = []string{plan.Steps[i-1].ID}
		default:
			// A capability's declared dependencies order it after the plan
			// steps that provide them. Dependencies on capabilities outside
			// the plan impose no ordering.
			for _, dep := range chosen.Capability.Dependencies {
				if depStep, ok := stepByCapability[dep]; ok {
					step.DependsOn = append(step.DependsOn, depStep)
				}
			}
		}
		step.Parallel = len(step.DependsOn) == 0
		plan.Steps = append(plan.Steps, step)
		stepByCapability[capName] = step.ID

		role := models.RoleSecondary
		if i == 0 {
			role = models.RolePrimary
		}
		p.addParticipant(participants, chosen.AgentID, role, capName)

		plan.Reasoning = append(plan.Reasoning, fmt.Sprintf(
			"step %d: %s -> %s (score %.2f)", i+1, capName, chosen.AgentID, chosen.Score))

		// The runner-up for the primary capability becomes the standby
		// named by the contingency rule.
		if i == 0 && len(candidates) > 1 {
			fallback := candidates[1]
			plan.Contingencies = append(plan.Contingencies, models.ContingencyRule{
				Condition:          "primary_failure",
				FallbackAgentID:    fallback.AgentID,
				FallbackCapability: capName,
			})
			p.addParticipant(participants, fallback.AgentID, models.RoleFallback, capName)
			plan.Reasoning = append(plan.Reasoning, fmt.Sprintf(
				"fallback for %s: %s (score %.2f)", capName, fallback.AgentID, fallback.Score))
		}
	}

	// Plans with three or more steps end with a review: the final step's
	// participant acts as validator of the preceding work.
	if len(plan.Steps) >= 3 {
		last := plan.Steps[len(plan.Steps)-1]
		if pt, ok := participants[last.AgentID]; ok && pt.Role != models.RolePrimary {
			pt.Role = models.RoleValidator
			plan.Reasoning = append(plan.Reasoning, fmt.Sprintf(
				"%s validates the final step", last.AgentID))
		}
	}

	for _, pt := range participants {
		plan.Participants = append(plan.Participants, *pt)
	}
	plan.Confidence = confidenceSum / float64(len(req.Capabilities))

	if err := validateSteps(plan.Steps); err != nil {
		return nil, fmt.Errorf("plan for task %s: %w", task.ID, err)
	}
	return plan, nil
}

// addParticipant merges a role assignment into the participant set. Existing
// primary assignments are never downgraded.
func (p *Planner) addParticipant(set map[string]*models.Participant, agentID string, role models.PlanRole, capName string) {
	pt, ok := set[agentID]
	if !ok {
		set[agentID] = &models.Participant{AgentID: agentID, Role: role, Capabilities: []string{capName}}
		return
	}
	for _, c := range pt.Capabilities {
		if c == capName {
			return
		}
	}
	pt.Capabilities = append(pt.Capabilities, capName)
}

// validateSteps rejects unknown dependency references and dependency cycles.
func validateSteps(steps []models.ExecutionStep) error {
	index := make(map[string][]string, len(steps))
	for _, s := range steps {
		index[s.ID] = s.DependsOn
	}
	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if _, ok := index[dep]; !ok {
				return fmt.Errorf("step %s depends on unknown step %s", s.ID, dep)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(steps))
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("dependency cycle through step %s", id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, dep := range index[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	for _, s := range steps {
		if err := visit(s.ID); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSteps checks an externally supplied step graph for unknown
// references and cycles.
func ValidateSteps(steps []models.ExecutionStep) error {
	return validateSteps(steps)
}
