// Package reasoning generates structured, auditable reasoning chains used by
// workers and for plan justification, and scores chain quality. Scoring is
// diagnostic only; it never blocks execution.
package reasoning

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/hive/pkg/models"
)

// Reasoning styles in the fixed pattern library.
const (
	StyleReAct      = "react"
	StyleStrategic  = "strategic"
	StyleAnalytical = "analytical"
	StyleValidation = "validation"
)

// PatternStep is one template step of a reasoning pattern.
type PatternStep struct {
	// Name is the step's label within the pattern, e.g. "hypothesis".
	Name string
	// Type is the chain step type the pattern step produces.
	Type models.ChainStepType
	// Template is the content template; it receives the task description.
	Template string
}

// patterns is the fixed pattern library. Each pattern maps its named phases
// onto the four chain step types.
var patterns = map[string][]PatternStep{
	StyleReAct: {
		{Name: "observe", Type: models.StepObservation, Template: "Observing the current situation for: %s"},
		{Name: "think", Type: models.StepThought, Template: "Considering approaches to: %s"},
		{Name: "act", Type: models.StepAction, Template: "Executing the chosen approach for: %s"},
		{Name: "reflect", Type: models.StepReflection, Template: "Reviewing the outcome of acting on: %s"},
	},
	StyleStrategic: {
		{Name: "situation", Type: models.StepObservation, Template: "Assessing the situation around: %s"},
		{Name: "options", Type: models.StepThought, Template: "Enumerating options for: %s"},
		{Name: "long_term_impact", Type: models.StepThought, Template: "Weighing long-term impact of options for: %s"},
		{Name: "decision", Type: models.StepAction, Template: "Committing to a decision on: %s"},
		{Name: "validation", Type: models.StepReflection, Template: "Validating the decision made for: %s"},
	},
	StyleAnalytical: {
		{Name: "evidence", Type: models.StepObservation, Template: "Gathering evidence relevant to: %s"},
		{Name: "hypothesis", Type: models.StepThought, Template: "Forming a hypothesis about: %s"},
		{Name: "test", Type: models.StepAction, Template: "Testing the hypothesis for: %s"},
		{Name: "interpret", Type: models.StepThought, Template: "Interpreting test results for: %s"},
		{Name: "critique", Type: models.StepReflection, Template: "Critiquing the analysis of: %s"},
	},
	StyleValidation: {
		{Name: "claim_inventory", Type: models.StepObservation, Template: "Inventorying claims made about: %s"},
		{Name: "logic_check", Type: models.StepThought, Template: "Checking logical consistency of claims about: %s"},
		{Name: "evidence_check", Type: models.StepThought, Template: "Checking evidence behind claims about: %s"},
		{Name: "recommend", Type: models.StepAction, Template: "Recommending an outcome for: %s"},
		{Name: "score", Type: models.StepReflection, Template: "Scoring the overall validity of: %s"},
	},
}

// Context carries what the engine needs to render a step.
type Context struct {
	// TaskDescription is the work being reasoned about.
	TaskDescription string
	// Data holds optional extra inputs surfaced in step reasoning.
	Data map[string]any
}

// Engine produces reasoning chains from the fixed pattern library.
type Engine struct{}

// NewEngine creates an Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// SelectPattern picks a pattern for the declared agent style, falling back
// to ReAct when no pattern matches. The agent role is currently advisory
// and recorded only in the chain.
func (e *Engine) SelectPattern(agentRole, style string) string {
	if _, ok := patterns[style]; ok {
		return style
	}
	return StyleReAct
}

// NewChain starts a reasoning session for one agent, optionally scoped to a
// task.
func (e *Engine) NewChain(agentID, taskID, style string) *models.ReasoningChain {
	return &models.ReasoningChain{
		SessionID: uuid.New().String()[:8],
		TaskID:    taskID,
		AgentID:   agentID,
		Style:     e.SelectPattern("", style),
	}
}

// GenerateNextStep advances the chain by one template step, cycling through
// the selected pattern. It returns nil once the pattern is exhausted,
// signaling the caller to finalize the chain.
func (e *Engine) GenerateNextStep(chain *models.ReasoningChain, ctx Context) *models.ChainOfThoughtStep {
	pattern := patterns[chain.Style]
	if pattern == nil {
		pattern = patterns[StyleReAct]
	}

	idx := len(chain.Steps)
	if idx >= len(pattern) {
		chain.Completed = true
		return nil
	}

	ps := pattern[idx]
	step := models.ChainOfThoughtStep{
		Type:       ps.Type,
		Content:    fmt.Sprintf(ps.Template, ctx.TaskDescription),
		Reasoning:  e.stepReasoning(chain, ps, ctx),
		Confidence: stepConfidence(idx),
		Timestamp:  time.Now(),
		AgentID:    chain.AgentID,
	}
	chain.Append(step)
	return &chain.Steps[len(chain.Steps)-1]
}

// stepReasoning explains how a step follows from the chain so far. Steps
// after the first reference the prior step so the chain reads as a causal
// sequence.
func (e *Engine) stepReasoning(chain *models.ReasoningChain, ps PatternStep, ctx Context) string {
	if len(chain.Steps) == 0 {
		return fmt.Sprintf("Opening %s phase of the %s pattern for task: %s", ps.Name, chain.Style, ctx.TaskDescription)
	}
	prev := chain.Steps[len(chain.Steps)-1]
	return fmt.Sprintf("Following from step %d (%s): %s. Now entering the %s phase",
		prev.Number, prev.Type, prev.Content, ps.Name)
}

// stepConfidence rises modestly as the pattern progresses; later steps build
// on accumulated context.
func stepConfidence(idx int) float64 {
	c := 0.6 + 0.06*float64(idx)
	if c > 0.95 {
		c = 0.95
	}
	return c
}

// PatternLength returns the number of steps in a style's pattern. Unknown
// styles report the ReAct length.
func PatternLength(style string) int {
	if p, ok := patterns[style]; ok {
		return len(p)
	}
	return len(patterns[StyleReAct])
}
