package worker

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/hive/internal/reasoning"
	"github.com/ShayCichocki/hive/pkg/models"
)

// SimWorker is an in-process worker that simulates capability execution. It
// walks a reasoning pattern for each step it handles and can be scripted to
// fail a capability a fixed number of times before succeeding, which is how
// the retry path gets exercised without a flaky backend.
type SimWorker struct {
	id     string
	style  string
	caps   []models.Capability
	engine *reasoning.Engine

	mu       sync.Mutex
	failures map[string]int
	chains   []*models.ReasoningChain
	handled  int
}

// NewSim creates a simulated worker advertising the given capabilities. The
// style selects the reasoning pattern the worker narrates its work with;
// unknown styles fall back to ReAct.
func NewSim(id, style string, caps []models.Capability) *SimWorker {
	return &SimWorker{
		id:       id,
		style:    style,
		caps:     caps,
		engine:   reasoning.NewEngine(),
		failures: make(map[string]int),
	}
}

// ID implements Worker.
func (w *SimWorker) ID() string { return w.id }

// Capabilities implements Worker.
func (w *SimWorker) Capabilities() []models.Capability {
	out := make([]models.Capability, len(w.caps))
	copy(out, w.caps)
	return out
}

// ScriptFailures makes the next n executions of a capability fail before the
// worker succeeds again.
func (w *SimWorker) ScriptFailures(capability string, n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures[capability] = n
}

// Handled returns the number of execute messages the worker has processed.
func (w *SimWorker) Handled() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handled
}

// Chains returns the reasoning chains recorded for successful executions.
func (w *SimWorker) Chains() []*models.ReasoningChain {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*models.ReasoningChain, len(w.chains))
	copy(out, w.chains)
	return out
}

// ChainsForTask returns the recorded reasoning chains for one task.
func (w *SimWorker) ChainsForTask(taskID string) []*models.ReasoningChain {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*models.ReasoningChain
	for _, c := range w.chains {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	return out
}

// HandleMessage executes one dispatched step and returns the completion
// report. Messages other than execute_task are ignored.
func (w *SimWorker) HandleMessage(msg models.Message) *models.Message {
	if msg.Type != models.MessageExecuteTask {
		return nil
	}
	p, ok := msg.Payload.(models.ExecuteTaskPayload)
	if !ok {
		return nil
	}

	w.mu.Lock()
	w.handled++
	remaining := w.failures[p.Capability]
	if remaining > 0 {
		w.failures[p.Capability] = remaining - 1
	}
	w.mu.Unlock()

	report := models.TaskStepCompletePayload{
		TaskID:  p.TaskID,
		StepID:  p.StepID,
		AgentID: w.id,
	}
	if remaining > 0 {
		report.Error = fmt.Sprintf("%s: simulated execution failure", p.Capability)
	} else {
		report.Success = true
		report.Result = w.execute(p)
	}

	return &models.Message{
		Type:      models.MessageTaskStepComplete,
		ID:        uuid.New().String()[:8],
		Timestamp: time.Now(),
		SenderID:  w.id,
		Payload:   report,
	}
}

// execute walks the worker's reasoning pattern to completion and returns the
// step result, including the chain's quality score.
func (w *SimWorker) execute(p models.ExecuteTaskPayload) map[string]any {
	chain := w.engine.NewChain(w.id, p.TaskID, w.style)
	rctx := reasoning.Context{TaskDescription: p.Capability, Data: p.Params}
	for w.engine.GenerateNextStep(chain, rctx) != nil {
	}
	chain.Score = reasoning.ScoreChain(chain)

	w.mu.Lock()
	w.chains = append(w.chains, chain)
	w.mu.Unlock()

	return map[string]any{
		"agent":       w.id,
		"capability":  p.Capability,
		"chain_score": chain.Score,
		"steps":       len(chain.Steps),
	}
}
