// Package orchestrator is the coordination brain: it classifies incoming
// work, schedules it through priority queues, dispatches it to workers over
// the bus, and drives each task through the ledger's state machine.
package orchestrator

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/hive/internal/bus"
	"github.com/ShayCichocki/hive/internal/catalog"
	"github.com/ShayCichocki/hive/internal/config"
	"github.com/ShayCichocki/hive/internal/ledger"
	"github.com/ShayCichocki/hive/internal/planner"
	"github.com/ShayCichocki/hive/pkg/models"
)

// loadStep is the advertised-load delta applied around each dispatch.
const loadStep = 0.1

// senderID identifies the core on bus messages it originates.
const senderID = "orchestrator"

// SubmitRequest describes one unit of requested work.
type SubmitRequest struct {
	// Owner identifies who requested the task.
	Owner string
	// Description is the free-text description of the work.
	Description string
	// Category is the task type; with no explicit capabilities it names the
	// required capability directly.
	Category string
	// Priority selects the scheduling queue. Empty defaults to medium.
	Priority models.Priority
	// Capabilities explicitly lists required capabilities, overriding
	// derivation from the category and description.
	Capabilities []string
	// MinSecurity is the security floor workers must meet.
	MinSecurity models.SecurityLevel
	// Params holds structured inputs passed through to workers.
	Params map[string]any
	// MaxRetries overrides the configured retry budget when positive.
	MaxRetries int
	// RequiresSignOff routes the task through the external approval states
	// before completion.
	RequiresSignOff bool
}

// pendingTask is the classification result kept for a queued task until it
// dispatches. Retries re-enter the queue with the same pending record, so a
// retried complex task is re-planned against current catalog state.
type pendingTask struct {
	requirement models.TaskRequirement
	complexity  complexity
	sequential  bool
}

// activeTask tracks one dispatched task until every outstanding step
// reports back or the watchdog gives up on it.
type activeTask struct {
	taskID   string
	priority models.Priority
	pending  *pendingTask
	deadline time.Time

	// single-worker dispatch
	agentID    string
	capability string

	// plan execution
	plan        *models.CollaborationPlan
	dispatchedS map[string]bool
	doneS       map[string]bool
	stepResults map[string]any
}

// readySteps returns the plan steps whose dependencies are all complete and
// that have not been dispatched yet.
func (a *activeTask) readySteps() []models.ExecutionStep {
	var out []models.ExecutionStep
	for _, s := range a.plan.Steps {
		if a.dispatchedS[s.ID] || a.doneS[s.ID] {
			continue
		}
		ready := true
		for _, dep := range s.DependsOn {
			if !a.doneS[dep] {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, s)
		}
	}
	return out
}

// Orchestrator wires the catalog, ledger, planner, and bus into a scheduling
// loop. All dispatching happens on explicit Tick calls; Run adds a timer
// driver on top.
type Orchestrator struct {
	cfg     *config.Config
	bus     *bus.Bus
	ledger  *ledger.Ledger
	catalog *catalog.Catalog
	planner *planner.Planner

	mu      sync.Mutex
	queues  queue
	pending map[string]*pendingTask
	active  map[string]*activeTask
	signoff map[string]any

	unsubscribe func()
}

// New creates an Orchestrator and subscribes it to worker completions.
func New(cfg *config.Config, b *bus.Bus, l *ledger.Ledger, c *catalog.Catalog, p *planner.Planner) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		bus:     b,
		ledger:  l,
		catalog: c,
		planner: p,
		pending: make(map[string]*pendingTask),
		active:  make(map[string]*activeTask),
		signoff: make(map[string]any),
	}
	o.unsubscribe = b.Subscribe(bus.TopicCompletion, o.HandleCompletion)
	return o
}

// Close detaches the orchestrator from the bus.
func (o *Orchestrator) Close() {
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
}

// Submit registers a task, classifies it, and places it in its priority
// queue. The task dispatches on a subsequent Tick. Returns the task id.
func (o *Orchestrator) Submit(req SubmitRequest) (string, error) {
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return "", fmt.Errorf("submit: invalid priority %q", priority)
	}

	caps := o.deriveCapabilities(req)
	if len(caps) == 0 {
		return "", fmt.Errorf("submit: no capabilities derivable from request")
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = o.cfg.Scheduler.MaxRetries
	}

	task := &models.Task{
		ID:              uuid.New().String()[:8],
		Owner:           req.Owner,
		Description:     req.Description,
		Category:        req.Category,
		Priority:        priority,
		Capabilities:    caps,
		Params:          req.Params,
		MaxRetries:      maxRetries,
		RequiresSignOff: req.RequiresSignOff,
	}
	if err := o.ledger.Register(task); err != nil {
		return "", err
	}

	registered, _ := o.ledger.Get(task.ID)
	o.publishLifecycle(models.Message{
		Type:    models.MessageTaskRegistered,
		Payload: models.TaskRegisteredPayload{Task: registered},
	})

	pend := &pendingTask{
		requirement: models.TaskRequirement{
			Capabilities: caps,
			MinSecurity:  req.MinSecurity,
			MaxLatency:   o.cfg.Latency.Ceiling(string(priority)),
		},
		complexity: classify(req.Description, caps),
		sequential: hasSequencingLanguage(req.Description),
	}

	// Complex work is walked through the analysis states so consumers can
	// observe classification; simple work queues directly.
	if pend.complexity == complexityComplex {
		for _, state := range []models.TaskState{models.TaskStateAnalyzing, models.TaskStateApproved, models.TaskStateQueued} {
			if _, err := o.transition(task.ID, state, nil, ""); err != nil {
				return "", err
			}
		}
	} else {
		if _, err := o.transition(task.ID, models.TaskStateQueued, nil, ""); err != nil {
			return "", err
		}
	}

	o.mu.Lock()
	o.pending[task.ID] = pend
	o.queues.push(priority, task.ID)
	o.mu.Unlock()

	return task.ID, nil
}

// Tick runs one scheduling pass: expire overdue work, then dispatch queued
// tasks in strict priority order until the concurrency cap is reached.
func (o *Orchestrator) Tick() {
	o.sweepWatchdog()

	for {
		o.mu.Lock()
		if len(o.active) >= o.cfg.Scheduler.MaxConcurrent || o.queues.size() == 0 {
			o.mu.Unlock()
			return
		}
		id, _ := o.queues.pop()
		pend := o.pending[id]
		delete(o.pending, id)
		o.mu.Unlock()

		if pend == nil {
			continue
		}
		o.dispatch(id, pend)
	}
}

// dispatch routes one queued task to a worker or a plan. Tasks that left the
// queued state while waiting (cancellation) are skipped.
func (o *Orchestrator) dispatch(id string, pend *pendingTask) {
	task, ok := o.ledger.Get(id)
	if !ok || task.State != models.TaskStateQueued {
		return
	}
	if pend.complexity == complexityComplex {
		o.dispatchPlan(task, pend)
		return
	}
	o.dispatchSimple(task, pend)
}

// dispatchSimple assigns the best-ranked worker for a single-capability task.
// Finding no capable agent is terminal: there is no point retrying a
// selection that cannot succeed.
func (o *Orchestrator) dispatchSimple(task *models.Task, pend *pendingTask) {
	matches := o.catalog.FindBestAgents(pend.requirement)
	if len(matches) == 0 {
		o.failTask(task.ID, fmt.Sprintf("no capable agent for %v", pend.requirement.Capabilities))
		return
	}
	top := matches[0]
	capName := pend.requirement.Capabilities[0]

	entry := &activeTask{
		taskID:     task.ID,
		priority:   task.Priority,
		pending:    pend,
		deadline:   o.executionDeadline(pend),
		agentID:    top.AgentID,
		capability: capName,
	}
	o.mu.Lock()
	o.active[task.ID] = entry
	o.mu.Unlock()

	if _, err := o.transition(task.ID, models.TaskStateRunning, nil, ""); err != nil {
		o.mu.Lock()
		delete(o.active, task.ID)
		o.mu.Unlock()
		return
	}

	o.catalog.AdjustLoad(top.AgentID, capName, loadStep)
	o.publishExecute(top.AgentID, models.ExecuteTaskPayload{
		TaskID:     task.ID,
		Capability: capName,
		Params:     task.Params,
	})
}

// dispatchPlan builds a collaboration plan and dispatches every step whose
// dependencies are already satisfied. Plan construction errors are
// structural and fail the task without retry.
func (o *Orchestrator) dispatchPlan(task *models.Task, pend *pendingTask) {
	plan, err := o.planner.CreatePlan(task, planner.PlanContext{
		Requirement: pend.requirement,
		Sequential:  pend.sequential,
	})
	if err != nil {
		o.failTask(task.ID, err.Error())
		return
	}

	entry := &activeTask{
		taskID:      task.ID,
		priority:    task.Priority,
		pending:     pend,
		deadline:    o.executionDeadline(pend),
		plan:        plan,
		dispatchedS: make(map[string]bool),
		doneS:       make(map[string]bool),
		stepResults: make(map[string]any),
	}

	o.mu.Lock()
	o.active[task.ID] = entry
	ready := entry.readySteps()
	for _, s := range ready {
		entry.dispatchedS[s.ID] = true
	}
	o.mu.Unlock()

	if _, err := o.transition(task.ID, models.TaskStateRunning, nil, ""); err != nil {
		o.mu.Lock()
		delete(o.active, task.ID)
		o.mu.Unlock()
		return
	}

	for _, s := range ready {
		o.catalog.AdjustLoad(s.AgentID, s.Capability, loadStep)
		o.publishExecute(s.AgentID, models.ExecuteTaskPayload{
			TaskID:     task.ID,
			StepID:     s.ID,
			Capability: s.Capability,
			Params:     s.Inputs,
		})
	}
}

// HandleCompletion processes one worker completion report. Reports for
// tasks no longer active (cancelled, timed out, or already finished) are
// dropped with a warning.
func (o *Orchestrator) HandleCompletion(msg models.Message) {
	p, ok := msg.Payload.(models.TaskStepCompletePayload)
	if !ok {
		return
	}

	o.mu.Lock()
	entry, ok := o.active[p.TaskID]
	if !ok {
		o.mu.Unlock()
		log.Printf("[orchestrator] warning: dropping completion for inactive task %s from %s", p.TaskID, p.AgentID)
		return
	}

	if entry.plan != nil {
		o.handleStepCompletion(entry, p)
		return
	}

	// Single-worker task: one report settles it either way.
	delete(o.active, p.TaskID)
	agentID, capName := entry.agentID, entry.capability
	o.mu.Unlock()

	o.catalog.AdjustLoad(agentID, capName, -loadStep)
	o.catalog.RecordOutcome(agentID, capName, p.Success)

	if p.Success {
		o.finishSuccess(p.TaskID, p.Result)
		return
	}
	o.retryOrFail(p.TaskID, entry, p.Error)
}

// handleStepCompletion advances a plan after one step report. A step failure
// abandons the whole attempt; the retry path re-plans from scratch. Caller
// holds o.mu, which is released here before any publishing.
func (o *Orchestrator) handleStepCompletion(entry *activeTask, p models.TaskStepCompletePayload) {
	step := entry.plan.Step(p.StepID)
	if step == nil || entry.doneS[p.StepID] {
		o.mu.Unlock()
		log.Printf("[orchestrator] warning: dropping duplicate or unknown step report %s for task %s", p.StepID, p.TaskID)
		return
	}

	if !p.Success {
		delete(o.active, p.TaskID)
		o.mu.Unlock()

		o.catalog.AdjustLoad(step.AgentID, step.Capability, -loadStep)
		o.catalog.RecordOutcome(step.AgentID, step.Capability, false)
		o.retryOrFail(p.TaskID, entry, fmt.Sprintf("step %s: %s", p.StepID, p.Error))
		return
	}

	entry.doneS[p.StepID] = true
	entry.stepResults[p.StepID] = p.Result

	if len(entry.doneS) == len(entry.plan.Steps) {
		delete(o.active, p.TaskID)
		results := entry.stepResults
		o.mu.Unlock()

		o.catalog.AdjustLoad(step.AgentID, step.Capability, -loadStep)
		o.catalog.RecordOutcome(step.AgentID, step.Capability, true)
		o.finishSuccess(p.TaskID, results)
		return
	}

	ready := entry.readySteps()
	for _, s := range ready {
		entry.dispatchedS[s.ID] = true
	}
	o.mu.Unlock()

	o.catalog.AdjustLoad(step.AgentID, step.Capability, -loadStep)
	o.catalog.RecordOutcome(step.AgentID, step.Capability, true)
	for _, s := range ready {
		o.catalog.AdjustLoad(s.AgentID, s.Capability, loadStep)
		o.publishExecute(s.AgentID, models.ExecuteTaskPayload{
			TaskID:     p.TaskID,
			StepID:     s.ID,
			Capability: s.Capability,
			Params:     s.Inputs,
		})
	}
}

// finishSuccess completes a task, or parks it in the sign-off states when
// the task demands external approval.
func (o *Orchestrator) finishSuccess(id string, result any) {
	task, ok := o.ledger.Get(id)
	if !ok {
		return
	}
	if task.RequiresSignOff {
		o.mu.Lock()
		o.signoff[id] = result
		o.mu.Unlock()
		if _, err := o.transition(id, models.TaskStateAwaitingSign, nil, ""); err != nil {
			log.Printf("[orchestrator] warning: %v", err)
		}
		return
	}
	o.completeTask(id, result)
}

// completeTask moves a task to completed and announces it.
func (o *Orchestrator) completeTask(id string, result any) {
	if _, err := o.transition(id, models.TaskStateCompleted, result, ""); err != nil {
		log.Printf("[orchestrator] warning: %v", err)
		return
	}
	o.publishLifecycle(models.Message{
		Type:    models.MessageTaskComplete,
		Payload: models.TaskCompletePayload{TaskID: id, Result: result},
	})
}

// failTask moves a task to failed from wherever it is, clears it from the
// scheduler, and announces the failure.
func (o *Orchestrator) failTask(id, reason string) {
	o.mu.Lock()
	delete(o.active, id)
	delete(o.pending, id)
	delete(o.signoff, id)
	o.queues.remove(id)
	o.mu.Unlock()

	if _, err := o.transition(id, models.TaskStateFailed, nil, reason); err != nil {
		log.Printf("[orchestrator] warning: %v", err)
		return
	}
	o.publishLifecycle(models.Message{
		Type:    models.MessageTaskFailed,
		Payload: models.TaskFailedPayload{TaskID: id, Reason: reason},
	})
}

// retryOrFail requeues a failed attempt while retry budget remains, and
// fails the task terminally once the budget is spent.
func (o *Orchestrator) retryOrFail(id string, entry *activeTask, reason string) {
	task, ok := o.ledger.Get(id)
	if !ok {
		return
	}

	count, err := o.ledger.IncrementRetry(id)
	if err != nil {
		o.failTask(id, reason)
		return
	}
	if count >= task.MaxRetries {
		o.failTask(id, fmt.Sprintf("retries exhausted after %d attempts: %s", count, reason))
		return
	}

	if _, err := o.transition(id, models.TaskStateQueued, nil, ""); err != nil {
		log.Printf("[orchestrator] warning: %v", err)
		return
	}
	o.mu.Lock()
	o.pending[id] = entry.pending
	o.queues.push(entry.priority, id)
	o.mu.Unlock()
}

// Cancel moves a non-terminal task to cancelled and removes it from the
// scheduler. A worker already executing it cannot be interrupted; its late
// completion report is dropped.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.Lock()
	o.queues.remove(id)
	delete(o.pending, id)
	delete(o.active, id)
	delete(o.signoff, id)
	o.mu.Unlock()

	_, err := o.transition(id, models.TaskStateCancelled, nil, "cancelled by request")
	return err
}

// Approve releases a task parked in awaiting_sign through confirming to
// completed, attaching the result captured at execution time.
func (o *Orchestrator) Approve(id string) error {
	o.mu.Lock()
	result, ok := o.signoff[id]
	delete(o.signoff, id)
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("task %s: not awaiting sign-off", id)
	}

	if _, err := o.transition(id, models.TaskStateConfirming, nil, ""); err != nil {
		return err
	}
	o.completeTask(id, result)
	return nil
}

// sweepWatchdog force-fails running tasks that blew past their execution
// deadline, releasing the load reserved for their in-flight dispatches. The
// overdue attempt enters the normal retry-or-fail path.
func (o *Orchestrator) sweepWatchdog() {
	now := time.Now()

	o.mu.Lock()
	var expired []*activeTask
	for id, e := range o.active {
		if !e.deadline.IsZero() && now.After(e.deadline) {
			expired = append(expired, e)
			delete(o.active, id)
		}
	}
	o.mu.Unlock()

	for _, e := range expired {
		log.Printf("[orchestrator] warning: task %s exceeded its execution deadline", e.taskID)
		if e.plan == nil {
			o.catalog.AdjustLoad(e.agentID, e.capability, -loadStep)
			o.catalog.RecordOutcome(e.agentID, e.capability, false)
		} else {
			for _, s := range e.plan.Steps {
				if e.dispatchedS[s.ID] && !e.doneS[s.ID] {
					o.catalog.AdjustLoad(s.AgentID, s.Capability, -loadStep)
					o.catalog.RecordOutcome(s.AgentID, s.Capability, false)
				}
			}
		}
		o.retryOrFail(e.taskID, e, "worker exceeded execution deadline")
	}
}

// executionDeadline derives the watchdog cutoff for a dispatch. Zero means
// the watchdog is disabled.
func (o *Orchestrator) executionDeadline(pend *pendingTask) time.Time {
	factor := o.cfg.Scheduler.WatchdogFactor
	if factor <= 0 || pend.requirement.MaxLatency <= 0 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(float64(pend.requirement.MaxLatency) * factor))
}

// QueueDepth returns the number of tasks waiting for dispatch.
func (o *Orchestrator) QueueDepth() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queues.size()
}

// ActiveCount returns the number of dispatched tasks awaiting completion.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// transition applies a ledger state change and announces it on the
// lifecycle topic. Never call this while holding o.mu; subscribers run
// synchronously and may call back into the orchestrator.
func (o *Orchestrator) transition(id string, to models.TaskState, result any, errMsg string) (*models.Task, error) {
	before, ok := o.ledger.Get(id)
	if !ok {
		return nil, fmt.Errorf("task %s: not found", id)
	}
	updated, err := o.ledger.UpdateState(id, to, result, errMsg)
	if err != nil {
		return nil, err
	}
	o.publishLifecycle(models.Message{
		Type: models.MessageTaskStateChanged,
		Payload: models.TaskStateChangedPayload{
			TaskID:   id,
			OldState: before.State,
			NewState: to,
			Task:     updated,
		},
	})
	return updated, nil
}

// publishLifecycle stamps and publishes an event on the lifecycle topic.
func (o *Orchestrator) publishLifecycle(msg models.Message) {
	msg.ID = uuid.New().String()[:8]
	msg.Timestamp = time.Now()
	msg.SenderID = senderID
	if err := o.bus.Publish(bus.TopicLifecycle, msg); err != nil {
		log.Printf("[orchestrator] warning: lifecycle publish failed: %v", err)
	}
}

// publishExecute dispatches one execution step to a worker's topic.
func (o *Orchestrator) publishExecute(agentID string, p models.ExecuteTaskPayload) {
	msg := models.Message{
		Type:      models.MessageExecuteTask,
		ID:        uuid.New().String()[:8],
		Timestamp: time.Now(),
		SenderID:  senderID,
		TargetID:  agentID,
		Payload:   p,
	}
	if err := o.bus.Publish(bus.AgentTopic(agentID), msg); err != nil {
		log.Printf("[orchestrator] warning: dispatch to %s failed: %v", agentID, err)
	}
}
