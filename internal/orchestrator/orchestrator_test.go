package orchestrator

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/hive/internal/bus"
	"github.com/ShayCichocki/hive/internal/catalog"
	"github.com/ShayCichocki/hive/internal/config"
	"github.com/ShayCichocki/hive/internal/ledger"
	"github.com/ShayCichocki/hive/internal/planner"
	"github.com/ShayCichocki/hive/internal/reasoning"
	"github.com/ShayCichocki/hive/internal/worker"
	"github.com/ShayCichocki/hive/pkg/models"
)

type testEnv struct {
	bus     *bus.Bus
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
	orc     *Orchestrator

	mu     sync.Mutex
	events []models.Message
}

func newEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Scheduler.WatchdogFactor = 0
	if mutate != nil {
		mutate(cfg)
	}

	env := &testEnv{
		bus:     bus.New(),
		catalog: catalog.New(),
		ledger:  ledger.New(ledger.Config{}),
	}
	env.orc = New(cfg, env.bus, env.ledger, env.catalog, planner.New(env.catalog))
	env.bus.Subscribe(bus.TopicLifecycle, func(m models.Message) {
		env.mu.Lock()
		env.events = append(env.events, m)
		env.mu.Unlock()
	})
	t.Cleanup(env.orc.Close)
	t.Cleanup(env.ledger.Close)
	return env
}

// registerCap seeds one catalog entry with sane defaults.
func (e *testEnv) registerCap(t *testing.T, agentID, name string, deps ...string) {
	t.Helper()
	err := e.catalog.Register(models.Capability{
		AgentID:          agentID,
		Name:             name,
		SecurityLevel:    models.SecurityMedium,
		EstimatedLatency: time.Millisecond,
		SuccessRate:      0.9,
		Dependencies:     deps,
	})
	if err != nil {
		t.Fatalf("register %s/%s: %v", agentID, name, err)
	}
}

// attachSim creates a simulated worker, registers its capabilities, and
// wires it to the bus.
func (e *testEnv) attachSim(t *testing.T, id string, caps ...string) *worker.SimWorker {
	t.Helper()
	w := worker.NewSim(id, reasoning.StyleReAct, nil)
	for _, c := range caps {
		e.registerCap(t, id, c)
	}
	t.Cleanup(worker.Attach(e.bus, w))
	return w
}

// stateSequence returns the NewState values observed for one task.
func (e *testEnv) stateSequence(taskID string) []models.TaskState {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.TaskState
	for _, m := range e.events {
		if p, ok := m.Payload.(models.TaskStateChangedPayload); ok && p.TaskID == taskID {
			out = append(out, p.NewState)
		}
	}
	return out
}

func (e *testEnv) hasEvent(taskID string, typ models.MessageType) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range e.events {
		switch p := m.Payload.(type) {
		case models.TaskRegisteredPayload:
			if m.Type == typ && p.Task.ID == taskID {
				return true
			}
		case models.TaskCompletePayload:
			if m.Type == typ && p.TaskID == taskID {
				return true
			}
		case models.TaskFailedPayload:
			if m.Type == typ && p.TaskID == taskID {
				return true
			}
		}
	}
	return false
}

func statesEqual(got, want []models.TaskState) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// manualWorker records dispatches and replies only on demand, so tests can
// hold tasks in the running state.
type manualWorker struct {
	id  string
	bus *bus.Bus

	mu       sync.Mutex
	received []models.ExecuteTaskPayload
}

func newManualWorker(t *testing.T, e *testEnv, id string, caps ...string) *manualWorker {
	t.Helper()
	for _, c := range caps {
		e.registerCap(t, id, c)
	}
	return subscribeManual(e, id)
}

// subscribeManual wires a manualWorker to its agent topic without touching
// the catalog; tests that need dependency metadata register entries
// themselves.
func subscribeManual(e *testEnv, id string) *manualWorker {
	w := &manualWorker{id: id, bus: e.bus}
	e.bus.Subscribe(bus.AgentTopic(id), func(m models.Message) {
		if p, ok := m.Payload.(models.ExecuteTaskPayload); ok {
			w.mu.Lock()
			w.received = append(w.received, p)
			w.mu.Unlock()
		}
	})
	return w
}

func (w *manualWorker) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.received)
}

func (w *manualWorker) payload(i int) models.ExecuteTaskPayload {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.received[i]
}

func (w *manualWorker) complete(t *testing.T, i int, success bool, errMsg string) {
	t.Helper()
	p := w.payload(i)
	err := w.bus.Publish(bus.TopicCompletion, models.Message{
		Type:      models.MessageTaskStepComplete,
		ID:        "reply",
		Timestamp: time.Now(),
		SenderID:  w.id,
		Payload: models.TaskStepCompletePayload{
			TaskID:  p.TaskID,
			StepID:  p.StepID,
			AgentID: w.id,
			Success: success,
			Result:  map[string]any{"ok": success},
			Error:   errMsg,
		},
	})
	if err != nil {
		t.Fatalf("publish completion: %v", err)
	}
}

func TestSimpleTaskLifecycle(t *testing.T) {
	env := newEnv(t, nil)
	env.attachSim(t, "reader", "balance_check")

	id, err := env.orc.Submit(SubmitRequest{
		Owner:       "alice",
		Description: "check the account balance",
		Category:    "balance_check",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if !env.hasEvent(id, models.MessageTaskRegistered) {
		t.Error("registration event missing")
	}
	task, _ := env.ledger.Get(id)
	if task.State != models.TaskStateQueued {
		t.Fatalf("state before tick = %s, want queued", task.State)
	}

	env.orc.Tick()

	task, _ = env.ledger.Get(id)
	if task.State != models.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", task.State)
	}
	if task.RetryCount != 0 {
		t.Errorf("retry count = %d, want 0", task.RetryCount)
	}
	if task.Result == nil {
		t.Error("completed task should carry a result")
	}

	want := []models.TaskState{models.TaskStateQueued, models.TaskStateRunning, models.TaskStateCompleted}
	if got := env.stateSequence(id); !statesEqual(got, want) {
		t.Errorf("state sequence = %v, want %v", got, want)
	}
	if !env.hasEvent(id, models.MessageTaskComplete) {
		t.Error("completion event missing")
	}
}

func TestComplexTaskWalksAnalysisStates(t *testing.T) {
	env := newEnv(t, nil)
	reader := env.attachSim(t, "reader", "balance_check")
	mover := env.attachSim(t, "mover", "token_transfer")

	id, err := env.orc.Submit(SubmitRequest{
		Owner:        "alice",
		Description:  "check the balance, then transfer the tokens",
		Capabilities: []string{"balance_check", "token_transfer"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	env.orc.Tick()

	task, _ := env.ledger.Get(id)
	if task.State != models.TaskStateCompleted {
		t.Fatalf("state = %s, want completed (error: %s)", task.State, task.Error)
	}

	want := []models.TaskState{
		models.TaskStateAnalyzing, models.TaskStateApproved, models.TaskStateQueued,
		models.TaskStateRunning, models.TaskStateCompleted,
	}
	if got := env.stateSequence(id); !statesEqual(got, want) {
		t.Errorf("state sequence = %v, want %v", got, want)
	}

	if reader.Handled() != 1 || mover.Handled() != 1 {
		t.Errorf("handled = %d/%d, want 1/1", reader.Handled(), mover.Handled())
	}

	// The aggregate result maps step ids to step results.
	results, ok := task.Result.(map[string]any)
	if !ok {
		t.Fatalf("result type %T", task.Result)
	}
	if len(results) != 2 {
		t.Errorf("got %d step results, want 2", len(results))
	}
}

func TestNoCapableAgentFailsWithoutRetry(t *testing.T) {
	env := newEnv(t, nil)

	id, err := env.orc.Submit(SubmitRequest{
		Owner:    "alice",
		Category: "time_travel",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	env.orc.Tick()

	task, _ := env.ledger.Get(id)
	if task.State != models.TaskStateFailed {
		t.Fatalf("state = %s, want failed", task.State)
	}
	if task.RetryCount != 0 {
		t.Errorf("selection failure must not retry, retry count = %d", task.RetryCount)
	}
	if !strings.Contains(task.Error, "no capable agent") {
		t.Errorf("error = %q, want selection failure reason", task.Error)
	}
	if !env.hasEvent(id, models.MessageTaskFailed) {
		t.Error("failure event missing")
	}
}

func TestRetryRequeuesThenSucceeds(t *testing.T) {
	env := newEnv(t, nil)
	w := env.attachSim(t, "reader", "balance_check")
	w.ScriptFailures("balance_check", 1)

	id, err := env.orc.Submit(SubmitRequest{
		Owner:    "alice",
		Category: "balance_check",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	env.orc.Tick()

	task, _ := env.ledger.Get(id)
	if task.State != models.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", task.State)
	}
	if task.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", task.RetryCount)
	}
	if w.Handled() != 2 {
		t.Errorf("worker handled %d dispatches, want 2", w.Handled())
	}

	// The requeue shows up as a running -> queued edge before the retry.
	want := []models.TaskState{
		models.TaskStateQueued, models.TaskStateRunning,
		models.TaskStateQueued, models.TaskStateRunning,
		models.TaskStateCompleted,
	}
	if got := env.stateSequence(id); !statesEqual(got, want) {
		t.Errorf("state sequence = %v, want %v", got, want)
	}
}

func TestRetriesExhaustedFailsTerminally(t *testing.T) {
	env := newEnv(t, nil)
	w := env.attachSim(t, "reader", "balance_check")
	w.ScriptFailures("balance_check", 5)

	id, err := env.orc.Submit(SubmitRequest{
		Owner:      "alice",
		Category:   "balance_check",
		MaxRetries: 3,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	env.orc.Tick()

	task, _ := env.ledger.Get(id)
	if task.State != models.TaskStateFailed {
		t.Fatalf("state = %s, want failed", task.State)
	}
	if task.RetryCount != 3 {
		t.Errorf("retry count = %d, want 3", task.RetryCount)
	}
	if w.Handled() != 3 {
		t.Errorf("worker handled %d dispatches, want 3", w.Handled())
	}
	if !strings.Contains(task.Error, "retries exhausted") {
		t.Errorf("error = %q, want exhaustion reason", task.Error)
	}
}

func TestStrictPriorityOrdering(t *testing.T) {
	env := newEnv(t, func(cfg *config.Config) {
		cfg.Scheduler.MaxConcurrent = 1
	})
	w := newManualWorker(t, env, "reader", "balance_check")

	submit := func(p models.Priority) string {
		id, err := env.orc.Submit(SubmitRequest{Owner: "alice", Category: "balance_check", Priority: p})
		if err != nil {
			t.Fatalf("Submit(%s): %v", p, err)
		}
		return id
	}
	lowID := submit(models.PriorityLow)
	medID := submit(models.PriorityMedium)
	highID := submit(models.PriorityHigh)

	var order []string
	for i := 0; i < 3; i++ {
		env.orc.Tick()
		if w.count() != i+1 {
			t.Fatalf("after tick %d: worker received %d dispatches, want %d", i+1, w.count(), i+1)
		}
		order = append(order, w.payload(i).TaskID)
		w.complete(t, i, true, "")
	}

	want := []string{highID, medID, lowID}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("dispatch order = %v, want %v", order, want)
		}
	}
}

func TestConcurrencyCap(t *testing.T) {
	env := newEnv(t, func(cfg *config.Config) {
		cfg.Scheduler.MaxConcurrent = 2
	})
	w := newManualWorker(t, env, "reader", "balance_check")

	for i := 0; i < 4; i++ {
		if _, err := env.orc.Submit(SubmitRequest{Owner: "alice", Category: "balance_check"}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	env.orc.Tick()
	if got := env.orc.ActiveCount(); got != 2 {
		t.Fatalf("active = %d, want 2 (cap)", got)
	}
	if env.orc.QueueDepth() != 2 {
		t.Errorf("queue depth = %d, want 2", env.orc.QueueDepth())
	}

	// Dispatch raised the worker's advertised load once per active task.
	entry, _ := env.catalog.Get("reader", "balance_check")
	if entry.CurrentLoad < 0.19 || entry.CurrentLoad > 0.21 {
		t.Errorf("advertised load = %.2f, want 0.2", entry.CurrentLoad)
	}

	w.complete(t, 0, true, "")
	env.orc.Tick()
	if got := env.orc.ActiveCount(); got != 2 {
		t.Errorf("active after backfill = %d, want 2", got)
	}
	if w.count() != 3 {
		t.Errorf("worker received %d dispatches, want 3", w.count())
	}
}

func TestCancelQueuedTask(t *testing.T) {
	env := newEnv(t, func(cfg *config.Config) {
		cfg.Scheduler.MaxConcurrent = 1
	})
	w := newManualWorker(t, env, "reader", "balance_check")

	first, _ := env.orc.Submit(SubmitRequest{Owner: "alice", Category: "balance_check"})
	second, _ := env.orc.Submit(SubmitRequest{Owner: "alice", Category: "balance_check"})

	env.orc.Tick()
	if err := env.orc.Cancel(second); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	w.complete(t, 0, true, "")
	env.orc.Tick()

	if w.count() != 1 {
		t.Errorf("cancelled task should not dispatch, worker received %d", w.count())
	}
	task, _ := env.ledger.Get(second)
	if task.State != models.TaskStateCancelled {
		t.Errorf("state = %s, want cancelled", task.State)
	}
	if done, _ := env.ledger.Get(first); done.State != models.TaskStateCompleted {
		t.Errorf("first task state = %s, want completed", done.State)
	}
}

func TestCancelRunningTaskDropsLateCompletion(t *testing.T) {
	env := newEnv(t, nil)
	w := newManualWorker(t, env, "reader", "balance_check")

	id, _ := env.orc.Submit(SubmitRequest{Owner: "alice", Category: "balance_check"})
	env.orc.Tick()

	if err := env.orc.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	// The worker finishes anyway; its report must be dropped.
	w.complete(t, 0, true, "")

	task, _ := env.ledger.Get(id)
	if task.State != models.TaskStateCancelled {
		t.Errorf("state = %s, want cancelled", task.State)
	}
	if env.orc.ActiveCount() != 0 {
		t.Errorf("active = %d, want 0", env.orc.ActiveCount())
	}
}

func TestCancelTerminalTaskIsRejected(t *testing.T) {
	env := newEnv(t, nil)
	env.attachSim(t, "reader", "balance_check")

	id, _ := env.orc.Submit(SubmitRequest{Owner: "alice", Category: "balance_check"})
	env.orc.Tick()

	if err := env.orc.Cancel(id); err == nil {
		t.Error("cancelling a completed task should error")
	}
}

func TestSignOffFlow(t *testing.T) {
	env := newEnv(t, nil)
	env.attachSim(t, "reader", "balance_check")

	id, err := env.orc.Submit(SubmitRequest{
		Owner:           "alice",
		Category:        "balance_check",
		RequiresSignOff: true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	env.orc.Tick()

	task, _ := env.ledger.Get(id)
	if task.State != models.TaskStateAwaitingSign {
		t.Fatalf("state = %s, want awaiting_sign", task.State)
	}

	if err := env.orc.Approve(id); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	task, _ = env.ledger.Get(id)
	if task.State != models.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", task.State)
	}
	if task.Result == nil {
		t.Error("approved task should carry the execution result")
	}

	want := []models.TaskState{
		models.TaskStateQueued, models.TaskStateRunning,
		models.TaskStateAwaitingSign, models.TaskStateConfirming, models.TaskStateCompleted,
	}
	if got := env.stateSequence(id); !statesEqual(got, want) {
		t.Errorf("state sequence = %v, want %v", got, want)
	}
}

func TestApproveWithoutPendingSignOff(t *testing.T) {
	env := newEnv(t, nil)
	if err := env.orc.Approve("ghost"); err == nil {
		t.Error("approving an unknown task should error")
	}
}

func TestWatchdogFailsOverdueTask(t *testing.T) {
	env := newEnv(t, func(cfg *config.Config) {
		cfg.Scheduler.WatchdogFactor = 1
		cfg.Latency.Medium = 5 * time.Millisecond
	})
	w := newManualWorker(t, env, "reader", "balance_check")

	id, err := env.orc.Submit(SubmitRequest{
		Owner:      "alice",
		Category:   "balance_check",
		MaxRetries: 1,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	env.orc.Tick()
	if w.count() != 1 {
		t.Fatalf("worker received %d dispatches, want 1", w.count())
	}

	time.Sleep(20 * time.Millisecond)
	env.orc.Tick()

	task, _ := env.ledger.Get(id)
	if task.State != models.TaskStateFailed {
		t.Fatalf("state = %s, want failed", task.State)
	}
	if !strings.Contains(task.Error, "deadline") {
		t.Errorf("error = %q, want deadline reason", task.Error)
	}
}

func TestPlanStepsFollowDependencyGraph(t *testing.T) {
	env := newEnv(t, nil)
	w1 := newManualWorker(t, env, "w1", "prepare")
	env.registerCap(t, "w2", "transfer", "prepare")
	env.registerCap(t, "w3", "audit", "prepare")
	w2 := subscribeManual(env, "w2")
	w3 := subscribeManual(env, "w3")

	id, err := env.orc.Submit(SubmitRequest{
		Owner:        "alice",
		Description:  "move funds with an audit",
		Capabilities: []string{"prepare", "transfer", "audit"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	env.orc.Tick()

	// Only the root step dispatches until its dependents are unblocked.
	if w1.count() != 1 || w2.count() != 0 || w3.count() != 0 {
		t.Fatalf("dispatch counts = %d/%d/%d, want 1/0/0", w1.count(), w2.count(), w3.count())
	}

	w1.complete(t, 0, true, "")

	// Both dependents are parallel-eligible once the root completes.
	if w2.count() != 1 || w3.count() != 1 {
		t.Fatalf("dependent dispatch counts = %d/%d, want 1/1", w2.count(), w3.count())
	}

	w2.complete(t, 0, true, "")
	w3.complete(t, 0, true, "")

	task, _ := env.ledger.Get(id)
	if task.State != models.TaskStateCompleted {
		t.Errorf("state = %s, want completed (error: %s)", task.State, task.Error)
	}
}

func TestPlanStepFailureRetriesWholeTask(t *testing.T) {
	env := newEnv(t, nil)
	reader := env.attachSim(t, "reader", "balance_check")
	mover := env.attachSim(t, "mover", "token_transfer")
	mover.ScriptFailures("token_transfer", 1)

	id, err := env.orc.Submit(SubmitRequest{
		Owner:        "alice",
		Capabilities: []string{"balance_check", "token_transfer"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	env.orc.Tick()

	task, _ := env.ledger.Get(id)
	if task.State != models.TaskStateCompleted {
		t.Fatalf("state = %s, want completed (error: %s)", task.State, task.Error)
	}
	if task.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", task.RetryCount)
	}
	// The retry re-plans the whole task, so the first step runs twice.
	if reader.Handled() != 2 {
		t.Errorf("reader handled %d, want 2 (re-planned attempt)", reader.Handled())
	}
	if mover.Handled() != 2 {
		t.Errorf("mover handled %d, want 2", mover.Handled())
	}
}

func TestCapabilityDerivation(t *testing.T) {
	env := newEnv(t, nil)
	env.registerCap(t, "reader", "balance_check")
	env.registerCap(t, "mover", "token_transfer")

	tests := []struct {
		name string
		req  SubmitRequest
		want []string
	}{
		{
			name: "explicit list wins",
			req:  SubmitRequest{Capabilities: []string{"audit"}, Category: "balance_check"},
			want: []string{"audit"},
		},
		{
			name: "category names the capability",
			req:  SubmitRequest{Category: "balance_check"},
			want: []string{"balance_check"},
		},
		{
			name: "description mentions a registered capability",
			req:  SubmitRequest{Category: "balance_check", Description: "run a token transfer afterwards"},
			want: []string{"balance_check", "token_transfer"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := env.orc.deriveCapabilities(tt.req)
			if len(got) != len(tt.want) {
				t.Fatalf("capabilities = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("capabilities = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		description  string
		capabilities []string
		want         complexity
	}{
		{"check the balance", []string{"balance_check"}, complexitySimple},
		{"check, then transfer", []string{"balance_check"}, complexityComplex},
		{"do both", []string{"a", "b"}, complexityComplex},
		{"audit followed by report", []string{"audit"}, complexityComplex},
		{"run the next-gen pipeline", []string{"pipeline"}, complexityComplex},
		{"authenticate the user", []string{"auth"}, complexitySimple},
	}
	for _, tt := range tests {
		if got := classify(tt.description, tt.capabilities); got != tt.want {
			t.Errorf("classify(%q, %v) = %v, want %v", tt.description, tt.capabilities, got, tt.want)
		}
	}
}

func TestQueueStrictOrderAndRemove(t *testing.T) {
	var q queue
	q.push(models.PriorityLow, "l1")
	q.push(models.PriorityHigh, "h1")
	q.push(models.PriorityMedium, "m1")
	q.push(models.PriorityHigh, "h2")

	if !q.remove("m1") {
		t.Fatal("remove(m1) = false")
	}
	if q.remove("ghost") {
		t.Fatal("remove(ghost) = true")
	}

	want := []string{"h1", "h2", "l1"}
	for _, id := range want {
		got, ok := q.pop()
		if !ok || got != id {
			t.Fatalf("pop = %q (%v), want %q", got, ok, id)
		}
	}
	if _, ok := q.pop(); ok {
		t.Error("queue should be empty")
	}
}

func TestSubmitRejectsUnderivableRequest(t *testing.T) {
	env := newEnv(t, nil)
	if _, err := env.orc.Submit(SubmitRequest{Owner: "alice", Description: "do something"}); err == nil {
		t.Error("request with no derivable capabilities should be rejected")
	}
}
