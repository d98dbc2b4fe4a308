// Package ledger is the canonical store of task records. It owns the task
// state machine and the metrics and history derived from it.
package ledger

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ShayCichocki/hive/pkg/models"
)

// TransitionError reports an illegal state-machine transition. Illegal
// transitions are rejected and logged, never silently coerced.
type TransitionError struct {
	TaskID string
	From   models.TaskState
	To     models.TaskState
}

// Error implements error.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: illegal transition %s -> %s", e.TaskID, e.From, e.To)
}

// transitions lists the legal forward edges of the task state machine.
// Failure and cancellation edges are handled separately: failed and
// cancelled are reachable from any non-terminal state. The queued edge out
// of running is the retry path.
var transitions = map[models.TaskState][]models.TaskState{
	models.TaskStateNew:          {models.TaskStateAnalyzing, models.TaskStateApproved, models.TaskStateQueued},
	models.TaskStateAnalyzing:    {models.TaskStateApproved, models.TaskStateQueued},
	models.TaskStateApproved:     {models.TaskStateQueued},
	models.TaskStateQueued:       {models.TaskStateRunning},
	models.TaskStateRunning:      {models.TaskStateAwaitingSign, models.TaskStateCompleted, models.TaskStateQueued},
	models.TaskStateAwaitingSign: {models.TaskStateConfirming},
	models.TaskStateConfirming:   {models.TaskStateCompleted},
}

// progress maps each state to a derived completion fraction.
var progress = map[models.TaskState]float64{
	models.TaskStateNew:          0.0,
	models.TaskStateAnalyzing:    0.1,
	models.TaskStateApproved:     0.2,
	models.TaskStateQueued:       0.3,
	models.TaskStateRunning:      0.6,
	models.TaskStateAwaitingSign: 0.75,
	models.TaskStateConfirming:   0.9,
	models.TaskStateCompleted:    1.0,
	models.TaskStateFailed:       1.0,
	models.TaskStateCancelled:    1.0,
}

// legalTransition reports whether from -> to is allowed.
func legalTransition(from, to models.TaskState) bool {
	if from.Terminal() {
		return false
	}
	if to == models.TaskStateFailed || to == models.TaskStateCancelled {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Archiver receives terminal task records when their grace period expires.
type Archiver interface {
	Archive(task models.Task) error
}

// Config holds the ledger's tunables.
type Config struct {
	// ArchiveGrace is how long a terminal record stays queryable before
	// archival. Zero disables scheduled archival.
	ArchiveGrace time.Duration
	// HistoryLimit bounds the in-memory archive ring.
	HistoryLimit int
	// Archiver, if set, additionally receives every archived record.
	Archiver Archiver
}

// Status is the sanitized view of one task returned to callers.
type Status struct {
	// Task is a copy of the task record.
	Task *models.Task
	// Progress is the derived completion fraction for the current state.
	Progress float64
	// EstimatedCompletion extrapolates completion time from the category's
	// historical durations. Nil when no history exists for the category.
	EstimatedCompletion *time.Time
}

// Metrics aggregates task counts, either globally or per owner.
type Metrics struct {
	Total       int
	Completed   int
	Failed      int
	SuccessRate float64
	// AvgCompletion is the running average wall time from start to terminal
	// state across all finished tasks.
	AvgCompletion time.Duration
}

// Ledger is the thread-safe task store.
type Ledger struct {
	mu      sync.RWMutex
	cfg     Config
	tasks   map[string]*models.Task
	byOwner map[string][]string

	total     int
	completed int
	failed    int

	// durSum/durCount back the global running average; catDur the
	// per-category averages used for completion estimates.
	durSum   time.Duration
	durCount int
	catDur   map[string]categoryStats

	history []models.Task
	timers  map[string]*time.Timer
}

type categoryStats struct {
	sum   time.Duration
	count int
}

// New creates a Ledger with the given configuration.
func New(cfg Config) *Ledger {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 256
	}
	return &Ledger{
		cfg:     cfg,
		tasks:   make(map[string]*models.Task),
		byOwner: make(map[string][]string),
		catDur:  make(map[string]categoryStats),
		timers:  make(map[string]*time.Timer),
	}
}

// Register adds a task in state new, indexes it by owner, and increments the
// total-task counter. Task IDs are immutable and must be unique.
func (l *Ledger) Register(t *models.Task) error {
	if t.ID == "" {
		return fmt.Errorf("register task: empty id")
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("register task %s: invalid priority %q", t.ID, t.Priority)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.tasks[t.ID]; exists {
		return fmt.Errorf("register task %s: already registered", t.ID)
	}

	now := time.Now()
	stored := t.Clone()
	stored.State = models.TaskStateNew
	stored.CreatedAt = now
	stored.UpdatedAt = now

	l.tasks[stored.ID] = stored
	l.byOwner[stored.Owner] = append(l.byOwner[stored.Owner], stored.ID)
	l.total++
	return nil
}

// UpdateState transitions a task to newState, validating the transition is
// reachable from the current state. Entry to running stamps StartedAt; entry
// to completed or failed stamps CompletedAt, folds the duration into the
// running averages, and schedules the record for archival after the grace
// period. Result and errMsg are recorded on completed and failed entries
// respectively. Returns a sanitized copy of the updated record.
func (l *Ledger) UpdateState(id string, newState models.TaskState, result any, errMsg string) (*models.Task, error) {
	if !newState.Valid() {
		return nil, fmt.Errorf("task %s: unknown state %q", id, newState)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: not found", id)
	}
	if !legalTransition(t.State, newState) {
		err := &TransitionError{TaskID: id, From: t.State, To: newState}
		log.Printf("[ledger] warning: %v", err)
		return nil, err
	}

	now := time.Now()
	t.State = newState
	t.UpdatedAt = now

	switch newState {
	case models.TaskStateRunning:
		if t.StartedAt == nil {
			started := now
			t.StartedAt = &started
		}
	case models.TaskStateCompleted:
		t.Result = result
		l.finish(t, now)
		l.completed++
	case models.TaskStateFailed:
		t.Error = errMsg
		l.finish(t, now)
		l.failed++
	case models.TaskStateCancelled:
		t.Error = errMsg
		l.finish(t, now)
	}

	return t.Clone(), nil
}

// finish stamps completion, updates duration averages, and schedules
// archival. Caller holds l.mu.
func (l *Ledger) finish(t *models.Task, now time.Time) {
	completed := now
	t.CompletedAt = &completed

	if t.StartedAt != nil {
		d := completed.Sub(*t.StartedAt)
		l.durSum += d
		l.durCount++
		cs := l.catDur[t.Category]
		cs.sum += d
		cs.count++
		l.catDur[t.Category] = cs
	}

	if l.cfg.ArchiveGrace > 0 {
		id := t.ID
		l.timers[id] = time.AfterFunc(l.cfg.ArchiveGrace, func() { l.archive(id) })
	}
}

// archive moves a terminal record from the live map to history and the
// configured archiver sink.
func (l *Ledger) archive(id string) {
	l.mu.Lock()
	t, ok := l.tasks[id]
	if !ok || !t.State.Terminal() {
		l.mu.Unlock()
		return
	}
	record := *t.Clone()
	delete(l.tasks, id)
	delete(l.timers, id)

	l.history = append(l.history, record)
	if len(l.history) > l.cfg.HistoryLimit {
		l.history = l.history[len(l.history)-l.cfg.HistoryLimit:]
	}
	sink := l.cfg.Archiver
	l.mu.Unlock()

	if sink != nil {
		if err := sink.Archive(record); err != nil {
			log.Printf("[ledger] warning: archive of task %s failed: %v", id, err)
		}
	}
}

// IncrementRetry bumps a task's retry counter and returns the new count.
// The counter never exceeds MaxRetries.
func (l *Ledger) IncrementRetry(id string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.tasks[id]
	if !ok {
		return 0, fmt.Errorf("task %s: not found", id)
	}
	if t.RetryCount >= t.MaxRetries {
		return t.RetryCount, fmt.Errorf("task %s: retry count %d already at max %d", id, t.RetryCount, t.MaxRetries)
	}
	t.RetryCount++
	t.UpdatedAt = time.Now()
	return t.RetryCount, nil
}

// Get returns a sanitized copy of a live task record.
func (l *Ledger) Get(id string) (*models.Task, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// GetStatus returns the sanitized record plus the derived progress fraction
// and an estimated completion time based on the category's historical
// durations.
func (l *Ledger) GetStatus(id string) (*Status, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: not found", id)
	}

	st := &Status{
		Task:     t.Clone(),
		Progress: progress[t.State],
	}

	if cs := l.catDur[t.Category]; cs.count > 0 && !t.State.Terminal() {
		avg := cs.sum / time.Duration(cs.count)
		var eta time.Time
		if t.StartedAt != nil {
			eta = t.StartedAt.Add(avg)
		} else {
			eta = time.Now().Add(avg)
		}
		st.EstimatedCompletion = &eta
	}
	return st, nil
}

// GetMetrics aggregates counts and success rate, globally when owner is
// empty or scoped to one owner otherwise.
func (l *Ledger) GetMetrics(owner string) Metrics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m := Metrics{}
	if owner == "" {
		m.Total = l.total
		m.Completed = l.completed
		m.Failed = l.failed
	} else {
		ids := l.byOwner[owner]
		m.Total = len(ids)
		for _, id := range ids {
			t, ok := l.tasks[id]
			if !ok {
				t = l.historyLookup(id)
			}
			if t == nil {
				continue
			}
			switch t.State {
			case models.TaskStateCompleted:
				m.Completed++
			case models.TaskStateFailed:
				m.Failed++
			}
		}
	}

	if finished := m.Completed + m.Failed; finished > 0 {
		m.SuccessRate = float64(m.Completed) / float64(finished)
	}
	if l.durCount > 0 {
		m.AvgCompletion = l.durSum / time.Duration(l.durCount)
	}
	return m
}

// historyLookup finds an archived record by id. Caller holds l.mu.
func (l *Ledger) historyLookup(id string) *models.Task {
	for i := range l.history {
		if l.history[i].ID == id {
			return &l.history[i]
		}
	}
	return nil
}

// History returns a copy of the in-memory archive ring, oldest first.
func (l *Ledger) History() []models.Task {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Task, len(l.history))
	copy(out, l.history)
	return out
}

// Close cancels pending archival timers.
func (l *Ledger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, timer := range l.timers {
		timer.Stop()
		delete(l.timers, id)
	}
}
