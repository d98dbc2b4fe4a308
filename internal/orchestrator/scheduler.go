package orchestrator

import (
	"context"
	"time"

	"github.com/ShayCichocki/hive/pkg/models"
)

// queue is a strict-priority FIFO over task ids: every queued high task
// dispatches before any medium, every medium before any low. Within a lane,
// order of arrival is preserved.
type queue struct {
	high   []string
	medium []string
	low    []string
}

// push appends a task id to its priority lane. Unknown priorities land in
// the medium lane.
func (q *queue) push(p models.Priority, id string) {
	switch p {
	case models.PriorityHigh:
		q.high = append(q.high, id)
	case models.PriorityLow:
		q.low = append(q.low, id)
	default:
		q.medium = append(q.medium, id)
	}
}

// pop removes and returns the next task id in strict priority order.
func (q *queue) pop() (string, bool) {
	for _, lane := range []*[]string{&q.high, &q.medium, &q.low} {
		if len(*lane) > 0 {
			id := (*lane)[0]
			*lane = (*lane)[1:]
			return id, true
		}
	}
	return "", false
}

// remove deletes a task id from whichever lane holds it.
func (q *queue) remove(id string) bool {
	for _, lane := range []*[]string{&q.high, &q.medium, &q.low} {
		for i, candidate := range *lane {
			if candidate == id {
				*lane = append((*lane)[:i:i], (*lane)[i+1:]...)
				return true
			}
		}
	}
	return false
}

// size returns the number of queued task ids across all lanes.
func (q *queue) size() int {
	return len(q.high) + len(q.medium) + len(q.low)
}

// Run drives the scheduler from a ticker until the context is cancelled.
// Tests call Tick directly instead.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.Scheduler.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Tick()
		}
	}
}
