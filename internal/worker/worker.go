// Package worker defines the contract the orchestration core dispatches
// against, plus a scriptable simulated worker used by the demo CLI and tests.
package worker

import (
	"github.com/ShayCichocki/hive/internal/bus"
	"github.com/ShayCichocki/hive/pkg/models"
)

// Worker is the capability-set contract for execution backends. A worker
// advertises the capabilities it can perform and handles one message at a
// time, returning the reply to publish or nil when the message produces no
// reply.
type Worker interface {
	// ID returns the worker's stable agent identifier.
	ID() string
	// Capabilities returns the capability entries the worker advertises.
	Capabilities() []models.Capability
	// HandleMessage processes one inbound message.
	HandleMessage(msg models.Message) *models.Message
}

// Attach subscribes a worker to its dispatch topic on the bus and routes its
// replies to the completion topic. The returned function detaches the worker.
func Attach(b *bus.Bus, w Worker) func() {
	return b.Subscribe(bus.AgentTopic(w.ID()), func(msg models.Message) {
		if reply := w.HandleMessage(msg); reply != nil {
			// Validation failures surface at the publish site; a worker
			// emitting a malformed reply is a programming error.
			_ = b.Publish(bus.TopicCompletion, *reply)
		}
	})
}
