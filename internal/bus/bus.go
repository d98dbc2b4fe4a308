// Package bus provides the in-process publish/subscribe mechanism connecting
// the orchestration core to workers and downstream consumers.
//
// Delivery is at-most-once and best-effort: no persistence, no replay, no
// guarantee across process restarts. Handlers for one topic are invoked in
// subscription order, and a failing handler never prevents delivery to the
// remaining handlers.
package bus

import (
	"fmt"
	"log"
	"sync"

	"github.com/ShayCichocki/hive/pkg/models"
)

// Well-known topics used by the orchestration core.
const (
	// TopicCompletion carries task_step_complete messages from workers.
	TopicCompletion = "task.completion"
	// TopicLifecycle carries task lifecycle events for downstream consumers.
	TopicLifecycle = "task.lifecycle"
)

// AgentTopic returns the dispatch topic for one worker.
func AgentTopic(agentID string) string {
	return "agent." + agentID
}

// Handler processes one published message.
type Handler func(models.Message)

type subscription struct {
	id      int
	handler Handler
}

// Bus is a topic-based publish/subscribe broker. The zero value is not
// usable; create one with New.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID int
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers a handler for a topic. The returned function removes
// the subscription; calling it more than once is harmless.
func (b *Bus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[topic]
		for i, s := range list {
			if s.id == id {
				b.subs[topic] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish validates the message and delivers it to every current subscriber
// of the topic, in subscription order. A panicking handler is isolated and
// logged; delivery continues with the next subscriber. Publishing to a topic
// with no subscribers is not an error.
func (b *Bus) Publish(topic string, msg models.Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	b.mu.RLock()
	handlers := make([]subscription, len(b.subs[topic]))
	copy(handlers, b.subs[topic])
	b.mu.RUnlock()

	for _, s := range handlers {
		b.deliver(topic, s, msg)
	}
	return nil
}

// SubscriberCount returns the number of current subscribers for a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// deliver invokes one handler, converting panics into logged delivery errors.
func (b *Bus) deliver(topic string, s subscription, msg models.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[bus] warning: subscriber %d on %s panicked handling %s: %v", s.id, topic, msg.Type, r)
		}
	}()
	s.handler(msg)
}
