// Package bus is the in-process transcript update bus: synchronous
// fan-out to subscribers in registration order.
package bus

import (
	"log/slog"
	"sync"

	"github.com/rcliao/agent-gateway/internal/model"
)

// Handler consumes one transcript update.
type Handler func(model.TranscriptUpdate)

type subscription struct {
	id string
	fn Handler
}

// Bus fans transcript updates out to subscribers on the publisher's
// goroutine. A panicking subscriber is logged and does not block the
// rest.
type Bus struct {
	mu     sync.Mutex
	subs   []subscription
	logger *slog.Logger
}

// New returns an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger.With("component", "bus")}
}

// Subscribe registers a handler under a logical id and returns its
// unsubscribe function. Re-subscribing an id replaces the previous
// subscription in place, so each logical target mirrors at most once.
func (b *Bus) Subscribe(id string, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	replaced := false
	for i := range b.subs {
		if b.subs[i].id == id {
			b.subs[i].fn = fn
			replaced = true
			break
		}
	}
	if !replaced {
		b.subs = append(b.subs, subscription{id: id, fn: fn})
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i := range b.subs {
			if b.subs[i].id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the update to every subscriber in registration order.
func (b *Bus) Publish(update model.TranscriptUpdate) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		b.deliver(sub, update)
	}
}

func (b *Bus) deliver(sub subscription, update model.TranscriptUpdate) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panicked", "subscriber", sub.id, "file", update.SessionFile, "panic", r)
		}
	}()
	sub.fn(update)
}
