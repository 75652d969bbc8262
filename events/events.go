// Package events defines the domain events published when a document
// transaction commits, and the bus that delivers them.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/poiesic/vellum/core"
)

// Event is a change to one document.
type Event interface {
	DocumentID() string
	Tag() core.EventTag
}

// CreateEvent is published once for a newly created document.
type CreateEvent struct {
	Document *core.Document
}

func (e CreateEvent) DocumentID() string  { return e.Document.DocumentID }
func (e CreateEvent) Tag() core.EventTag { return core.EventCreate }

// UpdateEvent is published once per transaction that updated a document.
type UpdateEvent struct {
	Document *core.Document
}

func (e UpdateEvent) DocumentID() string  { return e.Document.DocumentID }
func (e UpdateEvent) Tag() core.EventTag { return core.EventUpdate }

// AggregatedUpdateEvent coalesces the UpdateEvents of one document
// received within an Aggregator window. Document is the latest state seen.
type AggregatedUpdateEvent struct {
	Document *core.Document
}

func (e AggregatedUpdateEvent) DocumentID() string  { return e.Document.DocumentID }
func (e AggregatedUpdateEvent) Tag() core.EventTag { return core.EventUpdate }

// DeleteEvent is published once for a deleted document.
type DeleteEvent struct {
	ID string
}

func (e DeleteEvent) DocumentID() string  { return e.ID }
func (e DeleteEvent) Tag() core.EventTag { return core.EventDelete }

// Handler receives published events. It runs on the publishing goroutine.
type Handler func(ctx context.Context, e Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus delivers events synchronously to its subscribers in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	logger *slog.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers h and returns a function removing it again.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to every subscriber before returning.
// A panicking handler is logged and does not stop delivery to the others.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(ctx, s.handler, e)
	}
}

func (b *Bus) deliver(ctx context.Context, h Handler, e Event) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("event handler panicked",
				"document", e.DocumentID(), "event", e.Tag().String(), "panic", p)
		}
	}()
	h(ctx, e)
}
