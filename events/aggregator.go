package events

import (
	"context"
	"sync"
	"time"

	"github.com/poiesic/vellum/core"
)

// DefaultWindow is the coalescing window used when none is configured.
const DefaultWindow = 500 * time.Millisecond

// Aggregator coalesces UpdateEvents per document and republishes them as a
// single AggregatedUpdateEvent once the window opened by the first update
// has elapsed. A DeleteEvent for the document drops the pending update.
type Aggregator struct {
	bus         *Bus
	window      time.Duration
	unsubscribe func()

	mu      sync.Mutex
	pending map[string]*pendingUpdate
	closed  bool
}

type pendingUpdate struct {
	doc   *core.Document
	timer *time.Timer
}

// NewAggregator subscribes a new Aggregator to bus.
func NewAggregator(bus *Bus, window time.Duration) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	a := &Aggregator{
		bus:     bus,
		window:  window,
		pending: make(map[string]*pendingUpdate),
	}
	a.unsubscribe = bus.Subscribe(a.handle)
	return a
}

func (a *Aggregator) handle(ctx context.Context, e Event) {
	switch ev := e.(type) {
	case UpdateEvent:
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.closed {
			return
		}
		id := ev.DocumentID()
		if p, ok := a.pending[id]; ok {
			p.doc = ev.Document
			return
		}
		p := &pendingUpdate{doc: ev.Document}
		p.timer = time.AfterFunc(a.window, func() { a.fire(id, p) })
		a.pending[id] = p
	case DeleteEvent:
		a.mu.Lock()
		defer a.mu.Unlock()
		if p, ok := a.pending[ev.ID]; ok {
			p.timer.Stop()
			delete(a.pending, ev.ID)
		}
	}
}

func (a *Aggregator) fire(id string, p *pendingUpdate) {
	a.mu.Lock()
	if a.pending[id] != p {
		a.mu.Unlock()
		return
	}
	delete(a.pending, id)
	doc := p.doc
	a.mu.Unlock()

	a.bus.Publish(context.Background(), AggregatedUpdateEvent{Document: doc})
}

// Pending returns the number of documents with an unpublished update.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Flush publishes every pending update immediately.
func (a *Aggregator) Flush(ctx context.Context) {
	a.mu.Lock()
	docs := make([]*core.Document, 0, len(a.pending))
	for id, p := range a.pending {
		p.timer.Stop()
		docs = append(docs, p.doc)
		delete(a.pending, id)
	}
	a.mu.Unlock()

	for _, doc := range docs {
		a.bus.Publish(ctx, AggregatedUpdateEvent{Document: doc})
	}
}

// Close flushes pending updates and stops listening to the bus.
func (a *Aggregator) Close(ctx context.Context) {
	a.unsubscribe()
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.Flush(ctx)
}
