package indexsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/events"
	"github.com/poiesic/vellum/metrics"
	"github.com/poiesic/vellum/storage"
)

// DocumentSource reads the current state of a document.
type DocumentSource interface {
	GetDocument(ctx context.Context, id string) (*core.Document, error)
}

// Gate decides whether the write path may start, typically by checking
// the index schema and rebuilding on mismatch.
type Gate func(ctx context.Context) error

// Synchronizer drains the index queue into the search index.
type Synchronizer struct {
	queue   storage.Queue
	source  DocumentSource
	indexer *Indexer
	pool    *ants.Pool
	metrics *metrics.Metrics
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	started  atomic.Bool
	released atomic.Bool
	draining atomic.Bool
	rerun    atomic.Bool
	wg       sync.WaitGroup

	mu           sync.Mutex
	unsubscribes []func()
}

// Option configures a Synchronizer.
type Option func(*Synchronizer) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics to record in.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synchronizer) error {
		s.metrics = m
		return nil
	}
}

// NewSynchronizer creates a synchronizer. Elements are only drained after Start.
func NewSynchronizer(queue storage.Queue, source DocumentSource, indexer *Indexer, opts ...Option) (*Synchronizer, error) {
	if queue == nil {
		return nil, ErrQueueRequired
	}
	if source == nil {
		return nil, ErrSourceRequired
	}
	if indexer == nil {
		return nil, ErrIndexerRequired
	}

	// A single worker: elements of one key must be processed in order.
	pool, err := ants.NewPool(1)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		queue:   queue,
		source:  source,
		indexer: indexer,
		pool:    pool,
		logger:  slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			pool.Release()
			cancel()
			return nil, err
		}
	}
	queue.RegisterListener(s.trigger)
	return s, nil
}

// Subscribe enqueues the document events published on bus.
// Raw UpdateEvents are ignored in favour of AggregatedUpdateEvents.
func (s *Synchronizer) Subscribe(bus *events.Bus) {
	unsubscribe := bus.Subscribe(func(ctx context.Context, e events.Event) {
		var err error
		switch e.(type) {
		case events.CreateEvent:
			err = s.IndexDocument(ctx, e.DocumentID())
		case events.AggregatedUpdateEvent:
			err = s.UpdateDocument(ctx, e.DocumentID())
		case events.DeleteEvent:
			err = s.DeleteDocument(ctx, e.DocumentID())
		default:
			return
		}
		if err != nil {
			s.logger.Error("failed to enqueue index maintenance", "document", e.DocumentID(),
				"event", e.Tag().String(), "err", err)
		}
	})
	s.mu.Lock()
	s.unsubscribes = append(s.unsubscribes, unsubscribe)
	s.mu.Unlock()
}

// IndexDocument enqueues indexing of a new document.
func (s *Synchronizer) IndexDocument(ctx context.Context, id string) error {
	return s.enqueue(ctx, id, core.EventCreate)
}

// UpdateDocument enqueues reindexing of a changed document.
func (s *Synchronizer) UpdateDocument(ctx context.Context, id string) error {
	return s.enqueue(ctx, id, core.EventUpdate)
}

// DeleteDocument enqueues removal of a document from the index.
func (s *Synchronizer) DeleteDocument(ctx context.Context, id string) error {
	return s.enqueue(ctx, id, core.EventDelete)
}

func (s *Synchronizer) enqueue(ctx context.Context, id string, event core.EventTag) error {
	if s.released.Load() {
		return ErrReleased
	}
	return s.queue.PutInQueue(ctx, id, event)
}

// Start runs gate, then begins draining, including elements left by a
// previous process. The queue keeps filling while gate runs.
func (s *Synchronizer) Start(ctx context.Context, gate Gate) error {
	if s.released.Load() {
		return ErrReleased
	}
	if gate != nil {
		if err := gate(ctx); err != nil {
			return err
		}
	}
	s.started.Store(true)
	s.trigger()
	return nil
}

// trigger makes sure a drain worker runs. It is the queue listener.
func (s *Synchronizer) trigger() {
	if !s.started.Load() || s.released.Load() {
		return
	}
	s.rerun.Store(true)
	if !s.draining.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	if err := s.pool.Submit(s.run); err != nil {
		s.wg.Done()
		s.draining.Store(false)
		s.logger.Error("failed to start index drain", "err", err)
	}
}

func (s *Synchronizer) run() {
	defer s.wg.Done()
	for {
		s.rerun.Store(false)
		s.drain(s.ctx)
		s.draining.Store(false)
		// A trigger that lost the race against the worker set rerun.
		if !s.rerun.Load() || !s.draining.CompareAndSwap(false, true) {
			return
		}
	}
}

func (s *Synchronizer) drain(ctx context.Context) {
	for ctx.Err() == nil {
		element, err := s.queue.GetElementToProcess(ctx)
		if err != nil {
			s.logger.Error("failed to read index queue", "err", err)
			return
		}
		if element == nil {
			s.recordDepth(ctx)
			return
		}

		s.process(ctx, element)
		if ctx.Err() != nil {
			// Released mid-element; it runs again after the next Start.
			return
		}

		if err := s.queue.RemoveProcessedElement(ctx, element.Key); err != nil {
			s.logger.Error("failed to remove processed queue element", "document", element.Key, "err", err)
			return
		}
	}
}

func (s *Synchronizer) recordDepth(ctx context.Context) {
	if n, err := s.queue.Len(ctx); err == nil {
		s.metrics.RecordQueueDepth(n)
	}
}

// process applies one element. Failures are logged and counted only.
func (s *Synchronizer) process(ctx context.Context, element *core.QueueElement) {
	op := element.Event.String()
	target := s.indexer.WriteAlias()

	var err error
	switch element.Event {
	case core.EventDelete:
		err = s.indexer.Remove(ctx, target, element.Key)
	default:
		var doc *core.Document
		doc, err = s.source.GetDocument(ctx, element.Key)
		if errors.Is(err, core.ErrNotFound) {
			s.logger.Warn("document disappeared before indexing, skipping",
				"document", element.Key, "event", op, "queuedAt", element.QueuedAt)
			s.metrics.RecordIndexOperation(op, nil)
			return
		}
		if err == nil {
			err = s.indexer.Index(ctx, target, doc)
		}
	}

	if err != nil {
		err = &core.IndexMaintenanceError{Op: op, DocumentID: element.Key, Err: err}
		s.logger.Error("index maintenance failed", "document", element.Key, "event", op,
			"age", time.Since(element.QueuedAt), "err", err)
	}
	s.metrics.RecordIndexOperation(op, err)
}

// Wait blocks until the queue is empty and no drain is running, or ctx is done.
func (s *Synchronizer) Wait(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if !s.draining.Load() {
			n, err := s.queue.Len(ctx)
			if err != nil {
				return err
			}
			if n == 0 && !s.draining.Load() {
				return nil
			}
			if s.started.Load() {
				s.trigger()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release stops draining and unsubscribes from every bus.
// Queued elements stay in the queue for the next Start.
func (s *Synchronizer) Release() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	for _, unsubscribe := range s.unsubscribes {
		unsubscribe()
	}
	s.unsubscribes = nil
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.pool.Release()
}
