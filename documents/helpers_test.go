package documents

import (
	"context"
	"io"
	"iter"
	"slices"
	"sync"
	"testing"

	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/events"
	"github.com/poiesic/vellum/metrics"
	"github.com/poiesic/vellum/storage"
	"github.com/poiesic/vellum/storage/badger"
	"github.com/poiesic/vellum/wal"
	"github.com/stretchr/testify/require"
)

// recordingStore records the mutations passed to the wrapped store.
type recordingStore struct {
	storage.ObjectStore

	mu      sync.Mutex
	puts    []recordedPut
	deletes []string
	// reverseList yields listings in reverse order.
	reverseList bool
}

type recordedPut struct {
	name     string
	expected core.Version
}

func (s *recordingStore) Put(ctx context.Context, name core.ObjectName, expected core.Version, content io.Reader, length int64) error {
	s.mu.Lock()
	s.puts = append(s.puts, recordedPut{name: name.String(), expected: expected})
	s.mu.Unlock()
	return s.ObjectStore.Put(ctx, name, expected, content, length)
}

func (s *recordingStore) Delete(ctx context.Context, name core.ObjectName) error {
	s.mu.Lock()
	s.deletes = append(s.deletes, name.String())
	s.mu.Unlock()
	return s.ObjectStore.Delete(ctx, name)
}

func (s *recordingStore) List(ctx context.Context, prefix core.ObjectName) iter.Seq2[*storage.StoreObject, error] {
	if !s.reverseList {
		return s.ObjectStore.List(ctx, prefix)
	}
	return func(yield func(*storage.StoreObject, error) bool) {
		var all []*storage.StoreObject
		for obj, err := range s.ObjectStore.List(ctx, prefix) {
			if err != nil {
				yield(nil, err)
				return
			}
			all = append(all, obj)
		}
		slices.Reverse(all)
		for _, obj := range all {
			if !yield(obj, nil) {
				return
			}
		}
	}
}

func (s *recordingStore) recordedPuts() []recordedPut {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.puts)
}

func (s *recordingStore) mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts) + len(s.deletes)
}

type fixture struct {
	svc      *Service
	coord    *wal.Coordinator
	objects  *badger.ObjectStore
	recorder *recordingStore
	metrics  *metrics.Metrics
	events   *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) handle(ctx context.Context, e events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) tags() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Tag().String()+":"+e.DocumentID())
	}
	return out
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	stores, err := badger.NewMemoryStores(badger.WithBufferSize(64))
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	m, err := metrics.New(nil)
	require.NoError(t, err)

	mux := wal.NewStoreExecutor(stores.Objects)
	coord := wal.NewCoordinator(mux, wal.WithMetrics(m))
	recorder := &recordingStore{ObjectStore: wal.NewStore(stores.Objects)}

	svc, err := NewService(recorder, coord, append([]Option{WithMetrics(m)}, opts...)...)
	require.NoError(t, err)
	svc.RegisterActions(mux)
	t.Cleanup(svc.Close)

	log := &eventLog{}
	svc.Bus().Subscribe(log.handle)

	return &fixture{
		svc:      svc,
		coord:    coord,
		objects:  stores.Objects,
		recorder: recorder,
		metrics:  m,
		events:   log,
	}
}

// inTx runs fn in a committed transaction.
func (f *fixture) inTx(t *testing.T, fn func(ctx context.Context) error) error {
	t.Helper()
	return f.coord.WithTransaction(context.Background(), fn)
}

func (f *fixture) create(t *testing.T, doc *core.Document) *core.Document {
	t.Helper()
	var created *core.Document
	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		var err error
		created, err = f.svc.CreateDocument(ctx, doc)
		return err
	}))
	return created
}

func (f *fixture) update(t *testing.T, doc *core.Document) (*core.Document, error) {
	t.Helper()
	var updated *core.Document
	err := f.inTx(t, func(ctx context.Context) error {
		var err error
		updated, err = f.svc.Update(ctx, doc)
		return err
	})
	return updated, err
}

// dump returns the content of every object in the backing store.
func (f *fixture) dump(t *testing.T) map[string]string {
	t.Helper()
	out := map[string]string{}
	for obj, err := range f.objects.List(context.Background(), core.ObjectName{}) {
		require.NoError(t, err)
		data, err := obj.ReadAll()
		require.NoError(t, err)
		out[obj.Name.String()] = string(data)
	}
	return out
}
