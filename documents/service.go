package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/go-json-experiment/json/jsontext"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/events"
	"github.com/poiesic/vellum/lock"
	"github.com/poiesic/vellum/metrics"
	"github.com/poiesic/vellum/storage"
	"github.com/poiesic/vellum/wal"
)

// Service is the document API. Mutations need an active wal transaction
// in ctx; reads outside of one use a throwaway registry.
type Service struct {
	store        storage.ObjectStore
	coord        *wal.Coordinator
	cache        *VersionCache
	ownsCache    bool
	clock        Clock
	locker       lock.Locker
	bus          *events.Bus
	metrics      *metrics.Metrics
	logger       *slog.Logger
	multiVersion bool
}

// Option configures a Service.
type Option func(*Service) error

// WithVersionCache sets the version list cache.
// Default is a cache of DefaultVersionCacheSize lists for DefaultVersionCacheTTL.
func WithVersionCache(cache *VersionCache) Option {
	return func(s *Service) error {
		s.cache = cache
		return nil
	}
}

// WithClock sets the clock version timestamps are taken from.
func WithClock(clock Clock) Option {
	return func(s *Service) error {
		s.clock = clock
		return nil
	}
}

// WithLocker sets the lock taken around the persist step of each document.
// Default is an in-process lock, which only protects a single node.
func WithLocker(locker lock.Locker) Option {
	return func(s *Service) error {
		s.locker = locker
		return nil
	}
}

// WithBus sets the bus events are published on.
func WithBus(bus *events.Bus) Option {
	return func(s *Service) error {
		s.bus = bus
		return nil
	}
}

// WithMetrics sets the metrics to record in.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) error {
		s.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMultiVersioning selects between keeping every version (the default)
// and overwriting a single version in place.
func WithMultiVersioning(enabled bool) Option {
	return func(s *Service) error {
		s.multiVersion = enabled
		return nil
	}
}

// NewService creates a document service on store. Writes to store must go
// through coord's transactions, so store is normally a *wal.Store.
func NewService(store storage.ObjectStore, coord *wal.Coordinator, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if coord == nil {
		return nil, ErrCoordinatorRequired
	}
	s := &Service{
		store:        store,
		coord:        coord,
		clock:        NewClock(),
		logger:       slog.Default(),
		multiVersion: true,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.cache == nil {
		cache, err := NewVersionCache(DefaultVersionCacheSize, DefaultVersionCacheTTL)
		if err != nil {
			return nil, err
		}
		s.cache = cache
		s.ownsCache = true
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.bus == nil {
		s.bus = events.NewBus(s.logger)
	}
	return s, nil
}

// Close releases the version cache if the service created it.
func (s *Service) Close() {
	if s.ownsCache {
		s.cache.Close()
	}
}

// Bus returns the bus events are published on.
func (s *Service) Bus() *events.Bus {
	return s.bus
}

// RegisterActions registers the cache invalidation action on mux.
func (s *Service) RegisterActions(mux *wal.Mux) {
	mux.HandleFunc(wal.OpInvalidate, func(ctx context.Context, a wal.Action) error {
		id, ok := documentIDFromName(a.Name)
		if !ok {
			return fmt.Errorf("%w: %s is not a document", core.ErrInvalidObjectName, a.Name)
		}
		s.cache.Invalidate(id)
		return nil
	})
}

type registryKey struct {
	svc *Service
}

// Registry returns the registry bound to the transaction in ctx, binding a
// new one on first use. Outside a transaction it returns a read-only
// registry that is not retained.
func (s *Service) Registry(ctx context.Context) *Registry {
	tx, ok := wal.Active(ctx)
	if !ok {
		return newRegistry(s, nil)
	}
	key := registryKey{s}
	if v, ok := tx.Resource(key); ok {
		return v.(*Registry)
	}
	r := newRegistry(s, tx)
	tx.Bind(key, r)
	tx.OnBeforeCommit(r.Flush)
	return r
}

func (s *Service) transactional(ctx context.Context) (*Registry, error) {
	if _, ok := wal.Active(ctx); !ok {
		return nil, wal.ErrNoTransaction
	}
	return s.Registry(ctx), nil
}

// CreateDocument creates doc, generating an id if it has none.
func (s *Service) CreateDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	r, err := s.transactional(ctx)
	if err != nil {
		return nil, err
	}
	return r.Create(ctx, doc)
}

// Update stores a new version of doc. See Registry.Update.
func (s *Service) Update(ctx context.Context, doc *core.Document) (*core.Document, error) {
	r, err := s.transactional(ctx)
	if err != nil {
		return nil, err
	}
	return r.Update(ctx, doc)
}

// DeleteDocument deletes document id.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	r, err := s.transactional(ctx)
	if err != nil {
		return err
	}
	if err := r.Delete(ctx, id); err != nil {
		return err
	}
	if !s.multiVersion {
		// Content has no history to keep when the document has none.
		return s.store.Delete(ctx, contentPrefix.Append(id))
	}
	return nil
}

// GetDocument returns the head version of id.
func (s *Service) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	return s.Registry(ctx).Get(ctx, id, nil)
}

// GetDocumentVersion returns the version of id stored at ts.
func (s *Service) GetDocumentVersion(ctx context.Context, id string, ts time.Time) (*core.Document, error) {
	return s.Registry(ctx).Get(ctx, id, &ts)
}

// GetVersions returns the persisted version timestamps of id in ascending order.
func (s *Service) GetVersions(ctx context.Context, id string) ([]time.Time, error) {
	if !s.multiVersion {
		return nil, ErrSingleVersion
	}
	if err := core.ValidateDocumentID(id); err != nil {
		return nil, err
	}
	versions, err := s.versions(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: document %s", core.ErrNotFound, id)
	}
	return versions, nil
}

// GetAllDocumentIDs yields the id of every stored document, deleted ones included.
func (s *Service) GetAllDocumentIDs(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for obj, err := range s.store.List(ctx, documentsPrefix) {
			if err != nil {
				yield("", err)
				return
			}
			obj.Close()
			id, ok := documentIDFromName(obj.Name)
			if !ok || len(obj.Name) != 2 {
				continue
			}
			if !yield(id, nil) {
				return
			}
		}
	}
}

// StoreFacet sets facet key of document id.
func (s *Service) StoreFacet(ctx context.Context, id, key string, value jsontext.Value) error {
	r, err := s.transactional(ctx)
	if err != nil {
		return err
	}
	return r.Store(ctx, id, key, value)
}

// RemoveFacet drops facet key of document id.
func (s *Service) RemoveFacet(ctx context.Context, id, key string) error {
	r, err := s.transactional(ctx)
	if err != nil {
		return err
	}
	return r.Remove(ctx, id, key)
}

// RetrieveFacet returns facet key of document id.
func (s *Service) RetrieveFacet(ctx context.Context, id, key string) (jsontext.Value, bool, error) {
	return s.Registry(ctx).Retrieve(ctx, id, key)
}

// versions returns the version list of id, from the cache when possible.
func (s *Service) versions(ctx context.Context, id string) ([]time.Time, error) {
	if versions, ok := s.cache.Get(id); ok {
		return versions, nil
	}
	generation := s.cache.Generation(id)
	versions, err := s.listVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Fill(id, generation, versions)
	return versions, nil
}

// listVersions reads the version list of id from the store.
func (s *Service) listVersions(ctx context.Context, id string) ([]time.Time, error) {
	var versions []time.Time
	for obj, err := range s.store.List(ctx, documentName(id)) {
		if err != nil {
			return nil, err
		}
		obj.Close()
		if obj.IsDirectory() {
			continue
		}
		ts, err := parseTimestamp(obj.Name.Last())
		if err != nil {
			s.logger.Warn("ignoring unexpected object under document", "name", obj.Name.String(), "err", err)
			continue
		}
		versions = append(versions, ts)
	}
	return sortVersions(versions), nil
}

// loadHead returns the head version of id, nil if it has never been stored.
// Tombstones are returned as is.
func (s *Service) loadHead(ctx context.Context, id string) (*core.Document, core.Version, error) {
	if !s.multiVersion {
		obj, err := s.store.Get(ctx, documentName(id))
		if err != nil || obj == nil {
			return nil, core.VersionNew, err
		}
		version := obj.Version
		doc, err := decodeDocument(obj)
		if err != nil {
			return nil, core.VersionNew, err
		}
		return doc, version, nil
	}

	for attempt := 0; ; attempt++ {
		versions, err := s.versions(ctx, id)
		if err != nil {
			return nil, core.VersionNew, err
		}
		if len(versions) == 0 {
			return nil, core.VersionNew, nil
		}
		doc, err := s.loadVersion(ctx, id, versions[len(versions)-1])
		if errors.Is(err, core.ErrVersionNotFound) && attempt == 0 {
			// The cached list is behind a concurrent rollback.
			s.cache.Invalidate(id)
			continue
		}
		if err != nil {
			return nil, core.VersionNew, err
		}
		return doc, core.VersionNew, nil
	}
}

// loadVersion reads one version of id.
func (s *Service) loadVersion(ctx context.Context, id string, ts time.Time) (*core.Document, error) {
	obj, err := s.store.Get(ctx, versionName(id, ts))
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: document %s version %s", core.ErrVersionNotFound, id, ts.Format(time.RFC3339Nano))
	}
	doc, err := decodeDocument(obj)
	if err != nil {
		return nil, err
	}
	stamp := ts
	doc.VersionTimestamp = &stamp
	return doc, nil
}

// persist writes body as the new state of d under the document's lock.
func (s *Service) persist(ctx context.Context, d *txDocument, body *core.Document) error {
	name := documentName(d.id)
	held, err := s.locker.Acquire(ctx, name.String())
	if err != nil {
		return fmt.Errorf("lock document %s: %w", d.id, err)
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("document lock release failed", "document", d.id, "err", err)
		}
	}()

	// Registered first so it runs last, after the store has been reverted.
	if err := s.coord.AppendUndoAction(ctx, wal.Invalidate(name)); err != nil {
		return err
	}
	if err := s.write(ctx, d, body); err != nil {
		return err
	}
	s.cache.Invalidate(d.id)
	return s.coord.AppendCommitAction(ctx, wal.Invalidate(name))
}

func (s *Service) write(ctx context.Context, d *txDocument, body *core.Document) error {
	if !s.multiVersion {
		if d.state == stateDeleted {
			if err := s.checkHeadVersion(ctx, d); err != nil {
				return err
			}
			return s.store.Delete(ctx, documentName(d.id))
		}
		data, err := encodeDocument(body)
		if err != nil {
			return err
		}
		err = s.store.Put(ctx, documentName(d.id), d.baseVersion, bytes.NewReader(data), int64(len(data)))
		if errors.Is(err, core.ErrVersionMismatch) {
			s.metrics.RecordVersionMismatch(metrics.StageMidAir)
		}
		return err
	}

	// Mid-air check: nobody may have stored a version since the snapshot.
	versions, err := s.listVersions(ctx, d.id)
	if err != nil {
		return err
	}
	var latest, loaded *time.Time
	if len(versions) > 0 {
		latest = &versions[len(versions)-1]
	}
	if d.base != nil {
		loaded = d.base.VersionTimestamp
	}
	if !sameVersion(latest, loaded) {
		s.logger.Info("mid-air collision", "document", d.id,
			"stored", formatVersionPtr(latest), "loaded", formatVersionPtr(loaded))
		s.metrics.RecordVersionMismatch(metrics.StageMidAir)
		return &core.VersionMismatchError{DocumentID: d.id, Expected: latest, Actual: loaded}
	}

	data, err := encodeDocument(body)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, versionName(d.id, *body.VersionTimestamp), core.VersionNew, bytes.NewReader(data), int64(len(data)))
}

// checkHeadVersion fails when the stored head is no longer the one d was
// loaded from.
func (s *Service) checkHeadVersion(ctx context.Context, d *txDocument) error {
	name := documentName(d.id)
	obj, err := s.store.Get(ctx, name)
	if err != nil {
		return err
	}
	actual := core.VersionNew
	if obj != nil {
		actual = obj.Version
		obj.Close()
	}
	if actual != d.baseVersion {
		s.metrics.RecordVersionMismatch(metrics.StageMidAir)
		return &storage.VersionMismatchError{Name: name, Expected: d.baseVersion, Actual: actual}
	}
	return nil
}
