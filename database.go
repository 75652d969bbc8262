// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package vellum

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/poiesic/vellum/config"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/documents"
	"github.com/poiesic/vellum/events"
	"github.com/poiesic/vellum/indexsync"
	"github.com/poiesic/vellum/lock"
	"github.com/poiesic/vellum/lock/natskv"
	"github.com/poiesic/vellum/metrics"
	"github.com/poiesic/vellum/reindex"
	"github.com/poiesic/vellum/search"
	"github.com/poiesic/vellum/storage"
	"github.com/poiesic/vellum/storage/badger"
	"github.com/poiesic/vellum/wal"
	"github.com/prometheus/client_golang/prometheus"
)

// Database wires the document service, its transactions and the search
// index on top of one badger backend.
type Database struct {
	stores     *badger.Stores
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
	coord      *wal.Coordinator
	cache      *documents.VersionCache
	docs       *documents.Service
	aggregator *events.Aggregator
	indexer    *indexsync.Indexer
	sync       *indexsync.Synchronizer
	rebuilder  *reindex.Rebuilder
	searcher   *search.Searcher
	nc         *nats.Conn
	logger     *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	config   *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	engine   search.Engine
	locker   lock.Locker
	progress io.Writer
}

// WithConfig sets the database configuration.
// Default is config.DefaultConfig().
func WithConfig(cfg *config.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.config = cfg
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// WithRegistry registers the metrics with registry.
// Default is a private registry.
func WithRegistry(registry *prometheus.Registry) DatabaseOption {
	return func(o *databaseOptions) {
		o.registry = registry
	}
}

// WithSearchEngine sets the engine the index lives in.
// Default is a search.MemoryEngine, rebuilt from the documents on open.
func WithSearchEngine(engine search.Engine) DatabaseOption {
	return func(o *databaseOptions) {
		o.engine = engine
	}
}

// WithLocker overrides the lock selected by the configuration.
func WithLocker(locker lock.Locker) DatabaseOption {
	return func(o *databaseOptions) {
		o.locker = locker
	}
}

// WithProgress writes rebuild progress to w.
func WithProgress(w io.Writer) DatabaseOption {
	return func(o *databaseOptions) {
		o.progress = w
	}
}

// NewDatabase opens the database described by the configuration. Index
// maintenance starts once the index schema has been checked, which may
// rebuild the index.
func NewDatabase(ctx context.Context, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		config: config.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	cfg := options.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if options.registry == nil {
		options.registry = prometheus.NewRegistry()
	}

	db := &Database{
		gatherer: options.registry,
		logger:   options.logger,
	}
	if err := db.open(ctx, cfg, options); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *Database) open(ctx context.Context, cfg *config.Config, options *databaseOptions) error {
	logger := db.logger

	backend, err := badger.OpenBackend(cfg.Path, cfg.InMemory, badger.WithBackendLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.stores, err = badger.OpenStores(backend, badger.WithBufferSize(cfg.ChunkSize), badger.WithLogger(logger))
	if err != nil {
		backend.Close()
		return fmt.Errorf("failed to open stores: %w", err)
	}

	db.metrics, err = metrics.New(options.registry)
	if err != nil {
		return err
	}

	mux := wal.NewStoreExecutor(db.stores.Objects)
	db.coord = wal.NewCoordinator(mux, wal.WithLogger(logger), wal.WithMetrics(db.metrics))

	locker := options.locker
	if locker == nil {
		locker, err = db.openLocker(ctx, cfg)
		if err != nil {
			return err
		}
	}

	db.cache, err = documents.NewVersionCache(cfg.VersionCacheSize, cfg.VersionCacheTTL)
	if err != nil {
		return err
	}
	db.docs, err = documents.NewService(wal.NewStore(db.stores.Objects), db.coord,
		documents.WithVersionCache(db.cache),
		documents.WithLocker(locker),
		documents.WithBus(events.NewBus(logger)),
		documents.WithMetrics(db.metrics),
		documents.WithLogger(logger),
		documents.WithMultiVersioning(cfg.MultiVersioning),
	)
	if err != nil {
		return err
	}
	db.docs.RegisterActions(mux)
	db.aggregator = events.NewAggregator(db.docs.Bus(), cfg.AggregationWindow)

	engine := options.engine
	if engine == nil {
		engine = search.NewMemoryEngine()
	}
	db.indexer = indexsync.NewIndexer(engine, cfg.Index, search.DocumentMapping())

	db.sync, err = indexsync.NewSynchronizer(db.stores.Queue, db.docs, db.indexer,
		indexsync.WithMetrics(db.metrics),
		indexsync.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	db.sync.Subscribe(db.docs.Bus())

	db.rebuilder, err = reindex.NewRebuilder(db.docs, db.indexer,
		reindex.WithConfig(&reindex.Config{
			Workers:        cfg.Rebuild.Workers,
			ReportInterval: cfg.Rebuild.ReportInterval,
			MaxRetries:     cfg.Rebuild.MaxRetries,
			RetryDelay:     cfg.Rebuild.RetryDelay,
		}),
		reindex.WithCheckpoints(db.stores.Checkpoints),
		reindex.WithProgress(options.progress),
		reindex.WithMetrics(db.metrics),
		reindex.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	db.searcher, err = search.NewSearcher(engine, cfg.Index, search.WithLogger(logger))
	if err != nil {
		return err
	}

	if err := db.sync.Start(ctx, db.rebuilder.EnsureSchema); err != nil {
		return fmt.Errorf("failed to start index maintenance: %w", err)
	}
	return nil
}

func (db *Database) openLocker(ctx context.Context, cfg *config.Config) (lock.Locker, error) {
	if cfg.Lock.Backend != config.LockNATS {
		return lock.NewLocal(), nil
	}
	nc, err := nats.Connect(cfg.Lock.URL, nats.Name("vellum"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	db.nc = nc
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}
	kv, err := natskv.CreateBucket(ctx, js, cfg.Lock.Bucket, cfg.Lock.TTL)
	if err != nil {
		return nil, err
	}
	return natskv.New(kv, natskv.WithLogger(db.logger)), nil
}

// Close flushes pending index maintenance into the queue and releases
// every resource. Queued elements are processed on the next open.
func (db *Database) Close() error {
	if db.aggregator != nil {
		db.aggregator.Close(context.Background())
	}
	if db.sync != nil {
		db.sync.Release()
	}
	if db.docs != nil {
		db.docs.Close()
	}
	if db.cache != nil {
		db.cache.Close()
	}
	var err error
	if db.stores != nil {
		if err = db.stores.Close(); err != nil {
			db.logger.Error("error closing stores", "err", err)
		}
	}
	if db.nc != nil {
		db.nc.Close()
	}
	return err
}

// WithTransaction runs fn in a transaction. Mutations made through
// Documents inside fn commit or roll back together.
func (db *Database) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.coord.WithTransaction(ctx, fn)
}

// Documents returns the document service.
func (db *Database) Documents() *documents.Service {
	return db.docs
}

// Searcher returns the searcher reading from the read alias.
func (db *Database) Searcher() *search.Searcher {
	return db.searcher
}

// Rebuild rebuilds the search index.
func (db *Database) Rebuild(ctx context.Context) (*reindex.Result, error) {
	return db.rebuilder.Rebuild(ctx)
}

// LastRebuild returns the checkpoint of the last finished index rebuild,
// nil if the index was never rebuilt.
func (db *Database) LastRebuild(ctx context.Context) (*core.Checkpoint, error) {
	return db.rebuilder.LastRebuild(ctx)
}

// SyncIndex publishes pending coalesced updates and waits until the index
// has caught up with the queue.
func (db *Database) SyncIndex(ctx context.Context) error {
	db.aggregator.Flush(ctx)
	return db.sync.Wait(ctx)
}

// Queue returns the index maintenance queue.
func (db *Database) Queue() storage.Queue {
	return db.stores.Queue
}

// CheckpointRepository returns the rebuild checkpoints.
func (db *Database) CheckpointRepository() storage.CheckpointRepository {
	return db.stores.Checkpoints
}

// Metrics returns the database metrics.
func (db *Database) Metrics() *metrics.Metrics {
	return db.metrics
}

// Gatherer returns the registry the metrics are registered with.
func (db *Database) Gatherer() prometheus.Gatherer {
	return db.gatherer
}

// IsClosed reports whether the backend has been closed.
func (db *Database) IsClosed() bool {
	return db.stores == nil || db.stores.Backend.IsClosed()
}
