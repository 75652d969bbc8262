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


package reindex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/indexsync"
	"github.com/poiesic/vellum/metrics"
	"github.com/poiesic/vellum/search"
	"github.com/poiesic/vellum/storage"
)

// DocumentSource lists and reads documents.
type DocumentSource interface {
	GetAllDocumentIDs(ctx context.Context) iter.Seq2[string, error]
	GetDocument(ctx context.Context, id string) (*core.Document, error)
}

// Config holds configuration for a rebuild.
type Config struct {
	// Workers is the number of documents indexed concurrently
	Workers int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per document
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:        4,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     100 * time.Millisecond,
	}
}

// Result describes a finished rebuild.
type Result struct {
	Index    string
	Previous string
	Indexed  int
	Skipped  int
	Elapsed  time.Duration
}

// Rebuilder performs blue/green rebuilds of one index.
type Rebuilder struct {
	source      DocumentSource
	indexer     *indexsync.Indexer
	checkpoints storage.CheckpointRepository
	config      *Config
	progress    io.Writer
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
	running     atomic.Bool
}

// Option configures a Rebuilder.
type Option func(*Rebuilder) error

// WithConfig sets the rebuild configuration.
// Default is DefaultConfig().
func WithConfig(config *Config) Option {
	return func(r *Rebuilder) error {
		if config == nil {
			config = DefaultConfig()
		}
		r.config = config
		return nil
	}
}

// WithCheckpoints records every finished rebuild in repo.
func WithCheckpoints(repo storage.CheckpointRepository) Option {
	return func(r *Rebuilder) error {
		r.checkpoints = repo
		return nil
	}
}

// WithProgress writes progress reports to w.
func WithProgress(w io.Writer) Option {
	return func(r *Rebuilder) error {
		r.progress = w
		return nil
	}
}

// WithMetrics sets the metrics to record in.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Rebuilder) error {
		r.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Rebuilder) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRebuilder creates a rebuilder for the index family of indexer.
func NewRebuilder(source DocumentSource, indexer *indexsync.Indexer, opts ...Option) (*Rebuilder, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if indexer == nil {
		return nil, ErrIndexerRequired
	}
	r := &Rebuilder{
		source:  source,
		indexer: indexer,
		config:  DefaultConfig(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.config.Workers <= 0 {
		r.config.Workers = 1
	}
	return r, nil
}

// NeedsRebuild reports whether the index behind the read alias is missing
// or was built with a different schema.
func (r *Rebuilder) NeedsRebuild(ctx context.Context) (bool, error) {
	engine, base := r.indexer.Engine(), r.indexer.Base()
	current, ok, err := engine.ResolveAlias(ctx, search.ReadAlias(base))
	if err != nil || !ok {
		return !ok, err
	}
	expected, err := search.SchemaHash(r.indexer.Mapping())
	if err != nil {
		return false, err
	}
	hash, ok := search.HashFromIndexName(base, current)
	return !ok || hash != expected, nil
}

// LastRebuild returns the checkpoint of the last finished rebuild, nil if
// none was recorded or no checkpoint repository is configured.
func (r *Rebuilder) LastRebuild(ctx context.Context) (*core.Checkpoint, error) {
	if r.checkpoints == nil {
		return nil, nil
	}
	return r.checkpoints.LoadCheckpoint(ctx, r.indexer.Base())
}

// EnsureSchema rebuilds the index if NeedsRebuild says so. Otherwise it
// points the write alias at the index behind the read alias, dropping an
// index left behind by an interrupted rebuild.
func (r *Rebuilder) EnsureSchema(ctx context.Context) error {
	needed, err := r.NeedsRebuild(ctx)
	if err != nil {
		return err
	}
	if needed {
		r.logger.Info("index schema changed, rebuilding", "index", r.indexer.Base())
		_, err := r.Rebuild(ctx)
		return err
	}

	engine, base := r.indexer.Engine(), r.indexer.Base()
	current, _, err := engine.ResolveAlias(ctx, search.ReadAlias(base))
	if err != nil {
		return err
	}
	last, err := r.LastRebuild(ctx)
	if err != nil {
		r.logger.Warn("failed to load rebuild checkpoint", "index", base, "err", err)
	} else if last != nil && last.Index != current {
		r.logger.Warn("read alias does not point at the last rebuilt index",
			"alias", search.ReadAlias(base), "current", current, "checkpoint", last.Index)
	}
	written, ok, err := engine.ResolveAlias(ctx, search.WriteAlias(base))
	if err != nil || (ok && written == current) {
		return err
	}
	if err := engine.PutAlias(ctx, search.WriteAlias(base), current); err != nil {
		return err
	}
	if ok {
		r.logger.Warn("dropping index of an interrupted rebuild", "index", written)
		if err := engine.DeleteIndex(ctx, written); err != nil && !errors.Is(err, search.ErrIndexNotFound) {
			return err
		}
	}
	return nil
}

// Rebuild builds a new index from every stored document and swaps the read
// alias over to it. On failure the write alias goes back to the previous
// index and the new index is dropped.
func (r *Rebuilder) Rebuild(ctx context.Context) (result *Result, err error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRebuildInProgress
	}
	defer r.running.Store(false)
	defer func() { r.metrics.RecordRebuild(err) }()

	engine, base, mapping := r.indexer.Engine(), r.indexer.Base(), r.indexer.Mapping()
	hash, err := search.SchemaHash(mapping)
	if err != nil {
		return nil, err
	}

	name := search.IndexName(base, hash, r.now())
	if err := engine.CreateIndex(ctx, name, mapping); err != nil {
		return nil, r.failure("create", err)
	}
	previous, hadPrevious, err := engine.ResolveAlias(ctx, search.ReadAlias(base))
	if err != nil {
		return nil, r.abort(name, "", false, r.failure("resolve", err))
	}
	if err := engine.PutAlias(ctx, search.WriteAlias(base), name); err != nil {
		return nil, r.abort(name, previous, hadPrevious, r.failure("alias", err))
	}

	r.logger.Info("rebuilding index", "index", name, "previous", previous)
	tracker := NewProgressTracker(r.progress, r.config.ReportInterval)
	tracker.Start()

	if err := r.populate(ctx, name, tracker); err != nil {
		return nil, r.abort(name, previous, hadPrevious, err)
	}

	if err := engine.PutAlias(ctx, search.ReadAlias(base), name); err != nil {
		return nil, r.abort(name, previous, hadPrevious, r.failure("alias", err))
	}
	if hadPrevious && previous != name {
		if err := engine.DeleteIndex(ctx, previous); err != nil && !errors.Is(err, search.ErrIndexNotFound) {
			r.logger.Error("failed to delete previous index", "index", previous, "err", err)
		}
	}

	tracker.Finish()
	indexed, skipped, _ := tracker.Counts()
	result = &Result{
		Index:    name,
		Previous: previous,
		Indexed:  indexed,
		Skipped:  skipped,
		Elapsed:  tracker.Elapsed(),
	}

	if r.checkpoints != nil {
		err := r.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
			Name:       base,
			Index:      name,
			SchemaHash: hash,
			Documents:  indexed,
			UpdatedAt:  r.now().UTC(),
		})
		if err != nil {
			// The swap already happened; only the bookkeeping is lost.
			r.logger.Error("failed to save rebuild checkpoint", "index", name, "err", err)
		}
	}

	r.logger.Info("index rebuilt", "index", name, "indexed", indexed, "skipped", skipped,
		"elapsed", result.Elapsed.Round(time.Millisecond))
	return result, nil
}

// populate streams every document id through the indexer into target.
func (r *Rebuilder) populate(ctx context.Context, target string, tracker *ProgressTracker) error {
	pool, err := ants.NewPool(r.config.Workers)
	if err != nil {
		return r.failure("populate", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	for id, err := range r.source.GetAllDocumentIDs(ctx) {
		if err != nil {
			cancel(r.failure("list", err))
			break
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if err := r.indexOne(ctx, target, id, tracker); err != nil {
				cancel(err)
			}
		})
		if err != nil {
			wg.Done()
			cancel(r.failure("populate", err))
			break
		}
	}
	wg.Wait()

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

func (r *Rebuilder) indexOne(ctx context.Context, target, id string, tracker *ProgressTracker) error {
	err := RetryWithBackoff(ctx, func(ctx context.Context) error {
		doc, err := r.source.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		if fresher, err := r.hasFresher(ctx, target, doc); err != nil || fresher {
			return err
		}
		if err := r.indexer.Index(ctx, target, doc); err != nil {
			return err
		}
		// A delete drained before Index would be undone by it.
		if _, err := r.source.GetDocument(ctx, id); !errors.Is(err, core.ErrNotFound) {
			return err
		}
		if err := r.indexer.Remove(ctx, target, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: document %s deleted while rebuilding", core.ErrNotFound, id)
	}, r.config.MaxRetries, r.config.RetryDelay)

	switch {
	case err == nil:
		tracker.Indexed()
		r.metrics.RecordIndexOperation("rebuild", nil)
		return nil
	case errors.Is(err, core.ErrNotFound):
		tracker.Skipped()
		return nil
	default:
		tracker.Failed()
		r.metrics.RecordIndexOperation("rebuild", err)
		return &core.IndexMaintenanceError{Op: "rebuild", DocumentID: id, Err: err}
	}
}

// hasFresher reports whether live maintenance already wrote doc, or a
// later version of it, to target.
func (r *Rebuilder) hasFresher(ctx context.Context, target string, doc *core.Document) (bool, error) {
	body, ok, err := r.indexer.Engine().Get(ctx, target, doc.DocumentID)
	if err != nil || !ok {
		return false, err
	}
	stamp, _ := body["dateModified"].(string)
	modified, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return false, nil
	}
	return !modified.Before(doc.DateModified), nil
}

// abort points the write alias back at previous and drops the new index.
func (r *Rebuilder) abort(name, previous string, hadPrevious bool, cause error) error {
	ctx := context.Background()
	engine, base := r.indexer.Engine(), r.indexer.Base()
	if hadPrevious {
		if err := engine.PutAlias(ctx, search.WriteAlias(base), previous); err != nil {
			r.logger.Error("failed to restore write alias", "index", previous, "err", err)
		}
	}
	if err := engine.DeleteIndex(ctx, name); err != nil {
		r.logger.Error("failed to drop aborted index", "index", name, "err", err)
	}
	r.logger.Error("index rebuild failed", "index", name, "err", cause)
	return cause
}

func (r *Rebuilder) failure(op string, err error) error {
	return &core.IndexMaintenanceError{Op: "rebuild " + op, Err: fmt.Errorf("index %s: %w", r.indexer.Base(), err)}
}
