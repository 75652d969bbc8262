package search

import (
	"context"
	"log/slog"
)

// DefaultLimit caps a query that sets no limit.
const DefaultLimit = 100

// Query selects indexed documents.
type Query struct {
	// Filter is a connor condition evaluated against each body.
	Filter map[string]any
	// Text requires every non stop word to appear in the body's text field.
	Text  string
	Limit int
	// IncludeDeleted keeps bodies flagged deleted.
	IncludeDeleted bool
}

// Searcher answers queries through the read alias of an index.
type Searcher struct {
	engine Engine
	alias  string
	logger *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a searcher reading the index called base.
func NewSearcher(engine Engine, base string, opts ...Option) (*Searcher, error) {
	if engine == nil {
		return nil, ErrEngineRequired
	}
	if err := validName(base); err != nil {
		return nil, err
	}
	s := &Searcher{
		engine: engine,
		alias:  ReadAlias(base),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Search returns the documents matching q, ordered by id.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Hit, error) {
	return s.SearchWithMonitor(ctx, q, nil)
}

// SearchWithMonitor is Search reporting each stage to monitor.
func (s *Searcher) SearchWithMonitor(ctx context.Context, q Query, monitor SearchMonitor) ([]Hit, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(q)

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	filter := q.Filter
	if !q.IncludeDeleted {
		filter = withNotDeleted(filter)
	}

	// Text matching happens after the filter, so the engine must not cut
	// the candidates short.
	engineLimit := limit
	if q.Text != "" {
		engineLimit = 0
	}
	candidates, err := s.engine.Search(ctx, s.alias, filter, engineLimit)
	if err != nil {
		s.logger.Error("search failed", "alias", s.alias, "err", err)
		return nil, err
	}
	monitor.AfterFilter(s.alias, len(candidates))

	results := make([]Hit, 0, min(len(candidates), limit))
	for _, hit := range candidates {
		if len(results) == limit {
			break
		}
		if q.Text != "" {
			text, _ := hit.Body["text"].(string)
			if !containsAllQueryWords(text, q.Text) {
				monitor.TextMiss(hit.ID)
				continue
			}
		}
		results = append(results, hit)
	}
	monitor.Finish(results)
	return results, nil
}

// Get returns the indexed body of id.
func (s *Searcher) Get(ctx context.Context, id string) (Body, bool, error) {
	return s.engine.Get(ctx, s.alias, id)
}

// Count returns the number of indexed documents.
func (s *Searcher) Count(ctx context.Context) (int, error) {
	return s.engine.Count(ctx, s.alias)
}

func withNotDeleted(filter map[string]any) map[string]any {
	out := make(map[string]any, len(filter)+1)
	for k, v := range filter {
		out[k] = v
	}
	if _, ok := out["deleted"]; !ok {
		out["deleted"] = map[string]any{"$ne": true}
	}
	return out
}
