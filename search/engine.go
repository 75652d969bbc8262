package search

import "context"

// Body is an indexed document: a JSON object decoded into generic values.
type Body map[string]any

// Hit is one search result.
type Hit struct {
	ID   string
	Body Body
}

// Engine is a search index store.
// Every target argument may name an index or an alias.
type Engine interface {
	CreateIndex(ctx context.Context, name string, mapping Mapping) error
	DeleteIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	// Indices returns the names of all indices starting with prefix.
	Indices(ctx context.Context, prefix string) ([]string, error)

	// PutAlias points alias at index, replacing its previous target atomically.
	PutAlias(ctx context.Context, alias, index string) error
	// ResolveAlias returns the index alias points at.
	ResolveAlias(ctx context.Context, alias string) (string, bool, error)

	Index(ctx context.Context, target, id string, body Body) error
	// Delete removes id from target. Deleting a missing id is not an error.
	Delete(ctx context.Context, target, id string) error
	Get(ctx context.Context, target, id string) (Body, bool, error)
	Count(ctx context.Context, target string) (int, error)
	// Search returns up to limit bodies matching filter, ordered by id.
	// A limit of zero or less returns every match.
	Search(ctx context.Context, target string, filter map[string]any, limit int) ([]Hit, error)
}
