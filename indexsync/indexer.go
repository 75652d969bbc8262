package indexsync

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/search"
)

// Indexer turns documents into index bodies and writes them.
type Indexer struct {
	engine  search.Engine
	base    string
	mapping search.Mapping
}

// NewIndexer creates an indexer for the index called base.
func NewIndexer(engine search.Engine, base string, mapping search.Mapping) *Indexer {
	return &Indexer{engine: engine, base: base, mapping: mapping}
}

// Base returns the name of the index family written to.
func (ix *Indexer) Base() string { return ix.base }

// Mapping returns the schema bodies are written with.
func (ix *Indexer) Mapping() search.Mapping { return ix.mapping }

// Engine returns the engine written to.
func (ix *Indexer) Engine() search.Engine { return ix.engine }

// WriteAlias returns the alias live writes go to.
func (ix *Indexer) WriteAlias() string { return search.WriteAlias(ix.base) }

type indexBody struct {
	ID              string                    `json:"id"`
	Version         *time.Time                `json:"version,omitempty"`
	DateCreated     time.Time                 `json:"dateCreated,omitzero"`
	DateModified    time.Time                 `json:"dateModified,omitzero"`
	Deleted         bool                      `json:"deleted"`
	Facets          map[string]jsontext.Value `json:"facets,omitempty"`
	ContentElements []core.ContentElement     `json:"contentElements,omitempty"`
	ContentLength   int64                     `json:"contentLength"`
	Text            string                    `json:"text,omitempty"`
}

// Body builds the index body of doc.
func (ix *Indexer) Body(doc *core.Document) (search.Body, error) {
	body := indexBody{
		ID:              doc.DocumentID,
		Version:         doc.VersionTimestamp,
		DateCreated:     doc.DateCreated,
		DateModified:    doc.DateModified,
		Facets:          doc.Facets,
		ContentElements: doc.ContentElements,
	}
	var words []string
	for _, ce := range doc.ContentElements {
		body.ContentLength += ce.Length
		words = append(words, ce.Role, ce.FileName, ce.MediaType)
	}
	for _, key := range slices.Sorted(maps.Keys(doc.Facets)) {
		var s string
		if err := json.Unmarshal(doc.Facets[key], &s); err == nil {
			words = append(words, s)
		}
	}
	body.Text = strings.Join(strings.Fields(strings.Join(words, " ")), " ")

	// A JSON round trip yields the generic values filters are evaluated on.
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode index body %s: %w", doc.DocumentID, err)
	}
	var out search.Body
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode index body %s: %w", doc.DocumentID, err)
	}
	return out, nil
}

// Index writes doc to target.
func (ix *Indexer) Index(ctx context.Context, target string, doc *core.Document) error {
	body, err := ix.Body(doc)
	if err != nil {
		return err
	}
	return ix.engine.Index(ctx, target, doc.DocumentID, body)
}

// Remove deletes id from target.
func (ix *Indexer) Remove(ctx context.Context, target, id string) error {
	return ix.engine.Delete(ctx, target, id)
}
