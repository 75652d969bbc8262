package documents

import (
	"context"
	"fmt"
	"time"

	"github.com/go-json-experiment/json/jsontext"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/events"
	"github.com/poiesic/vellum/metrics"
	"github.com/poiesic/vellum/wal"
)

type state int

const (
	stateUnmodified state = iota
	stateCreated
	stateModified
	stateDeleted
)

func (s state) String() string {
	switch s {
	case stateUnmodified:
		return "unmodified"
	case stateCreated:
		return "created"
	case stateModified:
		return "modified"
	case stateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

type facetDelta struct {
	value   jsontext.Value
	removed bool
}

// txDocument is the registry's record of one document.
type txDocument struct {
	id string
	// base is the persisted head the snapshot was loaded from, nil if none.
	base *core.Document
	// baseVersion is the store version token of base (single-version only).
	baseVersion core.Version
	// doc is the current in-transaction state.
	doc    *core.Document
	facets map[string]facetDelta
	state  state
	// bumped is set once doc carries a version assigned in this transaction.
	bumped bool
}

func (d *txDocument) exists() bool {
	return d.doc != nil && !d.doc.Deleted
}

// Registry is the transaction-scoped cache of documents.
// It is owned by one transaction and performs no locking of its own.
type Registry struct {
	svc  *Service
	tx   *wal.Tx
	docs map[string]*txDocument
	// versions holds persisted versions read by timestamp, keyed by aliasKey.
	versions map[string]*core.Document
	// order lists heads in first-touch order, for deterministic flushing.
	order   []*txDocument
	flushed bool
}

func newRegistry(svc *Service, tx *wal.Tx) *Registry {
	return &Registry{
		svc:      svc,
		tx:       tx,
		docs:     make(map[string]*txDocument),
		versions: make(map[string]*core.Document),
	}
}

// Get returns the head version of id, or the version at ts when ts is set.
func (r *Registry) Get(ctx context.Context, id string, ts *time.Time) (*core.Document, error) {
	if err := core.ValidateDocumentID(id); err != nil {
		return nil, err
	}
	if ts != nil {
		return r.getVersion(ctx, id, *ts)
	}
	d, err := r.head(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.exists() {
		return nil, fmt.Errorf("%w: document %s", core.ErrNotFound, id)
	}
	return r.view(d), nil
}

func (r *Registry) getVersion(ctx context.Context, id string, ts time.Time) (*core.Document, error) {
	if !r.svc.multiVersion {
		return nil, ErrSingleVersion
	}
	// The head answers only for the version it currently carries; earlier
	// timestamps always come from the store.
	if d, ok := r.docs[id]; ok && d.doc != nil && sameVersion(d.doc.VersionTimestamp, &ts) {
		if !d.exists() {
			return nil, fmt.Errorf("%w: document %s version %s", core.ErrNotFound, id, ts.Format(time.RFC3339Nano))
		}
		return r.view(d), nil
	}
	key := aliasKey(id, ts)
	doc, ok := r.versions[key]
	if !ok {
		var err error
		doc, err = r.svc.loadVersion(ctx, id, ts)
		if err != nil {
			return nil, err
		}
		r.versions[key] = doc
	}
	if doc.Deleted {
		return nil, fmt.Errorf("%w: document %s version %s", core.ErrNotFound, id, ts.Format(time.RFC3339Nano))
	}
	return doc.Clone(), nil
}

// head returns the record of the head version of id, loading it on first use.
func (r *Registry) head(ctx context.Context, id string) (*txDocument, error) {
	if d, ok := r.docs[id]; ok {
		return d, nil
	}
	doc, version, err := r.svc.loadHead(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &txDocument{id: id, base: doc, baseVersion: version, doc: doc.Clone()}
	r.docs[id] = d
	r.order = append(r.order, d)
	return d, nil
}

// view returns the state of d as seen through the transaction, with the
// facet delta applied.
func (r *Registry) view(d *txDocument) *core.Document {
	doc := d.doc.Clone()
	applyFacets(doc, d.facets)
	return doc
}

func applyFacets(doc *core.Document, delta map[string]facetDelta) {
	if len(delta) == 0 {
		return
	}
	if doc.Facets == nil {
		doc.Facets = make(map[string]jsontext.Value, len(delta))
	}
	for key, fd := range delta {
		if fd.removed {
			delete(doc.Facets, key)
			continue
		}
		doc.Facets[key] = fd.value.Clone()
	}
}

func (r *Registry) writable() error {
	if r.tx == nil {
		return wal.ErrNoTransaction
	}
	if r.flushed {
		return ErrRegistryFlushed
	}
	return nil
}

// bump gives d a new version, once per transaction unless force is set.
func (r *Registry) bump(d *txDocument, force bool) {
	if d.bumped && !force {
		return
	}
	now := after(r.svc.clock, d.doc.VersionTimestamp)
	d.doc.DateModified = now
	if r.svc.multiVersion {
		d.doc.VersionTimestamp = &now
	}
	d.bumped = true
}

// Create registers a new document. A missing id is generated.
func (r *Registry) Create(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", core.ErrInvalidDocument)
	}
	doc = doc.Clone()
	if doc.DocumentID == "" {
		doc.DocumentID = core.NewDocumentID()
	}
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	d, err := r.head(ctx, doc.DocumentID)
	if err != nil {
		return nil, err
	}
	if d.exists() || d.state != stateUnmodified {
		return nil, fmt.Errorf("%w: document %s", core.ErrAlreadyExists, doc.DocumentID)
	}

	// A persisted tombstone may be followed by a new incarnation.
	var prev *time.Time
	if d.base != nil {
		prev = d.base.VersionTimestamp
	}
	now := after(r.svc.clock, prev)
	doc.DateCreated = now
	doc.DateModified = now
	doc.Deleted = false
	doc.VersionTimestamp = nil
	if r.svc.multiVersion {
		doc.VersionTimestamp = &now
	}
	d.doc = doc
	d.state = stateCreated
	d.bumped = true
	return r.view(d), nil
}

// Update registers a new version of doc.
// A non-nil doc.VersionTimestamp must match the current version.
func (r *Registry) Update(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}
	d, err := r.head(ctx, doc.DocumentID)
	if err != nil {
		return nil, err
	}
	if !d.exists() {
		return nil, fmt.Errorf("%w: document %s", core.ErrNotFound, doc.DocumentID)
	}
	if doc.VersionTimestamp != nil && r.svc.multiVersion && !sameVersion(doc.VersionTimestamp, d.doc.VersionTimestamp) {
		r.svc.metrics.RecordVersionMismatch(metrics.StageInProcess)
		return nil, &core.VersionMismatchError{
			DocumentID: doc.DocumentID,
			Expected:   d.doc.VersionTimestamp,
			Actual:     doc.VersionTimestamp,
		}
	}

	next := doc.Clone()
	next.DateCreated = d.doc.DateCreated
	next.VersionTimestamp = d.doc.VersionTimestamp
	next.Deleted = false
	d.doc = next
	r.bump(d, true)
	if d.state != stateCreated {
		d.state = stateModified
	}
	return r.view(d), nil
}

// Delete marks id deleted. Deleting a document created in the same
// transaction discards it.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.writable(); err != nil {
		return err
	}
	if err := core.ValidateDocumentID(id); err != nil {
		return err
	}
	d, err := r.head(ctx, id)
	if err != nil {
		return err
	}
	if !d.exists() {
		return fmt.Errorf("%w: document %s", core.ErrNotFound, id)
	}
	if d.state == stateCreated {
		d.doc = d.base.Clone()
		d.facets = nil
		d.state = stateUnmodified
		d.bumped = false
		return nil
	}

	d.doc.Deleted = true
	r.bump(d, true)
	d.state = stateDeleted
	return nil
}

// facetTarget returns the record whose facets may be written.
// A document deleted in this transaction still accepts facet writes.
func (r *Registry) facetTarget(ctx context.Context, id string) (*txDocument, error) {
	if err := core.ValidateDocumentID(id); err != nil {
		return nil, err
	}
	d, err := r.head(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.doc == nil || (d.doc.Deleted && d.state != stateDeleted) {
		return nil, fmt.Errorf("%w: document %s", core.ErrNotFound, id)
	}
	return d, nil
}

func (r *Registry) setFacet(ctx context.Context, id, key string, fd facetDelta) error {
	if err := r.writable(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: empty facet key", core.ErrInvalidDocument)
	}
	d, err := r.facetTarget(ctx, id)
	if err != nil {
		return err
	}
	if d.facets == nil {
		d.facets = make(map[string]facetDelta)
	}
	d.facets[key] = fd
	if d.state == stateUnmodified {
		d.state = stateModified
		r.bump(d, false)
	}
	return nil
}

// Store sets facet key of document id to value.
func (r *Registry) Store(ctx context.Context, id, key string, value jsontext.Value) error {
	if !value.IsValid() {
		return fmt.Errorf("%w: facet %s is not valid JSON", core.ErrInvalidDocument, key)
	}
	return r.setFacet(ctx, id, key, facetDelta{value: value.Clone()})
}

// Remove drops facet key of document id.
func (r *Registry) Remove(ctx context.Context, id, key string) error {
	return r.setFacet(ctx, id, key, facetDelta{removed: true})
}

// Retrieve returns facet key of document id as seen by the transaction.
func (r *Registry) Retrieve(ctx context.Context, id, key string) (jsontext.Value, bool, error) {
	d, err := r.facetTarget(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if fd, ok := d.facets[key]; ok {
		if fd.removed {
			return nil, false, nil
		}
		return fd.value.Clone(), true, nil
	}
	v, ok := d.doc.Facets[key]
	if !ok {
		return nil, false, nil
	}
	return v.Clone(), true, nil
}

// attach adds or replaces a content element of document id.
func (r *Registry) attach(ctx context.Context, id string, element core.ContentElement) error {
	if err := r.writable(); err != nil {
		return err
	}
	d, err := r.head(ctx, id)
	if err != nil {
		return err
	}
	if !d.exists() {
		return fmt.Errorf("%w: document %s", core.ErrNotFound, id)
	}
	replaced := false
	for i, ce := range d.doc.ContentElements {
		if ce.ID == element.ID {
			d.doc.ContentElements[i] = element
			replaced = true
		}
	}
	if !replaced {
		d.doc.ContentElements = append(d.doc.ContentElements, element)
	}
	if d.state == stateUnmodified {
		d.state = stateModified
	}
	r.bump(d, false)
	return nil
}

// Flush persists every document changed in the transaction and publishes
// one event per document. It runs once, right before the transaction
// commits; a failure rolls the transaction back.
func (r *Registry) Flush(ctx context.Context) error {
	if r.flushed {
		return nil
	}
	r.flushed = true

	var published []events.Event
	for _, d := range r.order {
		if d.state == stateUnmodified {
			continue
		}
		body := d.doc.Clone()
		applyFacets(body, d.facets)
		if err := r.svc.persist(ctx, d, body); err != nil {
			return err
		}
		published = append(published, eventFor(d.state, body))
	}

	for _, e := range published {
		r.svc.bus.Publish(ctx, e)
		r.svc.metrics.RecordEvent(e.Tag().String())
	}
	return nil
}

func eventFor(s state, doc *core.Document) events.Event {
	switch s {
	case stateCreated:
		return events.CreateEvent{Document: doc}
	case stateDeleted:
		return events.DeleteEvent{ID: doc.DocumentID}
	default:
		return events.UpdateEvent{Document: doc}
	}
}
