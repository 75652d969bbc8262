package documents

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/storage"
)

// ContentInfo describes a payload passed to PutContent.
type ContentInfo struct {
	// ID of the element to replace; a new id is generated when empty.
	ID        string
	Role      string
	FileName  string
	MediaType string
	// Length is the declared length, zero or less if unknown.
	Length int64
}

// countingReader hashes and counts what passes through it.
type countingReader struct {
	r      io.Reader
	digest io.Writer
	n      int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.digest.Write(p[:n])
		c.n += int64(n)
	}
	return n, err
}

// PutContent stores a payload as content element of document id and
// records the element, with its digest and length, on the document.
func (s *Service) PutContent(ctx context.Context, id string, info ContentInfo, content io.Reader) (core.ContentElement, error) {
	r, err := s.transactional(ctx)
	if err != nil {
		return core.ContentElement{}, err
	}
	if err := core.ValidateDocumentID(id); err != nil {
		return core.ContentElement{}, err
	}
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	if isReservedSegment(info.ID) {
		return core.ContentElement{}, fmt.Errorf("%w: content element id %q", core.ErrInvalidObjectName, info.ID)
	}
	if _, err := r.Get(ctx, id, nil); err != nil {
		return core.ContentElement{}, err
	}

	// Every upload gets its own object so earlier versions keep their bytes.
	var revision string
	expected := core.VersionNew
	if s.multiVersion {
		revision = uuid.NewString()
	}
	name := contentName(id, info.ID, revision)
	if !s.multiVersion {
		current, err := s.store.Get(ctx, name)
		if err != nil {
			return core.ContentElement{}, err
		}
		if current != nil {
			expected = current.Version
			current.Close()
		}
	}

	digest := core.NewDigest()
	counted := &countingReader{r: content, digest: digest}
	if err := s.store.Put(ctx, name, expected, counted, info.Length); err != nil {
		return core.ContentElement{}, err
	}

	element := core.ContentElement{
		ID:        info.ID,
		Role:      info.Role,
		FileName:  info.FileName,
		MediaType: info.MediaType,
		Length:    counted.n,
		Digest:    core.FormatDigest(digest.Sum(nil)),
		Revision:  revision,
	}
	if err := r.attach(ctx, id, element); err != nil {
		return core.ContentElement{}, err
	}
	return element, nil
}

// GetContent opens the payload of content element elementID of the head
// version of document id. The caller must Close the returned object.
func (s *Service) GetContent(ctx context.Context, id, elementID string) (*storage.StoreObject, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.openContent(ctx, doc, elementID)
}

// GetContentVersion opens the payload of content element elementID as it
// was recorded by the version of document id stored at ts.
func (s *Service) GetContentVersion(ctx context.Context, id string, ts time.Time, elementID string) (*storage.StoreObject, error) {
	doc, err := s.GetDocumentVersion(ctx, id, ts)
	if err != nil {
		return nil, err
	}
	return s.openContent(ctx, doc, elementID)
}

func (s *Service) openContent(ctx context.Context, doc *core.Document, elementID string) (*storage.StoreObject, error) {
	element, ok := doc.ContentElement(elementID)
	if !ok {
		return nil, fmt.Errorf("%w: content element %s of document %s", core.ErrNotFound, elementID, doc.DocumentID)
	}
	obj, err := s.store.Get(ctx, contentName(doc.DocumentID, elementID, element.Revision))
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: content element %s of document %s", core.ErrNotFound, elementID, doc.DocumentID)
	}
	return obj, nil
}
