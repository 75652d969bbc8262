//go:generate go run ../cmd/musgen

package core

import (
	"encoding/hex"
	"hash"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/uuid"
)

// ObjectName is a hierarchical key in the object store.
// Segments are ordered from the root; a name is never empty.
type ObjectName []string

// NewObjectName builds an ObjectName from the given segments.
func NewObjectName(segments ...string) ObjectName {
	name := make(ObjectName, len(segments))
	copy(name, segments)
	return name
}

// ParseObjectName splits a "/" separated path into an ObjectName.
// Leading and trailing separators are ignored.
func ParseObjectName(path string) ObjectName {
	path = strings.Trim(path, "/")
	if path == "" {
		return ObjectName{}
	}
	return ObjectName(strings.Split(path, "/"))
}

// Append returns a new name with the segments appended.
// The receiver is never modified.
func (n ObjectName) Append(segments ...string) ObjectName {
	out := make(ObjectName, 0, len(n)+len(segments))
	out = append(out, n...)
	return append(out, segments...)
}

// Parent returns the name without its last segment.
func (n ObjectName) Parent() ObjectName {
	if len(n) == 0 {
		return ObjectName{}
	}
	return NewObjectName(n[:len(n)-1]...)
}

// Last returns the last segment, or "" for an empty name.
func (n ObjectName) Last() string {
	if len(n) == 0 {
		return ""
	}
	return n[len(n)-1]
}

// HasPrefix reports whether prefix is an ancestor of (or equal to) n.
func (n ObjectName) HasPrefix(prefix ObjectName) bool {
	if len(prefix) > len(n) {
		return false
	}
	for i := range prefix {
		if n[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Equal reports whether both names have identical segments.
func (n ObjectName) Equal(other ObjectName) bool {
	return len(n) == len(other) && n.HasPrefix(other)
}

// Compare orders names lexicographically over segments.
// A proper prefix sorts before any of its descendants.
func (n ObjectName) Compare(other ObjectName) int {
	for i := 0; i < len(n) && i < len(other); i++ {
		if c := strings.Compare(n[i], other[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(n) < len(other):
		return -1
	case len(n) > len(other):
		return 1
	}
	return 0
}

// String returns the "/" joined form of the name.
func (n ObjectName) String() string {
	return strings.Join(n, "/")
}

// Version is an opaque token identifying one version of a stored object.
type Version string

// VersionNew is presented on put when no prior version is expected.
const VersionNew Version = "new"

// IsNew reports whether the token is the "no prior version" sentinel.
func (v Version) IsNew() bool {
	return v == VersionNew || v == ""
}

// ContentElement describes one binary payload attached to a document.
// The payload itself lives in the object store, not in the document body.
type ContentElement struct {
	ID        string `json:"id"`
	Role      string `json:"role,omitempty"`
	FileName  string `json:"fileName,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Length    int64  `json:"length"`
	Digest    string `json:"digest,omitempty"`
	// Revision names the upload this element refers to.
	Revision string `json:"revision,omitempty"`
}

// Document is one version of a stored document.
// VersionTimestamp is only present when the repository keeps multiple versions.
type Document struct {
	DocumentID       string                    `json:"documentId"`
	VersionTimestamp *time.Time                `json:"versionTimestamp,omitempty"`
	DateCreated      time.Time                 `json:"dateCreated,omitzero"`
	DateModified     time.Time                 `json:"dateModified,omitzero"`
	ContentElements  []ContentElement          `json:"contentElements,omitempty"`
	Facets           map[string]jsontext.Value `json:"facets,omitempty"`
	Deleted          bool                      `json:"deleted,omitempty"`
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	if d.VersionTimestamp != nil {
		ts := *d.VersionTimestamp
		out.VersionTimestamp = &ts
	}
	if d.ContentElements != nil {
		out.ContentElements = make([]ContentElement, len(d.ContentElements))
		copy(out.ContentElements, d.ContentElements)
	}
	if d.Facets != nil {
		out.Facets = make(map[string]jsontext.Value, len(d.Facets))
		for k, v := range d.Facets {
			out.Facets[k] = v.Clone()
		}
	}
	return &out
}

// ContentElement returns the element with the given id, if any.
func (d *Document) ContentElement(id string) (ContentElement, bool) {
	for _, ce := range d.ContentElements {
		if ce.ID == id {
			return ce, true
		}
	}
	return ContentElement{}, false
}

// EventTag identifies the kind of change recorded for a document.
type EventTag int

const (
	// EventCreate marks a newly created document.
	EventCreate EventTag = iota + 1
	// EventUpdate marks a new version of an existing document.
	EventUpdate
	// EventDelete marks a deleted document.
	EventDelete
)

// String returns the lower-case name of the tag.
func (t EventTag) String() string {
	switch t {
	case EventCreate:
		return "create"
	case EventUpdate:
		return "update"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// QueueElement is one pending index maintenance request.
type QueueElement struct {
	Key      string
	Event    EventTag
	QueuedAt time.Time
}

// Checkpoint records the outcome of the last completed index rebuild.
type Checkpoint struct {
	Name       string
	Index      string
	SchemaHash string
	Documents  int
	UpdatedAt  time.Time
}

// NewDocumentID generates a random document identifier.
func NewDocumentID() string {
	return uuid.New().String()
}

// NewDigest returns the hash used for content element digests (BLAKE2b-256).
func NewDigest() hash.Hash {
	h, _ := blake2b.New(32, nil)
	return h
}

// FormatDigest renders a digest sum the way it is stored on content elements.
func FormatDigest(sum []byte) string {
	return "blake2b-256:" + hex.EncodeToString(sum)
}
