package documents

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/storage"
)

const (
	documentsRoot = "documents"
	contentRoot   = "content"
)

var (
	documentsPrefix = core.NewObjectName(documentsRoot)
	contentPrefix   = core.NewObjectName(contentRoot)
)

// documentName is the object a single-version document lives at, and the
// parent of every version of a multi-version document.
func documentName(id string) core.ObjectName {
	return documentsPrefix.Append(id)
}

func versionName(id string, ts time.Time) core.ObjectName {
	return documentName(id).Append(formatTimestamp(ts))
}

// contentName is the object holding one upload of a content element.
// The revision is empty when documents keep no history.
func contentName(id, elementID, revision string) core.ObjectName {
	name := contentPrefix.Append(id, elementID)
	if revision != "" {
		name = name.Append(revision)
	}
	return name
}

// formatTimestamp renders ts as zero padded nanoseconds so that segment
// order is version order.
func formatTimestamp(ts time.Time) string {
	return fmt.Sprintf("%019d", ts.UnixNano())
}

func parseTimestamp(segment string) (time.Time, error) {
	if len(segment) != 19 {
		return time.Time{}, fmt.Errorf("invalid version segment %q", segment)
	}
	n, err := strconv.ParseInt(segment, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid version segment %q: %w", segment, err)
	}
	return time.Unix(0, n).UTC(), nil
}

// aliasKey is the registry key of one version of a document.
func aliasKey(id string, ts time.Time) string {
	return id + "@" + formatTimestamp(ts)
}

// documentIDFromName returns the id of the document obj belongs to.
func documentIDFromName(name core.ObjectName) (string, bool) {
	if len(name) < 2 || name[0] != documentsRoot {
		return "", false
	}
	return name[1], true
}

func encodeDocument(doc *core.Document) ([]byte, error) {
	data, err := json.Marshal(doc, json.Deterministic(true))
	if err != nil {
		return nil, fmt.Errorf("%w: encode document %s: %w", storage.ErrSerializationFailed, doc.DocumentID, err)
	}
	return data, nil
}

func decodeDocument(obj *storage.StoreObject) (*core.Document, error) {
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, err
	}
	var doc core.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", storage.ErrSerializationFailed, obj.Name, err)
	}
	return &doc, nil
}

// sortVersions orders and dedups a version list.
func sortVersions(versions []time.Time) []time.Time {
	slices.SortFunc(versions, func(a, b time.Time) int { return a.Compare(b) })
	return slices.CompactFunc(versions, func(a, b time.Time) bool { return a.Equal(b) })
}

func sameVersion(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func formatVersionPtr(ts *time.Time) string {
	if ts == nil {
		return "none"
	}
	return ts.Format(time.RFC3339Nano)
}

func isReservedSegment(s string) bool {
	return strings.ContainsAny(s, "/@\x00")
}
