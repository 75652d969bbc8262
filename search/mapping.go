package search

import (
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/go-json-experiment/json"
)

// FieldType is the type of a mapped field.
type FieldType string

const (
	FieldKeyword FieldType = "keyword"
	FieldText    FieldType = "text"
	FieldDate    FieldType = "date"
	FieldBoolean FieldType = "boolean"
	FieldLong    FieldType = "long"
	FieldObject  FieldType = "object"
)

// Mapping is the schema of an index.
type Mapping struct {
	// Properties maps top-level field names to their type.
	Properties map[string]FieldType `json:"properties"`
	// Dynamic keeps fields that are not in Properties.
	Dynamic bool `json:"dynamic"`
}

// DocumentMapping is the schema of the document index.
func DocumentMapping() Mapping {
	return Mapping{
		Properties: map[string]FieldType{
			"id":              FieldKeyword,
			"version":         FieldDate,
			"dateCreated":     FieldDate,
			"dateModified":    FieldDate,
			"deleted":         FieldBoolean,
			"facets":          FieldObject,
			"contentElements": FieldObject,
			"contentLength":   FieldLong,
			"text":            FieldText,
		},
	}
}

// Fields returns the mapped field names in order.
func (m Mapping) Fields() []string {
	return slices.Sorted(maps.Keys(m.Properties))
}

// Apply returns body restricted to the mapped fields.
func (m Mapping) Apply(body Body) Body {
	if m.Dynamic {
		return body
	}
	out := make(Body, len(body))
	for k, v := range body {
		if _, ok := m.Properties[k]; ok {
			out[k] = v
		}
	}
	return out
}

// SchemaHash returns a short content hash of m.
// Equal mappings hash equally regardless of map ordering.
func SchemaHash(m Mapping) (string, error) {
	data, err := json.Marshal(m, json.Deterministic(true))
	if err != nil {
		return "", fmt.Errorf("encode mapping: %w", err)
	}
	h, err := blake2b.New(8, nil)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IndexName names a new index created at ts with schema hash.
func IndexName(base, hash string, ts time.Time) string {
	return base + "-" + hash + "-" + strconv.FormatInt(ts.UnixNano(), 10)
}

// HashFromIndexName extracts the schema hash from a name built by IndexName.
func HashFromIndexName(base, name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, base+"-")
	if !ok {
		return "", false
	}
	hash, stamp, ok := strings.Cut(rest, "-")
	if !ok || hash == "" {
		return "", false
	}
	if _, err := strconv.ParseInt(stamp, 10, 64); err != nil {
		return "", false
	}
	return hash, true
}

// ReadAlias and WriteAlias name the aliases of the index called base.
func ReadAlias(base string) string  { return base + "-read" }
func WriteAlias(base string) string { return base + "-write" }
