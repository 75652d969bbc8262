package storage

import (
	"io"
	"strings"

	"github.com/poiesic/vellum/core"
)

// StoreObject is an immutable snapshot of one object version.
// Content is streamed lazily; the reader owns it for the duration of one read
// and must not share it across goroutines.
type StoreObject struct {
	Name    core.ObjectName
	Version core.Version
	Length  int64

	directory bool
	content   io.ReadCloser
}

// NewStoreObject wraps content as the payload of name at version.
func NewStoreObject(name core.ObjectName, version core.Version, length int64, content io.ReadCloser) *StoreObject {
	if content == nil {
		content = io.NopCloser(strings.NewReader(""))
	}
	return &StoreObject{
		Name:    name,
		Version: version,
		Length:  length,
		content: content,
	}
}

// NewDirectoryMarker returns the synthetic object listed for a name that has descendants.
func NewDirectoryMarker(name core.ObjectName) *StoreObject {
	return &StoreObject{
		Name:      name,
		directory: true,
		content:   io.NopCloser(strings.NewReader("")),
	}
}

// IsDirectory reports whether the object is a directory marker.
func (o *StoreObject) IsDirectory() bool {
	return o.directory
}

// Read reads from the object's content stream.
func (o *StoreObject) Read(p []byte) (int, error) {
	return o.content.Read(p)
}

// Close releases the content stream.
func (o *StoreObject) Close() error {
	return o.content.Close()
}

// ReadAll reads the remaining content and closes the object.
func (o *StoreObject) ReadAll() ([]byte, error) {
	defer o.Close()
	return io.ReadAll(o.content)
}
