package storage

import (
	"context"
	"io"
	"iter"

	"github.com/poiesic/vellum/core"
)

// ObjectStore is a hierarchical, versioned blob store.
// Implementations must be thread-safe and support concurrent access.
type ObjectStore interface {
	// Put stores content under name. expected must be the version last
	// observed for name, or core.VersionNew when the object must not exist.
	// Returns *VersionMismatchError or ErrVersionNotFound when expected is stale.
	// A length of zero or less means the length is unknown.
	Put(ctx context.Context, name core.ObjectName, expected core.Version, content io.Reader, length int64) error

	// Get returns the current version of name.
	// Returns nil, nil if the object doesn't exist.
	// The caller must Close the returned object.
	Get(ctx context.Context, name core.ObjectName) (*StoreObject, error)

	// List yields every object directly under prefix, plus a directory
	// marker for each child that has descendants of its own.
	// An empty prefix yields every object in the store.
	List(ctx context.Context, prefix core.ObjectName) iter.Seq2[*StoreObject, error]

	// Delete removes name and all of its descendants.
	// Deleting a missing object is not an error.
	Delete(ctx context.Context, name core.ObjectName) error

	// CheckExists reports whether an object is stored at name.
	CheckExists(ctx context.Context, name core.ObjectName) (bool, error)
}

// VersionedStore is an ObjectStore that can retain superseded versions.
// It exposes the primitives a write-ahead log needs to make a sequence of
// mutations atomic from the caller's point of view.
type VersionedStore interface {
	ObjectStore

	// Write stores a new version like Put but keeps the superseded version
	// readable by Revert until it is purged.
	// Returns the superseded version, or core.VersionNew if name was new.
	Write(ctx context.Context, name core.ObjectName, expected core.Version, content io.Reader, length int64) (core.Version, error)

	// Revert makes the retained version to current again and drops the
	// version that superseded it. Reverting to core.VersionNew removes name.
	Revert(ctx context.Context, name core.ObjectName, to core.Version) error

	// Purge drops a retained version. Purging an unknown version is not an error.
	Purge(ctx context.Context, name core.ObjectName, version core.Version) error

	// Remove physically deletes name, and all of its descendants when recursive is set.
	Remove(ctx context.Context, name core.ObjectName, recursive bool) error
}

// Queue is a durable FIFO of index maintenance requests keyed by document id.
type Queue interface {
	// PutInQueue appends an element for key.
	PutInQueue(ctx context.Context, key string, event core.EventTag) error

	// GetElementToProcess returns the oldest element without removing it.
	// Returns nil, nil when the queue is empty.
	GetElementToProcess(ctx context.Context) (*core.QueueElement, error)

	// RemoveProcessedElement removes the oldest element for key.
	RemoveProcessedElement(ctx context.Context, key string) error

	// RegisterListener registers fn to be called after every successful put.
	RegisterListener(fn func())

	// Len returns the number of queued elements.
	Len(ctx context.Context) (int, error)
}

// CheckpointRepository provides operations for tracking index rebuild progress.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint, replacing any previous one with the same name.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the named checkpoint.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, name string) (*core.Checkpoint, error)
}
