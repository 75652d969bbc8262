package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/storage"
)

const (
	// DefaultBufferSize is the maximum size of one content chunk.
	DefaultBufferSize = 1 << 20
	// DefaultRequestBatchSize is the number of chunks written per transaction.
	DefaultRequestBatchSize = 8
	// DefaultResponseBatchSize is the number of chunks fetched per read.
	DefaultResponseBatchSize = 64

	maxResponseBatchBytes = 256 << 20
	maxRequestBatchBytes  = 15 << 20
)

// ObjectStore implements storage.VersionedStore for BadgerDB.
//
// Content is split into chunks of at most bufferSize bytes. Each object has
// one metadata row holding its current version number and chunk count, and
// every ancestor of an object has a prefix index row naming its child so
// listing never needs a full scan.
type ObjectStore struct {
	backend           *Backend
	versions          *badger.Sequence
	bufferSize        int
	requestBatchSize  int
	responseBatchSize int
	logger            *slog.Logger
}

var _ storage.VersionedStore = (*ObjectStore)(nil)

// Option configures an ObjectStore.
type Option func(*ObjectStore)

// WithBufferSize sets the maximum chunk size in bytes.
func WithBufferSize(size int) Option {
	return func(s *ObjectStore) {
		s.bufferSize = size
	}
}

// WithRequestBatchSize sets how many chunks are written per transaction.
func WithRequestBatchSize(n int) Option {
	return func(s *ObjectStore) {
		s.requestBatchSize = n
	}
}

// WithResponseBatchSize sets how many chunks a reader fetches at once.
func WithResponseBatchSize(n int) Option {
	return func(s *ObjectStore) {
		s.responseBatchSize = n
	}
}

// WithLogger sets the logger for storage failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *ObjectStore) {
		s.logger = logger
	}
}

// NewObjectStore creates a new ObjectStore.
// Returns storage.ErrInvalidConfiguration when bufferSize × responseBatchSize
// reaches 256 MiB or bufferSize × requestBatchSize reaches 15 MiB.
func NewObjectStore(backend *Backend, opts ...Option) (*ObjectStore, error) {
	s := &ObjectStore{
		backend:           backend,
		bufferSize:        DefaultBufferSize,
		requestBatchSize:  DefaultRequestBatchSize,
		responseBatchSize: DefaultResponseBatchSize,
		logger:            backend.logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	versions, err := backend.GetSequence(objectVersionSeq)
	if err != nil {
		return nil, err
	}
	s.versions = versions
	return s, nil
}

func (s *ObjectStore) validate() error {
	switch {
	case s.bufferSize <= 0 || s.requestBatchSize <= 0 || s.responseBatchSize <= 0:
		return fmt.Errorf("%w: buffer and batch sizes must be positive", storage.ErrInvalidConfiguration)
	case s.bufferSize*s.responseBatchSize >= maxResponseBatchBytes:
		return fmt.Errorf("%w: buffer size %d x response batch size %d must be below %d bytes",
			storage.ErrInvalidConfiguration, s.bufferSize, s.responseBatchSize, maxResponseBatchBytes)
	case s.bufferSize*s.requestBatchSize >= maxRequestBatchBytes:
		return fmt.Errorf("%w: buffer size %d x request batch size %d must be below %d bytes",
			storage.ErrInvalidConfiguration, s.bufferSize, s.requestBatchSize, maxRequestBatchBytes)
	}
	return nil
}

// Close releases the version sequence.
func (s *ObjectStore) Close() error {
	return s.versions.Release()
}

// Put stores content as the new current version of name and drops the
// version it superseded.
func (s *ObjectStore) Put(ctx context.Context, name core.ObjectName, expected core.Version, content io.Reader, length int64) error {
	superseded, err := s.Write(ctx, name, expected, content, length)
	if err != nil {
		return err
	}
	if superseded.IsNew() {
		return nil
	}
	return s.Purge(ctx, name, superseded)
}

// Write stores content as the new current version of name and retains the
// superseded version until Purge or Revert.
func (s *ObjectStore) Write(ctx context.Context, name core.ObjectName, expected core.Version, content io.Reader, length int64) (core.Version, error) {
	if err := core.ValidateObjectName(name); err != nil {
		return "", err
	}

	current, err := s.loadMeta(name)
	if err != nil {
		return "", s.storageError("put", name, err)
	}
	if err := checkVersion(name, expected, current); err != nil {
		return "", err
	}

	version, err := s.nextVersion()
	if err != nil {
		return "", s.storageError("put", name, err)
	}

	chunks, total, err := s.writeChunks(ctx, name, version, content, length)
	if err != nil {
		s.discardChunks(name, version)
		return "", s.storageError("put", name, err)
	}

	meta := &storage.ObjectMeta{Version: version, Chunks: chunks, Length: total}
	var previous *storage.ObjectMeta
	err = s.backend.WithTx(func(tx *badger.Txn) error {
		cur, err := readMeta(tx, name)
		if err != nil {
			return err
		}
		// Another writer may have won since the first check.
		if err := checkVersion(name, expected, cur); err != nil {
			return err
		}
		previous = cur

		if err := tx.Set(makeMetaKey(name), storage.MarshalObjectMeta(meta)); err != nil {
			return err
		}
		if cur == nil {
			if err := setChildRows(tx, name); err != nil {
				return err
			}
		} else {
			if err := tx.Set(makeRetainedKey(name, cur.Version), storage.MarshalObjectMeta(cur)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		s.discardChunks(name, version)
		switch {
		case errors.Is(err, badger.ErrConflict):
			return "", &storage.VersionMismatchError{Name: name, Expected: expected, Actual: s.currentVersion(name)}
		case errors.Is(err, core.ErrVersionMismatch), errors.Is(err, storage.ErrVersionNotFound):
			return "", err
		}
		return "", s.storageError("put", name, err)
	}

	s.logger.Debug("object stored", "name", name.String(), "version", version, "chunks", chunks, "length", total)

	if previous == nil {
		return core.VersionNew, nil
	}
	return formatVersion(previous.Version), nil
}

// writeChunks splits content into chunks of min(length, bufferSize) bytes
// and writes them in request batches. The last chunk may be shorter.
func (s *ObjectStore) writeChunks(ctx context.Context, name core.ObjectName, version uint64, content io.Reader, length int64) (uint64, int64, error) {
	if content == nil {
		return 0, 0, nil
	}

	chunkSize := s.bufferSize
	if length > 0 && length < int64(chunkSize) {
		chunkSize = int(length)
	}

	var (
		chunks uint64
		total  int64
		batch  = make([]entry, 0, s.requestBatchSize)
	)
	for {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}

		buf := make([]byte, chunkSize)
		n, readErr := io.ReadFull(content, buf)
		if n > 0 {
			batch = append(batch, entry{key: makeChunkKey(name, version, chunks), value: buf[:n]})
			chunks++
			total += int64(n)
		}
		if len(batch) == s.requestBatchSize {
			if err := s.backend.applyBatch(batch); err != nil {
				return 0, 0, err
			}
			batch = make([]entry, 0, s.requestBatchSize)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return 0, 0, readErr
		}
	}

	if len(batch) > 0 {
		if err := s.backend.applyBatch(batch); err != nil {
			return 0, 0, err
		}
	}
	return chunks, total, nil
}

// discardChunks removes the chunks of a version that never became visible.
func (s *ObjectStore) discardChunks(name core.ObjectName, version uint64) {
	if err := s.backend.deletePrefix(makeChunkVersionPrefix(name, version)); err != nil {
		s.logger.Warn("failed to discard orphaned chunks", "name", name.String(), "version", version, "err", err)
	}
}

// Get returns the current version of name, or nil if it doesn't exist.
func (s *ObjectStore) Get(ctx context.Context, name core.ObjectName) (*storage.StoreObject, error) {
	if err := core.ValidateObjectName(name); err != nil {
		return nil, err
	}
	meta, err := s.loadMeta(name)
	if err != nil {
		return nil, s.storageError("get", name, err)
	}
	if meta == nil {
		return nil, nil
	}
	return s.newObject(name, meta), nil
}

// CheckExists reports whether an object is stored at name.
func (s *ObjectStore) CheckExists(ctx context.Context, name core.ObjectName) (bool, error) {
	if err := core.ValidateObjectName(name); err != nil {
		return false, err
	}
	meta, err := s.loadMeta(name)
	if err != nil {
		return false, s.storageError("exists", name, err)
	}
	return meta != nil, nil
}

// List yields the objects directly under prefix, each followed by a
// directory marker when it has descendants. A child that only has
// descendants yields just the marker. An empty prefix yields every object.
// Rows are read lazily, one page of responseBatchSize rows per read
// transaction.
func (s *ObjectStore) List(ctx context.Context, prefix core.ObjectName) iter.Seq2[*storage.StoreObject, error] {
	return func(yield func(*storage.StoreObject, error) bool) {
		if err := core.ValidatePrefix(prefix); err != nil {
			yield(nil, err)
			return
		}

		var after []byte
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			var (
				page []*storage.StoreObject
				err  error
			)
			if len(prefix) == 0 {
				page, after, err = s.listAllPage(after)
			} else {
				page, after, err = s.listChildrenPage(prefix, after)
			}
			if err != nil {
				yield(nil, s.storageError("list", prefix, err))
				return
			}
			for _, obj := range page {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return
				}
				if !yield(obj, nil) {
					return
				}
			}
			if after == nil {
				return
			}
		}
	}
}

// scanPage visits at most responseBatchSize keys under prefix that sort
// after the key after, and returns the last visited key when more remain.
func (s *ObjectStore) scanPage(tx *badger.Txn, prefix, after []byte, visit func(item *badger.Item) error) ([]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := tx.NewIterator(opts)
	defer it.Close()

	if after == nil {
		it.Rewind()
	} else {
		it.Seek(after)
		if it.Valid() && bytes.Equal(it.Item().Key(), after) {
			it.Next()
		}
	}

	var last []byte
	for n := 0; it.Valid(); it.Next() {
		if n == s.responseBatchSize {
			return last, nil
		}
		item := it.Item()
		if err := visit(item); err != nil {
			return nil, err
		}
		last = item.KeyCopy(last[:0])
		n++
	}
	return nil, nil
}

func (s *ObjectStore) listAllPage(after []byte) ([]*storage.StoreObject, []byte, error) {
	var (
		objects []*storage.StoreObject
		next    []byte
	)
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		next, err = s.scanPage(tx, []byte(objectMetaPrefix), after, func(item *badger.Item) error {
			name := decodeName(item.Key()[len(objectMetaPrefix):])
			return item.Value(func(val []byte) error {
				meta, err := storage.UnmarshalObjectMeta(val)
				if err != nil {
					return err
				}
				objects = append(objects, s.newObject(name, meta))
				return nil
			})
		})
		return err
	}, false)
	return objects, next, err
}

func (s *ObjectStore) listChildrenPage(prefix core.ObjectName, after []byte) ([]*storage.StoreObject, []byte, error) {
	var (
		objects []*storage.StoreObject
		next    []byte
	)
	childrenPrefix := makeChildrenPrefix(prefix)
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		next, err = s.scanPage(tx, childrenPrefix, after, func(item *badger.Item) error {
			child := prefix.Append(childSuffix(item.Key(), childrenPrefix))
			meta, err := readMeta(tx, child)
			if err != nil {
				return err
			}
			if meta != nil {
				objects = append(objects, s.newObject(child, meta))
			}
			if hasChildren(tx, child) {
				objects = append(objects, storage.NewDirectoryMarker(child))
			}
			return nil
		})
		return err
	}, false)
	return objects, next, err
}

// Delete removes name and all of its descendants.
func (s *ObjectStore) Delete(ctx context.Context, name core.ObjectName) error {
	return s.Remove(ctx, name, true)
}

// Remove physically deletes name, including its descendants when recursive
// is set, and prunes prefix rows of ancestors left without content.
func (s *ObjectStore) Remove(ctx context.Context, name core.ObjectName, recursive bool) error {
	if err := core.ValidateObjectName(name); err != nil {
		return err
	}

	if recursive {
		var children []string
		err := s.backend.WithTx(func(tx *badger.Txn) error {
			var err error
			children, err = readChildren(tx, name)
			return err
		}, false)
		if err != nil {
			return s.storageError("delete", name, err)
		}
		for _, suffix := range children {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.Remove(ctx, name.Append(suffix), true); err != nil {
				return err
			}
		}
	}

	if err := s.backend.deletePrefix(makeChunkNamePrefix(name)); err != nil {
		return s.storageError("delete", name, err)
	}
	if err := s.backend.deletePrefix(makeRetainedNamePrefix(name)); err != nil {
		return s.storageError("delete", name, err)
	}

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeMetaKey(name)); err != nil {
			return err
		}
		// Walk up while each level is left without an object or children.
		for node := name; len(node) > 0; node = node.Parent() {
			if len(node) < len(name) {
				meta, err := readMeta(tx, node)
				if err != nil {
					return err
				}
				if meta != nil {
					break
				}
			}
			if hasChildren(tx, node) {
				break
			}
			if err := tx.Delete(makeChildKey(node.Parent(), node.Last())); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return s.storageError("delete", name, err)
	}

	s.logger.Debug("object removed", "name", name.String(), "recursive", recursive)
	return nil
}

// Revert makes the retained version to current again and drops the chunks
// of the version that superseded it. Reverting to a version that is
// already current is a no-op.
func (s *ObjectStore) Revert(ctx context.Context, name core.ObjectName, to core.Version) error {
	if to.IsNew() {
		return s.Remove(ctx, name, false)
	}
	if err := core.ValidateObjectName(name); err != nil {
		return err
	}
	target, ok := parseVersion(to)
	if !ok {
		return fmt.Errorf("%w: %s of %s", storage.ErrVersionNotFound, to, name)
	}

	var replaced *storage.ObjectMeta
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		current, err := readMeta(tx, name)
		if err != nil {
			return err
		}
		if current != nil && current.Version == target {
			return nil
		}

		retainedKey := makeRetainedKey(name, target)
		item, err := tx.Get(retainedKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: retained %s of %s", storage.ErrVersionNotFound, to, name)
		}
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		if err := tx.Set(makeMetaKey(name), value); err != nil {
			return err
		}
		if err := tx.Delete(retainedKey); err != nil {
			return err
		}
		if current == nil {
			if err := setChildRows(tx, name); err != nil {
				return err
			}
		}
		replaced = current
		return tx.Commit()
	}, true)
	if err != nil {
		if errors.Is(err, storage.ErrVersionNotFound) {
			return err
		}
		return s.storageError("revert", name, err)
	}

	if replaced != nil {
		s.discardChunks(name, replaced.Version)
	}
	return nil
}

// Purge drops a retained version. The current version is never purged.
func (s *ObjectStore) Purge(ctx context.Context, name core.ObjectName, version core.Version) error {
	if err := core.ValidateObjectName(name); err != nil {
		return err
	}
	v, ok := parseVersion(version)
	if !ok {
		return nil
	}

	current, err := s.loadMeta(name)
	if err != nil {
		return s.storageError("purge", name, err)
	}
	if current != nil && current.Version == v {
		return nil
	}

	err = s.backend.applyBatch([]entry{{key: makeRetainedKey(name, v)}})
	if err == nil {
		err = s.backend.deletePrefix(makeChunkVersionPrefix(name, v))
	}
	if err != nil {
		return s.storageError("purge", name, err)
	}
	return nil
}

// ChunkCount returns the number of chunks persisted for the current version of name.
func (s *ObjectStore) ChunkCount(ctx context.Context, name core.ObjectName) (int, error) {
	meta, err := s.loadMeta(name)
	if err != nil || meta == nil {
		return 0, err
	}
	keys, err := s.backend.collectKeys(makeChunkVersionPrefix(name, meta.Version))
	return len(keys), err
}

func (s *ObjectStore) newObject(name core.ObjectName, meta *storage.ObjectMeta) *storage.StoreObject {
	reader := newChunkReader(s.backend, name, meta, s.responseBatchSize)
	return storage.NewStoreObject(name, formatVersion(meta.Version), meta.Length, reader)
}

func (s *ObjectStore) nextVersion() (uint64, error) {
	v, err := s.versions.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if v == 0 {
		return s.versions.Next()
	}
	return v, nil
}

func (s *ObjectStore) loadMeta(name core.ObjectName) (*storage.ObjectMeta, error) {
	var meta *storage.ObjectMeta
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		meta, err = readMeta(tx, name)
		return err
	}, false)
	return meta, err
}

func (s *ObjectStore) currentVersion(name core.ObjectName) core.Version {
	meta, err := s.loadMeta(name)
	if err != nil || meta == nil {
		return core.VersionNew
	}
	return formatVersion(meta.Version)
}

func (s *ObjectStore) storageError(op string, name core.ObjectName, err error) error {
	if errors.Is(err, storage.ErrStorageClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.logger.Error("object store failure", "op", op, "name", name.String(), "err", err)
	return &core.StorageError{Op: op, Name: name, Err: err}
}

// checkVersion validates the version presented by a writer against the
// recorded metadata (nil when the object doesn't exist).
func checkVersion(name core.ObjectName, expected core.Version, current *storage.ObjectMeta) error {
	if expected.IsNew() {
		if current != nil {
			return &storage.VersionMismatchError{Name: name, Expected: core.VersionNew, Actual: formatVersion(current.Version)}
		}
		return nil
	}
	if current == nil {
		return fmt.Errorf("%w: %s of %s", storage.ErrVersionNotFound, expected, name)
	}
	if v, ok := parseVersion(expected); !ok || v != current.Version {
		return &storage.VersionMismatchError{Name: name, Expected: expected, Actual: formatVersion(current.Version)}
	}
	return nil
}

func readMeta(tx *badger.Txn, name core.ObjectName) (*storage.ObjectMeta, error) {
	item, err := tx.Get(makeMetaKey(name))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var meta *storage.ObjectMeta
	err = item.Value(func(val []byte) error {
		var err error
		meta, err = storage.UnmarshalObjectMeta(val)
		return err
	})
	return meta, err
}

// readChildren returns the child segments recorded under prefix, in order.
func readChildren(tx *badger.Txn, prefix core.ObjectName) ([]string, error) {
	childrenPrefix := makeChildrenPrefix(prefix)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = childrenPrefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var suffixes []string
	for iter.Rewind(); iter.Valid(); iter.Next() {
		suffixes = append(suffixes, childSuffix(iter.Item().Key(), childrenPrefix))
	}
	return suffixes, nil
}

func hasChildren(tx *badger.Txn, name core.ObjectName) bool {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = makeChildrenPrefix(name)
	iter := tx.NewIterator(opts)
	defer iter.Close()
	iter.Rewind()
	return iter.Valid()
}

// setChildRows records name under every one of its ancestors.
func setChildRows(tx *badger.Txn, name core.ObjectName) error {
	for i := range name {
		if err := tx.Set(makeChildKey(name[:i], name[i]), []byte{}); err != nil {
			return err
		}
	}
	return nil
}

func formatVersion(v uint64) core.Version {
	return core.Version(strconv.FormatUint(v, 10))
}

func parseVersion(v core.Version) (uint64, bool) {
	n, err := strconv.ParseUint(string(v), 10, 64)
	return n, err == nil
}
