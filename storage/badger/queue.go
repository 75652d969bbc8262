package badger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/storage"
)

// Queue implements storage.Queue for BadgerDB.
// Elements are ordered by a badger sequence; a per-key index row lets the
// oldest element of a key be found without scanning the whole queue.
type Queue struct {
	backend *Backend
	seq     *badger.Sequence

	mu        sync.RWMutex
	listeners []func()
}

var _ storage.Queue = (*Queue)(nil)

// NewQueue creates a new Queue.
func NewQueue(backend *Backend) (*Queue, error) {
	seq, err := backend.GetSequence(queueSeq)
	if err != nil {
		return nil, err
	}
	return &Queue{
		backend: backend,
		seq:     seq,
	}, nil
}

// Close releases the queue sequence.
func (q *Queue) Close() error {
	return q.seq.Release()
}

// PutInQueue appends an element for key and notifies listeners.
func (q *Queue) PutInQueue(ctx context.Context, key string, event core.EventTag) error {
	n, err := q.seq.Next()
	if err != nil {
		return err
	}

	element := &core.QueueElement{
		Key:      key,
		Event:    event,
		QueuedAt: time.Now().UTC(),
	}
	err = q.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeQueueKey(n), storage.MarshalQueueElement(element)); err != nil {
			return err
		}
		if err := tx.Set(makeQueueIndexKey(key, n), []byte{}); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	q.mu.RLock()
	listeners := q.listeners
	q.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
	return nil
}

// GetElementToProcess returns the oldest queued element, or nil when empty.
func (q *Queue) GetElementToProcess(ctx context.Context) (*core.QueueElement, error) {
	var element *core.QueueElement
	err := q.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 1
		opts.Prefix = []byte(queuePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		iter.Rewind()
		if !iter.Valid() {
			return nil
		}
		return iter.Item().Value(func(val []byte) error {
			var err error
			element, err = storage.UnmarshalQueueElement(val)
			return err
		})
	}, false)
	return element, err
}

// RemoveProcessedElement removes the oldest element queued for key.
// Removing from an empty key is not an error.
func (q *Queue) RemoveProcessedElement(ctx context.Context, key string) error {
	return q.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeQueueIndexPrefix(key)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)

		iter.Rewind()
		if !iter.Valid() {
			iter.Close()
			return nil
		}
		indexKey := iter.Item().KeyCopy(nil)
		iter.Close()

		seqBytes := indexKey[len(prefix):]
		if len(seqBytes) != 8 {
			return errors.New("corrupt queue index row")
		}
		if err := tx.Delete(append([]byte(queuePrefix), seqBytes...)); err != nil {
			return err
		}
		if err := tx.Delete(indexKey); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// RegisterListener registers fn to run after every put.
// Listeners run on the putting goroutine and must not block.
func (q *Queue) RegisterListener(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, fn)
}

// Len returns the number of queued elements.
func (q *Queue) Len(ctx context.Context) (int, error) {
	keys, err := q.backend.collectKeys([]byte(queuePrefix))
	return len(keys), err
}
