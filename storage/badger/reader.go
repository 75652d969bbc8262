package badger

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/storage"
)

// chunkReader streams the chunks of one object version, fetching up to
// batchSize chunks per read transaction as the caller consumes them.
type chunkReader struct {
	backend   *Backend
	name      core.ObjectName
	version   uint64
	chunks    uint64
	batchSize int

	next    uint64
	pending [][]byte
	current []byte
	closed  bool
}

var _ io.ReadCloser = (*chunkReader)(nil)

func newChunkReader(backend *Backend, name core.ObjectName, meta *storage.ObjectMeta, batchSize int) *chunkReader {
	return &chunkReader{
		backend:   backend,
		name:      name,
		version:   meta.Version,
		chunks:    meta.Chunks,
		batchSize: batchSize,
	}
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, fs.ErrClosed
	}
	for len(r.current) == 0 {
		if len(r.pending) > 0 {
			r.current, r.pending = r.pending[0], r.pending[1:]
			continue
		}
		if r.next >= r.chunks {
			return 0, io.EOF
		}
		if err := r.fetch(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.current)
	r.current = r.current[n:]
	return n, nil
}

// fetch loads the next batch of chunks. A chunk that is missing means the
// version was purged or removed after the reader was created.
func (r *chunkReader) fetch() error {
	end := min(r.next+uint64(r.batchSize), r.chunks)
	batch := make([][]byte, 0, end-r.next)

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for seq := r.next; seq < end; seq++ {
			item, err := tx.Get(makeChunkKey(r.name, r.version, seq))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("%w: chunk %d of %d missing for %s", storage.ErrTruncatedData, seq, r.chunks, r.name)
				}
				return err
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			batch = append(batch, value)
		}
		return nil
	}, false)
	if err != nil {
		return err
	}

	r.pending = append(r.pending, batch...)
	r.next = end
	return nil
}

func (r *chunkReader) Close() error {
	r.closed = true
	r.pending = nil
	r.current = nil
	return nil
}
