package badger

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) *ObjectStore {
	t.Helper()
	stores, err := NewMemoryStores(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })
	return stores.Objects
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return buf
}

func readObject(t *testing.T, store *ObjectStore, name core.ObjectName) ([]byte, core.Version) {
	t.Helper()
	obj, err := store.Get(context.Background(), name)
	require.NoError(t, err)
	require.NotNil(t, obj, "object %s not found", name)
	data, err := obj.ReadAll()
	require.NoError(t, err)
	return data, obj.Version
}

func collect(t *testing.T, seq func(func(*storage.StoreObject, error) bool)) []string {
	t.Helper()
	var names []string
	for obj, err := range seq {
		require.NoError(t, err)
		name := obj.Name.String()
		if obj.IsDirectory() {
			name += "/"
		}
		names = append(names, name)
		obj.Close()
	}
	return names
}

func TestNewObjectStore_Validation(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	tests := []struct {
		name string
		opts []Option
	}{
		{"zero buffer", []Option{WithBufferSize(0)}},
		{"response batch too large", []Option{WithBufferSize(4 << 20), WithResponseBatchSize(64)}},
		{"request batch too large", []Option{WithBufferSize(2 << 20), WithRequestBatchSize(8)}},
		{"negative request batch", []Option{WithRequestBatchSize(-1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewObjectStore(backend, tt.opts...)
			assert.ErrorIs(t, err, storage.ErrInvalidConfiguration)
		})
	}

	store, err := NewObjectStore(backend)
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

func TestObjectStore_PutGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	name := core.NewObjectName("documents", "aDocument")

	err := store.Put(ctx, name, core.VersionNew, strings.NewReader("hello"), 5)
	require.NoError(t, err)

	data, version := readObject(t, store, name)
	assert.Equal(t, "hello", string(data))
	assert.False(t, version.IsNew())

	exists, err := store.CheckExists(ctx, name)
	require.NoError(t, err)
	assert.True(t, exists)

	obj, err := store.Get(ctx, core.NewObjectName("documents", "missing"))
	require.NoError(t, err)
	assert.Nil(t, obj)
}

func TestObjectStore_ChunkingFidelity(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		chunkSize int
		length    int
		declared  int64
		wantCount int
	}{
		{"empty payload", 16, 0, 0, 0},
		{"single short chunk", 16, 5, 5, 1},
		{"exact multiple", 16, 64, 64, 4},
		{"short last chunk", 16, 65, 65, 5},
		{"unknown length", 16, 40, 0, 3},
		{"negative length", 16, 40, -1, 3},
		{"shorter than declared", 16, 20, 100, 2},
		{"one byte chunks", 1, 7, 7, 7},
		{"many request batches", 10, 1000, 1000, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t, WithBufferSize(tt.chunkSize), WithRequestBatchSize(3), WithResponseBatchSize(2))
			name := core.NewObjectName("blobs", tt.name)
			payload := randomBytes(t, tt.length)

			err := store.Put(ctx, name, core.VersionNew, bytes.NewReader(payload), tt.declared)
			require.NoError(t, err)

			count, err := store.ChunkCount(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, count)

			data, _ := readObject(t, store, name)
			assert.Equal(t, payload, data)

			obj, err := store.Get(ctx, name)
			require.NoError(t, err)
			defer obj.Close()
			assert.Equal(t, int64(tt.length), obj.Length)
		})
	}
}

func TestObjectStore_ReadIndependentOfBufferSize(t *testing.T) {
	store := newTestStore(t, WithBufferSize(7))
	ctx := context.Background()
	name := core.NewObjectName("blobs", "odd")
	payload := randomBytes(t, 100)

	require.NoError(t, store.Put(ctx, name, core.VersionNew, bytes.NewReader(payload), int64(len(payload))))

	obj, err := store.Get(ctx, name)
	require.NoError(t, err)
	defer obj.Close()

	// Read with a buffer size unrelated to the chunk size.
	var out bytes.Buffer
	buf := make([]byte, 3)
	for {
		n, err := obj.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, payload, out.Bytes())
}

func TestObjectStore_VersionChecks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	name := core.NewObjectName("documents", "a")

	t.Run("version for missing object", func(t *testing.T) {
		err := store.Put(ctx, name, "17", strings.NewReader("x"), 1)
		assert.ErrorIs(t, err, storage.ErrVersionNotFound)
	})

	require.NoError(t, store.Put(ctx, name, core.VersionNew, strings.NewReader("v1"), 2))
	_, v1 := readObject(t, store, name)

	t.Run("new over existing", func(t *testing.T) {
		err := store.Put(ctx, name, core.VersionNew, strings.NewReader("x"), 1)
		var vme *storage.VersionMismatchError
		require.ErrorAs(t, err, &vme)
		assert.Equal(t, core.VersionNew, vme.Expected)
		assert.Equal(t, v1, vme.Actual)
		assert.ErrorIs(t, err, core.ErrVersionMismatch)
	})

	require.NoError(t, store.Put(ctx, name, v1, strings.NewReader("v2"), 2))
	data, v2 := readObject(t, store, name)
	assert.Equal(t, "v2", string(data))
	assert.NotEqual(t, v1, v2)

	t.Run("stale version", func(t *testing.T) {
		err := store.Put(ctx, name, v1, strings.NewReader("x"), 1)
		var vme *storage.VersionMismatchError
		require.ErrorAs(t, err, &vme)
		assert.Equal(t, v1, vme.Expected)
		assert.Equal(t, v2, vme.Actual)
	})

	t.Run("garbage token", func(t *testing.T) {
		err := store.Put(ctx, name, "not-a-version", strings.NewReader("x"), 1)
		assert.ErrorIs(t, err, core.ErrVersionMismatch)
	})

	t.Run("superseded chunks are purged", func(t *testing.T) {
		num, ok := parseVersion(v1)
		require.True(t, ok)
		keys, err := store.backend.collectKeys(makeChunkVersionPrefix(name, num))
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestObjectStore_ConcurrentWritersOneWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	name := core.NewObjectName("documents", "race")
	require.NoError(t, store.Put(ctx, name, core.VersionNew, strings.NewReader("base"), 4))
	_, base := readObject(t, store, name)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Put(ctx, name, base, strings.NewReader("next"), 4)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, core.ErrVersionMismatch)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
}

func TestObjectStore_List(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	put := func(path string) {
		require.NoError(t, store.Put(ctx, core.ParseObjectName(path), core.VersionNew, strings.NewReader(path), 0))
	}
	put("documents/a/1")
	put("documents/a/2")
	put("documents/b")
	put("documents/b/1")
	put("content/a/c1")

	t.Run("direct children with directory markers", func(t *testing.T) {
		names := collect(t, store.List(ctx, core.NewObjectName("documents")))
		assert.Equal(t, []string{"documents/a/", "documents/b", "documents/b/"}, names)
	})

	t.Run("leaf objects", func(t *testing.T) {
		names := collect(t, store.List(ctx, core.NewObjectName("documents", "a")))
		assert.Equal(t, []string{"documents/a/1", "documents/a/2"}, names)
	})

	t.Run("empty prefix lists every object", func(t *testing.T) {
		names := collect(t, store.List(ctx, core.ObjectName{}))
		assert.Equal(t, []string{"content/a/c1", "documents/a/1", "documents/a/2", "documents/b", "documents/b/1"}, names)
	})

	t.Run("missing prefix", func(t *testing.T) {
		names := collect(t, store.List(ctx, core.NewObjectName("nothing")))
		assert.Empty(t, names)
	})

	t.Run("listed objects are readable", func(t *testing.T) {
		for obj, err := range store.List(ctx, core.NewObjectName("documents", "a")) {
			require.NoError(t, err)
			data, err := obj.ReadAll()
			require.NoError(t, err)
			assert.Equal(t, obj.Name.String(), string(data))
		}
	})

	t.Run("early stop", func(t *testing.T) {
		count := 0
		for range store.List(ctx, core.ObjectName{}) {
			count++
			break
		}
		assert.Equal(t, 1, count)
	})
}

func TestObjectStore_ListPages(t *testing.T) {
	store := newTestStore(t, WithResponseBatchSize(2))
	ctx := context.Background()

	var want []string
	for i := range 7 {
		name := core.NewObjectName("documents", fmt.Sprintf("d%d", i))
		require.NoError(t, store.Put(ctx, name, core.VersionNew, strings.NewReader("x"), 0))
		want = append(want, name.String())
	}

	assert.Equal(t, want, collect(t, store.List(ctx, core.NewObjectName("documents"))))
	assert.Equal(t, want, collect(t, store.List(ctx, core.ObjectName{})))

	t.Run("writes between pages are visible", func(t *testing.T) {
		var got []string
		for obj, err := range store.List(ctx, core.NewObjectName("documents")) {
			require.NoError(t, err)
			got = append(got, obj.Name.String())
			if len(got) == 1 {
				require.NoError(t, store.Put(ctx, core.NewObjectName("documents", "z"), core.VersionNew, strings.NewReader("x"), 0))
			}
		}
		assert.Equal(t, append(slices.Clone(want), "documents/z"), got)
	})
}

func TestObjectStore_DeleteRecursive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, path := range []string{"documents/a", "documents/a/1", "documents/a/1/x", "documents/b"} {
		require.NoError(t, store.Put(ctx, core.ParseObjectName(path), core.VersionNew, strings.NewReader("x"), 1))
	}

	require.NoError(t, store.Delete(ctx, core.ParseObjectName("documents/a")))

	for _, path := range []string{"documents/a", "documents/a/1", "documents/a/1/x"} {
		exists, err := store.CheckExists(ctx, core.ParseObjectName(path))
		require.NoError(t, err)
		assert.False(t, exists, path)
	}
	assert.Equal(t, []string{"documents/b"}, collect(t, store.List(ctx, core.NewObjectName("documents"))))

	chunks, err := store.backend.collectKeys(makeChunkNamePrefix(core.ParseObjectName("documents/a/1/x")))
	require.NoError(t, err)
	assert.Empty(t, chunks)

	// Deleting the last object prunes the empty ancestors.
	require.NoError(t, store.Delete(ctx, core.ParseObjectName("documents/b")))
	assert.Empty(t, collect(t, store.List(ctx, core.NewObjectName("documents"))))
	rows, err := store.backend.collectKeys([]byte(objectChildPrefix))
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Deleting a missing object is not an error.
	assert.NoError(t, store.Delete(ctx, core.ParseObjectName("documents/zzz")))
}

func TestObjectStore_RemoveNonRecursiveKeepsChildren(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, core.ParseObjectName("a"), core.VersionNew, strings.NewReader("x"), 1))
	require.NoError(t, store.Put(ctx, core.ParseObjectName("a/b"), core.VersionNew, strings.NewReader("y"), 1))

	require.NoError(t, store.Remove(ctx, core.ParseObjectName("a"), false))

	exists, err := store.CheckExists(ctx, core.ParseObjectName("a"))
	require.NoError(t, err)
	assert.False(t, exists)

	data, _ := readObject(t, store, core.ParseObjectName("a/b"))
	assert.Equal(t, "y", string(data))
	assert.Equal(t, []string{"a/b"}, collect(t, store.List(ctx, core.NewObjectName("a"))))
	assert.Equal(t, []string{"a/b"}, collect(t, store.List(ctx, core.ObjectName{})))
}

func TestObjectStore_WriteRevertPurge(t *testing.T) {
	store := newTestStore(t, WithBufferSize(4))
	ctx := context.Background()
	name := core.NewObjectName("documents", "a")

	superseded, err := store.Write(ctx, name, core.VersionNew, strings.NewReader("first version"), 0)
	require.NoError(t, err)
	assert.Equal(t, core.VersionNew, superseded)
	_, v1 := readObject(t, store, name)

	superseded, err = store.Write(ctx, name, v1, strings.NewReader("second version"), 0)
	require.NoError(t, err)
	assert.Equal(t, v1, superseded)

	data, _ := readObject(t, store, name)
	assert.Equal(t, "second version", string(data))

	require.NoError(t, store.Revert(ctx, name, v1))
	data, current := readObject(t, store, name)
	assert.Equal(t, "first version", string(data))
	assert.Equal(t, v1, current)

	// Reverting again is a no-op.
	require.NoError(t, store.Revert(ctx, name, v1))

	superseded, err = store.Write(ctx, name, v1, strings.NewReader("third"), 0)
	require.NoError(t, err)
	require.NoError(t, store.Purge(ctx, name, superseded))
	assert.ErrorIs(t, store.Revert(ctx, name, superseded), storage.ErrVersionNotFound)

	data, _ = readObject(t, store, name)
	assert.Equal(t, "third", string(data))

	// Reverting to new removes the object.
	other := core.NewObjectName("documents", "b")
	_, err = store.Write(ctx, other, core.VersionNew, strings.NewReader("x"), 1)
	require.NoError(t, err)
	require.NoError(t, store.Revert(ctx, other, core.VersionNew))
	exists, err := store.CheckExists(ctx, other)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestObjectStore_ReaderDetectsPurgedVersion(t *testing.T) {
	store := newTestStore(t, WithBufferSize(2), WithResponseBatchSize(1))
	ctx := context.Background()
	name := core.NewObjectName("blobs", "a")

	require.NoError(t, store.Put(ctx, name, core.VersionNew, strings.NewReader("abcdef"), 6))
	obj, err := store.Get(ctx, name)
	require.NoError(t, err)
	defer obj.Close()

	buf := make([]byte, 2)
	_, err = obj.Read(buf)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, name, obj.Version, strings.NewReader("zz"), 2))

	_, err = io.ReadAll(obj)
	assert.True(t, errors.Is(err, storage.ErrTruncatedData))
}

func TestObjectStore_InvalidNames(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Put(ctx, core.ObjectName{}, core.VersionNew, strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, core.ErrInvalidObjectName)

	_, err = store.Get(ctx, core.NewObjectName("a", ""))
	assert.ErrorIs(t, err, core.ErrInvalidObjectName)

	for _, err := range store.List(ctx, core.NewObjectName("a\x00b")) {
		assert.ErrorIs(t, err, core.ErrInvalidObjectName)
	}
}

func TestObjectStore_ClosedBackend(t *testing.T) {
	stores, err := NewMemoryStores()
	require.NoError(t, err)
	require.NoError(t, stores.Close())

	_, err = stores.Objects.Get(context.Background(), core.NewObjectName("a"))
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}
