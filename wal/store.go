package wal

import (
	"context"
	"io"
	"iter"

	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/storage"
)

// Store gives a VersionedStore commit/rollback semantics by recording the
// actions that undo or finish each mutation with the transaction in ctx.
//
//   - writing a new object registers an undo that removes it
//   - overwriting registers an undo that reverts to the superseded version
//     and a commit action that purges it
//   - deleting is itself deferred to a commit action
//
// Calls made without an active transaction go straight to the store.
type Store struct {
	store storage.VersionedStore
}

var _ storage.ObjectStore = (*Store)(nil)

// NewStore wraps store.
func NewStore(store storage.VersionedStore) *Store {
	return &Store{store: store}
}

// Put writes content and registers the matching undo and commit actions.
func (s *Store) Put(ctx context.Context, name core.ObjectName, expected core.Version, content io.Reader, length int64) error {
	tx, ok := Active(ctx)
	if !ok {
		return s.store.Put(ctx, name, expected, content, length)
	}

	superseded, err := s.store.Write(ctx, name, expected, content, length)
	if err != nil {
		return err
	}
	if superseded.IsNew() {
		return tx.AppendUndoAction(Remove(name))
	}
	if err := tx.AppendUndoAction(Revert(name, superseded)); err != nil {
		return err
	}
	return tx.AppendCommitAction(Purge(name, superseded))
}

// Delete defers the recursive physical delete until commit.
func (s *Store) Delete(ctx context.Context, name core.ObjectName) error {
	tx, ok := Active(ctx)
	if !ok {
		return s.store.Delete(ctx, name)
	}
	if err := core.ValidateObjectName(name); err != nil {
		return err
	}
	return tx.AppendCommitAction(RemoveRecursive(name))
}

func (s *Store) Get(ctx context.Context, name core.ObjectName) (*storage.StoreObject, error) {
	return s.store.Get(ctx, name)
}

func (s *Store) List(ctx context.Context, prefix core.ObjectName) iter.Seq2[*storage.StoreObject, error] {
	return s.store.List(ctx, prefix)
}

func (s *Store) CheckExists(ctx context.Context, name core.ObjectName) (bool, error) {
	return s.store.CheckExists(ctx, name)
}
