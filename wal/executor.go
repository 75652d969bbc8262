package wal

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/vellum/storage"
)

// Executor runs actions.
type Executor interface {
	Execute(ctx context.Context, action Action) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, action Action) error

func (f ExecutorFunc) Execute(ctx context.Context, action Action) error {
	return f(ctx, action)
}

// Mux dispatches actions to the executor registered for their Op.
type Mux struct {
	mu       sync.RWMutex
	handlers map[Op]Executor
}

var _ Executor = (*Mux)(nil)

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{handlers: make(map[Op]Executor)}
}

// NewStoreExecutor returns a Mux resolving the storage operations against store.
// OpInvalidate is left for the cache owner to register.
func NewStoreExecutor(store storage.VersionedStore) *Mux {
	m := NewMux()
	m.HandleFunc(OpRevert, func(ctx context.Context, a Action) error {
		return store.Revert(ctx, a.Name, a.Version)
	})
	m.HandleFunc(OpPurge, func(ctx context.Context, a Action) error {
		return store.Purge(ctx, a.Name, a.Version)
	})
	m.HandleFunc(OpRemove, func(ctx context.Context, a Action) error {
		return store.Remove(ctx, a.Name, false)
	})
	m.HandleFunc(OpRemoveRecursive, func(ctx context.Context, a Action) error {
		return store.Remove(ctx, a.Name, true)
	})
	return m
}

// Handle registers e for op, replacing any previous executor.
func (m *Mux) Handle(op Op, e Executor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[op] = e
}

// HandleFunc registers fn for op.
func (m *Mux) HandleFunc(op Op, fn func(ctx context.Context, action Action) error) {
	m.Handle(op, ExecutorFunc(fn))
}

// Execute runs action with the executor registered for its Op.
func (m *Mux) Execute(ctx context.Context, action Action) error {
	m.mu.RLock()
	e, ok := m.handlers[action.Op]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOp, action.Op)
	}
	return e.Execute(ctx, action)
}
