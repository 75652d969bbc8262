package wal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/poiesic/vellum/metrics"
)

// State is the lifecycle state of a Tx.
type State int

const (
	StateActive State = iota
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

type txKey struct{}

// FromContext returns the transaction carried by ctx.
func FromContext(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	return tx, ok
}

// Active returns the transaction carried by ctx if it is still active.
func Active(ctx context.Context) (*Tx, bool) {
	tx, ok := FromContext(ctx)
	if !ok || tx.State() != StateActive {
		return nil, false
	}
	return tx, true
}

// Coordinator starts transactions and runs their undo and commit actions.
//
// Undo actions run in reverse registration order on rollback. Commit
// actions run in registration order after commit, once no undo action can
// be needed any more. A failing action is logged and counted; it is never
// retried and never changes the outcome of the transaction.
type Coordinator struct {
	executor Executor
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger for action failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics action failures are counted in.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// NewCoordinator creates a Coordinator resolving actions with executor.
func NewCoordinator(executor Executor, opts ...Option) *Coordinator {
	c := &Coordinator{
		executor: executor,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin starts a transaction and returns a context carrying it.
func (c *Coordinator) Begin(ctx context.Context) (context.Context, *Tx) {
	tx := &Tx{
		id:        uuid.NewString(),
		coord:     c,
		resources: make(map[any]any),
	}
	return context.WithValue(ctx, txKey{}, tx), tx
}

// AppendUndoAction registers an undo action with the transaction in ctx.
func (c *Coordinator) AppendUndoAction(ctx context.Context, action Action) error {
	tx, ok := FromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}
	return tx.AppendUndoAction(action)
}

// AppendCommitAction registers a commit action with the transaction in ctx.
func (c *Coordinator) AppendCommitAction(ctx context.Context, action Action) error {
	tx, ok := FromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}
	return tx.AppendCommitAction(action)
}

// WithTransaction executes fn within a transaction.
// If fn returns an error, the transaction is rolled back.
// If fn returns nil, the transaction is committed.
// When ctx already carries an active transaction, fn joins it.
func (c *Coordinator) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := Active(ctx); ok {
		return fn(ctx)
	}

	txCtx, tx := c.Begin(ctx)
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback(txCtx)
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		tx.Rollback(txCtx)
		return err
	}
	return tx.Commit(txCtx)
}

func (c *Coordinator) run(ctx context.Context, tx *Tx, role string, actions []Action) {
	// Cleanup must not be cut short by the caller's deadline.
	ctx = context.WithoutCancel(ctx)
	for _, action := range actions {
		if err := c.executor.Execute(ctx, action); err != nil {
			c.logger.Error("wal action failed, manual reconciliation required",
				"tx", tx.id, "role", role, "action", action.String(), "err", err)
			c.metrics.RecordActionFailure(role, string(action.Op))
		}
	}
}

// Tx is one application transaction.
// It is safe for concurrent use, but is meant to be owned by one request.
type Tx struct {
	id    string
	coord *Coordinator

	mu           sync.Mutex
	state        State
	undo         []Action
	commit       []Action
	beforeCommit []func(ctx context.Context) error
	completion   []func(committed bool)
	resources    map[any]any
}

// ID returns the transaction id.
func (tx *Tx) ID() string {
	return tx.id
}

// State returns the current lifecycle state.
func (tx *Tx) State() State {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

// AppendUndoAction registers an action to run if the transaction rolls back.
func (tx *Tx) AppendUndoAction(action Action) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state != StateActive {
		return ErrTransactionDone
	}
	tx.undo = append(tx.undo, action)
	return nil
}

// AppendCommitAction registers an action to run after the transaction commits.
func (tx *Tx) AppendCommitAction(action Action) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state != StateActive {
		return ErrTransactionDone
	}
	tx.commit = append(tx.commit, action)
	return nil
}

// OnBeforeCommit registers fn to run when Commit is called, before the
// transaction is considered committed. An error from fn rolls back.
func (tx *Tx) OnBeforeCommit(fn func(ctx context.Context) error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.beforeCommit = append(tx.beforeCommit, fn)
}

// OnCompletion registers fn to run after commit or rollback.
func (tx *Tx) OnCompletion(fn func(committed bool)) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.completion = append(tx.completion, fn)
}

// Bind associates a transaction-scoped resource with key.
func (tx *Tx) Bind(key, value any) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.resources[key] = value
}

// Resource returns the resource bound to key.
func (tx *Tx) Resource(key any) (any, bool) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	v, ok := tx.resources[key]
	return v, ok
}

// Commit runs the before-commit hooks, marks the transaction committed and
// runs the commit actions. If a hook fails the transaction is rolled back
// and the hook's error returned.
func (tx *Tx) Commit(ctx context.Context) error {
	tx.mu.Lock()
	if tx.state != StateActive {
		tx.mu.Unlock()
		return ErrTransactionDone
	}
	tx.mu.Unlock()

	// Hooks may register further hooks and actions.
	for i := 0; ; i++ {
		tx.mu.Lock()
		if i >= len(tx.beforeCommit) {
			tx.mu.Unlock()
			break
		}
		hook := tx.beforeCommit[i]
		tx.mu.Unlock()

		if err := hook(ctx); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("transaction %s rolled back: %w", tx.id, err)
		}
	}

	tx.mu.Lock()
	if tx.state != StateActive {
		tx.mu.Unlock()
		return ErrTransactionDone
	}
	tx.state = StateCommitted
	actions := tx.commit
	tx.undo = nil
	tx.commit = nil
	tx.mu.Unlock()

	tx.coord.run(ctx, tx, "commit", actions)
	tx.complete(true)
	return nil
}

// Rollback runs the undo actions in reverse registration order.
func (tx *Tx) Rollback(ctx context.Context) error {
	tx.mu.Lock()
	if tx.state != StateActive {
		tx.mu.Unlock()
		return ErrTransactionDone
	}
	tx.state = StateRolledBack
	actions := make([]Action, len(tx.undo))
	for i, a := range tx.undo {
		actions[len(tx.undo)-1-i] = a
	}
	tx.undo = nil
	tx.commit = nil
	tx.mu.Unlock()

	tx.coord.run(ctx, tx, "undo", actions)
	tx.complete(false)
	return nil
}

func (tx *Tx) complete(committed bool) {
	tx.mu.Lock()
	hooks := tx.completion
	tx.completion = nil
	tx.resources = make(map[any]any)
	tx.mu.Unlock()

	for _, fn := range hooks {
		fn(committed)
	}
	tx.coord.metrics.RecordTransaction(committed)
}
