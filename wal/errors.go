package wal

import "errors"

var (
	// ErrNoTransaction indicates a transactional operation was called without an active transaction.
	ErrNoTransaction = errors.New("no active transaction")

	// ErrTransactionDone indicates the transaction was already committed or rolled back.
	ErrTransactionDone = errors.New("transaction already completed")

	// ErrUnknownOp indicates no executor is registered for an action's Op.
	ErrUnknownOp = errors.New("unknown wal operation")
)
