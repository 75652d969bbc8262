package wal

import (
	"fmt"

	"github.com/poiesic/vellum/core"
)

// Op names the operation an Action performs.
type Op string

const (
	// OpRevert makes Version the current version of Name again.
	OpRevert Op = "revert"
	// OpPurge drops the retained Version of Name.
	OpPurge Op = "purge"
	// OpRemove deletes Name but keeps its descendants.
	OpRemove Op = "remove"
	// OpRemoveRecursive deletes Name and all of its descendants.
	OpRemoveRecursive Op = "remove-recursive"
	// OpInvalidate drops cached state derived from Name.
	OpInvalidate Op = "invalidate"
)

// Action is a deferred unit of work. It is plain data resolved against an
// Executor when it runs, so it can be logged or persisted as is.
// Every action is idempotent.
type Action struct {
	Op      Op              `json:"op"`
	Name    core.ObjectName `json:"name"`
	Version core.Version    `json:"version,omitempty"`
}

// Revert returns an action restoring version of name.
func Revert(name core.ObjectName, version core.Version) Action {
	return Action{Op: OpRevert, Name: name, Version: version}
}

// Purge returns an action dropping the retained version of name.
func Purge(name core.ObjectName, version core.Version) Action {
	return Action{Op: OpPurge, Name: name, Version: version}
}

// Remove returns an action deleting name without its descendants.
func Remove(name core.ObjectName) Action {
	return Action{Op: OpRemove, Name: name}
}

// RemoveRecursive returns an action deleting name and its descendants.
func RemoveRecursive(name core.ObjectName) Action {
	return Action{Op: OpRemoveRecursive, Name: name}
}

// Invalidate returns an action dropping cached state for name.
func Invalidate(name core.ObjectName) Action {
	return Action{Op: OpInvalidate, Name: name}
}

func (a Action) String() string {
	if a.Version == "" {
		return fmt.Sprintf("%s %s", a.Op, a.Name)
	}
	return fmt.Sprintf("%s %s@%s", a.Op, a.Name, a.Version)
}
