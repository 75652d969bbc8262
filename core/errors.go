// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors
var (
	// ErrNotFound indicates the requested document or version does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a document with the same id already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrVersionMismatch indicates an optimistic concurrency violation.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrVersionNotFound indicates a put presented a version for an object that has none.
	ErrVersionNotFound = errors.New("version not found")

	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrEmptyDocumentID indicates the DocumentID field is empty.
	ErrEmptyDocumentID = errors.New("document id cannot be empty")

	// ErrInvalidObjectName indicates an ObjectName failed validation.
	ErrInvalidObjectName = errors.New("invalid object name")

	// ErrStorage indicates an infrastructure failure in the object store.
	ErrStorage = errors.New("object store failure")

	// ErrIndexMaintenance indicates an indexing or rebuild failure.
	ErrIndexMaintenance = errors.New("index maintenance failure")
)

// VersionMismatchError carries the authoritative version (Expected) and the
// version the caller presented (Actual) so the caller can decide how to retry.
type VersionMismatchError struct {
	DocumentID string
	Expected   *time.Time
	Actual     *time.Time
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("version mismatch on document %q: expected %s, actual %s",
		e.DocumentID, formatVersion(e.Expected), formatVersion(e.Actual))
}

// Is makes errors.Is(err, ErrVersionMismatch) hold.
func (e *VersionMismatchError) Is(target error) bool {
	return target == ErrVersionMismatch
}

func formatVersion(ts *time.Time) string {
	if ts == nil {
		return "<none>"
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

// StorageError wraps an I/O or serialization failure of the object store.
type StorageError struct {
	Op   string
	Name ObjectName
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStorage) hold.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// IndexMaintenanceError wraps a failure while maintaining the search index.
type IndexMaintenanceError struct {
	Op         string
	DocumentID string
	Err        error
}

func (e *IndexMaintenanceError) Error() string {
	if e.DocumentID == "" {
		return fmt.Sprintf("index %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("index %s %q: %v", e.Op, e.DocumentID, e.Err)
}

func (e *IndexMaintenanceError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrIndexMaintenance) hold.
func (e *IndexMaintenanceError) Is(target error) bool {
	return target == ErrIndexMaintenance
}
