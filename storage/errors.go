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


package storage

import (
	"errors"
	"fmt"

	"github.com/poiesic/vellum/core"
)

var (
	// ErrVersionNotFound indicates a put presented a version for an object that has none.
	ErrVersionNotFound = core.ErrVersionNotFound

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData indicates that data was truncated during reading.
	ErrTruncatedData = errors.New("truncated data")

	// ErrInvalidConfiguration indicates out-of-range store options.
	ErrInvalidConfiguration = errors.New("invalid storage configuration")
)

// VersionMismatchError reports a put whose expected version is not the
// version recorded for the object.
type VersionMismatchError struct {
	Name core.ObjectName
	// Expected is the version presented by the caller.
	Expected core.Version
	// Actual is the version recorded in the store.
	Actual core.Version
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("version mismatch on %s: expected %s, actual %s", e.Name, e.Expected, e.Actual)
}

// Is makes errors.Is(err, core.ErrVersionMismatch) hold.
func (e *VersionMismatchError) Is(target error) bool {
	return target == core.ErrVersionMismatch
}
