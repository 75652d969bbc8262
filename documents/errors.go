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


package documents

import "errors"

var (
	// ErrStoreRequired is returned when an object store is not provided.
	ErrStoreRequired = errors.New("object store required")

	// ErrCoordinatorRequired is returned when a transaction coordinator is not provided.
	ErrCoordinatorRequired = errors.New("transaction coordinator required")

	// ErrRegistryFlushed is returned when a registry is used after it flushed.
	ErrRegistryFlushed = errors.New("registry already flushed")

	// ErrSingleVersion is returned for version lookups on a single-version service.
	ErrSingleVersion = errors.New("service keeps a single version per document")
)
