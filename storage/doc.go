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


// Package storage provides the storage abstraction layer for vellum.
//
// This package defines the contracts that decouple the document repository
// from a particular storage engine. The BadgerDB implementation lives in the
// badger subpackage; the transactional wrapper lives in package wal.
//
// # Architecture
//
//   - ObjectStore: hierarchical put/get/list/delete with version tokens
//   - VersionedStore: ObjectStore plus the retain/revert/purge primitives
//     the write-ahead log builds on
//   - Queue: durable FIFO of index maintenance requests
//   - CheckpointRepository: index rebuild bookkeeping
//
// # Version Tokens
//
// Every Put presents the version last observed for the object, or
// core.VersionNew for a first write. A stale token fails with
// *VersionMismatchError; a token for an object that doesn't exist fails
// with ErrVersionNotFound.
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	stores, err := badger.NewMemoryStores()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stores.Close()
//
// # Thread Safety
//
// All implementations must be thread-safe. StoreObject values are not;
// each one belongs to a single reader.
package storage
