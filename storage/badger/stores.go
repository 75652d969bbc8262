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


package badger

import "errors"

// Stores bundles every badger-backed store opened on one Backend.
type Stores struct {
	Backend     *Backend
	Objects     *ObjectStore
	Queue       *Queue
	Checkpoints *CheckpointRepository
}

// OpenStores opens every store on backend.
func OpenStores(backend *Backend, opts ...Option) (*Stores, error) {
	objects, err := NewObjectStore(backend, opts...)
	if err != nil {
		return nil, err
	}

	queue, err := NewQueue(backend)
	if err != nil {
		objects.Close()
		return nil, err
	}

	return &Stores{
		Backend:     backend,
		Objects:     objects,
		Queue:       queue,
		Checkpoints: NewCheckpointRepository(backend),
	}, nil
}

// NewMemoryStores creates in-memory stores for testing.
// Caller must Close the returned Stores when done.
func NewMemoryStores(opts ...Option) (*Stores, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}

	stores, err := OpenStores(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return stores, nil
}

// Close releases the stores and closes the backend.
func (s *Stores) Close() error {
	return errors.Join(
		s.Objects.Close(),
		s.Queue.Close(),
		s.Backend.Close(),
	)
}
