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
	"fmt"

	"github.com/poiesic/vellum/core"
)

// ObjectMeta is the metadata row recorded for every stored object version.
type ObjectMeta struct {
	Version uint64
	Chunks  uint64
	Length  int64
}

// MarshalObjectMeta serializes an ObjectMeta to bytes.
func MarshalObjectMeta(meta *ObjectMeta) []byte {
	buf := make([]byte, ObjectMetaMUS.Size(*meta))
	ObjectMetaMUS.Marshal(*meta, buf)
	return buf
}

// UnmarshalObjectMeta deserializes an ObjectMeta from bytes.
func UnmarshalObjectMeta(data []byte) (*ObjectMeta, error) {
	meta, _, err := ObjectMetaMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: object metadata: %w", ErrSerializationFailed, err)
	}
	return &meta, nil
}

// MarshalQueueElement serializes a QueueElement to bytes.
func MarshalQueueElement(element *core.QueueElement) []byte {
	buf := make([]byte, core.QueueElementMUS.Size(*element))
	core.QueueElementMUS.Marshal(*element, buf)
	return buf
}

// UnmarshalQueueElement deserializes a QueueElement from bytes.
func UnmarshalQueueElement(data []byte) (*core.QueueElement, error) {
	element, _, err := core.QueueElementMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: queue element: %w", ErrSerializationFailed, err)
	}
	return &element, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) []byte {
	buf := make([]byte, core.CheckpointMUS.Size(*checkpoint))
	core.CheckpointMUS.Marshal(*checkpoint, buf)
	return buf
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	checkpoint, _, err := core.CheckpointMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: checkpoint: %w", ErrSerializationFailed, err)
	}
	return &checkpoint, nil
}
