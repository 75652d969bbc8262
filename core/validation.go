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
	"fmt"
	"strings"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - DocumentID must not be empty
//   - DocumentID must be usable as a single object name segment
//   - Content element ids must be non-empty and unique
//
// NOT validated (assigned by the repository):
//   - VersionTimestamp
//   - DateCreated / DateModified
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if err := ValidateDocumentID(doc.DocumentID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	seen := make(map[string]struct{}, len(doc.ContentElements))
	for _, ce := range doc.ContentElements {
		if ce.ID == "" {
			return fmt.Errorf("%w: content element without id", ErrInvalidDocument)
		}
		if _, dup := seen[ce.ID]; dup {
			return fmt.Errorf("%w: duplicate content element %q", ErrInvalidDocument, ce.ID)
		}
		seen[ce.ID] = struct{}{}
	}

	return nil
}

// ValidateDocumentID checks that id can be stored as one name segment.
func ValidateDocumentID(id string) error {
	if id == "" {
		return ErrEmptyDocumentID
	}
	if strings.ContainsAny(id, "/\x00") || strings.Contains(id, "@") {
		return fmt.Errorf("%w: document id %q contains a reserved character", ErrInvalidObjectName, id)
	}
	return nil
}

// ValidateObjectName checks that name is non-empty and that no segment is
// empty or contains a NUL byte.
func ValidateObjectName(name ObjectName) error {
	if len(name) == 0 {
		return fmt.Errorf("%w: empty name", ErrInvalidObjectName)
	}
	return ValidatePrefix(name)
}

// ValidatePrefix is ValidateObjectName without the non-empty requirement.
func ValidatePrefix(name ObjectName) error {
	for i, segment := range name {
		if segment == "" {
			return fmt.Errorf("%w: segment %d of %q is empty", ErrInvalidObjectName, i, name.String())
		}
		if strings.IndexByte(segment, 0) >= 0 {
			return fmt.Errorf("%w: segment %d of %q contains NUL", ErrInvalidObjectName, i, name.String())
		}
	}
	return nil
}
