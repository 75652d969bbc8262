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


// Package search provides the search index the document store is
// mirrored into, and the read path over it.
//
// An Engine holds named indices and aliases. The index synchronizer writes
// through the write alias while readers go through the read alias, so a
// rebuild can fill a fresh index and swap the read alias onto it at once.
// Index names embed a hash of the Mapping they were created with, which
// tells whether the current index still matches the expected schema.
//
// MemoryEngine keeps each index in a B-tree ordered by document id and
// evaluates filters with connor, a MongoDB style condition matcher.
package search
