// Package documents provides the versioned document registry and the
// document service built on it.
//
// Every mutation happens inside a wal transaction. The first document
// operation of a transaction binds a Registry to it; the registry caches
// the documents touched by the transaction and records their changes:
//   - Create, Update and Delete change the in-transaction state only
//   - facet (sidecar) writes accumulate as a delta merged on flush
//   - the registry flushes right before the transaction commits
//
// Flushing persists each touched document once, re-validating under a
// per-document lock that no other writer has stored a newer version since
// the snapshot was taken. Once every document is persisted, one event per
// document is published on the bus.
//
// With multi-versioning on (the default) each version is an immutable
// object at documents/<id>/<timestamp>, and deleting appends a tombstone
// version. Without it a document is a single object overwritten in place.
package documents
