// Package reindex rebuilds the search index without exposing partial state.
//
// A rebuild creates a fresh index named after the schema hash of the
// mapping, points the write alias at it so live index maintenance lands
// there, streams every document through the indexer and then repoints the
// read alias in one step. The index previously behind the read alias is
// deleted afterwards.
//
// EnsureSchema compares the hash embedded in the name of the index behind
// the read alias with the hash of the mapping in use and rebuilds when they
// differ. It is meant to gate the index write path on startup.
package reindex
