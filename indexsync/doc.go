// Package indexsync keeps the search index eventually consistent with the
// document store.
//
// Document events are turned into elements of a durable queue. A single
// drain worker per process takes elements in enqueue order, re-reads the
// document as it is at that moment and writes it through the write alias
// of the index. Failures on this path are logged and counted but never
// reach the writer whose transaction produced the event.
package indexsync
