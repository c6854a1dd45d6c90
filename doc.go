// Package storecore provides the in-memory collection cores of a
// data-store runtime.
//
// Two independent containers live here, each in its own package:
//
//   - dict: an incrementally-resizable chained hash map. Growing and
//     shrinking migrate entries in bounded work units spread across
//     ordinary operations, so no single call pays for a full-table
//     rehash. Safe and unsafe iterators, a resize-tolerant scan cursor,
//     and random sampling primitives round out the API.
//
//   - quicklist: a doubly-linked list of packed-array segments. Small
//     items are packed many per node; interior nodes beyond a
//     configurable depth from the ends are kept compressed (LZ4 or
//     zstd), trading CPU on rare mid-list access for memory on long
//     lists.
//
// Both containers are single-writer: the host serializes all calls to a
// given instance. Distinct instances are fully independent and may be
// driven from different goroutines.
package storecore
