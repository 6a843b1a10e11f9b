// Package hashtable provides grow-only, insertion-ordered hash collections
// that allow lock-free concurrent reads while a single writer appends.
//
// The package focuses on:
//   - A Set[K] that doubles as an indexable, insertion-ordered sequence
//   - A Map[K, V] with the same dual identity (associative and positional)
//   - Lock-free lookups concurrent with one appending writer
//   - Amortized O(1) insertion with power-of-two doubling growth
//
// Key Components:
//
//   - Set: an append-only hash set. Add returns the index of the item, and
//     the index of the previously added equal item on duplicates. Indices are
//     stable forever because entries are never moved or removed. The set also
//     offers the usual algebra (subset, superset, overlap, equality, except)
//     against other sets and against arbitrary iter.Seq sequences.
//
//   - Map: an append-only hash map. Add rejects duplicate keys with
//     ErrDuplicateKey, Set overwrites the value in place. Keys and values are
//     addressable by insertion index via Key, Value and At.
//
// Both types share one storage layout: a single entry array holding, per
// slot, the head of a bucket chain and, per index, the appended entry with an
// intra-array chain link. The array reference is published atomically, so a
// reader may keep using an array captured before a growth step and still
// answers correctly for every entry that existed in its snapshot.
//
// Concurrency Contract:
//
// Any number of goroutines may read (Contains, IndexOf, Get, Has, At, Key,
// Value, Len and the iterators) concurrently with AT MOST ONE goroutine
// mutating the collection (Add, Set, EnsureCapacity). Concurrent writers must
// be serialized externally, e.g. with a mutex owned by the caller. The
// higher-level packages of this module (lib/memo) do exactly that.
//
// The sole exception to the read guarantees is Map.Set on an existing key:
// the in-place value overwrite is unsynchronized with concurrent readers of
// that same key and must not be relied upon while such readers are active.
//
// There is no Delete and no Clear. This is not an oversight: the lock-free
// read property rests on entries being immutable once linked, which removal
// would break.
package hashtable
