// Package sieve provides a bounded key/value cache with SIEVE eviction and
// asynchronous, at-most-once population of missing entries.
//
// The package focuses on:
//   - O(1) amortized eviction decisions without reordering nodes on reads
//   - A lock-free hit path (one atomic map load plus one boolean store)
//   - Single-flight loading: one factory invocation per missing key, shared
//     by every concurrent caller (via lib/loader)
//
// Eviction (SIEVE):
//
// Entries form a doubly linked list from head (most recently inserted) to
// tail (oldest). Every hit sets the entry's visited flag; nothing moves.
// When room is needed, a persistent hand pointer scans from where the last
// eviction stopped (initially the tail) towards the head, clearing visited
// flags as it passes, and evicts the first entry whose flag is clear. This
// approximates LRU-like recency while keeping reads write-free except for
// one boolean, which is exactly the property that makes the hit path cheap.
// The cache consequently does NOT guarantee strict LRU ordering.
//
// Failure semantics: a factory error propagates to the exclusive loading
// caller and to every concurrent caller piggy-backing on the same key; the
// key stays absent, so the next call retries the factory. See lib/retry for
// a decorator that adds a delayed retry and failure caching on top.
//
// Thread-safety: all methods are safe for concurrent use. The list and the
// key map are only mutated under an internal mutex scoped to "evict and/or
// insert one node"; visited flags are set without a lock (a racy flag update
// can at worst evict an entry one generation early or late, which SIEVE
// tolerates by construction).
package sieve
