// Package loader provides a generic, single-flight "get or populate
// atomically" operation over any associative collection.
//
// The package focuses on:
//   - At-most-once execution of a factory per key, no matter how many
//     goroutines concurrently request the same missing key
//   - Sharing the factory outcome (value or error) with every concurrent
//     caller of that key
//   - Leaving a failed key absent so the next call retries the factory
//
// Key Components:
//
//   - Backing: the minimal interface a collection must offer (Peek, Commit)
//     to be populated through a Loader. lib/sieve's Cache implements it, and
//     NewForMap adapts any xsync.MapOf supplied by the host application.
//
//   - Loader: holds the map of in-flight computations. Registration uses an
//     atomic insert-if-absent, so between the existence check and the
//     factory call there is no window in which two loaders for one key can
//     both win.
//
// The in-flight record for a key lives only while its factory call is
// outstanding and is removed when the call settles, for success and failure
// alike. A pending computation is never cancelled: a caller whose context
// expires stops waiting, but the factory runs to completion and its result
// is shared with the remaining waiters.
package loader
