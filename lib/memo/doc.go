// Package memo provides a batch memoizer: it turns a bulk function from a
// set of keys to a list of results into a cached, deduplicating variant
// that coalesces overlapping concurrent requests.
//
// The package focuses on:
//   - At-most-once computation per key, across any set of concurrent
//     Memoize calls with arbitrarily overlapping key sets
//   - Batching: one bulk invocation covers all keys a call actually has to
//     compute itself, instead of one invocation per key
//   - Coalescing: keys already being computed by another in-flight batch
//     are awaited, not recomputed and not blocked on serially
//
// A Memoize call partitions its keys into already-committed ones and
// missing ones, subtracts every key covered by a currently running batch,
// and starts exactly one background batch for the remainder. It then awaits
// every overlapping running batch plus its own and reads all results from
// the committed map.
//
// Committed results live in a hashtable.Map: the memoizer's commit mutex
// serializes the appends (the single-writer side of the table's contract)
// while every read-back stays lock-free. The running-batch list is guarded
// by a separate mutex that is never held across a bulk call.
//
// Failure semantics: a bulk error reaches every caller awaiting that batch,
// also the ones that joined via key-set intersection; the failed keys stay
// uncommitted and a later call recomputes them.
package memo
