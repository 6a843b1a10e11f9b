// Package retry decorates a loader.Factory with a single delayed retry and
// negative caching of failures.
//
// The underlying single-flight machinery (lib/loader, lib/sieve) deliberately
// caches nothing on factory failure, so a hot key whose backend is down gets
// retried by every miss. Wrapping the factory changes that at the edge where
// it belongs, without touching the cache:
//
//   - A failed attempt is retried once after a configurable delay; transient
//     faults never reach the caller.
//   - If the retry fails too, the error is remembered for the key for a
//     configurable TTL and returned immediately to subsequent calls, shielding
//     the backend from a miss storm.
//   - A successful load clears the remembered failure.
//
// Both behaviors are optional: a zero RetryDelay still retries immediately,
// and a zero FailureTTL disables negative caching.
package retry
