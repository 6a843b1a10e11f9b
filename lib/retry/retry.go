package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ValentinKolb/sift/lib/loader"
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a Policy during initialization.
type Options struct {
	// RetryDelay is how long to wait before the single retry of a failed
	// attempt. Zero retries immediately.
	RetryDelay time.Duration

	// FailureTTL is how long a definitive failure is remembered per key.
	// While remembered, calls for that key fail immediately without
	// invoking the factory. Zero disables negative caching.
	FailureTTL time.Duration
}

// DefaultOptions returns the default Policy options.
func DefaultOptions() *Options {
	return &Options{
		RetryDelay: 100 * time.Millisecond,
		FailureTTL: 5 * time.Second,
	}
}

// --------------------------------------------------------------------------
// Policy
// --------------------------------------------------------------------------

// failure is one remembered definitive error.
type failure struct {
	err     error
	expires time.Time
}

// Policy wraps a loader.Factory with retry and failure-caching behavior.
// The zero value is not usable; create policies with New.
//
// Thread-safety: safe for concurrent use.
type Policy[K comparable, V any] struct {
	factory    loader.Factory[K, V]
	retryDelay time.Duration
	failureTTL time.Duration
	failures   *xsync.MapOf[K, failure]
}

// New creates a Policy around factory with the specified options (optional).
func New[K comparable, V any](factory loader.Factory[K, V], opts *Options) *Policy[K, V] {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Policy[K, V]{
		factory:    factory,
		retryDelay: opts.RetryDelay,
		failureTTL: opts.FailureTTL,
		failures:   xsync.NewMapOf[K, failure](),
	}
}

// Wrap returns New(factory, opts).Load, ready to be passed wherever a plain
// loader.Factory is expected (e.g. sieve.Cache.GetOrLoad).
func Wrap[K comparable, V any](factory loader.Factory[K, V], opts *Options) loader.Factory[K, V] {
	return New(factory, opts).Load
}

// Load invokes the wrapped factory with up to one delayed retry. A key whose
// last definitive failure is still within the TTL fails immediately.
//
// Thread-safety: safe for concurrent use.
func (p *Policy[K, V]) Load(ctx context.Context, key K) (V, error) {
	var zero V

	if f, ok := p.failures.Load(key); ok {
		if time.Now().Before(f.expires) {
			return zero, fmt.Errorf("cached failure: %w", f.err)
		}
		p.failures.Delete(key)
	}

	v, err := p.factory(ctx, key)
	if err == nil {
		return v, nil
	}

	if p.retryDelay > 0 {
		timer := time.NewTimer(p.retryDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			// aborted before the retry, nothing definitive to remember
			return zero, ctx.Err()
		}
	}

	v, err = p.factory(ctx, key)
	if err == nil {
		return v, nil
	}

	if p.failureTTL > 0 {
		p.failures.Store(key, failure{err: err, expires: time.Now().Add(p.failureTTL)})
	}
	return zero, err
}

// Forget drops the remembered failure for key, if any.
func (p *Policy[K, V]) Forget(key K) {
	p.failures.Delete(key)
}
