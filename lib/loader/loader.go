package loader

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Factory computes the value for a missing key. It is invoked at most once
// per key across all concurrent GetOrLoad calls for that key.
type Factory[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Backing is the associative collection a Loader populates. Implementations
// must make Peek safe for concurrent use with Commit; Commit itself is only
// ever invoked by the one goroutine that won the in-flight registration for
// its key.
type Backing[K comparable, V any] interface {
	// Peek returns the committed value for key, if any. It must not have
	// loading side effects.
	Peek(key K) (value V, ok bool)

	// Commit stores a freshly computed value for key.
	Commit(key K, value V)
}

// --------------------------------------------------------------------------
// Loader
// --------------------------------------------------------------------------

// flight is the completion handle of one in-flight factory call. value and
// err are written exactly once, before done is closed; waiters read them
// only after done.
type flight[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// Loader deduplicates concurrent population of a Backing.
//
// Thread-safety: all methods are safe for concurrent use.
type Loader[K comparable, V any] struct {
	backing Backing[K, V]
	pending *xsync.MapOf[K, *flight[V]]
}

// New creates a Loader on top of the given backing collection.
func New[K comparable, V any](backing Backing[K, V]) *Loader[K, V] {
	return &Loader[K, V]{
		backing: backing,
		pending: xsync.NewMapOf[K, *flight[V]](),
	}
}

// NewForMap creates a Loader that populates a host-supplied xsync.MapOf.
func NewForMap[K comparable, V any](m *xsync.MapOf[K, V]) *Loader[K, V] {
	return New[K, V](mapBacking[K, V]{m})
}

// GetOrLoad returns the committed value for key, or computes it via factory.
//
// If another call for the same key is already computing, this call does not
// invoke factory; it waits for that computation and shares its value or
// error. The context only bounds this call's waiting: an in-flight factory
// is never cancelled, and whatever it returns is shared with every waiter
// still present.
//
// On factory failure the error is propagated to all waiters, nothing is
// committed, and the key becomes loadable again.
//
// Thread-safety: safe for concurrent use.
func (l *Loader[K, V]) GetOrLoad(ctx context.Context, key K, factory Factory[K, V]) (V, error) {
	// fast path, no registration
	if v, ok := l.backing.Peek(key); ok {
		return v, nil
	}

	f := &flight[V]{done: make(chan struct{})}
	winner, loaded := l.pending.LoadOrStore(key, f)
	if loaded {
		// someone else is the exclusive loader for this key
		return l.wait(ctx, winner)
	}

	// we are the exclusive loader. Re-check the backing: a previous loader
	// may have committed between our Peek and our registration.
	if v, ok := l.backing.Peek(key); ok {
		l.settle(key, f, v, nil)
		return v, nil
	}

	v, err := factory(ctx, key)
	if err == nil {
		l.backing.Commit(key, v)
	}
	l.settle(key, f, v, err)
	return v, err
}

// wait blocks until the given flight settles or ctx expires.
func (l *Loader[K, V]) wait(ctx context.Context, f *flight[V]) (V, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// settle publishes the outcome to all waiters and retires the in-flight
// record. The record is removed before done is closed so a waiter that
// immediately retries registers a fresh flight instead of re-joining the
// settled one.
func (l *Loader[K, V]) settle(key K, f *flight[V], value V, err error) {
	f.value = value
	f.err = err
	l.pending.Delete(key)
	close(f.done)
}

// --------------------------------------------------------------------------
// Backing Adapters
// --------------------------------------------------------------------------

// mapBacking adapts an xsync.MapOf to the Backing interface.
type mapBacking[K comparable, V any] struct {
	m *xsync.MapOf[K, V]
}

func (b mapBacking[K, V]) Peek(key K) (V, bool) {
	return b.m.Load(key)
}

func (b mapBacking[K, V]) Commit(key K, value V) {
	b.m.Store(key, value)
}
