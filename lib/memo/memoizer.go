package memo

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/VictoriaMetrics/metrics"

	"github.com/ValentinKolb/sift/lib/hashtable"
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// BulkFunc computes the values for a batch of keys. The returned slice must
// be aligned with keys (values[i] belongs to keys[i]). It is invoked with
// each key at most once across all concurrent Memoize calls.
type BulkFunc[K comparable, V any] func(ctx context.Context, keys []K) ([]V, error)

// Options configures a Memoizer during initialization.
type Options struct {
	// Name labels the memoizer's metrics. Memoizers sharing a name share
	// counters.
	Name string
}

// DefaultOptions returns the default Memoizer options.
func DefaultOptions() *Options {
	return &Options{Name: "default"}
}

// batch is one running bulk computation. keys is immutable after creation;
// err is written once, before done is closed.
type batch[K comparable] struct {
	keys *hashtable.Set[K]
	done chan struct{}
	err  error
	next *batch[K]
}

// settled reports whether the batch has completed (without blocking).
func (b *batch[K]) settled() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Memoizer memoizes a BulkFunc over a shared committed map.
//
// Thread-safety: all methods are safe for concurrent use.
type Memoizer[K comparable, V any] struct {
	bulk BulkFunc[K, V]

	// commitMu serializes all writes to committed. The table allows any
	// number of lock-free readers next to this single serialized writer,
	// so reads never take it.
	commitMu  sync.Mutex
	committed *hashtable.Map[K, V]

	// runMu guards the running-batch list. It is held only for list
	// bookkeeping and overlap computation, never across a bulk call.
	runMu   sync.Mutex
	runHead *batch[K]
	runTail *batch[K]

	hits          *metrics.Counter
	bulkCalls     *metrics.Counter
	bulkKeys      *metrics.Counter
	coalescedKeys *metrics.Counter
	bulkErrors    *metrics.Counter
}

// New creates a Memoizer for the given bulk function with the specified
// options (optional).
func New[K comparable, V any](bulk BulkFunc[K, V], opts *Options) *Memoizer[K, V] {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Memoizer[K, V]{
		bulk:          bulk,
		committed:     hashtable.NewMap[K, V](),
		hits:          metrics.GetOrCreateCounter(fmt.Sprintf(`sift_memo_hits_total{memoizer=%q}`, opts.Name)),
		bulkCalls:     metrics.GetOrCreateCounter(fmt.Sprintf(`sift_memo_bulk_calls_total{memoizer=%q}`, opts.Name)),
		bulkKeys:      metrics.GetOrCreateCounter(fmt.Sprintf(`sift_memo_bulk_keys_total{memoizer=%q}`, opts.Name)),
		coalescedKeys: metrics.GetOrCreateCounter(fmt.Sprintf(`sift_memo_coalesced_keys_total{memoizer=%q}`, opts.Name)),
		bulkErrors:    metrics.GetOrCreateCounter(fmt.Sprintf(`sift_memo_bulk_errors_total{memoizer=%q}`, opts.Name)),
	}
}

// --------------------------------------------------------------------------
// Memoize
// --------------------------------------------------------------------------

// Memoize returns the values for keys, aligned with the input (duplicate
// keys are allowed and yield the same value). Values not yet committed are
// computed through the bulk function, batched with the other missing keys
// of this call and coalesced with every overlapping in-flight batch.
//
// The context bounds only this call's waiting: a started batch always runs
// to completion so its result can serve every other caller, and a caller
// whose context expires simply stops waiting for it.
//
// Thread-safety: safe for concurrent use.
func (m *Memoizer[K, V]) Memoize(ctx context.Context, keys []K) ([]V, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	// partition: deduplicated missing keys in first-seen order
	missing := hashtable.NewSetWithCapacity[K](len(keys))
	for _, k := range keys {
		if m.committed.Has(k) {
			m.hits.Inc()
		} else {
			missing.Add(k)
		}
	}

	if missing.Len() > 0 {
		if err := m.load(ctx, missing); err != nil {
			return nil, err
		}
	}

	out := make([]V, len(keys))
	for i, k := range keys {
		v, ok := m.committed.Get(k)
		if !ok {
			// every awaited batch settled successfully, so this can only
			// mean the bulk function silently dropped a key
			return nil, fmt.Errorf("memo: no value committed for key %v", k)
		}
		out[i] = v
	}
	return out, nil
}

// load ensures every key of missing is committed, starting at most one new
// batch and joining all overlapping running ones.
func (m *Memoizer[K, V]) load(ctx context.Context, missing *hashtable.Set[K]) error {
	var (
		waitFor []*batch[K]
		own     *batch[K]
	)

	m.runMu.Lock()

	m.prune()

	// re-check under the lock: a batch that committed these keys and left
	// the list since our unlocked partition would otherwise be missed
	remaining := hashtable.NewSetWithCapacity[K](missing.Len())
	for k := range missing.Items() {
		if !m.committed.Has(k) {
			remaining.Add(k)
		}
	}

	// subtract everything an in-flight batch already covers
	stillMissing := remaining.Len()
	for b := m.runHead; b != nil; b = b.next {
		if !remaining.Overlaps(b.keys) {
			continue
		}
		if b.settled() {
			// a settled successful batch has committed its keys already
			// (visible to us, the commit precedes the done close); a
			// settled failed batch is ignored so its keys are recomputed
			if b.err == nil {
				remaining = remaining.Except(b.keys)
			}
			continue
		}
		waitFor = append(waitFor, b)
		remaining = remaining.Except(b.keys)
	}
	coalesced := stillMissing - remaining.Len()

	if remaining.Len() > 0 {
		own = &batch[K]{keys: remaining, done: make(chan struct{})}
		m.push(own)
	}

	m.runMu.Unlock()

	if own != nil {
		m.bulkCalls.Inc()
		m.bulkKeys.Add(remaining.Len())
		// the batch must outlive this caller, it may serve others
		go m.run(context.WithoutCancel(ctx), own)
	}
	m.coalescedKeys.Add(coalesced)

	for _, b := range waitFor {
		if err := m.await(ctx, b); err != nil {
			return err
		}
	}
	if own != nil {
		return m.await(ctx, own)
	}
	return nil
}

// run executes one batch and publishes its outcome. Results are committed
// before done is closed, so every waiter woken by the close observes them.
func (m *Memoizer[K, V]) run(ctx context.Context, b *batch[K]) {
	keys := slices.Collect(b.keys.Items())

	values, err := m.bulk(ctx, keys)
	if err == nil && len(values) != len(keys) {
		err = fmt.Errorf("memo: bulk function returned %d values for %d keys", len(values), len(keys))
	}

	if err == nil {
		m.commitMu.Lock()
		for i, k := range keys {
			m.committed.Set(k, values[i])
		}
		m.commitMu.Unlock()
	} else {
		m.bulkErrors.Inc()
	}

	b.err = err
	close(b.done)
}

// await blocks until b settles or ctx expires and returns b's outcome.
func (m *Memoizer[K, V]) await(ctx context.Context, b *batch[K]) error {
	select {
	case <-b.done:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --------------------------------------------------------------------------
// Running List Maintenance (under m.runMu)
// --------------------------------------------------------------------------

// push appends a batch at the tail of the running list.
func (m *Memoizer[K, V]) push(b *batch[K]) {
	if m.runTail == nil {
		m.runHead, m.runTail = b, b
		return
	}
	m.runTail.next = b
	m.runTail = b
}

// prune drops settled batches from the front of the list. Settled batches
// further back are skipped over by the overlap scan's Except anyway and get
// dropped once everything before them settles.
func (m *Memoizer[K, V]) prune() {
	for m.runHead != nil && m.runHead.settled() {
		m.runHead = m.runHead.next
	}
	if m.runHead == nil {
		m.runTail = nil
	}
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

// Committed returns the number of memoized keys.
func (m *Memoizer[K, V]) Committed() int {
	return m.committed.Len()
}

// Stats is a point-in-time snapshot of the memoizer counters. Counters are
// shared between memoizers configured with the same Name.
type Stats struct {
	Hits          uint64 `json:"hits"`
	BulkCalls     uint64 `json:"bulk_calls"`
	BulkKeys      uint64 `json:"bulk_keys"`
	CoalescedKeys uint64 `json:"coalesced_keys"`
	BulkErrors    uint64 `json:"bulk_errors"`
	Committed     int    `json:"committed"`
}

// Stats returns a snapshot of the memoizer counters.
func (m *Memoizer[K, V]) Stats() Stats {
	return Stats{
		Hits:          m.hits.Get(),
		BulkCalls:     m.bulkCalls.Get(),
		BulkKeys:      m.bulkKeys.Get(),
		CoalescedKeys: m.coalescedKeys.Get(),
		BulkErrors:    m.bulkErrors.Get(),
		Committed:     m.Committed(),
	}
}
