package hashtable

import (
	"fmt"
	"hash/maphash"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// fibMul is the odd, golden-ratio derived constant used for Fibonacci
	// hashing. Multiplying the natural hash by it spreads low-entropy keys
	// (e.g. small sequential integers) evenly across the power-of-two
	// bucket range before masking.
	fibMul uint64 = 0x9E3779B97F4A7C15

	// minCapacity is the smallest entry array ever allocated
	minCapacity = 8
)

// --------------------------------------------------------------------------
// Storage Layout
// --------------------------------------------------------------------------

// entry is one element of the backing array. The array serves double duty:
// the entry at append index i stores the i-th inserted key/value pair, and
// the bucket field of the entry at index hash&mask stores the 1-based index
// of the newest entry hashed to that slot (0 = empty bucket). next links the
// entries of one bucket into a singly linked chain, newest first, terminated
// by 0.
//
// bucket is the only field ever rewritten after an entry is linked (it is
// the head pointer of an unrelated chain), which is why it is accessed with
// atomic loads and stores while all other fields are published via the
// store-release on bucket and read plainly afterwards.
type entry[K comparable, V any] struct {
	bucket int32
	next   int32
	key    K
	value  V
}

// snapshot is one backing array together with its slot mask. A snapshot is
// only replaced, never resized in place: growth allocates a larger array,
// re-chains all committed entries and publishes the result with a single
// atomic pointer store. Readers that captured the previous snapshot keep
// operating on it and stay correct for every entry it contains, because
// committed entries are immutable.
type snapshot[K comparable, V any] struct {
	entries []entry[K, V]
	mask    uint64
}

// table implements the shared core of Set and Map.
//
// Thread-safety: safe for any number of concurrent readers together with at
// most one appending writer. Multiple writers require external locking.
type table[K comparable, V any] struct {
	arr   atomic.Pointer[snapshot[K, V]]
	count atomic.Int32
	seed  maphash.Seed
}

// newTable allocates a table with room for at least capacity entries.
func newTable[K comparable, V any](capacity int) *table[K, V] {
	if capacity < minCapacity {
		capacity = minCapacity
	}
	t := &table[K, V]{seed: maphash.MakeSeed()}
	c := nextPowOf2(capacity)
	t.arr.Store(&snapshot[K, V]{
		entries: make([]entry[K, V], c),
		mask:    uint64(c - 1),
	})
	return t
}

// hash computes the Fibonacci-spread hash of a key. The multiplication is
// deliberate even though maphash already mixes well: it keeps the table
// well-behaved for caller-visible hashes with poor low bits and costs one
// multiply.
func (t *table[K, V]) hash(key K) uint64 {
	return maphash.Comparable(t.seed, key) * fibMul
}

// --------------------------------------------------------------------------
// Read Path (lock-free)
// --------------------------------------------------------------------------

// lookup returns the index of key, or -1 if absent.
//
// Thread-safety: safe concurrently with one appending writer. The bucket
// head is loaded with acquire semantics; every field reachable from it was
// written before the head was published.
func (t *table[K, V]) lookup(key K) int {
	snap := t.arr.Load()
	h := t.hash(key)
	idx := atomic.LoadInt32(&snap.entries[h&snap.mask].bucket)
	for idx != 0 {
		e := &snap.entries[idx-1]
		if e.key == key {
			return int(idx - 1)
		}
		idx = e.next
	}
	return -1
}

// length returns the number of committed entries.
func (t *table[K, V]) length() int {
	return int(t.count.Load())
}

// capacity returns the size of the current backing array.
func (t *table[K, V]) capacity() int {
	return len(t.arr.Load().entries)
}

// at returns the entry at the given insertion index.
//
// The count is loaded before the array reference: once the acquire-load of
// count observes i as committed, any array published at or after that commit
// contains the fully written entry.
func (t *table[K, V]) at(i int) *entry[K, V] {
	if n := t.length(); i < 0 || i >= n {
		panic(fmt.Sprintf("hashtable: index %d out of range [0, %d)", i, n))
	}
	return &t.arr.Load().entries[i]
}

// --------------------------------------------------------------------------
// Write Path (single writer)
// --------------------------------------------------------------------------

// add inserts the key/value pair if the key is absent and returns its index.
// loaded reports whether the key was already present; in that case the
// stored value is left untouched.
//
// Thread-safety: writer-only. Safe concurrently with readers.
func (t *table[K, V]) add(key K, value V) (idx int, loaded bool) {
	if i := t.lookup(key); i >= 0 {
		return i, true
	}
	return t.append(key, value), false
}

// put behaves like add but overwrites the value in place when the key is
// already present. The overwrite is NOT synchronized with concurrent readers
// of the same key (see package documentation).
//
// Thread-safety: writer-only. Safe concurrently with readers, except for the
// documented overwrite race.
func (t *table[K, V]) put(key K, value V) (idx int, loaded bool) {
	if i := t.lookup(key); i >= 0 {
		t.arr.Load().entries[i].value = value
		return i, true
	}
	return t.append(key, value), false
}

// append commits a new entry. The key must not be present.
//
// Ordering: the entry fields (key, value, next) are written first, then the
// bucket head is store-released, then the count. A reader can therefore only
// reach the entry through a chain link or an index bound that was published
// after the entry was complete.
func (t *table[K, V]) append(key K, value V) int {
	n := t.length()
	snap := t.arr.Load()
	if n == len(snap.entries) {
		snap = t.grow(2 * len(snap.entries))
	}

	e := &snap.entries[n]
	e.key = key
	e.value = value

	slot := &snap.entries[t.hash(key)&snap.mask]
	e.next = atomic.LoadInt32(&slot.bucket)
	atomic.StoreInt32(&slot.bucket, int32(n+1))

	t.count.Store(int32(n + 1))
	return n
}

// ensureCapacity grows the backing array so that at least capacity entries
// fit without further reallocation. No-op if the table is already large
// enough.
//
// Thread-safety: writer-only. Safe concurrently with readers.
func (t *table[K, V]) ensureCapacity(capacity int) {
	if capacity > t.capacity() {
		t.grow(nextPowOf2(capacity))
	}
}

// grow rehashes all committed entries into a fresh array of newCap slots
// (newCap must be a power of two) and publishes it. The previous snapshot is
// left intact for readers that still hold it.
func (t *table[K, V]) grow(newCap int) *snapshot[K, V] {
	old := t.arr.Load()
	n := t.length()

	ns := &snapshot[K, V]{
		entries: make([]entry[K, V], newCap),
		mask:    uint64(newCap - 1),
	}
	for i := 0; i < n; i++ {
		src := &old.entries[i]
		dst := &ns.entries[i]
		dst.key = src.key
		dst.value = src.value

		slot := &ns.entries[t.hash(dst.key)&ns.mask]
		dst.next = slot.bucket
		slot.bucket = int32(i + 1)
	}

	t.arr.Store(ns)
	return ns
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// nextPowOf2 rounds n up to the next power of two (minimum 1).
func nextPowOf2(n int) int {
	c := 1
	for c < n {
		c <<= 1
	}
	return c
}
