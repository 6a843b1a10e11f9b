package hashtable

import (
	"errors"
	"fmt"
	"iter"
)

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrDuplicateKey is returned by Map.Add when the key is already present.
	ErrDuplicateKey = errors.New("hashtable: key already exists")

	// ErrKeyNotFound is the panic cause of Map.MustGet for an absent key.
	ErrKeyNotFound = errors.New("hashtable: key not found")
)

// --------------------------------------------------------------------------
// Map Type
// --------------------------------------------------------------------------

// Map is an append-only hash map that doubles as an insertion-ordered,
// index-addressable sequence of key/value pairs. Entries are never moved or
// removed, so indices returned by Add, Set and IndexOf stay valid for the
// lifetime of the map.
//
// Thread-safety: any number of concurrent readers plus at most one writer
// (see package documentation).
type Map[K comparable, V any] struct {
	t *table[K, V]
}

// NewMap creates an empty map with the default initial capacity.
func NewMap[K comparable, V any]() *Map[K, V] {
	return NewMapWithCapacity[K, V](minCapacity)
}

// NewMapWithCapacity creates an empty map pre-sized for at least capacity
// entries.
func NewMapWithCapacity[K comparable, V any](capacity int) *Map[K, V] {
	return &Map[K, V]{t: newTable[K, V](capacity)}
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Add inserts a new key/value pair and returns its index.
// Adding a key that is already present is a precondition violation and
// returns ErrDuplicateKey without touching the stored value.
//
// Thread-safety: writer-only.
func (m *Map[K, V]) Add(key K, value V) (int, error) {
	idx, loaded := m.t.add(key, value)
	if loaded {
		return idx, fmt.Errorf("%w: %v", ErrDuplicateKey, key)
	}
	return idx, nil
}

// Set inserts the key/value pair or overwrites the value of an existing key
// in place, returning the entry index either way.
//
// Thread-safety: writer-only. Overwriting an existing key is NOT
// synchronized with concurrent readers of that key (see package
// documentation); inserts are safe concurrently with readers.
func (m *Map[K, V]) Set(key K, value V) int {
	idx, _ := m.t.put(key, value)
	return idx
}

// EnsureCapacity grows the map so at least capacity entries fit without
// further rehashing. No-op if the map is already large enough.
//
// Thread-safety: writer-only.
func (m *Map[K, V]) EnsureCapacity(capacity int) {
	m.t.ensureCapacity(capacity)
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns the value stored for key. The boolean reports whether the key
// was found.
//
// Thread-safety: lock-free, safe concurrently with the writer.
func (m *Map[K, V]) Get(key K) (V, bool) {
	if i := m.t.lookup(key); i >= 0 {
		return m.t.at(i).value, true
	}
	var zero V
	return zero, false
}

// MustGet returns the value stored for key and panics (with a cause
// wrapping ErrKeyNotFound) if the key is absent. Use Get when absence is an
// expected outcome rather than a programming error.
func (m *Map[K, V]) MustGet(key K) V {
	v, ok := m.Get(key)
	if !ok {
		panic(fmt.Errorf("%w: %v", ErrKeyNotFound, key))
	}
	return v
}

// Has reports whether key is present.
//
// Thread-safety: lock-free, safe concurrently with the writer.
func (m *Map[K, V]) Has(key K) bool {
	return m.t.lookup(key) >= 0
}

// IndexOf returns the insertion index of key, or -1 if absent.
func (m *Map[K, V]) IndexOf(key K) int {
	return m.t.lookup(key)
}

// Key returns the key at the given insertion index.
// It panics if the index is out of range.
func (m *Map[K, V]) Key(i int) K {
	return m.t.at(i).key
}

// Value returns the value at the given insertion index.
// It panics if the index is out of range.
func (m *Map[K, V]) Value(i int) V {
	return m.t.at(i).value
}

// At returns the key/value pair at the given insertion index.
// It panics if the index is out of range.
func (m *Map[K, V]) At(i int) (K, V) {
	e := m.t.at(i)
	return e.key, e.value
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.t.length()
}

// Cap returns the current capacity of the map.
func (m *Map[K, V]) Cap() int {
	return m.t.capacity()
}

// All iterates over the map in insertion order.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i, n := 0, m.Len(); i < n; i++ {
			if !yield(m.At(i)) {
				return
			}
		}
	}
}

// Keys iterates over the keys of the map in insertion order.
func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for i, n := 0, m.Len(); i < n; i++ {
			if !yield(m.Key(i)) {
				return
			}
		}
	}
}
