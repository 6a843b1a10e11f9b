package hashtable

import "iter"

// --------------------------------------------------------------------------
// Set Type
// --------------------------------------------------------------------------

// Set is an append-only hash set that doubles as an insertion-ordered,
// index-addressable sequence. Items are never moved or removed, so indices
// returned by Add and IndexOf stay valid for the lifetime of the set.
//
// Thread-safety: any number of concurrent readers plus at most one writer
// (see package documentation).
type Set[K comparable] struct {
	t *table[K, struct{}]
}

// NewSet creates an empty set with the default initial capacity.
func NewSet[K comparable]() *Set[K] {
	return NewSetWithCapacity[K](minCapacity)
}

// NewSetWithCapacity creates an empty set pre-sized for at least capacity
// items.
func NewSetWithCapacity[K comparable](capacity int) *Set[K] {
	return &Set[K]{t: newTable[K, struct{}](capacity)}
}

// NewSetOf creates a set containing the given items (duplicates collapse).
func NewSetOf[K comparable](items ...K) *Set[K] {
	s := NewSetWithCapacity[K](len(items))
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// --------------------------------------------------------------------------
// Core Operations
// --------------------------------------------------------------------------

// Add inserts item and returns its index. If the item is already present,
// the index of the earlier insertion is returned instead.
//
// Thread-safety: writer-only.
func (s *Set[K]) Add(item K) int {
	idx, _ := s.t.add(item, struct{}{})
	return idx
}

// Contains reports whether item is in the set.
//
// Thread-safety: lock-free, safe concurrently with the writer.
func (s *Set[K]) Contains(item K) bool {
	return s.t.lookup(item) >= 0
}

// IndexOf returns the insertion index of item, or -1 if absent.
//
// Thread-safety: lock-free, safe concurrently with the writer.
func (s *Set[K]) IndexOf(item K) int {
	return s.t.lookup(item)
}

// At returns the item at the given insertion index.
// It panics if the index is out of range.
func (s *Set[K]) At(i int) K {
	return s.t.at(i).key
}

// Len returns the number of items in the set.
func (s *Set[K]) Len() int {
	return s.t.length()
}

// Cap returns the current capacity of the set.
func (s *Set[K]) Cap() int {
	return s.t.capacity()
}

// EnsureCapacity grows the set so at least capacity items fit without
// further rehashing. No-op if the set is already large enough.
//
// Thread-safety: writer-only.
func (s *Set[K]) EnsureCapacity(capacity int) {
	s.t.ensureCapacity(capacity)
}

// All iterates over the set in insertion order, yielding index and item.
func (s *Set[K]) All() iter.Seq2[int, K] {
	return func(yield func(int, K) bool) {
		for i, n := 0, s.Len(); i < n; i++ {
			if !yield(i, s.At(i)) {
				return
			}
		}
	}
}

// Items iterates over the items of the set in insertion order.
func (s *Set[K]) Items() iter.Seq[K] {
	return func(yield func(K) bool) {
		for i, n := 0, s.Len(); i < n; i++ {
			if !yield(s.At(i)) {
				return
			}
		}
	}
}

// --------------------------------------------------------------------------
// Set Algebra (set vs. set)
//
// These variants exploit that both sides have a known size: most relations
// are decided by a count comparison before any membership test runs.
// --------------------------------------------------------------------------

// IsSubsetOf reports whether every item of s is in other.
func (s *Set[K]) IsSubsetOf(other *Set[K]) bool {
	if s.Len() > other.Len() {
		return false
	}
	for item := range s.Items() {
		if !other.Contains(item) {
			return false
		}
	}
	return true
}

// IsProperSubsetOf reports whether s is a subset of other and other has at
// least one item that s lacks.
func (s *Set[K]) IsProperSubsetOf(other *Set[K]) bool {
	return s.Len() < other.Len() && s.IsSubsetOf(other)
}

// IsSupersetOf reports whether every item of other is in s.
func (s *Set[K]) IsSupersetOf(other *Set[K]) bool {
	return other.IsSubsetOf(s)
}

// IsProperSupersetOf reports whether s is a superset of other and has at
// least one item that other lacks.
func (s *Set[K]) IsProperSupersetOf(other *Set[K]) bool {
	return other.IsProperSubsetOf(s)
}

// Overlaps reports whether s and other share at least one item.
func (s *Set[K]) Overlaps(other *Set[K]) bool {
	// iterate the smaller side, probe the larger
	small, large := s, other
	if small.Len() > large.Len() {
		small, large = large, small
	}
	for item := range small.Items() {
		if large.Contains(item) {
			return true
		}
	}
	return false
}

// SetEquals reports whether s and other contain exactly the same items.
func (s *Set[K]) SetEquals(other *Set[K]) bool {
	return s.Len() == other.Len() && s.IsSubsetOf(other)
}

// Except returns a new set with the items of s that are not in other.
func (s *Set[K]) Except(other *Set[K]) *Set[K] {
	out := NewSetWithCapacity[K](s.Len())
	for item := range s.Items() {
		if !other.Contains(item) {
			out.Add(item)
		}
	}
	return out
}

// --------------------------------------------------------------------------
// Set Algebra (set vs. sequence)
//
// The sequence side has unknown size and may repeat items, so these variants
// track which of s's indices have been seen in a visited bitmap instead of
// comparing counts.
// --------------------------------------------------------------------------

// visitSeq drains other, marking every item that is also in s in a bitmap.
// It returns the number of distinct items of s found in other and whether
// other contained at least one item that is not in s.
func (s *Set[K]) visitSeq(other iter.Seq[K]) (matched int, extra bool) {
	n := s.Len()
	seen := make([]uint64, (n+63)/64)
	for item := range other {
		i := s.IndexOf(item)
		if i < 0 || i >= n {
			extra = true
			continue
		}
		if w, bit := i/64, uint64(1)<<(i%64); seen[w]&bit == 0 {
			seen[w] |= bit
			matched++
		}
	}
	return matched, extra
}

// IsSubsetOfSeq reports whether every item of s occurs in other.
func (s *Set[K]) IsSubsetOfSeq(other iter.Seq[K]) bool {
	matched, _ := s.visitSeq(other)
	return matched == s.Len()
}

// IsProperSubsetOfSeq reports whether s is a subset of other and other
// contains at least one item that is not in s.
func (s *Set[K]) IsProperSubsetOfSeq(other iter.Seq[K]) bool {
	matched, extra := s.visitSeq(other)
	return matched == s.Len() && extra
}

// IsSupersetOfSeq reports whether every item of other is in s.
// The empty sequence is a subset of everything, including the empty set.
func (s *Set[K]) IsSupersetOfSeq(other iter.Seq[K]) bool {
	for item := range other {
		if !s.Contains(item) {
			return false
		}
	}
	return true
}

// IsProperSupersetOfSeq reports whether s is a superset of other and has at
// least one item that does not occur in other.
func (s *Set[K]) IsProperSupersetOfSeq(other iter.Seq[K]) bool {
	matched, extra := s.visitSeq(other)
	return !extra && matched < s.Len()
}

// OverlapsSeq reports whether any item of other is in s.
func (s *Set[K]) OverlapsSeq(other iter.Seq[K]) bool {
	for item := range other {
		if s.Contains(item) {
			return true
		}
	}
	return false
}

// SetEqualsSeq reports whether other contains exactly the items of s
// (repetitions in other are allowed).
func (s *Set[K]) SetEqualsSeq(other iter.Seq[K]) bool {
	matched, extra := s.visitSeq(other)
	return matched == s.Len() && !extra
}

// ExceptSeq returns a new set with the items of s that do not occur in
// other.
func (s *Set[K]) ExceptSeq(other iter.Seq[K]) *Set[K] {
	n := s.Len()
	seen := make([]uint64, (n+63)/64)
	for item := range other {
		if i := s.IndexOf(item); i >= 0 && i < n {
			seen[i/64] |= uint64(1) << (i % 64)
		}
	}
	out := NewSetWithCapacity[K](n)
	for i := 0; i < n; i++ {
		if seen[i/64]&(uint64(1)<<(i%64)) == 0 {
			out.Add(s.At(i))
		}
	}
	return out
}
