package hashtable

import (
	"iter"
	"math/rand"
	"slices"
	"testing"
)

// refSet is the builtin-map reference the algebra is checked against.
type refSet map[int]struct{}

func (a refSet) subsetOf(b refSet) bool {
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func (a refSet) overlaps(b refSet) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

func randomSet(rng *rand.Rand, maxLen, keyRange int) (*Set[int], refSet) {
	n := rng.Intn(maxLen + 1)
	s := NewSet[int]()
	ref := make(refSet)
	for i := 0; i < n; i++ {
		k := rng.Intn(keyRange)
		s.Add(k)
		ref[k] = struct{}{}
	}
	return s, ref
}

// TestSetAlgebra compares all relations against the reference for random
// set pairs, including pairs drawn from overlapping and disjoint key ranges.
func TestSetAlgebra(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	for round := 0; round < 500; round++ {
		// alternate between heavily overlapping and mostly disjoint ranges
		keyRange := 20
		if round%2 == 1 {
			keyRange = 1000
		}

		a, refA := randomSet(rng, 30, keyRange)
		b, refB := randomSet(rng, 30, keyRange)

		type relation struct {
			name string
			got  bool
			want bool
		}
		checks := []relation{
			{"IsSubsetOf", a.IsSubsetOf(b), refA.subsetOf(refB)},
			{"IsSupersetOf", a.IsSupersetOf(b), refB.subsetOf(refA)},
			{"IsProperSubsetOf", a.IsProperSubsetOf(b), refA.subsetOf(refB) && len(refA) < len(refB)},
			{"IsProperSupersetOf", a.IsProperSupersetOf(b), refB.subsetOf(refA) && len(refB) < len(refA)},
			{"Overlaps", a.Overlaps(b), refA.overlaps(refB)},
			{"SetEquals", a.SetEquals(b), refA.subsetOf(refB) && len(refA) == len(refB)},
		}
		for _, c := range checks {
			if c.got != c.want {
				t.Fatalf("round %d: %s = %v, want %v (a=%v b=%v)", round, c.name, c.got, c.want, refA, refB)
			}
		}

		except := a.Except(b)
		for item := range except.Items() {
			if _, inA := refA[item]; !inA {
				t.Fatalf("Except produced %d which is not in a", item)
			}
			if _, inB := refB[item]; inB {
				t.Fatalf("Except kept %d which is in b", item)
			}
		}
		wantLen := 0
		for k := range refA {
			if _, ok := refB[k]; !ok {
				wantLen++
			}
		}
		if except.Len() != wantLen {
			t.Fatalf("Except len = %d, want %d", except.Len(), wantLen)
		}
	}
}

// TestSetAlgebraSeq checks the sequence-based variants, which must tolerate
// unknown length and repeated items.
func TestSetAlgebraSeq(t *testing.T) {
	// repeated returns a sequence yielding every item of items twice.
	repeated := func(items []int) iter.Seq[int] {
		return func(yield func(int) bool) {
			for _, it := range items {
				if !yield(it) || !yield(it) {
					return
				}
			}
		}
	}

	rng := rand.New(rand.NewSource(3))

	for round := 0; round < 500; round++ {
		a, refA := randomSet(rng, 30, 25)
		other := make([]int, rng.Intn(31))
		refB := make(refSet)
		for i := range other {
			other[i] = rng.Intn(25)
			refB[other[i]] = struct{}{}
		}
		seq := repeated(other)

		if got, want := a.IsSubsetOfSeq(seq), refA.subsetOf(refB); got != want {
			t.Fatalf("IsSubsetOfSeq = %v, want %v (a=%v other=%v)", got, want, refA, other)
		}
		if got, want := a.IsSupersetOfSeq(seq), refB.subsetOf(refA); got != want {
			t.Fatalf("IsSupersetOfSeq = %v, want %v (a=%v other=%v)", got, want, refA, other)
		}
		if got, want := a.IsProperSubsetOfSeq(seq), refA.subsetOf(refB) && len(refA) < len(refB); got != want {
			t.Fatalf("IsProperSubsetOfSeq = %v, want %v (a=%v other=%v)", got, want, refA, other)
		}
		if got, want := a.IsProperSupersetOfSeq(seq), refB.subsetOf(refA) && len(refB) < len(refA); got != want {
			t.Fatalf("IsProperSupersetOfSeq = %v, want %v (a=%v other=%v)", got, want, refA, other)
		}
		if got, want := a.OverlapsSeq(seq), refA.overlaps(refB); got != want {
			t.Fatalf("OverlapsSeq = %v, want %v (a=%v other=%v)", got, want, refA, other)
		}
		if got, want := a.SetEqualsSeq(seq), refA.subsetOf(refB) && refB.subsetOf(refA); got != want {
			t.Fatalf("SetEqualsSeq = %v, want %v (a=%v other=%v)", got, want, refA, other)
		}

		except := a.ExceptSeq(seq)
		for item := range except.Items() {
			if _, ok := refB[item]; ok {
				t.Fatalf("ExceptSeq kept %d which occurs in other", item)
			}
		}
	}
}

// TestSetAlgebraEmpty pins down the edge cases around the empty set: empty
// is a subset of everything and never a proper superset of anything.
func TestSetAlgebraEmpty(t *testing.T) {
	empty := NewSet[int]()
	full := NewSetOf(1, 2, 3)

	if !empty.IsSubsetOf(full) || !empty.IsSubsetOf(empty) {
		t.Error("empty set must be a subset of everything")
	}
	if !empty.IsProperSubsetOf(full) {
		t.Error("empty set must be a proper subset of a non-empty set")
	}
	if empty.IsProperSubsetOf(empty) {
		t.Error("empty set is not a proper subset of itself")
	}
	if empty.IsProperSupersetOf(full) || empty.IsProperSupersetOf(empty) {
		t.Error("empty set is never a proper superset of anything")
	}
	if !full.IsProperSupersetOf(empty) {
		t.Error("non-empty set must be a proper superset of the empty set")
	}
	if empty.Overlaps(full) || empty.Overlaps(empty) {
		t.Error("empty set overlaps nothing")
	}
	if !empty.SetEquals(NewSet[int]()) {
		t.Error("two empty sets must be equal")
	}
	if empty.SetEquals(full) || full.SetEquals(empty) {
		t.Error("empty and non-empty sets must not be equal")
	}

	emptySeq := func(yield func(int) bool) {}
	if !empty.IsSubsetOfSeq(emptySeq) || !empty.IsSupersetOfSeq(emptySeq) {
		t.Error("empty set vs empty seq: subset and superset must both hold")
	}
	if empty.IsProperSupersetOfSeq(emptySeq) {
		t.Error("empty set is not a proper superset of the empty seq")
	}
	if !full.IsProperSupersetOfSeq(emptySeq) {
		t.Error("non-empty set must be a proper superset of the empty seq")
	}
}

func TestSetIteration(t *testing.T) {
	s := NewSetOf("a", "b", "c", "b", "a")

	var got []string
	for i, item := range s.All() {
		if s.At(i) != item {
			t.Fatalf("All yielded (%d, %q) but At(%d) = %q", i, item, i, s.At(i))
		}
		got = append(got, item)
	}
	if !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("iteration order = %v", got)
	}
}
