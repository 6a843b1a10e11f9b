package memo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// square is the identity-ish bulk function used by most tests.
func square(_ context.Context, keys []int) ([]int, error) {
	out := make([]int, len(keys))
	for i, k := range keys {
		out[i] = k * k
	}
	return out, nil
}

func TestMemoizeBasics(t *testing.T) {
	m := New[int, int](square, &Options{Name: "test-basics"})

	got, err := m.Memoize(context.Background(), []int{1, 2, 3})
	if err != nil {
		t.Fatalf("Memoize: %v", err)
	}
	want := []int{1, 4, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Memoize = %v, want %v", got, want)
		}
	}
	if m.Committed() != 3 {
		t.Fatalf("Committed() = %d, want 3", m.Committed())
	}
}

func TestMemoizeEmptyKeys(t *testing.T) {
	m := New[int, int](square, &Options{Name: "test-empty"})

	got, err := m.Memoize(context.Background(), nil)
	if err != nil || got != nil {
		t.Fatalf("Memoize(nil) = %v, %v", got, err)
	}
}

// TestMemoizeDuplicateKeys checks result alignment when the input repeats
// keys: every position gets its key's value, and the bulk function still
// sees each key once.
func TestMemoizeDuplicateKeys(t *testing.T) {
	var bulkKeys atomic.Int32
	m := New[int, int](func(ctx context.Context, keys []int) ([]int, error) {
		bulkKeys.Add(int32(len(keys)))
		return square(ctx, keys)
	}, &Options{Name: "test-dup"})

	got, err := m.Memoize(context.Background(), []int{5, 3, 5, 3, 5})
	if err != nil {
		t.Fatalf("Memoize: %v", err)
	}
	want := []int{25, 9, 25, 9, 25}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Memoize = %v, want %v", got, want)
		}
	}
	if bulkKeys.Load() != 2 {
		t.Fatalf("bulk saw %d keys, want 2", bulkKeys.Load())
	}
}

// TestMemoizeIdempotent verifies that a second call fully covered by the
// committed map performs zero bulk invocations.
func TestMemoizeIdempotent(t *testing.T) {
	var calls atomic.Int32
	m := New[int, int](func(ctx context.Context, keys []int) ([]int, error) {
		calls.Add(1)
		return square(ctx, keys)
	}, &Options{Name: "test-idem"})

	if _, err := m.Memoize(context.Background(), []int{1, 2, 3, 4}); err != nil {
		t.Fatalf("Memoize: %v", err)
	}
	if _, err := m.Memoize(context.Background(), []int{4, 2, 1, 3}); err != nil {
		t.Fatalf("Memoize: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("bulk invoked %d times, want 1", got)
	}

	// a partially covered call computes only the difference
	got, err := m.Memoize(context.Background(), []int{3, 4, 5, 6})
	if err != nil {
		t.Fatalf("Memoize: %v", err)
	}
	if got[2] != 25 || got[3] != 36 {
		t.Fatalf("Memoize = %v", got)
	}
	if calls.Load() != 2 {
		t.Fatalf("bulk invoked %d times, want 2", calls.Load())
	}
}

// TestMemoizeCoalescing starts two overlapping calls while the bulk function
// is blocked and verifies that the shared keys are computed exactly once:
// the second call's batch covers only its non-overlapping remainder.
func TestMemoizeCoalescing(t *testing.T) {
	var (
		mu       sync.Mutex
		perKey   = make(map[int]int)
		release  = make(chan struct{})
		firstRun = make(chan struct{})
	)
	var once sync.Once

	m := New[int, int](func(ctx context.Context, keys []int) ([]int, error) {
		mu.Lock()
		for _, k := range keys {
			perKey[k]++
		}
		mu.Unlock()
		once.Do(func() { close(firstRun) })
		<-release
		return square(ctx, keys)
	}, &Options{Name: "test-coalesce"})

	var wg sync.WaitGroup
	wg.Add(2)

	var got1, got2 []int
	var err1, err2 error

	go func() {
		defer wg.Done()
		got1, err1 = m.Memoize(context.Background(), []int{1, 2, 3, 4})
	}()

	go func() {
		defer wg.Done()
		<-firstRun // first batch is in flight now
		got2, err2 = m.Memoize(context.Background(), []int{3, 4, 5, 6})
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if err1 != nil || err2 != nil {
		t.Fatalf("errors: %v, %v", err1, err2)
	}
	for i, k := range []int{1, 2, 3, 4} {
		if got1[i] != k*k {
			t.Fatalf("call 1 = %v", got1)
		}
	}
	for i, k := range []int{3, 4, 5, 6} {
		if got2[i] != k*k {
			t.Fatalf("call 2 = %v", got2)
		}
	}

	for k, n := range perKey {
		if n != 1 {
			t.Errorf("key %d computed %d times, want 1", k, n)
		}
	}
	if len(perKey) != 6 {
		t.Errorf("bulk saw %d distinct keys, want 6", len(perKey))
	}
}

// TestMemoizeErrorPropagation checks that a bulk failure reaches both the
// call that started the batch and a call that only joined it, and that the
// failed keys are recomputed afterwards.
func TestMemoizeErrorPropagation(t *testing.T) {
	errBoom := errors.New("boom")

	var fail atomic.Bool
	fail.Store(true)
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	m := New[int, int](func(ctx context.Context, keys []int) ([]int, error) {
		once.Do(func() { close(started) })
		<-release
		if fail.Load() {
			return nil, errBoom
		}
		return square(ctx, keys)
	}, &Options{Name: "test-err"})

	var wg sync.WaitGroup
	wg.Add(2)
	var err1, err2 error

	go func() {
		defer wg.Done()
		_, err1 = m.Memoize(context.Background(), []int{1, 2})
	}()
	go func() {
		defer wg.Done()
		<-started
		_, err2 = m.Memoize(context.Background(), []int{2, 3})
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if !errors.Is(err1, errBoom) {
		t.Fatalf("starter error = %v, want errBoom", err1)
	}
	if !errors.Is(err2, errBoom) {
		t.Fatalf("joiner error = %v, want errBoom", err2)
	}
	if m.Committed() != 0 {
		t.Fatalf("Committed() = %d after failure, want 0", m.Committed())
	}

	// failed keys stay uncommitted and are recomputed on the next call
	fail.Store(false)
	got, err := m.Memoize(context.Background(), []int{1, 2, 3})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got[0] != 1 || got[1] != 4 || got[2] != 9 {
		t.Fatalf("retry = %v", got)
	}
}

// TestMemoizeWaiterContextCancel verifies that an expired context only stops
// the waiting: the batch runs to completion and its results are committed.
func TestMemoizeWaiterContextCancel(t *testing.T) {
	release := make(chan struct{})
	m := New[int, int](func(ctx context.Context, keys []int) ([]int, error) {
		<-release
		return square(ctx, keys)
	}, &Options{Name: "test-cancel"})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := m.Memoize(ctx, []int{7})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	close(release)
	// the detached batch still commits
	deadline := time.Now().Add(time.Second)
	for m.Committed() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("batch result was never committed")
		}
		time.Sleep(time.Millisecond)
	}

	got, err := m.Memoize(context.Background(), []int{7})
	if err != nil || got[0] != 49 {
		t.Fatalf("Memoize = %v, %v", got, err)
	}
}

func TestMemoizeLengthMismatch(t *testing.T) {
	m := New[int, int](func(_ context.Context, keys []int) ([]int, error) {
		return make([]int, len(keys)+1), nil
	}, &Options{Name: "test-mismatch"})

	if _, err := m.Memoize(context.Background(), []int{1}); err == nil {
		t.Fatal("misaligned bulk result must fail")
	}
}

func TestMemoizeStats(t *testing.T) {
	m := New[int, int](square, &Options{Name: "test-stats"})

	_, _ = m.Memoize(context.Background(), []int{1, 2}) // one batch, two keys
	_, _ = m.Memoize(context.Background(), []int{1, 2}) // two hits

	s := m.Stats()
	if s.BulkCalls != 1 || s.BulkKeys != 2 {
		t.Fatalf("stats = %+v", s)
	}
	if s.Hits != 2 {
		t.Fatalf("stats = %+v", s)
	}
	if s.Committed != 2 {
		t.Fatalf("stats = %+v", s)
	}
}

// TestMemoizeConcurrentStress issues overlapping random key sets from many
// goroutines and asserts at-most-once computation per key plus value
// integrity at every position.
func TestMemoizeConcurrentStress(t *testing.T) {
	const (
		workers  = 8
		opsEach  = 200
		keyRange = 128
	)

	var (
		mu     sync.Mutex
		perKey = make(map[int]int)
	)
	m := New[int, int](func(ctx context.Context, keys []int) ([]int, error) {
		mu.Lock()
		for _, k := range keys {
			perKey[k]++
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		return square(ctx, keys)
	}, &Options{Name: "test-stress"})

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < opsEach; i++ {
				n := 1 + rng.Intn(8)
				keys := make([]int, n)
				for j := range keys {
					keys[j] = rng.Intn(keyRange)
				}
				got, err := m.Memoize(context.Background(), keys)
				if err != nil {
					t.Errorf("Memoize(%v): %v", keys, err)
					return
				}
				for j, k := range keys {
					if got[j] != k*k {
						t.Errorf("Memoize(%v)[%d] = %d, want %d", keys, j, got[j], k*k)
						return
					}
				}
			}
		}(int64(w))
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for k, n := range perKey {
		if n != 1 {
			t.Errorf("key %d computed %d times, want 1", k, n)
		}
	}
}

func BenchmarkMemoizeHit(b *testing.B) {
	m := New[int, int](square, &Options{Name: "bench-hit"})
	keys := []int{1, 2, 3, 4, 5, 6, 7, 8}
	if _, err := m.Memoize(context.Background(), keys); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Memoize(context.Background(), keys); err != nil {
			b.Fatal(err)
		}
	}
}

func ExampleMemoizer_Memoize() {
	m := New[string, string](func(_ context.Context, keys []string) ([]string, error) {
		out := make([]string, len(keys))
		for i, k := range keys {
			out[i] = "loaded:" + k
		}
		return out, nil
	}, nil)

	values, _ := m.Memoize(context.Background(), []string{"a", "b", "a"})
	fmt.Println(values)
	// Output: [loaded:a loaded:b loaded:a]
}
