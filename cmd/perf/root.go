// Package perf implements the built-in benchmark suite. It measures the
// hash table, the sieve cache and the batch memoizer in-process with
// testing.Benchmark and reports latency distributions per operation.
package perf

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ValentinKolb/sift/cmd/util"
	"github.com/ValentinKolb/sift/lib/hashtable"
	"github.com/ValentinKolb/sift/lib/memo"
	"github.com/ValentinKolb/sift/lib/sieve"
)

var (
	log = logger.GetLogger("perf")

	// PerfCmd represents the perf command group
	PerfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Benchmark the sift data structures",
		Long:    "Runs an in-process benchmark suite over the hash table, the sieve cache and the batch memoizer and prints per-operation latency distributions.",
		RunE:    run,
		PreRunE: processPerfConfig,
	}

	perfNumThreads = 10
	perfKeySpread  = 10_000
	perfCapacity   = 1024
	perfBatchSize  = 16
	perfSkip       = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. table-set,cache-hit)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the parallel benchmarks"))
	key = "keys"
	PerfCmd.Flags().Int(key, 10_000, util.WrapString("How many different keys to use for the tests"))
	key = "capacity"
	PerfCmd.Flags().Int(key, 1024, util.WrapString("Capacity of the sieve cache under test"))
	key = "batch-size"
	PerfCmd.Flags().Int(key, 16, util.WrapString("Keys per call for the memoizer benchmarks"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = viper.GetInt("threads")
	perfKeySpread = viper.GetInt("keys")
	perfCapacity = viper.GetInt("capacity")
	perfBatchSize = viper.GetInt("batch-size")
	if s := viper.GetString("skip"); s != "" {
		perfSkip = strings.Split(s, ",")
	}

	return nil
}

// result pairs the wall-clock numbers of one benchmark with its latency
// distribution.
type result struct {
	bench testing.BenchmarkResult
	timer gometrics.Timer
}

func run(_ *cobra.Command, _ []string) error {
	log.Infof("benchmark configuration: threads=%d keys=%d capacity=%d batch-size=%d",
		perfNumThreads, perfKeySpread, perfCapacity, perfBatchSize)

	results := make(map[string]result)
	record := func(name string, r result) {
		results[name] = r
		printResult(name, r)
	}

	record("table-set", benchTableSet())
	record("table-get", benchTableGet())
	record("set-contains", benchSetContains())
	record("cache-hit", benchCacheHit())
	record("cache-churn", benchCacheChurn())
	record("memo-hit", benchMemoHit())
	record("memo-bulk", benchMemoBulk())

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		log.Infof("exporting results to CSV: %s", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

// benchTableSet appends distinct keys to a fresh map.
func benchTableSet() result {
	timer := gometrics.NewTimer()
	bench := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("table-set") {
			return
		}
		m := hashtable.NewMapWithCapacity[int, int](b.N)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			timer.Time(func() { m.Set(i, i) })
		}
	})
	return result{bench, timer}
}

// benchTableGet reads a pre-filled map from many goroutines; the readers
// run against the table's lock-free path.
func benchTableGet() result {
	timer := gometrics.NewTimer()
	bench := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("table-get") {
			return
		}
		m := hashtable.NewMapWithCapacity[int, int](perfKeySpread)
		for i := 0; i < perfKeySpread; i++ {
			m.Set(i, i*10)
		}
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				if _, ok := m.Get(counter % perfKeySpread); !ok {
					log.Errorf("(table-get) - missing key %d", counter%perfKeySpread)
				}
				timer.UpdateSince(start)
				counter++
			}
		})
	})
	return result{bench, timer}
}

// benchSetContains runs membership checks against a pre-filled set, half
// of the probes hitting and half missing.
func benchSetContains() result {
	timer := gometrics.NewTimer()
	bench := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("set-contains") {
			return
		}
		s := hashtable.NewSetWithCapacity[int](perfKeySpread)
		for i := 0; i < perfKeySpread; i++ {
			s.Add(i)
		}
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				s.Contains(counter % (2 * perfKeySpread))
				timer.UpdateSince(start)
				counter++
			}
		})
	})
	return result{bench, timer}
}

// benchCacheHit measures the cache's lock-free hit path.
func benchCacheHit() result {
	timer := gometrics.NewTimer()
	bench := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("cache-hit") {
			return
		}
		c := sieve.New[int, int](&sieve.Options{Capacity: perfCapacity, Name: "perf-hit"})
		for i := 0; i < perfCapacity; i++ {
			c.Set(i, i)
		}
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				if _, ok := c.Get(counter % perfCapacity); !ok {
					log.Errorf("(cache-hit) - missing key %d", counter%perfCapacity)
				}
				timer.UpdateSince(start)
				counter++
			}
		})
	})
	return result{bench, timer}
}

// benchCacheChurn loads a key range well above the capacity through
// GetOrLoad, so every miss pays for an eviction plus an insert.
func benchCacheChurn() result {
	timer := gometrics.NewTimer()
	factory := func(_ context.Context, k int) (int, error) { return k * 10, nil }
	bench := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("cache-churn") {
			return
		}
		c := sieve.New[int, int](&sieve.Options{Capacity: perfCapacity, Name: "perf-churn"})
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				if _, err := c.GetOrLoad(context.Background(), counter%perfKeySpread, factory); err != nil {
					log.Errorf("(cache-churn) - load failed: %v", err)
				}
				timer.UpdateSince(start)
				counter++
			}
		})
		b.StopTimer()
		s := c.Stats()
		log.Infof("(cache-churn) - hits=%d misses=%d loads=%d evictions=%d", s.Hits, s.Misses, s.Loads, s.Evictions)
	})
	return result{bench, timer}
}

// benchMemoHit re-memoizes batches that are already fully committed.
func benchMemoHit() result {
	timer := gometrics.NewTimer()
	bench := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("memo-hit") {
			return
		}
		m := memo.New[int, int](bulkSquare, &memo.Options{Name: "perf-hit"})
		keys := makeBatch(0)
		if _, err := m.Memoize(context.Background(), keys); err != nil {
			log.Errorf("(memo-hit) - warmup failed: %v", err)
			return
		}
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				start := time.Now()
				if _, err := m.Memoize(context.Background(), keys); err != nil {
					log.Errorf("(memo-hit) - memoize failed: %v", err)
				}
				timer.UpdateSince(start)
			}
		})
	})
	return result{bench, timer}
}

// benchMemoBulk memoizes disjoint cold batches, so every call pays for one
// bulk invocation plus the commit.
func benchMemoBulk() result {
	timer := gometrics.NewTimer()
	bench := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("memo-bulk") {
			return
		}
		m := memo.New[int, int](bulkSquare, &memo.Options{Name: "perf-bulk"})
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			keys := makeBatch(i)
			start := time.Now()
			if _, err := m.Memoize(context.Background(), keys); err != nil {
				log.Errorf("(memo-bulk) - memoize failed: %v", err)
			}
			timer.UpdateSince(start)
		}
	})
	return result{bench, timer}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func bulkSquare(_ context.Context, keys []int) ([]int, error) {
	out := make([]int, len(keys))
	for i, k := range keys {
		out[i] = k * k
	}
	return out, nil
}

// makeBatch returns the i-th disjoint batch of perfBatchSize keys.
func makeBatch(i int) []int {
	keys := make([]int, perfBatchSize)
	for j := range keys {
		keys[j] = i*perfBatchSize + j
	}
	return keys
}

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, r result) {
	if r.bench.NsPerOp() == 0 {
		fmt.Printf("%-16sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(r.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	snap := r.timer.Snapshot()

	fmt.Printf("%-16s%.0fns/op\t%.0f ops/sec\tp50=%s p95=%s p99=%s\n",
		test, nsPerOp, opsPerSec,
		time.Duration(snap.Percentile(0.50)),
		time.Duration(snap.Percentile(0.95)),
		time.Duration(snap.Percentile(0.99)))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]result) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "OpsPerSec", "P50Ns", "P95Ns", "P99Ns", "Skipped",
		"Threads", "Keys", "Capacity", "BatchSize",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, r := range results {
		var nsPerOp, opsPerSec float64
		var skipped string

		if r.bench.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(r.bench.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}
		snap := r.timer.Snapshot()

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			fmt.Sprintf("%.0f", opsPerSec),
			fmt.Sprintf("%.0f", snap.Percentile(0.50)),
			fmt.Sprintf("%.0f", snap.Percentile(0.95)),
			fmt.Sprintf("%.0f", snap.Percentile(0.99)),
			skipped,
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfCapacity),
			strconv.Itoa(perfBatchSize),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
