// Package cmd implements the command-line interface for sift. The library
// itself lives under lib/; this binary exists to run the built-in benchmark
// suite against the data structures.
//
// The package is organized into several subpackages:
//
//   - perf: The benchmark suite (latency distributions, optional CSV export)
//   - util: Shared utilities for command-line processing, configuration and
//     logging (internal use)
//
// See sift -help for a list of all commands.
package cmd
