package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ValentinKolb/sift/cmd/perf"
	"github.com/ValentinKolb/sift/cmd/util"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "sift",
		Short: "concurrent data structures toolkit",
		Long: fmt.Sprintf(`sift (v%s)

A Go library of performance-oriented, concurrency-aware data structures:
a lock-free-read hash table, a bounded cache with SIEVE eviction and
single-flight loading, and a coalescing batch memoizer. This binary
exposes the built-in benchmark suite.`, Version),
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			_ = util.BindCommandFlags(cmd.Root())
			util.InitLoggers(util.GetLogLevel())
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sift",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sift v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("log level to use (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
