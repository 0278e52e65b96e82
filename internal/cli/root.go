// Package cli implements umbrad's command tree: process (one refresh
// cycle), report (render the CSV and exit), and daemon (the continual
// watch-and-process loop).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set by goreleaser via ldflags
	Version = "dev"

	cfgFile      string
	verboseCount int
	quietCount   int
)

var rootCmd = &cobra.Command{
	Use:   "umbrad",
	Short: "Watches sequencer run output and drives per-project processing pipelines",
	Long: `umbrad discovers finished sequencer runs under a configured root
directory, matches each run's samples against project metadata, and
drives every project through its resolved task pipeline (trim, merge,
assemble, package, upload, notify), surviving restarts and per-project
failures.

Subcommands:
  umbrad daemon    Run the coordinator loop continually (refresh, report, sleep)
  umbrad process   Run exactly one refresh-and-wait cycle, then exit
  umbrad report    Render the current CSV report to stdout and exit`,
	Version: Version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (required)")
	rootCmd.PersistentFlags().CountVarP(&verboseCount, "verbose", "v", "increase log verbosity (repeatable)")
	rootCmd.PersistentFlags().CountVarP(&quietCount, "quiet", "q", "decrease log verbosity (repeatable)")
	rootCmd.SetVersionTemplate(fmt.Sprintf("umbrad version %s\n", Version))
}

func exitError(msg string) {
	fmt.Fprintln(os.Stderr, "Error:", msg)
	os.Exit(1)
}

func requireConfigFlag() string {
	if cfgFile == "" {
		exitError("--config is required")
	}
	return cfgFile
}
