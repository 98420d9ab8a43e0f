package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

var (
	sequential     bool
	verbose        bool
	quiet          bool
	workers        int
	excludes       []string
	configPath     string
	dryRun         bool
	planJSONFile   string
	resultJSONFile string

	secure   bool
	noDelete bool
	compare  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lms",
		Short: "Fast parallel copy, remove and sync of local directory trees",
		Long: `lms copies, removes and synchronizes local directory trees in parallel.
Files are compared by size and modification time, and by checksum when needed.`,
		Version:      fmt.Sprintf("%s (commit: %s, built at: %s by %s)", version, commit, date, builtBy),
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&sequential, "sequential", false, "Process one entry at a time")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log every operation")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	flags.IntVar(&workers, "workers", 0, "Number of workers per pool (default: number of CPUs)")
	flags.StringSliceVar(&excludes, "exclude", nil, "Exclude patterns (multiple allowed)")
	flags.StringVar(&configPath, "config", "", "Path to config file (default: ~/.config/lms/config.yaml)")
	flags.BoolVar(&dryRun, "dryrun", false, "Shows operations without executing")
	flags.StringVar(&planJSONFile, "plan-json-file", "", "Path to output plan as JSON file")
	flags.StringVar(&resultJSONFile, "result-json-file", "", "Path to output result as JSON file")

	rootCmd.AddCommand(newCopyCmd(), newRemoveCmd(), newSyncCmd())
	return rootCmd
}

func newCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <SOURCE> <DESTINATION>",
		Short: "Copy a directory tree",
		Long: `Copy every entry of SOURCE into DESTINATION without comparing.
If DESTINATION already exists, SOURCE is copied into DESTINATION/<basename of SOURCE>.`,
		Args: cobra.ExactArgs(2),
		RunE: runCopy,
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <TARGET>...",
		Short: "Remove directory trees",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRemove,
	}
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sync <SOURCE> <DESTINATION>",
		Aliases: []string{"s"},
		Short:   "Make DESTINATION a mirror of SOURCE",
		Args:    cobra.ExactArgs(2),
		RunE:    runSync,
	}

	cmd.Flags().BoolVar(&secure, "secure", false, "Compare same-size files by BLAKE2b checksum")
	cmd.Flags().BoolVar(&noDelete, "nodelete", false, "Keep destination entries missing from source")
	cmd.Flags().StringVar(&compare, "compare", "fast", "Compare mode: metadata, fast or secure")
	return cmd
}

// signalContext is cancelled on the first interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}
