package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"

	"github.com/yuya-takeyama/lms/pkg/executor"
)

// VerboseEnv forces debug logging when set to "true".
const VerboseEnv = "LMS_LOG_VERBOSE"

var failureColor = color.New(color.FgRed)

// Setup configures the standard logrus logger for the CLI.
func Setup(verbose, quiet bool) {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
	})

	switch {
	case verbose || os.Getenv(VerboseEnv) == "true":
		log.SetLevel(log.DebugLevel)
	case quiet:
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// PrintSummary prints a summary of one run
func PrintSummary(w io.Writer, report *executor.Report, duration time.Duration, quiet bool) {
	if quiet && !report.HasFailures() {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Summary ===")
	fmt.Fprintf(w, "Copied: %d files (%s)\n", report.FilesCopied, humanize.IBytes(uint64(report.BytesCopied)))
	if report.DirsCreated > 0 {
		fmt.Fprintf(w, "Directories: %d\n", report.DirsCreated)
	}
	if report.SymlinksCreated > 0 {
		fmt.Fprintf(w, "Symlinks: %d\n", report.SymlinksCreated)
	}
	fmt.Fprintf(w, "Deleted: %d\n", report.Deleted)
	if report.HasFailures() {
		failureColor.Fprintf(w, "Errors: %d\n", len(report.Failures))
		for _, f := range report.Failures {
			failureColor.Fprintf(w, "  %s %s [%s]: %v\n", f.Phase, f.Path, f.Kind, f.Err)
		}
	}
	fmt.Fprintf(w, "Duration: %s\n", duration.Round(time.Millisecond))
}
