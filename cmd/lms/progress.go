package main

import (
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// progress is a nil-safe wrapper so callers need not check whether a bar is
// shown.
type progress struct {
	bar *progressbar.ProgressBar
}

func shouldShowProgress(verbose, quiet bool) bool {
	if verbose || quiet {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func newProgress(total int) *progress {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("syncing"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(15),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &progress{bar: bar}
}

func (p *progress) Add() {
	if p == nil {
		return
	}
	_ = p.bar.Add(1)
}

func (p *progress) Finish() {
	if p == nil {
		return
	}
	_ = p.bar.Finish()
}
