// Package syncer composes the walker, planner and executor into the copy,
// remove and sync operations.
package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/yuya-takeyama/lms/internal/checksum"
	"github.com/yuya-takeyama/lms/internal/walker"
	"github.com/yuya-takeyama/lms/pkg/errors"
	"github.com/yuya-takeyama/lms/pkg/executor"
	"github.com/yuya-takeyama/lms/pkg/logger"
	"github.com/yuya-takeyama/lms/pkg/planner"
)

// Options configures every operation of a Syncer.
type Options struct {
	// Workers bounds each pool; 0 means one per CPU.
	Workers    int
	Sequential bool

	Policy   planner.Policy
	NoDelete bool
	Excludes []string

	Logger logger.Logger
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
	// OnResult is forwarded to the executor.
	OnResult func(executor.Result)
}

// Plan is a computed set of operations that has not been applied yet.
type Plan struct {
	SourceRoot string
	DestRoot   string
	Operations []planner.Operation
	WalkErrors []*errors.PathError

	// destMissing is set when the destination root has to be created.
	destMissing bool
	// removeRoot is set for remove plans, which delete the root last.
	removeRoot bool
}

type Syncer struct {
	opts   Options
	fs     afero.Fs
	logger logger.Logger
	hasher *checksum.Hasher
}

func New(opts Options) *Syncer {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	l := opts.Logger
	if l == nil {
		l = &logger.NullLogger{}
	}

	return &Syncer{
		opts:   opts,
		fs:     fs,
		logger: l,
		hasher: checksum.New(fs, checksum.ForMode(opts.Policy == planner.PolicySecure)),
	}
}

func (s *Syncer) workers() int {
	if s.opts.Sequential {
		return 1
	}
	return s.opts.Workers
}

func (s *Syncer) walk(root string) (*walker.Result, error) {
	w, err := walker.NewWalker(s.fs, root, walker.Options{
		Sequential: s.opts.Sequential,
		Workers:    s.opts.Workers,
		Excludes:   s.opts.Excludes,
		Logger:     s.logger,
	})
	if err != nil {
		return nil, err
	}
	return w.Walk()
}

// Copy copies every entry of src into dest without comparing anything.
func (s *Syncer) Copy(ctx context.Context, src, dest string) (*executor.Report, error) {
	plan, err := s.PlanCopy(ctx, src, dest)
	if err != nil {
		return nil, err
	}
	return s.Apply(ctx, plan)
}

// Remove deletes target and everything below it.
func (s *Syncer) Remove(ctx context.Context, target string) (*executor.Report, error) {
	plan, err := s.PlanRemove(ctx, target)
	if err != nil {
		return nil, err
	}
	return s.Apply(ctx, plan)
}

// Sync makes dest a mirror of src.
func (s *Syncer) Sync(ctx context.Context, src, dest string) (*executor.Report, error) {
	plan, err := s.PlanSync(ctx, src, dest)
	if err != nil {
		return nil, err
	}
	return s.Apply(ctx, plan)
}

func (s *Syncer) PlanCopy(ctx context.Context, src, dest string) (*Plan, error) {
	source, err := s.walk(src)
	if err != nil {
		return nil, err
	}
	destMissing, err := s.checkDestRoot(dest)
	if err != nil {
		return nil, err
	}

	return &Plan{
		SourceRoot:  source.Root,
		DestRoot:    filepath.Clean(dest),
		Operations:  planner.PlanCopy(source.Entries),
		WalkErrors:  source.Errors,
		destMissing: destMissing,
	}, nil
}

func (s *Syncer) PlanRemove(ctx context.Context, target string) (*Plan, error) {
	walked, err := s.walk(target)
	if err != nil {
		return nil, err
	}

	return &Plan{
		DestRoot:   walked.Root,
		Operations: planner.PlanRemove(walked.Entries),
		WalkErrors: walked.Errors,
		removeRoot: true,
	}, nil
}

// PlanSync walks both trees, concurrently unless Sequential is set, and
// diffs them. A missing destination is planned as empty.
func (s *Syncer) PlanSync(ctx context.Context, src, dest string) (*Plan, error) {
	destMissing, destErr := s.checkDestRoot(dest)

	var (
		wg                  sync.WaitGroup
		source, destination *walker.Result
		srcErr              error
	)

	walkDest := !destMissing && destErr == nil

	if s.opts.Sequential {
		source, srcErr = s.walk(src)
		if srcErr == nil && walkDest {
			destination, destErr = s.walk(dest)
		}
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			source, srcErr = s.walk(src)
		}()
		if walkDest {
			wg.Add(1)
			go func() {
				defer wg.Done()
				destination, destErr = s.walk(dest)
			}()
		}
		wg.Wait()
	}

	// A bad source is reported first.
	if srcErr != nil {
		return nil, srcErr
	}
	if destErr != nil {
		return nil, destErr
	}

	p := planner.NewPlanner(s.fs, s.hasher, s.workers(), s.logger)
	ops, err := p.Plan(ctx, source, destination, planner.Options{
		DeleteEnabled: !s.opts.NoDelete,
		Policy:        s.opts.Policy,
	})
	if err != nil {
		return nil, err
	}

	walkErrors := source.Errors
	if destination != nil {
		walkErrors = append(walkErrors, destination.Errors...)
	}

	return &Plan{
		SourceRoot:  source.Root,
		DestRoot:    filepath.Clean(dest),
		Operations:  ops,
		WalkErrors:  walkErrors,
		destMissing: destMissing,
	}, nil
}

// Apply executes a plan. The returned error is only set when the
// destination root cannot be created; everything else is in the report.
func (s *Syncer) Apply(ctx context.Context, plan *Plan) (*executor.Report, error) {
	if plan.destMissing {
		if err := s.fs.MkdirAll(plan.DestRoot, 0755); err != nil {
			return nil, &errors.RootError{Path: plan.DestRoot, Kind: errors.Classify(err), Err: err}
		}
	}

	e := executor.NewExecutor(s.fs, s.logger, executor.Options{
		SourceRoot: plan.SourceRoot,
		DestRoot:   plan.DestRoot,
		Workers:    s.opts.Workers,
		Sequential: s.opts.Sequential,
		Hasher:     s.hasher,
		OnResult:   s.opts.OnResult,
	})
	report := e.Execute(ctx, plan.Operations)
	report.AddWalkErrors(plan.WalkErrors)

	if plan.removeRoot && !report.HasFailures() {
		s.logger.Delete(plan.DestRoot)
		if err := s.fs.Remove(plan.DestRoot); err != nil && !os.IsNotExist(err) {
			report.Add(executor.Result{
				Operation: planner.Operation{Action: planner.ActionDelete, Path: ".", Kind: walker.KindDir},
				Error:     errors.NewPathError("delete", ".", err),
			})
		}
	}

	report.Sort()
	return report, nil
}

// checkDestRoot reports whether dest is missing. An existing dest that is
// not a directory is fatal.
func (s *Syncer) checkDestRoot(dest string) (bool, error) {
	info, err := s.fs.Stat(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, &errors.RootError{Path: dest, Kind: errors.Classify(err), Err: err}
	}
	if !info.IsDir() {
		return false, &errors.RootError{
			Path: dest,
			Kind: errors.KindIOFailure,
			Err:  fmt.Errorf("destination is not a directory: %s", dest),
		}
	}
	return false, nil
}
