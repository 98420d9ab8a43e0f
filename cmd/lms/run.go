package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/yuya-takeyama/lms/internal/config"
	"github.com/yuya-takeyama/lms/internal/logging"
	"github.com/yuya-takeyama/lms/pkg/executor"
	"github.com/yuya-takeyama/lms/pkg/logger"
	"github.com/yuya-takeyama/lms/pkg/planner"
	"github.com/yuya-takeyama/lms/pkg/syncer"
)

// loadConfig merges the config file, the environment and the flags that
// were explicitly set, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(afero.NewOsFs(), configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("sequential") {
		cfg.Sequential = sequential
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}
	if flags.Changed("quiet") {
		cfg.Quiet = quiet
	}
	if flags.Changed("exclude") {
		cfg.Excludes = append(cfg.Excludes, excludes...)
	}
	if flags.Changed("secure") {
		cfg.Secure = secure
	}
	if flags.Changed("nodelete") {
		cfg.NoDelete = noDelete
	}
	if flags.Changed("compare") {
		cfg.Compare = compare
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session holds what one command invocation shares across its plans.
type session struct {
	cfg    *config.Config
	logger *logger.SyncLogger
	syncer *syncer.Syncer

	mu       sync.Mutex
	results  []executor.Result
	progress *progress
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Verbose, cfg.Quiet)

	syncLogger := &logger.SyncLogger{
		IsDryRun:  dryRun,
		IsQuiet:   cfg.Quiet,
		IsVerbose: cfg.Verbose,
	}

	s := &session{cfg: cfg, logger: syncLogger}
	s.syncer = syncer.New(syncer.Options{
		Workers:    cfg.Workers,
		Sequential: cfg.Sequential,
		Policy:     cfg.Policy(),
		NoDelete:   cfg.NoDelete,
		Excludes:   cfg.Excludes,
		Logger:     s.logger,
		OnResult:   s.onResult,
	})
	return s, nil
}

// onResult is called concurrently by the executor workers.
func (s *session) onResult(result executor.Result) {
	s.mu.Lock()
	s.results = append(s.results, result)
	s.mu.Unlock()

	s.progress.Add()
}

// execute writes the plan file, then either logs the plans (dry run) or
// applies them and reports the outcome.
func (s *session) execute(ctx context.Context, plans []*syncer.Plan) error {
	startTime := time.Now()

	if planJSONFile != "" {
		if err := writePlanResult(planJSONFile, plans); err != nil {
			return fmt.Errorf("failed to write plan JSON: %w", err)
		}
	}

	if dryRun {
		for _, plan := range plans {
			s.logPlan(plan)
		}
		return nil
	}

	total := 0
	for _, plan := range plans {
		total += len(plan.Operations)
	}
	if shouldShowProgress(s.cfg.Verbose, s.cfg.Quiet) {
		s.progress = newProgress(total)
	}

	combined := executor.NewReport()
	for _, plan := range plans {
		report, err := s.syncer.Apply(ctx, plan)
		if err != nil {
			s.progress.Finish()
			return err
		}
		combined.Merge(report)
	}
	s.progress.Finish()

	logging.PrintSummary(os.Stderr, combined, time.Since(startTime), s.cfg.Quiet)

	if resultJSONFile != "" {
		if err := writeSyncResult(resultJSONFile, buildSyncResult(plans, s.results, combined)); err != nil {
			return fmt.Errorf("failed to write result JSON: %w", err)
		}
	}

	if combined.HasFailures() {
		return fmt.Errorf("%d operations failed", len(combined.Failures))
	}
	return nil
}

func (s *session) logPlan(plan *syncer.Plan) {
	for _, op := range plan.Operations {
		switch {
		case op.IsCopy():
			s.logger.Copy(filepath.Join(plan.SourceRoot, op.Path), filepath.Join(plan.DestRoot, op.Path))
		case op.Action == planner.ActionDelete:
			s.logger.Delete(filepath.Join(plan.DestRoot, op.Path))
		}
	}
}

func runCopy(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	src, dest := args[0], copyDestination(args[0], args[1])
	plan, err := s.syncer.PlanCopy(ctx, src, dest)
	if err != nil {
		return err
	}
	return s.execute(ctx, []*syncer.Plan{plan})
}

func runRemove(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	var plans []*syncer.Plan
	for _, target := range args {
		plan, err := s.syncer.PlanRemove(ctx, target)
		if err != nil {
			// Bad targets are reported and skipped; the rest still run.
			s.logger.Error("remove", target, err)
			continue
		}
		plans = append(plans, plan)
	}
	if len(plans) == 0 {
		return fmt.Errorf("no valid targets")
	}
	return s.execute(ctx, plans)
}

func runSync(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	plan, err := s.syncer.PlanSync(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	return s.execute(ctx, []*syncer.Plan{plan})
}

// copyDestination places src below dest when dest already exists.
func copyDestination(src, dest string) string {
	info, err := os.Stat(dest)
	if err != nil || !info.IsDir() {
		return dest
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		abs = src
	}
	return filepath.Join(dest, filepath.Base(abs))
}
