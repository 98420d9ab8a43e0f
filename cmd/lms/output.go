package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yuya-takeyama/lms/pkg/executor"
	"github.com/yuya-takeyama/lms/pkg/planner"
	"github.com/yuya-takeyama/lms/pkg/syncer"
)

// PlanResult represents the planned operations before execution
type PlanResult struct {
	Files   []PlanFile  `json:"files"`
	Summary PlanSummary `json:"summary"`
}

type PlanFile struct {
	Action string `json:"action"` // "copy_file", "copy_dir", "copy_symlink", "delete"
	Source string `json:"source,omitempty"`
	Target string `json:"target"`
	Reason string `json:"reason"`
}

type PlanSummary struct {
	CopyFile    int `json:"copy_file"`
	CopyDir     int `json:"copy_dir"`
	CopySymlink int `json:"copy_symlink"`
	Delete      int `json:"delete"`
}

// SyncResult represents the actual execution results
type SyncResult struct {
	Files   []ResultFile  `json:"files"`
	Errors  []ErrorFile   `json:"errors"`
	Summary ResultSummary `json:"summary"`
}

type ResultFile struct {
	Action string `json:"action"` // "copied", "created", "linked", "deleted"
	Source string `json:"source,omitempty"`
	Target string `json:"target"`
	Bytes  int64  `json:"bytes,omitempty"`
}

type ErrorFile struct {
	Phase  string `json:"phase"`
	Action string `json:"action,omitempty"`
	Target string `json:"target"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

type ResultSummary struct {
	Copied  int   `json:"copied"`
	Created int   `json:"created"`
	Linked  int   `json:"linked"`
	Deleted int   `json:"deleted"`
	Failed  int   `json:"failed"`
	Bytes   int64 `json:"bytes"`
}

func buildPlanResult(plans []*syncer.Plan) PlanResult {
	result := PlanResult{Files: []PlanFile{}}

	for _, plan := range plans {
		for _, op := range plan.Operations {
			file := PlanFile{
				Action: string(op.Action),
				Target: getAbsolutePath(filepath.Join(plan.DestRoot, op.Path)),
				Reason: op.Reason,
			}
			if op.IsCopy() {
				file.Source = getAbsolutePath(filepath.Join(plan.SourceRoot, op.Path))
			}

			switch op.Action {
			case planner.ActionCopyFile:
				result.Summary.CopyFile++
			case planner.ActionCopyDir:
				result.Summary.CopyDir++
			case planner.ActionCopySymlink:
				result.Summary.CopySymlink++
			case planner.ActionDelete:
				result.Summary.Delete++
			}
			result.Files = append(result.Files, file)
		}
	}

	return result
}

// buildSyncResult lists successful results in plan order, since the
// executor reports them in completion order.
func buildSyncResult(plans []*syncer.Plan, results []executor.Result, report *executor.Report) SyncResult {
	result := SyncResult{
		Files:  []ResultFile{},
		Errors: []ErrorFile{},
	}

	succeeded := make(map[string]executor.Result, len(results))
	for _, r := range results {
		if r.Error == nil {
			succeeded[resultKey(r.Operation)] = r
		}
	}

	for _, plan := range plans {
		for _, op := range plan.Operations {
			r, ok := succeeded[resultKey(op)]
			if !ok {
				continue
			}
			// Results of different plans may share a relative path.
			delete(succeeded, resultKey(op))

			file := ResultFile{
				Action: pastTense(op.Action),
				Target: getAbsolutePath(filepath.Join(plan.DestRoot, op.Path)),
				Bytes:  r.Bytes,
			}
			if op.IsCopy() {
				file.Source = getAbsolutePath(filepath.Join(plan.SourceRoot, op.Path))
			}
			result.Files = append(result.Files, file)
		}
	}

	for _, f := range report.Failures {
		result.Errors = append(result.Errors, ErrorFile{
			Phase:  f.Phase,
			Action: string(f.Action),
			Target: f.Path,
			Kind:   string(f.Kind),
			Error:  f.Err.Error(),
		})
	}

	result.Summary = ResultSummary{
		Copied:  report.FilesCopied,
		Created: report.DirsCreated,
		Linked:  report.SymlinksCreated,
		Deleted: report.Deleted,
		Failed:  len(report.Failures),
		Bytes:   report.BytesCopied,
	}
	return result
}

func resultKey(op planner.Operation) string {
	return string(op.Action) + "\x00" + op.Path
}

func pastTense(action planner.Action) string {
	switch action {
	case planner.ActionCopyFile:
		return "copied"
	case planner.ActionCopyDir:
		return "created"
	case planner.ActionCopySymlink:
		return "linked"
	case planner.ActionDelete:
		return "deleted"
	default:
		return "unknown"
	}
}

func writePlanResult(path string, plans []*syncer.Plan) error {
	return writeJSON(path, buildPlanResult(plans))
}

func writeSyncResult(path string, result SyncResult) error {
	return writeJSON(path, result)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

func getAbsolutePath(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path // fallback to original path
	}
	return absPath
}
