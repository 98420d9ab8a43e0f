package executor

import (
	"sort"

	"github.com/yuya-takeyama/lms/pkg/errors"
	"github.com/yuya-takeyama/lms/pkg/planner"
)

const (
	PhaseWalk  = "walk"
	PhaseApply = "apply"
)

// Failure is one operation, or one walked entry, that did not succeed.
type Failure struct {
	Phase  string
	Action planner.Action
	Path   string
	Kind   errors.Kind
	Err    error
}

// Report aggregates the results of one run.
type Report struct {
	Attempted       int
	Succeeded       int
	FilesCopied     int
	DirsCreated     int
	SymlinksCreated int
	Deleted         int
	BytesCopied     int64
	Failures        []Failure
}

func NewReport() *Report {
	return &Report{Failures: []Failure{}}
}

// Add folds one operation result into the report.
func (r *Report) Add(result Result) {
	r.Attempted++

	if result.Error != nil {
		r.Failures = append(r.Failures, Failure{
			Phase:  PhaseApply,
			Action: result.Operation.Action,
			Path:   result.Operation.Path,
			Kind:   errors.KindOf(result.Error),
			Err:    result.Error,
		})
		return
	}

	r.Succeeded++
	switch result.Operation.Action {
	case planner.ActionCopyFile:
		r.FilesCopied++
		r.BytesCopied += result.Bytes
	case planner.ActionCopyDir:
		r.DirsCreated++
	case planner.ActionCopySymlink:
		r.SymlinksCreated++
	case planner.ActionDelete:
		r.Deleted++
	}
}

// AddWalkErrors records entries that could not be read while walking. They
// count as failures but not as attempted operations.
func (r *Report) AddWalkErrors(errs []*errors.PathError) {
	for _, err := range errs {
		r.Failures = append(r.Failures, Failure{
			Phase: PhaseWalk,
			Path:  err.Path,
			Kind:  err.Kind,
			Err:   err,
		})
	}
}

// Sort orders failures by path, walk failures first for equal paths.
func (r *Report) Sort() {
	sort.SliceStable(r.Failures, func(i, j int) bool {
		if r.Failures[i].Path != r.Failures[j].Path {
			return r.Failures[i].Path < r.Failures[j].Path
		}
		return r.Failures[i].Phase == PhaseWalk && r.Failures[j].Phase != PhaseWalk
	})
}

// Merge adds the counts and failures of other. Failures stay sorted.
func (r *Report) Merge(other *Report) {
	r.Attempted += other.Attempted
	r.Succeeded += other.Succeeded
	r.FilesCopied += other.FilesCopied
	r.DirsCreated += other.DirsCreated
	r.SymlinksCreated += other.SymlinksCreated
	r.Deleted += other.Deleted
	r.BytesCopied += other.BytesCopied
	r.Failures = append(r.Failures, other.Failures...)
	r.Sort()
}

// HasFailures reports whether anything went wrong.
func (r *Report) HasFailures() bool {
	return len(r.Failures) > 0
}

// FailureCount counts failures of the given kind.
func (r *Report) FailureCount(kind errors.Kind) int {
	count := 0
	for _, f := range r.Failures {
		if f.Kind == kind {
			count++
		}
	}
	return count
}
