package planner

import (
	"fmt"

	"github.com/yuya-takeyama/lms/internal/walker"
)

// Policy decides when two files with the same path are unchanged.
type Policy int

const (
	// PolicyFastHash trusts equal size and mtime. Files with equal size but
	// different mtimes are confirmed with the fast checksum.
	PolicyFastHash Policy = iota
	// PolicyMetadata compares size and mtime only and never reads contents.
	PolicyMetadata
	// PolicySecure compares every same-size pair with the secure checksum,
	// whatever the mtimes say.
	PolicySecure
)

func (p Policy) String() string {
	switch p {
	case PolicyMetadata:
		return "metadata"
	case PolicySecure:
		return "secure"
	}
	return "fast"
}

// ParsePolicy accepts "metadata", "fast" or "secure".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "fast":
		return PolicyFastHash, nil
	case "metadata":
		return PolicyMetadata, nil
	case "secure":
		return PolicySecure, nil
	}
	return PolicyFastHash, fmt.Errorf("unknown compare mode %q (want metadata, fast or secure)", s)
}

// Options for a single sync plan.
type Options struct {
	DeleteEnabled bool
	Policy        Policy
	// SourceIncomplete lists source paths that could not be read. Nothing
	// at or below them is deleted from the destination.
	SourceIncomplete map[string]bool
}

type Action string

const (
	ActionCopyFile    Action = "copy_file"
	ActionCopyDir     Action = "copy_dir"
	ActionCopySymlink Action = "copy_symlink"
	ActionDelete      Action = "delete"
	ActionSkip        Action = "skip"
)

// Operation is one unit of work for the executor. It refers to the entry by
// path only.
type Operation struct {
	Action   Action
	Path     string
	Kind     walker.Kind
	Size     int64
	Reason   string
	Checksum string // Source checksum, when the planner computed one
}

// IsCopy reports whether the operation writes to the destination.
func (op Operation) IsCopy() bool {
	switch op.Action {
	case ActionCopyFile, ActionCopyDir, ActionCopySymlink:
		return true
	}
	return false
}

// CopyAction returns the copy action for an entry kind.
func CopyAction(kind walker.Kind) Action {
	switch kind {
	case walker.KindDir:
		return ActionCopyDir
	case walker.KindSymlink:
		return ActionCopySymlink
	}
	return ActionCopyFile
}
