// Package errors defines the error kinds lms reports for individual paths.
package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
)

// Kind classifies why an operation on a path failed.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindPermissionDenied Kind = "permission_denied"
	KindIOFailure        Kind = "io_failure"
	KindSourceVanished   Kind = "source_vanished"
)

// ErrFileChanged is returned when a source file's contents no longer match
// the checksum computed while planning.
var ErrFileChanged = New("file contents changed during copy")

// New returns an error with the given text.
func New(text string) error {
	return stderrors.New(text)
}

// WithContext annotates err with a short description of what was being done.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// PathError records a failure against a single relative path.
type PathError struct {
	Op   string
	Path string
	Kind Kind
	Err  error
}

func (err *PathError) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", err.Op, err.Path, err.Kind, err.Err)
}

func (err *PathError) Unwrap() error {
	return err.Err
}

// NewPathError wraps err for path, deriving the kind from the error itself.
func NewPathError(op, path string, err error) *PathError {
	return &PathError{Op: op, Path: path, Kind: Classify(err), Err: err}
}

// RootError is returned when a traversal root cannot be used at all. It
// aborts the whole invocation.
type RootError struct {
	Path string
	Kind Kind
	Err  error
}

func (err *RootError) Error() string {
	switch err.Kind {
	case KindNotFound:
		return fmt.Sprintf("%q does not exist", err.Path)
	case KindPermissionDenied:
		return fmt.Sprintf("%q is not accessible: %v", err.Path, err.Err)
	}
	return fmt.Sprintf("%q: %v", err.Path, err.Err)
}

func (err *RootError) Unwrap() error {
	return err.Err
}

// Classify maps an underlying filesystem error to a Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case stderrors.Is(err, fs.ErrPermission):
		return KindPermissionDenied
	}
	return KindIOFailure
}

// KindOf returns the Kind carried by err, falling back to Classify.
func KindOf(err error) Kind {
	var pathErr *PathError
	if stderrors.As(err, &pathErr) {
		return pathErr.Kind
	}
	var rootErr *RootError
	if stderrors.As(err, &rootErr) {
		return rootErr.Kind
	}
	return Classify(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
