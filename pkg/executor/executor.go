package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/yuya-takeyama/lms/internal/checksum"
	"github.com/yuya-takeyama/lms/internal/pool"
	"github.com/yuya-takeyama/lms/internal/walker"
	"github.com/yuya-takeyama/lms/pkg/errors"
	"github.com/yuya-takeyama/lms/pkg/logger"
	"github.com/yuya-takeyama/lms/pkg/planner"
)

const copyBufferSize = 128 * 1024

var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, copyBufferSize)
		return &buf
	},
}

// Options configures an Executor.
type Options struct {
	SourceRoot string
	DestRoot   string

	// Workers per stage; 0 means one per CPU.
	Workers    int
	Sequential bool

	// Hasher verifies copied bytes against Operation.Checksum when the
	// planner already hashed the source. May be nil.
	Hasher *checksum.Hasher

	// OnResult is called after every operation, possibly concurrently.
	OnResult func(Result)
}

type Executor struct {
	fs     afero.Fs
	logger logger.Logger
	opts   Options
}

func NewExecutor(fs afero.Fs, l logger.Logger, opts Options) *Executor {
	if l == nil {
		l = &logger.NullLogger{}
	}
	return &Executor{
		fs:     fs,
		logger: l,
		opts:   opts,
	}
}

// Result is the outcome of one operation.
type Result struct {
	Operation planner.Operation
	Bytes     int64
	Error     error
}

// Execute applies ops and always returns a complete report. Deletes run
// first, then directory creations, then files and symlinks; inside a stage
// operations are independent and run concurrently.
func (e *Executor) Execute(ctx context.Context, ops []planner.Operation) *Report {
	results := make([]Result, len(ops))

	var deletes, dirs, rest []int
	for i, op := range ops {
		switch op.Action {
		case planner.ActionDelete:
			deletes = append(deletes, i)
		case planner.ActionCopyDir:
			dirs = append(dirs, i)
		default:
			rest = append(rest, i)
		}
	}

	if len(deletes) > 0 {
		e.logger.PhaseStart("delete", len(deletes))
		e.runStage(ctx, ops, deletes, results)
		e.logger.PhaseComplete("delete", len(deletes))
	}

	if len(dirs) > 0 {
		// A directory may replace a file that is a parent of another new
		// directory, so parents go first.
		e.logger.PhaseStart("mkdir", len(dirs))
		for _, level := range byDepth(ops, dirs) {
			e.runStage(ctx, ops, level, results)
		}
		e.logger.PhaseComplete("mkdir", len(dirs))
	}

	if len(rest) > 0 {
		e.logger.PhaseStart("copy", len(rest))
		e.runStage(ctx, ops, rest, results)
		e.logger.PhaseComplete("copy", len(rest))
	}

	report := NewReport()
	for _, result := range results {
		report.Add(result)
	}
	report.Sort()
	return report
}

// byDepth groups operation indexes by the depth of their path, shallowest
// first.
func byDepth(ops []planner.Operation, indexes []int) [][]int {
	levels := map[int][]int{}
	maxDepth := 0
	for _, i := range indexes {
		depth := strings.Count(ops[i].Path, "/")
		levels[depth] = append(levels[depth], i)
		if depth > maxDepth {
			maxDepth = depth
		}
	}

	result := make([][]int, 0, len(levels))
	for depth := 0; depth <= maxDepth; depth++ {
		if level, ok := levels[depth]; ok {
			result = append(result, level)
		}
	}
	return result
}

func (e *Executor) runStage(ctx context.Context, ops []planner.Operation, indexes []int, results []Result) {
	workers := e.opts.Workers
	if e.opts.Sequential {
		workers = 1
	}
	p := pool.New(workers)

	for _, i := range indexes {
		idx := i
		p.Submit(func() {
			op := ops[idx]

			var result Result
			if err := ctx.Err(); err != nil {
				result = Result{Operation: op, Error: err}
			} else {
				result = e.executeOperation(op)
			}

			results[idx] = result
			if e.opts.OnResult != nil {
				e.opts.OnResult(result)
			}
		})
	}
	p.Wait()
}

func (e *Executor) executeOperation(op planner.Operation) Result {
	srcPath := e.sourcePath(op.Path)
	destPath := e.destPath(op.Path)

	var n int64
	var err error

	switch op.Action {
	case planner.ActionCopyFile:
		e.logger.Copy(srcPath, destPath)
		n, err = e.copyFile(op, srcPath, destPath)
	case planner.ActionCopyDir:
		e.logger.Copy(srcPath, destPath)
		err = e.copyDir(op, srcPath, destPath)
	case planner.ActionCopySymlink:
		e.logger.Copy(srcPath, destPath)
		err = e.copySymlink(op, srcPath, destPath)
	case planner.ActionDelete:
		e.logger.Delete(destPath)
		err = e.delete(op, destPath)
	case planner.ActionSkip:
	default:
		err = &errors.PathError{
			Op:   string(op.Action),
			Path: op.Path,
			Kind: errors.KindIOFailure,
			Err:  fmt.Errorf("unknown action %q", op.Action),
		}
	}

	if err != nil {
		e.logger.Error(string(op.Action), op.Path, err)
	}

	return Result{Operation: op, Bytes: n, Error: err}
}

func (e *Executor) copyFile(op planner.Operation, srcPath, destPath string) (int64, error) {
	in, err := e.fs.Open(srcPath)
	if err != nil {
		return 0, sourceError("open", op.Path, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, sourceError("stat", op.Path, err)
	}
	if !info.Mode().IsRegular() {
		return 0, &errors.PathError{
			Op:   "open",
			Path: op.Path,
			Kind: errors.KindIOFailure,
			Err:  fmt.Errorf("source is no longer a regular file"),
		}
	}

	if err := e.prepareDest(destPath, walker.KindFile); err != nil {
		return 0, errors.NewPathError("prepare", op.Path, err)
	}

	tmp, err := afero.TempFile(e.fs, filepath.Dir(destPath), "."+filepath.Base(destPath)+".lms-")
	if err != nil {
		return 0, errors.NewPathError("create", op.Path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			e.fs.Remove(tmpName)
		}
	}()

	var reader io.Reader = in
	var tee *checksum.TeeReaderWithChecksum
	if op.Checksum != "" && e.opts.Hasher != nil {
		tee = e.opts.Hasher.NewTeeReader(in)
		reader = tee
	}

	buf := bufferPool.Get().(*[]byte)
	n, err := io.CopyBuffer(tmp, reader, *buf)
	bufferPool.Put(buf)
	if err != nil {
		tmp.Close()
		return n, errors.NewPathError("write", op.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return n, errors.NewPathError("write", op.Path, err)
	}

	if tee != nil {
		sum, err := tee.Checksum()
		if err != nil || !checksum.CompareChecksums(sum, op.Checksum) {
			return n, &errors.PathError{
				Op:   "verify",
				Path: op.Path,
				Kind: errors.KindIOFailure,
				Err:  errors.ErrFileChanged,
			}
		}
	}

	if err := e.fs.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return n, errors.NewPathError("chmod", op.Path, err)
	}
	if err := e.fs.Chtimes(tmpName, info.ModTime(), info.ModTime()); err != nil {
		return n, errors.NewPathError("chtimes", op.Path, err)
	}
	if err := e.fs.Rename(tmpName, destPath); err != nil {
		return n, errors.NewPathError("rename", op.Path, err)
	}
	committed = true

	return n, nil
}

func (e *Executor) copyDir(op planner.Operation, srcPath, destPath string) error {
	info, err := e.lstat(srcPath)
	if err != nil {
		return sourceError("stat", op.Path, err)
	}

	if err := e.prepareDest(destPath, walker.KindDir); err != nil {
		return errors.NewPathError("prepare", op.Path, err)
	}
	// The owner keeps full access so the copy stage can fill it.
	perm := info.Mode().Perm() | 0700
	if err := e.fs.MkdirAll(destPath, perm); err != nil {
		return errors.NewPathError("mkdir", op.Path, err)
	}
	if err := e.fs.Chmod(destPath, perm); err != nil {
		return errors.NewPathError("chmod", op.Path, err)
	}
	return nil
}

func (e *Executor) copySymlink(op planner.Operation, srcPath, destPath string) error {
	reader, ok := e.fs.(afero.LinkReader)
	linker, ok2 := e.fs.(afero.Linker)
	if !ok || !ok2 {
		return &errors.PathError{
			Op:   "symlink",
			Path: op.Path,
			Kind: errors.KindIOFailure,
			Err:  fmt.Errorf("filesystem %s does not support symlinks", e.fs.Name()),
		}
	}

	target, err := reader.ReadlinkIfPossible(srcPath)
	if err != nil {
		return sourceError("readlink", op.Path, err)
	}

	if err := e.prepareDest(destPath, walker.KindSymlink); err != nil {
		return errors.NewPathError("prepare", op.Path, err)
	}
	if err := linker.SymlinkIfPossible(target, destPath); err != nil {
		return errors.NewPathError("symlink", op.Path, err)
	}
	return nil
}

func (e *Executor) delete(op planner.Operation, destPath string) error {
	if err := e.fs.RemoveAll(destPath); err != nil {
		return errors.NewPathError("delete", op.Path, err)
	}
	return nil
}

// prepareDest makes sure the parent of destPath exists and removes whatever
// sits at destPath if it cannot simply be overwritten by kind.
func (e *Executor) prepareDest(destPath string, kind walker.Kind) error {
	info, err := e.lstat(destPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		return e.fs.MkdirAll(filepath.Dir(destPath), 0755)
	}

	switch {
	case info.IsDir() && kind != walker.KindDir:
		return e.fs.RemoveAll(destPath)
	case !info.IsDir() && kind == walker.KindDir:
		return e.fs.Remove(destPath)
	case kind == walker.KindSymlink:
		return e.fs.Remove(destPath)
	}
	return nil
}

func (e *Executor) lstat(name string) (os.FileInfo, error) {
	if lstater, ok := e.fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(name)
		return info, err
	}
	return e.fs.Stat(name)
}

func (e *Executor) sourcePath(rel string) string {
	return filepath.Join(e.opts.SourceRoot, filepath.FromSlash(rel))
}

func (e *Executor) destPath(rel string) string {
	return filepath.Join(e.opts.DestRoot, filepath.FromSlash(rel))
}

// sourceError reports a source entry that disappeared after the walk as
// vanished rather than missing.
func sourceError(op, path string, err error) error {
	pathErr := errors.NewPathError(op, path, err)
	if pathErr.Kind == errors.KindNotFound {
		pathErr.Kind = errors.KindSourceVanished
	}
	return pathErr
}
