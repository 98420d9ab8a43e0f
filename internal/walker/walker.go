package walker

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/yuya-takeyama/lms/internal/pool"
	"github.com/yuya-takeyama/lms/pkg/errors"
	"github.com/yuya-takeyama/lms/pkg/logger"
)

// Kind is the type of a filesystem object.
type Kind string

const (
	KindFile    Kind = "file"
	KindDir     Kind = "dir"
	KindSymlink Kind = "symlink"
)

// Entry represents one object found under the walk root
type Entry struct {
	RelPath    string // Relative path from root, always slash separated
	Kind       Kind
	Size       int64 // Files only
	ModTime    time.Time
	Mode       os.FileMode
	LinkTarget string // Symlinks only, never followed
}

// Entries is keyed by RelPath.
type Entries map[string]Entry

// Paths returns the relative paths in lexical order.
func (e Entries) Paths() []string {
	paths := make([]string, 0, len(e))
	for p := range e {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Result is the outcome of one walk. Errors holds the entries that could not
// be read; they do not invalidate the rest of the result.
type Result struct {
	Root    string
	Entries Entries
	Errors  []*errors.PathError
	// Incomplete holds the paths whose contents are unknown because they
	// failed to read. "" is the root itself.
	Incomplete map[string]bool
}

// Options configures a Walker.
type Options struct {
	// Sequential forces a single-threaded depth-first walk.
	Sequential bool
	// Workers is the pool size for parallel walks; 0 means one per CPU.
	Workers int
	// Excludes are doublestar patterns matched against relative paths.
	// Patterns ending in "/" match directories and everything below them.
	Excludes []string
	Logger   logger.Logger
}

// Walker walks local files with exclude pattern support
type Walker struct {
	fs       afero.Fs
	root     string
	opts     Options
	excludes []string
	logger   logger.Logger
}

// NewWalker creates a new file walker
func NewWalker(fs afero.Fs, root string, opts Options) (*Walker, error) {
	for _, pattern := range opts.Excludes {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	l := opts.Logger
	if l == nil {
		l = &logger.NullLogger{}
	}

	return &Walker{
		fs:       fs,
		root:     filepath.Clean(root),
		opts:     opts,
		excludes: opts.Excludes,
		logger:   l,
	}, nil
}

// Root returns the cleaned root path.
func (w *Walker) Root() string {
	return w.root
}

// collector merges per-directory batches from concurrent listings.
type collector struct {
	mu      sync.Mutex
	entries Entries
	errors  []*errors.PathError
}

func (c *collector) add(entries []Entry, errs []*errors.PathError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range entries {
		c.entries[e.RelPath] = e
	}
	c.errors = append(c.errors, errs...)
}

// Walk enumerates everything below the root. It fails only when the root
// itself is unusable.
func (w *Walker) Walk() (*Result, error) {
	if err := w.checkRoot(); err != nil {
		return nil, err
	}

	w.logger.PhaseStart("walk "+w.root, 0)

	workers := w.opts.Workers
	if w.opts.Sequential {
		workers = 1
	}
	p := pool.New(workers)
	c := &collector{entries: Entries{}}

	var visit func(dir string)
	visit = func(dir string) {
		entries, errs := w.readDir(dir)
		for _, e := range entries {
			if e.Kind == KindDir {
				child := e.RelPath
				p.Submit(func() { visit(child) })
			}
		}
		c.add(entries, errs)
	}

	p.Submit(func() { visit("") })
	p.Wait()

	sort.Slice(c.errors, func(i, j int) bool {
		return c.errors[i].Path < c.errors[j].Path
	})

	incomplete := make(map[string]bool, len(c.errors))
	for _, err := range c.errors {
		incomplete[err.Path] = true
	}

	w.logger.PhaseComplete("walk "+w.root, len(c.entries))

	return &Result{
		Root:       w.root,
		Entries:    c.entries,
		Errors:     c.errors,
		Incomplete: incomplete,
	}, nil
}

func (w *Walker) checkRoot() error {
	info, err := w.fs.Stat(w.root)
	if err != nil {
		return &errors.RootError{Path: w.root, Kind: errors.Classify(err), Err: err}
	}
	if !info.IsDir() {
		return &errors.RootError{
			Path: w.root,
			Kind: errors.KindIOFailure,
			Err:  fmt.Errorf("root is not a directory: %s", w.root),
		}
	}
	return nil
}

// readDir lists one directory without recursing. Objects that disappear
// while being listed are treated as never having existed.
func (w *Walker) readDir(rel string) ([]Entry, []*errors.PathError) {
	dirPath := w.fullPath(rel)

	dir, err := w.fs.Open(dirPath)
	if err != nil {
		return nil, w.entryError("read dir", rel, err)
	}
	infos, err := dir.Readdir(-1)
	dir.Close()
	if err != nil {
		return nil, w.entryError("read dir", rel, err)
	}

	var errs []*errors.PathError
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		relPath := path.Join(rel, info.Name())
		mode := info.Mode()

		if w.isExcluded(relPath, mode.IsDir()) {
			w.logger.Debug(fmt.Sprintf("excluded %s", relPath))
			continue
		}

		entry := Entry{
			RelPath: relPath,
			ModTime: info.ModTime(),
			Mode:    mode,
		}

		switch {
		case mode&os.ModeSymlink != 0:
			target, err := w.readLink(relPath)
			if err != nil {
				errs = append(errs, w.entryError("read link", relPath, err)...)
				continue
			}
			entry.Kind = KindSymlink
			entry.LinkTarget = target
		case mode.IsDir():
			entry.Kind = KindDir
		case mode.IsRegular():
			entry.Kind = KindFile
			entry.Size = info.Size()
		default:
			w.logger.Debug(fmt.Sprintf("skipping special file %s (%s)", relPath, mode.Type()))
			continue
		}

		entries = append(entries, entry)
	}

	return entries, errs
}

func (w *Walker) readLink(rel string) (string, error) {
	reader, ok := w.fs.(afero.LinkReader)
	if !ok {
		return "", fmt.Errorf("filesystem %s cannot read symlinks", w.fs.Name())
	}
	return reader.ReadlinkIfPossible(w.fullPath(rel))
}

func (w *Walker) entryError(op, rel string, err error) []*errors.PathError {
	kind := errors.Classify(err)
	if kind == errors.KindNotFound {
		// Removed by someone else while we were walking.
		return nil
	}

	pathErr := &errors.PathError{Op: op, Path: rel, Kind: kind, Err: err}
	w.logger.Error(op, rel, err)
	return []*errors.PathError{pathErr}
}

func (w *Walker) fullPath(rel string) string {
	if rel == "" {
		return w.root
	}
	return filepath.Join(w.root, filepath.FromSlash(rel))
}

// isExcluded checks if a path matches any exclude pattern
func (w *Walker) isExcluded(relPath string, isDir bool) bool {
	for _, pattern := range w.excludes {
		if strings.HasSuffix(pattern, "/") {
			// Directory patterns; descendants are never reached because the
			// directory itself is not descended into.
			if !isDir {
				continue
			}
			if matched, _ := doublestar.Match(strings.TrimSuffix(pattern, "/"), relPath); matched {
				return true
			}
			continue
		}
		if matched, _ := doublestar.Match(pattern, relPath); matched {
			return true
		}
	}
	return false
}
