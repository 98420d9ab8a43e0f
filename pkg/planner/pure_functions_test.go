package planner

import (
	"reflect"
	"testing"
	"time"

	"github.com/yuya-takeyama/lms/internal/walker"
)

var (
	t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func file(p string, size int64, mtime time.Time) walker.Entry {
	return walker.Entry{RelPath: p, Kind: walker.KindFile, Size: size, ModTime: mtime}
}

func dir(p string) walker.Entry {
	return walker.Entry{RelPath: p, Kind: walker.KindDir, ModTime: t0}
}

func symlink(p, target string) walker.Entry {
	return walker.Entry{RelPath: p, Kind: walker.KindSymlink, LinkTarget: target, ModTime: t0}
}

func entries(items ...walker.Entry) walker.Entries {
	result := walker.Entries{}
	for _, item := range items {
		result[item.RelPath] = item
	}
	return result
}

func emptyPhase1() Phase1Result {
	return Phase1Result{
		NewItems:        []ItemRef{},
		DeletedItems:    []ItemRef{},
		KindMismatch:    []ItemRef{},
		SizeMismatch:    []ItemRef{},
		ModTimeMismatch: []ItemRef{},
		LinkMismatch:    []ItemRef{},
		NeedChecksum:    []ItemRef{},
		Identical:       []ItemRef{},
	}
}

func fileRef(p string, size int64) ItemRef {
	return ItemRef{Path: p, Kind: walker.KindFile, Size: size}
}

func dirRef(p string) ItemRef {
	return ItemRef{Path: p, Kind: walker.KindDir}
}

func TestPhase1Compare(t *testing.T) {
	tests := []struct {
		name   string
		source walker.Entries
		dest   walker.Entries
		opts   Options
		want   func(r *Phase1Result)
	}{
		{
			name:   "all new files",
			source: entries(file("file1.txt", 100, t0), file("file2.txt", 200, t0)),
			dest:   entries(),
			want: func(r *Phase1Result) {
				r.NewItems = []ItemRef{fileRef("file1.txt", 100), fileRef("file2.txt", 200)}
			},
		},
		{
			name:   "all deleted files with delete enabled",
			source: entries(),
			dest:   entries(file("file1.txt", 100, t0), file("file2.txt", 200, t0)),
			opts:   Options{DeleteEnabled: true},
			want: func(r *Phase1Result) {
				r.DeletedItems = []ItemRef{fileRef("file1.txt", 100), fileRef("file2.txt", 200)}
			},
		},
		{
			name:   "deleted files ignored when delete disabled",
			source: entries(),
			dest:   entries(file("file1.txt", 100, t0)),
			want:   func(r *Phase1Result) {},
		},
		{
			name:   "size mismatch",
			source: entries(file("file1.txt", 100, t0)),
			dest:   entries(file("file1.txt", 200, t0)),
			want: func(r *Phase1Result) {
				r.SizeMismatch = []ItemRef{fileRef("file1.txt", 100)}
			},
		},
		{
			name:   "same size and mtime is identical under fast policy",
			source: entries(file("file1.txt", 100, t0)),
			dest:   entries(file("file1.txt", 100, t0)),
			want: func(r *Phase1Result) {
				r.Identical = []ItemRef{fileRef("file1.txt", 100)}
			},
		},
		{
			name:   "different mtime needs checksum under fast policy",
			source: entries(file("file1.txt", 100, t1)),
			dest:   entries(file("file1.txt", 100, t0)),
			want: func(r *Phase1Result) {
				r.NeedChecksum = []ItemRef{fileRef("file1.txt", 100)}
			},
		},
		{
			name:   "different mtime is a copy under metadata policy",
			source: entries(file("file1.txt", 100, t1)),
			dest:   entries(file("file1.txt", 100, t0)),
			opts:   Options{Policy: PolicyMetadata},
			want: func(r *Phase1Result) {
				r.ModTimeMismatch = []ItemRef{fileRef("file1.txt", 100)}
			},
		},
		{
			name:   "secure policy hashes even with equal mtime",
			source: entries(file("file1.txt", 100, t0)),
			dest:   entries(file("file1.txt", 100, t0)),
			opts:   Options{Policy: PolicySecure},
			want: func(r *Phase1Result) {
				r.NeedChecksum = []ItemRef{fileRef("file1.txt", 100)}
			},
		},
		{
			name:   "secure policy never hashes different sizes",
			source: entries(file("file1.txt", 100, t0)),
			dest:   entries(file("file1.txt", 101, t0)),
			opts:   Options{Policy: PolicySecure},
			want: func(r *Phase1Result) {
				r.SizeMismatch = []ItemRef{fileRef("file1.txt", 100)}
			},
		},
		{
			name:   "existing directories are identical",
			source: entries(dir("d")),
			dest:   entries(dir("d")),
			want: func(r *Phase1Result) {
				r.Identical = []ItemRef{dirRef("d")}
			},
		},
		{
			name:   "symlink targets are compared",
			source: entries(symlink("same", "t"), symlink("moved", "new")),
			dest:   entries(symlink("same", "t"), symlink("moved", "old")),
			want: func(r *Phase1Result) {
				r.LinkMismatch = []ItemRef{{Path: "moved", Kind: walker.KindSymlink}}
				r.Identical = []ItemRef{{Path: "same", Kind: walker.KindSymlink}}
			},
		},
		{
			name:   "paths differing in case are distinct",
			source: entries(file("A.txt", 1, t0)),
			dest:   entries(file("a.txt", 1, t0)),
			opts:   Options{DeleteEnabled: true},
			want: func(r *Phase1Result) {
				r.NewItems = []ItemRef{fileRef("A.txt", 1)}
				r.DeletedItems = []ItemRef{fileRef("a.txt", 1)}
			},
		},
		{
			name:   "deletes below a deleted directory are pruned",
			source: entries(),
			dest:   entries(dir("old"), dir("old/sub"), file("old/sub/f", 1, t0), file("top", 1, t0)),
			opts:   Options{DeleteEnabled: true},
			want: func(r *Phase1Result) {
				r.DeletedItems = []ItemRef{dirRef("old"), fileRef("top", 1)}
			},
		},
		{
			name:   "directory replaced by file",
			source: entries(file("x", 3, t0)),
			dest:   entries(dir("x"), file("x/inner", 1, t0)),
			opts:   Options{DeleteEnabled: true},
			want: func(r *Phase1Result) {
				r.KindMismatch = []ItemRef{fileRef("x", 3)}
			},
		},
		{
			name:   "file replaced by directory",
			source: entries(dir("x"), file("x/inner", 1, t0)),
			dest:   entries(file("x", 3, t0)),
			opts:   Options{DeleteEnabled: true},
			want: func(r *Phase1Result) {
				r.NewItems = []ItemRef{fileRef("x/inner", 1)}
				r.KindMismatch = []ItemRef{dirRef("x")}
			},
		},
		{
			name:   "unreadable source directory keeps destination contents",
			source: entries(dir("locked"), file("other", 1, t0)),
			dest:   entries(dir("locked"), file("locked/file", 1, t0), file("locked/sub/deep", 2, t0), file("gone", 3, t0)),
			opts:   Options{DeleteEnabled: true, SourceIncomplete: map[string]bool{"locked": true}},
			want: func(r *Phase1Result) {
				r.NewItems = []ItemRef{fileRef("other", 1)}
				r.DeletedItems = []ItemRef{fileRef("gone", 3)}
				r.Identical = []ItemRef{dirRef("locked")}
			},
		},
		{
			name:   "unreadable source symlink is not deleted",
			source: entries(),
			dest:   entries(symlink("link", "target"), file("stale", 1, t0)),
			opts:   Options{DeleteEnabled: true, SourceIncomplete: map[string]bool{"link": true}},
			want: func(r *Phase1Result) {
				r.DeletedItems = []ItemRef{fileRef("stale", 1)}
			},
		},
		{
			name:   "unreadable source root deletes nothing",
			source: entries(),
			dest:   entries(file("a", 1, t0), dir("d")),
			opts:   Options{DeleteEnabled: true, SourceIncomplete: map[string]bool{"": true}},
			want:   func(r *Phase1Result) {},
		},
		{
			name: "mixed scenario",
			source: entries(
				file("new.txt", 100, t0),
				file("same.txt", 200, t0),
				file("diff-size.txt", 300, t0),
				file("need-check.txt", 400, t1),
			),
			dest: entries(
				file("same.txt", 200, t0),
				file("diff-size.txt", 350, t0),
				file("need-check.txt", 400, t0),
				file("deleted.txt", 500, t0),
			),
			opts: Options{DeleteEnabled: true},
			want: func(r *Phase1Result) {
				r.NewItems = []ItemRef{fileRef("new.txt", 100)}
				r.DeletedItems = []ItemRef{fileRef("deleted.txt", 500)}
				r.SizeMismatch = []ItemRef{fileRef("diff-size.txt", 300)}
				r.NeedChecksum = []ItemRef{fileRef("need-check.txt", 400)}
				r.Identical = []ItemRef{fileRef("same.txt", 200)}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := emptyPhase1()
			tt.want(&want)

			got := Phase1Compare(tt.source, tt.dest, tt.opts)
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Phase1Compare() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestPhase3GeneratePlan(t *testing.T) {
	tests := []struct {
		name      string
		phase1    Phase1Result
		checksums []ChecksumData
		want      []Operation
	}{
		{
			name: "new items of every kind",
			phase1: Phase1Result{
				NewItems: []ItemRef{
					fileRef("file1.txt", 100),
					dirRef("d"),
					{Path: "l", Kind: walker.KindSymlink},
				},
			},
			want: []Operation{
				{Action: ActionCopyDir, Path: "d", Kind: walker.KindDir, Reason: "new"},
				{Action: ActionCopyFile, Path: "file1.txt", Kind: walker.KindFile, Size: 100, Reason: "new"},
				{Action: ActionCopySymlink, Path: "l", Kind: walker.KindSymlink, Reason: "new"},
			},
		},
		{
			name: "size mismatch files",
			phase1: Phase1Result{
				SizeMismatch: []ItemRef{fileRef("file1.txt", 100)},
			},
			want: []Operation{
				{Action: ActionCopyFile, Path: "file1.txt", Kind: walker.KindFile, Size: 100, Reason: "size differs"},
			},
		},
		{
			name: "checksum differs",
			phase1: Phase1Result{
				NeedChecksum: []ItemRef{fileRef("file1.txt", 100)},
			},
			checksums: []ChecksumData{
				{ItemRef: fileRef("file1.txt", 100), SourceChecksum: "abc123", DestChecksum: "def456"},
			},
			want: []Operation{
				{Action: ActionCopyFile, Path: "file1.txt", Kind: walker.KindFile, Size: 100, Reason: "checksum differs", Checksum: "abc123"},
			},
		},
		{
			name: "checksum matches - no action",
			phase1: Phase1Result{
				NeedChecksum: []ItemRef{fileRef("file1.txt", 100)},
			},
			checksums: []ChecksumData{
				{ItemRef: fileRef("file1.txt", 100), SourceChecksum: "abc123", DestChecksum: "abc123"},
			},
			want: []Operation{},
		},
		{
			name: "missing checksum copies",
			phase1: Phase1Result{
				NeedChecksum: []ItemRef{fileRef("file1.txt", 100)},
			},
			want: []Operation{
				{Action: ActionCopyFile, Path: "file1.txt", Kind: walker.KindFile, Size: 100, Reason: "checksum unavailable"},
			},
		},
		{
			name: "mixed actions with sorting",
			phase1: Phase1Result{
				NewItems:     []ItemRef{fileRef("b.txt", 100), fileRef("a.txt", 200)},
				DeletedItems: []ItemRef{fileRef("z.txt", 300)},
				KindMismatch: []ItemRef{dirRef("c")},
			},
			want: []Operation{
				{Action: ActionCopyDir, Path: "c", Kind: walker.KindDir, Reason: "kind differs"},
				{Action: ActionCopyFile, Path: "a.txt", Kind: walker.KindFile, Size: 200, Reason: "new"},
				{Action: ActionCopyFile, Path: "b.txt", Kind: walker.KindFile, Size: 100, Reason: "new"},
				{Action: ActionDelete, Path: "z.txt", Kind: walker.KindFile, Size: 300, Reason: "not in source"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Phase3GeneratePlan(tt.phase1, tt.checksums)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Phase3GeneratePlan() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPlanCopy(t *testing.T) {
	got := PlanCopy(entries(file("a/f", 1, t0), dir("a"), symlink("l", "a")))
	want := []Operation{
		{Action: ActionCopyDir, Path: "a", Kind: walker.KindDir, Reason: "copy"},
		{Action: ActionCopyFile, Path: "a/f", Kind: walker.KindFile, Size: 1, Reason: "copy"},
		{Action: ActionCopySymlink, Path: "l", Kind: walker.KindSymlink, Reason: "copy"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PlanCopy() = %+v, want %+v", got, want)
	}
}

func TestPlanRemove(t *testing.T) {
	got := PlanRemove(entries(dir("a"), file("a/f", 1, t0), dir("a/b"), file("top", 2, t0)))
	want := []Operation{
		{Action: ActionDelete, Path: "a", Kind: walker.KindDir, Reason: "remove"},
		{Action: ActionDelete, Path: "top", Kind: walker.KindFile, Size: 2, Reason: "remove"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PlanRemove() = %+v, want %+v", got, want)
	}

	if got := PlanRemove(entries()); len(got) != 0 {
		t.Errorf("PlanRemove() on empty tree = %+v, want none", got)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicyFastHash, false},
		{"fast", PolicyFastHash, false},
		{"metadata", PolicyMetadata, false},
		{"secure", PolicySecure, false},
		{"sha256", PolicyFastHash, true},
	}

	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if !tt.wantErr && tt.in != "" && got.String() != tt.in {
			t.Errorf("%v.String() = %q, want %q", got, got.String(), tt.in)
		}
	}
}
