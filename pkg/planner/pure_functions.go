package planner

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/yuya-takeyama/lms/internal/checksum"
	"github.com/yuya-takeyama/lms/internal/walker"
)

// Phase1Compare joins both trees on their relative paths and classifies
// every path without touching file contents. Paths are compared byte for
// byte.
func Phase1Compare(source, dest walker.Entries, opts Options) Phase1Result {
	result := Phase1Result{
		NewItems:        []ItemRef{},
		DeletedItems:    []ItemRef{},
		KindMismatch:    []ItemRef{},
		SizeMismatch:    []ItemRef{},
		ModTimeMismatch: []ItemRef{},
		LinkMismatch:    []ItemRef{},
		NeedChecksum:    []ItemRef{},
		Identical:       []ItemRef{},
	}

	// Destination directories that a copy of another kind will replace
	// wholesale.
	replacedDirs := map[string]bool{}

	for p, srcItem := range source {
		ref := ItemRef{Path: p, Kind: srcItem.Kind, Size: srcItem.Size}

		destItem, exists := dest[p]
		if !exists {
			result.NewItems = append(result.NewItems, ref)
			continue
		}

		if srcItem.Kind != destItem.Kind {
			result.KindMismatch = append(result.KindMismatch, ref)
			if destItem.Kind == walker.KindDir {
				replacedDirs[p] = true
			}
			continue
		}

		switch srcItem.Kind {
		case walker.KindDir:
			result.Identical = append(result.Identical, ref)
		case walker.KindSymlink:
			if srcItem.LinkTarget == destItem.LinkTarget {
				result.Identical = append(result.Identical, ref)
			} else {
				result.LinkMismatch = append(result.LinkMismatch, ref)
			}
		default:
			compareFiles(&result, ref, srcItem, destItem, opts.Policy)
		}
	}

	if opts.DeleteEnabled {
		deletedDirs := map[string]bool{}
		for p, destItem := range dest {
			if _, exists := source[p]; !exists && destItem.Kind == walker.KindDir {
				deletedDirs[p] = true
			}
		}

		for p, destItem := range dest {
			if _, exists := source[p]; exists {
				continue
			}
			// Removed together with an ancestor.
			if hasAncestorIn(p, deletedDirs) || hasAncestorIn(p, replacedDirs) {
				continue
			}
			if isUnder(p, opts.SourceIncomplete) {
				continue
			}
			result.DeletedItems = append(result.DeletedItems, ItemRef{
				Path: p,
				Kind: destItem.Kind,
				Size: destItem.Size,
			})
		}
	}

	sortPhase1Result(&result)
	return result
}

func compareFiles(result *Phase1Result, ref ItemRef, src, dest walker.Entry, policy Policy) {
	if src.Size != dest.Size {
		result.SizeMismatch = append(result.SizeMismatch, ref)
		return
	}

	sameModTime := src.ModTime.Equal(dest.ModTime)

	switch policy {
	case PolicySecure:
		result.NeedChecksum = append(result.NeedChecksum, ref)
	case PolicyMetadata:
		if sameModTime {
			result.Identical = append(result.Identical, ref)
		} else {
			result.ModTimeMismatch = append(result.ModTimeMismatch, ref)
		}
	default:
		if sameModTime {
			result.Identical = append(result.Identical, ref)
		} else {
			result.NeedChecksum = append(result.NeedChecksum, ref)
		}
	}
}

func hasAncestorIn(p string, dirs map[string]bool) bool {
	if len(dirs) == 0 {
		return false
	}
	for dir := path.Dir(p); dir != "." && dir != "/" && dir != ""; dir = path.Dir(dir) {
		if dirs[dir] {
			return true
		}
	}
	return false
}

// isUnder reports whether p or one of its ancestors is in dirs, where ""
// stands for the root.
func isUnder(p string, dirs map[string]bool) bool {
	if len(dirs) == 0 {
		return false
	}
	return dirs[""] || dirs[p] || hasAncestorIn(p, dirs)
}

// Phase3GeneratePlan turns the classification and the collected checksums
// into operations. Identical items produce nothing.
func Phase3GeneratePlan(phase1 Phase1Result, checksums []ChecksumData) []Operation {
	items := []Operation{}

	add := func(refs []ItemRef, reason string) {
		for _, ref := range refs {
			items = append(items, Operation{
				Action: CopyAction(ref.Kind),
				Path:   ref.Path,
				Kind:   ref.Kind,
				Size:   ref.Size,
				Reason: reason,
			})
		}
	}

	add(phase1.NewItems, "new")
	add(phase1.KindMismatch, "kind differs")
	add(phase1.SizeMismatch, "size differs")
	add(phase1.ModTimeMismatch, "mtime differs")
	add(phase1.LinkMismatch, "link target differs")

	checksumMap := make(map[string]ChecksumData)
	for _, cs := range checksums {
		checksumMap[cs.ItemRef.Path] = cs
	}

	for _, ref := range phase1.NeedChecksum {
		op := Operation{
			Action: ActionCopyFile,
			Path:   ref.Path,
			Kind:   ref.Kind,
			Size:   ref.Size,
		}

		cs, exists := checksumMap[ref.Path]
		switch {
		case !exists:
			op.Reason = "checksum unavailable"
		case cs.Err != nil:
			op.Reason = fmt.Sprintf("checksum failed: %v", cs.Err)
		case checksum.CompareChecksums(cs.SourceChecksum, cs.DestChecksum):
			continue
		default:
			op.Reason = "checksum differs"
			op.Checksum = cs.SourceChecksum
		}
		items = append(items, op)
	}

	for _, ref := range phase1.DeletedItems {
		items = append(items, Operation{
			Action: ActionDelete,
			Path:   ref.Path,
			Kind:   ref.Kind,
			Size:   ref.Size,
			Reason: "not in source",
		})
	}

	SortOperations(items)
	return items
}

// PlanCopy copies every entry unconditionally.
func PlanCopy(source walker.Entries) []Operation {
	items := make([]Operation, 0, len(source))
	for p, entry := range source {
		items = append(items, Operation{
			Action: CopyAction(entry.Kind),
			Path:   p,
			Kind:   entry.Kind,
			Size:   entry.Size,
			Reason: "copy",
		})
	}
	SortOperations(items)
	return items
}

// PlanRemove deletes each top-level entry; subtrees go with their top-level
// directory.
func PlanRemove(target walker.Entries) []Operation {
	items := []Operation{}
	for p, entry := range target {
		if strings.Contains(p, "/") {
			continue
		}
		items = append(items, Operation{
			Action: ActionDelete,
			Path:   p,
			Kind:   entry.Kind,
			Size:   entry.Size,
			Reason: "remove",
		})
	}
	SortOperations(items)
	return items
}

// SortOperations orders by action, then path.
func SortOperations(items []Operation) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Action != items[j].Action {
			return items[i].Action < items[j].Action
		}
		return items[i].Path < items[j].Path
	})
}

func sortPhase1Result(result *Phase1Result) {
	sortItemRefs := func(refs []ItemRef) {
		sort.Slice(refs, func(i, j int) bool {
			return refs[i].Path < refs[j].Path
		})
	}

	sortItemRefs(result.NewItems)
	sortItemRefs(result.DeletedItems)
	sortItemRefs(result.KindMismatch)
	sortItemRefs(result.SizeMismatch)
	sortItemRefs(result.ModTimeMismatch)
	sortItemRefs(result.LinkMismatch)
	sortItemRefs(result.NeedChecksum)
	sortItemRefs(result.Identical)
}
