// Package validate checks bundle artifacts for structural and semantic
// constraints that commonly catch bad output. It is not a JSON-Schema
// validator. Every check aggregates all issues into a single error.
package validate

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"srcmark/internal/index"
	"srcmark/internal/markup"
	"srcmark/internal/textutil"
)

// Manifest validates high-level constraints on the assembled manifest:
//
//   - Module should be non-empty.
//   - Each file must have a normalized relative path (no absolute, no "..").
//   - Hash must be a 64-char lowercase hex (blake3-256).
//   - Lines, Regions and Refs are non-negative; a non-empty file has lines.
//   - Pointers have non-empty IDs, unique across the bundle, on lines that exist.
//   - No duplicate file paths; files sorted by path.
//   - BundleID, when present, matches the file list.
func Manifest(m index.Manifest) error {
	var errs errlist

	if strings.TrimSpace(m.Module) == "" {
		errs.add("manifest.module must be non-empty")
	}

	seen := make(map[string]struct{}, len(m.Files))
	ids := make(map[string]string)
	for i, f := range m.Files {
		prefix := fmt.Sprintf("files[%d] (%s)", i, f.Path)
		checkPath(&errs, prefix, f.Path)

		if _, dup := seen[f.Path]; dup {
			errs.add("%s: duplicate file path %q", prefix, f.Path)
		} else if f.Path != "" {
			seen[f.Path] = struct{}{}
		}

		if !reHex64.MatchString(f.Hash) {
			errs.add("%s: hash must be 64 lowercase hex chars (blake3), got %q", prefix, f.Hash)
		}
		if f.Records != "" && !reHex64.MatchString(f.Records) {
			errs.add("%s: records must be 64 lowercase hex chars (blake3), got %q", prefix, f.Records)
		}
		if f.Lines < 0 || f.Regions < 0 || f.Refs < 0 || f.Bytes < 0 {
			errs.add("%s: counts must be non-negative", prefix)
		}
		if f.Bytes > 0 && f.Lines == 0 {
			errs.add("%s: %d bytes but no lines", prefix, f.Bytes)
		}

		for j, p := range f.Pointers {
			pp := fmt.Sprintf("%s.pointers[%d] (%s)", prefix, j, p.ID)
			if strings.TrimSpace(p.ID) == "" {
				errs.add("%s: id must be non-empty", pp)
			} else if other, dup := ids[p.ID]; dup {
				errs.add("%s: id already used by %s", pp, other)
			} else {
				ids[p.ID] = f.Path
			}
			if p.Line < 1 || p.Line > f.Lines {
				errs.add("%s: line must be in [1, %d], got %d", pp, f.Lines, p.Line)
			}
		}
	}

	if !isSortedByPath(m.Files) {
		errs.add("manifest.files should be sorted by path for deterministic bundles")
	}
	if m.BundleID != "" && m.BundleID != index.ComputeBundleID(m) {
		errs.add("manifest.bundle_id does not match the file list")
	}

	return errs.err()
}

// LineRecords validates the records of one file against its text:
//
//   - exactly one record per line
//   - every span satisfies 0 <= start < end <= len(line), terminator included
//   - refs on one line never cross each other (nested or disjoint only)
//
// Region classes are opaque; an empty class renders as class="".
func LineRecords(path, text string, records []markup.LineRecord) error {
	var errs errlist
	lines := textutil.SplitLines(text)
	if len(records) != len(lines) {
		errs.add("%s: %d records for %d lines", path, len(records), len(lines))
	}
	for i, rec := range records {
		if i >= len(lines) {
			break
		}
		prefix := fmt.Sprintf("%s:%d", path, i+1)
		size := len(lines[i])
		if rec.Refs == nil || rec.Regions == nil {
			errs.add("%s: refs and regions must be lists, not null", prefix)
		}
		for j, r := range rec.Regions {
			checkExtent(&errs, fmt.Sprintf("%s regions[%d]", prefix, j), r.Start, r.End, size)
		}
		for j, r := range rec.Refs {
			checkExtent(&errs, fmt.Sprintf("%s refs[%d]", prefix, j), r.Start, r.End, size)
		}
		if a, b, ok := crossingRefs(rec.Refs); ok {
			errs.add("%s: refs[%d] and refs[%d] cross", prefix, a, b)
		}
	}
	return errs.err()
}

// --- helpers -----------------------------------------------------------------

var reHex64 = regexp.MustCompile(`^[0-9a-f]{64}$`)

func checkPath(errs *errlist, prefix, p string) {
	if p == "" {
		errs.add("%s: path must be non-empty", prefix)
		return
	}
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		errs.add("%s: path must be relative, got %q", prefix, p)
	}
	if strings.Contains(p, `\`) {
		errs.add("%s: path must use forward slashes ('/'), found backslash", prefix)
	}
	if hasDotDot(p) {
		errs.add("%s: path must not contain '..' segments (got %q)", prefix, p)
	}
}

func checkExtent(errs *errlist, prefix string, start, end, size int) {
	if start < 0 || start >= end || end > size {
		errs.add("%s: span [%d,%d) outside line of %d bytes or empty", prefix, start, end, size)
	}
}

// crossingRefs returns the first pair of refs that overlap without nesting.
func crossingRefs(refs []markup.RefRecord) (int, int, bool) {
	for i := range refs {
		for j := i + 1; j < len(refs); j++ {
			a, b := refs[i], refs[j]
			overlap := a.Start < b.End && b.Start < a.End
			nested := (a.Start <= b.Start && b.End <= a.End) || (b.Start <= a.Start && a.End <= b.End)
			if overlap && !nested {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func hasDotDot(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func isSortedByPath(files []index.ManFile) bool {
	return sort.SliceIsSorted(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}

// errlist aggregates multiple validation issues into a single error.
type errlist struct {
	msgs []string
}

func (e *errlist) add(format string, args ...any) {
	if e == nil {
		return
	}
	e.msgs = append(e.msgs, fmt.Sprintf(format, args...))
}

func (e *errlist) err() error {
	if e == nil || len(e.msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(e.msgs, "\n"))
}
