// Package bundle writes reproducible bundles (full and delta) and the patches
// that go into them.
//
// Patch generation returns map[patchName]patchBody. Names are Windows-safe,
// unique, and identical for identical input; the writers sort them, so the
// map never leaks iteration order into an archive.
package bundle

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"srcmark/internal/cache"
	"srcmark/internal/diff"
	"srcmark/internal/index"
	"srcmark/internal/markup"
)

// invalidFileCharsRe contains characters that are invalid in Windows filenames.
var invalidFileCharsRe = regexp.MustCompile(`[\\:*?"<>|]`)

// safeDiffBase returns a filesystem-safe base name for a patch (without .patch extension):
// it replaces slashes with '_' and removes invalid characters.
func safeDiffBase(p string) string {
	base := strings.ReplaceAll(p, "\\", "/")
	base = strings.ReplaceAll(base, "/", "_")
	base = invalidFileCharsRe.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, "._")
	if base == "" {
		base = "patch"
	}
	return base
}

// shortHash returns the first 8 hex characters of the blake3 hash of s.
func shortHash(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

// uniquePatchName constructs a unique patch filename considering names already used.
// If base+".patch" is taken, it appends hashHint (or a hash of the base)
// until a free name is found. Returns only the filename (no directories).
func uniquePatchName(base, hashHint string, used map[string]struct{}) string {
	name := base + ".patch"
	if _, ok := used[name]; !ok {
		used[name] = struct{}{}
		return name
	}
	suffix := hashHint[:min(len(hashHint), 8)]
	if suffix == "" {
		suffix = shortHash(base)
	}
	name = base + "-" + suffix + ".patch"
	if _, ok := used[name]; !ok {
		used[name] = struct{}{}
		return name
	}
	name = base + "-" + suffix + "-" + shortHash(base+suffix) + ".patch"
	used[name] = struct{}{}
	return name
}

// SkimFunc re-runs the stored records of fi through the pipeline and returns
// the records it projects (see cache.SkimLines). ok is false when nothing is
// stored for the file.
type SkimFunc func(fi index.FileIndex) (lines []markup.LineRecord, ok bool, err error)

// VerifyReport is the outcome of comparing fresh and skim projections.
type VerifyReport struct {
	Checked int               // files that had stored records
	Skipped []string          // files without stored records
	Drifted []string          // files whose records differ, sorted
	Patches map[string]string // patch name -> unified diff, one per drifted file
}

// OK reports whether every checked file projected identically.
func (r VerifyReport) OK() bool { return len(r.Drifted) == 0 }

// MakeVerifyDiffs compares the fresh line records of each file with the
// records its skim rendering projects, both in canonical form, and returns
// a unified patch of the JSON lines for every file that differs. Nesting
// order is not compared: rebuilding spans per line may legitimately nest
// tags differently than the fresh run did.
func MakeVerifyDiffs(files []index.FileIndex, skim SkimFunc, opt diff.Options) (VerifyReport, error) {
	rep := VerifyReport{Patches: map[string]string{}}
	used := make(map[string]struct{})
	for _, fi := range files {
		stored, ok, err := skim(fi)
		if err != nil {
			return rep, fmt.Errorf("skim %s: %w", fi.Path, err)
		}
		if !ok {
			rep.Skipped = append(rep.Skipped, fi.Path)
			continue
		}
		rep.Checked++
		a, err := canonicalLines(fi.Lines)
		if err != nil {
			return rep, fmt.Errorf("encode %s: %w", fi.Path, err)
		}
		b, err := canonicalLines(stored)
		if err != nil {
			return rep, fmt.Errorf("encode skim of %s: %w", fi.Path, err)
		}
		entry := linesEntry(fi.Path)
		body, _ := diff.Lines("fresh/"+entry, "skim/"+entry, a, b, opt)
		if body == "" {
			continue
		}
		rep.Drifted = append(rep.Drifted, fi.Path)
		rep.Patches[uniquePatchName(safeDiffBase(fi.Path), fi.Hash, used)] = body
	}
	sort.Strings(rep.Drifted)
	return rep, nil
}

// canonicalLines encodes the canonical form of each record as one JSON line.
func canonicalLines(recs []markup.LineRecord) ([]string, error) {
	canon := make([]markup.LineRecord, len(recs))
	for i, r := range recs {
		canon[i] = r.Canonical()
	}
	data, err := encodeRecords(canon)
	if err != nil || len(data) == 0 {
		return nil, err
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n"), nil
}

// DeltaPatch describes one changed file in a delta bundle.
type DeltaPatch struct {
	Path       string `json:"path"`
	HashBefore string `json:"hashBefore"`
	HashAfter  string `json:"hashAfter"`
	Diff       string `json:"diff"`
	Oversize   bool   `json:"oversize,omitempty"`
}

// MakeDeltaDiffs diffs the line records of every changed file in d.
//   - files: current index (to obtain the "b" records).
//   - readOld: obtains the "a" records by their records key (may be nil).
//
// When the old records are unavailable, an "added-only" patch is generated.
func MakeDeltaDiffs(
	d cache.Delta,
	files []index.FileIndex,
	opt diff.Options,
	readOld func(key string) ([]markup.LineRecord, error),
) (map[string]string, []DeltaPatch, error) {
	byPath := make(map[string]index.FileIndex, len(files))
	for _, f := range files {
		byPath[f.Path] = f
	}

	out := make(map[string]string, len(d.Changed))
	entries := make([]DeltaPatch, 0, len(d.Changed))
	used := make(map[string]struct{}, len(d.Changed))

	for _, chg := range d.Changed {
		var a []byte
		if readOld != nil && chg.RecordsBefore != "" {
			if recs, err := readOld(chg.RecordsBefore); err == nil {
				if a, err = encodeRecords(recs); err != nil {
					return nil, nil, err
				}
			}
		}
		fi, ok := byPath[chg.Path]
		if !ok {
			return nil, nil, fmt.Errorf("changed file %s is not in the index", chg.Path)
		}
		b, err := encodeRecords(fi.Lines)
		if err != nil {
			return nil, nil, err
		}

		from, to := opt.Names(linesEntry(chg.Path))
		var body string
		var oversize bool
		if a == nil {
			body, oversize = diff.Added(to, b, opt)
		} else {
			body, oversize = diff.Unified(from, to, a, b, opt)
		}
		if body == "" {
			// Content changed without a change in the records.
			continue
		}

		name := uniquePatchName(safeDiffBase(chg.Path), chg.HashAfter, used)
		out[name] = body
		entries = append(entries, DeltaPatch{
			Path:       chg.Path,
			HashBefore: chg.HashBefore,
			HashAfter:  chg.HashAfter,
			Diff:       "diffs/" + name,
			Oversize:   oversize,
		})
	}
	return out, entries, nil
}

func encodeRecords(recs []markup.LineRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := cache.EncodeLines(&buf, recs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
