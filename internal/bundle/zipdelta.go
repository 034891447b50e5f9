package bundle

// This file implements the delta ZIP writer. It creates a reproducible
// archive with the following layout:
//
//	delta.index.json            # JSON index describing the delta
//	delta.patch                 # all patches concatenated (sorted by name)
//	diffs/<name>.patch          # per-file patches (sorted by name)
//	added/html/<path>.html      # rendered lines of newly added files
//	added/lines/<path>.jsonl    # line records of newly added files
//	README.md

import (
	"archive/zip"
	"fmt"
	"sort"
	"strings"

	"srcmark/internal/cache"
	"srcmark/internal/index"
	"srcmark/internal/ziputil"
)

// DeltaIndex is written to delta.index.json. Slices are never null.
type DeltaIndex struct {
	Module       string           `json:"module"`
	BaseRunID    string           `json:"baseRunId,omitempty"`
	HeadRunID    string           `json:"headRunId,omitempty"`
	BaseBundleID string           `json:"baseBundleId,omitempty"`
	HeadBundleID string           `json:"headBundleId,omitempty"`
	Added        []cache.SnapFile `json:"added"`
	Removed      []cache.SnapFile `json:"removed"`
	Renamed      []cache.Rename   `json:"renamed"`
	Changed      []DeltaPatch     `json:"changed"`
}

// NewDeltaIndex assembles the index for a delta between prev and the head
// manifest. changed usually comes from MakeDeltaDiffs.
func NewDeltaIndex(prev *cache.Snapshot, head index.Manifest, d cache.Delta, changed []DeltaPatch) DeltaIndex {
	di := DeltaIndex{
		Module:       head.Module,
		HeadRunID:    head.RunID,
		HeadBundleID: head.BundleID,
		Added:        append([]cache.SnapFile{}, d.Added...),
		Removed:      append([]cache.SnapFile{}, d.Removed...),
		Renamed:      append([]cache.Rename{}, d.Renamed...),
		Changed:      append([]DeltaPatch{}, changed...),
	}
	if prev != nil {
		di.BaseRunID = prev.RunID
		di.BaseBundleID = prev.BundleID
	}
	return di
}

// WriteDelta writes a delta ZIP archive:
//
//	zipPath  - output .zip path
//	di       - written to delta.index.json
//	patches  - map[name]body (text patches). Names are sanitized and sorted.
//	added    - index of the files listed in di.Added
//	readme   - README options; Files and Bytes describe the head tree
//
// Duplicate names after sanitization are de-duplicated with a numeric
// suffix (-1, -2, …) to avoid ZIP entry conflicts in rare edge cases.
func WriteDelta(zipPath string, di DeltaIndex, patches map[string]string, added []index.FileIndex, readme ReadmeOptions) error {
	return writeZip(zipPath, func(zw *zip.Writer) error {
		if err := ziputil.WriteJSON(zw, "delta.index.json", di); err != nil {
			return err
		}

		names := make([]string, 0, len(patches))
		for n := range patches {
			names = append(names, n)
		}
		sort.Strings(names)

		var all strings.Builder
		for _, n := range names {
			all.WriteString(patches[n])
			if !strings.HasSuffix(patches[n], "\n") {
				all.WriteByte('\n')
			}
		}
		if err := ziputil.WriteText(zw, "delta.patch", []byte(all.String())); err != nil {
			return err
		}

		used := make(map[string]struct{}, len(names)+2*len(added))
		for _, n := range names {
			entry := ziputil.EnsureUniqueName(ziputil.SanitizePath("diffs/"+n), used)
			if err := ziputil.WriteText(zw, entry, []byte(patches[n])); err != nil {
				return err
			}
		}

		for _, fi := range sortedByPath(added) {
			if err := ziputil.WriteLines(zw, ziputil.EnsureUniqueName(ziputil.SanitizePath("added/"+htmlEntry(fi.Path)), used), fi.HTML); err != nil {
				return err
			}
			w, err := ziputil.Create(zw, ziputil.EnsureUniqueName(ziputil.SanitizePath("added/"+linesEntry(fi.Path)), used))
			if err != nil {
				return err
			}
			if err := cache.EncodeLines(w, fi.Lines); err != nil {
				return fmt.Errorf("write added %s: %w", fi.Path, err)
			}
		}

		if readme.ModuleName == "" {
			readme.ModuleName = di.Module
		}
		return ziputil.WriteText(zw, "README.md", GenerateDeltaReadme(readme))
	})
}
