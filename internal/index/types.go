// Package index runs the markup pipeline over a source tree and assembles
// the per-file outputs (HTML lines, line records) and the tree manifest.
package index

import "srcmark/internal/markup"

// Pointer is a jump target derived from a region anchor. ID is stable and
// unique within the bundle; Line is the 1-based line of the opening marker.
type Pointer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Line int    `json:"line"`
}

// ManFile describes a single source file in the manifest.
type ManFile struct {
	Path     string    `json:"path"`               // project-relative path with '/'
	Lang     string    `json:"lang,omitempty"`     // coarse language tag
	Hash     string    `json:"hash"`               // blake3 hex of the contents
	Records  string    `json:"records,omitempty"`  // blake3 hex of the line records
	Bytes    int64     `json:"bytes"`              // file size
	Lines    int       `json:"lines"`              // number of lines, as split by the pipeline
	Regions  int       `json:"regions"`            // region records across all lines
	Refs     int       `json:"refs"`               // ref records across all lines
	Warnings int       `json:"warnings,omitempty"` // pipeline warnings raised for the file
	Pointers []Pointer `json:"pointers,omitempty"` // anchor jump targets
}

// Manifest is the top-level index of a bundle.
type Manifest struct {
	Module   string    `json:"module"`              // human-readable module name
	Build    string    `json:"build,omitempty"`     // detected build system, if any
	RunID    string    `json:"run_id,omitempty"`    // id of the run that produced it
	Files    []ManFile `json:"files"`               // sorted by Path
	BundleID string    `json:"bundle_id,omitempty"` // blake3 over sorted "path:hash\n"
}

// FileIndex is everything the pipeline produced for one file. HTML and
// Lines have one entry per line of the file; Text is the input they were
// computed from.
type FileIndex struct {
	Path     string
	Text     string
	Lang     string
	Hash     string
	LinesKey string // cache.LinesKey(Lines)
	Bytes    int64
	HTML     []string
	Lines    []markup.LineRecord
	Warnings []*markup.Warning
	Pointers []Pointer
}
