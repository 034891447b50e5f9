package plugins

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"srcmark/internal/markup"
)

// SidecarSuffix is appended to a source path to locate its annotation file.
const SidecarSuffix = ".annotations.json"

// Sidecar reads precomputed spans from "<file>.annotations.json" next to the
// source file. It is how external analyzers feed the pipeline. A missing
// sidecar yields no spans and no error.
//
// Format:
//
//	{
//	  "plugin":  "ctags",
//	  "regions": [{"start": 0, "end": 4, "class": "k"}],
//	  "refs":    [{"start": 5, "end": 9, "ref": {"menuitems": [...], "hover": "..."}}]
//	}
//
// A null start or end is accepted and reaches the pipeline as
// markup.NoOffset, which drops the span with a warning.
type Sidecar struct {
	Root string
}

func (Sidecar) Name() string { return "sidecar" }

type sidecarFile struct {
	Plugin  string          `json:"plugin"`
	Regions []sidecarRegion `json:"regions"`
	Refs    []sidecarRef    `json:"refs"`
}

type sidecarRegion struct {
	Start *int   `json:"start"`
	End   *int   `json:"end"`
	Class string `json:"class"`
}

type sidecarRef struct {
	Start *int       `json:"start"`
	End   *int       `json:"end"`
	Ref   markup.Ref `json:"ref"`
}

func (s Sidecar) Annotate(relPath string, _ string) (Annotations, error) {
	p := filepath.Join(s.Root, filepath.FromSlash(relPath)) + SidecarSuffix
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return Annotations{}, nil
	}
	if err != nil {
		return Annotations{}, fmt.Errorf("read sidecar %s: %w", p, err)
	}
	return ParseSidecar(data, s.Name())
}

// ParseSidecar decodes a sidecar document. defaultPlugin labels the spans
// when the document does not name its producer.
func ParseSidecar(data []byte, defaultPlugin string) (Annotations, error) {
	var f sidecarFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Annotations{}, fmt.Errorf("parse sidecar: %w", err)
	}
	plugin := f.Plugin
	if plugin == "" {
		plugin = defaultPlugin
	}
	var out Annotations
	for _, r := range f.Regions {
		out.Regions = append(out.Regions, markup.RegionSpan{
			Start:  offsetOrNone(r.Start),
			End:    offsetOrNone(r.End),
			Class:  r.Class,
			Plugin: plugin,
		})
	}
	for _, r := range f.Refs {
		out.Refs = append(out.Refs, markup.RefSpan{
			Start:  offsetOrNone(r.Start),
			End:    offsetOrNone(r.End),
			Ref:    r.Ref,
			Plugin: plugin,
		})
	}
	return out, nil
}

func offsetOrNone(p *int) int {
	if p == nil {
		return markup.NoOffset
	}
	return *p
}
