package bundle

import (
	"bytes"
	"sort"
	"strings"
	"text/template"

	"github.com/dustin/go-humanize"
)

// ReadmeOptions configures README generation for FULL and DELTA bundles.
// All fields are rendered deterministically; no timestamps or environment data.
type ReadmeOptions struct {
	ModuleName     string
	Build          string
	BundleID       string
	SupportedLangs []string
	PresentLangs   []string
	Files          int
	Lines          int
	Bytes          int64
	Warnings       int
	DiffNoPrefix   bool
	ContextLines   int
}

type rdCtx struct {
	ModuleName        string
	Build             string
	BundleID          string
	SupportedLangsCSV string
	PresentLangsCSV   string
	Files             string
	Lines             string
	Size              string
	Warnings          int
	DiffNoPrefix      bool
	ContextLines      int
}

const fullReadmeTemplate = `
# {{.ModuleName}}

This archive is a **FULL bundle** produced by *srcmark*. Every source file is
rendered to per-line HTML with balanced markup, next to the per-line index
records the HTML was built from.

## Summary
- Files: **{{.Files}}**, lines: **{{.Lines}}**, source size: **{{.Size}}**.
{{- if .Build}}
- Build system: {{.Build}}.
{{- end}}
{{- if .BundleID}}
- Bundle id: ` + "`{{.BundleID}}`" + `.
{{- end}}
{{- if .Warnings}}
- Pipeline warnings: {{.Warnings}} (see manifest.json, per file).
{{- end}}

## Bundle layout
- **manifest.json**: files with hash, size, line/region/ref counts and anchor pointers.
- **BUNDLE.ID**: blake3 over the sorted "path:hash" lines of the manifest.
- **TOC.md**: table of contents with anchor links.
- **html/<path>.html**: one HTML fragment per source line. Tags never cross a line break.
- **lines/<path>.jsonl**: one JSON object per source line with "refs" and "regions".

## Line records
- Line numbers are **1-based**; offsets in records are **bytes** relative to the start of the line.
- Every span is half-open with start < end; end may include the line terminator but never passes it.
- Region payloads are class names. Ref payloads carry "menuitems" and optional "hover".
- Consumers should ignore unknown fields; menu items may carry extra plugin fields.

## Conventions
- Line breaks: ` + "`\\n`, `\\r\\n` and a bare `\\r`" + ` all end a line.
- Supported languages: {{.SupportedLangsCSV}}.
- Present in this bundle: {{.PresentLangsCSV}}.
`

const deltaReadmeTemplate = `
# {{.ModuleName}}: DELTA bundle

This archive is a **DELTA bundle** produced by *srcmark*. It contains the
changes to the line index since the previous run.

## Layout
- **delta.index.json**: machine-readable delta (added, removed, renamed, changed).
- **delta.patch**: all per-file patches concatenated, sorted by name.
- **diffs/**: unified diffs of the line records (` + "`lines/<path>.jsonl`" + `) of changed files.
- **added/**: HTML and line records of newly added files.

## Conventions
- Unified diff context: **{{.ContextLines}}** lines.
- Git-style prefixes **a/** and **b/** are {{if .DiffNoPrefix}}**omitted**{{else}}**present**{{end}}.
- Files now in the bundle: **{{.Files}}** ({{.Size}}).
- Supported languages: {{.SupportedLangsCSV}}.
- Present in this bundle: {{.PresentLangsCSV}}.

## Oversize diffs
Patches over the configured size limit are replaced by a placeholder hunk:
--- <old>
+++ <new>
@@
# diff omitted (oversize)
`

var (
	fullReadme  = template.Must(template.New("full").Parse(fullReadmeTemplate))
	deltaReadme = template.Must(template.New("delta").Parse(deltaReadmeTemplate))
)

func GenerateFullReadme(opts ReadmeOptions) []byte {
	return renderReadme(fullReadme, opts)
}

func GenerateDeltaReadme(opts ReadmeOptions) []byte {
	return renderReadme(deltaReadme, opts)
}

func renderReadme(t *template.Template, opts ReadmeOptions) []byte {
	name := strings.TrimSpace(opts.ModuleName)
	if name == "" {
		name = "srcmark bundle"
	}

	ctx := rdCtx{
		ModuleName:        name,
		Build:             opts.Build,
		BundleID:          opts.BundleID,
		SupportedLangsCSV: sortedCSV(opts.SupportedLangs),
		PresentLangsCSV:   sortedCSV(opts.PresentLangs),
		Files:             humanize.Comma(int64(opts.Files)),
		Lines:             humanize.Comma(int64(opts.Lines)),
		Size:              humanize.Bytes(uint64(max(opts.Bytes, 0))),
		Warnings:          opts.Warnings,
		DiffNoPrefix:      opts.DiffNoPrefix,
		ContextLines:      opts.ContextLines,
	}

	var buf bytes.Buffer
	_ = t.Execute(&buf, ctx)
	// Normalize lines: strip trailing spaces and the leading blank line.
	lines := strings.Split(strings.TrimLeft(buf.String(), "\n"), "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimRight(ln, " \t")
	}
	out := strings.Join(lines, "\n")
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return []byte(out)
}

func sortedCSV(list []string) string {
	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, l := range list {
		l = strings.TrimSpace(l)
		if _, dup := seen[l]; l == "" || dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	if len(out) == 0 {
		return "none"
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
