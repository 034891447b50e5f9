// Package plugins holds the annotation producers shipped with srcmark.
//
// A producer looks at one file and emits region and ref spans over its
// bytes. Producers know nothing about each other; their spans are simply
// concatenated and handed to the markup pipeline, which resolves overlaps.
package plugins

import (
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"srcmark/internal/markup"
	"srcmark/internal/textutil"
)

// Annotations are the spans one or more producers emitted for a file.
type Annotations struct {
	Regions []markup.RegionSpan
	Refs    []markup.RefSpan
}

// Merge appends the spans of o.
func (a *Annotations) Merge(o Annotations) {
	a.Regions = append(a.Regions, o.Regions...)
	a.Refs = append(a.Refs, o.Refs...)
}

// Producer annotates a single file. path is the project-relative path with
// '/' separators; text is the full file contents.
type Producer interface {
	Name() string
	Annotate(path, text string) (Annotations, error)
}

// ForFile returns the producers that apply to relPath, in a fixed order:
// anchors first, then the language producer (if any), then the sidecar
// reader rooted at root. Passing an empty root disables the sidecar.
func ForFile(root, relPath string) []Producer {
	ps := []Producer{Anchors{}}
	switch InferLangByExt(filepath.Ext(relPath)) {
	case "go":
		ps = append(ps, GoSymbols{})
	case "py":
		ps = append(ps, PySymbols{})
	case "java", "kt", "cs", "ts":
		ps = append(ps, DeclSymbols{Lang: InferLangByExt(filepath.Ext(relPath))})
	}
	if root != "" {
		ps = append(ps, Sidecar{Root: root})
	}
	return ps
}

// Without drops the producers named in names. A bare family name such as
// "declsyms" also matches its per-language variants ("declsyms-java").
func Without(ps []Producer, names []string) []Producer {
	if len(names) == 0 {
		return ps
	}
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[strings.TrimSpace(n)] = struct{}{}
	}
	out := ps[:0:0]
	for _, p := range ps {
		family, _, _ := strings.Cut(p.Name(), "-")
		_, byName := drop[p.Name()]
		_, byFamily := drop[family]
		if !byName && !byFamily {
			out = append(out, p)
		}
	}
	return out
}

// SupportedLangs lists the language tags that have a symbol producer.
func SupportedLangs() []string {
	return []string{"cs", "go", "java", "kt", "py", "ts"}
}

// joinSym concatenates package, type and member into a qualified symbol name.
// Empty segments are skipped; dots are inserted only between non-empty parts.
//
//	joinSym("acme", "Server", "start") => "acme.Server.start"
//	joinSym("", "Server", "start")     => "Server.start"
func joinSym(pkg, typ, name string) string {
	var parts []string
	for _, p := range []string{pkg, typ, name} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// InferLangByExt returns a coarse language tag for a file extension. It is
// case-insensitive and accepts the extension with or without a leading dot.
// Unknown extensions map to "".
func InferLangByExt(ext string) string {
	e := strings.TrimSpace(strings.ToLower(ext))
	if e == "" {
		return ""
	}
	if e[0] != '.' {
		e = "." + e
	}

	switch e {
	case ".go":
		return "go"
	case ".py":
		return "py"
	case ".java":
		return "java"
	case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs":
		return "ts"
	case ".kt":
		return "kt"
	case ".cs":
		return "cs"
	case ".cpp", ".cc", ".cxx", ".hpp", ".hh", ".h":
		return "cpp"
	default:
		return ""
	}
}

// symbolMenu builds the context menu shared by the symbol producers: a jump
// to the definition line and a search for the qualified name.
func symbolMenu(qualified string, line int) markup.Ref {
	return markup.Ref{
		MenuItems: []markup.MenuItem{
			{
				HTML:  "Jump to definition",
				Title: "Go to the definition of " + qualified,
				Href:  "#L" + strconv.Itoa(line),
				Icon:  "field",
			},
			{
				HTML:  "Search for " + qualified,
				Title: "Find uses of " + qualified,
				Href:  "/search?q=" + url.QueryEscape(qualified),
				Icon:  "search",
			},
		},
		Hover: qualified,
	}
}

// lineIndex maps byte offsets to 1-based line numbers, with the same line
// breaks the markup pipeline uses.
type lineIndex []int

func newLineIndex(text string) lineIndex {
	return lineIndex(textutil.LineStarts(textutil.SplitLines(text)))
}

func (li lineIndex) lineOf(off int) int {
	// number of line starts <= off
	return sort.Search(len(li), func(i int) bool { return li[i] > off })
}
