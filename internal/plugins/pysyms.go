package plugins

import (
	"path"
	"regexp"
	"strings"

	"srcmark/internal/markup"
)

var (
	rePyClass = regexp.MustCompile(`(?m)^[ \t]*(class)[ \t]+([A-Za-z_]\w*)[ \t]*[(:]`)
	rePyDef   = regexp.MustCompile(`(?m)^([ \t]*)(?:async[ \t]+)?(def)[ \t]+([A-Za-z_]\w*)[ \t]*\(`)
)

// PySymbols marks Python class and def names. The module name comes from
// the file path (dir/sub/mod.py -> dir.sub.mod; __init__.py names its
// package). Indented defs are qualified with the nearest preceding class.
type PySymbols struct{}

func (PySymbols) Name() string { return "pysyms" }

func (p PySymbols) Annotate(relPath string, text string) (Annotations, error) {
	var out Annotations
	region := func(start, end int, class string) {
		out.Regions = append(out.Regions, markup.RegionSpan{Start: start, End: end, Class: class, Plugin: p.Name()})
	}
	ref := func(start, end int, qualified string, line int) {
		out.Refs = append(out.Refs, markup.RefSpan{Start: start, End: end, Ref: symbolMenu(qualified, line), Plugin: p.Name()})
	}

	mod := pyModule(relPath)
	lines := newLineIndex(text)

	type class struct {
		name  string
		start int
	}
	var classes []class
	for _, m := range rePyClass.FindAllStringSubmatchIndex(text, -1) {
		region(m[2], m[3], ClassKeyword)
		region(m[4], m[5], ClassType)
		name := text[m[4]:m[5]]
		classes = append(classes, class{name: name, start: m[0]})
		ref(m[4], m[5], joinSym(mod, "", name), lines.lineOf(m[4]))
	}

	for _, m := range rePyDef.FindAllStringSubmatchIndex(text, -1) {
		region(m[4], m[5], ClassKeyword)
		region(m[6], m[7], ClassFunc)
		owner := ""
		if m[3] > m[2] { // indented: method of the closest class above
			for i := len(classes) - 1; i >= 0; i-- {
				if classes[i].start < m[0] {
					owner = classes[i].name
					break
				}
			}
		}
		ref(m[6], m[7], joinSym(mod, owner, text[m[6]:m[7]]), lines.lineOf(m[6]))
	}
	return out, nil
}

func pyModule(relPath string) string {
	clean := strings.ReplaceAll(relPath, "\\", "/")
	dir, base := path.Split(clean)
	var parts []string
	if dir = strings.Trim(dir, "/"); dir != "" {
		parts = strings.Split(dir, "/")
	}
	if base != "__init__.py" {
		parts = append(parts, strings.TrimSuffix(base, ".py"))
	}
	return strings.Join(parts, ".")
}
