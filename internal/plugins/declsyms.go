package plugins

import (
	"regexp"
	"sort"

	"srcmark/internal/markup"
)

// declRule matches one kind of declaration. Group 1 is the keyword (or the
// whole modifier run when the language has none), group 2 the declared name.
// Rules marked typ open a new scope: later members are qualified with the
// closest preceding type.
type declRule struct {
	re  *regexp.Regexp
	typ bool
}

type declLang struct {
	pkg    *regexp.Regexp // group 1 keyword, group 2 package name; may be nil
	rules  []declRule
	scoped bool // members belong to the enclosing type
}

// Regexes are heuristics, not parsers: they look at declaration heads only.
var declLangs = map[string]declLang{
	"java": {
		scoped: true,
		pkg:    regexp.MustCompile(`(?m)^[ \t]*(package)[ \t]+([A-Za-z0-9_.]+)[ \t]*;`),
		rules: []declRule{
			{re: regexp.MustCompile(`(?m)^[ \t]*(?:public[ \t]+)?(?:(?:abstract|final|static)[ \t]+)*(class|interface|enum|record)[ \t]+([A-Za-z0-9_]+)`), typ: true},
			{re: regexp.MustCompile(`(?m)^[ \t]*((?:(?:public|protected|private|static|final|synchronized|native|abstract|default)[ \t]+)+)[A-Za-z0-9_<>\[\].?]+[ \t]+([A-Za-z0-9_]+)[ \t]*\(`)},
		},
	},
	"kt": {
		scoped: true,
		pkg:    regexp.MustCompile(`(?m)^[ \t]*(package)[ \t]+([A-Za-z_][\w.]*)`),
		rules: []declRule{
			{re: regexp.MustCompile(`(?m)^[ \t]*(?:(?:public|internal|private|data|sealed|abstract|open)[ \t]+)*(class|interface|object)[ \t]+([A-Za-z_]\w*)`), typ: true},
			{re: regexp.MustCompile(`(?m)^[ \t]*(?:(?:public|internal|private|override|suspend|inline)[ \t]+)*(fun)[ \t]+(?:[A-Za-z_]\w*\.)?([A-Za-z_]\w*)[ \t]*\(`)},
		},
	},
	"cs": {
		scoped: true,
		pkg:    regexp.MustCompile(`(?m)^[ \t]*(namespace)[ \t]+([A-Za-z_][\w.]*)`),
		rules: []declRule{
			{re: regexp.MustCompile(`(?m)^[ \t]*(?:[A-Za-z]+[ \t]+)*(class|struct|interface|enum|record)[ \t]+([A-Za-z_]\w*)`), typ: true},
			{re: regexp.MustCompile(`(?m)^[ \t]*((?:(?:public|internal|protected|private|static|virtual|override|sealed|async|extern|unsafe|new)[ \t]+)+)[\w<>\[\],.?]+[ \t]+([A-Za-z_]\w*)[ \t]*\(`)},
		},
	},
	"ts": {
		rules: []declRule{
			{re: regexp.MustCompile(`(?m)^[ \t]*export[ \t]+(?:default[ \t]+)?(?:abstract[ \t]+)?(class|interface)[ \t]+([A-Za-z_$][\w$]*)`), typ: true},
			{re: regexp.MustCompile(`(?m)^[ \t]*export[ \t]+(?:default[ \t]+)?(?:async[ \t]+)?(function\*?)[ \t]*([A-Za-z_$][\w$]*)[ \t]*\(`)},
			{re: regexp.MustCompile(`(?m)^[ \t]*export[ \t]+(const|let|var)[ \t]+([A-Za-z_$][\w$]*)[ \t]*=`)},
		},
	},
}

// DeclSymbols marks declarations in Java, Kotlin, C# and TypeScript/JS
// sources. Lang is one of the tags returned by InferLangByExt.
type DeclSymbols struct {
	Lang string
}

func (d DeclSymbols) Name() string { return "declsyms-" + d.Lang }

type declHit struct {
	kw, name [2]int
	typ      bool
}

func (d DeclSymbols) Annotate(_ string, text string) (Annotations, error) {
	lang, ok := declLangs[d.Lang]
	if !ok {
		return Annotations{}, nil
	}
	var out Annotations
	region := func(at [2]int, class string) {
		out.Regions = append(out.Regions, markup.RegionSpan{Start: at[0], End: at[1], Class: class, Plugin: d.Name()})
	}

	pkg := ""
	if lang.pkg != nil {
		if m := lang.pkg.FindStringSubmatchIndex(text); m != nil {
			region([2]int{m[2], m[3]}, ClassKeyword)
			region([2]int{m[4], m[5]}, ClassType)
			pkg = text[m[4]:m[5]]
		}
	}

	var hits []declHit
	for _, r := range lang.rules {
		for _, m := range r.re.FindAllStringSubmatchIndex(text, -1) {
			hits = append(hits, declHit{kw: [2]int{m[2], m[3]}, name: [2]int{m[4], m[5]}, typ: r.typ})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].name[0] < hits[j].name[0] })

	lines := newLineIndex(text)
	owner := ""
	seen := make(map[int]bool, len(hits))
	for _, h := range hits {
		if seen[h.name[0]] {
			continue // two rules matched the same head
		}
		seen[h.name[0]] = true
		name := text[h.name[0]:h.name[1]]
		var qualified string
		if h.typ {
			qualified = joinSym(pkg, "", name)
			if lang.scoped {
				owner = name
			}
			region(h.name, ClassType)
		} else {
			qualified = joinSym(pkg, owner, name)
			region(h.name, ClassFunc)
		}
		region(h.kw, ClassKeyword)
		out.Refs = append(out.Refs, markup.RefSpan{
			Start:  h.name[0],
			End:    h.name[1],
			Ref:    symbolMenu(qualified, lines.lineOf(h.name[0])),
			Plugin: d.Name(),
		})
	}
	return out, nil
}
