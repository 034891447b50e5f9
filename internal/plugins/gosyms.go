package plugins

import (
	"regexp"
	"strings"

	"srcmark/internal/markup"
)

// Classes emitted by the symbol producers.
const (
	ClassKeyword = "k"
	ClassFunc    = "nf"
	ClassType    = "nc"
)

var (
	// package mypkg
	reGoPkg = regexp.MustCompile(`(?m)^[ \t]*(package)[ \t]+([A-Za-z0-9_]+)[ \t]*\r?$`)

	// func <Name>(...) or func (<recv>) <Name>(...)
	// Groups:
	//   1: the func keyword
	//   2: receiver block (optional), including parentheses: "(r *T) "
	//   3: function/method name
	reGoFunc = regexp.MustCompile(`(?m)^[ \t]*(func)[ \t]+(\([^)]+\)[ \t]*)?([A-Za-z0-9_]+)[ \t]*[(\[]`)
)

// GoSymbols marks top-level Go function and method declarations with a ref
// on the name and colors the package and func keywords. It works from
// regular expressions, not a parser, and ignores nested function literals.
type GoSymbols struct{}

func (GoSymbols) Name() string { return "gosyms" }

func (g GoSymbols) Annotate(_ string, text string) (Annotations, error) {
	var out Annotations
	region := func(start, end int, class string) {
		out.Regions = append(out.Regions, markup.RegionSpan{Start: start, End: end, Class: class, Plugin: g.Name()})
	}

	pkg := ""
	if m := reGoPkg.FindStringSubmatchIndex(text); m != nil {
		region(m[2], m[3], ClassKeyword)
		region(m[4], m[5], ClassType)
		pkg = text[m[4]:m[5]]
	}

	lines := newLineIndex(text)
	for _, m := range reGoFunc.FindAllStringSubmatchIndex(text, -1) {
		// m layout: [full0 full1  func0 func1  recv0 recv1  name0 name1]
		region(m[2], m[3], ClassKeyword)
		recvType := ""
		if m[4] != -1 {
			recvType = receiverBaseType(text[m[4]:m[5]])
		}
		nameStart, nameEnd := m[6], m[7]
		region(nameStart, nameEnd, ClassFunc)

		qualified := joinSym(pkg, recvType, text[nameStart:nameEnd])
		out.Refs = append(out.Refs, markup.RefSpan{
			Start:  nameStart,
			End:    nameEnd,
			Ref:    symbolMenu(qualified, lines.lineOf(nameStart)),
			Plugin: g.Name(),
		})
	}
	return out, nil
}

// receiverBaseType extracts a clean base type from a receiver block.
//
//	"(s *Server)"        -> "Server"
//	"(c db.Conn)"        -> "Conn"
//	"(p *pkg.Type[T])"   -> "Type"
func receiverBaseType(recvBlock string) string {
	s := strings.TrimSpace(recvBlock)
	if strings.HasPrefix(s, "(") {
		if i := strings.IndexByte(s, ')'); i >= 0 {
			s = s[1:i]
		}
	}
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return ""
	}
	typ := strings.TrimLeft(tokens[len(tokens)-1], "*&")
	if i := strings.IndexByte(typ, '['); i >= 0 {
		typ = typ[:i]
	}
	if i := strings.LastIndexByte(typ, '.'); i >= 0 {
		typ = typ[i+1:]
	}
	return strings.TrimSpace(typ)
}
