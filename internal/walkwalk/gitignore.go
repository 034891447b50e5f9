package walkwalk

import (
	"bufio"
	"io"
	"path"
	"strings"
)

// ignoreRule is one line of a .gitignore file. Rules apply below base, the
// directory holding the file ("" for the root).
type ignoreRule struct {
	base     string
	segs     []string // pattern split on '/', "**" kept as its own segment
	negate   bool
	dirOnly  bool
	anchored bool // contained a '/' before its last character
}

// ignoreList holds rules in walk order, so parents precede their children
// and later rules override earlier ones.
type ignoreList []ignoreRule

// parseIgnore reads gitignore syntax: comments, '!' negation, trailing '/'
// for directories, a '/' anywhere else anchoring the pattern to base, and
// '*', '?', '[...]' and '**' globs.
func parseIgnore(r io.Reader, base string) []ignoreRule {
	var rules []ignoreRule
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line == "" || line[0] == '#' {
			continue
		}
		var rule ignoreRule
		rule.base = base
		if line[0] == '!' {
			rule.negate = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			rule.dirOnly = true
			line = strings.TrimRight(line, "/")
		}
		if strings.Contains(line, "/") {
			rule.anchored = true
			line = strings.TrimPrefix(line, "/")
		}
		if line == "" {
			continue
		}
		rule.segs = strings.Split(line, "/")
		rules = append(rules, rule)
	}
	return rules
}

// ignored reports whether rel (slash-separated, relative to the walk root)
// is excluded. The last matching rule decides.
func (l ignoreList) ignored(rel string, isDir bool) bool {
	out := false
	for _, r := range l {
		if r.dirOnly && !isDir {
			continue
		}
		if r.matches(rel) {
			out = !r.negate
		}
	}
	return out
}

func (r ignoreRule) matches(rel string) bool {
	sub := rel
	if r.base != "" {
		var ok bool
		if sub, ok = strings.CutPrefix(rel, r.base+"/"); !ok {
			return false
		}
	}
	if !r.anchored {
		// A bare name matches at any depth.
		ok, _ := path.Match(r.segs[0], path.Base(sub))
		return ok
	}
	return matchSegments(r.segs, strings.Split(sub, "/"))
}

// matchSegments matches path segments against pattern segments where "**"
// stands for zero or more whole segments.
func matchSegments(pat, name []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			rest := pat[1:]
			for i := 0; i <= len(name); i++ {
				if matchSegments(rest, name[i:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		if ok, _ := path.Match(pat[0], name[0]); !ok {
			return false
		}
		pat, name = pat[1:], name[1:]
	}
	return len(name) == 0
}
