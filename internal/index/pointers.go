package index

import (
	"sort"
	"strconv"
	"strings"

	"srcmark/internal/plugins"
	"srcmark/internal/textutil"
)

// BuildAnchorPointers creates jump pointers for the region anchors of a
// file, in (Start, End, Name) order.
//
// ID format:
//
//	<relPath-with-slashes-replaced-by-dashes>#<slugified-anchor-name>[-N]
//
// where N is a numeric suffix (2, 3, …) for anchor names that normalize to
// the same slug within the same file.
//
//	relPath = "internal/server/server.go"
//	anchor  = "SERVER_START"
//	ID      = "internal-server-server.go#SERVER_START"
func BuildAnchorPointers(relPath, text string) []Pointer {
	anchors := plugins.ExtractAnchors(text)
	if len(anchors) == 0 {
		return nil
	}
	starts := textutil.LineStarts(textutil.SplitLines(text))
	lineOf := func(off int) int {
		return sort.Search(len(starts), func(i int) bool { return starts[i] > off })
	}

	base := strings.ReplaceAll(relPath, "/", "-")
	seen := make(map[string]int, len(anchors))
	out := make([]Pointer, 0, len(anchors))
	for _, a := range anchors {
		id := base + "#" + slugifyAnchor(a.Name)
		seen[id]++
		if c := seen[id]; c > 1 {
			id += "-" + strconv.Itoa(c)
		}
		out = append(out, Pointer{ID: id, Name: a.Name, Line: lineOf(a.Start)})
	}
	return out
}

// slugifyAnchor normalizes an anchor name for use in pointer IDs.
// Rules (ASCII-oriented for stability across platforms/tools):
//   - Keep [A–Z a–z 0–9 . _ -] as-is.
//   - Convert spaces and other characters to '-'.
//   - Collapse multiple '-' into one and trim leading/trailing '-'.
//   - Preserve case.
func slugifyAnchor(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastDash := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') ||
			(c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') ||
			c == '.' || c == '_' || c == '-' {
			b.WriteByte(c)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	if res := strings.Trim(b.String(), "-"); res != "" {
		return res
	}
	return "anchor"
}
