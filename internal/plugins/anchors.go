package plugins

import (
	"regexp"
	"sort"
	"strings"

	"srcmark/internal/markup"
	"srcmark/internal/textutil"
)

const (
	ClassFold   = "fold"
	ClassAnchor = "anchor"
)

var (
	reLineC = regexp.MustCompile(`(?i)^\s*//\s*(region|endregion)\s*:?\s*([A-Za-z0-9_.\-]+)\s*$`)
	reHash  = regexp.MustCompile(`(?i)^\s*#\s*(region|endregion)\s*:?\s*([A-Za-z0-9_.\-]+)\s*$`)
	reBlock = regexp.MustCompile(`(?is)/\*\s*(region|endregion)\s*:?\s*([A-Za-z0-9_.\-]+)\s*\*/`)
)

// Anchor is a named, matched marker pair. Offsets are byte offsets into the
// file; Start is where the opening marker begins and End where the closing
// marker ends.
type Anchor struct {
	Name       string
	Start, End int
	markers    [2][2]int // [open|close] -> [start, end)
}

// Anchors turns paired region markers into foldable regions:
//
//	// region:DOC_LINE_MARKER_EXAMPLE
//	... code ...
//	// endregion:DOC_LINE_MARKER_EXAMPLE
//
// Supported forms (case-insensitive):
//   - Line comments:  "// region NAME"  |  "// region: NAME"
//   - Preprocessor:  "#region NAME"     |  "#endregion NAME"   (C#/TS style)
//   - Block markers: "/* region: DOC_BLOCK_MARKER_EXAMPLE */" | "/* endregion: DOC_BLOCK_MARKER_EXAMPLE */"
//
// Nested regions are supported, even with identical names (a stack per name).
// Each block becomes a "fold" region from the start of its opening marker
// through the end of the line holding its closing marker, terminator
// included, and each marker itself an "anchor" region.
type Anchors struct{}

func (Anchors) Name() string { return "anchors" }

func (a Anchors) Annotate(_ string, text string) (Annotations, error) {
	var out Annotations
	anchors := ExtractAnchors(text)
	if len(anchors) == 0 {
		return out, nil
	}
	starts := textutil.LineStarts(textutil.SplitLines(text))
	for _, an := range anchors {
		end := lineEndAt(starts, len(text), an.End-1)
		out.Regions = append(out.Regions, markup.RegionSpan{Start: an.Start, End: end, Class: ClassFold, Plugin: a.Name()})
		for _, m := range an.markers {
			out.Regions = append(out.Regions, markup.RegionSpan{Start: m[0], End: m[1], Class: ClassAnchor, Plugin: a.Name()})
		}
	}
	return out, nil
}

// lineEndAt returns the offset just past the terminator of the line holding off.
func lineEndAt(starts []int, size, off int) int {
	i := sort.SearchInts(starts, off+1)
	if i < len(starts) {
		return starts[i]
	}
	return size
}

// ExtractAnchors parses all marker pairs in text, dedups exact duplicates
// and sorts the result by (Start, End, Name).
func ExtractAnchors(text string) []Anchor {
	raw := append(lineAnchors(text), blockAnchors(text)...)
	if len(raw) == 0 {
		return nil
	}
	merged := dedupAnchors(raw)
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Start != merged[j].Start {
			return merged[i].Start < merged[j].Start
		}
		if merged[i].End != merged[j].End {
			return merged[i].End < merged[j].End
		}
		return merged[i].Name < merged[j].Name
	})
	return merged
}

func lineAnchors(text string) []Anchor {
	var anchors []Anchor
	lines := textutil.SplitLines(text)
	starts := textutil.LineStarts(lines)
	opens := make(map[string][][2]int)
	for i, raw := range lines {
		content := textutil.TrimTerminator(raw)
		kind, name, ok := matchLineMarker(content)
		if !ok {
			continue
		}
		marker := markerExtent(content, starts[i])
		switch strings.ToLower(kind) {
		case "region":
			opens[name] = append(opens[name], marker)
		case "endregion":
			stack := opens[name]
			n := len(stack)
			if n == 0 {
				continue
			}
			open := stack[n-1]
			opens[name] = stack[:n-1]
			anchors = append(anchors, Anchor{
				Name:    name,
				Start:   open[0],
				End:     marker[1],
				markers: [2][2]int{open, marker},
			})
		}
	}
	return anchors
}

// markerExtent is the byte range of a marker line without its indentation
// and trailing blanks.
func markerExtent(content string, base int) [2]int {
	lead := len(content) - len(strings.TrimLeft(content, " \t"))
	trimmed := strings.TrimRight(content, " \t")
	return [2]int{base + lead, base + len(trimmed)}
}

func blockAnchors(text string) []Anchor {
	type open struct {
		name   string
		marker [2]int
	}
	var anchors []Anchor
	var opens []open
	for _, m := range reBlock.FindAllStringSubmatchIndex(text, -1) {
		kind := strings.ToLower(text[m[2]:m[3]])
		name := text[m[4]:m[5]]
		marker := [2]int{m[0], m[1]}
		switch kind {
		case "region":
			opens = append(opens, open{name: name, marker: marker})
		case "endregion":
			for j := len(opens) - 1; j >= 0; j-- {
				if opens[j].name == name {
					anchors = append(anchors, Anchor{
						Name:    name,
						Start:   opens[j].marker[0],
						End:     marker[1],
						markers: [2][2]int{opens[j].marker, marker},
					})
					opens = append(opens[:j], opens[j+1:]...)
					break
				}
			}
		}
	}
	return anchors
}

// matchLineMarker tries both //-style and #-style line markers.
func matchLineMarker(s string) (kind, name string, ok bool) {
	if m := reLineC.FindStringSubmatch(s); m != nil {
		return m[1], m[2], true
	}
	if m := reHash.FindStringSubmatch(s); m != nil {
		return m[1], m[2], true
	}
	return "", "", false
}

// dedupAnchors removes exact duplicates (same Name/Start/End), preserving order.
func dedupAnchors(in []Anchor) []Anchor {
	type key struct {
		name       string
		start, end int
	}
	seen := make(map[key]struct{}, len(in))
	out := make([]Anchor, 0, len(in))
	for _, a := range in {
		k := key{a.Name, a.Start, a.End}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	return out
}
