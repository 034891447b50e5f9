package cache

import (
	"slices"

	"srcmark/internal/markup"
)

// Skim re-renders a file from its stored line records instead of running
// the producers again. Spans that crossed line breaks come back split per
// line, so tags may nest in a different order than in a fresh rendering;
// the records of both renderings still agree (see SkimLines).
func Skim(text string, records []markup.LineRecord, opts ...markup.Option) []string {
	regions, refs := markup.SpansFromRecords(text, records)
	out := slices.Collect(markup.HTMLLines(text, regions, refs, opts...))
	if out == nil {
		out = []string{}
	}
	return out
}

// SkimLines runs stored records back through the pipeline and returns the
// records it projects, in canonical form. For records built from text this
// equals their canonical form, unless a ref spanning lines and a ref nested
// in it cover the same columns of one line: the second is then dropped as
// overlapping.
func SkimLines(text string, records []markup.LineRecord, opts ...markup.Option) []markup.LineRecord {
	regions, refs := markup.SpansFromRecords(text, records)
	out := []markup.LineRecord{}
	for rec := range markup.IndexLines(text, regions, refs, opts...) {
		out = append(out, rec.Canonical())
	}
	return out
}
