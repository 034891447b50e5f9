package markup

import (
	"iter"

	"srcmark/internal/textutil"
)

// Option configures a pipeline run.
type Option func(*options)

type options struct {
	sink Sink
}

// WithSink routes warnings to s. Without it warnings are discarded.
func WithSink(s Sink) Option {
	return func(o *options) { o.sink = s }
}

// Line is one output line of the balanced stream.
type Line struct {
	Number int    // 1-based
	Start  int    // file-absolute offset of the first byte
	Text   string // raw text including the terminator
	// Events between the line's LINE open and close, excluding both.
	// Offsets are file-absolute.
	Events []Event
}

// End is the file-absolute offset just past the line's terminator.
func (l Line) End() int { return l.Start + len(l.Text) }

// Lines runs the pipeline over one file and yields its lines in order. The
// sequence is lazy past the sort: breaking out of the loop stops the work.
// The number of lines equals len(textutil.SplitLines(text)).
func Lines(text string, regions []RegionSpan, refs []RefSpan, opts ...Option) iter.Seq[Line] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return func(yield func(Line) bool) {
		w := newWarner(o.sink)
		events := tagBoundaries(regions, refs, len(text), w)
		events = append(events, lineBoundaries(textutil.SplitLines(text))...)
		sortEvents(events)
		events = removeOverlappingRefs(events, w)
		for ln := range splitIntoLines(text, balancedTags(events, w)) {
			if !yield(ln) {
				return
			}
		}
	}
}

// HTMLLines yields one HTML fragment per line, without the terminator and
// without any surrounding line markup.
func HTMLLines(text string, regions []RegionSpan, refs []RefSpan, opts ...Option) iter.Seq[string] {
	return func(yield func(string) bool) {
		for ln := range Lines(text, regions, refs, opts...) {
			if !yield(ln.HTML()) {
				return
			}
		}
	}
}

// IndexLines yields one index record per line.
func IndexLines(text string, regions []RegionSpan, refs []RefSpan, opts ...Option) iter.Seq[LineRecord] {
	return func(yield func(LineRecord) bool) {
		for ln := range Lines(text, regions, refs, opts...) {
			if !yield(ln.Record()) {
				return
			}
		}
	}
}

// splitIntoLines groups a balanced stream by its LINE pairs.
func splitIntoLines(text string, tags iter.Seq[Event]) iter.Seq[Line] {
	return func(yield func(Line) bool) {
		var cur Line
		var events []Event
		for e := range tags {
			if e.Tag.Kind != KindLine {
				events = append(events, e)
				continue
			}
			if e.Start {
				cur = Line{Number: cur.Number + 1, Start: e.Offset}
				events = nil
				continue
			}
			cur.Text = text[cur.Start:e.Offset]
			cur.Events = events
			if !yield(cur) {
				return
			}
		}
	}
}
