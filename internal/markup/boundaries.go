package markup

import (
	"cmp"
	"slices"
	"strings"
)

// tagBoundaries splits every well-formed span into an opener and a closer
// sharing one *Tag. Null, negative, zero-width and reversed spans are
// dropped; endpoints past size are clamped to size. The result is unsorted.
func tagBoundaries(regions []RegionSpan, refs []RefSpan, size int, w *warner) []Event {
	events := make([]Event, 0, 2*(len(regions)+len(refs))+64)
	seq := 0
	add := func(t *Tag) {
		t.seq = seq
		seq++
		events = append(events, Event{Offset: t.start, Start: true, Tag: t}, Event{Offset: t.end, Start: false, Tag: t})
	}
	for _, r := range regions {
		start, end, ok := checkExtent(r.Start, r.End, size, r.Plugin, w)
		if !ok {
			continue
		}
		add(&Tag{Kind: KindRegion, Class: r.Class, start: start, end: end, plugin: r.Plugin, key: r.Class})
	}
	for i := range refs {
		r := &refs[i]
		start, end, ok := checkExtent(r.Start, r.End, size, r.Plugin, w)
		if !ok {
			continue
		}
		ref := r.Ref
		menu := menuJSON(&ref)
		add(&Tag{Kind: KindRef, Ref: &ref, start: start, end: end, plugin: r.Plugin, menu: menu, key: menu + "\x00" + ref.Hover})
	}
	return events
}

func checkExtent(start, end, size int, plugin string, w *warner) (int, int, bool) {
	if start < 0 || end < 0 || start >= end {
		w.malformedSpan(plugin, start, end)
		return 0, 0, false
	}
	if end > size {
		w.warn(OffsetOutOfFile, plugin, start, end, "end clamped to end of file")
		end = size
		if start >= end {
			w.malformedSpan(plugin, start, end)
			return 0, 0, false
		}
	}
	return start, end, true
}

// lineBoundaries emits a LINE closer right after each line's terminator (or
// at end of file for an unterminated last line). lines must concatenate to
// the file text.
func lineBoundaries(lines []string) []Event {
	events := make([]Event, 0, len(lines))
	upTo := 0
	for _, ln := range lines {
		upTo += len(ln)
		events = append(events, Event{Offset: upTo, Start: false, Tag: lineTag})
	}
	return events
}

// compareEvents is the total order the balancer relies on:
//
//  1. ascending offset
//  2. closers before openers
//  3. openers by ascending Kind, closers by descending Kind
//  4. openers: longer span first; closers: later start first
//  5. canonical payload key (reversed for closers)
//  6. input position (reversed for closers)
//
// Keys 4-6 only refine ties and make the order independent of input order.
func compareEvents(a, b Event) int {
	if c := cmp.Compare(a.Offset, b.Offset); c != 0 {
		return c
	}
	if a.Start != b.Start {
		if !a.Start {
			return -1
		}
		return 1
	}
	ta, tb := a.Tag, b.Tag
	if !a.Start {
		ta, tb = tb, ta
	}
	if c := cmp.Compare(ta.Kind, tb.Kind); c != 0 {
		return c
	}
	if a.Start {
		if c := cmp.Compare(tb.end, ta.end); c != 0 {
			return c
		}
	} else if c := cmp.Compare(ta.start, tb.start); c != 0 {
		// operands are already swapped: later start first
		return c
	}
	if c := strings.Compare(ta.key, tb.key); c != 0 {
		return c
	}
	return cmp.Compare(ta.seq, tb.seq)
}

func sortEvents(events []Event) {
	slices.SortFunc(events, compareEvents)
}
