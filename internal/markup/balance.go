package markup

import (
	"iter"
	"slices"
)

// balancedTags turns a sorted, possibly crossing event list into a
// well-nested stream without zero-width pairs. Every line is wrapped in a
// LINE open/close pair.
func balancedTags(events []Event, w *warner) iter.Seq[Event] {
	return withoutEmptyTags(balancedTagsWithEmpties(events, w))
}

// balancer holds the two payload stacks of the balancing state machine.
// Initial and terminal state: both empty.
type balancer struct {
	opens  []*Tag // currently open, in output order
	closes []*Tag // temporarily closed, awaiting reopen
	point  int
	w      *warner
	yield  func(Event) bool
}

// balancedTagsWithEmpties may emit zero-width pairs (a tag reopened and
// closed again at the same point); withoutEmptyTags removes them.
//
// Crossing tags are resolved by temporarily closing whatever was opened after
// the tag being closed, then reopening those at the same point. At a line
// break everything open is closed, the LINE pair is emitted, and everything is
// reopened on the next line.
func balancedTagsWithEmpties(events []Event, w *warner) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		b := &balancer{w: w, yield: yield}
		b.run(events)
	}
}

func (b *balancer) run(events []Event) {
	if !b.yield(Event{Offset: 0, Start: true, Tag: lineTag}) {
		return
	}
	for _, e := range events {
		b.point = e.Offset
		var ok bool
		switch {
		case e.Start:
			ok = b.open(e.Tag)
		case e.Tag.Kind == KindLine:
			ok = b.lineBreak()
		default:
			ok = b.close(e.Tag)
		}
		if !ok {
			return
		}
	}
	if len(b.opens) > 0 {
		// Spans are clamped to the file, so the last line break closed
		// everything. Anything left means a caller fed unclamped events.
		b.w.warn(UnbalancedClose, "", b.point, b.point, "tags left open at end of file")
		if !b.closeAll() {
			return
		}
		b.closes = b.closes[:0]
	}
	b.yield(Event{Offset: b.point, Start: false, Tag: lineTag})
}

func (b *balancer) emit(start bool, t *Tag) bool {
	return b.yield(Event{Offset: b.point, Start: start, Tag: t})
}

func (b *balancer) open(t *Tag) bool {
	b.opens = append(b.opens, t)
	return b.emit(true, t)
}

func (b *balancer) lineBreak() bool {
	if !b.closeAll() {
		return false
	}
	// Explicit close+open rather than a self-closing marker, so that the
	// empty-tag filter sees a LINE pair around every line.
	if !b.emit(false, lineTag) || !b.emit(true, lineTag) {
		return false
	}
	return b.reopen()
}

func (b *balancer) close(t *Tag) bool {
	if !slices.Contains(b.opens, t) {
		b.w.warn(UnbalancedClose, t.plugin, t.start, t.end, "closer without matching open tag; dropped")
		return true
	}
	if !b.closeTo(t) {
		return false
	}
	b.opens = b.opens[:len(b.opens)-1]
	if !b.emit(false, t) {
		return false
	}
	return b.reopen()
}

// closeTo temporarily closes open tags until t is on top.
func (b *balancer) closeTo(t *Tag) bool {
	for n := len(b.opens); n > 0 && b.opens[n-1] != t; n = len(b.opens) {
		if !b.suspend() {
			return false
		}
	}
	return true
}

// closeAll temporarily closes every open tag.
func (b *balancer) closeAll() bool {
	for len(b.opens) > 0 {
		if !b.suspend() {
			return false
		}
	}
	return true
}

func (b *balancer) suspend() bool {
	n := len(b.opens)
	t := b.opens[n-1]
	b.opens = b.opens[:n-1]
	b.closes = append(b.closes, t)
	return b.emit(false, t)
}

// reopen reopens temporarily closed tags, outermost first.
func (b *balancer) reopen() bool {
	for len(b.closes) > 0 {
		n := len(b.closes)
		t := b.closes[n-1]
		b.closes = b.closes[:n-1]
		b.opens = append(b.opens, t)
		if !b.emit(true, t) {
			return false
		}
	}
	return true
}

// withoutEmptyTags filters zero-width pairs out of a balanced stream: an
// opener immediately followed (after filtering) by its own closer at the
// same offset is dropped together with it. Output is released each time
// nesting depth returns to zero, i.e. once per line.
//
// This also removes the phantom LINE pair that follows a final terminator,
// and the single LINE pair of an empty file. Real lines are never empty:
// each holds at least its terminator or one byte of text.
func withoutEmptyTags(tags iter.Seq[Event]) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		var buf []Event
		depth := 0
		for e := range tags {
			if e.Start {
				buf = append(buf, e)
				depth++
				continue
			}
			if n := len(buf); n > 0 && buf[n-1].Start && buf[n-1].Tag == e.Tag && buf[n-1].Offset == e.Offset {
				buf = buf[:n-1]
			} else {
				buf = append(buf, e)
			}
			depth--
			if depth == 0 {
				for _, b := range buf {
					if !yield(b) {
						return
					}
				}
				buf = buf[:0]
			}
		}
	}
}
