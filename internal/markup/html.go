package markup

import (
	"html"
	"strings"

	"srcmark/internal/textutil"
)

// HTML renders the line as escaped text interleaved with <span> and <a>
// tags. The line terminator is not part of the output.
func (l Line) HTML() string {
	content := len(l.Text) - textutil.TerminatorLen(l.Text)
	var b strings.Builder
	b.Grow(len(l.Text) + 32*len(l.Events))
	upTo := 0
	for _, e := range l.Events {
		pos := e.Offset - l.Start
		writeEscaped(&b, l.Text, upTo, pos, content)
		upTo = pos
		if e.Start {
			writeOpener(&b, e.Tag)
		} else {
			writeCloser(&b, e.Tag)
		}
	}
	writeEscaped(&b, l.Text, upTo, len(l.Text), content)
	return b.String()
}

// writeEscaped writes text[lo:hi], cut at limit so the terminator is never
// emitted.
func writeEscaped(b *strings.Builder, text string, lo, hi, limit int) {
	hi = min(hi, limit)
	if lo >= hi {
		return
	}
	b.WriteString(html.EscapeString(text[lo:hi]))
}

func writeOpener(b *strings.Builder, t *Tag) {
	switch t.Kind {
	case KindRegion:
		b.WriteString(`<span class="`)
		b.WriteString(html.EscapeString(t.Class))
		b.WriteString(`">`)
	case KindRef:
		b.WriteString(`<a data-menu="`)
		b.WriteString(html.EscapeString(t.menu))
		b.WriteByte('"')
		if t.Ref.Hover != "" {
			b.WriteString(` title="`)
			b.WriteString(html.EscapeString(t.Ref.Hover))
			b.WriteByte('"')
		}
		b.WriteByte('>')
	}
}

func writeCloser(b *strings.Builder, t *Tag) {
	switch t.Kind {
	case KindRegion:
		b.WriteString("</span>")
	case KindRef:
		b.WriteString("</a>")
	}
}
