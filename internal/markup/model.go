// Package markup turns the text of one source file plus two independent
// annotation streams into balanced, per-line markup.
//
// The streams are:
//   - regions: syntax-coloring spans carrying a CSS class
//   - refs:    cross-reference anchors carrying a context-menu payload
//
// Both are half-open byte ranges over the UTF-8 text. They are produced by
// independent plugins, may overlap arbitrarily and may cross line breaks.
// The pipeline splits every span into boundary events, sorts them, prunes
// refs that straddle each other, balances the result so that no two tag
// pairs cross, and finally cuts the stream into lines. Each line can then be
// rendered to an HTML fragment (Line.HTML) or projected to an index record
// (Line.Record).
//
// Pipeline stages, in order:
//
//	tagBoundaries -> lineBoundaries -> sortEvents -> removeOverlappingRefs
//	  -> balancedTags -> splitIntoLines -> {HTML, Record}
//
// Nothing in this package performs I/O and nothing is shared between calls;
// callers parallelize at file granularity.
package markup

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind is the payload variant of a tag. Its numeric value is the sort class:
// at a shared offset openers sort by ascending Kind (LINE outermost) and
// closers by descending Kind (innermost first).
type Kind uint8

const (
	KindLine Kind = iota
	KindRef
	KindRegion
)

func (k Kind) String() string {
	switch k {
	case KindLine:
		return "line"
	case KindRef:
		return "ref"
	case KindRegion:
		return "region"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// NoOffset is the null endpoint. Spans carrying it (or any negative offset)
// are dropped as malformed.
const NoOffset = -1

// MenuItem is one entry of a ref's context menu. Fields other than the four
// well-known ones are kept in Extra and passed through unchanged.
type MenuItem struct {
	HTML  string
	Title string
	Href  string
	Icon  string
	Extra map[string]any
}

var menuItemKeys = [...]string{"html", "title", "href", "icon"}

// MarshalJSON flattens Extra next to the well-known fields. Keys are emitted
// in sorted order so equal items always serialize to equal bytes.
func (m MenuItem) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(m.Extra)+len(menuItemKeys))
	for k, v := range m.Extra {
		obj[k] = v
	}
	obj["html"] = m.HTML
	obj["title"] = m.Title
	obj["href"] = m.Href
	obj["icon"] = m.Icon
	return marshalCompact(obj)
}

// UnmarshalJSON keeps unknown fields in Extra. Numbers stay json.Number so
// they are written back exactly as read.
func (m *MenuItem) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return err
	}
	*m = MenuItem{}
	str := func(k string) string {
		s, _ := obj[k].(string)
		delete(obj, k)
		return s
	}
	m.HTML = str("html")
	m.Title = str("title")
	m.Href = str("href")
	m.Icon = str("icon")
	if len(obj) > 0 {
		m.Extra = obj
	}
	return nil
}

// Ref is the payload of a cross-reference anchor.
type Ref struct {
	MenuItems []MenuItem `json:"menuitems"`
	Hover     string     `json:"hover,omitempty"`
}

type refJSON Ref

// MarshalJSON always emits "menuitems" as a list, never null.
func (r Ref) MarshalJSON() ([]byte, error) {
	if r.MenuItems == nil {
		r.MenuItems = []MenuItem{}
	}
	return marshalCompact(refJSON(r))
}

// RegionSpan is a syntax-coloring span [Start, End) tagged with a CSS class.
// Plugin names the producer and only feeds diagnostics.
type RegionSpan struct {
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Class  string `json:"class"`
	Plugin string `json:"plugin,omitempty"`
}

// RefSpan is a cross-reference anchor [Start, End).
type RefSpan struct {
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Ref    Ref    `json:"ref"`
	Plugin string `json:"plugin,omitempty"`
}

// Tag is a payload handle. Events that belong to the same span share one
// *Tag, and the balancer matches closers to openers by pointer identity,
// never by comparing contents.
type Tag struct {
	Kind  Kind
	Class string // KindRegion
	Ref   *Ref   // KindRef

	start, end int
	plugin     string
	menu       string // JSON of Ref.MenuItems, cached for rendering
	key        string // canonical payload key, used only as a sort tie-break
	seq        int
}

// lineTag is the synthetic LINE payload. There is exactly one.
var lineTag = &Tag{Kind: KindLine}

// Event is one boundary of a tag: an opener when Start is set, a closer
// otherwise. Offset is a file-absolute byte offset.
type Event struct {
	Offset int
	Start  bool
	Tag    *Tag
}

func (e Event) String() string {
	dir := "close"
	if e.Start {
		dir = "open"
	}
	switch e.Tag.Kind {
	case KindRegion:
		return fmt.Sprintf("%d:%s:%s(%s)", e.Offset, dir, e.Tag.Kind, e.Tag.Class)
	default:
		return fmt.Sprintf("%d:%s:%s", e.Offset, dir, e.Tag.Kind)
	}
}

// marshalCompact encodes v without HTML escaping and without the trailing
// newline json.Encoder appends. Callers that embed the result into HTML
// escape it themselves.
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// menuJSON serializes the ordered menu items of r. A marshal failure can only
// come from an unserializable Extra value; such a ref renders with an empty
// menu.
func menuJSON(r *Ref) string {
	items := r.MenuItems
	if items == nil {
		items = []MenuItem{}
	}
	b, err := marshalCompact(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}
