package markup

import (
	"cmp"
	"slices"
	"strings"

	"srcmark/internal/textutil"
)

// LineRecord is the persisted per-line slice of the search index. Start and
// End are end-exclusive byte columns relative to the start of the line.
type LineRecord struct {
	Refs    []RefRecord    `json:"refs"`
	Regions []RegionRecord `json:"regions"`
}

type RegionRecord struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Payload string `json:"payload"`
}

type RefRecord struct {
	Start   int `json:"start"`
	End     int `json:"end"`
	Payload Ref `json:"payload"`
}

// Record projects the line into an index record. A tag that the balancer
// closed and reopened at the same point yields a single record covering its
// whole extent within the line. Records are ordered by where they open.
func (l Line) Record() LineRecord {
	rec := LineRecord{Refs: []RefRecord{}, Regions: []RegionRecord{}}
	at := make(map[*Tag]int, len(l.Events)/2) // tag -> index into its record list
	for _, e := range l.Events {
		pos := e.Offset - l.Start
		t := e.Tag
		i, seen := at[t]
		switch {
		case e.Start && seen && recordEnd(&rec, t, i) == pos:
			// reopened where it was suspended: keep extending the same record
		case e.Start:
			at[t] = appendRecord(&rec, t, pos)
		case seen:
			setRecordEnd(&rec, t, i, pos)
		}
	}
	return rec
}

func appendRecord(rec *LineRecord, t *Tag, pos int) int {
	if t.Kind == KindRef {
		rec.Refs = append(rec.Refs, RefRecord{Start: pos, End: pos, Payload: *t.Ref})
		return len(rec.Refs) - 1
	}
	rec.Regions = append(rec.Regions, RegionRecord{Start: pos, End: pos, Payload: t.Class})
	return len(rec.Regions) - 1
}

func recordEnd(rec *LineRecord, t *Tag, i int) int {
	if t.Kind == KindRef {
		return rec.Refs[i].End
	}
	return rec.Regions[i].End
}

func setRecordEnd(rec *LineRecord, t *Tag, i, pos int) {
	if t.Kind == KindRef {
		rec.Refs[i].End = pos
		return
	}
	rec.Regions[i].End = pos
}

// Canonical returns a copy of r with regions and refs sorted by extent and
// payload. Two records describe the same markup exactly when their canonical
// forms are equal; the order in which tags were nested does not matter.
func (r LineRecord) Canonical() LineRecord {
	out := LineRecord{Refs: slices.Clone(r.Refs), Regions: slices.Clone(r.Regions)}
	slices.SortFunc(out.Regions, func(a, b RegionRecord) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		if c := cmp.Compare(a.End, b.End); c != 0 {
			return c
		}
		return strings.Compare(a.Payload, b.Payload)
	})
	slices.SortStableFunc(out.Refs, func(a, b RefRecord) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		if c := cmp.Compare(a.End, b.End); c != 0 {
			return c
		}
		return strings.Compare(refKey(&a.Payload), refKey(&b.Payload))
	})
	return out
}

// refKey matches the key tagBoundaries gives a ref tag.
func refKey(r *Ref) string {
	return menuJSON(r) + "\x00" + r.Hover
}

// SpansFromRecords rebuilds pipeline input from stored line records,
// converting line-relative columns to file-absolute offsets. This lets a file
// be re-rendered from the index without rerunning its producers. A span that
// crossed line breaks comes back as one span per line. Records beyond the
// last line of text are ignored.
func SpansFromRecords(text string, records []LineRecord) ([]RegionSpan, []RefSpan) {
	starts := textutil.LineStarts(textutil.SplitLines(text))
	var regions []RegionSpan
	var refs []RefSpan
	for i, rec := range records {
		if i >= len(starts) {
			break
		}
		base := starts[i]
		for _, r := range rec.Regions {
			regions = append(regions, RegionSpan{Start: base + r.Start, End: base + r.End, Class: r.Payload})
		}
		for _, r := range rec.Refs {
			refs = append(refs, RefSpan{Start: base + r.Start, End: base + r.End, Ref: r.Payload})
		}
	}
	return regions, refs
}
