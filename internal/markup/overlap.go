package markup

import "slices"

// removeOverlappingRefs drops every ref that straddles a ref opened before
// it, along with its closer. Refs fully contained in another ref are kept;
// a ref with exactly the same extent as the enclosing one is dropped.
// Region events pass through untouched. events must be sorted and are
// compacted in place.
func removeOverlappingRefs(events []Event, w *warner) []Event {
	keep := nonOverlappingRefs(events, w)
	out := events[:0]
	for i, e := range events {
		if keep[i] {
			out = append(out, e)
		}
	}
	return out
}

// nonOverlappingRefs computes the keep-mask for removeOverlappingRefs.
func nonOverlappingRefs(events []Event, w *warner) []bool {
	keep := make([]bool, len(events))
	var open []*Tag                    // kept refs currently open, innermost last
	dropped := make(map[*Tag]struct{}) // refs whose closer is still to come
	for i, e := range events {
		keep[i] = true
		t := e.Tag
		if t.Kind != KindRef {
			continue
		}
		if e.Start {
			if n := len(open); n > 0 {
				top := open[n-1]
				if t.end > top.end || (t.start == top.start && t.end == top.end) {
					w.warn(OverlappingRefs, t.plugin, t.start, t.end, "ref overlaps another ref; dropped")
					dropped[t] = struct{}{}
					keep[i] = false
					continue
				}
			}
			open = append(open, t)
			continue
		}
		if _, ok := dropped[t]; ok {
			delete(dropped, t)
			keep[i] = false
			continue
		}
		if n := len(open); n > 0 && open[n-1] == t {
			open = open[:n-1]
		} else if j := slices.Index(open, t); j >= 0 {
			open = slices.Delete(open, j, j+1)
		}
	}
	return keep
}
