package cache

import "sort"

// BuildDelta computes the change set between two snapshots. Either may be
// nil. Unchanged files are not reported.
func BuildDelta(prev, curr *Snapshot) Delta {
	var prevFiles, currFiles []SnapFile
	if prev != nil {
		prevFiles = prev.Files
	}
	if curr != nil {
		currFiles = curr.Files
	}
	prevMap := indexByPath(prevFiles)
	currMap := indexByPath(currFiles)

	d := Delta{Added: []SnapFile{}, Removed: []SnapFile{}, Renamed: []Rename{}, Changed: []Change{}}
	for path, pf := range prevMap {
		cf, ok := currMap[path]
		switch {
		case !ok:
			d.Removed = append(d.Removed, pf)
		case pf.Hash != cf.Hash || pf.Records != cf.Records:
			d.Changed = append(d.Changed, Change{
				Path:          path,
				HashBefore:    pf.Hash,
				HashAfter:     cf.Hash,
				RecordsBefore: pf.Records,
				RecordsAfter:  cf.Records,
			})
		}
	}
	for path, cf := range currMap {
		if _, ok := prevMap[path]; !ok {
			d.Added = append(d.Added, cf)
		}
	}
	sortDelta(&d)
	d.Renamed, d.Removed, d.Added = matchExactRenames(d.Removed, d.Added)
	return d
}

func indexByPath(files []SnapFile) map[string]SnapFile {
	m := make(map[string]SnapFile, len(files))
	for _, f := range files {
		m[f.Path] = f
	}
	return m
}

// matchExactRenames pairs removed and added files with equal hashes. Both
// inputs must be sorted by path; pairing is then deterministic: each added
// path, in order, takes the first unused removed path with its hash.
func matchExactRenames(removed, added []SnapFile) ([]Rename, []SnapFile, []SnapFile) {
	renamed := []Rename{}
	if len(removed) == 0 || len(added) == 0 {
		return renamed, removed, added
	}
	byHash := make(map[string][]int, len(removed))
	for i, rf := range removed {
		byHash[rf.Hash] = append(byHash[rf.Hash], i)
	}
	usedRemoved := make(map[int]bool)
	keptAdded := make([]SnapFile, 0, len(added))
	for _, af := range added {
		cands := byHash[af.Hash]
		if len(cands) == 0 {
			keptAdded = append(keptAdded, af)
			continue
		}
		byHash[af.Hash] = cands[1:]
		usedRemoved[cands[0]] = true
		renamed = append(renamed, Rename{From: removed[cands[0]].Path, To: af.Path, Hash: af.Hash})
	}
	keptRemoved := make([]SnapFile, 0, len(removed)-len(usedRemoved))
	for i, rf := range removed {
		if !usedRemoved[i] {
			keptRemoved = append(keptRemoved, rf)
		}
	}
	sort.Slice(renamed, func(i, j int) bool {
		if renamed[i].From == renamed[j].From {
			return renamed[i].To < renamed[j].To
		}
		return renamed[i].From < renamed[j].From
	})
	return renamed, keptRemoved, keptAdded
}

func sortDelta(d *Delta) {
	sort.Slice(d.Removed, func(i, j int) bool { return d.Removed[i].Path < d.Removed[j].Path })
	sort.Slice(d.Added, func(i, j int) bool { return d.Added[i].Path < d.Added[j].Path })
	sort.Slice(d.Changed, func(i, j int) bool { return d.Changed[i].Path < d.Changed[j].Path })
}
