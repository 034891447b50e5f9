package bundle

import (
	"errors"
	"os"
	"strings"
	"testing"

	"srcmark/internal/cache"
	"srcmark/internal/diff"
	"srcmark/internal/index"
	"srcmark/internal/markup"
	"srcmark/internal/plugins"
)

func indexText(t *testing.T, path, text string) index.FileIndex {
	t.Helper()
	ann := index.Annotate(path, text, plugins.ForFile("", path), func(p string, err error) {
		t.Fatalf("producer %s: %v", p, err)
	})
	return index.IndexFile(path, text, ann, nil)
}

func TestSafeDiffBase(t *testing.T) {
	cases := map[string]string{
		"a/b/c.go":   "a_b_c.go",
		`win\dir:x`:  "win_dir_x",
		"./.hidden":  "hidden",
		"q?<>|*.txt": "q_____.txt",
		"":           "patch",
		"/__/":       "patch",
	}
	for in, want := range cases {
		if got := safeDiffBase(in); got != want {
			t.Fatalf("safeDiffBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUniquePatchName(t *testing.T) {
	used := map[string]struct{}{}
	a := uniquePatchName("x", "0123456789", used)
	b := uniquePatchName("x", "0123456789", used)
	c := uniquePatchName("x", "0123456789", used)
	if a != "x.patch" || b != "x-01234567.patch" || !strings.HasPrefix(c, "x-01234567-") {
		t.Fatalf("names: %s %s %s", a, b, c)
	}
	if c == b {
		t.Fatal("collision not resolved")
	}
}

func TestMakeVerifyDiffs(t *testing.T) {
	same := indexText(t, "same.go", "package p\n\nfunc A() {}\n")
	drift := indexText(t, "drift.go", "package p\n\nfunc B() {}\n")
	none := indexText(t, "none.txt", "x\n")

	skim := func(fi index.FileIndex) ([]markup.LineRecord, bool, error) {
		switch fi.Path {
		case "same.go":
			return cache.SkimLines(fi.Text, fi.Lines), true, nil
		case "drift.go":
			out := cache.SkimLines(fi.Text, fi.Lines)
			out[2].Refs = []markup.RefRecord{}
			return out, true, nil
		}
		return nil, false, nil
	}
	rep, err := MakeVerifyDiffs([]index.FileIndex{same, drift, none}, skim, diff.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Checked != 2 || len(rep.Skipped) != 1 || rep.Skipped[0] != "none.txt" {
		t.Fatalf("report: %+v", rep)
	}
	if rep.OK() || len(rep.Drifted) != 1 || rep.Drifted[0] != "drift.go" {
		t.Fatalf("drift: %+v", rep.Drifted)
	}
	body, ok := rep.Patches["drift.go.patch"]
	if !ok || !strings.Contains(body, "--- fresh/lines/drift.go.jsonl") || !strings.Contains(body, `-{"refs":[{`) {
		t.Fatalf("patches: %v", rep.Patches)
	}
}

func TestMakeVerifyDiffsAcceptsReorderedNesting(t *testing.T) {
	text := "aaaa\nbbbbbbbbbb\n"
	ann := plugins.Annotations{Regions: []markup.RegionSpan{{Start: 0, End: 8, Class: "a"}, {Start: 2, End: 12, Class: "b"}}}
	fi := index.IndexFile("ab.txt", text, ann, nil)
	skim := func(fi index.FileIndex) ([]markup.LineRecord, bool, error) {
		return cache.SkimLines(fi.Text, fi.Lines), true, nil
	}
	rep, err := MakeVerifyDiffs([]index.FileIndex{fi}, skim, diff.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !rep.OK() || rep.Checked != 1 {
		t.Fatalf("unexpected drift: %+v", rep)
	}
}

func TestMakeVerifyDiffsPropagatesErrors(t *testing.T) {
	fi := indexText(t, "a.go", "package a\n")
	boom := errors.New("boom")
	_, err := MakeVerifyDiffs([]index.FileIndex{fi}, func(index.FileIndex) ([]markup.LineRecord, bool, error) { return nil, false, boom }, diff.Options{})
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "a.go") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestMakeDeltaDiffs(t *testing.T) {
	old := indexText(t, "m.go", "package m\n")
	cur := indexText(t, "m.go", "package m\n\nfunc F() {}\n")
	fresh := indexText(t, "n.go", "package n\n\nfunc G() {}\n")
	d := cache.Delta{Changed: []cache.Change{
		{Path: "m.go", HashBefore: old.Hash, HashAfter: cur.Hash, RecordsBefore: old.LinesKey, RecordsAfter: cur.LinesKey},
		{Path: "n.go", HashBefore: "ffff", HashAfter: fresh.Hash, RecordsBefore: "eeee", RecordsAfter: fresh.LinesKey},
	}}
	readOld := func(key string) ([]markup.LineRecord, error) {
		if key == old.LinesKey {
			return old.Lines, nil
		}
		return nil, os.ErrNotExist
	}
	patches, entries, err := MakeDeltaDiffs(d, []index.FileIndex{cur, fresh}, diff.Options{}, readOld)
	if err != nil {
		t.Fatal(err)
	}
	if len(patches) != 2 || len(entries) != 2 {
		t.Fatalf("patches=%d entries=%d", len(patches), len(entries))
	}
	m := patches["m.go.patch"]
	if !strings.Contains(m, "--- a/lines/m.go.jsonl") || !strings.Contains(m, `"hover":"m.F"`) {
		t.Fatalf("m.go patch:\n%s", m)
	}
	n := patches["n.go.patch"]
	if !strings.Contains(n, "--- /dev/null") || !strings.Contains(n, "+++ b/lines/n.go.jsonl") {
		t.Fatalf("n.go patch:\n%s", n)
	}
	if entries[0].Diff != "diffs/m.go.patch" || entries[0].HashAfter != cur.Hash || entries[0].Oversize {
		t.Fatalf("entry: %+v", entries[0])
	}
}

func TestMakeDeltaDiffsMissingFile(t *testing.T) {
	d := cache.Delta{Changed: []cache.Change{{Path: "gone.go"}}}
	if _, _, err := MakeDeltaDiffs(d, nil, diff.Options{}, nil); err == nil {
		t.Fatal("expected error for a changed file missing from the index")
	}
}
