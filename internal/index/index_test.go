package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"srcmark/internal/markup"
	"srcmark/internal/plugins"
	"srcmark/internal/walkwalk"
)

type fakeProducer struct {
	name string
	ann  plugins.Annotations
	err  error
}

func (f fakeProducer) Name() string { return f.name }

func (f fakeProducer) Annotate(string, string) (plugins.Annotations, error) {
	return f.ann, f.err
}

func TestIndexFileKeepsBothProjectionsAligned(t *testing.T) {
	text := "// region R\nfoo\n// endregion R\n"
	ann := plugins.Annotations{
		Regions: []markup.RegionSpan{{Start: 12, End: 15, Class: "k"}, {Start: -1, End: 2, Class: "bad", Plugin: "p"}},
	}
	fi := IndexFile("a/b.go", text, ann, nil)
	if len(fi.HTML) != 3 || len(fi.Lines) != 3 {
		t.Fatalf("expected 3 lines, got html=%d records=%d", len(fi.HTML), len(fi.Lines))
	}
	if fi.HTML[1] != `<span class="k">foo</span>` {
		t.Fatalf("line 2 html: %s", fi.HTML[1])
	}
	if got := fi.Lines[1].Regions; len(got) != 1 || got[0] != (markup.RegionRecord{Start: 0, End: 3, Payload: "k"}) {
		t.Fatalf("line 2 record: %+v", got)
	}
	if len(fi.Warnings) != 1 || fi.Warnings[0].Kind != markup.MalformedSpan {
		t.Fatalf("warnings: %+v", fi.Warnings)
	}
	if fi.Lang != "go" || fi.Hash != walkwalk.HashBytes([]byte(text)) || fi.Bytes != int64(len(text)) {
		t.Fatalf("descriptor: %+v", fi)
	}
	if len(fi.Pointers) != 1 || fi.Pointers[0].ID != "a-b.go#R" || fi.Pointers[0].Line != 1 {
		t.Fatalf("pointers: %+v", fi.Pointers)
	}
}

func TestIndexFileEmptyText(t *testing.T) {
	fi := IndexFile("empty.txt", "", plugins.Annotations{}, nil)
	if fi.HTML == nil || fi.Lines == nil || len(fi.HTML) != 0 || len(fi.Lines) != 0 {
		t.Fatalf("expected empty non-nil outputs, got %+v", fi)
	}
}

func TestIndexFileForwardsWarnings(t *testing.T) {
	var got []*markup.Warning
	sink := markup.SinkFunc(func(w *markup.Warning) { got = append(got, w) })
	IndexFile("x", "abc", plugins.Annotations{Regions: []markup.RegionSpan{{Start: 0, End: 9, Class: "c"}}}, sink)
	if len(got) != 1 || got[0].Kind != markup.OffsetOutOfFile {
		t.Fatalf("forwarded warnings: %+v", got)
	}
}

func TestAnnotateSkipsFailingProducers(t *testing.T) {
	ok := fakeProducer{name: "ok", ann: plugins.Annotations{Regions: []markup.RegionSpan{{Start: 0, End: 1, Class: "a"}}}}
	bad := fakeProducer{name: "bad", ann: plugins.Annotations{Regions: []markup.RegionSpan{{Start: 0, End: 1, Class: "b"}}}, err: errors.New("boom")}
	var failed []string
	ann := Annotate("f", "x", []plugins.Producer{bad, ok}, func(p string, err error) { failed = append(failed, p+":"+err.Error()) })
	if len(ann.Regions) != 1 || ann.Regions[0].Class != "a" {
		t.Fatalf("annotations: %+v", ann)
	}
	if len(failed) != 1 || failed[0] != "bad:boom" {
		t.Fatalf("failures: %v", failed)
	}
}

func writeFiles(t *testing.T, root string, files map[string]string) []walkwalk.FileInfo {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	infos, _, err := walkwalk.CollectFiles(root, walkwalk.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return infos
}

func TestBuildPreservesOrderAcrossWorkers(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{}
	for _, name := range []string{"a.go", "b.py", "c/d.go", "e.txt", "f.go", "g.go"} {
		files[name] = "package x\n\nfunc " + strings.ToUpper(name[:1]) + "() {}\n"
	}
	infos := writeFiles(t, root, files)

	got, err := Build(context.Background(), root, infos, BuildOptions{Workers: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(infos) {
		t.Fatalf("expected %d results, got %d", len(infos), len(got))
	}
	for i := range infos {
		if got[i].Path != infos[i].RelPath {
			t.Fatalf("result %d is %s, want %s", i, got[i].Path, infos[i].RelPath)
		}
		if got[i].Hash != infos[i].Hash {
			t.Fatalf("hash mismatch for %s", got[i].Path)
		}
	}
	// a.go goes through gosyms: its func name carries a ref.
	if refs := got[0].Lines[2].Refs; len(refs) != 1 || refs[0].Payload.Hover != "x.A" {
		t.Fatalf("a.go refs: %+v", refs)
	}

	serial, err := Build(context.Background(), root, infos, BuildOptions{Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	for i := range got {
		if strings.Join(got[i].HTML, "\n") != strings.Join(serial[i].HTML, "\n") {
			t.Fatalf("parallel and serial output differ for %s", got[i].Path)
		}
	}
}

func TestBuildCustomProducers(t *testing.T) {
	root := t.TempDir()
	infos := writeFiles(t, root, map[string]string{"x.txt": "hello"})
	only := func(string) []plugins.Producer {
		return []plugins.Producer{fakeProducer{name: "f", ann: plugins.Annotations{Regions: []markup.RegionSpan{{Start: 0, End: 5, Class: "w"}}}}}
	}
	got, err := Build(context.Background(), root, infos, BuildOptions{Producers: only})
	if err != nil {
		t.Fatal(err)
	}
	if got[0].HTML[0] != `<span class="w">hello</span>` {
		t.Fatalf("html: %s", got[0].HTML[0])
	}
}

func TestBuildReportsReadErrors(t *testing.T) {
	infos := []walkwalk.FileInfo{{RelPath: "gone.go", AbsPath: filepath.Join(t.TempDir(), "gone.go")}}
	if _, err := Build(context.Background(), "", infos, BuildOptions{}); err == nil || !strings.Contains(err.Error(), "gone.go") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestBuildHonorsCancellation(t *testing.T) {
	root := t.TempDir()
	infos := writeFiles(t, root, map[string]string{"a.go": "package a\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Build(ctx, root, infos, BuildOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBuildManifestSortsAndCounts(t *testing.T) {
	files := []FileIndex{
		{Path: "b.go", Hash: "BB", Lines: []markup.LineRecord{{Regions: []markup.RegionRecord{{}, {}}, Refs: []markup.RefRecord{{}}}}},
		{Path: "a.go", Hash: "aa", Lines: []markup.LineRecord{{}, {}}, Warnings: []*markup.Warning{{}}},
	}
	man := BuildManifest("mod", "run", files)
	if man.Files[0].Path != "a.go" || man.Files[1].Path != "b.go" {
		t.Fatalf("manifest not sorted: %+v", man.Files)
	}
	if man.Files[0].Lines != 2 || man.Files[0].Warnings != 1 {
		t.Fatalf("a.go entry: %+v", man.Files[0])
	}
	if man.Files[1].Regions != 2 || man.Files[1].Refs != 1 {
		t.Fatalf("b.go entry: %+v", man.Files[1])
	}
	if man.BundleID == "" || man.BundleID != ComputeBundleID(man) {
		t.Fatalf("bundle id not stamped: %q", man.BundleID)
	}
}

func TestComputeBundleIDIsCanonical(t *testing.T) {
	a := Manifest{Files: []ManFile{{Path: "./x/y.go", Hash: "ABCD"}, {Path: "a.go", Hash: "01"}}}
	b := Manifest{Files: []ManFile{{Path: "a.go", Hash: "01"}, {Path: "x//y.go", Hash: "abcd"}}}
	if ComputeBundleID(a) != ComputeBundleID(b) {
		t.Fatal("bundle id depends on order, case or path spelling")
	}
	c := Manifest{Files: []ManFile{{Path: "a.go", Hash: "02"}}}
	if ComputeBundleID(c) == ComputeBundleID(b) {
		t.Fatal("different content, same bundle id")
	}
	if len(ComputeBundleID(Manifest{})) != 64 {
		t.Fatal("expected 32-byte hex digest")
	}
}

func TestBuildAnchorPointersUniqueIDs(t *testing.T) {
	text := "# region my part\nx\n# endregion my part\n"
	if got := BuildAnchorPointers("p.py", text); len(got) != 0 {
		t.Fatalf("spaces are not valid in marker names: %+v", got)
	}
	text = "// region A\n// endregion A\n\n// region A\n// endregion A\n"
	got := BuildAnchorPointers("src/m.go", text)
	if len(got) != 2 || got[0].ID != "src-m.go#A" || got[1].ID != "src-m.go#A-2" {
		t.Fatalf("pointers: %+v", got)
	}
	if got[1].Line != 4 {
		t.Fatalf("second anchor line: %d", got[1].Line)
	}
}

func TestSlugifyAnchor(t *testing.T) {
	cases := map[string]string{"A b/c": "A-b-c", "--x--": "x", "": "anchor", "***": "anchor"}
	for in, want := range cases {
		if got := slugifyAnchor(in); got != want {
			t.Fatalf("slugifyAnchor(%q) = %q, want %q", in, got, want)
		}
	}
}
