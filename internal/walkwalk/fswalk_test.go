package walkwalk

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
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
}

func relPaths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func TestCollectFilesFiltersAndSorts(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"b.go":                    "package b\n",
		"a.go":                    "package a\n",
		"a.go.annotations.json":   "{}",
		"notes.txt":               "hi",
		"build/gen.go":            "package gen\n",
		"vendor/x/y.go":           "package y\n",
		"ignored/z.go":            "package z\n",
		".gitignore":              "ignored/\n*.tmp\n",
		"keep.tmp":                "x",
		"docs/README.special.txt": "x",
	})
	opts := Options{
		Exts:         map[string]struct{}{".go": {}},
		Exclude:      map[string]struct{}{"build": {}, "vendor": {}},
		Includes:     []string{"special"},
		UseGitignore: true,
	}
	files, total, err := CollectFiles(root, opts)
	if err != nil {
		t.Fatal(err)
	}
	got := relPaths(files)
	want := []string{"a.go", "b.go", "docs/README.special.txt"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
	if total != int64(len("package a\n")+len("package b\n")+1) {
		t.Fatalf("unexpected total %d", total)
	}
	if files[0].Hash != HashBytes([]byte("package a\n")) || files[0].Ext != ".go" {
		t.Fatalf("unexpected descriptor %+v", files[0])
	}
}

func TestCollectFilesMaxFileBytes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"small.go": "x", "big.go": "xxxxxxxxxx"})
	files, _, err := CollectFiles(root, Options{MaxFileBytes: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].RelPath != "small.go" {
		t.Fatalf("unexpected files %v", relPaths(files))
	}
}

func TestHashBytesIsBlake3Hex(t *testing.T) {
	// blake3("") per the reference test vectors
	const empty = "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"
	if got := HashBytes(nil); got != empty {
		t.Fatalf("HashBytes(nil) = %s", got)
	}
}

func TestIgnoreListRules(t *testing.T) {
	rules := ignoreList(parseIgnore(strings.NewReader("# comment\n*.log\n!keep.log\n/out/\ndocs/**/draft.md\n\n"), ""))
	rules = append(rules, parseIgnore(strings.NewReader("gen_*\n"), "pkg")...)
	cases := []struct {
		rel   string
		isDir bool
		want  bool
	}{
		{"a.log", false, true},
		{"sub/keep.log", false, false},
		{"out", true, true},
		{"out", false, false},
		{"src/out", true, false},
		{"docs/draft.md", false, true},
		{"docs/a/b/draft.md", false, true},
		{"draft.md", false, false},
		{"pkg/gen_x.go", false, true},
		{"pkg/sub/gen_y.go", false, true},
		{"gen_z.go", false, false},
	}
	for _, c := range cases {
		if got := rules.ignored(c.rel, c.isDir); got != c.want {
			t.Fatalf("ignored(%q, %v) = %v, want %v", c.rel, c.isDir, got, c.want)
		}
	}
}

func TestCollectFilesNestedGitignore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":      "*.gen.go\n",
		"a.gen.go":        "x",
		"lib/.gitignore":  "local.go\n!keep.gen.go\n",
		"lib/local.go":    "x",
		"lib/keep.gen.go": "x",
		"lib/util.go":     "x",
		"local.go":        "x",
	})
	files, _, err := CollectFiles(root, Options{Exts: map[string]struct{}{".go": {}}, UseGitignore: true})
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Join(relPaths(files), ",")
	if got != "lib/keep.gen.go,lib/util.go,local.go" {
		t.Fatalf("got %s", got)
	}
}
