package ziputil

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestSanitizePath(t *testing.T) {
	cases := map[string]string{
		"a/b.go":          "a/b.go",
		"/abs/x":          "abs/x",
		`C:\win\path.txt`: "win/path.txt",
		"../../etc/pw":    "etc/pw",
		"a/./b/../c":      "a/c",
		"":                "entry",
		"..":              "entry",
	}
	for in, want := range cases {
		if got := SanitizePath(in); got != want {
			t.Fatalf("SanitizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnsureUniqueName(t *testing.T) {
	used := map[string]struct{}{}
	got := []string{
		EnsureUniqueName("x.patch", used),
		EnsureUniqueName("x.patch", used),
		EnsureUniqueName("x.patch", used),
		EnsureUniqueName("noext", used),
		EnsureUniqueName("noext", used),
	}
	want := []string{"x.patch", "x-1.patch", "x-2.patch", "noext", "noext-1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestEntriesAreReproducible(t *testing.T) {
	build := func() []byte {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		if err := WriteJSON(zw, "m.json", map[string]string{"html": "<a>"}); err != nil {
			t.Fatal(err)
		}
		if err := WriteLines(zw, "/x/../l.txt", []string{"a", "b"}); err != nil {
			t.Fatal(err)
		}
		if err := CopyFromReader(zw, "r.txt", strings.NewReader("raw")); err != nil {
			t.Fatal(err)
		}
		if err := zw.Close(); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}
	a, b := build(), build()
	if !bytes.Equal(a, b) {
		t.Fatal("archives differ between runs")
	}

	zr, err := zip.NewReader(bytes.NewReader(a), int64(len(a)))
	if err != nil {
		t.Fatal(err)
	}
	contents := map[string]string{}
	for _, f := range zr.File {
		if !f.Modified.Equal(FixedZipTime) {
			t.Fatalf("%s: modified %v", f.Name, f.Modified)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		contents[f.Name] = string(data)
	}
	if contents["m.json"] != "{\n  \"html\": \"<a>\"\n}\n" {
		t.Fatalf("m.json: %q", contents["m.json"])
	}
	if contents["l.txt"] != "a\nb\n" || contents["r.txt"] != "raw" {
		t.Fatalf("contents: %v", contents)
	}
}
