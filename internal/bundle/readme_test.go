package bundle

import (
	"bytes"
	"strings"
	"testing"
)

func TestGenerateFullReadmeDeterminism(t *testing.T) {
	opts := ReadmeOptions{
		ModuleName:     "MyModule",
		Build:          "go",
		BundleID:       "abc123",
		SupportedLangs: []string{"go", "java", "ts"},
		PresentLangs:   []string{"go"},
		Files:          1234,
		Lines:          56789,
		Bytes:          2_500_000,
		Warnings:       2,
	}
	a := GenerateFullReadme(opts)
	b := GenerateFullReadme(opts)
	if !bytes.Equal(a, b) {
		t.Fatalf("full readme not deterministic")
	}
	out := string(a)
	if !strings.HasPrefix(out, "# MyModule\n") || !strings.HasSuffix(out, "\n") {
		t.Fatalf("unexpected framing:\n%s", out)
	}
	if strings.Contains(out, "\r") {
		t.Fatalf("full readme must not contain \\r")
	}
	for _, w := range []string{
		"Bundle layout", "Line records", "Conventions",
		"Files: **1,234**, lines: **56,789**, source size: **2.5 MB**",
		"Build system: go.", "`abc123`", "Pipeline warnings: 2",
	} {
		if !strings.Contains(out, w) {
			t.Fatalf("missing %q in full readme:\n%s", w, out)
		}
	}
	for _, ln := range strings.Split(out, "\n") {
		if strings.HasSuffix(ln, " ") {
			t.Fatalf("trailing space in %q", ln)
		}
	}
}

func TestGenerateFullReadmeOptionalSections(t *testing.T) {
	out := string(GenerateFullReadme(ReadmeOptions{}))
	if !strings.HasPrefix(out, "# srcmark bundle\n") {
		t.Fatalf("default name missing:\n%s", out)
	}
	for _, w := range []string{"Build system", "Bundle id", "Pipeline warnings"} {
		if strings.Contains(out, w) {
			t.Fatalf("unexpected %q in readme without data", w)
		}
	}
	if !strings.Contains(out, "Supported languages: none.") {
		t.Fatalf("empty language list not rendered as none:\n%s", out)
	}
}

func TestGenerateDeltaReadme(t *testing.T) {
	opts := ReadmeOptions{ModuleName: "M", SupportedLangs: []string{"z", "a", "a"}, DiffNoPrefix: true, ContextLines: 4}
	a := GenerateDeltaReadme(opts)
	if !bytes.Equal(a, GenerateDeltaReadme(opts)) {
		t.Fatalf("delta readme not deterministic")
	}
	out := string(a)
	for _, w := range []string{"Layout", "Oversize diffs", "context: **4** lines", "**omitted**", "Supported languages: a, z."} {
		if !strings.Contains(out, w) {
			t.Fatalf("missing %q in delta readme:\n%s", w, out)
		}
	}
	if out := string(GenerateDeltaReadme(ReadmeOptions{})); !strings.Contains(out, "**present**") {
		t.Fatalf("prefix note wrong:\n%s", out)
	}
}
