package meta

import (
	"os"
	"path/filepath"
	"testing"

	"srcmark/internal/index"
)

func write(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDetect(t *testing.T) {
	cases := []struct {
		name  string
		files map[string]string
		want  Info
	}{
		{"go", map[string]string{"go.mod": "module example.com/thing\n\ngo 1.24\n"}, Info{Build: "go", Module: "example.com/thing"}},
		{"maven", map[string]string{"pom.xml": "<project><artifactId>core</artifactId></project>", "go.mod": "module x\n"}, Info{Build: "maven", Module: "core"}},
		{"gradle", map[string]string{"build.gradle.kts": "", "settings.gradle.kts": `rootProject.name = "app"`}, Info{Build: "gradle", Module: "app"}},
		{"node", map[string]string{"package.json": `{"name": "web", "version": "1.0.0"}`}, Info{Build: "node", Module: "web"}},
		{"broken node", map[string]string{"package.json": `{`}, Info{Build: "node"}},
		{"none", nil, Info{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			for n, body := range tc.files {
				write(t, dir, n, body)
			}
			want := tc.want
			if want.Module == "" {
				want.Module = filepath.Base(dir)
			}
			if got := Detect(dir); got != want {
				t.Fatalf("Detect = %+v, want %+v", got, want)
			}
		})
	}
}

func TestApplyToManifestKeepsUpstreamValues(t *testing.T) {
	m := index.Manifest{Module: "configured"}
	ApplyToManifest(Info{Build: "go", Module: "detected"}, &m)
	if m.Module != "configured" || m.Build != "go" {
		t.Fatalf("manifest: %+v", m)
	}
	var empty index.Manifest
	ApplyToManifest(Info{Module: "detected"}, &empty)
	if empty.Module != "detected" || empty.Build != "" {
		t.Fatalf("manifest: %+v", empty)
	}
	ApplyToManifest(Info{}, nil)
}
