// Package meta detects the build system and module name of a source tree
// (Maven/Gradle/Go/Node) and applies the results to the bundle manifest.
//
// Parsing is best-effort: partial or absent files fall through to the next
// build system and finally to the directory name.
package meta

import (
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"srcmark/internal/index"
)

// Info is a minimal summary of build metadata.
type Info struct {
	Build  string // "maven"|"gradle"|"go"|"node"|"" (unknown)
	Module string // artifact/module/package name
}

// Detect probes common files in the project root.
//
// Priority (first match wins): Maven > Gradle > Go > Node. Module falls back
// to the base name of root when no build file names it.
func Detect(root string) Info {
	absRoot, _ := filepath.Abs(root)
	probes := []struct {
		build string
		files []string
		name  func(path string) string
	}{
		{"maven", []string{"pom.xml"}, mavenName},
		{"gradle", []string{"build.gradle", "build.gradle.kts"}, func(string) string {
			return gradleName(firstExisting(absRoot, "settings.gradle", "settings.gradle.kts"))
		}},
		{"go", []string{"go.mod"}, goModName},
		{"node", []string{"package.json"}, nodeName},
	}
	for _, p := range probes {
		if path := firstExisting(absRoot, p.files...); path != "" {
			return Info{Build: p.build, Module: firstNonEmpty(p.name(path), filepath.Base(absRoot))}
		}
	}
	return Info{Module: filepath.Base(absRoot)}
}

// ApplyToManifest merges detected Info into the manifest without overriding
// non-empty fields already set upstream.
func ApplyToManifest(inf Info, m *index.Manifest) {
	if m == nil {
		return
	}
	if m.Build == "" {
		m.Build = inf.Build
	}
	if m.Module == "" {
		m.Module = inf.Module
	}
}

type pomXML struct {
	XMLName    xml.Name `xml:"project"`
	ArtifactID string   `xml:"artifactId"`
}

func mavenName(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var p pomXML
	if err := xml.Unmarshal(b, &p); err != nil {
		return ""
	}
	return p.ArtifactID
}

var reGradleRootName = regexp.MustCompile(`(?m)^\s*rootProject\.name\s*=\s*["']([^"']+)["']`)

func gradleName(settings string) string {
	if settings == "" {
		return ""
	}
	b, err := os.ReadFile(settings)
	if err != nil {
		return ""
	}
	if m := reGradleRootName.FindStringSubmatch(string(b)); m != nil {
		return m[1]
	}
	return ""
}

func goModName(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	for _, ln := range strings.Split(string(b), "\n") {
		ln = strings.TrimSpace(ln)
		if rest, ok := strings.CutPrefix(ln, "module "); ok {
			return strings.Trim(strings.TrimSpace(rest), `"`)
		}
	}
	return ""
}

func nodeName(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return ""
	}
	return obj.Name
}

func firstExisting(root string, names ...string) string {
	for _, n := range names {
		p := filepath.Join(root, n)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
