package bundle

// This file implements the FULL bundle ZIP writer. It creates a reproducible
// archive with the following layout:
//
//	manifest.json
//	BUNDLE.ID
//	README.md            # stable (no wall-clock timestamps)
//	TOC.md
//	html/<path>.html     # one fragment per source line
//	lines/<path>.jsonl   # one line record per source line

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"srcmark/internal/cache"
	"srcmark/internal/index"
	"srcmark/internal/plugins"
	"srcmark/internal/ziputil"
)

func htmlEntry(path string) string  { return "html/" + path + ".html" }
func linesEntry(path string) string { return "lines/" + path + ".jsonl" }

// WriteFull writes the full bundle zip for man and the matching per-file
// outputs. Files are written in path order whatever the order of files.
func WriteFull(zipPath string, man index.Manifest, files []index.FileIndex) error {
	return writeZip(zipPath, func(zw *zip.Writer) error {
		return writeFullEntries(zw, man, files)
	})
}

func writeFullEntries(zw *zip.Writer, man index.Manifest, files []index.FileIndex) error {
	if err := ziputil.WriteJSON(zw, "manifest.json", man); err != nil {
		return err
	}
	if man.BundleID != "" {
		if err := ziputil.WriteText(zw, "BUNDLE.ID", []byte(man.BundleID+"\n")); err != nil {
			return err
		}
	}
	if err := ziputil.WriteText(zw, "README.md", GenerateFullReadme(fullReadmeOptions(man))); err != nil {
		return err
	}
	if err := ziputil.WriteText(zw, "TOC.md", buildTOC(man)); err != nil {
		return err
	}

	sorted := sortedByPath(files)
	used := make(map[string]struct{}, 2*len(sorted))
	for _, fi := range sorted {
		if err := ziputil.WriteLines(zw, ziputil.EnsureUniqueName(ziputil.SanitizePath(htmlEntry(fi.Path)), used), fi.HTML); err != nil {
			return err
		}
		w, err := ziputil.Create(zw, ziputil.EnsureUniqueName(ziputil.SanitizePath(linesEntry(fi.Path)), used))
		if err != nil {
			return err
		}
		if err := cache.EncodeLines(w, fi.Lines); err != nil {
			return fmt.Errorf("write %s: %w", linesEntry(fi.Path), err)
		}
	}
	return nil
}

func fullReadmeOptions(man index.Manifest) ReadmeOptions {
	opts := ReadmeOptions{
		ModuleName:     man.Module,
		Build:          man.Build,
		BundleID:       man.BundleID,
		SupportedLangs: plugins.SupportedLangs(),
		Files:          len(man.Files),
	}
	for _, f := range man.Files {
		opts.Lines += f.Lines
		opts.Bytes += f.Bytes
		opts.Warnings += f.Warnings
		if f.Lang != "" {
			opts.PresentLangs = append(opts.PresentLangs, f.Lang)
		}
	}
	return opts
}

// buildTOC renders a table of files followed by the anchor pointers, each
// linking to its line in the rendered HTML.
func buildTOC(man index.Manifest) []byte {
	var b strings.Builder
	b.WriteString("# TOC\n\n| # | Path | Lines | Refs | Warnings |\n|---:|:-----|-----:|-----:|-----:|\n")
	for i, f := range man.Files {
		fmt.Fprintf(&b, "| %d | %s | %d | %d | %d |\n", i+1, f.Path, f.Lines, f.Refs, f.Warnings)
	}
	var anchors []string
	for _, f := range man.Files {
		for _, p := range f.Pointers {
			anchors = append(anchors, fmt.Sprintf("- [%s](%s#L%d) `%s`\n", p.Name, htmlEntry(f.Path), p.Line, p.ID))
		}
	}
	if len(anchors) > 0 {
		b.WriteString("\n## Anchors\n\n")
		for _, a := range anchors {
			b.WriteString(a)
		}
	}
	return []byte(b.String())
}

func sortedByPath(files []index.FileIndex) []index.FileIndex {
	out := make([]index.FileIndex, len(files))
	copy(out, files)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// writeZip creates zipPath (and its directory) and runs fill on a fresh
// writer. The archive is removed again if anything fails.
func writeZip(zipPath string, fill func(zw *zip.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(zipPath)
		}
	}()

	zw := zip.NewWriter(f)
	if err := fill(zw); err != nil {
		_ = zw.Close()
		_ = f.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
