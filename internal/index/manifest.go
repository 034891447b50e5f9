package index

import (
	"bytes"
	"encoding/hex"
	"sort"

	"github.com/zeebo/blake3"
)

// ComputeBundleID computes a canonical hash over manifest entries.
// It concatenates lines "<normalized-path>:<lowercase-hash>\n" sorted by path,
// then returns the lowercase blake3-256 hex of the UTF-8 bytes.
func ComputeBundleID(man Manifest) string {
	lines := make([]string, 0, len(man.Files))
	for _, f := range man.Files {
		lines = append(lines, normalizePath(f.Path)+":"+toLowerHex(f.Hash))
	}
	sort.Strings(lines)
	var buf bytes.Buffer
	for _, ln := range lines {
		buf.WriteString(ln)
		buf.WriteByte('\n')
	}
	sum := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// BuildManifest assembles the manifest for files, sorted by path, and stamps
// its bundle id.
func BuildManifest(module, runID string, files []FileIndex) Manifest {
	man := Manifest{Module: module, RunID: runID, Files: make([]ManFile, 0, len(files))}
	for _, f := range files {
		man.Files = append(man.Files, manFileFor(f))
	}
	sort.Slice(man.Files, func(i, j int) bool { return man.Files[i].Path < man.Files[j].Path })
	man.BundleID = ComputeBundleID(man)
	return man
}

func manFileFor(f FileIndex) ManFile {
	mf := ManFile{
		Path:     f.Path,
		Lang:     f.Lang,
		Hash:     f.Hash,
		Records:  f.LinesKey,
		Bytes:    f.Bytes,
		Lines:    len(f.Lines),
		Warnings: len(f.Warnings),
		Pointers: f.Pointers,
	}
	for _, rec := range f.Lines {
		mf.Regions += len(rec.Regions)
		mf.Refs += len(rec.Refs)
	}
	return mf
}

func normalizePath(p string) string {
	b := make([]rune, 0, len(p))
	skipDotSlash := false
	for i, r := range p {
		if i == 0 && r == '.' && len(p) > 1 && p[1] == '/' {
			skipDotSlash = true
			continue
		}
		if skipDotSlash && r == '/' {
			skipDotSlash = false
			continue
		}
		if r == '\\' {
			r = '/'
		}
		if r == '/' && len(b) > 0 && b[len(b)-1] == '/' {
			continue
		}
		b = append(b, r)
	}
	return string(b)
}

func toLowerHex(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'F' {
			c = c + ('a' - 'A')
		}
		out[i] = c
	}
	return string(out)
}
