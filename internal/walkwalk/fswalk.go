// Package walkwalk provides a deterministic, filterable filesystem walker
// used to gather the source files of a tree before indexing.
package walkwalk

import (
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/zeebo/blake3"
)

// FileInfo is a minimal, deterministic descriptor of a collected file.
type FileInfo struct {
	RelPath string // project-relative path with forward slashes
	AbsPath string // absolute filesystem path
	Size    int64  // size in bytes
	Hash    string // lowercase hex blake3-256 of the file contents
	Ext     string // lowercase extension including dot (e.g., ".go")
}

// Options filter the walk. Zero values disable the corresponding filter.
type Options struct {
	Exts           map[string]struct{} // lowercase extensions with dot; empty = all
	Exclude        map[string]struct{} // base names (and base-name prefixes) to skip
	Includes       []string            // substrings that admit a file regardless of Exts
	MaxBytes       int64               // total budget across all files
	MaxFileBytes   int64               // per-file cap
	UseGitignore   bool                // honor .gitignore files at every level
	FollowSymlinks bool
}

// sidecarSuffix mirrors plugins.SidecarSuffix; walkwalk sits below plugins.
const sidecarSuffix = ".annotations.json"

// CollectFiles walks src and returns the files passing opts, sorted by
// RelPath, together with their total size. Sidecar annotation files are
// never returned as sources. Unreadable entries are skipped.
func CollectFiles(src string, opts Options) ([]FileInfo, int64, error) {
	root, err := filepath.Abs(src)
	if err != nil {
		return nil, 0, err
	}
	c := &collector{opts: opts, root: root}
	if err := filepath.WalkDir(root, c.visit); err != nil {
		return nil, 0, err
	}
	slices.SortFunc(c.files, func(a, b FileInfo) int { return strings.Compare(a.RelPath, b.RelPath) })
	return c.files, c.total, nil
}

// HashBytes is the content hash used for FileInfo.Hash.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type collector struct {
	opts    Options
	root    string
	ignores ignoreList
	total   int64
	files   []FileInfo
}

func (c *collector) visit(path string, d fs.DirEntry, err error) error {
	if err != nil {
		return nil
	}
	rel, ok := c.rel(path)
	if !ok {
		return nil
	}
	if rel == "." {
		c.loadIgnores(path, "")
		return nil
	}
	if c.budgetSpent() || c.excluded(rel, d) {
		return skip(d)
	}
	if d.IsDir() {
		if isSymlink(d) && !c.opts.FollowSymlinks {
			return filepath.SkipDir
		}
		c.loadIgnores(path, rel)
		return nil
	}
	c.addFile(path, rel, d)
	return nil
}

func skip(d fs.DirEntry) error {
	if d.IsDir() {
		return filepath.SkipDir
	}
	return nil
}

func (c *collector) rel(path string) (string, bool) {
	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	return rel, rel != ".." && !strings.HasPrefix(rel, "../")
}

func (c *collector) budgetSpent() bool {
	return c.opts.MaxBytes > 0 && c.total >= c.opts.MaxBytes
}

func (c *collector) excluded(rel string, d fs.DirEntry) bool {
	base := filepath.Base(rel)
	for k := range c.opts.Exclude {
		if strings.HasPrefix(base, k) {
			return true
		}
	}
	return c.opts.UseGitignore && c.ignores.ignored(rel, d.IsDir())
}

func (c *collector) loadIgnores(dir, rel string) {
	if !c.opts.UseGitignore {
		return
	}
	f, err := os.Open(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return
	}
	defer f.Close()
	c.ignores = append(c.ignores, parseIgnore(f, rel)...)
}

func (c *collector) addFile(path, rel string, d fs.DirEntry) {
	if isSymlink(d) && !c.opts.FollowSymlinks {
		return
	}
	if strings.HasSuffix(rel, sidecarSuffix) || !c.wanted(rel) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	size := info.Size()
	if c.opts.MaxFileBytes > 0 && size > c.opts.MaxFileBytes {
		return
	}
	if c.opts.MaxBytes > 0 && c.total+size > c.opts.MaxBytes {
		return
	}
	sum, err := hashFile(path)
	if err != nil {
		return
	}
	c.files = append(c.files, FileInfo{
		RelPath: rel,
		AbsPath: path,
		Size:    size,
		Hash:    sum,
		Ext:     strings.ToLower(filepath.Ext(rel)),
	})
	c.total += size
}

// wanted applies the extension filter. Includes are case-insensitive
// substrings of the relative path that bypass it.
func (c *collector) wanted(rel string) bool {
	if len(c.opts.Exts) == 0 {
		return true
	}
	if _, ok := c.opts.Exts[strings.ToLower(filepath.Ext(rel))]; ok {
		return true
	}
	lower := strings.ToLower(rel)
	return slices.ContainsFunc(c.opts.Includes, func(inc string) bool {
		return inc != "" && strings.Contains(lower, strings.ToLower(inc))
	})
}

func isSymlink(d fs.DirEntry) bool {
	return d.Type()&fs.ModeSymlink != 0
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
