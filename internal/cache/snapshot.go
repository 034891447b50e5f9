// Package cache persists the results of an indexing run so the next run can
// skip unchanged files and so rendered output can be checked against the
// stored index.
//
// Conventions:
//   - The cache root defaults to "tmp/.srcmark" unless overridden by the caller.
//   - A per-project cache lives at: <baseTmp>/<pathKey>/
//   - The snapshot is stored at:    <baseTmp>/<pathKey>/index.json
//   - Line records are stored at:   <baseTmp>/<pathKey>/blobs/aa/bb/<key>.jsonl.xz
//     as one JSON object per line of the file, xz-compressed. key is
//     LinesKey of the records, so a blob never goes stale.
package cache

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"srcmark/internal/markup"
)

const (
	defaultCacheRoot = "tmp/.srcmark"
	indexFileName    = "index.json"
	blobsDirName     = "blobs"
	linesExt         = ".jsonl.xz"
)

// Seams for tests.
var (
	xzNewWriter = xz.NewWriter
	xzNewReader = xz.NewReader
)

// PathKey returns a short, stable identifier for an absolute project path:
// the first 12 hex chars of its blake3 digest.
func PathKey(abs string) string {
	sum := blake3.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:12]
}

// CacheDir resolves the cache directory for the given absolute source path.
// If baseTmp is empty, it falls back to the default "tmp/.srcmark".
func CacheDir(baseTmp, srcAbs string) string {
	root := baseTmp
	if root == "" {
		root = defaultCacheRoot
	}
	return filepath.Join(root, PathKey(srcAbs))
}

// Load reads the snapshot from <dir>/index.json.
// If the file does not exist, it returns (nil, nil) so callers can treat it
// as "no previous snapshot" without branching on errors.
func Load(dir string) (*Snapshot, error) {
	b, err := os.ReadFile(filepath.Join(dir, indexFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &s, nil
}

// Save writes the snapshot atomically to <dir>/index.json.
func Save(dir string, s *Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeAtomic(dir, indexFileName, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	})
}

// Clear removes the entire cache directory for the project.
// Safe to call even if the directory does not exist.
func Clear(dir string) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return os.RemoveAll(dir)
}

// LinesKey is the blake3 hex digest of the encoded records. Records depend
// on more than the source text (sidecars, enabled producers), so blobs are
// addressed by what they hold.
func LinesKey(records []markup.LineRecord) string {
	h := blake3.New()
	// Encoding only fails for unserializable menu extras, which decoding
	// never produces; such records hash as far as they got.
	_ = EncodeLines(h, records)
	return hex.EncodeToString(h.Sum(nil))
}

// SaveLines stores records under hash, normally LinesKey(records). If a blob
// for hash already exists, the call is a no-op.
func SaveLines(dir, hash string, records []markup.LineRecord) error {
	if !isHex(hash) || len(hash) < 6 {
		return errors.New("invalid hash for blob storage")
	}
	p := blobPath(dir, hash)
	if _, err := os.Stat(p); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return writeAtomic(filepath.Dir(p), filepath.Base(p), func(w io.Writer) error {
		zw, err := xzNewWriter(w)
		if err != nil {
			return fmt.Errorf("failed to create xz writer: %w", err)
		}
		if err := EncodeLines(zw, records); err != nil {
			_ = zw.Close()
			return err
		}
		return zw.Close()
	})
}

// ReadLines loads the line records stored under hash.
func ReadLines(dir, hash string) ([]markup.LineRecord, error) {
	if !isHex(hash) || len(hash) < 6 {
		return nil, errors.New("invalid hash for blob read")
	}
	f, err := os.Open(blobPath(dir, hash))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zr, err := xzNewReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to create xz reader: %w", err)
	}
	return DecodeLines(zr)
}

// HasLines reports whether line records are stored for hash.
func HasLines(dir, hash string) bool {
	if !isHex(hash) || len(hash) < 6 {
		return false
	}
	_, err := os.Stat(blobPath(dir, hash))
	return err == nil
}

// EncodeLines writes one compact JSON object per record, newline-terminated.
func EncodeLines(w io.Writer, records []markup.LineRecord) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode line %d: %w", i+1, err)
		}
	}
	return nil
}

// DecodeLines is the inverse of EncodeLines. Blank lines are skipped.
func DecodeLines(r io.Reader) ([]markup.LineRecord, error) {
	out := []markup.LineRecord{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64<<20)
	n := 0
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec markup.LineRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decode line %d: %w", n, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// blobPath returns the canonical path for a line-record blob.
// Layout: <dir>/blobs/aa/bb/<hash>.jsonl.xz
func blobPath(dir, hash string) string {
	h := strings.ToLower(hash)
	return filepath.Join(dir, blobsDirName, h[:2], h[2:4], h+linesExt)
}

// writeAtomic streams into a temporary sibling of dir/name and renames it
// into place, so readers never observe a partially-written file.
func writeAtomic(dir, name string, write func(io.Writer) error) error {
	tmp, f, err := createTempFile(dir, name)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, name))
}

// createTempFile creates ".tmp-<base>-<rand>" in dir.
func createTempFile(dir, base string) (string, *os.File, error) {
	f, err := os.CreateTemp(dir, ".tmp-"+base+"-")
	if err != nil {
		return "", nil, err
	}
	return f.Name(), f, nil
}

// isHex checks if s is a lowercase hex string.
func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
