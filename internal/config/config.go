// Package config loads srcmark.toml. A missing file yields the defaults;
// command-line flags are applied on top by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"srcmark/internal/diff"
	"srcmark/internal/logging"
	"srcmark/internal/walkwalk"
)

// FileName is looked up in the root of the source tree.
const FileName = "srcmark.toml"

// Config holds the run configuration.
type Config struct {
	Module   string `toml:"module"`
	CacheDir string `toml:"cache_dir"`
	Workers  int    `toml:"workers"`

	Walk    Walk    `toml:"walk"`
	Log     Log     `toml:"log"`
	Diff    Diff    `toml:"diff"`
	Plugins Plugins `toml:"plugins"`
}

// Walk selects the files to index.
type Walk struct {
	Exts           []string `toml:"exts"`
	Exclude        []string `toml:"exclude"`
	Include        []string `toml:"include"`
	MaxBytes       int64    `toml:"max_bytes"`
	MaxFileBytes   int64    `toml:"max_file_bytes"`
	UseGitignore   bool     `toml:"use_gitignore"`
	FollowSymlinks bool     `toml:"follow_symlinks"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Diff configures verify and delta patches.
type Diff struct {
	Context  int  `toml:"context"`
	MaxBytes int  `toml:"max_bytes"`
	NoPrefix bool `toml:"no_prefix"`
}

// Plugins names producers to switch off, e.g. ["sidecar", "declsyms"].
type Plugins struct {
	Disabled []string `toml:"disabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CacheDir: "tmp/.srcmark",
		Walk: Walk{
			Exts:         []string{".go", ".py", ".java", ".kt", ".cs", ".ts", ".tsx", ".js", ".jsx", ".md", ".txt", ".toml", ".yaml", ".yml", ".json"},
			Exclude:      []string{".git", "node_modules", "dist", "build", "out", "target", ".idea", ".vscode", "tmp"},
			MaxFileBytes: 2_000_000,
			UseGitignore: true,
		},
		Log:  Log{Level: "info", Format: "text"},
		Diff: Diff{Context: diff.DefaultContext, MaxBytes: 2_000_000},
	}
}

// Load reads srcmark.toml from root, falling back to Default when absent.
func Load(root string) (*Config, error) {
	return LoadFromFile(filepath.Join(root, FileName))
}

// LoadFromFile loads config from a specific file. Keys missing from the file
// keep their default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML over the defaults and checks the result. Unknown keys
// are rejected so that typos do not go unnoticed.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("failed to parse config file at %d:%d: %w", row, col, err)
		}
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", c.Workers))
	}
	if c.Walk.MaxBytes < 0 || c.Walk.MaxFileBytes < 0 {
		errs = append(errs, errors.New("walk byte limits must be >= 0"))
	}
	if c.Diff.Context < 0 || c.Diff.MaxBytes < 0 {
		errs = append(errs, errors.New("diff limits must be >= 0"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// WalkOptions converts the walk section for walkwalk.CollectFiles.
func (c *Config) WalkOptions() walkwalk.Options {
	return walkwalk.Options{
		Exts:           toSet(c.Walk.Exts, normalizeExt),
		Exclude:        toSet(c.Walk.Exclude, strings.TrimSpace),
		Includes:       nonEmpty(c.Walk.Include),
		MaxBytes:       c.Walk.MaxBytes,
		MaxFileBytes:   c.Walk.MaxFileBytes,
		UseGitignore:   c.Walk.UseGitignore,
		FollowSymlinks: c.Walk.FollowSymlinks,
	}
}

// DiffOptions converts the diff section.
func (c *Config) DiffOptions() diff.Options {
	return diff.Options{MaxBytes: c.Diff.MaxBytes, Context: c.Diff.Context, NoPrefix: c.Diff.NoPrefix}
}

// Marshal renders c as TOML, for writing a starter file.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

func normalizeExt(e string) string {
	e = strings.ToLower(strings.TrimSpace(e))
	if e != "" && !strings.HasPrefix(e, ".") {
		e = "." + e
	}
	return e
}

func toSet(list []string, norm func(string) string) map[string]struct{} {
	m := make(map[string]struct{}, len(list))
	for _, v := range list {
		if v = norm(v); v != "" {
			m[v] = struct{}{}
		}
	}
	return m
}

func nonEmpty(list []string) []string {
	var out []string
	for _, v := range list {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
