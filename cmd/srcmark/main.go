// Package main provides the srcmark CLI. It renders source files to per-line
// HTML with balanced markup and writes reproducible bundles of the results.
//
// Modes (mutually exclusive):
//   - RENDER : srcmark --render FILE [src_dir]     print HTML lines (or --records, --from-cache)
//   - FULL   : srcmark --zip out.zip <src_dir>     index the tree, write a full bundle
//   - DELTA  : srcmark --delta out.zip <src_dir>   write changes since the last run
//   - VERIFY : srcmark --verify <src_dir>          compare fresh and stored renderings
//
// FULL and DELTA store a snapshot and the line records of every file in the
// cache directory; DELTA and VERIFY read them back.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"srcmark/internal/bundle"
	"srcmark/internal/cache"
	"srcmark/internal/config"
	"srcmark/internal/diff"
	"srcmark/internal/index"
	"srcmark/internal/logging"
	"srcmark/internal/markup"
	"srcmark/internal/meta"
	"srcmark/internal/plugins"
	"srcmark/internal/validate"
	"srcmark/internal/walkwalk"
)

// Exit codes.
const (
	exitOK    = 0
	exitFail  = 1 // run failed, or --verify found drift
	exitUsage = 2
)

// Config is the parsed command line. Flags that were not given explicitly
// leave the file configuration untouched.
type Config struct {
	srcDir string

	render    string
	records   bool
	fromCache bool
	zipOut    string
	deltaOut  string
	verify    bool

	configPath   string
	cacheDir     string
	newCache     bool
	noSnapshot   bool
	workers      int
	module       string
	exts         string
	exclude      string
	disable      string
	logLevel     string
	logFormat    string
	diffContext  int
	diffNoPrefix bool
	maxDiffBytes int

	changed map[string]bool
}

func newFlagSet(cfg *Config, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("srcmark", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage:\n")
		fmt.Fprintf(stderr, "  RENDER : srcmark --render FILE [src_dir]\n")
		fmt.Fprintf(stderr, "  FULL   : srcmark --zip out.zip [flags] <src_dir>\n")
		fmt.Fprintf(stderr, "  DELTA  : srcmark --delta out.zip [flags] <src_dir>\n")
		fmt.Fprintf(stderr, "  VERIFY : srcmark --verify [flags] <src_dir>\n")
		fmt.Fprintln(stderr, "\nFlags:")
		fs.PrintDefaults()
	}

	// Modes
	fs.StringVarP(&cfg.render, "render", "r", "", "render one file and print its HTML lines")
	fs.BoolVar(&cfg.records, "records", false, "with --render, print JSON line records instead of HTML")
	fs.BoolVar(&cfg.fromCache, "from-cache", false, "with --render, render from the records stored by the last FULL or DELTA run")
	fs.StringVarP(&cfg.zipOut, "zip", "z", "", "path to output FULL zip bundle")
	fs.StringVarP(&cfg.deltaOut, "delta", "d", "", "path to output DELTA zip bundle")
	fs.BoolVar(&cfg.verify, "verify", false, "re-render from stored records and report drift (exit 1)")

	// Configuration
	fs.StringVarP(&cfg.configPath, "config", "c", "", "config file (default <src_dir>/"+config.FileName+")")
	fs.StringVar(&cfg.cacheDir, "cache-dir", "", "base cache directory for snapshots and line records")
	fs.BoolVar(&cfg.newCache, "new", false, "reset the cache for <src_dir> before running")
	fs.BoolVar(&cfg.noSnapshot, "no-snapshot", false, "do not update the cache after FULL or DELTA")
	fs.IntVarP(&cfg.workers, "workers", "j", 0, "files indexed in parallel (0 = GOMAXPROCS)")
	fs.StringVar(&cfg.module, "module", "", "module name for the manifest (default: detected)")
	fs.StringVar(&cfg.exts, "ext", "", "comma-separated extensions to include")
	fs.StringVar(&cfg.exclude, "exclude", "", "comma-separated dir/file prefixes to exclude")
	fs.StringVar(&cfg.disable, "disable", "", "comma-separated producers to switch off (anchors, gosyms, pysyms, declsyms, sidecar)")
	fs.StringVar(&cfg.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&cfg.logFormat, "log-format", "", "text or json")
	fs.IntVar(&cfg.diffContext, "diff-context", 0, "context lines in unified diffs")
	fs.BoolVar(&cfg.diffNoPrefix, "diff-no-prefix", false, "omit a/ and b/ prefixes in diff headers")
	fs.IntVar(&cfg.maxDiffBytes, "max-diff-bytes", 0, "max bytes per diff before it is omitted (0 = config value)")
	return fs
}

// parseFlags parses args (without the program name).
func parseFlags(args []string) (Config, error) {
	return parseFlagsTo(args, io.Discard)
}

func parseFlagsTo(args []string, stderr io.Writer) (Config, error) {
	var cfg Config
	fs := newFlagSet(&cfg, stderr)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	cfg.changed = map[string]bool{}
	fs.Visit(func(f *pflag.Flag) { cfg.changed[f.Name] = true })

	switch {
	case fs.NArg() > 1:
		return cfg, fmt.Errorf("expected one <src_dir>, got %d arguments", fs.NArg())
	case fs.NArg() == 1:
		cfg.srcDir = filepath.Clean(fs.Arg(0))
	case cfg.render != "":
		cfg.srcDir = "."
	default:
		return cfg, errors.New("missing <src_dir>")
	}
	return cfg, nil
}

// selectMode returns "render", "full", "delta" or "verify".
func selectMode(cfg Config) (string, error) {
	var modes []string
	if cfg.render != "" {
		modes = append(modes, "render")
	}
	if cfg.zipOut != "" {
		modes = append(modes, "full")
	}
	if cfg.deltaOut != "" {
		modes = append(modes, "delta")
	}
	if cfg.verify {
		modes = append(modes, "verify")
	}
	switch len(modes) {
	case 0:
		return "", errors.New("one of --render, --zip, --delta or --verify is required")
	case 1:
		return modes[0], nil
	default:
		return "", fmt.Errorf("--render, --zip, --delta and --verify are mutually exclusive (got %s)", strings.Join(modes, ", "))
	}
}

// loadConfig reads the config file and applies the explicitly given flags.
func loadConfig(cfg Config) (*config.Config, error) {
	var (
		fc  *config.Config
		err error
	)
	if cfg.configPath != "" {
		fc, err = config.LoadFromFile(cfg.configPath)
	} else {
		fc, err = config.Load(cfg.srcDir)
	}
	if err != nil {
		return nil, err
	}
	applyOverrides(fc, cfg)
	if err := fc.Validate(); err != nil {
		return nil, err
	}
	return fc, nil
}

func applyOverrides(fc *config.Config, cfg Config) {
	set := func(name string) bool { return cfg.changed[name] }
	if set("cache-dir") {
		fc.CacheDir = cfg.cacheDir
	}
	if set("workers") {
		fc.Workers = cfg.workers
	}
	if set("module") {
		fc.Module = cfg.module
	}
	if set("ext") {
		fc.Walk.Exts = splitCSV(cfg.exts)
	}
	if set("exclude") {
		fc.Walk.Exclude = splitCSV(cfg.exclude)
	}
	if set("disable") {
		fc.Plugins.Disabled = splitCSV(cfg.disable)
	}
	if set("log-level") {
		fc.Log.Level = cfg.logLevel
	}
	if set("log-format") {
		fc.Log.Format = cfg.logFormat
	}
	if set("diff-context") {
		fc.Diff.Context = cfg.diffContext
	}
	if set("diff-no-prefix") {
		fc.Diff.NoPrefix = cfg.diffNoPrefix
	}
	if set("max-diff-bytes") {
		fc.Diff.MaxBytes = cfg.maxDiffBytes
	}
}

// splitCSV converts a comma-separated list into a slice, trimming spaces.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one invocation and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := parseFlagsTo(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, "ERROR:", err)
		return exitUsage
	}
	mode, err := selectMode(cfg)
	if err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		return exitUsage
	}
	fc, err := loadConfig(cfg)
	if err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		return exitUsage
	}

	level, _ := logging.ParseLevel(fc.Log.Level)
	format, _ := logging.ParseFormat(fc.Log.Format)
	logging.SetLogger(logging.New(stderr, level, format))
	runID := logging.NewRunID()
	ctx = logging.WithRunID(ctx, runID)
	log := logging.LoggerFromContext(ctx)

	app := &app{cfg: cfg, fc: fc, runID: runID, stdout: stdout}
	switch mode {
	case "render":
		err = app.render(ctx)
	case "full":
		err = app.full(ctx)
	case "delta":
		err = app.delta(ctx)
	case "verify":
		err = app.verifyTree(ctx)
	}
	switch {
	case errors.Is(err, errDrift):
		return exitFail
	case err != nil:
		log.Error("run failed", "mode", mode, "error", err)
		return exitFail
	}
	return exitOK
}

var errDrift = errors.New("rendering drift")

type app struct {
	cfg    Config
	fc     *config.Config
	runID  string
	stdout io.Writer
}

func (a *app) producers(root string) func(string) []plugins.Producer {
	disabled := a.fc.Plugins.Disabled
	return func(rel string) []plugins.Producer {
		return plugins.Without(plugins.ForFile(root, rel), disabled)
	}
}

func (a *app) cacheDir() (string, error) {
	abs, err := filepath.Abs(a.cfg.srcDir)
	if err != nil {
		return "", err
	}
	dir := cache.CacheDir(a.fc.CacheDir, abs)
	if a.cfg.newCache {
		if err := cache.Clear(dir); err != nil {
			return "", fmt.Errorf("reset cache: %w", err)
		}
	}
	return dir, nil
}

// render prints one file. Its sidecar is looked up relative to src_dir.
func (a *app) render(ctx context.Context) error {
	root := a.cfg.srcDir
	data, err := os.ReadFile(a.cfg.render)
	if err != nil {
		return err
	}
	rel, err := relativeTo(root, a.cfg.render)
	if err != nil {
		return err
	}
	log := logging.LoggerFromContext(ctx).With("path", rel)
	text := string(data)
	if a.cfg.fromCache {
		return a.renderStored(rel, text, log)
	}
	ann := index.Annotate(rel, text, a.producers(root)(rel), func(plugin string, err error) {
		logging.PluginError(ctx, plugin, rel, err)
	})
	fi := index.IndexFile(rel, text, ann, markup.LogSink(log))

	if a.cfg.records {
		return cache.EncodeLines(a.stdout, fi.Lines)
	}
	for _, ln := range fi.HTML {
		if _, err := fmt.Fprintln(a.stdout, ln); err != nil {
			return err
		}
	}
	return nil
}

// renderStored prints the skim rendering of a file from the cache. The file
// must be unchanged since the run that stored it.
func (a *app) renderStored(rel, text string, log *slog.Logger) error {
	dir, err := a.cacheDir()
	if err != nil {
		return err
	}
	prev, err := cache.Load(dir)
	if err != nil {
		return err
	}
	recs, ok, err := storedLines(dir, prev, rel, walkwalk.HashBytes([]byte(text)))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no stored records for %s at its current content", rel)
	}
	if a.cfg.records {
		return cache.EncodeLines(a.stdout, recs)
	}
	for _, ln := range cache.Skim(text, recs, markup.WithSink(markup.LogSink(log))) {
		if _, err := fmt.Fprintln(a.stdout, ln); err != nil {
			return err
		}
	}
	return nil
}

// storedLines reads the records the snapshot lists for path, provided the
// snapshot saw the same content hash.
func storedLines(dir string, snap *cache.Snapshot, path, hash string) ([]markup.LineRecord, bool, error) {
	if snap == nil {
		return nil, false, nil
	}
	i := slices.IndexFunc(snap.Files, func(f cache.SnapFile) bool { return f.Path == path })
	if i < 0 {
		return nil, false, nil
	}
	f := snap.Files[i]
	if f.Hash != hash || !cache.HasLines(dir, f.Records) {
		return nil, false, nil
	}
	recs, err := cache.ReadLines(dir, f.Records)
	if err != nil {
		return nil, false, err
	}
	return recs, true, nil
}

func relativeTo(root, path string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		// Outside the tree: no sidecar, path as given.
		return filepath.ToSlash(filepath.Base(path)), nil
	}
	return filepath.ToSlash(rel), nil
}

// buildTree walks and indexes the source tree and validates the result.
func (a *app) buildTree(ctx context.Context) (index.Manifest, []index.FileIndex, error) {
	log := logging.LoggerFromContext(ctx)
	root := a.cfg.srcDir
	files, total, err := walkwalk.CollectFiles(root, a.fc.WalkOptions())
	if err != nil {
		return index.Manifest{}, nil, err
	}
	log.Info("files collected", "root", root, "files", len(files), "bytes", total)

	began := time.Now()
	indexed, err := index.Build(ctx, root, files, index.BuildOptions{
		Workers:   a.fc.Workers,
		Producers: a.producers(root),
	})
	if err != nil {
		return index.Manifest{}, nil, err
	}

	man := index.BuildManifest(a.fc.Module, a.runID, indexed)
	meta.ApplyToManifest(meta.Detect(root), &man)
	index.LogSummary(log.With("took", time.Since(began).Round(time.Millisecond)), man, indexed)

	if err := validateIndex(man, indexed); err != nil {
		return index.Manifest{}, nil, fmt.Errorf("index failed validation:\n%w", err)
	}
	return man, indexed, nil
}

func validateIndex(man index.Manifest, files []index.FileIndex) error {
	errs := []error{validate.Manifest(man)}
	for _, fi := range files {
		errs = append(errs, validate.LineRecords(fi.Path, fi.Text, fi.Lines))
	}
	return errors.Join(errs...)
}

// full writes a FULL bundle and refreshes the cache.
func (a *app) full(ctx context.Context) error {
	dir, err := a.cacheDir()
	if err != nil {
		return err
	}
	man, files, err := a.buildTree(ctx)
	if err != nil {
		return err
	}
	if err := bundle.WriteFull(a.cfg.zipOut, man, files); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	if err := a.store(ctx, dir, man, files); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Wrote bundle %s (files=%d, bundle=%s)\n", a.cfg.zipOut, len(man.Files), man.BundleID)
	return nil
}

// delta writes the changes since the stored snapshot and refreshes the cache.
func (a *app) delta(ctx context.Context) error {
	log := logging.LoggerFromContext(ctx)
	dir, err := a.cacheDir()
	if err != nil {
		return err
	}
	prev, err := cache.Load(dir)
	if err != nil {
		return err
	}
	if prev == nil {
		log.Info("no previous snapshot; every file counts as added", "cache", dir)
	}
	man, files, err := a.buildTree(ctx)
	if err != nil {
		return err
	}
	curr := snapshotOf(man)
	d := cache.BuildDelta(prev, curr)

	opt := a.fc.DiffOptions()
	patches, changed, err := bundle.MakeDeltaDiffs(d, files, opt, func(key string) ([]markup.LineRecord, error) {
		return cache.ReadLines(dir, key)
	})
	if err != nil {
		return err
	}

	added := make(map[string]struct{}, len(d.Added))
	for _, f := range d.Added {
		added[f.Path] = struct{}{}
	}
	addedFiles := slices.DeleteFunc(slices.Clone(files), func(fi index.FileIndex) bool {
		_, ok := added[fi.Path]
		return !ok
	})

	readme := bundle.ReadmeOptions{
		SupportedLangs: plugins.SupportedLangs(),
		Files:          len(man.Files),
		DiffNoPrefix:   opt.NoPrefix,
		ContextLines:   opt.Context,
	}
	if readme.ContextLines <= 0 {
		readme.ContextLines = diff.DefaultContext
	}
	for _, f := range man.Files {
		readme.Bytes += f.Bytes
		if f.Lang != "" {
			readme.PresentLangs = append(readme.PresentLangs, f.Lang)
		}
	}
	if err := bundle.WriteDelta(a.cfg.deltaOut, bundle.NewDeltaIndex(prev, man, d, changed), patches, addedFiles, readme); err != nil {
		return fmt.Errorf("write delta: %w", err)
	}
	if err := a.store(ctx, dir, man, files); err != nil {
		return err
	}

	oversize := 0
	for _, c := range changed {
		if c.Oversize {
			oversize++
		}
	}
	fmt.Fprintf(a.stdout,
		"Wrote delta bundle %s (added=%d, removed=%d, changed=%d, renamed=%d, oversize=%d)\n",
		a.cfg.deltaOut, len(d.Added), len(d.Removed), len(d.Changed), len(d.Renamed), oversize,
	)
	return nil
}

// verifyTree re-runs every file's stored records through the pipeline and
// compares the result with a fresh run. Drift is printed as unified patches.
func (a *app) verifyTree(ctx context.Context) error {
	log := logging.LoggerFromContext(ctx)
	dir, err := a.cacheDir()
	if err != nil {
		return err
	}
	prev, err := cache.Load(dir)
	if err != nil {
		return err
	}
	_, files, err := a.buildTree(ctx)
	if err != nil {
		return err
	}
	rep, err := bundle.MakeVerifyDiffs(files, func(fi index.FileIndex) ([]markup.LineRecord, bool, error) {
		recs, ok, err := storedLines(dir, prev, fi.Path, fi.Hash)
		if !ok || err != nil {
			return nil, ok, err
		}
		return cache.SkimLines(fi.Text, recs, markup.WithSink(markup.LogSink(log.With("path", fi.Path)))), true, nil
	}, a.fc.DiffOptions())
	if err != nil {
		return err
	}

	names := make([]string, 0, len(rep.Patches))
	for n := range rep.Patches {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprint(a.stdout, rep.Patches[n])
	}
	if len(rep.Skipped) > 0 {
		log.Warn("files without stored records", "count", len(rep.Skipped), "first", rep.Skipped[0])
	}
	log.Info("verify finished", "checked", rep.Checked, "skipped", len(rep.Skipped), "drifted", len(rep.Drifted))
	if !rep.OK() {
		return errDrift
	}
	return nil
}

// store saves line records for every file and then the snapshot, so a
// snapshot never names records that are missing.
func (a *app) store(ctx context.Context, dir string, man index.Manifest, files []index.FileIndex) error {
	if a.cfg.noSnapshot {
		return nil
	}
	for _, fi := range files {
		if err := cache.SaveLines(dir, fi.LinesKey, fi.Lines); err != nil {
			return fmt.Errorf("store lines for %s: %w", fi.Path, err)
		}
	}
	if err := cache.Save(dir, snapshotOf(man)); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	logging.InfoContext(ctx, "cache updated", "dir", dir, "files", len(files))
	return nil
}

func snapshotOf(man index.Manifest) *cache.Snapshot {
	s := &cache.Snapshot{
		Module:        man.Module,
		Created:       time.Now().UTC().Format(time.RFC3339),
		RunID:         man.RunID,
		BundleID:      man.BundleID,
		FormatVersion: cache.FormatVersion,
		Files:         make([]cache.SnapFile, 0, len(man.Files)),
	}
	for _, f := range man.Files {
		s.Files = append(s.Files, cache.SnapFile{Path: f.Path, Hash: f.Hash, Records: f.Records, Lines: f.Lines})
	}
	return s
}
