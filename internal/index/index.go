package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"srcmark/internal/cache"
	"srcmark/internal/logging"
	"srcmark/internal/markup"
	"srcmark/internal/plugins"
	"srcmark/internal/textutil"
	"srcmark/internal/walkwalk"
)

// IndexFile runs the pipeline once over text and keeps both projections of
// the balanced stream. Warnings are collected on the result and also
// forwarded to sink when it is non-nil.
func IndexFile(path, text string, ann plugins.Annotations, sink markup.Sink) FileIndex {
	fi := FileIndex{
		Path:     path,
		Text:     text,
		Lang:     plugins.InferLangByExt(filepath.Ext(path)),
		Hash:     walkwalk.HashBytes([]byte(text)),
		Bytes:    int64(len(text)),
		HTML:     []string{},
		Lines:    []markup.LineRecord{},
		Pointers: BuildAnchorPointers(path, text),
	}
	collect := markup.SinkFunc(func(w *markup.Warning) {
		fi.Warnings = append(fi.Warnings, w)
		if sink != nil {
			sink.Warn(w)
		}
	})
	for ln := range markup.Lines(text, ann.Regions, ann.Refs, markup.WithSink(collect)) {
		fi.HTML = append(fi.HTML, ln.HTML())
		fi.Lines = append(fi.Lines, ln.Record())
	}
	fi.LinesKey = cache.LinesKey(fi.Lines)
	return fi
}

// Annotate runs producers over one file and merges their spans. A failing
// producer is reported through onErr and skipped; the others still count.
func Annotate(relPath, text string, producers []plugins.Producer, onErr func(plugin string, err error)) plugins.Annotations {
	var all plugins.Annotations
	for _, p := range producers {
		ann, err := p.Annotate(relPath, text)
		if err != nil {
			if onErr != nil {
				onErr(p.Name(), err)
			}
			continue
		}
		all.Merge(ann)
	}
	return all
}

// BuildOptions tune Build. Zero values pick defaults.
type BuildOptions struct {
	// Workers bounds parallelism; <= 0 means GOMAXPROCS.
	Workers int
	// Producers selects the producers for a file; nil means
	// plugins.ForFile(root, relPath).
	Producers func(relPath string) []plugins.Producer
}

// Build indexes files in parallel, one file per job. The result is in the
// order of files regardless of scheduling. The first read error cancels the
// remaining work and is returned; ctx cancellation is returned as ctx.Err().
func Build(ctx context.Context, root string, files []walkwalk.FileInfo, opts BuildOptions) ([]FileIndex, error) {
	producers := opts.Producers
	if producers == nil {
		producers = func(rel string) []plugins.Producer { return plugins.ForFile(root, rel) }
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = max(1, min(workers, len(files)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([]FileIndex, len(files))
	jobs := make(chan int)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fi, err := indexOne(ctx, files[i], producers)
				if err != nil {
					fail(err)
					continue
				}
				out[i] = fi
			}
		}()
	}

feed:
	for i := range files {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func indexOne(ctx context.Context, f walkwalk.FileInfo, producers func(string) []plugins.Producer) (FileIndex, error) {
	began := time.Now()
	data, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return FileIndex{}, fmt.Errorf("read %s: %w", f.RelPath, err)
	}
	text := string(data)
	log := logging.LoggerFromContext(ctx).With("path", f.RelPath)
	if !textutil.ValidUTF8(text) {
		log.Warn("file is not valid UTF-8; offsets are bytes")
	}

	ann := Annotate(f.RelPath, text, producers(f.RelPath), func(plugin string, err error) {
		logging.PluginError(ctx, plugin, f.RelPath, err)
	})
	fi := IndexFile(f.RelPath, text, ann, markup.LogSink(log))
	logging.FileIndexed(ctx, f.RelPath, len(fi.Lines), len(fi.Warnings), time.Since(began))
	return fi, nil
}

// warningCount sums warnings across files, for run summaries.
func warningCount(files []FileIndex) int {
	n := 0
	for _, f := range files {
		n += len(f.Warnings)
	}
	return n
}

// LogSummary reports totals for a finished build.
func LogSummary(log *slog.Logger, man Manifest, files []FileIndex) {
	lines := 0
	for _, f := range man.Files {
		lines += f.Lines
	}
	log.Info("index built",
		"module", man.Module,
		"files", len(man.Files),
		"lines", lines,
		"warnings", warningCount(files),
		"bundle_id", man.BundleID,
	)
}
