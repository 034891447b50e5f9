package markup

import (
	"context"
	"fmt"
	"log/slog"
)

// WarningKind classifies a pipeline diagnostic. None of them abort the
// pipeline; the offending span or boundary is dropped or clamped.
type WarningKind int

const (
	// MalformedSpan: a null, negative, zero-width or reversed span. Dropped.
	MalformedSpan WarningKind = iota + 1
	// OverlappingRefs: a ref straddles an earlier one. The later ref is dropped.
	OverlappingRefs
	// UnbalancedClose: a closer without a matching open tag. Dropped.
	UnbalancedClose
	// OffsetOutOfFile: an endpoint past the end of the text. Clamped.
	OffsetOutOfFile
)

func (k WarningKind) String() string {
	switch k {
	case MalformedSpan:
		return "malformed_span"
	case OverlappingRefs:
		return "overlapping_refs"
	case UnbalancedClose:
		return "unbalanced_close"
	case OffsetOutOfFile:
		return "offset_out_of_file"
	default:
		return fmt.Sprintf("warning(%d)", int(k))
	}
}

// Level is the log severity a warning of this kind is reported at.
func (k WarningKind) Level() slog.Level {
	if k == UnbalancedClose {
		return slog.LevelError
	}
	return slog.LevelWarn
}

// Warning describes one dropped or adjusted span.
type Warning struct {
	Kind   WarningKind
	Plugin string
	Start  int
	End    int
	Detail string
}

func (w *Warning) Error() string {
	msg := fmt.Sprintf("%s [%d,%d)", w.Kind, w.Start, w.End)
	if w.Plugin != "" {
		msg = w.Plugin + ": " + msg
	}
	if w.Detail != "" {
		msg += ": " + w.Detail
	}
	return msg
}

// Sink receives pipeline warnings. A nil Sink discards them.
type Sink interface {
	Warn(w *Warning)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(w *Warning)

func (f SinkFunc) Warn(w *Warning) { f(w) }

// LogSink reports warnings through a structured logger.
func LogSink(logger *slog.Logger) Sink {
	if logger == nil {
		return nil
	}
	return SinkFunc(func(w *Warning) {
		logger.Log(context.Background(), w.Kind.Level(), "markup warning",
			"kind", w.Kind.String(),
			"plugin", w.Plugin,
			"start", w.Start,
			"end", w.End,
			"detail", w.Detail,
		)
	})
}

// warner is the per-file diagnostics state.
type warner struct {
	sink      Sink
	malformed map[string]struct{} // plugins already reported for MalformedSpan
}

func newWarner(sink Sink) *warner {
	return &warner{sink: sink}
}

func (w *warner) warn(kind WarningKind, plugin string, start, end int, detail string) {
	if w.sink == nil {
		return
	}
	w.sink.Warn(&Warning{Kind: kind, Plugin: plugin, Start: start, End: end, Detail: detail})
}

// malformedSpan reports at most once per plugin per file.
func (w *warner) malformedSpan(plugin string, start, end int) {
	if w.malformed == nil {
		w.malformed = make(map[string]struct{})
	}
	if _, seen := w.malformed[plugin]; seen {
		return
	}
	w.malformed[plugin] = struct{}{}
	w.warn(MalformedSpan, plugin, start, end, "span dropped")
}
