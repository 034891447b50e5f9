package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// captureLogOutput swaps the global logger for one writing JSON to a buffer.
func captureLogOutput(level Level, f func()) string {
	var buf bytes.Buffer
	old := defaultLogger
	defaultLogger = New(&buf, level, FormatJSON)
	defer func() { defaultLogger = old }()
	f()
	return buf.String()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Fatalf("ParseFormat(JSON) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatal("expected error for xml")
	}
}

func TestNewUsesRFC3339Timestamps(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, LevelInfo, FormatJSON).Info("hello")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not JSON: %q", buf.String())
	}
	ts, _ := rec["time"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Fatalf("time %q is not RFC3339: %v", ts, err)
	}
}

func TestLevelFilters(t *testing.T) {
	out := captureLogOutput(LevelWarn, func() {
		Info("quiet")
		Warn("loud")
	})
	if strings.Contains(out, "quiet") || !strings.Contains(out, "loud") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestRunIDRoundTrip(t *testing.T) {
	id := NewRunID()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("run id %q is not a uuid: %v", id, err)
	}
	ctx := WithRunID(context.Background(), id)
	if got := GetRunID(ctx); got != id {
		t.Fatalf("GetRunID = %q, want %q", got, id)
	}
	if got := GetRunID(context.Background()); got != "" {
		t.Fatalf("expected empty run id, got %q", got)
	}
}

func TestContextHelpersAttachRunID(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	out := captureLogOutput(LevelDebug, func() {
		InfoContext(ctx, "start")
		PluginError(ctx, "gosyms", "a.go", errors.New("boom"))
		FileIndexed(ctx, "a.go", 3, 1, 2*time.Millisecond)
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 records, got %d: %s", len(lines), out)
	}
	for _, ln := range lines {
		if !strings.Contains(ln, `"run_id":"run-1"`) {
			t.Fatalf("record without run id: %s", ln)
		}
	}
	if !strings.Contains(lines[1], `"plugin":"gosyms"`) || !strings.Contains(lines[1], `"error":"boom"`) {
		t.Fatalf("plugin error record: %s", lines[1])
	}
	if !strings.Contains(lines[2], `"lines":3`) {
		t.Fatalf("file record: %s", lines[2])
	}
}
