// Package diff provides unified-diff generation for rendered output and line
// records. It uses github.com/pmezard/go-difflib/difflib to produce classic
// unified patches (---/+++ headers, @@ hunks, lines prefixed with ' ', '-', '+').
package diff

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// DefaultContext is the number of context lines used when Options.Context is 0.
const DefaultContext = 4

// Options controls patch generation behavior.
type Options struct {
	// MaxBytes is a guardrail on input size (old+new). When exceeded,
	// a minimal placeholder patch is returned and oversize=true.
	// 0 means "no limit".
	MaxBytes int

	// Context controls the number of CONTEXT LINES in unified hunks.
	// If 0, default to DefaultContext.
	Context int

	// NoPrefix controls whether FromFile/ToFile are prefixed with "a/" and "b/".
	NoPrefix bool
}

// Names returns the from/to header names for path under opt.
func (opt Options) Names(path string) (string, string) {
	if opt.NoPrefix {
		return path, path
	}
	return "a/" + path, "b/" + path
}

func (opt Options) context() int {
	if opt.Context <= 0 {
		return DefaultContext
	}
	return opt.Context
}

// Unified produces a classic unified patch for a↦b.
// Returns the patch body ("" when a and b are equal) and a flag indicating
// it was omitted due to size.
func Unified(aName, bName string, a, b []byte, opt Options) (body string, oversize bool) {
	if opt.MaxBytes > 0 && (len(a)+len(b)) > opt.MaxBytes {
		return omitted(aName, bName), true
	}
	return unified(aName, bName, splitLinesKeepNL(string(a)), splitLinesKeepNL(string(b)), opt.context()), false
}

// Lines diffs two slices of unterminated lines, such as per-line HTML
// fragments. Each line is compared as a whole.
func Lines(aName, bName string, a, b []string, opt Options) (body string, oversize bool) {
	if opt.MaxBytes > 0 && size(a)+size(b) > opt.MaxBytes {
		return omitted(aName, bName), true
	}
	return unified(aName, bName, terminate(a), terminate(b), opt.context()), false
}

// Added produces a patch that adds the entire content b (no old version).
func Added(bName string, b []byte, opt Options) (string, bool) {
	if opt.MaxBytes > 0 && len(b) > opt.MaxBytes {
		return omitted("/dev/null", bName), true
	}
	body := unified("/dev/null", bName, []string{}, splitLinesKeepNL(string(b)), opt.context())
	if body == "" {
		// Empty new file: keep the headers so the entry is not silently dropped.
		body = fmt.Sprintf("--- /dev/null\n+++ %s\n", bName)
	}
	return body, false
}

func unified(aName, bName string, a, b []string, ctx int) string {
	u := difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: aName,
		ToFile:   bName,
		Context:  ctx,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return omitted(aName, bName)
	}
	return s
}

// splitLinesKeepNL splits into lines and keeps newline characters,
// which produces better unified hunks.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func terminate(lines []string) []string {
	out := make([]string, len(lines))
	for i, ln := range lines {
		out[i] = ln + "\n"
	}
	return out
}

func size(lines []string) int {
	n := 0
	for _, ln := range lines {
		n += len(ln) + 1
	}
	return n
}

// omitted returns a compact placeholder when size limits are exceeded.
func omitted(aName, bName string) string {
	return fmt.Sprintf("--- %s\n+++ %s\n@@\n# diff omitted (oversize)\n", aName, bName)
}
