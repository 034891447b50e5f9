package textutil

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplitLinesUniversalNewlines(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a\n", []string{"a\n"}},
		{"a\nb", []string{"a\n", "b"}},
		{"a\r\nb\rc\n", []string{"a\r\n", "b\r", "c\n"}},
		{"\n\n", []string{"\n", "\n"}},
		{"\r\r\n", []string{"\r", "\r\n"}},
		{"x\r", []string{"x\r"}},
	}
	for _, tc := range cases {
		got := SplitLines(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("SplitLines(%q) = %q, want %q", tc.in, got, tc.want)
		}
		if strings.Join(got, "") != tc.in {
			t.Fatalf("SplitLines(%q) does not round-trip", tc.in)
		}
		if n := CountLines(tc.in); n != len(tc.want) {
			t.Fatalf("CountLines(%q) = %d, want %d", tc.in, n, len(tc.want))
		}
	}
}

func TestTerminators(t *testing.T) {
	cases := map[string]int{"abc": 0, "abc\n": 1, "abc\r": 1, "abc\r\n": 2, "\n": 1, "": 0}
	for in, want := range cases {
		if got := TerminatorLen(in); got != want {
			t.Fatalf("TerminatorLen(%q) = %d, want %d", in, got, want)
		}
	}
	if got := TrimTerminator("line\r\n"); got != "line" {
		t.Fatalf("TrimTerminator got %q", got)
	}
}

func TestLineStarts(t *testing.T) {
	got := LineStarts(SplitLines("ab\ncde\r\nf"))
	want := []int{0, 3, 8}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("LineStarts got %v want %v", got, want)
	}
}
