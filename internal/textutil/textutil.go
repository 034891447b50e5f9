// Package textutil holds line-splitting helpers with universal-newline
// semantics: "\n", "\r\n" and a bare "\r" all terminate a line.
package textutil

import "unicode/utf8"

// SplitLines splits text into lines, keeping each line's terminator. A final
// line without a terminator is still returned; empty text yields no lines.
// Concatenating the result gives back text.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := make([]string, 0, 16)
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			lines = append(lines, text[start:i+1])
			start = i + 1
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

// CountLines is len(SplitLines(text)) without allocating.
func CountLines(text string) int {
	n := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			n++
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			n++
		}
	}
	if len(text) > 0 && text[len(text)-1] != '\n' && text[len(text)-1] != '\r' {
		n++
	}
	return n
}

// TerminatorLen returns the byte length of the line terminator at the end of
// line: 2 for "\r\n", 1 for "\n" or "\r", 0 otherwise.
func TerminatorLen(line string) int {
	n := len(line)
	switch {
	case n >= 2 && line[n-2] == '\r' && line[n-1] == '\n':
		return 2
	case n >= 1 && (line[n-1] == '\n' || line[n-1] == '\r'):
		return 1
	}
	return 0
}

// TrimTerminator returns line without its terminator.
func TrimTerminator(line string) string {
	return line[:len(line)-TerminatorLen(line)]
}

// LineStarts returns the file-absolute offset of the first byte of each line.
func LineStarts(lines []string) []int {
	starts := make([]int, len(lines))
	off := 0
	for i, ln := range lines {
		starts[i] = off
		off += len(ln)
	}
	return starts
}

// ValidUTF8 reports whether text is valid UTF-8. Byte offsets handed to the
// markup pipeline are only meaningful for valid text.
func ValidUTF8(text string) bool {
	return utf8.ValidString(text)
}
