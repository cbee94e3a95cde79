// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflow

import (
	"sort"
	"unicode/utf8"
)

// Lines indexes the line structure of a document so that byte offsets,
// line numbers and columns can be converted into one another. Lines and
// columns are zero-based.
type Lines struct {
	src    []byte
	starts []int
}

// NewLines indexes src.
func NewLines(src []byte) *Lines {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Lines{src: src, starts: starts}
}

// Count returns the number of lines. A trailing newline starts a final
// empty line.
func (l *Lines) Count() int {
	return len(l.starts)
}

// Start returns the offset of the first byte of line. Lines past the end
// clamp to the document length.
func (l *Lines) Start(line int) int {
	switch {
	case line < 0:
		return 0
	case line >= len(l.starts):
		return len(l.src)
	}
	return l.starts[line]
}

// End returns the offset just past the last content byte of line,
// excluding the line terminator.
func (l *Lines) End(line int) int {
	if line < 0 {
		return 0
	}
	if line >= len(l.starts) {
		return len(l.src)
	}
	end := len(l.src)
	if line+1 < len(l.starts) {
		end = l.starts[line+1] - 1
	}
	if end > l.starts[line] && l.src[end-1] == '\r' {
		end--
	}
	return end
}

// LineAt returns the line containing offset.
func (l *Lines) LineAt(offset int) int {
	if offset < 0 {
		return 0
	}
	return sort.Search(len(l.starts), func(i int) bool { return l.starts[i] > offset }) - 1
}

// Offset converts a line and a column counted in characters to a byte
// offset. The column stops at the end of the line.
func (l *Lines) Offset(line, column int) int {
	off := l.Start(line)
	end := l.End(line)
	for ; column > 0 && off < end; column-- {
		_, size := utf8.DecodeRune(l.src[off:end])
		off += size
	}
	return off
}

// Indent returns the number of leading spaces on line.
func (l *Lines) Indent(line int) int {
	n := 0
	for off := l.Start(line); off < l.End(line) && l.src[off] == ' '; off++ {
		n++
	}
	return n
}

// Blank reports whether line holds only whitespace.
func (l *Lines) Blank(line int) bool {
	for off := l.Start(line); off < l.End(line); off++ {
		if c := l.src[off]; c != ' ' && c != '\t' {
			return false
		}
	}
	return true
}
