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

// Package format renders command output for terminals.
package format

import (
	"bytes"
	"regexp"

	"github.com/alecthomas/chroma/v2/quick"
)

// Larger inputs are printed without highlighting.
const maxHighlightSize = 2 * 1024 * 1024

var ansiEscapeRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes ANSI escape sequences from s. Text taken from workflow
// files goes through it before it reaches a terminal.
func StripANSI(s string) string {
	return ansiEscapeRegex.ReplaceAllString(s, "")
}

// Highlight applies syntax highlighting for language when isTTY is set.
// Unknown languages and oversized content are returned unchanged.
func Highlight(content, language string, isTTY bool) string {
	if !isTTY || language == "" || len(content) > maxHighlightSize {
		return content
	}

	var buf bytes.Buffer
	if err := quick.Highlight(&buf, content, language, "terminal256", "monokai"); err != nil {
		return content
	}
	return buf.String()
}
