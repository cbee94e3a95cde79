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

package format

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "make test", want: "make test"},
		{name: "color", in: "\x1b[31mred\x1b[0m", want: "red"},
		{name: "cursor movement", in: "a\x1b[2Kb", want: "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripANSI(tt.in); got != tt.want {
				t.Errorf("StripANSI(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHighlight(t *testing.T) {
	content := `{"jobName": "__default"}`

	tests := []struct {
		name      string
		language  string
		isTTY     bool
		unchanged bool
	}{
		{name: "not a terminal", language: "json", isTTY: false, unchanged: true},
		{name: "no language", language: "", isTTY: true, unchanged: true},
		{name: "json on a terminal", language: "json", isTTY: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Highlight(content, tt.language, tt.isTTY)
			if tt.unchanged {
				if got != content {
					t.Errorf("Highlight() = %q, want input unchanged", got)
				}
				return
			}
			if !strings.Contains(got, "\x1b[") {
				t.Errorf("Highlight() = %q, want ANSI escapes", got)
			}
			if !strings.Contains(StripANSI(got), "__default") {
				t.Errorf("Highlight() lost the text: %q", StripANSI(got))
			}
		})
	}
}

func TestHighlight_Oversized(t *testing.T) {
	content := strings.Repeat("a", maxHighlightSize+1)
	if got := Highlight(content, "json", true); got != content {
		t.Error("oversized content should not be highlighted")
	}
}

func TestIsTTY(t *testing.T) {
	t.Setenv("TERM", "xterm-256color")
	if IsTTY(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}

	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if IsTTY(f) {
		t.Error("a regular file is not a terminal")
	}

	t.Setenv("NO_COLOR", "1")
	if IsTTY(os.Stdout) {
		t.Error("NO_COLOR should disable color")
	}
}
