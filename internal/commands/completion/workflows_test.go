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

package completion

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/spf13/cobra"
)

const ciWorkflow = `name: CI
jobs:
  build:
    name: Build
    steps:
      - run: make
  test:
    steps:
      - run: make test
`

func TestDiscoverWorkflowFiles(t *testing.T) {
	fsys := fstest.MapFS{
		".github/workflows/ci.yml":       {Data: []byte(ciWorkflow)},
		".github/workflows/release.yaml": {Data: []byte(ciWorkflow)},
		".github/dependabot.yml":         {Data: []byte("version: 2\n")},
		"local.yml":                      {Data: []byte(ciWorkflow)},
		"docs/config.yaml":               {Data: []byte("jobs: []\n")},
		"broken.yml":                     {Data: []byte("{{{")},
		"deep/nested/dir/ci.yml":         {Data: []byte(ciWorkflow)},
	}

	got := discoverWorkflowFiles(fsys, maxWorkflowFiles)
	want := []string{".github/workflows/ci.yml", ".github/workflows/release.yaml", "local.yml"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("discoverWorkflowFiles() = %v, want %v", got, want)
	}

	if got := discoverWorkflowFiles(fsys, 1); len(got) != 1 {
		t.Errorf("limit not applied: %v", got)
	}
}

func TestIsWorkflowFile(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected bool
	}{
		{name: "jobs mapping", content: ciWorkflow, expected: true},
		{name: "jobs is a list", content: "jobs: []\n", expected: false},
		{name: "no jobs", content: "name: x\n", expected: false},
		{name: "invalid YAML", content: "{{{invalid", expected: false},
		{name: "empty file", content: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{"w.yml": {Data: []byte(tt.content)}}
			if got := isWorkflowFile(fsys, "w.yml"); got != tt.expected {
				t.Errorf("isWorkflowFile() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCompleteJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ci.yml")
	if err := os.WriteFile(path, []byte(ciWorkflow), 0o600); err != nil {
		t.Fatal(err)
	}

	got, directive := CompleteJobs(nil, []string{path}, "")
	if strings.Join(got, ",") != "build\tBuild,test\ttest" {
		t.Errorf("CompleteJobs() = %q", got)
	}
	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("unexpected directive %v", directive)
	}

	if got, _ := CompleteJobs(nil, nil, ""); len(got) != 0 {
		t.Errorf("expected no jobs without a workflow, got %v", got)
	}
	if got, _ := CompleteJobs(nil, []string{filepath.Join(t.TempDir(), "missing.yml")}, ""); len(got) != 0 {
		t.Errorf("expected no jobs for a missing file, got %v", got)
	}
}

func TestCompleteWorkflowFiles_OnlyFirstArg(t *testing.T) {
	got, directive := CompleteWorkflowFiles(nil, []string{"ci.yml"}, "")
	if len(got) != 0 || directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("unexpected completion %v %v", got, directive)
	}
}

func TestSafeCompletionWrapper(t *testing.T) {
	got, directive := SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		panic("boom")
	})
	if len(got) != 0 || directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("panic not recovered: %v %v", got, directive)
	}
}

func TestCompletionCommand(t *testing.T) {
	root := &cobra.Command{Use: "wfdebug"}
	root.AddCommand(NewCommand())

	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			var buf bytes.Buffer
			root.SetOut(&buf)
			root.SetArgs([]string{"completion", shell})
			if err := root.Execute(); err != nil {
				t.Fatalf("completion %s failed: %v", shell, err)
			}
			if !strings.Contains(buf.String(), "wfdebug") {
				t.Errorf("script does not mention the binary")
			}
		})
	}

	root.SetArgs([]string{"completion", "tcsh"})
	root.SetErr(&bytes.Buffer{})
	if err := root.Execute(); err == nil {
		t.Error("expected an error for an unsupported shell")
	}
}
