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
	"errors"
	"io/fs"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"github.com/tombee/wfdebug/internal/plan"
	"github.com/tombee/wfdebug/pkg/workflow"
	"gopkg.in/yaml.v3"
)

const maxWorkflowFiles = 100

// Searched in order; the first pattern holds the usual location.
var workflowPatterns = []string{
	".github/workflows/*.{yml,yaml}",
	"*.{yml,yaml}",
	"*/*.{yml,yaml}",
}

var errEnough = errors.New("enough files")

// CompleteWorkflowFiles completes the workflow argument with YAML files
// below the current directory that have a top-level jobs mapping.
func CompleteWorkflowFiles(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		paths := discoverWorkflowFiles(os.DirFS("."), maxWorkflowFiles)
		if len(paths) == 0 {
			return []string{"yml", "yaml"}, cobra.ShellCompDirectiveFilterFileExt
		}
		return paths, cobra.ShellCompDirectiveNoFileComp
	})
}

// discoverWorkflowFiles returns at most limit workflow files of fsys in
// pattern order.
func discoverWorkflowFiles(fsys fs.FS, limit int) []string {
	seen := map[string]bool{}
	var paths []string
	for _, pattern := range workflowPatterns {
		var found []string
		err := doublestar.GlobWalk(fsys, pattern, func(path string, d fs.DirEntry) error {
			if seen[path] || d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
				return nil
			}
			seen[path] = true
			if !isWorkflowFile(fsys, path) {
				return nil
			}
			found = append(found, path)
			if len(paths)+len(found) >= limit {
				return errEnough
			}
			return nil
		})
		sort.Strings(found)
		paths = append(paths, found...)
		if errors.Is(err, errEnough) {
			break
		}
	}
	return paths
}

// isWorkflowFile reports whether the YAML file has a top-level jobs key.
func isWorkflowFile(fsys fs.FS, path string) bool {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return false
	}
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return false
	}
	jobs, ok := doc["jobs"]
	return ok && jobs.Kind == yaml.MappingNode
}

// CompleteJobs completes --job with the job ids of the workflow named by
// the first argument.
func CompleteJobs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		doc, err := workflow.ParseFile(args[0])
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		var jobs []string
		for _, desc := range plan.BuildPlan(doc.Workflow) {
			jobs = append(jobs, desc.ID+"\t"+desc.Job.DisplayName())
		}
		return jobs, cobra.ShellCompDirectiveNoFileComp
	})
}
