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
	"fmt"
	"strings"
)

// KeyValue is one entry of an ordered YAML mapping. Value holds a decoded
// scalar (string, int, float64, bool or nil), a []any for sequences, or a
// []KeyValue for nested mappings.
type KeyValue struct {
	Key   string
	Value any
}

// Workflow is the logical model of a workflow document.
type Workflow struct {
	// Name is the workflow display name (optional)
	Name string

	// Env holds workflow-level environment variables in source order
	Env []KeyValue

	// Jobs are the entries of the jobs mapping in document order
	Jobs []*Job
}

// Job returns the job with the given id.
func (w *Workflow) Job(id string) (*Job, bool) {
	for _, job := range w.Jobs {
		if job.ID == id {
			return job, true
		}
	}
	return nil, false
}

// JobIDs returns the job ids in document order.
func (w *Workflow) JobIDs() []string {
	ids := make([]string, len(w.Jobs))
	for i, job := range w.Jobs {
		ids[i] = job.ID
	}
	return ids
}

// Job is a single entry of the jobs mapping.
type Job struct {
	// ID is the key of the job in the jobs mapping
	ID string

	// Name is the optional display name
	Name string

	// RunsOn is the raw runs-on value (string, []any or []KeyValue)
	RunsOn any

	// Needs lists job dependencies. Jobs are planned in document order;
	// Needs is informational only.
	Needs []string

	// Env holds job-level environment variables in source order
	Env []KeyValue

	// Strategy is nil when the job declares no strategy
	Strategy *Strategy

	// Steps are the job's steps in document order
	Steps []*Step
}

// DisplayName returns Name, or the job id when no name is set.
func (j *Job) DisplayName() string {
	if j.Name != "" {
		return j.Name
	}
	return j.ID
}

// Strategy holds a job's strategy block.
type Strategy struct {
	// Matrix entries in declared key order. Dimension values are either a
	// []any or a single scalar. The include and exclude keys are kept here
	// too; the planner treats them separately.
	Matrix []KeyValue

	// MatrixExpression holds a matrix given as a single expression, such
	// as ${{ fromJSON(needs.setup.outputs.matrix) }}. It cannot be expanded
	// locally.
	MatrixExpression string

	// FailFast is nil when not set
	FailFast *bool

	// MaxParallel is zero when not set
	MaxParallel int
}

// Step is a single job step.
type Step struct {
	ID               string
	Name             string
	If               string
	Run              string
	Uses             string
	Shell            string
	WorkingDirectory string
	With             []KeyValue
	Env              []KeyValue

	// HasRun is true when the step declares an inline script, even an
	// empty one.
	HasRun bool
}

// IsScript reports whether the step carries an inline script.
func (s *Step) IsScript() bool {
	return s.HasRun
}

// Describe returns a short human description of the step kind.
func (s *Step) Describe() string {
	switch {
	case s.HasRun:
		return "run"
	case s.Uses != "":
		return "uses: " + s.Uses
	default:
		return "empty step"
	}
}

// FormatValue renders a decoded value the way it appears in display names
// and context data: scalars as plain text, sequences and mappings in a
// compact inline form.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = FormatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []KeyValue:
		parts := make([]string, len(val))
		for i, kv := range val {
			parts[i] = kv.Key + ": " + FormatValue(kv.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(val)
	}
}
