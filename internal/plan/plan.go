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

// Package plan turns a workflow into the concrete job executions sent to a
// runner. Jobs are planned in document order; a job with a matrix strategy
// expands into one execution per matrix assignment.
package plan

import (
	"fmt"
	"strings"

	"github.com/tombee/wfdebug/internal/jobrequest"
	"github.com/tombee/wfdebug/pkg/workflow"
)

// JobDescription is one entry of the jobs mapping.
type JobDescription struct {
	ID  string
	Job *workflow.Job
}

// JobExecution is a single run of a job. Matrix is empty for a job without
// a matrix strategy. JobID is always the id of the source job so that
// breakpoints keep matching across matrix runs.
type JobExecution struct {
	JobID   string
	Matrix  Assignment
	Name    string
	Message *jobrequest.Message
}

// Options configures execution building.
type Options struct {
	Message jobrequest.Options
}

// BuildPlan lists the workflow's jobs in document order.
func BuildPlan(wf *workflow.Workflow) []JobDescription {
	jobs := make([]JobDescription, len(wf.Jobs))
	for i, job := range wf.Jobs {
		jobs[i] = JobDescription{ID: job.ID, Job: job}
	}
	return jobs
}

// Find returns the description for jobID.
func Find(jobs []JobDescription, jobID string) (JobDescription, bool) {
	for _, desc := range jobs {
		if desc.ID == jobID {
			return desc, true
		}
	}
	return JobDescription{}, false
}

// Expand builds the executions of desc. A job without a matrix yields one
// execution; otherwise each assignment of the matrix yields one execution
// named "<job name> (<values>)".
func Expand(fileName string, desc JobDescription, opts Options) ([]JobExecution, error) {
	strategy := desc.Job.Strategy
	if strategy == nil || (len(strategy.Matrix) == 0 && strategy.MatrixExpression == "") {
		msg, err := jobrequest.BuildMessage(fileName, desc.ID, desc.Job, nil, opts.Message)
		if err != nil {
			return nil, err
		}
		return []JobExecution{{JobID: desc.ID, Name: desc.Job.DisplayName(), Message: msg}}, nil
	}

	assignments, err := ExpandMatrix(strategy)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", desc.ID, err)
	}

	execs := make([]JobExecution, 0, len(assignments))
	for _, a := range assignments {
		job := *desc.Job
		job.Name = fmt.Sprintf("%s (%s)", desc.Job.DisplayName(), a.Label())

		matrix := jobrequest.ContextGroup{Name: "matrix", Pairs: a}
		msg, err := jobrequest.BuildMessage(fileName, desc.ID, &job, []jobrequest.ContextGroup{matrix}, opts.Message)
		if err != nil {
			return nil, err
		}
		execs = append(execs, JobExecution{JobID: desc.ID, Matrix: a, Name: job.Name, Message: msg})
	}
	return execs, nil
}

// ExpandAll expands every job of the plan in order.
func ExpandAll(fileName string, jobs []JobDescription, opts Options) ([]JobExecution, error) {
	var all []JobExecution
	for _, desc := range jobs {
		execs, err := Expand(fileName, desc, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, execs...)
	}
	return all, nil
}

// Label joins the assignment values with commas in dimension order.
func (a Assignment) Label() string {
	values := make([]string, len(a))
	for i, kv := range a {
		values[i] = workflow.FormatValue(kv.Value)
	}
	return strings.Join(values, ",")
}
