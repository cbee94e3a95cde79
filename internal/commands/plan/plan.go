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

// Package plan provides the command that lists a workflow's jobs and their
// matrix executions.
package plan

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/tombee/wfdebug/internal/cli/format"
	"github.com/tombee/wfdebug/internal/commands/completion"
	"github.com/tombee/wfdebug/internal/commands/shared"
	"github.com/tombee/wfdebug/internal/jobrequest"
	jobplan "github.com/tombee/wfdebug/internal/plan"
	"github.com/tombee/wfdebug/pkg/workflow"
)

// Job is one job of the plan output.
type Job struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Executions []Execution `json:"executions,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Execution is one run of a job.
type Execution struct {
	Name   string        `json:"name"`
	Matrix []MatrixValue `json:"matrix,omitempty"`
	Steps  int           `json:"steps"`
}

// MatrixValue is one dimension of a matrix assignment.
type MatrixValue struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Response is the JSON output of the plan command.
type Response struct {
	shared.JSONResponse
	Workflow string `json:"workflow"`
	Jobs     []Job  `json:"jobs"`
}

// NewCommand creates the plan command
func NewCommand() *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:   "plan <workflow>",
		Short: "List the jobs of a workflow and their matrix executions",
		Long: `List every job of a workflow in file order together with the executions
its matrix strategy expands to. Jobs whose steps cannot be sent to a runner
are listed with the reason.`,
		Example: `  wfdebug plan .github/workflows/ci.yml
  wfdebug plan ci.yml --job test --json`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteWorkflowFiles,
		SilenceUsage:      true,
		SilenceErrors:     true,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := shared.LoadWorkflow(args[0])
			if err != nil {
				return err
			}
			resp, err := Build(doc, jobID)
			if err != nil {
				return err
			}
			if shared.GetJSON() {
				err = shared.WriteJSON(cmd.OutOrStdout(), resp)
			} else {
				printPlan(cmd.OutOrStdout(), resp)
			}
			if err == nil && !resp.Success {
				// Details were already printed with the plan.
				return &shared.ExitError{Code: shared.ExitInvalidWorkflow}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&jobID, "job", "", "Only show this job")
	_ = cmd.RegisterFlagCompletionFunc("job", completion.CompleteJobs)
	return cmd
}

// Build expands the plan of doc, limited to jobID when set.
func Build(doc *workflow.Document, jobID string) (*Response, error) {
	resp := &Response{
		JSONResponse: shared.NewJSONResponse("plan"),
		Workflow:     doc.FileName,
		Jobs:         []Job{},
	}

	descs := jobplan.BuildPlan(doc.Workflow)
	if jobID != "" {
		desc, ok := jobplan.Find(descs, jobID)
		if !ok {
			return nil, shared.NewInvalidWorkflowError(fmt.Sprintf("job %q not found in %s", jobID, doc.FileName), nil)
		}
		descs = []jobplan.JobDescription{desc}
	}

	// Ids are irrelevant to the listing.
	opts := jobplan.Options{Message: jobrequest.Options{
		GitHub: jobrequest.DefaultGitHubContext(),
		NewID:  func() string { return "" },
	}}
	for _, desc := range descs {
		job := Job{ID: desc.ID, Name: desc.Job.DisplayName()}
		execs, err := jobplan.Expand(doc.FileName, desc, opts)
		if err != nil {
			job.Error = err.Error()
			resp.Success = false
		}
		for _, exec := range execs {
			e := Execution{Name: exec.Name, Steps: len(exec.Message.Steps)}
			for _, kv := range exec.Matrix {
				e.Matrix = append(e.Matrix, MatrixValue{Key: kv.Key, Value: kv.Value})
			}
			job.Executions = append(job.Executions, e)
		}
		resp.Jobs = append(resp.Jobs, job)
	}
	return resp, nil
}

func printPlan(w io.Writer, resp *Response) {
	for _, job := range resp.Jobs {
		header := shared.Bold.Render(job.ID)
		if job.Name != job.ID {
			header += shared.Muted.Render(" (" + format.StripANSI(job.Name) + ")")
		}
		fmt.Fprintln(w, header)
		if job.Error != "" {
			fmt.Fprintf(w, "  %s\n", shared.StatusError.Render("error: "+job.Error))
			continue
		}
		for i, exec := range job.Executions {
			fmt.Fprintf(w, "  [%d] %s, %d step(s)\n", i, format.StripANSI(exec.Name), exec.Steps)
		}
	}
}
