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

// Package message provides the command that prints the job request a
// debug session would send to the runner.
package message

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tombee/wfdebug/internal/cli/format"
	"github.com/tombee/wfdebug/internal/cli/prompt"
	"github.com/tombee/wfdebug/internal/commands/completion"
	"github.com/tombee/wfdebug/internal/commands/shared"
	"github.com/tombee/wfdebug/internal/jobrequest"
	"github.com/tombee/wfdebug/internal/jq"
	"github.com/tombee/wfdebug/internal/plan"
	"github.com/tombee/wfdebug/pkg/workflow"
)

// NewCommand creates the message command
func NewCommand() *cobra.Command {
	var (
		jobID     string
		execution   int
		query       string
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "message <workflow>",
		Short: "Print the job request message for a job execution",
		Long: `Print the JSON job request that would be sent to the runner when
debugging one execution of a job. The GitHub context comes from the
configuration file. --query filters the message with a jq expression.`,
		Example: `  wfdebug message ci.yml --job test --execution 2
  wfdebug message ci.yml --query '.steps[].name'`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteWorkflowFiles,
		SilenceUsage:      true,
		SilenceErrors:     true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig()
			if err != nil {
				return err
			}
			doc, err := shared.LoadWorkflow(args[0])
			if err != nil {
				return err
			}
			if interactive {
				p := prompt.NewSurveyPrompter(format.IsTTY(os.Stdin))
				if jobID, execution, err = choose(cmd.Context(), p, doc, cfg.GitHub.Context()); err != nil {
					return err
				}
			}
			msg, err := Build(doc, jobID, execution, cfg.GitHub.Context())
			if err != nil {
				return err
			}
			return write(cmd, msg, query)
		},
	}

	cmd.Flags().StringVar(&jobID, "job", "", "Job to build (default: first job)")
	cmd.Flags().IntVar(&execution, "execution", 0, "Zero-based matrix execution index")
	cmd.Flags().StringVarP(&query, "query", "q", "", "jq expression applied to the message")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Pick the job and execution from a list")
	_ = cmd.RegisterFlagCompletionFunc("job", completion.CompleteJobs)
	return cmd
}

// choose asks for a job and then, for matrix jobs, an execution.
func choose(ctx context.Context, p prompt.Prompter, doc *workflow.Document, gh jobrequest.GitHubContext) (string, int, error) {
	descs := plan.BuildPlan(doc.Workflow)
	ids := make([]string, len(descs))
	for i, desc := range descs {
		ids[i] = desc.ID
	}
	job, err := prompt.SelectIndex(ctx, p, "Job", ids)
	if err != nil {
		return "", 0, &shared.ExitError{Code: shared.ExitFailed, Message: "no job selected", Cause: err}
	}

	execs, err := plan.Expand(doc.FileName, descs[job], plan.Options{Message: jobrequest.Options{GitHub: gh}})
	if err != nil {
		return "", 0, shared.NewInvalidWorkflowError("", err)
	}
	names := make([]string, len(execs))
	for i, exec := range execs {
		names[i] = exec.Name
	}
	execution, err := prompt.SelectIndex(ctx, p, "Execution", names)
	if err != nil {
		return "", 0, &shared.ExitError{Code: shared.ExitFailed, Message: "no execution selected", Cause: err}
	}
	return descs[job].ID, execution, nil
}

// write prints msg, or each result of query applied to it, as JSON.
func write(cmd *cobra.Command, msg *jobrequest.Message, query string) error {
	values := []any{msg}
	if query != "" {
		var err error
		values, err = jq.NewExecutor(0, 0).Execute(cmd.Context(), query, msg)
		if err != nil {
			return &shared.ExitError{Code: shared.ExitFailed, Message: "query failed", Cause: err}
		}
	}

	out := cmd.OutOrStdout()
	tty := format.IsTTY(out)
	for _, v := range values {
		var buf bytes.Buffer
		if err := shared.WriteJSON(&buf, v); err != nil {
			return err
		}
		if _, err := io.WriteString(out, format.Highlight(buf.String(), "json", tty)); err != nil {
			return err
		}
	}
	return nil
}

// Build returns the message of one execution of jobID. An empty jobID
// selects the first job.
func Build(doc *workflow.Document, jobID string, execution int, gh jobrequest.GitHubContext) (*jobrequest.Message, error) {
	descs := plan.BuildPlan(doc.Workflow)
	if len(descs) == 0 {
		return nil, shared.NewInvalidWorkflowError(fmt.Sprintf("%s defines no jobs", doc.FileName), nil)
	}

	desc := descs[0]
	if jobID != "" {
		var ok bool
		if desc, ok = plan.Find(descs, jobID); !ok {
			return nil, shared.NewInvalidWorkflowError(fmt.Sprintf("job %q not found in %s", jobID, doc.FileName), nil)
		}
	}

	execs, err := plan.Expand(doc.FileName, desc, plan.Options{Message: jobrequest.Options{GitHub: gh}})
	if err != nil {
		return nil, shared.NewInvalidWorkflowError("", err)
	}
	if execution < 0 || execution >= len(execs) {
		return nil, &shared.ExitError{
			Code:    shared.ExitFailed,
			Message: fmt.Sprintf("job %s has %d execution(s), got index %d", desc.ID, len(execs), execution),
		}
	}
	return execs[execution].Message, nil
}
