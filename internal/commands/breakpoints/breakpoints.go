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

// Package breakpoints provides the command that shows which step each line
// of a workflow would stop at.
package breakpoints

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tombee/wfdebug/internal/breakpoints"
	"github.com/tombee/wfdebug/internal/cli/format"
	"github.com/tombee/wfdebug/internal/commands/completion"
	"github.com/tombee/wfdebug/internal/commands/shared"
	pkgerrors "github.com/tombee/wfdebug/pkg/errors"
	"github.com/tombee/wfdebug/pkg/workflow"
)

// Breakpoint is the outcome for one requested line.
type Breakpoint struct {
	Line     int               `json:"line"`
	Verified bool              `json:"verified"`
	Job      string            `json:"job,omitempty"`
	Step     *int              `json:"step,omitempty"`
	Kind     string            `json:"kind,omitempty"`
	Error    *shared.JSONError `json:"error,omitempty"`
}

// Response is the JSON output of the breakpoints command.
type Response struct {
	shared.JSONResponse
	Workflow    string       `json:"workflow"`
	Breakpoints []Breakpoint `json:"breakpoints"`
}

// NewCommand creates the breakpoints command
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "breakpoints <workflow> <line>...",
		Short: "Resolve breakpoint lines to job steps",
		Long: `Resolve one-based editor lines of a workflow to the job step a breakpoint
on that line would stop at. Lines outside any step are reported as
unverified with the reason.`,
		Example:           `  wfdebug breakpoints ci.yml 12 18`,
		Args:              cobra.MinimumNArgs(2),
		ValidArgsFunction: completion.CompleteWorkflowFiles,
		SilenceUsage:      true,
		SilenceErrors:     true,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := parseLines(args[1:])
			if err != nil {
				return err
			}
			doc, err := shared.LoadWorkflow(args[0])
			if err != nil {
				return err
			}
			resp := Resolve(doc, lines)
			if shared.GetJSON() {
				return shared.WriteJSON(cmd.OutOrStdout(), resp)
			}
			printBreakpoints(cmd.OutOrStdout(), resp)
			return nil
		},
	}
}

func parseLines(args []string) ([]int, error) {
	lines := make([]int, len(args))
	for i, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return nil, &shared.ExitError{
				Code:    shared.ExitFailed,
				Message: fmt.Sprintf("invalid line %q: lines are numbered from 1", arg),
			}
		}
		lines[i] = n
	}
	return lines, nil
}

// Resolve maps one-based lines of doc to steps.
func Resolve(doc *workflow.Document, lines []int) *Response {
	zero := make([]int, len(lines))
	for i, line := range lines {
		zero[i] = line - 1
	}
	offsets := breakpoints.LineEndOffsets(doc.Source, zero)
	requests := make([]breakpoints.Request, len(lines))
	for i := range lines {
		requests[i] = breakpoints.Request{Offset: offsets[i], Line: lines[i]}
	}

	resp := &Response{
		JSONResponse: shared.NewJSONResponse("breakpoints"),
		Workflow:     doc.FileName,
		Breakpoints:  make([]Breakpoint, 0, len(lines)),
	}
	for _, v := range breakpoints.Resolve(doc.Tree, requests).Validation {
		bp := Breakpoint{Line: v.Line, Verified: v.Valid}
		if !v.Valid {
			bp.Error = &shared.JSONError{
				Code:     pkgerrors.TypeOf(v.Err),
				Message:  v.Err.Error(),
				Location: &shared.JSONLocation{Line: v.Line},
			}
			resp.Breakpoints = append(resp.Breakpoints, bp)
			continue
		}
		step := v.StepIndex
		bp.Job, bp.Step = v.JobID, &step
		if job, ok := doc.Workflow.Job(v.JobID); ok && step < len(job.Steps) {
			bp.Kind = job.Steps[step].Describe()
		}
		resp.Breakpoints = append(resp.Breakpoints, bp)
	}
	return resp
}

func printBreakpoints(w io.Writer, resp *Response) {
	for _, bp := range resp.Breakpoints {
		if !bp.Verified {
			fmt.Fprintln(w, shared.RenderError(fmt.Sprintf("line %d: unverified: %s", bp.Line, bp.Error.Message)))
			continue
		}
		desc := fmt.Sprintf("line %d: %s step %d (%s)", bp.Line, bp.Job, *bp.Step, format.StripANSI(bp.Kind))
		fmt.Fprintln(w, shared.RenderOK(desc))
	}
}
