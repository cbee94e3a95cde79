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

// Package breakpoints maps document offsets to the job step that contains
// them.
//
// A breakpoint set in an editor arrives as a line. The caller converts each
// line to the byte offset at its end, and Resolve walks up from the node
// covering that offset until it reaches an item of a job's steps list. The
// step's position in that list and the key of the enclosing job identify
// where the runner should pause.
package breakpoints

import (
	"github.com/tombee/wfdebug/pkg/errors"
	"github.com/tombee/wfdebug/pkg/workflow"
	"github.com/tombee/wfdebug/pkg/workflow/ast"
)

// StepsKey is the mapping key holding a job's step list.
const StepsKey = "steps"

// Request is one breakpoint to resolve. Line is carried through to the
// result unchanged.
type Request struct {
	Offset int
	Line   int
}

// StepBreakpoint is a resolved breakpoint within a job.
type StepBreakpoint struct {
	StepIndex int
	Offset    int
	Line      int
}

// Validation reports the outcome for one request.
type Validation struct {
	Valid     bool
	JobID     string
	StepIndex int
	Offset    int
	Line      int

	// Err explains why an invalid breakpoint did not resolve.
	Err error
}

// Result holds resolved breakpoints grouped by job id, and one Validation
// per request in input order.
type Result struct {
	ByJob      map[string][]StepBreakpoint
	Validation []Validation
}

// ForJob returns the step indices resolved for jobID in request order.
// Duplicates are kept. It returns nil when nothing resolved to jobID.
func (r Result) ForJob(jobID string) []int {
	bps := r.ByJob[jobID]
	if len(bps) == 0 {
		return nil
	}
	indices := make([]int, len(bps))
	for i, bp := range bps {
		indices[i] = bp.StepIndex
	}
	return indices
}

// Resolve maps every request to a job step. Requests that cannot be mapped
// are reported as invalid and do not affect the others.
func Resolve(tree *ast.Tree, requests []Request) Result {
	res := Result{
		ByJob:      make(map[string][]StepBreakpoint),
		Validation: make([]Validation, 0, len(requests)),
	}

	for _, req := range requests {
		jobID, stepIndex, err := ResolveOffset(tree, req.Offset)
		if err != nil {
			res.Validation = append(res.Validation, Validation{Offset: req.Offset, Line: req.Line, StepIndex: -1, Err: err})
			continue
		}
		res.ByJob[jobID] = append(res.ByJob[jobID], StepBreakpoint{StepIndex: stepIndex, Offset: req.Offset, Line: req.Line})
		res.Validation = append(res.Validation, Validation{
			Valid:     true,
			JobID:     jobID,
			StepIndex: stepIndex,
			Offset:    req.Offset,
			Line:      req.Line,
		})
	}
	return res
}

// ResolveOffset returns the job id and step index containing offset. It
// fails with a *errors.ResolutionError.
func ResolveOffset(tree *ast.Tree, offset int) (string, int, error) {
	node, err := tree.Resolve(offset)
	if err != nil {
		return "", -1, &errors.ResolutionError{Offset: offset, Reason: err.Error()}
	}
	if node == ast.None {
		return "", -1, &errors.ResolutionError{Offset: offset, Reason: "outside the document"}
	}

	for !isStep(tree, node) {
		node = tree.Parent(node)
		if node == ast.None {
			return "", -1, &errors.ResolutionError{Offset: offset, Reason: "not inside a steps list"}
		}
	}

	seq := tree.Parent(node)
	stepIndex := tree.Index(seq, node)
	if stepIndex < 0 {
		return "", -1, &errors.ResolutionError{Offset: offset, Reason: "step missing from its list"}
	}

	// Sequence -> steps Mapping -> job Map -> job Mapping.
	jobMapping := tree.Parent(tree.Parent(tree.Parent(seq)))
	jobID, ok := tree.KeyText(jobMapping)
	if !ok {
		return "", -1, &errors.ResolutionError{Offset: offset, Reason: "steps list is not inside a job"}
	}
	return jobID, stepIndex, nil
}

// isStep reports whether id is an item of a sequence held under a "steps"
// key.
func isStep(tree *ast.Tree, id ast.NodeID) bool {
	seq := tree.Parent(id)
	if kind, ok := tree.Kind(seq); !ok || kind != ast.KindSequence {
		return false
	}
	key, ok := tree.KeyText(tree.Parent(seq))
	return ok && key == StepsKey
}

// LineEndOffset returns the byte offset at the end of the zero-based line,
// excluding the line terminator. Lines past the end clamp to the document
// length.
func LineEndOffset(text []byte, line int) int {
	return workflow.NewLines(text).End(line)
}

// LineEndOffsets converts several zero-based lines against one index of
// text.
func LineEndOffsets(text []byte, lines []int) []int {
	idx := workflow.NewLines(text)
	offsets := make([]int, len(lines))
	for i, line := range lines {
		offsets[i] = idx.End(line)
	}
	return offsets
}
