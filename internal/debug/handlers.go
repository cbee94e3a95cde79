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

package debug

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"

	"github.com/google/go-dap"
	"github.com/tombee/wfdebug/internal/breakpoints"
	"github.com/tombee/wfdebug/internal/jobrequest"
	"github.com/tombee/wfdebug/internal/log"
	"github.com/tombee/wfdebug/internal/metrics"
	"github.com/tombee/wfdebug/internal/plan"
	"github.com/tombee/wfdebug/internal/runnerconn"
	"github.com/tombee/wfdebug/internal/textdoc"
	"github.com/tombee/wfdebug/pkg/errors"
	"github.com/tombee/wfdebug/pkg/workflow"
)

// binding is a snapshot of what initialize bound the session to.
type binding struct {
	store     *textdoc.Store
	jobID     string
	base      int
	stepLines map[int]int
}

func (s *Session) binding() binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := binding{
		store:     s.store,
		jobID:     s.job.ID,
		stepLines: maps.Clone(s.stepLines),
	}
	if s.linesStartAt1 {
		b.base = 1
	}
	return b
}

func (b binding) source() *dap.Source {
	return &dap.Source{Name: b.store.Name(), Path: b.store.Path()}
}

// linesStartAt1 reads the editor's line convention from the raw initialize
// request. The protocol default applies when the field is absent.
func linesStartAt1(raw []byte) bool {
	var probe struct {
		Arguments struct {
			LinesStartAt1 *bool `json:"linesStartAt1"`
		} `json:"arguments"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.Arguments.LinesStartAt1 == nil {
		return true
	}
	return *probe.Arguments.LinesStartAt1
}

func (s *Session) onInitialize(r *dap.InitializeRequest, raw []byte) error {
	if s.isInitialized() {
		return errors.New("session is already initialized")
	}

	store, err := textdoc.Open(s.cfg.WorkflowPath, s.logger)
	if err != nil {
		return &fatalError{err: &errors.ParseError{
			File:   s.cfg.WorkflowPath,
			Reason: "cannot read workflow file",
			Cause:  err,
		}}
	}
	doc, err := store.Document()
	if err != nil {
		store.Close()
		return &fatalError{err: err}
	}
	job, err := s.cfg.BoundJob(doc.Workflow)
	if err != nil {
		store.Close()
		return &fatalError{err: err}
	}
	if s.cfg.Watch {
		if err := store.Watch(s.ctx); err != nil {
			s.logger.Warn("workflow file will not be reloaded on change", log.Error(err))
		} else {
			s.followReloads(store)
		}
	}

	if err := s.runner.Connect(s.ctx, s.cfg.RunnerAddress, s.cfg.RunnerPort); err != nil {
		store.Close()
		return &fatalError{err: err}
	}

	s.mu.Lock()
	s.initialized = true
	s.store = store
	s.job = job
	s.linesStartAt1 = linesStartAt1(raw)
	s.mu.Unlock()

	s.logger.Info("debug session initialized",
		slog.String("client", r.Arguments.ClientID),
		slog.String("bound_job", job.ID),
	)

	resp := &dap.InitializeResponse{Response: newResponse(&r.Request)}
	resp.Body = dap.Capabilities{
		SupportsConfigurationDoneRequest: true,
		SupportsEvaluateForHovers:        false,
		SupportsTerminateRequest:         true,
	}
	s.send(resp)
	s.send(&dap.InitializedEvent{Event: newEvent("initialized")})
	return nil
}

// followReloads logs every reload of the workflow file after the one it
// was opened with, warning when the new text no longer parses.
func (s *Session) followReloads(store *textdoc.Store) {
	opened := store.Version()
	s.pump.Add(1)
	go func() {
		defer s.pump.Done()
		for {
			select {
			case <-s.ctx.Done():
				return
			case v := <-store.Changes():
				if v <= opened {
					continue
				}
				if _, err := store.Document(); err != nil {
					s.logger.Warn("reloaded workflow does not parse", slog.Int("version", v), log.Error(err))
					continue
				}
				s.logger.Info("workflow reloaded", slog.Int("version", v))
			}
		}
	}()
}

func (s *Session) onConfigurationDone(r *dap.ConfigurationDoneRequest) error {
	s.configuredOnce.Do(func() { close(s.configured) })
	s.send(&dap.ConfigurationDoneResponse{Response: newResponse(&r.Request)})
	return nil
}

// currentJob returns the bound job as it appears in the current text of
// the workflow file.
func (s *Session) currentJob(b binding) (plan.JobDescription, error) {
	doc, err := b.store.Document()
	if err != nil {
		return plan.JobDescription{}, err
	}
	desc, ok := plan.Find(plan.BuildPlan(doc.Workflow), b.jobID)
	if !ok {
		return plan.JobDescription{}, &errors.NotFoundError{Resource: "job", ID: b.jobID}
	}
	return desc, nil
}

func (s *Session) onLaunch(r *dap.LaunchRequest, args launchArguments) error {
	b := s.binding()
	desc, err := s.currentJob(b)
	if err != nil {
		return err
	}
	execs, err := plan.Expand(b.store.Name(), desc, plan.Options{
		Message: jobrequest.Options{GitHub: s.cfg.GitHub},
	})
	if err != nil {
		return err
	}
	if args.Execution < 0 || args.Execution >= len(execs) {
		return &errors.ValidationError{
			Field:   "execution",
			Message: fmt.Sprintf("job %s has %d execution(s), got index %d", desc.ID, len(execs), args.Execution),
		}
	}
	exec := execs[args.Execution]

	s.startEvents()
	if err := s.runner.Launch(s.ctx, exec.Message); err != nil {
		return err
	}
	s.logger.Info("job launched",
		slog.String("execution", exec.Name),
		slog.String("request_id", exec.Message.JobID),
	)
	s.send(&dap.LaunchResponse{Response: newResponse(&r.Request)})
	return nil
}

func (s *Session) onAttach(r *dap.AttachRequest) error {
	s.startEvents()
	if err := s.runner.Attach(s.ctx); err != nil {
		return err
	}
	s.send(&dap.AttachResponse{Response: newResponse(&r.Request)})
	return nil
}

// requestedLines returns the lines of a setBreakpoints request, falling
// back to the deprecated lines field.
func requestedLines(args dap.SetBreakpointsArguments) []int {
	if len(args.Breakpoints) == 0 {
		return append([]int(nil), args.Lines...)
	}
	lines := make([]int, len(args.Breakpoints))
	for i, bp := range args.Breakpoints {
		lines[i] = bp.Line
	}
	return lines
}

func (s *Session) onSetBreakpoints(r *dap.SetBreakpointsRequest) error {
	b := s.binding()
	lines := requestedLines(r.Arguments)

	resp := &dap.SetBreakpointsResponse{Response: newResponse(&r.Request)}
	resp.Body.Breakpoints = make([]dap.Breakpoint, len(lines))
	unverified := func(i int, msg string) {
		resp.Body.Breakpoints[i] = dap.Breakpoint{Line: lines[i], Message: msg}
	}

	if !b.store.Matches(r.Arguments.Source.Path) {
		for i := range lines {
			unverified(i, "file is not debugged by this session")
			metrics.RecordBreakpoint(false)
		}
		s.send(resp)
		return nil
	}

	doc, err := b.store.Document()
	if err != nil {
		for i := range lines {
			unverified(i, err.Error())
			metrics.RecordBreakpoint(false)
		}
		s.send(resp)
		return nil
	}

	// slots maps each resolver request back to its position in lines.
	var (
		slots []int
		zero  []int
	)
	for i, line := range lines {
		if line-b.base < 0 {
			unverified(i, fmt.Sprintf("line %d is out of range", line))
			metrics.RecordBreakpoint(false)
			continue
		}
		slots = append(slots, i)
		zero = append(zero, line-b.base)
	}
	offsets := breakpoints.LineEndOffsets(doc.Source, zero)
	reqs := make([]breakpoints.Request, len(slots))
	for k, i := range slots {
		reqs[k] = breakpoints.Request{Offset: offsets[k], Line: lines[i]}
	}
	res := breakpoints.Resolve(doc.Tree, reqs)

	stepLines := map[int]int{}
	var steps []int
	for k, v := range res.Validation {
		i := slots[k]
		switch {
		case !v.Valid:
			unverified(i, v.Err.Error())
		case v.JobID != b.jobID:
			unverified(i, fmt.Sprintf("step belongs to job %s, not %s", v.JobID, b.jobID))
		default:
			resp.Body.Breakpoints[i] = dap.Breakpoint{Verified: true, Line: v.Line}
			if _, ok := stepLines[v.StepIndex]; !ok {
				stepLines[v.StepIndex] = v.Line
				steps = append(steps, v.StepIndex)
			}
		}
		metrics.RecordBreakpoint(resp.Body.Breakpoints[i].Verified)
	}
	for i := range resp.Body.Breakpoints {
		resp.Body.Breakpoints[i].Source = b.source()
	}

	s.mu.Lock()
	s.stepLines = stepLines
	s.mu.Unlock()

	s.logger.Debug("breakpoints resolved",
		slog.Int("requested", len(lines)),
		slog.Any("steps", steps),
	)
	if err := s.runner.SetBreakpoints(s.ctx, steps); err != nil {
		return err
	}
	s.send(resp)
	return nil
}

func (s *Session) onContinue(r *dap.ContinueRequest) error {
	if err := s.runner.Continue(s.ctx); err != nil {
		return err
	}
	resp := &dap.ContinueResponse{Response: newResponse(&r.Request)}
	resp.Body.AllThreadsContinued = true
	s.send(resp)
	return nil
}

func (s *Session) onTerminate(r *dap.TerminateRequest) error {
	if err := s.runner.Terminate(s.ctx); err != nil {
		return err
	}
	s.send(&dap.TerminateResponse{Response: newResponse(&r.Request)})
	return nil
}

func (s *Session) onDisconnect(r *dap.DisconnectRequest) error {
	if err := s.runner.Terminate(s.ctx); err != nil {
		s.logger.Debug("terminate on disconnect failed", log.Error(err))
	}
	s.send(&dap.DisconnectResponse{Response: newResponse(&r.Request)})
	s.end(nil)
	return nil
}

func (s *Session) onThreads(r *dap.ThreadsRequest) error {
	resp := &dap.ThreadsResponse{Response: newResponse(&r.Request)}
	resp.Body.Threads = []dap.Thread{{Id: runnerconn.ThreadID, Name: "Workflow"}}
	s.send(resp)
	return nil
}

func (s *Session) onStackTrace(r *dap.StackTraceRequest) error {
	body, err := s.runner.StackTrace(s.ctx, r.Arguments)
	if err != nil {
		return err
	}

	b := s.binding()
	doc, err := b.store.Document()
	if err != nil {
		s.logger.Debug("workflow does not parse, frames use breakpoint lines only", log.Error(err))
	}
	for i := range body.StackFrames {
		frame := &body.StackFrames[i]
		frame.Line = b.frameLine(doc, frame.Line)
		frame.Source = b.source()
	}

	resp := &dap.StackTraceResponse{Response: newResponse(&r.Request), Body: *body}
	s.send(resp)
	return nil
}

// frameLine converts the step index a runner reports as a frame's line to
// an editor line. A step with a breakpoint shows at the breakpoint's line,
// any other step at the line where it starts.
func (b binding) frameLine(doc *workflow.Document, stepIndex int) int {
	if line, ok := b.stepLines[stepIndex]; ok {
		return line
	}
	if doc == nil {
		return 0
	}
	id, err := doc.StepNode(b.jobID, stepIndex)
	if err != nil {
		return 0
	}
	return doc.Tree.Node(id).Line + b.base
}

func (s *Session) onScopes(r *dap.ScopesRequest) error {
	resp := &dap.ScopesResponse{Response: newResponse(&r.Request)}
	resp.Body.Scopes = []dap.Scope{{Name: "Step", VariablesReference: 1, Expensive: true}}
	s.send(resp)
	return nil
}

func (s *Session) onVariables(r *dap.VariablesRequest) error {
	body, err := s.runner.Variables(s.ctx, r.Arguments)
	if err != nil {
		return err
	}
	s.send(&dap.VariablesResponse{Response: newResponse(&r.Request), Body: *body})
	return nil
}

func (s *Session) onEvaluate(r *dap.EvaluateRequest) error {
	body, err := s.runner.Evaluate(s.ctx, r.Arguments)
	if err != nil {
		return err
	}
	s.send(&dap.EvaluateResponse{Response: newResponse(&r.Request), Body: *body})
	return nil
}
