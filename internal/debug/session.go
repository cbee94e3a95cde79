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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/go-dap"
	"github.com/google/uuid"
	"github.com/tombee/wfdebug/internal/log"
	"github.com/tombee/wfdebug/internal/metrics"
	"github.com/tombee/wfdebug/internal/plan"
	"github.com/tombee/wfdebug/internal/runnerconn"
	"github.com/tombee/wfdebug/internal/textdoc"
	"github.com/tombee/wfdebug/pkg/errors"
)

// ErrNotInitialized is returned for any request that arrives before
// initialize has completed.
var ErrNotInitialized = errors.New("initialize must be the first request")

// Runner is the runner side of a session. *runnerconn.Conn implements it.
type Runner interface {
	Connect(ctx context.Context, address string, port int) error
	Attach(ctx context.Context) error
	Launch(ctx context.Context, job any) error
	SetBreakpoints(ctx context.Context, stepIndices []int) error
	Continue(ctx context.Context) error
	Terminate(ctx context.Context) error
	StackTrace(ctx context.Context, args dap.StackTraceArguments) (*dap.StackTraceResponseBody, error)
	Variables(ctx context.Context, args dap.VariablesArguments) (*dap.VariablesResponseBody, error)
	Evaluate(ctx context.Context, args dap.EvaluateArguments) (*dap.EvaluateResponseBody, error)
	Subscribe() (<-chan runnerconn.Event, func())
	Close() error
}

// Session serves one editor connection.
type Session struct {
	id      string
	cfg     Config
	rwc     io.ReadWriteCloser
	runner  Runner
	logger  *slog.Logger
	created time.Time

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	seq     int

	mu            sync.Mutex
	initialized   bool
	store         *textdoc.Store
	job           plan.JobDescription
	linesStartAt1 bool
	stepLines     map[int]int
	stopEvents    func()
	err           error

	configured     chan struct{}
	configuredOnce sync.Once
	endOnce        sync.Once

	// dispatchMu serializes handlers, including deferred launch and attach.
	dispatchMu sync.Mutex
	deferred   sync.WaitGroup
	pump       sync.WaitGroup
}

// NewSession returns a session that talks to the editor over rwc and to
// the workflow runner through runner.
func NewSession(rwc io.ReadWriteCloser, cfg Config, runner Runner, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:            id,
		cfg:           cfg,
		rwc:           rwc,
		runner:        runner,
		logger:        log.WithSession(log.WithComponent(logger, "debug"), id, cfg.WorkflowPath, cfg.JobID),
		created:       time.Now(),
		ctx:           ctx,
		cancel:        cancel,
		linesStartAt1: true,
		stepLines:     map[int]int{},
		configured:    make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Created returns when the session was created.
func (s *Session) Created() time.Time {
	return s.created
}

// Config returns the session's configuration with defaults applied.
func (s *Session) Config() Config {
	return s.cfg
}

// Done is closed when the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the session.
func (s *Session) Close() error {
	s.end(nil)
	return nil
}

// Run reads editor requests until the editor disconnects, the session is
// closed or ctx is cancelled. Requests are handled one at a time in arrival
// order; launch and attach wait for configurationDone off the read loop.
func (s *Session) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.end(nil) })
	defer stop()

	metrics.SessionStarted()
	defer metrics.SessionEnded()

	s.logger.Info("debug session started")
	reader := bufio.NewReader(s.rwc)
	for {
		content, err := dap.ReadBaseMessage(reader)
		if err != nil {
			if s.ctx.Err() == nil && !errors.Is(err, io.EOF) {
				s.end(fmt.Errorf("read editor message: %w", err))
			}
			break
		}

		msg, err := dap.DecodeProtocolMessage(content)
		if err != nil {
			s.rejectUndecodable(content, err)
			continue
		}
		req, ok := msg.(dap.RequestMessage)
		if !ok {
			s.logger.Warn("ignoring non-request message from editor", slog.Int(log.SeqKey, msg.GetSeq()))
			continue
		}

		s.dispatch(req, content)
	}

	s.end(nil)
	s.deferred.Wait()
	s.shutdown()

	err := s.Err()
	if err != nil {
		s.logger.Warn("debug session ended", log.Error(err))
	} else {
		s.logger.Info("debug session ended")
	}
	return err
}

// end records err as the reason the session ended and unblocks Run.
func (s *Session) end(err error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.cancel()
		if cerr := s.rwc.Close(); cerr != nil {
			s.logger.Debug("closing editor stream", log.Error(cerr))
		}
	})
}

func (s *Session) shutdown() {
	s.mu.Lock()
	stopEvents, store := s.stopEvents, s.store
	s.stopEvents = nil
	s.mu.Unlock()

	if stopEvents != nil {
		stopEvents()
	}
	if err := s.runner.Close(); err != nil {
		s.logger.Debug("closing runner connection", log.Error(err))
	}
	s.pump.Wait()
	if store != nil {
		if err := store.Close(); err != nil {
			s.logger.Debug("closing workflow document", log.Error(err))
		}
	}
}

// rejectUndecodable answers a request the protocol decoder could not
// handle, such as an unknown command, so the editor is not left waiting.
func (s *Session) rejectUndecodable(content []byte, err error) {
	var probe struct {
		Seq     int    `json:"seq"`
		Type    string `json:"type"`
		Command string `json:"command"`
	}
	if jerr := json.Unmarshal(content, &probe); jerr != nil || probe.Type != "request" {
		s.logger.Warn("dropping undecodable editor message", log.Error(err))
		return
	}
	req := &dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: probe.Seq, Type: "request"},
		Command:         probe.Command,
	}
	s.sendError(req, fmt.Errorf("unsupported request %q", probe.Command))
}

// fatalError marks a handler failure that ends the session once the
// failed response has been sent.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }

func (e *fatalError) Unwrap() error { return e.err }

func (s *Session) isInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *Session) dispatch(msg dap.RequestMessage, raw []byte) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	req := msg.GetRequest()
	log.Trace(s.logger, "editor request",
		log.String(log.CommandKey, req.Command),
		log.Int(log.SeqKey, req.Seq),
	)

	if _, ok := msg.(*dap.InitializeRequest); !ok && !s.isInitialized() {
		s.sendError(req, ErrNotInitialized)
		return
	}

	var err error
	switch r := msg.(type) {
	case *dap.InitializeRequest:
		err = s.onInitialize(r, raw)
	case *dap.ConfigurationDoneRequest:
		err = s.onConfigurationDone(r)
	case *dap.LaunchRequest:
		var args launchArguments
		if args, err = decodeLaunchArguments(r.Arguments); err == nil {
			s.afterConfiguration(req, func() error { return s.onLaunch(r, args) })
			return
		}
	case *dap.AttachRequest:
		s.afterConfiguration(req, func() error { return s.onAttach(r) })
		return
	case *dap.SetBreakpointsRequest:
		err = s.onSetBreakpoints(r)
	case *dap.ContinueRequest:
		err = s.onContinue(r)
	case *dap.TerminateRequest:
		err = s.onTerminate(r)
	case *dap.DisconnectRequest:
		err = s.onDisconnect(r)
	case *dap.ThreadsRequest:
		err = s.onThreads(r)
	case *dap.StackTraceRequest:
		err = s.onStackTrace(r)
	case *dap.ScopesRequest:
		err = s.onScopes(r)
	case *dap.VariablesRequest:
		err = s.onVariables(r)
	case *dap.EvaluateRequest:
		err = s.onEvaluate(r)
	default:
		err = fmt.Errorf("unsupported request %q", req.Command)
	}
	s.finish(req, err)
}

// afterConfiguration runs fn once configurationDone has arrived. The wait
// happens on its own goroutine so the read loop keeps dispatching; fn runs
// under the dispatch lock like any other handler.
func (s *Session) afterConfiguration(req *dap.Request, fn func() error) {
	s.deferred.Add(1)
	go func() {
		defer s.deferred.Done()
		if err := s.awaitConfiguration(); err != nil {
			s.finish(req, err)
			return
		}
		s.dispatchMu.Lock()
		defer s.dispatchMu.Unlock()
		s.finish(req, fn())
	}()
}

// finish reports a handler failure to the editor and ends the session when
// the failure is fatal.
func (s *Session) finish(req *dap.Request, err error) {
	if err == nil {
		return
	}

	s.logger.Warn("request failed",
		slog.String(log.CommandKey, req.Command),
		slog.Int(log.SeqKey, req.Seq),
		log.Error(err),
	)
	s.sendError(req, err)

	var fatal *fatalError
	if errors.As(err, &fatal) {
		s.end(fatal.err)
	}
}

// send writes a response or event to the editor, assigning its sequence
// number.
func (s *Session) send(m dap.Message) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.seq++
	switch msg := m.(type) {
	case dap.ResponseMessage:
		msg.GetResponse().Seq = s.seq
	case dap.EventMessage:
		msg.GetEvent().Seq = s.seq
	}
	if err := dap.WriteProtocolMessage(s.rwc, m); err != nil && s.ctx.Err() == nil {
		s.logger.Warn("failed to write to editor", log.Error(err))
	}
}

func (s *Session) sendError(req *dap.Request, err error) {
	resp := &dap.ErrorResponse{Response: newResponse(req)}
	resp.Success = false
	resp.Message = err.Error()
	resp.Body.Error = &dap.ErrorMessage{
		Id:       errorCode(err),
		Format:   err.Error(),
		ShowUser: true,
	}
	s.send(resp)
}

func newResponse(req *dap.Request) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		Command:         req.Command,
		RequestSeq:      req.Seq,
		Success:         true,
	}
}

func newEvent(name string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Type: "event"},
		Event:           name,
	}
}

// Error codes reported in ErrorResponse bodies.
const (
	codeUnknown = 1000 + iota
	codeSequence
	codeParse
	codeResolution
	codeConnection
	codeTimeout
	codeRunner
	codeUnsupportedStep
	codeNotFound
	codeValidation
)

func errorCode(err error) int {
	if errors.Is(err, ErrNotInitialized) {
		return codeSequence
	}
	switch errors.TypeOf(err) {
	case "parse":
		return codeParse
	case "resolution":
		return codeResolution
	case "connection":
		return codeConnection
	case "timeout":
		return codeTimeout
	case "runner":
		return codeRunner
	case "unsupported_step":
		return codeUnsupportedStep
	case "not_found":
		return codeNotFound
	case "validation":
		return codeValidation
	default:
		return codeUnknown
	}
}

// startEvents forwards runner events to the editor. It is a no-op after
// the first call.
func (s *Session) startEvents() {
	s.mu.Lock()
	if s.stopEvents != nil {
		s.mu.Unlock()
		return
	}
	events, stop := s.runner.Subscribe()
	s.stopEvents = stop
	s.pump.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.pump.Done()
		for ev := range events {
			s.forward(ev)
		}
	}()
}

func (s *Session) forward(ev runnerconn.Event) {
	switch ev.Name {
	case runnerconn.EventOutput:
		out := &dap.OutputEvent{Event: newEvent("output")}
		out.Body.Category = "stdout"
		out.Body.Output = ev.OutputText() + "\n"
		s.send(out)
	case runnerconn.EventStopped:
		stopped := &dap.StoppedEvent{Event: newEvent("stopped")}
		stopped.Body.Reason = ev.StoppedReason()
		if stopped.Body.Reason == "" {
			stopped.Body.Reason = "breakpoint"
		}
		stopped.Body.ThreadId = runnerconn.ThreadID
		stopped.Body.AllThreadsStopped = true
		s.send(stopped)
	case runnerconn.EventTerminated:
		s.send(&dap.TerminatedEvent{Event: newEvent("terminated")})
	default:
		log.Trace(s.logger, "ignoring runner event", log.String(log.EventKey, ev.Name))
	}
}

// awaitConfiguration blocks until the editor sends configurationDone.
func (s *Session) awaitConfiguration() error {
	select {
	case <-s.configured:
		return nil
	case <-s.ctx.Done():
		return errors.New("session ended before configuration finished")
	}
}

// launchArguments are the launch fields the session understands. Anything
// else the editor sends is ignored.
type launchArguments struct {
	// Execution selects a matrix run of the bound job by its position in
	// the expanded plan.
	Execution int `json:"execution"`
}

func decodeLaunchArguments(raw json.RawMessage) (launchArguments, error) {
	var args launchArguments
	if len(raw) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, &errors.ValidationError{Field: "arguments", Message: err.Error()}
	}
	return args, nil
}
