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

// Package runnerconn is the client side of the runner's debug socket.
//
// A Conn correlates requests with responses by sequence number, tracks
// whether the runner is connected or paused, buffers breakpoints until the
// handshake completes, and fans runner events out to subscribers. Every
// request waits at most Config.RequestTimeout for its response; a timed
// out request is forgotten and a late response is dropped.
//
// Lifecycle:
//
//	Default --Connect/Open--> Connected --stopped--> Stopped
//	Stopped --Continue--> Connected
//	any --stream closed--> Default (emits terminated)
package runnerconn

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/go-dap"
	"github.com/tombee/wfdebug/internal/log"
	"github.com/tombee/wfdebug/internal/metrics"
	wferrors "github.com/tombee/wfdebug/pkg/errors"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultRequestTimeout bounds the wait for a runner response.
	DefaultRequestTimeout = 2000 * time.Millisecond

	// DefaultConnectTimeout bounds dialing and the initialize handshake.
	DefaultConnectTimeout = 10 * time.Second

	// ThreadID is the single thread the runner reports.
	ThreadID = 1
)

var errStreamClosed = errors.New("stream closed")

// Config configures a Conn.
type Config struct {
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	Logger         *slog.Logger
	Tracer         trace.Tracer
}

// RequestHandler answers a request sent by the runner. Handlers run on the
// read loop and must not issue requests on the same connection.
type RequestHandler func(ctx context.Context, args json.RawMessage) (any, error)

// RequestError is a failed response from the runner.
type RequestError struct {
	Command string
	Message string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("runner rejected %s", e.Command)
	}
	return fmt.Sprintf("runner rejected %s: %s", e.Command, e.Message)
}

// ErrorType implements errors.ErrorClassifier.
func (e *RequestError) ErrorType() string { return "runner" }

// IsRetryable implements errors.ErrorClassifier.
func (e *RequestError) IsRetryable() bool { return false }

// Conn is a connection to a runner. The zero value is not usable; create
// one with New.
type Conn struct {
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer

	// writeMu serializes writes and sequence allocation. It is always
	// acquired before mu.
	writeMu sync.Mutex

	mu          sync.Mutex
	rwc         io.ReadWriteCloser
	address     string
	state       State
	seq         int
	pending     map[int]chan *inbound
	breakpoints []int
	buffered    bool
	terminated  bool
	initialized chan struct{}
	done        chan struct{}
	handlers    map[string]RequestHandler
	subs        map[int]*subscriber
	nextSub     int
}

// New returns a disconnected Conn.
func New(cfg Config) *Conn {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = defaultTracer()
	}

	done := make(chan struct{})
	close(done)

	return &Conn{
		cfg:      cfg,
		logger:   log.WithComponent(logger, "runnerconn"),
		tracer:   tracer,
		pending:  make(map[int]chan *inbound),
		handlers: make(map[string]RequestHandler),
		subs:     make(map[int]*subscriber),
		done:     done,
	}
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when the current stream has shut down.
func (c *Conn) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Connect dials the runner and performs the handshake. It returns once the
// runner has sent initialized, buffered breakpoints have been pushed and
// configurationDone has been acknowledged.
func (c *Conn) Connect(ctx context.Context, address string, port int) error {
	addr := net.JoinHostPort(address, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}

	c.logger.Info("connecting to runner", slog.String("address", addr))
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &wferrors.ConnectionError{Address: addr, Reason: "dial failed", Cause: err}
	}

	c.mu.Lock()
	c.address = addr
	c.mu.Unlock()

	return c.Open(ctx, nc)
}

// Open performs the handshake over an established stream. The Conn owns
// rwc afterwards and closes it on failure.
func (c *Conn) Open(ctx context.Context, rwc io.ReadWriteCloser) error {
	c.mu.Lock()
	if c.rwc != nil {
		c.mu.Unlock()
		return &wferrors.ConnectionError{Address: c.address, Reason: "already open"}
	}
	c.rwc = rwc
	c.terminated = false
	c.initialized = make(chan struct{})
	c.done = make(chan struct{})
	initialized, done := c.initialized, c.done
	c.mu.Unlock()

	go c.readLoop(rwc)

	if err := c.handshake(ctx, initialized, done); err != nil {
		c.logger.Error("runner handshake failed", log.Error(err))
		_ = c.Close()
		return err
	}

	c.logger.Info("runner connected")
	return nil
}

func (c *Conn) handshake(ctx context.Context, initialized, done <-chan struct{}) error {
	args := dap.InitializeRequestArguments{
		ClientID:        "wfdebug",
		ClientName:      "wfdebug",
		AdapterID:       "runner",
		LinesStartAt1:   true,
		ColumnsStartAt1: true,
		PathFormat:      "path",
	}
	if err := c.call(ctx, "initialize", args, nil); err != nil {
		return err
	}

	timer := time.NewTimer(c.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case <-initialized:
	case <-done:
		return c.connErr("closed during handshake", errStreamClosed)
	case <-timer.C:
		return &wferrors.TimeoutError{Operation: "runner handshake", Duration: c.cfg.ConnectTimeout}
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	c.state = StateConnected
	bps, buffered := c.breakpoints, c.buffered
	c.buffered = false
	c.mu.Unlock()

	if buffered {
		if err := c.pushBreakpoints(ctx, bps); err != nil {
			return err
		}
	}
	return c.call(ctx, "configurationDone", nil, nil)
}

// Close closes the stream and waits for the read loop to finish. Pending
// requests fail with a connection error.
func (c *Conn) Close() error {
	c.mu.Lock()
	rwc, done := c.rwc, c.done
	c.mu.Unlock()
	if rwc == nil {
		return nil
	}
	err := rwc.Close()
	<-done
	return err
}

// Subscribe registers for runner events. Events are delivered in arrival
// order; the channel is closed when the stream shuts down or cancel is
// called.
func (c *Conn) Subscribe() (<-chan Event, func()) {
	s := newSubscriber()

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = s
	c.mu.Unlock()

	return s.out, func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		s.stop()
	}
}

// HandleRequest registers fn to answer runner requests named command.
func (c *Conn) HandleRequest(command string, fn RequestHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[command] = fn
}

// Attach asks the runner to attach to an already running job.
func (c *Conn) Attach(ctx context.Context) error {
	return c.call(ctx, "attach", nil, nil)
}

// Launch starts job on the runner. job is sent as {"job": job}.
func (c *Conn) Launch(ctx context.Context, job any) error {
	return c.call(ctx, "launch", launchArgs{Job: job}, nil)
}

// SetBreakpoints replaces the breakpoint set. The set is pushed at once
// when the runner is connected, and otherwise when the handshake
// completes.
func (c *Conn) SetBreakpoints(ctx context.Context, stepIndices []int) error {
	bps := append([]int(nil), stepIndices...)

	c.mu.Lock()
	c.breakpoints = bps
	live := c.state.live()
	if !live {
		c.buffered = true
	}
	c.mu.Unlock()

	if !live {
		c.logger.Debug("buffering breakpoints until connected", slog.Any("steps", bps))
		return nil
	}
	return c.pushBreakpoints(ctx, bps)
}

func (c *Conn) pushBreakpoints(ctx context.Context, stepIndices []int) error {
	return c.call(ctx, "setBreakpoints", newBreakpointArgs(stepIndices), nil)
}

// Breakpoints returns the current breakpoint set.
func (c *Conn) Breakpoints() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.breakpoints...)
}

// Continue resumes a paused runner. It does nothing unless the runner is
// stopped. A failed continue leaves the runner stopped.
func (c *Conn) Continue(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateStopped {
		c.mu.Unlock()
		return nil
	}
	// Leave Stopped before sending so a stopped event that follows the
	// response is not overwritten.
	c.state = StateConnected
	c.mu.Unlock()

	err := c.call(ctx, "continue", dap.ContinueArguments{ThreadId: ThreadID}, nil)
	if err != nil {
		c.mu.Lock()
		if c.state == StateConnected {
			c.state = StateStopped
		}
		c.mu.Unlock()
	}
	return err
}

// Terminate asks the runner to end the job.
func (c *Conn) Terminate(ctx context.Context) error {
	return c.call(ctx, "terminate", nil, nil)
}

// StackTrace requests the runner's stack frames. Frame lines are step
// indices.
func (c *Conn) StackTrace(ctx context.Context, args dap.StackTraceArguments) (*dap.StackTraceResponseBody, error) {
	var body dap.StackTraceResponseBody
	if err := c.call(ctx, "stackTrace", args, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// Variables requests the variables of a scope or structured variable.
func (c *Conn) Variables(ctx context.Context, args dap.VariablesArguments) (*dap.VariablesResponseBody, error) {
	var body dap.VariablesResponseBody
	if err := c.call(ctx, "variables", args, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// Evaluate asks the runner to evaluate an expression.
func (c *Conn) Evaluate(ctx context.Context, args dap.EvaluateArguments) (*dap.EvaluateResponseBody, error) {
	var body dap.EvaluateResponseBody
	if err := c.call(ctx, "evaluate", args, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// call sends a request and waits for its response, decoding the body into
// body when non-nil.
func (c *Conn) call(ctx context.Context, command string, args, body any) (err error) {
	ctx, span := startRequestSpan(ctx, c.tracer, command)
	start := time.Now()
	seq := 0
	defer func() {
		endRequestSpan(span, seq, err)
		metrics.RecordRunnerRequest(command, outcome(err), time.Since(start).Seconds())
	}()

	raw, err := rawJSON(args)
	if err != nil {
		return fmt.Errorf("encode %s arguments: %w", command, err)
	}

	ch := make(chan *inbound, 1)
	seq, err = c.send(ch, func(n int) any {
		return outboundRequest{
			Request: dap.Request{
				ProtocolMessage: dap.ProtocolMessage{Seq: n, Type: "request"},
				Command:         command,
			},
			Arguments: raw,
		}
	})
	if err != nil {
		return c.connErr("send "+command, err)
	}
	log.Trace(c.logger, "runner request sent", log.String(log.CommandKey, command), log.Int(log.SeqKey, seq))

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return c.connErr(command+" interrupted", errStreamClosed)
		}
		if !resp.Success {
			return &RequestError{Command: command, Message: resp.Message}
		}
		if body != nil && len(resp.Body) > 0 {
			if err := json.Unmarshal(resp.Body, body); err != nil {
				return fmt.Errorf("decode %s response: %w", command, err)
			}
		}
		return nil

	case <-timer.C:
		c.removePending(seq)
		c.logger.Warn("runner request timed out",
			log.String(log.CommandKey, command),
			log.Int(log.SeqKey, seq),
			slog.Duration("timeout", c.cfg.RequestTimeout))
		return &wferrors.TimeoutError{Operation: command + " request", Duration: c.cfg.RequestTimeout}

	case <-ctx.Done():
		c.removePending(seq)
		return ctx.Err()
	}
}

// send allocates a sequence number, registers reply for it when non-nil,
// and writes the message built for that number.
func (c *Conn) send(reply chan *inbound, build func(seq int) any) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	w := c.rwc
	if w == nil {
		c.mu.Unlock()
		return 0, errors.New("not connected")
	}
	c.seq++
	seq := c.seq
	if reply != nil {
		c.pending[seq] = reply
	}
	c.mu.Unlock()

	if err := writeMessage(w, build(seq)); err != nil {
		if reply != nil {
			c.removePending(seq)
		}
		return seq, err
	}
	return seq, nil
}

func (c *Conn) removePending(seq int) {
	c.mu.Lock()
	delete(c.pending, seq)
	c.mu.Unlock()
}

// PendingCount returns the number of requests awaiting a response.
func (c *Conn) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Conn) connErr(reason string, cause error) error {
	c.mu.Lock()
	addr := c.address
	c.mu.Unlock()
	return &wferrors.ConnectionError{Address: addr, Reason: reason, Cause: cause}
}

func (c *Conn) readLoop(rwc io.ReadWriteCloser) {
	r := bufio.NewReader(rwc)
	var err error
	for {
		var msg *inbound
		msg, err = readMessage(r)
		var derr *decodeError
		if errors.As(err, &derr) {
			c.logger.Warn("dropping undecodable runner message", log.Error(err))
			continue
		}
		if err != nil {
			break
		}
		switch msg.Type {
		case "event":
			c.handleEvent(rwc, msg)
		case "response":
			c.handleResponse(msg)
		case "request":
			c.handleRequest(msg)
		default:
			c.logger.Warn("ignoring runner message", slog.String("type", msg.Type), log.Int(log.SeqKey, msg.Seq))
		}
	}
	c.shutdown(rwc, err)
}

func (c *Conn) handleEvent(rwc io.ReadWriteCloser, msg *inbound) {
	ev := Event{Name: msg.Event, Body: msg.Body}
	metrics.RecordRunnerEvent(ev.Name)
	log.Trace(c.logger, "runner event", log.String(log.EventKey, ev.Name))

	c.mu.Lock()
	switch ev.Name {
	case EventInitialized:
		select {
		case <-c.initialized:
		default:
			close(c.initialized)
		}
	case EventStopped:
		if c.state.live() {
			c.state = StateStopped
		}
	case EventTerminated:
		c.terminated = true
	}
	subs := c.subscribers()
	c.mu.Unlock()

	for _, s := range subs {
		s.push(ev)
	}

	if ev.Name == EventTerminated {
		c.logger.Info("runner terminated the session")
		_ = rwc.Close()
	}
}

func (c *Conn) handleResponse(msg *inbound) {
	c.mu.Lock()
	ch, ok := c.pending[msg.RequestSeq]
	delete(c.pending, msg.RequestSeq)
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("discarding response without pending request",
			log.String(log.CommandKey, msg.Command),
			log.Int(log.SeqKey, msg.RequestSeq))
		return
	}
	ch <- msg
}

func (c *Conn) handleRequest(msg *inbound) {
	c.mu.Lock()
	h := c.handlers[msg.Command]
	c.mu.Unlock()

	resp := outboundResponse{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Type: "response"},
			RequestSeq:      msg.Seq,
			Command:         msg.Command,
			Success:         true,
		},
	}

	if h == nil {
		resp.Success = false
		resp.Message = fmt.Sprintf("unrecognized request %q", msg.Command)
	} else if result, err := h(context.Background(), msg.Arguments); err != nil {
		resp.Success = false
		resp.Message = err.Error()
	} else if result != nil {
		body, err := json.Marshal(result)
		if err != nil {
			resp.Success = false
			resp.Message = err.Error()
		} else {
			resp.Body = body
		}
	}

	if _, err := c.send(nil, func(n int) any {
		resp.Seq = n
		return resp
	}); err != nil {
		c.logger.Warn("failed to answer runner request", log.String(log.CommandKey, msg.Command), log.Error(err))
	}
}

// shutdown resets the connection after the stream ends.
func (c *Conn) shutdown(rwc io.ReadWriteCloser, cause error) {
	_ = rwc.Close()

	c.mu.Lock()
	c.rwc = nil
	c.state = StateDefault
	pending := c.pending
	c.pending = make(map[int]chan *inbound)
	announce := !c.terminated
	c.terminated = true
	subs := c.subscribers()
	c.subs = make(map[int]*subscriber)
	done := c.done
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	for _, s := range subs {
		if announce {
			s.push(Event{Name: EventTerminated, Synthetic: true})
		}
		s.finish()
	}

	if cause != nil && !errors.Is(cause, io.EOF) && !errors.Is(cause, net.ErrClosed) && !errors.Is(cause, io.ErrClosedPipe) {
		c.logger.Warn("runner stream closed", log.Error(cause))
	} else {
		c.logger.Info("runner stream closed")
	}
	close(done)
}

// subscribers returns a snapshot of the subscribers. c.mu must be held.
func (c *Conn) subscribers() []*subscriber {
	subs := make([]*subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	return subs
}

func outcome(err error) string {
	var timeoutErr *wferrors.TimeoutError
	var connErr *wferrors.ConnectionError
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &timeoutErr):
		return metrics.OutcomeTimeout
	case errors.As(err, &connErr):
		return metrics.OutcomeClosed
	default:
		return metrics.OutcomeFailure
	}
}
