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

// Package fakerunner is an in-process stand-in for a job runner's debug
// socket. It records every message it receives and answers requests with
// configurable replies, so connection and session code can be tested over
// net.Pipe or a loopback listener.
package fakerunner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/go-dap"
)

// Message is a protocol message as seen by the runner.
type Message struct {
	Seq        int             `json:"seq"`
	Type       string          `json:"type"`
	Command    string          `json:"command,omitempty"`
	Event      string          `json:"event,omitempty"`
	RequestSeq int             `json:"request_seq,omitempty"`
	Success    bool            `json:"success,omitempty"`
	Message    string          `json:"message,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Reply describes how the runner answers a request.
type Reply struct {
	// Body is marshalled as the response body when non-nil
	Body any

	// Err makes the response unsuccessful with this message
	Err string

	// Drop leaves the request unanswered
	Drop bool
}

// Handler computes the reply to a request.
type Handler func(req Message) Reply

// Runner is a fake runner bound to one stream.
type Runner struct {
	rwc io.ReadWriteCloser

	writeMu sync.Mutex
	seq     int

	mu       sync.Mutex
	received []Message
	notify   chan struct{}
	handlers map[string]Handler

	// SkipInitialized suppresses the initialized event normally sent after
	// answering initialize. Set it before the client connects.
	SkipInitialized bool

	done chan struct{}
}

// New starts a runner reading from rwc.
func New(rwc io.ReadWriteCloser) *Runner {
	r := &Runner{
		rwc:      rwc,
		notify:   make(chan struct{}),
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}
	go r.loop()
	return r
}

// NewPaused returns a runner whose configuration can be changed before
// Start is called.
func NewPaused(rwc io.ReadWriteCloser) *Runner {
	return &Runner{
		rwc:      rwc,
		notify:   make(chan struct{}),
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}
}

// Start begins serving a runner created with NewPaused.
func (r *Runner) Start() {
	go r.loop()
}

// Pipe returns a runner on one end of an in-memory pipe and the client end.
func Pipe() (*Runner, net.Conn) {
	server, client := net.Pipe()
	return New(server), client
}

// Accept waits for one connection on l and serves it.
func Accept(l net.Listener) (*Runner, error) {
	conn, err := l.Accept()
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// Handle sets the reply for command.
func (r *Runner) Handle(command string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[command] = h
}

// Drop leaves every request named command unanswered.
func (r *Runner) Drop(command string) {
	r.Handle(command, func(Message) Reply { return Reply{Drop: true} })
}

// Done is closed when the stream ends.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Close closes the stream.
func (r *Runner) Close() error {
	return r.rwc.Close()
}

// Received returns the messages received so far with the given type and
// command or event name. An empty name matches any.
func (r *Runner) Received(typ, name string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.received {
		if m.Type != typ {
			continue
		}
		if name != "" && m.Command != name && m.Event != name {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Requests returns the requests received for command.
func (r *Runner) Requests(command string) []Message {
	return r.Received("request", command)
}

// Commands returns the commands of all received requests in order.
func (r *Runner) Commands() []string {
	var out []string
	for _, m := range r.Received("request", "") {
		out = append(out, m.Command)
	}
	return out
}

// WaitFor blocks until n messages of the given type and name have been
// received.
func (r *Runner) WaitFor(typ, name string, n int, timeout time.Duration) ([]Message, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		r.mu.Lock()
		notify := r.notify
		r.mu.Unlock()

		if got := r.Received(typ, name); len(got) >= n {
			return got, nil
		}
		select {
		case <-notify:
		case <-r.done:
			if got := r.Received(typ, name); len(got) >= n {
				return got, nil
			}
			return nil, fmt.Errorf("stream closed waiting for %d %s %q", n, typ, name)
		case <-deadline.C:
			return nil, fmt.Errorf("timed out waiting for %d %s %q", n, typ, name)
		}
	}
}

// WaitForRequest waits for the n-th request named command and returns it.
func (r *Runner) WaitForRequest(command string, n int, timeout time.Duration) (Message, error) {
	got, err := r.WaitFor("request", command, n, timeout)
	if err != nil {
		return Message{}, err
	}
	return got[n-1], nil
}

// SendEvent sends an event to the client.
func (r *Runner) SendEvent(event string, body any) error {
	msg := Message{Type: "event", Event: event}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		msg.Body = raw
	}
	return r.write(msg)
}

// SendRequest sends a request to the client.
func (r *Runner) SendRequest(command string, args any) error {
	msg := Message{Type: "request", Command: command}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return err
		}
		msg.Arguments = raw
	}
	return r.write(msg)
}

// Respond answers req.
func (r *Runner) Respond(req Message, reply Reply) error {
	msg := Message{
		Type:       "response",
		RequestSeq: req.Seq,
		Command:    req.Command,
		Success:    reply.Err == "",
		Message:    reply.Err,
	}
	if reply.Body != nil {
		raw, err := json.Marshal(reply.Body)
		if err != nil {
			return err
		}
		msg.Body = raw
	}
	return r.write(msg)
}

// SendRaw writes content as one framed message without encoding it.
func (r *Runner) SendRaw(content []byte) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return dap.WriteBaseMessage(r.rwc, content)
}

func (r *Runner) write(msg Message) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.seq++
	msg.Seq = r.seq
	content, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return dap.WriteBaseMessage(r.rwc, content)
}

func (r *Runner) loop() {
	defer close(r.done)
	br := bufio.NewReader(r.rwc)
	for {
		content, err := dap.ReadBaseMessage(br)
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(content, &msg); err != nil {
			continue
		}

		r.mu.Lock()
		r.received = append(r.received, msg)
		close(r.notify)
		r.notify = make(chan struct{})
		h := r.handlers[msg.Command]
		r.mu.Unlock()

		if msg.Type != "request" {
			continue
		}

		reply := Reply{}
		if h != nil {
			reply = h(msg)
		}
		if reply.Drop {
			continue
		}
		if err := r.Respond(msg, reply); err != nil {
			return
		}
		if msg.Command == "initialize" && !r.SkipInitialized {
			if err := r.SendEvent("initialized", nil); err != nil {
				return
			}
		}
	}
}
