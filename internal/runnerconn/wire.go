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

package runnerconn

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/go-dap"
)

// The runner speaks the debug adapter base protocol: Content-Length framed
// JSON messages of type request, response or event. Arguments and bodies
// are kept raw because the runner's payloads (such as a job request) are
// not standard adapter types.

type outboundRequest struct {
	dap.Request
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type outboundResponse struct {
	dap.Response
	Body json.RawMessage `json:"body,omitempty"`
}

// inbound is any message read from the runner.
type inbound struct {
	dap.ProtocolMessage

	Command    string          `json:"command"`
	Event      string          `json:"event"`
	RequestSeq int             `json:"request_seq"`
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Arguments  json.RawMessage `json:"arguments"`
	Body       json.RawMessage `json:"body"`
}

// decodeError is a complete frame whose content is not a valid message.
// The stream itself is still in sync.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "decode runner message: " + e.err.Error() }

func (e *decodeError) Unwrap() error { return e.err }

func readMessage(r *bufio.Reader) (*inbound, error) {
	content, err := dap.ReadBaseMessage(r)
	if err != nil {
		return nil, err
	}
	var msg inbound
	if err := json.Unmarshal(content, &msg); err != nil {
		return nil, &decodeError{err: err}
	}
	return &msg, nil
}

func writeMessage(w io.Writer, msg any) error {
	content, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode runner message: %w", err)
	}
	return dap.WriteBaseMessage(w, content)
}

func rawJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("{}"), nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

// breakpointArgs is the setBreakpoints payload. The runner reads each
// breakpoint's line as a step index.
type breakpointArgs struct {
	Breakpoints []dap.SourceBreakpoint `json:"breakpoints"`
}

func newBreakpointArgs(stepIndices []int) breakpointArgs {
	bps := make([]dap.SourceBreakpoint, len(stepIndices))
	for i, idx := range stepIndices {
		bps[i] = dap.SourceBreakpoint{Line: idx}
	}
	return breakpointArgs{Breakpoints: bps}
}

// launchArgs wraps the job request sent with launch.
type launchArgs struct {
	Job any `json:"job"`
}
