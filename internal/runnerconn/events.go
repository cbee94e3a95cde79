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
	"encoding/json"
	"strings"
	"sync"
)

// Event names sent by the runner.
const (
	EventInitialized = "initialized"
	EventOutput      = "output"
	EventStopped     = "stopped"
	EventTerminated  = "terminated"
)

// Event is an event received from the runner.
type Event struct {
	Name string
	Body json.RawMessage

	// Synthetic is set on the terminated event emitted when the stream
	// closes without the runner announcing it.
	Synthetic bool
}

// OutputText returns the text of an output event. Runners send it as
// either "output" or "text".
func (e Event) OutputText() string {
	var body struct {
		Output string `json:"output"`
		Text   string `json:"text"`
	}
	if len(e.Body) > 0 {
		_ = json.Unmarshal(e.Body, &body)
	}
	if body.Output != "" {
		return body.Output
	}
	return body.Text
}

// StoppedReason returns the reason of a stopped event.
func (e Event) StoppedReason() string {
	var body struct {
		Reason string `json:"reason"`
	}
	if len(e.Body) > 0 {
		_ = json.Unmarshal(e.Body, &body)
	}
	return body.Reason
}

func (e Event) String() string {
	if e.Name == EventOutput {
		return e.Name + ": " + strings.TrimRight(e.OutputText(), "\n")
	}
	return e.Name
}

// subscriber delivers events through an unbounded queue so that a slow
// consumer never blocks the read loop and events keep arrival order.
type subscriber struct {
	mu     sync.Mutex
	queue  []Event
	closed bool

	signal chan struct{}
	cancel chan struct{}
	out    chan Event
	once   sync.Once
}

func newSubscriber() *subscriber {
	s := &subscriber{
		signal: make(chan struct{}, 1),
		cancel: make(chan struct{}),
		out:    make(chan Event),
	}
	go s.run()
	return s
}

func (s *subscriber) push(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.wake()
}

// finish closes the subscription once queued events are delivered.
func (s *subscriber) finish() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.cancel) })
}

func (s *subscriber) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-s.signal:
				continue
			case <-s.cancel:
				return
			}
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.cancel:
			return
		}
	}
}
