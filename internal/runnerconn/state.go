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

import "fmt"

// State is the lifecycle state of a runner connection.
type State int

const (
	// StateDefault means no transport is established.
	StateDefault State = iota

	// StateConnected means the handshake completed and the runner is
	// executing or idle.
	StateConnected

	// StateStopped means the runner paused on a breakpoint.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDefault:
		return "default"
	case StateConnected:
		return "connected"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// live reports whether requests can reach the runner.
func (s State) live() bool {
	return s == StateConnected || s == StateStopped
}
