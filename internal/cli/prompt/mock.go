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

package prompt

import (
	"context"
	"fmt"
)

// MockPrompter implements Prompter with scripted responses for testing.
type MockPrompter struct {
	responses   []string
	index       int
	interactive bool
	callLog     []string
}

// NewMockPrompter creates a mock prompter that answers with responses in
// order, then with each prompt's default.
func NewMockPrompter(interactive bool, responses ...string) *MockPrompter {
	return &MockPrompter{responses: responses, interactive: interactive}
}

// Select returns the next scripted response.
func (mp *MockPrompter) Select(ctx context.Context, message string, options []string, def string) (string, error) {
	mp.callLog = append(mp.callLog, fmt.Sprintf("Select(%s)", message))
	if !mp.interactive {
		return "", ErrNonInteractive
	}
	if mp.index >= len(mp.responses) {
		return def, nil
	}
	resp := mp.responses[mp.index]
	mp.index++
	return resp, nil
}

// IsInteractive returns the configured interactivity.
func (mp *MockPrompter) IsInteractive() bool {
	return mp.interactive
}

// Calls returns the prompts shown so far.
func (mp *MockPrompter) Calls() []string {
	return mp.callLog
}
