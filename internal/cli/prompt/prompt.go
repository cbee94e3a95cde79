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

// Package prompt asks the user to pick between options on a terminal, with
// a scripted implementation for tests.
package prompt

import (
	"context"
	"errors"
)

// ErrNonInteractive is returned when a prompt cannot be shown.
var ErrNonInteractive = errors.New("cannot prompt in non-interactive mode")

// Prompter selects one of a list of options.
type Prompter interface {
	// Select presents options and returns the chosen one
	Select(ctx context.Context, message string, options []string, def string) (string, error)

	// IsInteractive returns true if prompts can be displayed
	IsInteractive() bool
}

// SelectIndex runs Select and returns the index of the chosen option.
func SelectIndex(ctx context.Context, p Prompter, message string, options []string) (int, error) {
	if len(options) == 0 {
		return -1, errors.New("no options to choose from")
	}
	if len(options) == 1 {
		return 0, nil
	}
	choice, err := p.Select(ctx, message, options, options[0])
	if err != nil {
		return -1, err
	}
	for i, opt := range options {
		if opt == choice {
			return i, nil
		}
	}
	return -1, errors.New("selection is not one of the options")
}
