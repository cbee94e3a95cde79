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

package errors_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	wferrors "github.com/tombee/wfdebug/pkg/errors"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *wferrors.ValidationError
		wantMsg string
	}{
		{
			name:    "with field",
			err:     &wferrors.ValidationError{Field: "job", Message: "required field is missing"},
			wantMsg: "validation failed on job: required field is missing",
		},
		{
			name:    "without field",
			err:     &wferrors.ValidationError{Message: "invalid format"},
			wantMsg: "validation failed: invalid format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ValidationError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestParseError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *wferrors.ParseError
		wantMsg string
	}{
		{
			name:    "file and reason",
			err:     &wferrors.ParseError{File: "ci.yml", Reason: "document is empty"},
			wantMsg: "could not parse workflow ci.yml: document is empty",
		},
		{
			name:    "cause only",
			err:     &wferrors.ParseError{Cause: errors.New("yaml: line 3: bad indent")},
			wantMsg: "could not parse workflow: yaml: line 3: bad indent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ParseError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConnectionError_Error(t *testing.T) {
	cause := errors.New("connection refused")
	err := &wferrors.ConnectionError{Address: "127.0.0.1:41085", Reason: "dial failed", Cause: cause}

	want := "runner connection to 127.0.0.1:41085: dial failed: connection refused"
	if got := err.Error(); got != want {
		t.Errorf("ConnectionError.Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestUnsupportedStepError(t *testing.T) {
	err := &wferrors.UnsupportedStepError{JobID: "build", StepIndex: 1, Kind: "uses: actions/checkout@v4"}

	want := "job build step 1 (uses: actions/checkout@v4): only run steps are supported: not implemented"
	if got := err.Error(); got != want {
		t.Errorf("UnsupportedStepError.Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, wferrors.ErrNotImplemented) {
		t.Error("UnsupportedStepError should unwrap to ErrNotImplemented")
	}
}

func TestResolutionError_Error(t *testing.T) {
	err := &wferrors.ResolutionError{Offset: 42, Reason: "not inside a steps sequence"}
	want := "offset 42 does not resolve to a step: not inside a steps sequence"
	if got := err.Error(); got != want {
		t.Errorf("ResolutionError.Error() = %q, want %q", got, want)
	}
}

func TestConfigError_Unwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := &wferrors.ConfigError{Key: "runner.port", Reason: "cannot read", Cause: cause}

	if got := err.Error(); got != "config error at runner.port: cannot read" {
		t.Errorf("ConfigError.Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("ConfigError should unwrap to its cause")
	}
}

func TestTimeoutError_Error(t *testing.T) {
	err := &wferrors.TimeoutError{Operation: "stackTrace request", Duration: 2 * time.Second}
	want := "stackTrace request operation timed out after 2s"
	if got := err.Error(); got != want {
		t.Errorf("TimeoutError.Error() = %q, want %q", got, want)
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  string
		retryable bool
	}{
		{"timeout", &wferrors.TimeoutError{Operation: "x"}, "timeout", true},
		{"connection", &wferrors.ConnectionError{Reason: "closed"}, "connection", true},
		{"parse", &wferrors.ParseError{}, "parse", false},
		{"unsupported step", &wferrors.UnsupportedStepError{}, "unsupported_step", false},
		{"not found", &wferrors.NotFoundError{Resource: "job", ID: "x"}, "not_found", false},
		{"wrapped timeout", fmt.Errorf("stack trace: %w", &wferrors.TimeoutError{}), "timeout", true},
		{"plain", errors.New("boom"), "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wferrors.TypeOf(tt.err); got != tt.wantType {
				t.Errorf("TypeOf() = %q, want %q", got, tt.wantType)
			}
			if got := wferrors.IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestErrorsAs(t *testing.T) {
	err := fmt.Errorf("launch: %w", &wferrors.UnsupportedStepError{JobID: "deploy", StepIndex: 2})

	var stepErr *wferrors.UnsupportedStepError
	if !errors.As(err, &stepErr) {
		t.Fatal("errors.As should find UnsupportedStepError")
	}
	if stepErr.JobID != "deploy" || stepErr.StepIndex != 2 {
		t.Errorf("unexpected error fields: %+v", stepErr)
	}
}
