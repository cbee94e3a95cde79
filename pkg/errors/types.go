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

package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotImplemented is the cause carried by UnsupportedStepError.
var ErrNotImplemented = errors.New("not implemented")

// ValidationError represents user input validation failures.
// Use this for invalid user input, malformed data, or constraint violations.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ErrorType implements ErrorClassifier.
func (e *ValidationError) ErrorType() string { return "validation" }

// IsRetryable implements ErrorClassifier.
func (e *ValidationError) IsRetryable() bool { return false }

// NotFoundError represents a resource not found error.
// Use this when a requested resource does not exist.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "job", "session", "file")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrorType implements ErrorClassifier.
func (e *NotFoundError) ErrorType() string { return "not_found" }

// IsRetryable implements ErrorClassifier.
func (e *NotFoundError) IsRetryable() bool { return false }

// ParseError reports that no workflow model could be produced for a document.
// It is fatal to session initialization.
type ParseError struct {
	// File is the workflow file name
	File string

	// Reason explains why the document could not be used
	Reason string

	// Cause is the underlying parser error (if any)
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	msg := "could not parse workflow"
	if e.File != "" {
		msg = fmt.Sprintf("%s %s", msg, e.File)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ParseError) ErrorType() string { return "parse" }

// IsRetryable implements ErrorClassifier.
func (e *ParseError) IsRetryable() bool { return false }

// ResolutionError reports a document offset that does not map to a step.
// It only affects the breakpoint it was raised for.
type ResolutionError struct {
	// Offset is the byte offset that failed to resolve
	Offset int

	// Reason explains which resolution stage failed
	Reason string
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("offset %d does not resolve to a step: %s", e.Offset, e.Reason)
}

// ErrorType implements ErrorClassifier.
func (e *ResolutionError) ErrorType() string { return "resolution" }

// IsRetryable implements ErrorClassifier.
func (e *ResolutionError) IsRetryable() bool { return false }

// ConnectionError represents a runner transport that could not be
// established or was lost while a call was outstanding.
type ConnectionError struct {
	// Address is the runner address (host:port)
	Address string

	// Reason explains what went wrong
	Reason string

	// Cause is the underlying network error
	Cause error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	msg := "runner connection"
	if e.Address != "" {
		msg = fmt.Sprintf("%s to %s", msg, e.Address)
	}
	msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ConnectionError) ErrorType() string { return "connection" }

// IsRetryable implements ErrorClassifier.
func (e *ConnectionError) IsRetryable() bool { return true }

// UnsupportedStepError is returned when a job step cannot be translated into
// a runner step. Only inline script steps are supported.
type UnsupportedStepError struct {
	// JobID is the job containing the step
	JobID string

	// StepIndex is the zero-based position of the step
	StepIndex int

	// Kind describes the step (e.g. "uses: actions/checkout@v4")
	Kind string
}

// Error implements the error interface.
func (e *UnsupportedStepError) Error() string {
	msg := fmt.Sprintf("step %d", e.StepIndex)
	if e.JobID != "" {
		msg = fmt.Sprintf("job %s %s", e.JobID, msg)
	}
	if e.Kind != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Kind)
	}
	return fmt.Sprintf("%s: only run steps are supported: %v", msg, ErrNotImplemented)
}

// Unwrap returns ErrNotImplemented.
func (e *UnsupportedStepError) Unwrap() error {
	return ErrNotImplemented
}

// ErrorType implements ErrorClassifier.
func (e *UnsupportedStepError) ErrorType() string { return "unsupported_step" }

// IsRetryable implements ErrorClassifier.
func (e *UnsupportedStepError) IsRetryable() bool { return false }

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "runner.port")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ConfigError) ErrorType() string { return "config" }

// IsRetryable implements ErrorClassifier.
func (e *ConfigError) IsRetryable() bool { return false }

// TimeoutError represents operation timeouts.
// Use this when a runner request exceeds its response timeout.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "stackTrace request")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *TimeoutError) ErrorType() string { return "timeout" }

// IsRetryable implements ErrorClassifier.
func (e *TimeoutError) IsRetryable() bool { return true }
