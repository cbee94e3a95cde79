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
	"fmt"
	"time"

	"github.com/tombee/wfdebug/internal/jobrequest"
	"github.com/tombee/wfdebug/internal/plan"
	"github.com/tombee/wfdebug/internal/runnerconn"
	"github.com/tombee/wfdebug/pkg/errors"
	"github.com/tombee/wfdebug/pkg/workflow"
)

const (
	// DefaultRunnerAddress is the address of a runner on the local machine.
	DefaultRunnerAddress = "127.0.0.1"

	// DefaultRunnerPort is the port the runner listens on for debuggers.
	DefaultRunnerPort = 41085
)

// Config binds a session to a workflow file, a job within it and a runner.
type Config struct {
	// WorkflowPath is the workflow file the session debugs.
	WorkflowPath string

	// JobID selects the job to run. Empty selects the first job in the
	// file.
	JobID string

	// RunnerAddress and RunnerPort locate the runner's debug listener.
	RunnerAddress string
	RunnerPort    int

	// RequestTimeout bounds every runner request.
	RequestTimeout time.Duration

	// ConnectTimeout bounds the runner handshake.
	ConnectTimeout time.Duration

	// GitHub is sent as the github context of the job.
	GitHub jobrequest.GitHubContext

	// Watch reloads the workflow file when it changes on disk.
	Watch bool
}

// DefaultConfig returns a Config for a local runner.
func DefaultConfig() Config {
	return Config{
		RunnerAddress:  DefaultRunnerAddress,
		RunnerPort:     DefaultRunnerPort,
		RequestTimeout: runnerconn.DefaultRequestTimeout,
		ConnectTimeout: runnerconn.DefaultConnectTimeout,
		GitHub:         jobrequest.DefaultGitHubContext(),
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.RunnerAddress == "" {
		c.RunnerAddress = def.RunnerAddress
	}
	if c.RunnerPort == 0 {
		c.RunnerPort = def.RunnerPort
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.GitHub == (jobrequest.GitHubContext{}) {
		c.GitHub = def.GitHub
	}
	return c
}

// Validate checks the fields that do not depend on the workflow content.
func (c *Config) Validate() error {
	if c.WorkflowPath == "" {
		return &errors.ConfigError{Key: "workflow", Reason: "a workflow file is required"}
	}
	if c.RunnerPort < 0 || c.RunnerPort > 65535 {
		return &errors.ConfigError{
			Key:    "runner.port",
			Reason: fmt.Sprintf("port %d is out of range", c.RunnerPort),
		}
	}
	if c.RequestTimeout < 0 {
		return &errors.ConfigError{Key: "runner.request_timeout", Reason: "must not be negative"}
	}
	if c.ConnectTimeout < 0 {
		return &errors.ConfigError{Key: "runner.connect_timeout", Reason: "must not be negative"}
	}
	return nil
}

// BoundJob returns the job the session runs in wf.
func (c *Config) BoundJob(wf *workflow.Workflow) (plan.JobDescription, error) {
	jobs := plan.BuildPlan(wf)
	if c.JobID == "" {
		if len(jobs) == 0 {
			return plan.JobDescription{}, &errors.ValidationError{
				Field:   "jobs",
				Message: "workflow defines no jobs",
			}
		}
		return jobs[0], nil
	}
	desc, ok := plan.Find(jobs, c.JobID)
	if !ok {
		return plan.JobDescription{}, &errors.NotFoundError{Resource: "job", ID: c.JobID}
	}
	return desc, nil
}
