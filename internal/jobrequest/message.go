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

// Package jobrequest builds the job request message a runner executes.
//
// A message carries one runner step per workflow step, the file table the
// step tokens point into, and the context data (github, env and any
// caller supplied groups such as matrix) the runner evaluates expressions
// against. Only inline script steps can be translated.
package jobrequest

import (
	"github.com/google/uuid"
	"github.com/tombee/wfdebug/pkg/errors"
	"github.com/tombee/wfdebug/pkg/workflow"
)

const (
	// MessageType is the runner message type of a job request.
	MessageType = "PipelineAgentJobRequest"

	defaultJobName   = "__default"
	defaultRequestID = 42
	lockedUntil      = "0001-01-01T00:00:00"
	stepCondition    = "success()"
	inputsMapType    = 2
)

// GitHubContext is the github context group sent with every job.
type GitHubContext struct {
	Ref        string
	Repository string
	Event      string
}

// DefaultGitHubContext returns the context used when none is configured.
func DefaultGitHubContext() GitHubContext {
	return GitHubContext{
		Ref:        "refs/heads/main",
		Repository: "local/workflow",
		Event:      "workflow_dispatch",
	}
}

// Options controls message construction.
type Options struct {
	GitHub GitHubContext

	// NewID generates job and step ids. Defaults to random UUIDs.
	NewID func() string
}

func (o Options) newID() string {
	if o.NewID != nil {
		return o.NewID()
	}
	return uuid.NewString()
}

// Message is the job request sent to the runner with launch.
type Message struct {
	FileTable      []string            `json:"fileTable"`
	Mask           []Mask              `json:"mask"`
	Steps          []Step              `json:"steps"`
	Variables      map[string]Variable `json:"variables"`
	MessageType    string              `json:"messageType"`
	Plan           map[string]any      `json:"plan"`
	Timeline       map[string]any      `json:"timeline"`
	ContextData    ContextData         `json:"contextData"`
	Resources      Resources           `json:"resources"`
	JobID          string              `json:"jobId"`
	JobDisplayName string              `json:"jobDisplayName"`
	JobName        string              `json:"jobName"`
	RequestID      int                 `json:"requestId"`
	LockedUntil    string              `json:"lockedUntil"`
}

// Mask is a secret value the runner redacts from logs.
type Mask struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Variable is a job variable.
type Variable struct {
	Value    string `json:"value"`
	IsSecret bool   `json:"isSecret,omitempty"`
}

// Step is a runner step.
type Step struct {
	Type      string        `json:"type"`
	Reference StepReference `json:"reference"`
	Name      string        `json:"name"`
	ID        string        `json:"id"`
	Condition string        `json:"condition"`
	Inputs    StepInputs    `json:"inputs"`
}

// StepReference identifies what a step executes.
type StepReference struct {
	Type string `json:"type"`
}

// StepInputs is the input mapping of a step.
type StepInputs struct {
	Type int             `json:"type"`
	Map  []StepInputPair `json:"map"`
}

// StepInputPair is one step input.
type StepInputPair struct {
	Key   string `json:"key"`
	Value Token  `json:"value"`
}

// Script returns the script token of a script step.
func (s Step) Script() (Token, bool) {
	for _, in := range s.Inputs.Map {
		if in.Key == "script" {
			return in.Value, true
		}
	}
	return Token{}, false
}

// Resources lists the service endpoints made available to the job.
type Resources struct {
	Endpoints []Endpoint `json:"endpoints"`
}

// Endpoint is a service connection.
type Endpoint struct {
	Data          map[string]string     `json:"data"`
	Name          string                `json:"name"`
	URL           string                `json:"url"`
	Authorization EndpointAuthorization `json:"authorization"`
	IsShared      bool                  `json:"isShared"`
	IsReady       bool                  `json:"isReady"`
}

// EndpointAuthorization holds endpoint credentials.
type EndpointAuthorization struct {
	Parameters map[string]string `json:"parameters"`
	Scheme     string            `json:"scheme"`
}

// systemConnection is the placeholder service connection every runner job
// expects. A local runner never contacts it.
func systemConnection() Endpoint {
	return Endpoint{
		Data: map[string]string{
			"ServerId":       "feafd86c-6014-4cc6-888e-bd11e207f0d7",
			"ServerName":     "does-not-exist",
			"CacheServerUrl": "https://artifactcache.actions.githubusercontent.com/does-not-exist",
		},
		Name: "SystemVssConnection",
		URL:  "https://pipelines.actions.githubusercontent.com/does-not-exist",
		Authorization: EndpointAuthorization{
			Parameters: map[string]string{"AccessToken": "access-token"},
			Scheme:     "OAuth",
		},
		IsReady: true,
	}
}

// BuildMessage builds the job request for job. extra context groups are
// sent after github and env, in the given order. A job containing a step
// that is not an inline script fails with *errors.UnsupportedStepError.
func BuildMessage(fileName, jobID string, job *workflow.Job, extra []ContextGroup, opts Options) (*Message, error) {
	steps := make([]Step, 0, len(job.Steps))
	for i, step := range job.Steps {
		s, err := BuildStep(jobID, i, step, opts)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}

	gh := opts.GitHub
	contexts := ContextData{
		{Name: "github", Pairs: []workflow.KeyValue{
			{Key: "ref", Value: gh.Ref},
			{Key: "repository", Value: gh.Repository},
			{Key: "event", Value: gh.Event},
		}},
		{Name: "env", Pairs: job.Env},
	}
	contexts = append(contexts, extra...)

	return &Message{
		FileTable:      []string{fileName},
		Mask:           []Mask{},
		Steps:          steps,
		Variables:      map[string]Variable{},
		MessageType:    MessageType,
		Plan:           map[string]any{},
		Timeline:       map[string]any{},
		ContextData:    contexts,
		Resources:      Resources{Endpoints: []Endpoint{systemConnection()}},
		JobID:          opts.newID(),
		JobDisplayName: job.DisplayName(),
		JobName:        defaultJobName,
		RequestID:      defaultRequestID,
		LockedUntil:    lockedUntil,
	}, nil
}

// BuildStep translates step index of job jobID into a runner script step.
func BuildStep(jobID string, index int, step *workflow.Step, opts Options) (Step, error) {
	if !step.IsScript() {
		return Step{}, &errors.UnsupportedStepError{JobID: jobID, StepIndex: index, Kind: step.Describe()}
	}

	id := opts.newID()
	name := step.Name
	if name == "" {
		name = step.ID
	}
	if name == "" {
		name = id
	}

	return Step{
		Type:      "action",
		Reference: StepReference{Type: "script"},
		Name:      name,
		ID:        id,
		Condition: stepCondition,
		Inputs: StepInputs{
			Type: inputsMapType,
			Map:  []StepInputPair{{Key: "script", Value: ScriptToken(step.Run)}},
		},
	}, nil
}
