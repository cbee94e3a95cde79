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

package jobrequest

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	wferrors "github.com/tombee/wfdebug/pkg/errors"
	"github.com/tombee/wfdebug/pkg/workflow"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestScriptToken(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		wantType TokenType
		want     string
	}{
		{
			name:     "literal",
			script:   "echo hello",
			wantType: TokenString,
			want:     "echo hello",
		},
		{
			name:     "literal keeps braces and quotes",
			script:   "echo '{x}'",
			wantType: TokenString,
			want:     "echo '{x}'",
		},
		{
			name:     "single expression",
			script:   "echo ${{ steps.x.outputs.y }}",
			wantType: TokenBasicExpression,
			want:     "format('echo {0}', steps.x.outputs.y)",
		},
		{
			name:     "multiple expressions",
			script:   "echo ${{matrix.os}} on ${{ matrix.node }}!",
			wantType: TokenBasicExpression,
			want:     "format('echo {0} on {1}!', matrix.os, matrix.node)",
		},
		{
			name:     "non-greedy match",
			script:   "${{ a }}}}",
			wantType: TokenBasicExpression,
			want:     "format('{0}}}}}', a)",
		},
		{
			name:     "escapes quotes and braces",
			script:   "echo '{json}' ${{ env.X }}",
			wantType: TokenBasicExpression,
			want:     "format('echo ''{{json}}'' {0}', env.X)",
		},
		{
			name:     "multi-line script",
			script:   "make\necho ${{ github.ref }}\n",
			wantType: TokenBasicExpression,
			want:     "format('make\necho {0}\n', github.ref)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := ScriptToken(tt.script)
			assert.Equal(t, tt.wantType, tok.Type)
			assert.Equal(t, 1, tok.File)
			assert.Equal(t, 0, tok.Line)
			assert.Equal(t, 0, tok.Col)
			if tt.wantType == TokenString {
				assert.Equal(t, tt.want, tok.Lit)
				assert.Empty(t, tok.Expr)
			} else {
				assert.Equal(t, tt.want, tok.Expr)
				assert.Empty(t, tok.Lit)
			}
		})
	}
}

func TestToken_JSON(t *testing.T) {
	lit, err := json.Marshal(ScriptToken(""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"file":1,"line":0,"col":0,"type":0,"lit":""}`, string(lit))

	expr, err := json.Marshal(ScriptToken("${{ a }}"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"file":1,"line":0,"col":0,"type":3,"expr":"format('{0}', a)"}`, string(expr))

	var back Token
	require.NoError(t, json.Unmarshal(expr, &back))
	assert.Equal(t, ScriptToken("${{ a }}"), back)
}

func TestBuildStep(t *testing.T) {
	opts := Options{NewID: sequentialIDs()}

	t.Run("named script", func(t *testing.T) {
		s, err := BuildStep("build", 0, &workflow.Step{Name: "Compile", Run: "make", HasRun: true}, opts)
		require.NoError(t, err)
		assert.Equal(t, "action", s.Type)
		assert.Equal(t, "script", s.Reference.Type)
		assert.Equal(t, "Compile", s.Name)
		assert.Equal(t, "success()", s.Condition)
		assert.Equal(t, 2, s.Inputs.Type)
		tok, ok := s.Script()
		require.True(t, ok)
		assert.Equal(t, "make", tok.Lit)
	})

	t.Run("falls back to step id then generated id", func(t *testing.T) {
		s, err := BuildStep("build", 0, &workflow.Step{ID: "compile", Run: "make", HasRun: true}, opts)
		require.NoError(t, err)
		assert.Equal(t, "compile", s.Name)

		s, err = BuildStep("build", 1, &workflow.Step{Run: "make", HasRun: true}, opts)
		require.NoError(t, err)
		assert.Equal(t, s.ID, s.Name)
	})

	t.Run("empty script is still a script", func(t *testing.T) {
		_, err := BuildStep("build", 0, &workflow.Step{HasRun: true}, opts)
		assert.NoError(t, err)
	})

	t.Run("action step is unsupported", func(t *testing.T) {
		_, err := BuildStep("build", 3, &workflow.Step{Uses: "actions/checkout@v4"}, opts)
		require.Error(t, err)

		var unsupported *wferrors.UnsupportedStepError
		require.True(t, errors.As(err, &unsupported))
		assert.Equal(t, "build", unsupported.JobID)
		assert.Equal(t, 3, unsupported.StepIndex)
		assert.True(t, errors.Is(err, wferrors.ErrNotImplemented))
	})
}

func testJob() *workflow.Job {
	return &workflow.Job{
		ID:  "test",
		Env: []workflow.KeyValue{{Key: "B", Value: "2"}, {Key: "A", Value: 1}},
		Steps: []*workflow.Step{
			{Name: "Greet", Run: "echo ${{ matrix.os }}", HasRun: true},
			{Run: "make", HasRun: true},
		},
	}
}

func TestBuildMessage(t *testing.T) {
	opts := Options{GitHub: DefaultGitHubContext(), NewID: sequentialIDs()}
	matrix := ContextGroup{Name: "matrix", Pairs: []workflow.KeyValue{{Key: "os", Value: "linux"}, {Key: "node", Value: 16}}}

	msg, err := BuildMessage("ci.yml", "test", testJob(), []ContextGroup{matrix}, opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"ci.yml"}, msg.FileTable)
	assert.Equal(t, MessageType, msg.MessageType)
	assert.Equal(t, "test", msg.JobDisplayName)
	assert.Equal(t, "__default", msg.JobName)
	assert.Equal(t, 42, msg.RequestID)
	assert.Equal(t, "0001-01-01T00:00:00", msg.LockedUntil)
	assert.Equal(t, "id-3", msg.JobID)
	require.Len(t, msg.Steps, 2)
	assert.Equal(t, "Greet", msg.Steps[0].Name)
	require.Len(t, msg.Resources.Endpoints, 1)
	assert.Equal(t, "SystemVssConnection", msg.Resources.Endpoints[0].Name)

	names := make([]string, len(msg.ContextData))
	for i, g := range msg.ContextData {
		names[i] = g.Name
	}
	assert.Equal(t, []string{"github", "env", "matrix"}, names)
}

func TestBuildMessage_JSONOrder(t *testing.T) {
	opts := Options{GitHub: DefaultGitHubContext(), NewID: sequentialIDs()}
	matrix := ContextGroup{Name: "matrix", Pairs: []workflow.KeyValue{{Key: "os", Value: "linux"}}}

	msg, err := BuildMessage("ci.yml", "test", testJob(), []ContextGroup{matrix}, opts)
	require.NoError(t, err)

	data, err := json.Marshal(msg.ContextData)
	require.NoError(t, err)
	assert.Equal(t,
		`{"github":{"t":2,"d":[{"k":"ref","v":"refs/heads/main"},{"k":"repository","v":"local/workflow"},{"k":"event","v":"workflow_dispatch"}]},`+
			`"env":{"t":2,"d":[{"k":"B","v":"2"},{"k":"A","v":1}]},`+
			`"matrix":{"t":2,"d":[{"k":"os","v":"linux"}]}}`,
		string(data))

	full, err := json.Marshal(msg)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(full, &decoded))
	for _, key := range []string{"fileTable", "mask", "steps", "variables", "messageType", "plan", "timeline", "contextData", "resources", "jobId", "jobDisplayName", "jobName", "requestId", "lockedUntil"} {
		assert.Contains(t, decoded, key)
	}
	assert.Equal(t, []any{}, decoded["mask"])
}

func TestBuildMessage_EmptyEnv(t *testing.T) {
	job := &workflow.Job{ID: "a", Steps: []*workflow.Step{{Run: "true", HasRun: true}}}
	msg, err := BuildMessage("ci.yml", "a", job, nil, Options{})
	require.NoError(t, err)

	data, err := json.Marshal(msg.ContextData)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"env":{"t":2,"d":[]}`)
	assert.NotEmpty(t, msg.JobID)
}

func TestBuildMessage_UnsupportedStep(t *testing.T) {
	job := testJob()
	job.Steps = append(job.Steps, &workflow.Step{Uses: "actions/setup-go@v5"})

	msg, err := BuildMessage("ci.yml", "test", job, nil, Options{})
	assert.Nil(t, msg)

	var unsupported *wferrors.UnsupportedStepError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, 2, unsupported.StepIndex)
	assert.Equal(t, "uses: actions/setup-go@v5", unsupported.Kind)
}
