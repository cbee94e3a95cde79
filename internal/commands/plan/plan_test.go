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

package plan

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/wfdebug/internal/commands/shared"
	"github.com/tombee/wfdebug/pkg/workflow"
)

const matrixWorkflow = `jobs:
  lint:
    name: Lint
    steps:
      - run: make lint
  test:
    strategy:
      matrix:
        os: [a, b]
        node: [14, 16]
    steps:
      - run: make test
      - run: make cover
  release:
    steps:
      - uses: actions/checkout@v4
`

func parse(t *testing.T) *workflow.Document {
	t.Helper()
	doc, err := workflow.Parse("ci.yml", []byte(matrixWorkflow))
	require.NoError(t, err)
	return doc
}

func TestBuild(t *testing.T) {
	resp, err := Build(parse(t), "")
	require.NoError(t, err)

	require.Len(t, resp.Jobs, 3)
	assert.False(t, resp.Success, "release has an unsupported step")

	lint := resp.Jobs[0]
	assert.Equal(t, "lint", lint.ID)
	assert.Equal(t, "Lint", lint.Name)
	require.Len(t, lint.Executions, 1)
	assert.Equal(t, "Lint", lint.Executions[0].Name)
	assert.Empty(t, lint.Executions[0].Matrix)

	test := resp.Jobs[1]
	require.Len(t, test.Executions, 4)
	names := make([]string, len(test.Executions))
	for i, e := range test.Executions {
		names[i] = e.Name
		assert.Equal(t, 2, e.Steps)
	}
	assert.Equal(t, []string{"test (a,14)", "test (b,14)", "test (a,16)", "test (b,16)"}, names)
	assert.Equal(t, []MatrixValue{{Key: "os", Value: "b"}, {Key: "node", Value: 14}}, test.Executions[1].Matrix)

	release := resp.Jobs[2]
	assert.Contains(t, release.Error, "release")
	assert.Empty(t, release.Executions)
}

func TestBuild_SingleJob(t *testing.T) {
	resp, err := Build(parse(t), "lint")
	require.NoError(t, err)
	require.Len(t, resp.Jobs, 1)
	assert.True(t, resp.Success)

	_, err = Build(parse(t), "deploy")
	assert.Equal(t, shared.ExitInvalidWorkflow, shared.ExitCode(err))
}

func TestPrintPlan(t *testing.T) {
	resp, err := Build(parse(t), "")
	require.NoError(t, err)

	var buf bytes.Buffer
	printPlan(&buf, resp)
	out := buf.String()

	assert.Contains(t, out, "lint (Lint)\n")
	assert.Contains(t, out, "  [2] test (a,16), 2 step(s)\n")
	assert.Contains(t, out, "release\n  error: ")
}

func TestCommand_JSON(t *testing.T) {
	shared.SetJSONForTest(true)
	defer shared.SetJSONForTest(false)

	path := t.TempDir() + "/ci.yml"
	require.NoError(t, os.WriteFile(path, []byte("jobs:\n  build:\n    steps:\n      - run: make\n"), 0o600))

	cmd := NewCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{path})
	require.NoError(t, cmd.Execute())

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "plan", resp.Command)
	assert.True(t, resp.Success)
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "build", resp.Jobs[0].ID)
}

func TestCommand_FailedJobExitCode(t *testing.T) {
	path := t.TempDir() + "/ci.yml"
	require.NoError(t, os.WriteFile(path, []byte(matrixWorkflow), 0o600))

	cmd := NewCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{path})
	err := cmd.Execute()

	assert.Equal(t, shared.ExitInvalidWorkflow, shared.ExitCode(err))
	assert.Empty(t, err.Error())
	assert.Contains(t, buf.String(), "release\n  error: ")
}
