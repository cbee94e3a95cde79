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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/wfdebug/internal/jobrequest"
	wferrors "github.com/tombee/wfdebug/pkg/errors"
	"github.com/tombee/wfdebug/pkg/workflow"
)

func parse(t *testing.T, src string) *workflow.Workflow {
	t.Helper()
	doc, err := workflow.Parse("ci.yml", []byte(src))
	require.NoError(t, err)
	return doc.Workflow
}

func names(execs []JobExecution) []string {
	out := make([]string, len(execs))
	for i, e := range execs {
		out[i] = e.Name
	}
	return out
}

func TestBuildPlan(t *testing.T) {
	wf := parse(t, `
jobs:
  zeta:
    steps: [{run: a}]
  alpha:
    needs: zeta
    steps: [{run: b}]
  mid:
    steps: [{run: c}]
`)
	jobs := BuildPlan(wf)
	require.Len(t, jobs, 3)
	assert.Equal(t, "zeta", jobs[0].ID)
	assert.Equal(t, "alpha", jobs[1].ID)
	assert.Equal(t, "mid", jobs[2].ID)

	desc, ok := Find(jobs, "alpha")
	require.True(t, ok)
	assert.Same(t, wf.Jobs[1], desc.Job)

	_, ok = Find(jobs, "missing")
	assert.False(t, ok)
}

func TestExpand_NoMatrix(t *testing.T) {
	wf := parse(t, `
jobs:
  build:
    name: Build
    steps:
      - run: make
`)
	execs, err := Expand("ci.yml", BuildPlan(wf)[0], Options{})
	require.NoError(t, err)
	require.Len(t, execs, 1)

	e := execs[0]
	assert.Equal(t, "build", e.JobID)
	assert.Empty(t, e.Matrix)
	assert.Equal(t, "Build", e.Name)
	assert.Equal(t, "Build", e.Message.JobDisplayName)
	_, hasMatrix := e.Message.ContextData.Group("matrix")
	assert.False(t, hasMatrix)
}

func TestExpand_Matrix(t *testing.T) {
	wf := parse(t, `
jobs:
  test:
    strategy:
      matrix:
        os: [a, b]
        node: [14, 16]
    steps:
      - run: echo ${{ matrix.os }}
`)
	execs, err := Expand("ci.yml", BuildPlan(wf)[0], Options{})
	require.NoError(t, err)
	require.Len(t, execs, 4)

	want := []Assignment{
		{{Key: "os", Value: "a"}, {Key: "node", Value: 14}},
		{{Key: "os", Value: "b"}, {Key: "node", Value: 14}},
		{{Key: "os", Value: "a"}, {Key: "node", Value: 16}},
		{{Key: "os", Value: "b"}, {Key: "node", Value: 16}},
	}
	for i, e := range execs {
		assert.Equal(t, want[i], e.Matrix, "execution %d", i)
		assert.Equal(t, "test", e.JobID)
	}
	assert.Equal(t, []string{"test (a,14)", "test (b,14)", "test (a,16)", "test (b,16)"}, names(execs))

	matrix, ok := execs[1].Message.ContextData.Group("matrix")
	require.True(t, ok)
	assert.Equal(t, []workflow.KeyValue(want[1]), matrix.Pairs)
	assert.Equal(t, "test (b,14)", execs[1].Message.JobDisplayName)

	// The source job keeps its own name.
	assert.Empty(t, wf.Jobs[0].Name)
}

func TestExpand_MatrixUsesJobName(t *testing.T) {
	wf := parse(t, `
jobs:
  test:
    name: Unit
    strategy:
      matrix:
        go: 1.25
    steps:
      - run: go test
`)
	execs, err := Expand("ci.yml", BuildPlan(wf)[0], Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Unit (1.25)"}, names(execs))
}

func TestExpandMatrix_IncludeExclude(t *testing.T) {
	tests := []struct {
		name   string
		matrix []workflow.KeyValue
		want   []Assignment
	}{
		{
			name: "exclude removes matching assignments",
			matrix: []workflow.KeyValue{
				{Key: "os", Value: []any{"linux", "windows"}},
				{Key: "go", Value: []any{1, 2}},
				{Key: "exclude", Value: []any{[]workflow.KeyValue{{Key: "os", Value: "windows"}, {Key: "go", Value: 1}}}},
			},
			want: []Assignment{
				{{Key: "os", Value: "linux"}, {Key: "go", Value: 1}},
				{{Key: "os", Value: "linux"}, {Key: "go", Value: 2}},
				{{Key: "os", Value: "windows"}, {Key: "go", Value: 2}},
			},
		},
		{
			name: "include extends matches and appends the rest",
			matrix: []workflow.KeyValue{
				{Key: "os", Value: []any{"linux", "windows"}},
				{Key: "include", Value: []any{
					[]workflow.KeyValue{{Key: "os", Value: "linux"}, {Key: "experimental", Value: true}},
					[]workflow.KeyValue{{Key: "os", Value: "macos"}, {Key: "arch", Value: "arm64"}},
				}},
			},
			want: []Assignment{
				{{Key: "os", Value: "linux"}, {Key: "experimental", Value: true}},
				{{Key: "os", Value: "windows"}},
				{{Key: "os", Value: "macos"}, {Key: "arch", Value: "arm64"}},
			},
		},
		{
			name: "include only",
			matrix: []workflow.KeyValue{
				{Key: "include", Value: []any{
					[]workflow.KeyValue{{Key: "target", Value: "a"}},
					[]workflow.KeyValue{{Key: "target", Value: "b"}},
				}},
			},
			want: []Assignment{
				{{Key: "target", Value: "a"}},
				{{Key: "target", Value: "b"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandMatrix(&workflow.Strategy{Matrix: tt.matrix})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandMatrix_Errors(t *testing.T) {
	_, err := ExpandMatrix(&workflow.Strategy{MatrixExpression: "${{ fromJSON(x) }}"})
	assert.True(t, errors.Is(err, ErrDynamicMatrix))

	_, err = ExpandMatrix(&workflow.Strategy{Matrix: []workflow.KeyValue{
		{Key: "os", Value: []any{"a"}},
		{Key: "include", Value: []any{"not-a-mapping"}},
	}})
	assert.Error(t, err)
}

func TestExpandAll_UnsupportedStep(t *testing.T) {
	wf := parse(t, `
jobs:
  build:
    steps:
      - run: make
  lint:
    steps:
      - uses: golangci/golangci-lint-action@v6
`)
	_, err := ExpandAll("ci.yml", BuildPlan(wf), Options{Message: jobrequest.Options{}})
	var unsupported *wferrors.UnsupportedStepError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "lint", unsupported.JobID)
}

func TestAssignment_Label(t *testing.T) {
	a := Assignment{{Key: "os", Value: "linux"}, {Key: "node", Value: 16}, {Key: "exp", Value: true}}
	assert.Equal(t, "linux,16,true", a.Label())
	assert.Equal(t, "", Assignment(nil).Label())
}
