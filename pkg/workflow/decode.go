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

package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// decodeWorkflow builds the logical model from the document root. Mapping
// order is significant for jobs, matrix dimensions and env, so the model is
// decoded by hand rather than through struct tags.
func decodeWorkflow(root *yaml.Node) (*Workflow, error) {
	root = resolveAlias(root)
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("top level must be a mapping, found %s", kindName(root))
	}

	wf := &Workflow{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i].Value, resolveAlias(root.Content[i+1])
		switch key {
		case "name":
			wf.Name = value.Value
		case "env":
			env, err := decodeMapping(value)
			if err != nil {
				return nil, fmt.Errorf("env: %w", err)
			}
			wf.Env = env
		case "jobs":
			jobs, err := decodeJobs(value)
			if err != nil {
				return nil, err
			}
			wf.Jobs = jobs
		}
	}
	return wf, nil
}

func decodeJobs(n *yaml.Node) ([]*Job, error) {
	if isEmpty(n) {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("jobs must be a mapping, found %s (line %d)", kindName(n), n.Line)
	}
	jobs := make([]*Job, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		job, err := decodeJob(n.Content[i].Value, resolveAlias(n.Content[i+1]))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func decodeJob(id string, n *yaml.Node) (*Job, error) {
	job := &Job{ID: id}
	if isEmpty(n) {
		return job, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("job %q must be a mapping (line %d)", id, n.Line)
	}

	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i].Value, resolveAlias(n.Content[i+1])
		var err error
		switch key {
		case "name":
			job.Name = value.Value
		case "runs-on":
			job.RunsOn, err = decodeValue(value)
		case "needs":
			job.Needs, err = decodeStrings(value)
		case "env":
			job.Env, err = decodeMapping(value)
		case "strategy":
			job.Strategy, err = decodeStrategy(value)
		case "steps":
			job.Steps, err = decodeSteps(value)
		}
		if err != nil {
			return nil, fmt.Errorf("job %q: %s: %w", id, key, err)
		}
	}
	return job, nil
}

func decodeStrategy(n *yaml.Node) (*Strategy, error) {
	if isEmpty(n) {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("must be a mapping (line %d)", n.Line)
	}
	s := &Strategy{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i].Value, resolveAlias(n.Content[i+1])
		switch key {
		case "matrix":
			if value.Kind == yaml.ScalarNode {
				s.MatrixExpression = value.Value
				continue
			}
			matrix, err := decodeMapping(value)
			if err != nil {
				return nil, fmt.Errorf("matrix: %w", err)
			}
			s.Matrix = matrix
		case "fail-fast":
			var b bool
			if err := value.Decode(&b); err != nil {
				return nil, fmt.Errorf("fail-fast: %w", err)
			}
			s.FailFast = &b
		case "max-parallel":
			if err := value.Decode(&s.MaxParallel); err != nil {
				return nil, fmt.Errorf("max-parallel: %w", err)
			}
		}
	}
	return s, nil
}

func decodeSteps(n *yaml.Node) ([]*Step, error) {
	if isEmpty(n) {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("must be a sequence (line %d)", n.Line)
	}
	steps := make([]*Step, 0, len(n.Content))
	for i, item := range n.Content {
		item = resolveAlias(item)
		if isEmpty(item) {
			steps = append(steps, &Step{})
			continue
		}
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("step %d must be a mapping (line %d)", i, item.Line)
		}
		step, err := decodeStep(item)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func decodeStep(n *yaml.Node) (*Step, error) {
	step := &Step{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i].Value, resolveAlias(n.Content[i+1])
		var err error
		switch key {
		case "id":
			step.ID = value.Value
		case "name":
			step.Name = value.Value
		case "if":
			step.If = value.Value
		case "run":
			step.Run = value.Value
			step.HasRun = true
		case "uses":
			step.Uses = value.Value
		case "shell":
			step.Shell = value.Value
		case "working-directory":
			step.WorkingDirectory = value.Value
		case "with":
			step.With, err = decodeMapping(value)
		case "env":
			step.Env, err = decodeMapping(value)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}
	return step, nil
}

// decodeMapping decodes a mapping into ordered entries. An empty value
// decodes to nil.
func decodeMapping(n *yaml.Node) ([]KeyValue, error) {
	if isEmpty(n) {
		return nil, nil
	}
	v, err := decodeValue(n)
	if err != nil {
		return nil, err
	}
	kvs, ok := v.([]KeyValue)
	if !ok {
		return nil, fmt.Errorf("must be a mapping, found %s (line %d)", kindName(n), n.Line)
	}
	return kvs, nil
}

func decodeStrings(n *yaml.Node) ([]string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if isEmpty(n) {
			return nil, nil
		}
		return []string{n.Value}, nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			item = resolveAlias(item)
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("expected a string (line %d)", item.Line)
			}
			out = append(out, item.Value)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a string or a list (line %d)", n.Line)
}

// decodeValue decodes n into a scalar, []any or []KeyValue.
func decodeValue(n *yaml.Node) (any, error) {
	n = resolveAlias(n)
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == includeTag {
			return n.Value, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case yaml.SequenceNode:
		items := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	case yaml.MappingNode:
		kvs := make([]KeyValue, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := decodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			kvs = append(kvs, KeyValue{Key: n.Content[i].Value, Value: v})
		}
		return kvs, nil
	}
	return nil, fmt.Errorf("unsupported node %s (line %d)", kindName(n), n.Line)
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func kindName(n *yaml.Node) string {
	switch n.Kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "document"
}
