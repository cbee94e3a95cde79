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
	"fmt"
	"reflect"

	"github.com/tombee/wfdebug/pkg/workflow"
)

const (
	includeKey = "include"
	excludeKey = "exclude"
)

// ErrDynamicMatrix is returned for a matrix given as an expression, which
// can only be evaluated by the runner.
var ErrDynamicMatrix = errors.New("matrix is an expression and cannot be expanded locally")

// Assignment is one combination of matrix values, ordered by dimension.
type Assignment []workflow.KeyValue

// Get returns the value assigned to key.
func (a Assignment) Get(key string) (any, bool) {
	for _, kv := range a {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// with returns a copy of a with key set to value. A new key is appended.
func (a Assignment) with(key string, value any) Assignment {
	out := make(Assignment, len(a), len(a)+1)
	copy(out, a)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, workflow.KeyValue{Key: key, Value: value})
}

// matches reports whether every key of entry has the same value in a.
func (a Assignment) matches(entry []workflow.KeyValue) bool {
	for _, kv := range entry {
		v, ok := a.Get(kv.Key)
		if !ok || !reflect.DeepEqual(v, kv.Value) {
			return false
		}
	}
	return true
}

// ExpandMatrix computes the assignments of a matrix strategy.
//
// Dimensions are processed in declared order. The first dimension seeds
// the set; for every later dimension, each of its values (outer) is
// combined with each existing assignment (inner). A scalar dimension acts
// as a one-value list.
//
// exclude entries then remove every assignment matching all their keys.
// include entries extend the assignments whose dimension values they
// match with their remaining keys, or are appended as a new assignment
// when they match none.
func ExpandMatrix(s *workflow.Strategy) ([]Assignment, error) {
	if s.MatrixExpression != "" {
		return nil, fmt.Errorf("%w: %s", ErrDynamicMatrix, s.MatrixExpression)
	}

	var (
		assignments []Assignment
		dimensions  []string
		include     []any
		exclude     []any
	)
	for _, dim := range s.Matrix {
		switch dim.Key {
		case includeKey:
			include = asList(dim.Value)
			continue
		case excludeKey:
			exclude = asList(dim.Value)
			continue
		}

		values := asList(dim.Value)
		if len(dimensions) == 0 {
			for _, v := range values {
				assignments = append(assignments, Assignment{{Key: dim.Key, Value: v}})
			}
			dimensions = append(dimensions, dim.Key)
			continue
		}
		dimensions = append(dimensions, dim.Key)

		next := make([]Assignment, 0, len(values)*len(assignments))
		for _, v := range values {
			for _, existing := range assignments {
				next = append(next, existing.with(dim.Key, v))
			}
		}
		assignments = next
	}

	for i, raw := range exclude {
		entry, ok := raw.([]workflow.KeyValue)
		if !ok {
			return nil, fmt.Errorf("matrix exclude entry %d must be a mapping", i)
		}
		kept := assignments[:0]
		for _, a := range assignments {
			if !a.matches(entry) {
				kept = append(kept, a)
			}
		}
		assignments = kept
	}

	isDimension := make(map[string]bool, len(dimensions))
	for _, d := range dimensions {
		isDimension[d] = true
	}

	base := len(assignments)
	for i, raw := range include {
		entry, ok := raw.([]workflow.KeyValue)
		if !ok {
			return nil, fmt.Errorf("matrix include entry %d must be a mapping", i)
		}

		var dims, extra []workflow.KeyValue
		for _, kv := range entry {
			if isDimension[kv.Key] {
				dims = append(dims, kv)
			} else {
				extra = append(extra, kv)
			}
		}

		matched := false
		for j := 0; j < base; j++ {
			if !assignments[j].matches(dims) {
				continue
			}
			matched = true
			for _, kv := range extra {
				assignments[j] = assignments[j].with(kv.Key, kv.Value)
			}
		}
		if !matched {
			assignments = append(assignments, Assignment(entry))
		}
	}

	return assignments, nil
}

func asList(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}
