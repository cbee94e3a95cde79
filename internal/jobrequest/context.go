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
	"bytes"
	"encoding/json"

	"github.com/tombee/wfdebug/pkg/workflow"
)

// contextDictType marks a context group as a dictionary.
const contextDictType = 2

// ContextGroup is one named entry of the job's context data, such as
// github, env or matrix.
type ContextGroup struct {
	Name  string
	Pairs []workflow.KeyValue
}

// ContextData holds context groups in the order they are sent. It encodes
// as a JSON object whose members keep that order.
type ContextData []ContextGroup

type contextPair struct {
	K string `json:"k"`
	V any    `json:"v"`
}

type contextDict struct {
	T int           `json:"t"`
	D []contextPair `json:"d"`
}

// Group returns the named group.
func (c ContextData) Group(name string) (ContextGroup, bool) {
	for _, g := range c {
		if g.Name == name {
			return g, true
		}
	}
	return ContextGroup{}, false
}

// MarshalJSON writes the groups as {"<name>":{"t":2,"d":[{"k":..,"v":..}]}}.
func (c ContextData) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, g := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(g.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')

		dict := contextDict{T: contextDictType, D: make([]contextPair, len(g.Pairs))}
		for j, kv := range g.Pairs {
			dict.D[j] = contextPair{K: kv.Key, V: contextValue(kv.Value)}
		}
		body, err := json.Marshal(dict)
		if err != nil {
			return nil, err
		}
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// contextValue keeps strings, numbers and booleans as they are and
// flattens anything else to its display form.
func contextValue(v any) any {
	switch v.(type) {
	case string, bool, int, int64, uint64, float64:
		return v
	default:
		return workflow.FormatValue(v)
	}
}
