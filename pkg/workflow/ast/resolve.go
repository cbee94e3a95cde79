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

package ast

import (
	"errors"
	"fmt"
)

// ErrUnexpectedNode is returned when resolution reaches a node kind it
// cannot descend into (anchor or include references).
var ErrUnexpectedNode = errors.New("ast: unexpected node kind")

// Resolve finds the smallest structural node in the tree covering offset.
// It returns None when offset lies outside the root's span.
func (t *Tree) Resolve(offset int) (NodeID, error) {
	return Resolve(t, t.Root, offset)
}

// Resolve finds the smallest structural node under id covering offset.
// When several children contain the offset the first in document order
// wins.
func Resolve(t *Tree, id NodeID, offset int) (NodeID, error) {
	n := t.Node(id)
	if n == nil || !n.Span.Contains(offset) {
		return None, nil
	}

	switch n.Kind {
	case KindMap:
		for _, pair := range n.Mappings {
			if t.Nodes[pair].Span.Contains(offset) {
				return Resolve(t, pair, offset)
			}
		}

	case KindMapping:
		if n.Value != None {
			found, err := Resolve(t, n.Value, offset)
			if err != nil {
				return None, err
			}
			if found != None {
				return found, nil
			}
		}
		if key := t.Node(n.Key); key != nil {
			if key.Span.Contains(offset) || key.Text == Placeholder {
				return n.Parent, nil
			}
		}

	case KindSequence:
		for _, item := range n.Items {
			it := t.Node(item)
			// A literal entry or an empty "- " placeholder: the list
			// itself is the covering structure.
			if it == nil || it.Kind == KindScalar {
				return id, nil
			}
			if it.Span.Contains(offset) {
				return Resolve(t, item, offset)
			}
		}

	case KindScalar:
		if n.Text == Placeholder {
			return n.Parent, nil
		}
		return id, nil

	default:
		return None, fmt.Errorf("%w: %s at offset %d", ErrUnexpectedNode, n.Kind, n.Span.Start)
	}

	return id, nil
}
