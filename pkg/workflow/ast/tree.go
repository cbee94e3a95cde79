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

// Tree is an arena of nodes. Nodes are only ever appended, so a NodeID
// stays valid for the life of the tree.
type Tree struct {
	Nodes []Node
	Root  NodeID
}

// NewTree returns an empty tree with no root.
func NewTree() *Tree {
	return &Tree{Root: None}
}

// Node returns the node for id, or nil for None or an out-of-range id.
func (t *Tree) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.Nodes) {
		return nil
	}
	return &t.Nodes[id]
}

// Parent returns the parent of id, or None.
func (t *Tree) Parent(id NodeID) NodeID {
	if n := t.Node(id); n != nil {
		return n.Parent
	}
	return None
}

// Kind reports the kind of id. ok is false for None.
func (t *Tree) Kind(id NodeID) (kind Kind, ok bool) {
	n := t.Node(id)
	if n == nil {
		return 0, false
	}
	return n.Kind, true
}

// KeyText returns the scalar key of a Mapping node.
func (t *Tree) KeyText(id NodeID) (string, bool) {
	n := t.Node(id)
	if n == nil || n.Kind != KindMapping {
		return "", false
	}
	key := t.Node(n.Key)
	if key == nil || key.Kind != KindScalar {
		return "", false
	}
	return key.Text, true
}

// Lookup returns the value of the first pair in Map m whose key is name.
func (t *Tree) Lookup(m NodeID, name string) NodeID {
	n := t.Node(m)
	if n == nil || n.Kind != KindMap {
		return None
	}
	for _, pair := range n.Mappings {
		if key, ok := t.KeyText(pair); ok && key == name {
			return t.Nodes[pair].Value
		}
	}
	return None
}

func (t *Tree) add(n Node) NodeID {
	t.Nodes = append(t.Nodes, n)
	return NodeID(len(t.Nodes) - 1)
}

func (t *Tree) adopt(parent, child NodeID) {
	if c := t.Node(child); c != nil {
		c.Parent = parent
	}
}

// NewScalar adds a detached scalar node.
func (t *Tree) NewScalar(text string, span Span, line int) NodeID {
	return t.add(Node{Kind: KindScalar, Span: span, Line: line, Text: text, Parent: None, Key: None, Value: None})
}

// NewRef adds a detached AnchorRef or IncludeRef node.
func (t *Tree) NewRef(kind Kind, name string, span Span, line int) NodeID {
	return t.add(Node{Kind: kind, Span: span, Line: line, Text: name, Parent: None, Key: None, Value: None})
}

// NewMap adds a detached, empty Map node.
func (t *Tree) NewMap(span Span, line int) NodeID {
	return t.add(Node{Kind: KindMap, Span: span, Line: line, Parent: None, Key: None, Value: None})
}

// NewSequence adds a detached, empty Sequence node.
func (t *Tree) NewSequence(span Span, line int) NodeID {
	return t.add(Node{Kind: KindSequence, Span: span, Line: line, Parent: None, Key: None, Value: None})
}

// NewMapping adds a key/value pair and adopts both children. value may be
// None.
func (t *Tree) NewMapping(key, value NodeID, span Span, line int) NodeID {
	id := t.add(Node{Kind: KindMapping, Span: span, Line: line, Parent: None, Key: key, Value: value})
	t.adopt(id, key)
	t.adopt(id, value)
	return id
}

// AppendMapping attaches pair to Map m.
func (t *Tree) AppendMapping(m, pair NodeID) {
	t.Nodes[m].Mappings = append(t.Nodes[m].Mappings, pair)
	t.adopt(m, pair)
}

// AppendItem attaches item (possibly None) to Sequence s.
func (t *Tree) AppendItem(s, item NodeID) {
	t.Nodes[s].Items = append(t.Nodes[s].Items, item)
	t.adopt(s, item)
}

// SetSpan replaces the span of id.
func (t *Tree) SetSpan(id NodeID, span Span) {
	t.Nodes[id].Span = span
}

// Index returns the position of child in Sequence s, or -1.
func (t *Tree) Index(s, child NodeID) int {
	n := t.Node(s)
	if n == nil || n.Kind != KindSequence {
		return -1
	}
	for i, item := range n.Items {
		if item == child {
			return i
		}
	}
	return -1
}
