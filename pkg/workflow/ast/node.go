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

// Package ast holds the structural representation of a workflow document:
// an arena of byte-span annotated nodes with parent links stored as indices.
//
// The node kinds mirror the YAML structure of a workflow file. A Map is a
// YAML mapping, and each key/value pair inside it is a Mapping node with a
// Key and a Value child. Sequences hold their items directly. Scalars carry
// their decoded text.
//
// # Resolving positions
//
// Tree.Resolve finds the smallest structural node covering a byte offset.
// Breakpoint resolution walks the parents of that node to find the step
// and job containing it.
package ast

import "fmt"

// Kind identifies the variant of a Node.
type Kind int

const (
	KindScalar Kind = iota
	KindMapping
	KindMap
	KindSequence
	KindAnchorRef
	KindIncludeRef
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindMapping:
		return "mapping"
	case KindMap:
		return "map"
	case KindSequence:
		return "sequence"
	case KindAnchorRef:
		return "anchor-ref"
	case KindIncludeRef:
		return "include-ref"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// NodeID addresses a node in a Tree arena.
type NodeID int

// None is the NodeID of an absent node: the parent of the root, the value
// of an empty mapping, or an empty sequence item.
const None NodeID = -1

// Placeholder is the scalar text an editor inserts at an as-yet-untyped
// insertion point. Resolution treats such scalars as their parent.
const Placeholder = "dummy"

// Span is a byte range in the source document.
type Span struct {
	Start int
	End   int
}

// Contains reports whether offset lies within the span. The end is
// inclusive so that the offset just past a node's last byte, which is
// where an end-of-line position lands, still belongs to the node.
func (s Span) Contains(offset int) bool {
	return s.Start <= offset && offset <= s.End
}

// Node is a single arena entry. Which child fields are meaningful depends
// on Kind.
type Node struct {
	Kind   Kind
	Span   Span
	Parent NodeID

	// Line is the zero-based line of Span.Start.
	Line int

	// Text is the scalar value, or the reference name for AnchorRef and
	// IncludeRef nodes.
	Text string

	// Key and Value are the children of a Mapping. Value is None for a
	// key without a value.
	Key   NodeID
	Value NodeID

	// Mappings are the pairs of a Map, in document order.
	Mappings []NodeID

	// Items are the entries of a Sequence, in document order. None marks
	// an empty placeholder item.
	Items []NodeID
}
