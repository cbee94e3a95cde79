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
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	wferrors "github.com/tombee/wfdebug/pkg/errors"
	"github.com/tombee/wfdebug/pkg/workflow/ast"
	"gopkg.in/yaml.v3"
)

// includeTag marks a scalar that references another file.
const includeTag = "!include"

// Document is a parsed workflow file: its text, the structural tree used
// for position lookups, and the logical model used for planning.
type Document struct {
	FileName string
	Source   []byte
	Lines    *Lines
	Tree     *ast.Tree
	Workflow *Workflow
}

// ParseFile reads and parses the workflow at path.
func ParseFile(path string) (*Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &wferrors.ParseError{File: path, Reason: "cannot read file", Cause: err}
	}
	return Parse(filepath.Base(path), src)
}

// Parse parses a workflow document. It fails with a *errors.ParseError
// when no workflow model can be produced.
func Parse(fileName string, src []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(src, &root); err != nil {
		return nil, &wferrors.ParseError{File: fileName, Cause: err}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, &wferrors.ParseError{File: fileName, Reason: "document is empty"}
	}

	lines := NewLines(src)
	c := &converter{src: src, lines: lines, tree: ast.NewTree()}
	c.tree.Root = c.node(root.Content[0], -1)

	wf, err := decodeWorkflow(root.Content[0])
	if err != nil {
		return nil, &wferrors.ParseError{File: fileName, Reason: err.Error()}
	}

	return &Document{
		FileName: fileName,
		Source:   src,
		Lines:    lines,
		Tree:     c.tree,
		Workflow: wf,
	}, nil
}

// converter builds the arena tree from a yaml.v3 node tree. yaml.v3 only
// reports start positions, so end offsets are recovered from the source.
type converter struct {
	src   []byte
	lines *Lines
	tree  *ast.Tree
}

func (c *converter) start(n *yaml.Node) int {
	return c.lines.Offset(n.Line-1, n.Column-1)
}

// node converts n. indent is the column of the construct owning n and
// bounds the content of block scalars.
func (c *converter) node(n *yaml.Node, indent int) ast.NodeID {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return ast.None
		}
		return c.node(n.Content[0], indent)
	case yaml.MappingNode:
		return c.mapNode(n)
	case yaml.SequenceNode:
		return c.sequence(n)
	case yaml.AliasNode:
		start := c.start(n)
		return c.tree.NewRef(ast.KindAnchorRef, n.Value, ast.Span{Start: start, End: start + 1 + len(n.Value)}, n.Line-1)
	case yaml.ScalarNode:
		span := c.scalarSpan(n, indent)
		if n.Tag == includeTag {
			return c.tree.NewRef(ast.KindIncludeRef, n.Value, span, n.Line-1)
		}
		return c.tree.NewScalar(n.Value, span, n.Line-1)
	}
	return ast.None
}

func (c *converter) mapNode(n *yaml.Node) ast.NodeID {
	start := c.start(n)
	id := c.tree.NewMap(ast.Span{Start: start, End: start}, n.Line-1)
	span := ast.Span{Start: start, End: start}

	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valueNode := n.Content[i], n.Content[i+1]
		key := c.node(keyNode, keyNode.Column-1)
		value := ast.None
		if !isEmpty(valueNode) {
			value = c.node(valueNode, keyNode.Column-1)
		}
		pairSpan := c.cover(key, value)
		pair := c.tree.NewMapping(key, value, pairSpan, keyNode.Line-1)
		c.tree.AppendMapping(id, pair)
		span = union(span, pairSpan)
	}

	if n.Style&yaml.FlowStyle != 0 {
		span.End = c.closing(span.End, '}')
	}
	c.tree.SetSpan(id, span)
	return id
}

func (c *converter) sequence(n *yaml.Node) ast.NodeID {
	start := c.start(n)
	id := c.tree.NewSequence(ast.Span{Start: start, End: start}, n.Line-1)
	span := ast.Span{Start: start, End: start}

	for _, itemNode := range n.Content {
		if isEmpty(itemNode) {
			c.tree.AppendItem(id, ast.None)
			continue
		}
		item := c.node(itemNode, n.Column-1)
		c.tree.AppendItem(id, item)
		span = union(span, c.tree.Nodes[item].Span)
	}

	if n.Style&yaml.FlowStyle != 0 {
		span.End = c.closing(span.End, ']')
	}
	c.tree.SetSpan(id, span)
	return id
}

// cover returns the smallest span containing every non-None id.
func (c *converter) cover(ids ...ast.NodeID) ast.Span {
	var span ast.Span
	first := true
	for _, id := range ids {
		n := c.tree.Node(id)
		if n == nil {
			continue
		}
		if first {
			span = n.Span
			first = false
			continue
		}
		span = union(span, n.Span)
	}
	return span
}

func (c *converter) scalarSpan(n *yaml.Node, indent int) ast.Span {
	start := c.start(n)
	switch n.Style {
	case yaml.LiteralStyle, yaml.FoldedStyle:
		return ast.Span{Start: start, End: c.blockEnd(start, indent)}
	case yaml.DoubleQuotedStyle:
		return ast.Span{Start: start, End: c.quotedEnd(start, '"')}
	case yaml.SingleQuotedStyle:
		return ast.Span{Start: start, End: c.quotedEnd(start, '\'')}
	}
	return ast.Span{Start: start, End: c.plainEnd(start, n.Value)}
}

// plainEnd locates the end of a plain scalar. Single-line plain scalars
// appear verbatim in the source; multi-line ones are folded by the parser,
// so their words are matched one by one.
func (c *converter) plainEnd(start int, value string) int {
	if value == "" {
		return start
	}
	lineEnd := c.lines.End(c.lines.LineAt(start))
	if i := bytes.Index(c.src[start:lineEnd], []byte(value)); i >= 0 {
		return start + i + len(value)
	}
	end := start
	for _, word := range strings.Fields(value) {
		if i := bytes.Index(c.src[end:], []byte(word)); i >= 0 {
			end += i + len(word)
		}
	}
	return end
}

func (c *converter) quotedEnd(start int, quote byte) int {
	open := bytes.IndexByte(c.src[start:], quote)
	if open < 0 {
		return len(c.src)
	}
	for i := start + open + 1; i < len(c.src); i++ {
		switch c.src[i] {
		case '\\':
			if quote == '"' {
				i++
			}
		case quote:
			if quote == '\'' && i+1 < len(c.src) && c.src[i+1] == '\'' {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(c.src)
}

// blockEnd returns the end of the last content line of a literal or
// folded scalar whose indicator sits at start. Content lines are the
// following lines indented deeper than indent; blank lines do not end the
// block.
func (c *converter) blockEnd(start, indent int) int {
	line := c.lines.LineAt(start)
	end := c.lines.End(line)
	for l := line + 1; l < c.lines.Count(); l++ {
		if c.lines.Blank(l) {
			continue
		}
		if c.lines.Indent(l) <= indent {
			break
		}
		end = c.lines.End(l)
	}
	return end
}

// closing returns the offset just past the next close byte at or after
// from.
func (c *converter) closing(from int, close byte) int {
	if from >= len(c.src) {
		return len(c.src)
	}
	if i := bytes.IndexByte(c.src[from:], close); i >= 0 {
		return from + i + 1
	}
	return len(c.src)
}

func union(a, b ast.Span) ast.Span {
	return ast.Span{Start: min(a.Start, b.Start), End: max(a.End, b.End)}
}

// isEmpty reports whether n is an implicit null: a key without a value or
// a bare "-" sequence entry.
func isEmpty(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null" && n.Value == ""
}

// StepNode returns the tree node of step index of job jobID.
func (d *Document) StepNode(jobID string, index int) (ast.NodeID, error) {
	t := d.Tree
	jobs := t.Lookup(t.Root, "jobs")
	if jobs == ast.None {
		return ast.None, &wferrors.NotFoundError{Resource: "jobs mapping", ID: d.FileName}
	}
	job := t.Lookup(jobs, jobID)
	if job == ast.None {
		return ast.None, &wferrors.NotFoundError{Resource: "job", ID: jobID}
	}
	steps := t.Node(t.Lookup(job, "steps"))
	if steps == nil || steps.Kind != ast.KindSequence || index < 0 || index >= len(steps.Items) || steps.Items[index] == ast.None {
		return ast.None, &wferrors.NotFoundError{Resource: "step", ID: fmt.Sprintf("%s[%d]", jobID, index)}
	}
	return steps.Items[index], nil
}
