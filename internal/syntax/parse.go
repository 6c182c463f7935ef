// Package syntax parses Rust source files with tree-sitter and lowers the
// parts of the tree the analyzer cares about: doc comments and type
// expressions.
package syntax

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// File is a parsed source file. Close releases the tree.
type File struct {
	Source []byte
	tree   *sitter.Tree
}

// Error describes the first syntax error found in a file.
type Error struct {
	Line   int // 1-based
	Column int // 1-based, in bytes
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Msg)
}

// Parse parses source as a Rust file. A tree containing ERROR or MISSING nodes
// is rejected with an *Error locating the first one.
func Parse(ctx context.Context, source []byte) (*File, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(rust.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}

	root := tree.RootNode()
	if root.HasError() {
		serr := firstError(root, source)
		tree.Close()
		return nil, serr
	}
	return &File{Source: source, tree: tree}, nil
}

func (f *File) Root() *sitter.Node {
	return f.tree.RootNode()
}

func (f *File) Close() {
	if f.tree != nil {
		f.tree.Close()
		f.tree = nil
	}
}

// Text returns the source text covered by n.
func (f *File) Text(n *sitter.Node) string {
	return NodeText(n, f.Source)
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	return string(source[n.StartByte():n.EndByte()])
}

// firstError walks the tree in document order and reports the first ERROR or
// MISSING node. The walk is iterative so deeply nested input cannot exhaust
// the stack.
func firstError(root *sitter.Node, source []byte) *Error {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.IsMissing() {
			return errorAt(n, "missing "+n.Type())
		}
		if n.Type() == "ERROR" {
			return errorAt(n, fmt.Sprintf("unexpected %q", snippet(NodeText(n, source))))
		}
		if !n.HasError() {
			continue
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if c := n.Child(i); c != nil {
				stack = append(stack, c)
			}
		}
	}
	return errorAt(root, "syntax error")
}

func errorAt(n *sitter.Node, msg string) *Error {
	p := n.StartPoint()
	return &Error{Line: int(p.Row) + 1, Column: int(p.Column) + 1, Msg: msg}
}

func snippet(s string) string {
	s = CollapseWhitespace(s)
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// CollapseWhitespace replaces runs of whitespace with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// IsComment reports whether n is a line or block comment.
func IsComment(n *sitter.Node) bool {
	switch n.Type() {
	case "line_comment", "block_comment":
		return true
	}
	return false
}

// IsPublic reports whether n carries an unrestricted `pub` visibility
// modifier. `pub(crate)` and friends are not public.
func IsPublic(n *sitter.Node, source []byte) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "visibility_modifier" {
			return CollapseWhitespace(NodeText(c, source)) == "pub"
		}
	}
	return false
}
