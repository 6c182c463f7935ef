package syntax

import (
	"strconv"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

type docStyle int

const (
	notDoc docStyle = iota
	outerDoc
	innerDoc
)

// Docstring returns the outer documentation attached to item: the `///` and
// `/** */` comments and `#[doc = "..."]` attributes directly preceding it, in
// source order, each with one leading space removed, joined by newlines.
// Ordinary comments between them are skipped. No documentation yields "".
func Docstring(item *sitter.Node, source []byte) string {
	var docs []string
	for n := item.PrevSibling(); n != nil; n = n.PrevSibling() {
		switch n.Type() {
		case "line_comment", "block_comment", "attribute_item":
		default:
			return joinDocs(reverse(docs))
		}
		if style, text := docText(n, source); style == outerDoc {
			docs = append(docs, text)
		}
	}
	return joinDocs(reverse(docs))
}

// InnerDocstring returns the crate or module documentation of a file: its
// `//!` and `/*! */` comments and `#![doc = "..."]` attributes.
func InnerDocstring(root *sitter.Node, source []byte) string {
	var docs []string
	for i := 0; i < int(root.ChildCount()); i++ {
		if style, text := docText(root.Child(i), source); style == innerDoc {
			docs = append(docs, text)
		}
	}
	return joinDocs(docs)
}

// CollectDocs returns the outer documentation found among nodes, which must be
// in source order. It serves positional fields, whose doc comments are not
// siblings of a single item node.
func CollectDocs(nodes []*sitter.Node, source []byte) string {
	var docs []string
	for _, n := range nodes {
		if style, text := docText(n, source); style == outerDoc {
			docs = append(docs, text)
		}
	}
	return joinDocs(docs)
}

func joinDocs(docs []string) string {
	for i, d := range docs {
		docs[i] = strings.TrimPrefix(d, " ")
	}
	return strings.Join(docs, "\n")
}

func reverse(s []string) []string {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
	return s
}

// docText classifies a comment or attribute node and returns its raw doc text.
func docText(n *sitter.Node, source []byte) (docStyle, string) {
	text := NodeText(n, source)
	switch n.Type() {
	case "line_comment":
		text = strings.TrimRight(text, "\r\n")
		switch {
		case strings.HasPrefix(text, "////"):
			return notDoc, ""
		case strings.HasPrefix(text, "///"):
			return outerDoc, text[3:]
		case strings.HasPrefix(text, "//!"):
			return innerDoc, text[3:]
		}
	case "block_comment":
		if len(text) < 5 || !strings.HasSuffix(text, "*/") {
			return notDoc, ""
		}
		switch {
		case strings.HasPrefix(text, "/***"):
			return notDoc, ""
		case strings.HasPrefix(text, "/**"):
			return outerDoc, text[3 : len(text)-2]
		case strings.HasPrefix(text, "/*!"):
			return innerDoc, text[3 : len(text)-2]
		}
	case "attribute_item":
		if s, ok := docAttribute(n, source); ok {
			return outerDoc, s
		}
	case "inner_attribute_item":
		if s, ok := docAttribute(n, source); ok {
			return innerDoc, s
		}
	}
	return notDoc, ""
}

// docAttribute extracts the string value of a `doc = "..."` attribute.
func docAttribute(item *sitter.Node, source []byte) (string, bool) {
	var attr *sitter.Node
	for i := 0; i < int(item.NamedChildCount()); i++ {
		if c := item.NamedChild(i); c.Type() == "attribute" {
			attr = c
			break
		}
	}
	if attr == nil || attr.NamedChildCount() == 0 {
		return "", false
	}
	if NodeText(attr.NamedChild(0), source) != "doc" {
		return "", false
	}
	value := attr.ChildByFieldName("value")
	if value == nil {
		return "", false
	}
	switch value.Type() {
	case "string_literal":
		return unescapeString(NodeText(value, source))
	case "raw_string_literal":
		return rawString(NodeText(value, source))
	}
	return "", false
}

// unescapeString decodes a quoted Rust string literal.
func unescapeString(lit string) (string, bool) {
	if len(lit) < 2 || lit[0] != '"' || lit[len(lit)-1] != '"' {
		return "", false
	}
	s := lit[1 : len(lit)-1]
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '0':
			b.WriteByte(0)
		case '\\', '"', '\'':
			b.WriteByte(s[i])
		case 'x':
			if i+2 < len(s) {
				if v, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
					b.WriteByte(byte(v))
					i += 2
					continue
				}
			}
			b.WriteString(`\x`)
		case 'u':
			end := strings.IndexByte(s[i:], '}')
			if strings.HasPrefix(s[i:], "u{") && end > 2 {
				hex := strings.ReplaceAll(s[i+2:i+end], "_", "")
				if v, err := strconv.ParseUint(hex, 16, 32); err == nil && utf8.ValidRune(rune(v)) {
					b.WriteRune(rune(v))
					i += end
					continue
				}
			}
			b.WriteString(`\u`)
		case '\n', '\r':
			// line continuation: skip the newline and leading whitespace
			for i+1 < len(s) && strings.ContainsRune(" \t\r\n", rune(s[i+1])) {
				i++
			}
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String(), true
}

func rawString(lit string) (string, bool) {
	if !strings.HasPrefix(lit, "r") {
		return "", false
	}
	s := lit[1:]
	hashes := len(s) - len(strings.TrimLeft(s, "#"))
	s = s[hashes:]
	if len(s) < 2 || s[0] != '"' {
		return "", false
	}
	s = strings.TrimSuffix(s[1:], strings.Repeat("#", hashes))
	if !strings.HasSuffix(s, `"`) {
		return "", false
	}
	return s[:len(s)-1], true
}
