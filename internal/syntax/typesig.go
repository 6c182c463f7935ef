package syntax

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jcdickinson/ferrisdoc/internal/model"
)

// TypeSignature lowers a type expression node into segments. It is total:
// any node kind it does not recognise becomes a single Literal holding the
// node's source text. Adjacent literals are merged.
func TypeSignature(n *sitter.Node, source []byte) model.TypeSignature {
	sig := model.MergeLiterals(lowerType(n, source))
	if len(sig) == 0 {
		return model.TypeSignature{model.LiteralSegment(CollapseWhitespace(NodeText(n, source)))}
	}
	return sig
}

func lit(s string) model.TypeSegment { return model.LiteralSegment(s) }

func lowerType(n *sitter.Node, source []byte) model.TypeSignature {
	if n == nil {
		return nil
	}
	text := NodeText(n, source)

	// the inferred type lexes as an identifier but names nothing
	if strings.TrimSpace(text) == "_" {
		return model.TypeSignature{lit("_")}
	}

	switch n.Type() {
	case "type_identifier", "primitive_type", "scoped_type_identifier", "generic_type":
		return model.TypeSignature{model.ReferenceSegment(NormalizePath(text))}

	case "array_type":
		elem := n.ChildByFieldName("element")
		if elem == nil {
			break
		}
		sig := model.TypeSignature{lit("[")}
		sig = append(sig, lowerType(elem, source)...)
		if length := n.ChildByFieldName("length"); length != nil {
			return append(sig, lit("; "+CollapseWhitespace(NodeText(length, source))+"]"))
		}
		return append(sig, lit("]"))

	case "tuple_type":
		sig := model.TypeSignature{lit("(")}
		first := true
		for _, elem := range typeChildren(n) {
			if !first {
				sig = append(sig, lit(", "))
			}
			first = false
			sig = append(sig, lowerType(elem, source)...)
		}
		return append(sig, lit(")"))

	case "parenthesized_type":
		inner := typeChildren(n)
		if len(inner) != 1 {
			break
		}
		sig := model.TypeSignature{lit("(")}
		sig = append(sig, lowerType(inner[0], source)...)
		return append(sig, lit(")"))

	case "unit_type":
		return model.TypeSignature{lit("()")}

	case "reference_type":
		inner := n.ChildByFieldName("type")
		if inner == nil {
			break
		}
		sig := model.TypeSignature{lit("&")}
		mutable := false
		for i := 0; i < int(n.NamedChildCount()); i++ {
			switch c := n.NamedChild(i); c.Type() {
			case "lifetime":
				sig = append(sig, lit(strings.TrimPrefix(NodeText(c, source), "'")))
			case "mutable_specifier":
				mutable = true
			}
		}
		if mutable {
			sig = append(sig, lit(" mut "))
		} else {
			sig = append(sig, lit(" "))
		}
		return append(sig, lowerType(inner, source)...)

	case "pointer_type":
		inner := n.ChildByFieldName("type")
		if inner == nil {
			break
		}
		prefix := "*"
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c.Type() == "mutable_specifier" {
				prefix = "*mut "
			} else if NodeText(c, source) == "const" {
				prefix = "*const "
			}
		}
		return append(model.TypeSignature{lit(prefix)}, lowerType(inner, source)...)

	case "never_type":
		return model.TypeSignature{lit("!")}

	case "abstract_type", "dynamic_type", "bounded_type":
		return model.TypeSignature{lit(traitBounds(text))}
	}

	return model.TypeSignature{lit(CollapseWhitespace(text))}
}

// typeChildren returns the named children of n that are types, skipping
// comments and attributes.
func typeChildren(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if IsComment(c) || c.Type() == "attribute_item" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// traitBounds renders `impl A + B`, `dyn A + 'a` and bare bound lists with
// each bound normalized and joined by " + ". Bounds are not expanded.
func traitBounds(text string) string {
	text = CollapseWhitespace(text)
	var keyword string
	for _, kw := range []string{"impl ", "dyn "} {
		if strings.HasPrefix(text, kw) {
			keyword, text = kw, text[len(kw):]
			break
		}
	}
	bounds := splitTopLevel(text, '+')
	for i, b := range bounds {
		bounds[i] = NormalizePath(b)
	}
	return keyword + strings.Join(bounds, " + ")
}

// splitTopLevel splits s at sep where it is not nested in brackets.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(', '[':
			depth++
		case '>':
			// `->` in Fn(A) -> B is not a closing bracket
			if i > 0 && s[i-1] == '-' {
				continue
			}
			depth--
		case ')', ']':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

var (
	pathSepRe    = regexp.MustCompile(`\s*::\s*`)
	openAngleRe  = regexp.MustCompile(`\s*<\s*`)
	closeAngleRe = regexp.MustCompile(`\s+>`)
	commaRe      = regexp.MustCompile(`\s+,`)
)

// NormalizePath collapses whitespace in path-like type text and removes the
// incidental spacing around `::`, `<` and `>`.
func NormalizePath(s string) string {
	s = CollapseWhitespace(s)
	s = pathSepRe.ReplaceAllString(s, "::")
	s = openAngleRe.ReplaceAllString(s, "<")
	s = closeAngleRe.ReplaceAllString(s, ">")
	return commaRe.ReplaceAllString(s, ",")
}
