// Package markdown inspects and rewrites docstring markdown.
package markdown

import (
	"regexp"
	"strings"

	gm "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	gmparser "github.com/gomarkdown/markdown/parser"
)

func parse(src string) ast.Node {
	return gm.Parse([]byte(src), gmparser.NewWithExtensions(
		gmparser.CommonExtensions|gmparser.Autolink,
	))
}

var spaceRe = regexp.MustCompile(`\s+`)

// Summary returns the plain text of the first paragraph of a docstring, with
// whitespace collapsed. Markup is dropped; code span text is kept.
func Summary(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	doc := parse(src)

	var para ast.Node
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if p, ok := node.(*ast.Paragraph); ok && entering {
			para = p
			return ast.Terminate
		}
		return ast.GoToNext
	})
	if para == nil {
		return ""
	}

	var b strings.Builder
	ast.WalkFunc(para, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch n := node.(type) {
		case *ast.Text:
			b.Write(n.Literal)
		case *ast.Code:
			b.Write(n.Literal)
		case *ast.Softbreak, *ast.Hardbreak:
			b.WriteByte(' ')
		}
		return ast.GoToNext
	})
	return strings.TrimSpace(spaceRe.ReplaceAllString(b.String(), " "))
}

// RewriteLinks rewrites markdown link destinations for which resolve returns
// a replacement. It parses the markdown to AST to find all link destinations,
// then performs targeted string replacements to preserve original formatting.
func RewriteLinks(src string, resolve func(dest string) (string, bool)) string {
	if resolve == nil || strings.TrimSpace(src) == "" {
		return src
	}

	doc := parse(src)

	// Collect unique destinations that need replacement
	seen := make(map[string]bool)
	type replacement struct {
		oldDest string
		newDest string
	}
	var replacements []replacement

	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		if link, ok := node.(*ast.Link); ok {
			dest := string(link.Destination)
			if seen[dest] {
				return ast.GoToNext
			}
			seen[dest] = true
			if newDest, ok := resolve(dest); ok && newDest != dest {
				replacements = append(replacements, replacement{dest, newDest})
			}
		}
		return ast.GoToNext
	})

	if len(replacements) == 0 {
		return src
	}

	result := src

	// Inline links: [text](destination), one pass per replacement
	for _, r := range replacements {
		result = strings.ReplaceAll(result, "]("+r.oldDest+")", "]("+r.newDest+")")
	}

	// Reference-style definitions: [ref]: destination, single pass over lines
	refMap := make(map[string]string, len(replacements))
	for _, r := range replacements {
		refMap["]: "+r.oldDest] = "]: " + r.newDest
	}
	lines := strings.Split(result, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		for oldSuffix, newSuffix := range refMap {
			if strings.HasSuffix(trimmed, oldSuffix) {
				lines[i] = strings.Replace(line, oldSuffix, newSuffix, 1)
				break
			}
		}
	}
	return strings.Join(lines, "\n")
}
