package mcp

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	md "github.com/jcdickinson/ferrisdoc/internal/markdown"
	"github.com/jcdickinson/ferrisdoc/internal/model"
)

const uriScheme = "rsmodel://"

// URI returns the resource URI of the record at p.
func URI(cat model.Category, p model.Path) string {
	return uriScheme + string(cat) + "/" + p.String()
}

// ParseURI splits a resource URI into its category and path.
func ParseURI(uri string) (model.Category, model.Path, error) {
	rest, ok := strings.CutPrefix(uri, uriScheme)
	if !ok {
		return "", nil, fmt.Errorf("invalid resource URI: %s", uri)
	}
	catName, path, ok := strings.Cut(rest, "/")
	if !ok || path == "" {
		return "", nil, fmt.Errorf("invalid resource URI: %s", uri)
	}
	cat, err := model.ParseCategory(catName)
	if err != nil {
		return "", nil, err
	}
	return cat, model.ParsePath(path), nil
}

// Lookup reports which category holds a record at p, if any.
type Lookup func(p model.Path) (model.Category, bool)

var intraDocRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(::[A-Za-z_][A-Za-z0-9_]*)*$`)

// linkTarget interprets a link destination as an item path. Single-segment
// paths are taken relative to scope.
func linkTarget(dest string, crate string, scope model.Path) (model.Path, bool) {
	dest = strings.Trim(dest, "`")
	if !intraDocRe.MatchString(dest) {
		return nil, false
	}
	p := model.ParsePath(dest)
	switch {
	case p[0] == "crate":
		p[0] = crate
	case p[0] == "self":
		if len(p) == 1 {
			return nil, false
		}
		p = append(append(model.Path{}, scope...), p[1:]...)
	case len(p) == 1:
		p = scope.Join(p[0])
	}
	return p, true
}

type renderer struct {
	crate  string
	scope  model.Path
	lookup Lookup
}

func (r *renderer) doc(b *strings.Builder, docstring string) {
	if docstring == "" {
		return
	}
	out := md.RewriteLinks(docstring, func(dest string) (string, bool) {
		if r.lookup == nil {
			return "", false
		}
		p, ok := linkTarget(dest, r.crate, r.scope)
		if !ok {
			return "", false
		}
		cat, ok := r.lookup(p)
		if !ok {
			return "", false
		}
		return URI(cat, p), true
	})
	b.WriteString("\n")
	b.WriteString(out)
	b.WriteString("\n")
}

func (r *renderer) fields(b *strings.Builder, heading string, fields []model.Field) {
	if len(fields) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s\n\n", heading)
	for _, f := range fields {
		fmt.Fprintf(b, "- `%s`: `%s`", f.Path.Name(), f.Type.String())
		if s := md.Summary(f.Docstring); s != "" {
			b.WriteString(" ")
			b.WriteString(s)
		}
		b.WriteString("\n")
	}
}

// Render formats a stored record as markdown. Intra-doc links that lookup
// resolves are rewritten to resource URIs.
func Render(cat model.Category, raw json.RawMessage, lookup Lookup) (string, error) {
	var b strings.Builder
	switch cat {
	case model.Crates:
		var c model.Crate
		if err := json.Unmarshal(raw, &c); err != nil {
			return "", err
		}
		r := &renderer{crate: c.Name, scope: c.FullPath(), lookup: lookup}
		fmt.Fprintf(&b, "# Crate `%s`", c.Name)
		if c.Version != "" {
			fmt.Fprintf(&b, " %s", c.Version)
		}
		b.WriteString("\n")
		r.doc(&b, c.Docstring)
		fmt.Fprintf(&b, "\nRoot module: %s\n", URI(model.Modules, c.FullPath()))

	case model.Modules:
		var m model.Module
		if err := json.Unmarshal(raw, &m); err != nil {
			return "", err
		}
		r := &renderer{crate: m.Path[0], scope: m.Path, lookup: lookup}
		fmt.Fprintf(&b, "# Module `%s`\n", m.Path)
		if m.SourceFile != nil {
			fmt.Fprintf(&b, "\nSource: `%s`\n", *m.SourceFile)
		}
		r.doc(&b, m.Docstring)
		if len(m.Declarations) > 0 {
			b.WriteString("\n## Submodules\n\n")
			for _, d := range m.Declarations {
				fmt.Fprintf(&b, "- [`%s`](%s)\n", d, URI(model.Modules, m.Path.Join(d)))
			}
		}

	case model.Structs:
		var s model.Struct
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		r := &renderer{crate: s.Path[0], scope: s.Path.Parent(), lookup: lookup}
		fmt.Fprintf(&b, "# Struct `%s`\n", s.Path)
		r.doc(&b, s.Docstring)
		r.fields(&b, "## Fields", s.Fields)

	case model.Enums:
		var e model.Enum
		if err := json.Unmarshal(raw, &e); err != nil {
			return "", err
		}
		r := &renderer{crate: e.Path[0], scope: e.Path.Parent(), lookup: lookup}
		fmt.Fprintf(&b, "# Enum `%s`\n", e.Path)
		r.doc(&b, e.Docstring)
		if len(e.Variants) > 0 {
			b.WriteString("\n## Variants\n")
			for _, v := range e.Variants {
				fmt.Fprintf(&b, "\n### `%s`", v.Path.Name())
				if v.Discriminant != nil {
					fmt.Fprintf(&b, " = `%s`", *v.Discriminant)
				}
				b.WriteString("\n")
				r.doc(&b, v.Docstring)
				r.fields(&b, "Fields:", v.Fields)
			}
		}

	case model.Functions:
		var f model.Function
		if err := json.Unmarshal(raw, &f); err != nil {
			return "", err
		}
		r := &renderer{crate: f.Path[0], scope: f.Path.Parent(), lookup: lookup}
		fmt.Fprintf(&b, "# Function `%s`\n", f.Path)
		r.doc(&b, f.Docstring)

	default:
		return "", fmt.Errorf("unknown category %q", cat)
	}
	return b.String(), nil
}
