package analyze

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jcdickinson/ferrisdoc/internal/model"
	"github.com/jcdickinson/ferrisdoc/internal/syntax"
)

// fileItems is everything extracted from one module file.
type fileItems struct {
	Module    model.Module     `json:"module"`
	Structs   []model.Struct   `json:"structs"`
	Enums     []model.Enum     `json:"enums"`
	Functions []model.Function `json:"functions"`
}

// extractItems scans the top-level items of a parsed file. Only public
// structs, enums, functions and `mod x;` declarations are recorded; every
// other item kind is ignored.
func extractItems(f *syntax.File, modPath model.Path, sourceFile string) *fileItems {
	root := f.Root()
	src := f.Source

	sf := sourceFile
	out := &fileItems{
		Module: model.Module{
			SourceFile:   &sf,
			Path:         modPath,
			Docstring:    syntax.InnerDocstring(root, src),
			Declarations: []string{},
		},
		Structs:   []model.Struct{},
		Enums:     []model.Enum{},
		Functions: []model.Function{},
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		switch n.Type() {
		case "mod_item":
			// Inline bodies are not declarations of another file.
			if n.ChildByFieldName("body") != nil || !syntax.IsPublic(n, src) {
				continue
			}
			if name := n.ChildByFieldName("name"); name != nil {
				out.Module.Declarations = append(out.Module.Declarations, f.Text(name))
			}
		case "struct_item":
			if syntax.IsPublic(n, src) {
				if s, ok := extractStruct(f, n, modPath); ok {
					out.Structs = append(out.Structs, s)
				}
			}
		case "enum_item":
			if syntax.IsPublic(n, src) {
				if e, ok := extractEnum(f, n, modPath); ok {
					out.Enums = append(out.Enums, e)
				}
			}
		case "function_item":
			if !syntax.IsPublic(n, src) {
				continue
			}
			if name := n.ChildByFieldName("name"); name != nil {
				out.Functions = append(out.Functions, model.Function{
					Path:      modPath.Join(f.Text(name)),
					Docstring: syntax.Docstring(n, src),
				})
			}
		}
	}
	return out
}

func extractStruct(f *syntax.File, n *sitter.Node, parent model.Path) (model.Struct, bool) {
	name := n.ChildByFieldName("name")
	if name == nil {
		return model.Struct{}, false
	}
	p := parent.Join(f.Text(name))
	return model.Struct{
		Path:      p,
		Docstring: syntax.Docstring(n, f.Source),
		Fields:    extractFields(f, n.ChildByFieldName("body"), p, true),
	}, true
}

func extractEnum(f *syntax.File, n *sitter.Node, parent model.Path) (model.Enum, bool) {
	name := n.ChildByFieldName("name")
	if name == nil {
		return model.Enum{}, false
	}
	p := parent.Join(f.Text(name))
	e := model.Enum{
		Path:      p,
		Docstring: syntax.Docstring(n, f.Source),
		Variants:  []model.Variant{},
	}

	body := n.ChildByFieldName("body")
	if body == nil {
		return e, true
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		v := body.NamedChild(i)
		if v.Type() != "enum_variant" {
			continue
		}
		vname := v.ChildByFieldName("name")
		if vname == nil {
			continue
		}
		vp := p.Join(f.Text(vname))
		variant := model.Variant{
			Path:      vp,
			Docstring: syntax.Docstring(v, f.Source),
			// Variants have no visibility of their own; every field counts.
			Fields: extractFields(f, v.ChildByFieldName("body"), vp, false),
		}
		if value := v.ChildByFieldName("value"); value != nil {
			d := strings.TrimSpace(f.Text(value))
			variant.Discriminant = &d
		}
		e.Variants = append(e.Variants, variant)
	}
	return e, true
}

// extractFields handles both named and positional field lists. Positional
// fields are named by their index among all fields, public or not.
func extractFields(f *syntax.File, body *sitter.Node, owner model.Path, publicOnly bool) []model.Field {
	fields := []model.Field{}
	if body == nil {
		return fields
	}
	src := f.Source

	switch body.Type() {
	case "field_declaration_list":
		for i := 0; i < int(body.NamedChildCount()); i++ {
			fd := body.NamedChild(i)
			if fd.Type() != "field_declaration" {
				continue
			}
			if publicOnly && !syntax.IsPublic(fd, src) {
				continue
			}
			name := fd.ChildByFieldName("name")
			ty := fd.ChildByFieldName("type")
			if name == nil || ty == nil {
				continue
			}
			fields = append(fields, model.Field{
				Path:      owner.Join(f.Text(name)),
				Docstring: syntax.Docstring(fd, src),
				Type:      syntax.TypeSignature(ty, src),
			})
		}

	case "ordered_field_declaration_list":
		// Attributes, comments and visibility precede each type as siblings.
		var (
			pending []*sitter.Node
			public  bool
			index   int
		)
		for i := 0; i < int(body.NamedChildCount()); i++ {
			c := body.NamedChild(i)
			switch c.Type() {
			case "line_comment", "block_comment", "attribute_item":
				pending = append(pending, c)
				continue
			case "visibility_modifier":
				public = syntax.CollapseWhitespace(f.Text(c)) == "pub"
				continue
			}
			if !publicOnly || public {
				fields = append(fields, model.Field{
					Path:      owner.Join(strconv.Itoa(index)),
					Docstring: syntax.CollectDocs(pending, src),
					Type:      syntax.TypeSignature(c, src),
				})
			}
			index++
			pending = pending[:0]
			public = false
		}
	}
	return fields
}
