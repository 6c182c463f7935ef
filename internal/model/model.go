// Package model defines the path-addressed entity records produced by an
// analysis run and persisted in the model cache.
package model

import (
	"fmt"
	"strings"
)

// Category partitions the cache namespace by entity kind.
type Category string

const (
	Crates    Category = "crates"
	Modules   Category = "modules"
	Structs   Category = "structs"
	Enums     Category = "enums"
	Functions Category = "functions"
)

// Categories lists every category in a stable order.
var Categories = []Category{Crates, Modules, Structs, Enums, Functions}

// ParseCategory accepts a category name in plural or singular form.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "crates", "crate":
		return Crates, nil
	case "modules", "module", "mod":
		return Modules, nil
	case "structs", "struct":
		return Structs, nil
	case "enums", "enum":
		return Enums, nil
	case "functions", "function", "fn":
		return Functions, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Entity is implemented by every record stored in the cache.
type Entity interface {
	FullPath() Path
}

// Crate is the root of every path in one analysis run.
type Crate struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Docstring string `json:"docstring"`
}

func (c Crate) FullPath() Path { return Path{c.Name} }

// Module is a resolved module file. Declarations lists the identifiers of
// public `mod x;` items as written; they need not resolve to a module record.
type Module struct {
	SourceFile   *string  `json:"source_file"`
	Path         Path     `json:"path"`
	Docstring    string   `json:"docstring"`
	Declarations []string `json:"declarations"`
}

func (m Module) FullPath() Path { return m.Path }

// Struct holds only the public fields of a struct.
type Struct struct {
	Path      Path    `json:"path"`
	Docstring string  `json:"docstring"`
	Fields    []Field `json:"fields"`
}

func (s Struct) FullPath() Path { return s.Path }

type Enum struct {
	Path      Path      `json:"path"`
	Docstring string    `json:"docstring"`
	Variants  []Variant `json:"variants"`
}

func (e Enum) FullPath() Path { return e.Path }

// Variant is an enum variant. Discriminant is the raw expression text of an
// explicit `= expr`, if any.
type Variant struct {
	Path         Path    `json:"path"`
	Docstring    string  `json:"docstring"`
	Discriminant *string `json:"discriminant"`
	Fields       []Field `json:"fields"`
}

func (v Variant) FullPath() Path { return v.Path }

// Field is a named or positional field. For tuple fields the last path
// element is the zero-based position.
type Field struct {
	Path      Path          `json:"path"`
	Docstring string        `json:"docstring"`
	Type      TypeSignature `json:"type"`
}

func (f Field) FullPath() Path { return f.Path }

type Function struct {
	Path      Path   `json:"path"`
	Docstring string `json:"docstring"`
}

func (f Function) FullPath() Path { return f.Path }
