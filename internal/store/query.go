package store

import (
	"fmt"

	"github.com/jcdickinson/ferrisdoc/internal/model"
)

// Mode selects one of the query operations.
type Mode string

const (
	One         Mode = "one"
	Children    Mode = "children"
	Descendants Mode = "descendants"
	Prefix      Mode = "prefix"
)

// Query describes a load for callers that do not know the record type
// statically, such as the daemon and the CLI.
type Query struct {
	Mode        Mode
	Path        model.Path
	Prefix      string
	IncludeSelf bool
}

// Load runs q against a category and returns the decoded records. A LoadOne
// miss yields an empty slice.
func (s *Store) Load(cat model.Category, q Query) ([]model.Entity, error) {
	switch cat {
	case model.Crates:
		return run[model.Crate](s, cat, q)
	case model.Modules:
		return run[model.Module](s, cat, q)
	case model.Structs:
		return run[model.Struct](s, cat, q)
	case model.Enums:
		return run[model.Enum](s, cat, q)
	case model.Functions:
		return run[model.Function](s, cat, q)
	}
	return nil, fmt.Errorf("unknown category %q", cat)
}

func run[T model.Entity](s *Store, cat model.Category, q Query) ([]model.Entity, error) {
	var (
		items []T
		err   error
	)
	switch q.Mode {
	case One, "":
		var one *T
		one, err = LoadOne[T](s, cat, q.Path)
		if one != nil {
			items = []T{*one}
		}
	case Children:
		items, err = LoadChildren[T](s, cat, q.Path)
	case Descendants:
		items, err = LoadDescendants[T](s, cat, q.Path, q.IncludeSelf)
	case Prefix:
		items, err = LoadByPrefix[T](s, cat, q.Prefix)
	default:
		return nil, fmt.Errorf("unknown query mode %q", q.Mode)
	}
	if err != nil {
		return nil, err
	}
	out := make([]model.Entity, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out, nil
}
