package model

import "strings"

// Separator joins path identifiers in their display form.
const Separator = "::"

// Path is a fully-qualified identifier sequence rooted at the crate name.
type Path []string

// ParsePath splits the display form "a::b::C" into a Path.
func ParsePath(s string) Path {
	s = strings.TrimSpace(s)
	if s == "" {
		return Path{}
	}
	return Path(strings.Split(s, Separator))
}

func (p Path) String() string {
	return strings.Join(p, Separator)
}

// Name returns the last identifier, or "" for an empty path.
func (p Path) Name() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Parent returns the path without its last identifier.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1]
}

// Join returns a new path with ident appended. The receiver is never aliased.
func (p Path) Join(ident string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, ident)
}

func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix matches the leading elements of p.
// Comparison is element-wise, so Foo is not a prefix of FooBar.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	return p[:len(prefix)].Equal(prefix)
}

// IsChildOf reports whether p is parent plus exactly one identifier.
func (p Path) IsChildOf(parent Path) bool {
	return len(p) == len(parent)+1 && p.HasPrefix(parent)
}

// IsDescendantOf reports whether p strictly extends ancestor.
func (p Path) IsDescendantOf(ancestor Path) bool {
	return len(p) > len(ancestor) && p.HasPrefix(ancestor)
}
