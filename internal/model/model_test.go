package model

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPathRelations(t *testing.T) {
	t.Parallel()

	parent := Path{"my_crate", "a"}

	tests := []struct {
		name       string
		path       Path
		child      bool
		descendant bool
	}{
		{"self", Path{"my_crate", "a"}, false, false},
		{"child", Path{"my_crate", "a", "S"}, true, true},
		{"grandchild", Path{"my_crate", "a", "S", "x"}, false, true},
		{"sibling", Path{"my_crate", "b"}, false, false},
		{"textual_prefix", Path{"my_crate", "ab", "S"}, false, false},
		{"parent", Path{"my_crate"}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.path.IsChildOf(parent); got != tt.child {
				t.Errorf("IsChildOf = %v, want %v", got, tt.child)
			}
			if got := tt.path.IsDescendantOf(parent); got != tt.descendant {
				t.Errorf("IsDescendantOf = %v, want %v", got, tt.descendant)
			}
		})
	}
}

func TestPathJoinDoesNotAlias(t *testing.T) {
	t.Parallel()

	base := make(Path, 1, 4)
	base[0] = "c"
	a := base.Join("a")
	b := base.Join("b")
	if a.String() != "c::a" || b.String() != "c::b" {
		t.Errorf("got %s and %s", a, b)
	}
	if !a.Parent().Equal(base) {
		t.Errorf("parent of %s = %s", a, a.Parent())
	}
}

func TestParsePath(t *testing.T) {
	t.Parallel()

	if got := ParsePath("my_crate::a::S"); !got.Equal(Path{"my_crate", "a", "S"}) {
		t.Errorf("got %v", got)
	}
	if got := ParsePath("  "); len(got) != 0 {
		t.Errorf("expected empty path, got %v", got)
	}
}

func TestParseCategory(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Category{
		"struct": Structs, "Enums": Enums, "fn": Functions, "mod": Modules, "crates": Crates,
	} {
		got, err := ParseCategory(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if got != want {
			t.Errorf("%s: got %s, want %s", in, got, want)
		}
	}
	if _, err := ParseCategory("trait"); err == nil {
		t.Error("expected error for unsupported category")
	}
}

func TestMergeLiterals(t *testing.T) {
	t.Parallel()

	in := TypeSignature{
		LiteralSegment("&"),
		LiteralSegment("a"),
		LiteralSegment(""),
		LiteralSegment(" mut "),
		ReferenceSegment("Vec<u8>"),
		LiteralSegment(")"),
	}
	want := TypeSignature{
		LiteralSegment("&a mut "),
		ReferenceSegment("Vec<u8>"),
		LiteralSegment(")"),
	}
	got := MergeLiterals(in)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MergeLiterals mismatch (-want +got):\n%s", diff)
	}
	if in[0].Text != "&" {
		t.Error("input was mutated")
	}
}

func TestFieldJSONShape(t *testing.T) {
	t.Parallel()

	f := Field{
		Path: Path{"c", "S", "0"},
		Type: TypeSignature{ReferenceSegment("u8")},
	}
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"path":["c","S","0"],"docstring":"","type":[{"kind":"referenceable","text":"u8"}]}`
	if string(data) != want {
		t.Errorf("got %s\nwant %s", data, want)
	}
}
