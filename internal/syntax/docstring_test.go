package syntax

import (
	"context"
	"errors"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
)

func parseFile(t *testing.T, src string) *File {
	t.Helper()
	f, err := Parse(context.Background(), []byte(src))
	if err != nil {
		t.Fatalf("parsing: %v", err)
	}
	t.Cleanup(f.Close)
	return f
}

// findItem returns the first top-level node of the given type.
func findItem(t *testing.T, f *File, typ string) *sitter.Node {
	t.Helper()
	root := f.Root()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		if c := root.NamedChild(i); c.Type() == typ {
			return c
		}
	}
	t.Fatalf("no %s in file", typ)
	return nil
}

func TestDocstring(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "line_comments",
			src:  "/// Multi-line\n/// docstring\npub struct S;\n",
			want: "Multi-line\ndocstring",
		},
		{
			name: "strips_one_space_only",
			src:  "///   indented\n///no space\npub struct S;\n",
			want: "  indented\nno space",
		},
		{
			name: "skips_ordinary_comments_and_attributes",
			src:  "/// first\n// not a doc\n#[derive(Debug)]\n/// second\npub struct S;\n",
			want: "first\nsecond",
		},
		{
			name: "doc_attribute",
			src:  "#[doc = \"from attr\"]\n#[doc = \" tab\\there\"]\npub struct S;\n",
			want: "from attr\ntab\there",
		},
		{
			name: "raw_doc_attribute",
			src:  "#[doc = r#\"raw \"quoted\"\"#]\npub struct S;\n",
			want: "raw \"quoted\"",
		},
		{
			name: "block_doc",
			src:  "/** block doc */\npub struct S;\n",
			want: "block doc ",
		},
		{
			name: "four_slashes_not_doc",
			src:  "//// not doc\npub struct S;\n",
			want: "",
		},
		{
			name: "none",
			src:  "pub struct S;\n",
			want: "",
		},
		{
			name: "stops_at_previous_item",
			src:  "/// for A\npub struct A;\npub struct S;\n",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := parseFile(t, tt.src)
			root := f.Root()
			var item *sitter.Node
			for i := int(root.NamedChildCount()) - 1; i >= 0; i-- {
				if c := root.NamedChild(i); c.Type() == "struct_item" {
					item = c
					break
				}
			}
			if item == nil {
				t.Fatal("no struct_item")
			}
			if got := Docstring(item, f.Source); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInnerDocstring(t *testing.T) {
	t.Parallel()

	f := parseFile(t, "//! Crate docs\n//! line two\n#![doc = \"attr line\"]\n\n/// outer\npub mod a;\n")
	want := "Crate docs\nline two\nattr line"
	if got := InnerDocstring(f.Root(), f.Source); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	item := findItem(t, f, "mod_item")
	if got := Docstring(item, f.Source); got != "outer" {
		t.Errorf("outer docstring = %q", got)
	}
}

func TestUnescapeString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{`"plain"`, "plain"},
		{`"a\nb"`, "a\nb"},
		{`"q\"q"`, `q"q`},
		{`"\x41\u{42}"`, "AB"},
		{"\"line \\\n    continued\"", "line continued"},
	}
	for _, tt := range tests {
		got, ok := unescapeString(tt.input)
		if !ok {
			t.Errorf("%s: not decoded", tt.input)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParse_SyntaxError(t *testing.T) {
	t.Parallel()

	_, err := Parse(context.Background(), []byte("pub struct S {\n    x: u8,\n\npub fn"))
	if err == nil {
		t.Fatal("expected syntax error")
	}
	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if serr.Line < 1 {
		t.Errorf("line = %d", serr.Line)
	}
}

func TestIsPublic(t *testing.T) {
	t.Parallel()

	f := parseFile(t, "pub struct A;\npub(crate) struct B;\nstruct C;\n")
	root := f.Root()
	want := []bool{true, false, false}
	for i, w := range want {
		if got := IsPublic(root.NamedChild(i), f.Source); got != w {
			t.Errorf("item %d: got %v, want %v", i, got, w)
		}
	}
}
