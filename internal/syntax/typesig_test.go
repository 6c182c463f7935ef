package syntax

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jcdickinson/ferrisdoc/internal/model"
)

// lowerSource parses `type T = <ty>;` and lowers the aliased type.
func lowerSource(t *testing.T, ty string) model.TypeSignature {
	t.Helper()
	f, err := Parse(context.Background(), []byte("type T = "+ty+";"))
	if err != nil {
		t.Fatalf("parsing %q: %v", ty, err)
	}
	t.Cleanup(f.Close)

	item := f.Root().NamedChild(0)
	if item == nil || item.Type() != "type_item" {
		t.Fatalf("expected type_item, got %v", item)
	}
	node := item.ChildByFieldName("type")
	if node == nil {
		t.Fatalf("type_item has no type field")
	}
	return TypeSignature(node, f.Source)
}

func L(s string) model.TypeSegment { return model.LiteralSegment(s) }
func R(s string) model.TypeSegment { return model.ReferenceSegment(s) }

func TestTypeSignature(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ty   string
		want model.TypeSignature
	}{
		{"primitive", "u8", model.TypeSignature{R("u8")}},
		{"array", "[u8; 10]", model.TypeSignature{L("["), R("u8"), L("; 10]")}},
		{"array_expr_len", "[T; N * 2]", model.TypeSignature{L("["), R("T"), L("; N * 2]")}},
		{"slice", "[u8]", model.TypeSignature{L("["), R("u8"), L("]")}},
		{"tuple", "(u8, u16)", model.TypeSignature{L("("), R("u8"), L(", "), R("u16"), L(")")}},
		{"unit", "()", model.TypeSignature{L("()")}},
		{"paren", "(u8)", model.TypeSignature{L("("), R("u8"), L(")")}},
		{"ref_lifetime_mut", "&'a mut Vec<u8>", model.TypeSignature{L("&a mut "), R("Vec<u8>")}},
		{"ref_mut", "&mut u8", model.TypeSignature{L("& mut "), R("u8")}},
		{"ref", "&str", model.TypeSignature{L("& "), R("str")}},
		{"ptr_const", "*const u8", model.TypeSignature{L("*const "), R("u8")}},
		{"ptr_mut", "*mut u8", model.TypeSignature{L("*mut "), R("u8")}},
		{"never", "!", model.TypeSignature{L("!")}},
		{"inferred", "_", model.TypeSignature{L("_")}},
		{"inferred_in_array", "[_; 4]", model.TypeSignature{L("[_; 4]")}},
		{"ref_impl", "&impl Iterator<Item = u8>", model.TypeSignature{L("& impl Iterator<Item = u8>")}},
		{"ref_dyn_bounds", "&(dyn Fn() + Send)", model.TypeSignature{L("& (dyn Fn() + Send)")}},
		{"impl_trait", "impl Bound1 + Bound2 + Bound3", model.TypeSignature{L("impl Bound1 + Bound2 + Bound3")}},
		{"dyn_trait", "Box<dyn std::fmt::Debug>", model.TypeSignature{R("Box<dyn std::fmt::Debug>")}},
		{"scoped_generic", "std::collections::HashMap<u8, u16>", model.TypeSignature{R("std::collections::HashMap<u8, u16>")}},
		{"spaced_generic", "Vec < Option < u8 > >", model.TypeSignature{R("Vec<Option<u8>>")}},
		{"nested", "[(&'a u8, *mut T); 4]", model.TypeSignature{
			L("[(&a "), R("u8"), L(", *mut "), R("T"), L("); 4]"),
		}},
		{"fn_pointer", "fn(u8) -> u8", model.TypeSignature{L("fn(u8) -> u8")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lowerSource(t, tt.ty)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("TypeSignature(%q) mismatch (-want +got):\n%s", tt.ty, diff)
			}
		})
	}
}

func TestTypeSignature_DynBounds(t *testing.T) {
	t.Parallel()

	got := lowerSource(t, "Box<dyn  std::fmt::Debug  +  'a>")
	want := model.TypeSignature{R("Box<dyn std::fmt::Debug + 'a>")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestTypeSignature_RoundTrip(t *testing.T) {
	t.Parallel()

	// Concatenated segment text reproduces the source modulo whitespace.
	squash := func(s string) string { return strings.Join(strings.Fields(s), "") }
	for _, ty := range []string{
		"u8",
		"Vec<String>",
		"[u8; 32]",
		"(u8, String, [i32])",
		"*const std::ffi::c_void",
		"Option<Box<dyn Fn(u8) -> u8>>",
		"_",
		"!",
		"Vec<_>",
		"&impl Trait",
		"&mut dyn Any",
		"&(dyn Fn() + Send)",
		"&(dyn Error + Send + Sync)",
	} {
		got := lowerSource(t, ty).String()
		if squash(got) != squash(ty) {
			t.Errorf("round trip of %q gave %q", ty, got)
		}
	}
}

func TestTypeSignature_NoAdjacentLiterals(t *testing.T) {
	t.Parallel()

	sig := lowerSource(t, "(&'a mut [u8], ())")
	for i := 1; i < len(sig); i++ {
		if sig[i].Kind == model.Literal && sig[i-1].Kind == model.Literal {
			t.Fatalf("adjacent literals at %d: %#v", i, sig)
		}
	}
}

func TestTypeSignature_Fallback(t *testing.T) {
	t.Parallel()

	f, err := Parse(context.Background(), []byte("const X: u8 = 1 + 2;"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	value := f.Root().NamedChild(0).ChildByFieldName("value")
	got := TypeSignature(value, f.Source)
	want := model.TypeSignature{L("1 + 2")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"std :: vec :: Vec < u8 >", "std::vec::Vec<u8>"},
		{"HashMap<u8 , u16>", "HashMap<u8, u16>"},
		{"a::b::C", "a::b::C"},
		{"Box<dyn Fn() -> u8>", "Box<dyn Fn() -> u8>"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizePath(tt.input); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
