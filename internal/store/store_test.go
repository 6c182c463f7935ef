package store

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jcdickinson/ferrisdoc/internal/model"
)

func testStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache"), opts...)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	return s
}

func put(t *testing.T, s *Store, cat model.Category, e model.Entity) {
	t.Helper()
	if _, err := s.Put(cat, e); err != nil {
		t.Fatalf("put %s: %v", e.FullPath(), err)
	}
}

func pathStrings[T model.Entity](items []T) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.FullPath().String()
	}
	sort.Strings(out)
	return out
}

func TestPut_Idempotent(t *testing.T) {
	t.Parallel()
	s := testStore(t)

	st := model.Struct{
		Path:      model.Path{"my_crate", "a", "S"},
		Docstring: "A struct",
		Fields: []model.Field{{
			Path: model.Path{"my_crate", "a", "S", "x"},
			Type: model.TypeSignature{model.ReferenceSegment("u8")},
		}},
	}

	written, err := s.Put(model.Structs, st)
	if err != nil {
		t.Fatal(err)
	}
	if !written {
		t.Fatal("first put should write")
	}
	file := s.FilePath(model.Structs, st.Path)
	before, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}

	// Make any rewrite observable through mtime.
	old := before.ModTime().Add(-time.Hour)
	if err := os.Chtimes(file, old, old); err != nil {
		t.Fatal(err)
	}

	written, err = s.Put(model.Structs, st)
	if err != nil {
		t.Fatal(err)
	}
	if written {
		t.Error("second put of identical content should not write")
	}
	after, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(old) {
		t.Errorf("mtime changed: %v -> %v", old, after.ModTime())
	}

	got, err := LoadOne[model.Struct](s, model.Structs, st.Path)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected stored struct")
	}
	if diff := cmp.Diff(st, *got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestPut_ChangedContentRewrites(t *testing.T) {
	t.Parallel()
	s := testStore(t)

	fn := model.Function{Path: model.Path{"c", "f"}, Docstring: "v1"}
	put(t, s, model.Functions, fn)
	fn.Docstring = "v2"
	written, err := s.Put(model.Functions, fn)
	if err != nil {
		t.Fatal(err)
	}
	if !written {
		t.Error("changed content should be written")
	}
	got, err := LoadOne[model.Function](s, model.Functions, fn.Path)
	if err != nil || got == nil {
		t.Fatalf("load: %v %v", got, err)
	}
	if got.Docstring != "v2" {
		t.Errorf("docstring = %q", got.Docstring)
	}
}

func TestLoadOne_Missing(t *testing.T) {
	t.Parallel()
	s := testStore(t)

	got, err := LoadOne[model.Module](s, model.Modules, model.Path{"nope"})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func seedModules(t *testing.T, s *Store) {
	t.Helper()
	for _, p := range []model.Path{
		{"c"},
		{"c", "Foo"},
		{"c", "FooBar"},
		{"c", "Foo", "inner"},
		{"c", "Foo", "inner", "deep"},
		{"d", "Foo"},
	} {
		put(t, s, model.Modules, model.Module{Path: p, Declarations: []string{}})
	}
}

func TestLoadChildren(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	seedModules(t, s)

	got, err := LoadChildren[model.Module](s, model.Modules, model.Path{"c", "Foo"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"c::Foo::inner"}
	if diff := cmp.Diff(want, pathStrings(got)); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}

	got, err = LoadChildren[model.Module](s, model.Modules, model.Path{"c"})
	if err != nil {
		t.Fatal(err)
	}
	want = []string{"c::Foo", "c::FooBar"}
	if diff := cmp.Diff(want, pathStrings(got)); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDescendants(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	seedModules(t, s)

	got, err := LoadDescendants[model.Module](s, model.Modules, model.Path{"c", "Foo"}, false)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"c::Foo::inner", "c::Foo::inner::deep"}
	if diff := cmp.Diff(want, pathStrings(got)); diff != "" {
		t.Errorf("descendants mismatch (-want +got):\n%s", diff)
	}

	got, err = LoadDescendants[model.Module](s, model.Modules, model.Path{"c", "Foo"}, true)
	if err != nil {
		t.Fatal(err)
	}
	want = []string{"c::Foo", "c::Foo::inner", "c::Foo::inner::deep"}
	if diff := cmp.Diff(want, pathStrings(got)); diff != "" {
		t.Errorf("descendants+self mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadByPrefix_TextualMatch(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	seedModules(t, s)

	got, err := LoadByPrefix[model.Module](s, model.Modules, "c::Foo")
	if err != nil {
		t.Fatal(err)
	}
	// The legacy mode also matches FooBar.
	want := []string{"c::Foo", "c::Foo::inner", "c::Foo::inner::deep", "c::FooBar"}
	if diff := cmp.Diff(want, pathStrings(got)); diff != "" {
		t.Errorf("prefix mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_EmptyCategory(t *testing.T) {
	t.Parallel()
	s := testStore(t)

	got, err := LoadChildren[model.Enum](s, model.Enums, model.Path{"c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no enums, got %d", len(got))
	}
}

func TestLoad_CorruptRecordAbortsQuery(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	seedModules(t, s)

	bad := s.FilePath(model.Modules, model.Path{"c", "Foo", "inner"})
	if err := os.WriteFile(bad, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadDescendants[model.Module](s, model.Modules, model.Path{"c"}, false)
	var corrupt *CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptError, got %v", err)
	}
	if corrupt.Path != bad {
		t.Errorf("corrupt path = %s, want %s", corrupt.Path, bad)
	}

	_, err = LoadOne[model.Module](s, model.Modules, model.Path{"c", "Foo", "inner"})
	if !errors.As(err, &corrupt) {
		t.Errorf("LoadOne: expected CorruptError, got %v", err)
	}
}

func TestReadCache_SeesRewrites(t *testing.T) {
	t.Parallel()
	s := testStore(t, WithReadCache(8))

	fn := model.Function{Path: model.Path{"c", "f"}, Docstring: "first"}
	put(t, s, model.Functions, fn)
	if got, err := LoadOne[model.Function](s, model.Functions, fn.Path); err != nil || got.Docstring != "first" {
		t.Fatalf("load: %+v %v", got, err)
	}

	fn.Docstring = "second, and longer"
	put(t, s, model.Functions, fn)
	got, err := LoadOne[model.Function](s, model.Functions, fn.Path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Docstring != "second, and longer" {
		t.Errorf("stale read: %q", got.Docstring)
	}
}

func TestStoreLoad_Untyped(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	seedModules(t, s)

	items, err := s.Load(model.Modules, Query{Mode: Children, Path: model.Path{"c"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if _, ok := items[0].(model.Module); !ok {
		t.Errorf("expected model.Module, got %T", items[0])
	}

	items, err = s.Load(model.Modules, Query{Mode: One, Path: model.Path{"missing"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}

	if _, err := s.Load(model.Category("traits"), Query{}); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestFileName_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, p := range []model.Path{
		{"my_crate"},
		{"my_crate", "a", "S", "0"},
		{"my-crate", "r#type"},
		{"c", "with.dot", "ünï"},
	} {
		name := FileName(p)
		if filepath.Base(name) != name {
			t.Errorf("%s: file name %q contains a separator", p, name)
		}
		got, ok := ParseFileName(name)
		if !ok {
			t.Errorf("%s: %q did not parse", p, name)
			continue
		}
		if !got.Equal(p) {
			t.Errorf("round trip: got %v, want %v", got, p)
		}
	}

	if _, ok := ParseFileName("notes.txt"); ok {
		t.Error("non-json file should not parse")
	}
}

func TestOpen_RootIsFile(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(file); err == nil {
		t.Error("expected error for non-directory root")
	}
}
