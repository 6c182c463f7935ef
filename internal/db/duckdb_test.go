package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jcdickinson/ferrisdoc/internal/model"
	"github.com/jcdickinson/ferrisdoc/internal/store"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := New(filepath.Join(dir, "test.duckdb"))
	if err != nil {
		t.Fatalf("creating test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedStore(t *testing.T, docstring string) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "model"))
	if err != nil {
		t.Fatal(err)
	}
	u8 := model.TypeSignature{model.ReferenceSegment("u8")}
	for _, put := range []struct {
		cat model.Category
		e   model.Entity
	}{
		{model.Crates, model.Crate{Name: "my_crate", Version: "0.1.0", Docstring: docstring}},
		{model.Modules, model.Module{Path: model.Path{"my_crate"}, Declarations: []string{"a"}}},
		{model.Modules, model.Module{Path: model.Path{"my_crate", "a"}, Declarations: []string{}}},
		{model.Structs, model.Struct{
			Path:      model.Path{"my_crate", "a", "S"},
			Docstring: "A struct.\n\nMore detail.",
			Fields:    []model.Field{{Path: model.Path{"my_crate", "a", "S", "x"}, Type: u8}},
		}},
		{model.Enums, model.Enum{
			Path: model.Path{"my_crate", "a", "E"},
			Variants: []model.Variant{
				{Path: model.Path{"my_crate", "a", "E", "V1"}, Fields: []model.Field{}},
				{Path: model.Path{"my_crate", "a", "E", "V2"}, Fields: []model.Field{{
					Path: model.Path{"my_crate", "a", "E", "V2", "0"},
					Type: model.TypeSignature{model.LiteralSegment("&"), model.ReferenceSegment("str")},
				}}},
			},
		}},
		{model.Functions, model.Function{Path: model.Path{"my_crate", "run"}}},
	} {
		if _, err := s.Put(put.cat, put.e); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestExport(t *testing.T) {
	db := testDB(t)
	s := seedStore(t, "The crate.")

	stats, err := Export(context.Background(), s, db, nil)
	if err != nil {
		t.Fatal(err)
	}
	// crate + 2 modules + struct + enum + function
	if stats.Crates != 1 || stats.Entities != 6 {
		t.Errorf("stats = %+v", stats)
	}

	counts, err := db.CountEntities("my_crate")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int{"crates": 1, "modules": 2, "structs": 1, "enums": 1, "functions": 1, "variants": 2}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}

	fields, err := db.FieldsOf("my_crate::a::E::V2")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Field{{Path: "my_crate::a::E::V2::0", TypeText: "&str"}}, fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}

	var summary string
	if err := db.conn.QueryRow(`SELECT summary FROM entities WHERE category = 'structs' AND path = 'my_crate::a::S'`).Scan(&summary); err != nil {
		t.Fatal(err)
	}
	if summary != "A struct." {
		t.Errorf("summary = %q", summary)
	}
}

func TestExport_ReplacesPreviousExport(t *testing.T) {
	db := testDB(t)

	if _, err := Export(context.Background(), seedStore(t, "old"), db, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := Export(context.Background(), seedStore(t, "new"), db, nil); err != nil {
		t.Fatal(err)
	}

	crates, err := db.ListCrates()
	if err != nil {
		t.Fatal(err)
	}
	if len(crates) != 1 || crates[0].Summary != "new" {
		t.Errorf("crates = %+v", crates)
	}
	counts, err := db.CountEntities("my_crate")
	if err != nil {
		t.Fatal(err)
	}
	if counts["modules"] != 2 {
		t.Errorf("re-export duplicated rows: %v", counts)
	}
}
