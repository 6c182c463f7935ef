// Package db exports the model cache into a DuckDB database for ad-hoc SQL
// queries over an analyzed API surface.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/jcdickinson/ferrisdoc/internal/markdown"
	"github.com/jcdickinson/ferrisdoc/internal/model"
)

// variantCategory tags enum variants in the entities table. Variants are
// stored inside their enum's record, not as a cache category of their own.
const variantCategory = "variants"

type DB struct {
	conn *sql.DB
}

func New(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	conn, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS crates (
			name TEXT PRIMARY KEY,
			version TEXT NOT NULL,
			docstring TEXT NOT NULL,
			summary TEXT NOT NULL,
			exported_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS entities (
			category TEXT NOT NULL,
			path TEXT NOT NULL,
			crate TEXT NOT NULL,
			name TEXT NOT NULL,
			parent TEXT NOT NULL,
			docstring TEXT NOT NULL,
			summary TEXT NOT NULL,
			record TEXT NOT NULL,
			PRIMARY KEY (category, path)
		)`,

		`CREATE TABLE IF NOT EXISTS fields (
			owner_category TEXT NOT NULL,
			path TEXT NOT NULL,
			crate TEXT NOT NULL,
			owner TEXT NOT NULL,
			type_text TEXT NOT NULL,
			docstring TEXT NOT NULL,
			PRIMARY KEY (owner_category, path)
		)`,
	}

	for _, q := range queries {
		if _, err := db.conn.Exec(q); err != nil {
			return fmt.Errorf("executing %q: %w", q, err)
		}
	}
	return nil
}

// --- Export ---

// Tx batches one crate's export.
type Tx struct {
	tx    *sql.Tx
	crate string
}

// BeginCrate deletes everything previously exported for crate and starts a
// transaction for its new records. The delete is committed on its own: DuckDB
// rejects re-inserting a key deleted earlier in the same transaction.
func (db *DB) BeginCrate(crate model.Crate) (*Tx, error) {
	for _, q := range []string{
		`DELETE FROM fields WHERE crate = ?`,
		`DELETE FROM entities WHERE crate = ?`,
		`DELETE FROM crates WHERE name = ?`,
	} {
		if _, err := db.conn.Exec(q, crate.Name); err != nil {
			return nil, fmt.Errorf("clearing previous export of %s: %w", crate.Name, err)
		}
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning export: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO crates (name, version, docstring, summary, exported_at) VALUES (?, ?, ?, ?, ?)`,
		crate.Name, crate.Version, crate.Docstring, markdown.Summary(crate.Docstring), time.Now(),
	); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("inserting crate %s: %w", crate.Name, err)
	}
	return &Tx{tx: tx, crate: crate.Name}, nil
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Put exports one cached record, along with the fields and variants it
// contains.
func (t *Tx) Put(cat model.Category, e model.Entity) error {
	record, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("serializing %s: %w", e.FullPath(), err)
	}

	var doc string
	switch v := e.(type) {
	case model.Module:
		doc = v.Docstring
	case model.Struct:
		doc = v.Docstring
		if err := t.putFields(string(cat), v.Fields); err != nil {
			return err
		}
	case model.Enum:
		doc = v.Docstring
		for _, variant := range v.Variants {
			data, err := json.Marshal(variant)
			if err != nil {
				return fmt.Errorf("serializing %s: %w", variant.Path, err)
			}
			if err := t.putEntity(variantCategory, variant.Path, variant.Docstring, data); err != nil {
				return err
			}
			if err := t.putFields(variantCategory, variant.Fields); err != nil {
				return err
			}
		}
	case model.Function:
		doc = v.Docstring
	case model.Crate:
		doc = v.Docstring
	}
	return t.putEntity(string(cat), e.FullPath(), doc, record)
}

func (t *Tx) putEntity(cat string, p model.Path, doc string, record []byte) error {
	_, err := t.tx.Exec(
		`INSERT INTO entities (category, path, crate, name, parent, docstring, summary, record)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cat, p.String(), t.crate, p.Name(), p.Parent().String(), doc, markdown.Summary(doc), string(record),
	)
	if err != nil {
		return fmt.Errorf("inserting %s %s: %w", cat, p, err)
	}
	return nil
}

func (t *Tx) putFields(ownerCat string, fields []model.Field) error {
	for _, f := range fields {
		_, err := t.tx.Exec(
			`INSERT INTO fields (owner_category, path, crate, owner, type_text, docstring)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			ownerCat, f.Path.String(), t.crate, f.Path.Parent().String(), f.Type.String(), f.Docstring,
		)
		if err != nil {
			return fmt.Errorf("inserting field %s: %w", f.Path, err)
		}
	}
	return nil
}

// --- Queries ---

type Crate struct {
	Name       string
	Version    string
	Summary    string
	ExportedAt time.Time
}

func (db *DB) ListCrates() ([]Crate, error) {
	rows, err := db.conn.Query(`SELECT name, version, summary, exported_at FROM crates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var crates []Crate
	for rows.Next() {
		var c Crate
		if err := rows.Scan(&c.Name, &c.Version, &c.Summary, &c.ExportedAt); err != nil {
			return nil, err
		}
		crates = append(crates, c)
	}
	return crates, rows.Err()
}

// CountEntities returns the number of exported entities per category for a
// crate.
func (db *DB) CountEntities(crate string) (map[string]int, error) {
	rows, err := db.conn.Query(`SELECT category, COUNT(*) FROM entities WHERE crate = ? GROUP BY category`, crate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		counts[cat] = n
	}
	return counts, rows.Err()
}

type Field struct {
	Path      string
	TypeText  string
	Docstring string
}

// FieldsOf returns the exported fields of a struct or variant, by path.
func (db *DB) FieldsOf(owner string) ([]Field, error) {
	rows, err := db.conn.Query(`SELECT path, type_text, docstring FROM fields WHERE owner = ? ORDER BY path`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []Field
	for rows.Next() {
		var f Field
		if err := rows.Scan(&f.Path, &f.TypeText, &f.Docstring); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}
