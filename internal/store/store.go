// Package store persists model entities as JSON documents laid out as
// <root>/<category>/<escaped-path>.json and answers path-based queries over
// them.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jcdickinson/ferrisdoc/internal/model"
)

// CorruptError reports a stored record that failed to decode.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt cache record %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

type Store struct {
	root  string
	reads *lru.Cache[string, cachedFile]
}

type cachedFile struct {
	modTime time.Time
	size    int64
	data    []byte
}

type Option func(*Store) error

// WithReadCache keeps the raw bytes of up to n recently read records in
// memory. An entry is reused only while the file's mtime and size match.
func WithReadCache(n int) Option {
	return func(s *Store) error {
		if n <= 0 {
			return nil
		}
		c, err := lru.New[string, cachedFile](n)
		if err != nil {
			return fmt.Errorf("creating read cache: %w", err)
		}
		s.reads = c
		return nil
	}
}

// Open returns a store rooted at root. The root need not exist yet; it fails
// only when root exists and is not a directory.
func Open(root string, opts ...Option) (*Store, error) {
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("cache root %s is not a directory", root)
	}
	s := &Store{root: root}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) categoryDir(cat model.Category) string {
	return filepath.Join(s.root, string(cat))
}

// FilePath returns the file a record with path p is stored in.
func (s *Store) FilePath(cat model.Category, p model.Path) string {
	return filepath.Join(s.categoryDir(cat), FileName(p))
}

// Put serializes e under its full path. The write is skipped when the file
// already holds byte-identical content, so consumers watching mtimes see no
// change. It reports whether the file was written.
func (s *Store) Put(cat model.Category, e model.Entity) (bool, error) {
	p := e.FullPath()
	if len(p) == 0 {
		return false, fmt.Errorf("storing %s record: empty path", cat)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("serializing %s: %w", p, err)
	}

	target := s.FilePath(cat, p)
	existing, err := os.ReadFile(target)
	if err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("reading existing record: %w", err)
	}

	if err := writeAtomic(target, data); err != nil {
		return false, err
	}
	return true, nil
}

// writeAtomic writes data to a temp file beside target and renames it into
// place, so readers never see a partial record.
func writeAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing %s: %w", target, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming into %s: %w", target, err)
	}
	return nil
}

// read returns a record file's bytes, consulting the read cache if enabled.
func (s *Store) read(file string) ([]byte, error) {
	if s.reads == nil {
		return os.ReadFile(file)
	}
	info, err := os.Stat(file)
	if err != nil {
		return nil, err
	}
	if c, ok := s.reads.Get(file); ok && c.modTime.Equal(info.ModTime()) && c.size == info.Size() {
		return c.data, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	s.reads.Add(file, cachedFile{modTime: info.ModTime(), size: info.Size(), data: data})
	return data, nil
}

func decode[T any](file string, data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, &CorruptError{Path: file, Err: err}
	}
	return v, nil
}

// Paths lists the paths of every record in a category, sorted by display
// form. A missing category directory yields no paths.
func (s *Store) Paths(cat model.Category) ([]model.Path, error) {
	entries, err := os.ReadDir(s.categoryDir(cat))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", cat, err)
	}

	var paths []model.Path
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		p, ok := ParseFileName(entry.Name())
		if !ok {
			continue
		}
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i].String() < paths[j].String() })
	return paths, nil
}

// LoadOne returns the record stored at p, or nil if there is none.
func LoadOne[T any](s *Store, cat model.Category, p model.Path) (*T, error) {
	file := s.FilePath(cat, p)
	data, err := s.read(file)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	v, err := decode[T](file, data)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// loadMatching decodes every record whose path satisfies match. Any failure
// aborts the whole query.
func loadMatching[T any](s *Store, cat model.Category, match func(model.Path) bool) ([]T, error) {
	paths, err := s.Paths(cat)
	if err != nil {
		return nil, err
	}
	out := []T{}
	for _, p := range paths {
		if !match(p) {
			continue
		}
		file := s.FilePath(cat, p)
		data, err := s.read(file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}
		v, err := decode[T](file, data)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// LoadChildren returns records whose path is parent plus one identifier.
func LoadChildren[T any](s *Store, cat model.Category, parent model.Path) ([]T, error) {
	return loadMatching[T](s, cat, func(p model.Path) bool {
		return p.IsChildOf(parent)
	})
}

// LoadDescendants returns records whose path strictly extends ancestor, plus
// the exact match when includeSelf is set.
func LoadDescendants[T any](s *Store, cat model.Category, ancestor model.Path, includeSelf bool) ([]T, error) {
	return loadMatching[T](s, cat, func(p model.Path) bool {
		return p.IsDescendantOf(ancestor) || (includeSelf && p.Equal(ancestor))
	})
}

// LoadByPrefix filters on the "::"-joined display form of stored paths.
//
// Deprecated: a textual prefix also matches unrelated identifiers (Foo
// matches FooBar). Use LoadChildren or LoadDescendants.
func LoadByPrefix[T any](s *Store, cat model.Category, prefix string) ([]T, error) {
	return loadMatching[T](s, cat, func(p model.Path) bool {
		return strings.HasPrefix(p.String(), prefix)
	})
}
