// Package analyze resolves a Rust package's module tree and extracts the
// public API surface into path-addressed model records.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/jcdickinson/ferrisdoc/internal/cas"
	"github.com/jcdickinson/ferrisdoc/internal/model"
	"github.com/jcdickinson/ferrisdoc/internal/store"
)

type Options struct {
	Logger *slog.Logger
	// Memo caches per-file extraction results. Nil disables memoization.
	Memo *cas.Store
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Result is the output of one analysis run.
type Result struct {
	Package   *Package
	Crate     model.Crate
	Modules   []model.Module
	Structs   []model.Struct
	Enums     []model.Enum
	Functions []model.Function
	// Dirs lists every directory that held a visited module file.
	Dirs []string
}

// Analyze resolves the package in dir and extracts every public item
// reachable from its entry file. A package whose entry file does not exist
// yields a Result holding only the crate.
func Analyze(ctx context.Context, dir string, opts Options) (*Result, error) {
	pkg, err := ResolvePackage(dir)
	if err != nil {
		return nil, err
	}
	logger := opts.logger()

	res := &Result{
		Package: pkg,
		Crate:   model.Crate{Name: pkg.Name, Version: pkg.Version},
	}

	if _, err := os.Stat(pkg.EntryFile); errors.Is(err, os.ErrNotExist) {
		logger.Info("entry file not found, crate has no modules", "crate", pkg.Name, "entry", pkg.EntryFile)
		return res, nil
	} else if err != nil {
		return nil, fmt.Errorf("checking entry file: %w", err)
	}

	w := &walker{
		pkgDir:  pkg.Dir,
		memo:    opts.Memo,
		logger:  logger,
		visited: map[string]bool{},
		dirs:    map[string]bool{},
	}
	if err := w.walk(ctx, pkg.EntryFile, pkg.Name); err != nil {
		return nil, err
	}

	for _, f := range w.files {
		res.Modules = append(res.Modules, f.Module)
		res.Structs = append(res.Structs, f.Structs...)
		res.Enums = append(res.Enums, f.Enums...)
		res.Functions = append(res.Functions, f.Functions...)
	}
	if len(w.files) > 0 {
		res.Crate.Docstring = w.files[0].Module.Docstring
	}
	for d := range w.dirs {
		res.Dirs = append(res.Dirs, d)
	}
	sort.Strings(res.Dirs)

	logger.Debug("analyzed crate", "crate", pkg.Name,
		"modules", len(res.Modules), "structs", len(res.Structs),
		"enums", len(res.Enums), "functions", len(res.Functions))
	return res, nil
}

// Summary lists the display paths of every record an analysis produced.
type Summary struct {
	Crate     string   `json:"crate"`
	Modules   []string `json:"modules"`
	Structs   []string `json:"structs"`
	Enums     []string `json:"enums"`
	Functions []string `json:"functions"`
	// Written counts records whose file content changed.
	Written int `json:"written"`
}

// Summary returns the identifiers of r's records.
func (r *Result) Summary() *Summary {
	return &Summary{
		Crate:     r.Crate.FullPath().String(),
		Modules:   pathStrings(r.Modules),
		Structs:   pathStrings(r.Structs),
		Enums:     pathStrings(r.Enums),
		Functions: pathStrings(r.Functions),
	}
}

func pathStrings[T model.Entity](items []T) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.FullPath().String()
	}
	return out
}

// Store writes every record of r into s. Records are written category by
// category, so a concurrent reader may briefly see a mix of old and new
// output.
func (r *Result) Store(s *store.Store) (int, error) {
	written := 0
	put := func(cat model.Category, e model.Entity) error {
		ok, err := s.Put(cat, e)
		if err != nil {
			return err
		}
		if ok {
			written++
		}
		return nil
	}

	if err := put(model.Crates, r.Crate); err != nil {
		return written, err
	}
	for _, m := range r.Modules {
		if err := put(model.Modules, m); err != nil {
			return written, err
		}
	}
	for _, st := range r.Structs {
		if err := put(model.Structs, st); err != nil {
			return written, err
		}
	}
	for _, e := range r.Enums {
		if err := put(model.Enums, e); err != nil {
			return written, err
		}
	}
	for _, fn := range r.Functions {
		if err := put(model.Functions, fn); err != nil {
			return written, err
		}
	}
	return written, nil
}

// Run analyzes the package in dir and stores the result in s.
func Run(ctx context.Context, dir string, s *store.Store, opts Options) (*Summary, error) {
	res, err := Analyze(ctx, dir, opts)
	if err != nil {
		return nil, err
	}
	written, err := res.Store(s)
	if err != nil {
		return nil, fmt.Errorf("storing analysis of %s: %w", res.Crate.Name, err)
	}
	sum := res.Summary()
	sum.Written = written
	opts.logger().Info("analysis stored", "crate", sum.Crate, "modules", len(sum.Modules),
		"structs", len(sum.Structs), "enums", len(sum.Enums), "functions", len(sum.Functions),
		"written", written)
	return sum, nil
}
