package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jcdickinson/ferrisdoc/internal/cas"
	"github.com/jcdickinson/ferrisdoc/internal/model"
	"github.com/jcdickinson/ferrisdoc/internal/syntax"
)

// memoSchema versions the memo records; bump it when extraction output
// changes shape or meaning.
const memoSchema = "ferrisdoc/items/v1"

// pending is a declared sub-module waiting to be resolved.
type pending struct {
	dir    string // directory the module file is searched in
	ident  string
	parent model.Path
}

type walker struct {
	pkgDir  string
	memo    *cas.Store
	logger  *slog.Logger
	visited map[string]bool
	dirs    map[string]bool
	files   []*fileItems
}

// walk parses entry as the crate root and follows public `mod x;`
// declarations with an explicit stack until every reachable file is visited.
func (w *walker) walk(ctx context.Context, entry string, crate string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry = filepath.Clean(entry)
	w.visited[entry] = true
	root, err := w.visit(ctx, entry, model.Path{crate})
	if err != nil {
		return err
	}

	var stack []pending
	push := func(dir string, items *fileItems) {
		decls := items.Module.Declarations
		// Reversed so siblings pop in declaration order.
		for i := len(decls) - 1; i >= 0; i-- {
			stack = append(stack, pending{dir: dir, ident: decls[i], parent: items.Module.Path})
		}
	}
	push(filepath.Dir(entry), root)

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		file, childDir, ok := resolveModuleFile(next.dir, next.ident)
		if !ok {
			w.logger.Debug("module file not found, skipping", "module", next.parent.Join(next.ident).String(), "dir", next.dir)
			continue
		}
		if w.visited[file] {
			w.logger.Debug("module file already visited", "file", file)
			continue
		}
		w.visited[file] = true

		items, err := w.visit(ctx, file, next.parent.Join(next.ident))
		if err != nil {
			return err
		}
		push(childDir, items)
	}
	return nil
}

// resolveModuleFile applies the two module file conventions in order:
// dir/ident.rs, then dir/ident/mod.rs. Children of either live in dir/ident.
// A raw identifier such as r#type names the file type.rs.
func resolveModuleFile(dir, ident string) (file, childDir string, ok bool) {
	name := strings.TrimPrefix(ident, "r#")
	childDir = filepath.Join(dir, name)
	for _, candidate := range []string{
		filepath.Join(dir, name+".rs"),
		filepath.Join(childDir, "mod.rs"),
	} {
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return filepath.Clean(candidate), childDir, true
		}
	}
	return "", "", false
}

// visit reads, parses and extracts one module file, consulting the memo
// first.
func (w *walker) visit(ctx context.Context, file string, modPath model.Path) (*fileItems, error) {
	source, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading module %s: %w", modPath, err)
	}
	rel := w.relative(file)
	w.dirs[filepath.Dir(file)] = true
	w.logger.Debug("visiting module", "module", modPath.String(), "file", rel)

	var key string
	if w.memo != nil {
		key = cas.Key([]byte(memoSchema), []byte(modPath.String()), []byte(rel), source)
		if items, ok := w.recall(key); ok {
			w.files = append(w.files, items)
			return items, nil
		}
	}

	f, err := syntax.Parse(ctx, source)
	if err != nil {
		var serr *syntax.Error
		if errors.As(err, &serr) {
			return nil, &ParseError{Path: file, Line: serr.Line, Column: serr.Column, Msg: serr.Msg}
		}
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}
	items := extractItems(f, modPath, rel)
	f.Close()

	if w.memo != nil {
		if data, err := json.Marshal(items); err == nil {
			if err := w.memo.Write(key, data); err != nil {
				w.logger.Warn("writing parse memo", "file", rel, "error", err)
			}
		}
	}
	w.files = append(w.files, items)
	return items, nil
}

// recall loads a memoized extraction. Unreadable or undecodable entries are
// treated as misses and overwritten.
func (w *walker) recall(key string) (*fileItems, bool) {
	data, err := w.memo.Read(key)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Debug("ignoring unreadable memo entry", "key", key, "error", err)
			w.memo.Remove(key)
		}
		return nil, false
	}
	var items fileItems
	if err := json.Unmarshal(data, &items); err != nil {
		w.logger.Debug("ignoring corrupt memo entry", "key", key, "error", err)
		w.memo.Remove(key)
		return nil, false
	}
	return &items, true
}

// relative returns file relative to the package directory, slash-separated.
// Files outside the package keep their absolute path.
func (w *walker) relative(file string) string {
	rel, err := filepath.Rel(w.pkgDir, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(file)
	}
	return filepath.ToSlash(rel)
}
