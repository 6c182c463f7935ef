package analyze

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"
)

const ManifestName = "Cargo.toml"

// Package is a resolved package: where it lives, what its crate is called and
// which file roots its module tree.
type Package struct {
	Dir          string
	ManifestPath string
	Name         string
	Version      string
	EntryFile    string
	Binary       bool
}

type manifest struct {
	Package *struct {
		Name    string `toml:"name"`
		Version any    `toml:"version"`
	} `toml:"package"`
	// [lib] is a table; [bin] may be a table or an array of tables. An empty
	// table decodes to nil, so declaredTargets decides whether they exist.
	Lib any `toml:"lib"`
	Bin any `toml:"bin"`
}

type target struct {
	name string
	path string
}

// ResolvePackage reads dir's manifest and determines the crate name, version
// and entry file. The entry file is not required to exist.
func ResolvePackage(dir string) (*Package, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, &ConfigError{Path: dir, Msg: "resolving path", Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, &ConfigError{Path: abs, Msg: "package directory not found", Err: err}
	}
	if !info.IsDir() {
		return nil, &ConfigError{Path: abs, Msg: "not a directory"}
	}

	manifestPath := filepath.Join(abs, ManifestName)
	data, err := os.ReadFile(manifestPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &ConfigError{Path: abs, Msg: ManifestName + " does not exist in directory"}
	}
	if err != nil {
		return nil, &ConfigError{Path: manifestPath, Msg: "reading manifest", Err: err}
	}

	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, &ConfigError{Path: manifestPath, Msg: "parsing manifest", Err: err}
	}
	if m.Package == nil || m.Package.Name == "" {
		return nil, &ConfigError{Path: manifestPath, Msg: "missing [package] name"}
	}

	hasLib, hasBin, err := declaredTargets(data)
	if err != nil {
		return nil, &ConfigError{Path: manifestPath, Msg: "parsing manifest", Err: err}
	}

	var (
		t      target
		binary bool
	)
	switch {
	case hasLib && hasBin:
		return nil, &ConfigError{Path: manifestPath, Msg: "both lib and bin targets declared"}
	case hasLib:
		t, err = parseTarget(m.Lib)
	case hasBin:
		t, err = parseTarget(m.Bin)
		binary = true
	default:
		return nil, &ConfigError{Path: manifestPath, Msg: "no lib or bin target declared"}
	}
	if err != nil {
		return nil, &ConfigError{Path: manifestPath, Msg: "invalid target", Err: err}
	}

	name := t.name
	if name == "" {
		name = strings.ReplaceAll(m.Package.Name, "-", "_")
	}
	entry := t.path
	switch {
	case entry == "" && binary:
		entry = filepath.Join("src", "main.rs")
	case entry == "":
		entry = filepath.Join("src", "lib.rs")
	}
	if !filepath.IsAbs(entry) {
		entry = filepath.Join(abs, filepath.FromSlash(entry))
	}

	return &Package{
		Dir:          abs,
		ManifestPath: manifestPath,
		Name:         name,
		Version:      versionString(m.Package.Version),
		EntryFile:    entry,
		Binary:       binary,
	}, nil
}

// parseTarget reads a [lib] table or a [[bin]] entry. For several binaries
// the first one is used.
func parseTarget(v any) (target, error) {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return target{}, nil
		}
		v = list[0]
	}
	if v == nil {
		return target{}, nil
	}
	table, ok := v.(map[string]any)
	if !ok {
		return target{}, fmt.Errorf("expected a table, got %T", v)
	}
	var t target
	if s, ok := table["name"].(string); ok {
		t.name = s
	}
	if s, ok := table["path"].(string); ok {
		t.path = s
	}
	return t, nil
}

// declaredTargets reports whether the manifest declares the root keys lib and
// bin in any form: [lib], [[bin]], lib = { ... } or lib.path = "...".
func declaredTargets(data []byte) (lib, bin bool, err error) {
	var p unstable.Parser
	p.Reset(data)

	// first key of the current table header; "" is the root table
	var table string
	for p.NextExpression() {
		e := p.Expression()
		var key string
		switch e.Kind {
		case unstable.Table, unstable.ArrayTable:
			key = firstKey(e)
			table = key
		case unstable.KeyValue:
			if table != "" {
				continue
			}
			key = firstKey(e)
		default:
			continue
		}
		switch key {
		case "lib":
			lib = true
		case "bin":
			bin = true
		}
	}
	return lib, bin, p.Error()
}

func firstKey(e *unstable.Node) string {
	it := e.Key()
	if !it.Next() {
		return ""
	}
	return string(it.Node().Data)
}

// versionString accepts a literal version; inherited versions such as
// `version.workspace = true` cannot be resolved without the workspace and
// yield "".
func versionString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
