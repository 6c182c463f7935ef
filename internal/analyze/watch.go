package analyze

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/jcdickinson/ferrisdoc/internal/store"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	Options
	Debounce time.Duration
	// OnRun is called after every run, including the first.
	OnRun func(*Summary, error)
}

// Watch runs the analysis once and then again whenever a Rust file in a
// visited directory or the manifest changes. Failed re-runs are reported
// through OnRun and logged; watching continues until ctx is done.
func Watch(ctx context.Context, dir string, s *store.Store, opts WatchOptions) error {
	logger := opts.logger()
	if opts.Debounce <= 0 {
		opts.Debounce = 250 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	pkg, err := ResolvePackage(dir)
	if err != nil {
		return err
	}

	ignored := loadGitignore(pkg.Dir)

	watched := map[string]bool{}
	rewatch := func(dirs []string) {
		want := map[string]bool{pkg.Dir: true, filepath.Dir(pkg.EntryFile): true}
		for _, d := range dirs {
			want[d] = true
		}
		for d := range watched {
			if !want[d] {
				watcher.Remove(d)
				delete(watched, d)
			}
		}
		for d := range want {
			if watched[d] {
				continue
			}
			if err := watcher.Add(d); err != nil {
				logger.Debug("cannot watch directory", "dir", d, "error", err)
				continue
			}
			watched[d] = true
		}
	}

	run := func() {
		res, err := Analyze(ctx, pkg.Dir, opts.Options)
		var sum *Summary
		if err == nil {
			var written int
			written, err = res.Store(s)
			sum = res.Summary()
			sum.Written = written
			rewatch(res.Dirs)
		}
		if err != nil {
			logger.Error("analysis failed", "package", pkg.Dir, "error", err)
		} else {
			logger.Info("analysis updated", "crate", sum.Crate, "written", sum.Written)
		}
		if opts.OnRun != nil {
			opts.OnRun(sum, err)
		}
	}

	rewatch(nil)
	run()

	timer := time.NewTimer(opts.Debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(ev, pkg.ManifestPath) || isIgnored(ignored, pkg.Dir, ev.Name) {
				continue
			}
			logger.Debug("change detected", "file", ev.Name, "op", ev.Op.String())
			timer.Reset(opts.Debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", "error", err)
		case <-timer.C:
			run()
		}
	}
}

// relevant reports whether ev can change the analysis output: a Rust file,
// the manifest or a directory that may hold module files.
func relevant(ev fsnotify.Event, manifestPath string) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Clean(ev.Name)
	if name == manifestPath || strings.HasSuffix(name, ".rs") {
		return true
	}
	// Creating or removing a module directory changes mod.rs resolution.
	if filepath.Ext(name) != "" || strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	return ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename)
}

// loadGitignore returns the package's .gitignore matcher, or nil.
func loadGitignore(dir string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}

func isIgnored(gi *ignore.GitIgnore, dir, name string) bool {
	if gi == nil {
		return false
	}
	rel, err := filepath.Rel(dir, name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	// Directory patterns such as "target/" only match with a trailing slash.
	return gi.MatchesPath(rel) || gi.MatchesPath(rel+"/")
}
