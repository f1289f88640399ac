package serve

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/text/unicode/norm"

	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/logfields"
	"github.com/MarkBind/markbind-sub000/internal/site"
	"github.com/MarkBind/markbind-sub000/internal/sitepath"
)

// Watcher reports changed files below a site root. Directories are
// watched recursively, including ones created later.
type Watcher struct {
	root   string
	output string
	ignore *site.Ignore
	log    *slog.Logger
	fsw    *fsnotify.Watcher
}

// NewWatcher starts watching root. Paths inside output, dot-prefixed
// paths, editor temp files and paths matched by ignore are skipped.
func NewWatcher(root, output string, ignore *site.Ignore, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryServe, "create file watcher").Build()
	}
	if log == nil {
		log = slog.Default()
	}
	w := &Watcher{
		root:   filepath.Clean(root),
		output: filepath.Clean(output),
		ignore: ignore,
		log:    log,
		fsw:    fsw,
	}
	if err := w.addTree(w.root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }

func (w *Watcher) addTree(dir string) error {
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && w.skip(p, true) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			w.log.Warn("Failed to watch directory", logfields.Path(p), logfields.Error(err))
		}
		return nil
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryServe, "watch site directory").WithContext("path", dir).Build()
	}
	return nil
}

// skip reports paths that never trigger a rebuild.
func (w *Watcher) skip(path string, isDir bool) bool {
	if sitepath.Within(w.output, path) {
		return true
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(seg, ".") || seg == "node_modules" {
			return true
		}
	}
	base := filepath.Base(path)
	if strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") || strings.HasSuffix(base, ".swx") ||
		(strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#")) {
		return true
	}
	return w.ignore.Match(rel, isDir)
}

// Run forwards changed paths to emit until ctx is done.
func (w *Watcher) Run(ctx context.Context, emit func(path string)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev, emit)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("File watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event, emit func(string)) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	path := norm.NFC.String(filepath.Clean(ev.Name))
	info, statErr := os.Stat(path)
	isDir := statErr == nil && info.IsDir()
	if w.skip(path, isDir) {
		return
	}
	if isDir {
		if ev.Has(fsnotify.Create) {
			if err := w.addTree(path); err != nil {
				w.log.Warn("Failed to watch new directory", logfields.Path(path), logfields.Error(err))
			}
		}
		return
	}
	w.log.Debug("Source changed", logfields.Path(path), slog.String("op", ev.Op.String()))
	emit(path)
}
