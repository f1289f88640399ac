package site

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/sitepath"
)

// copyAssets copies every file of the site that is not a page source, not
// reserved and not ignored into the output directory. Files whose copy is
// at least as new as the source are skipped.
func (s *Scheduler) copyAssets(ctx context.Context) error {
	ignore := NewIgnore(s.cfg.Ignore)
	copied := 0
	err := filepath.WalkDir(s.opts.RootPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(s.opts.RootPath, p)
		if err != nil || rel == "." {
			return err
		}
		if p == s.opts.OutputPath || reserved(rel) || ignore.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || sitepath.IsMarkdown(filepath.Ext(p)) {
			return nil
		}
		if _, isPage := s.Page(filepath.ToSlash(rel)); isPage {
			return nil
		}
		done, err := copyIfNewer(p, filepath.Join(s.opts.OutputPath, rel))
		if done {
			copied++
		}
		return err
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "copy assets").Build()
	}
	s.log.Debug("Assets copied", slog.Int("assets", copied))
	return nil
}

// syncAssets mirrors changed asset files into the output directory: a file
// that still exists is copied, a vanished one is removed. Page sources and
// paths outside the site, reserved or ignored are left alone. It returns the
// root-relative paths it touched.
func (s *Scheduler) syncAssets(ctx context.Context, changed []string) ([]string, error) {
	ignore := NewIgnore(s.cfg.Ignore)
	var synced []string
	for _, p := range changed {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		p = filepath.Clean(p)
		rel, err := filepath.Rel(s.opts.RootPath, p)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if p == s.opts.OutputPath || strings.HasPrefix(p, s.opts.OutputPath+string(filepath.Separator)) {
			continue
		}
		if reserved(rel) || ignore.Match(rel, false) || sitepath.IsMarkdown(filepath.Ext(p)) {
			continue
		}
		if _, isPage := s.Page(filepath.ToSlash(rel)); isPage {
			continue
		}
		dst := filepath.Join(s.opts.OutputPath, rel)
		info, err := os.Stat(p)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return synced, ferrors.FileSystemError("remove asset").WithCause(err).WithContext("path", dst).Build()
			}
		case err != nil:
			return synced, ferrors.FileSystemError("stat asset").WithCause(err).WithContext("path", p).Build()
		case info.IsDir():
			continue
		default:
			if _, err := copyIfNewer(p, dst); err != nil {
				return synced, ferrors.FileSystemError("copy asset").WithCause(err).WithContext("path", p).Build()
			}
		}
		synced = append(synced, filepath.ToSlash(rel))
	}
	if len(synced) > 0 {
		s.log.Info("Assets updated", slog.Int("assets", len(synced)))
	}
	return synced, nil
}

func copyIfNewer(src, dst string) (bool, error) {
	info, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	if out, err := os.Stat(dst); err == nil && !out.ModTime().Before(info.ModTime()) && out.Size() == info.Size() {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return false, err
	}
	in, err := os.Open(src)
	if err != nil {
		return false, err
	}
	defer in.Close()
	// #nosec G304 -- dst is derived from a walked site path
	out, err := os.Create(dst)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return false, err
	}
	return true, out.Close()
}
