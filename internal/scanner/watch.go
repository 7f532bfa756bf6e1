package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch re-runs fn whenever a source file under root changes, debounced so
// an editor save burst triggers a single rescan. Dependency directories are
// not watched. Blocks until ctx is cancelled.
func Watch(ctx context.Context, root string, skipDirs []string, debounce time.Duration, fn func()) error {
	if skipDirs == nil {
		skipDirs = DefaultSkipDirs
	}
	skipSet := make(map[string]bool, len(skipDirs))
	for _, d := range skipDirs {
		skipSet[d] = true
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return nil
		}
		if d.IsDir() {
			if skipSet[d.Name()] {
				return filepath.SkipDir
			}
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				addDirTree(w, ev.Name, skipSet)
			}
			if !pending {
				pending = true
			} else if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "err", werr)
		case <-timer.C:
			pending = false
			fn()
		}
	}
}

// addDirTree watches a directory created after the initial walk, including
// any subdirectories already inside it. Non-directories are ignored.
func addDirTree(w *fsnotify.Watcher, path string, skipSet map[string]bool) {
	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() || skipSet[filepath.Base(path)] {
		return
	}
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return nil
		}
		if d.IsDir() {
			if skipSet[d.Name()] {
				return filepath.SkipDir
			}
			if aerr := w.Add(p); aerr != nil {
				slog.Warn("watch add failed", "path", p, "err", aerr)
			}
		}
		return nil
	})
}
