package watcher

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// FSEventSource delivers raw filesystem notifications via fsnotify.
// fsnotify does not watch recursively, so every non-excluded directory under
// the root is added individually, and directories created while watching are
// added on the fly.
type FSEventSource struct {
	logger *slog.Logger
}

// NewFSEventSource creates an fsnotify-backed event source.
func NewFSEventSource(logger *slog.Logger) *FSEventSource {
	return &FSEventSource{logger: logger}
}

// Watch starts delivering events for root. The callback runs on the source's
// event goroutine; it must not block for long.
func (s *FSEventSource) Watch(root string, excludes *ExcludeSet, cb EventCallback) (io.Closer, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := addRecursive(fw, root, root, excludes); err != nil {
		_ = fw.Close()
		return nil, err
	}

	done := make(chan struct{})
	go s.run(fw, root, excludes, cb, done)

	return &fsCloser{fw: fw, done: done}, nil
}

func (s *FSEventSource) run(fw *fsnotify.Watcher, root string, excludes *ExcludeSet, cb EventCallback, done chan struct{}) {
	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			rel, err := filepath.Rel(root, ev.Name)
			if err != nil || excludes.Matches(rel) {
				continue
			}

			// New directories need their own watches for recursion.
			if ev.Op.Has(fsnotify.Create) {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if err := addRecursive(fw, root, ev.Name, excludes); err != nil {
						s.logger.Warn("failed to watch new directory", "path", rel, "error", err)
					}
					continue
				}
			}

			cb(mapOp(ev.Op), filepath.ToSlash(rel))

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			s.logger.Warn("event source error", "error", err)

		case <-done:
			return
		}
	}
}

func addRecursive(fw *fsnotify.Watcher, root, dir string, excludes *ExcludeSet) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // Skip inaccessible entries, keep walking
		}
		if !d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(root, path); relErr == nil && excludes.Matches(rel) {
			return filepath.SkipDir
		}
		if addErr := fw.Add(path); addErr != nil {
			return fmt.Errorf("failed to watch %s: %w", path, addErr)
		}
		return nil
	})
}

func mapOp(op fsnotify.Op) EventType {
	switch {
	case op.Has(fsnotify.Create):
		return EventCreate
	case op.Has(fsnotify.Remove):
		return EventDelete
	case op.Has(fsnotify.Rename):
		return EventRename
	default:
		return EventModify
	}
}

type fsCloser struct {
	fw   *fsnotify.Watcher
	done chan struct{}
}

func (c *fsCloser) Close() error {
	close(c.done)
	return c.fw.Close()
}
