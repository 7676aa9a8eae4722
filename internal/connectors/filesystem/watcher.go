package filesystem

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/milo/internal/logger"
)

// ChangeType describes what happened to a watched file.
type ChangeType string

// Change types emitted by the watcher.
const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
)

// Change is a file that should be (re-)ingested.
type Change struct {
	Type ChangeType
	Path string
}

// Watcher reports created and modified files under a root directory.
// Removed and renamed files are logged only: their stored records are kept.
type Watcher struct {
	root    string
	loader  *Loader
	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for root. Only files the loader supports
// are reported.
func NewWatcher(root string, loader *Loader) *Watcher {
	if loader == nil {
		loader = NewLoader()
	}
	return &Watcher{root: root, loader: loader}
}

// Watch starts watching root and every non-hidden subdirectory. The
// returned channel is closed when ctx is cancelled or Close is called.
func (w *Watcher) Watch(ctx context.Context) (<-chan Change, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := addTree(fw, w.root); err != nil {
		fw.Close()
		return nil, err
	}

	w.mu.Lock()
	w.watcher = fw
	w.mu.Unlock()

	changes := make(chan Change, 64)
	go func() {
		defer close(changes)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) && isDir(event.Name) && !isHidden(filepath.Base(event.Name)) {
					if err := addTree(fw, event.Name); err != nil {
						logger.Warn("watch %s: %v", event.Name, err)
					}
					continue
				}
				change := w.handleFsEvent(event)
				if change == nil {
					continue
				}
				select {
				case changes <- *change:
				case <-ctx.Done():
					return
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				logger.Warn("watcher error: %v", err)
			}
		}
	}()

	logger.Info("Watching %s for changes", w.root)
	return changes, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	return err
}

// handleFsEvent converts an fsnotify event to a Change, or nil when the
// event should be ignored.
func (w *Watcher) handleFsEvent(event fsnotify.Event) *Change {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		rel = filepath.Base(event.Name)
	}
	if isHidden(rel) || !w.loader.Supports(event.Name) {
		return nil
	}

	switch {
	case event.Has(fsnotify.Create):
		if isDir(event.Name) {
			return nil
		}
		return &Change{Type: ChangeCreated, Path: event.Name}
	case event.Has(fsnotify.Write):
		if isDir(event.Name) {
			return nil
		}
		return &Change{Type: ChangeUpdated, Path: event.Name}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		logger.Info("%s was removed; its stored records are kept until the next --clear", event.Name)
		return nil
	default:
		return nil
	}
}

// addTree watches dir and its non-hidden subdirectories.
func addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p != dir {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return fw.Add(p)
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
