package server

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceDelay coalesces the bursts of events editors produce on save.
const debounceDelay = 100 * time.Millisecond

// Watcher watches the story source and triggers reload.
type Watcher struct {
	watcher  *fsnotify.Watcher
	rootDir  string
	file     string // set when the story is a single file
	onReload func(filePath string) error
	done     chan struct{}
	stopOnce sync.Once
	log      *zap.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for a story file or passage directory.
func NewWatcher(path string, onReload func(string) error, log *zap.Logger) (*Watcher, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fsWatcher,
		rootDir:  path,
		onReload: onReload,
		done:     make(chan struct{}),
		log:      log,
	}
	if !info.IsDir() {
		// Editors replace files on save; watch the directory instead.
		w.rootDir = filepath.Dir(path)
		w.file = filepath.Base(path)
		err = fsWatcher.Add(w.rootDir)
	} else {
		err = w.addDirectoryRecursive(path)
	}
	if err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return w, nil
}

// addDirectoryRecursive adds a directory and all its subdirectories to the watcher.
func (w *Watcher) addDirectoryRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		// Skip hidden dirs like .git
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		w.log.Debug("Watching directory", zap.String("dir", path))
		return nil
	})
}

// relevant reports whether a change to name affects the story.
func (w *Watcher) relevant(name string) bool {
	if w.file != "" {
		return filepath.Base(name) == w.file
	}
	return filepath.Ext(name) == ".md"
}

// Start begins watching for file changes.
func (w *Watcher) Start() {
	go func() {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				if !w.relevant(event.Name) {
					continue
				}

				relPath, err := filepath.Rel(w.rootDir, event.Name)
				if err != nil {
					relPath = event.Name
				}
				w.log.Debug("File changed", zap.String("file", relPath), zap.Stringer("op", event.Op))
				w.schedule(relPath)

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.Warn("Watcher error", zap.Error(err))

			case <-w.done:
				return
			}
		}
	}()
}

func (w *Watcher) schedule(relPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, func() {
		if err := w.onReload(relPath); err != nil {
			w.log.Warn("Reload failed", zap.String("file", relPath), zap.Error(err))
		}
	})
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.watcher.Close()
	})
	return err
}
