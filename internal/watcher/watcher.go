// Package watcher watches inbox directories for dropped contact files and
// hands them to an import callback. Events are debounced so a file still
// being written is imported once, after it settles.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/meishi/internal/parse"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches inbox directories for contact files.
type Watcher struct {
	roots    []string
	exts     []string
	onImport func(path string)
	debounce time.Duration

	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	debounceMap map[string]*time.Timer
	started     bool
	done        chan struct{}
	stopOnce    sync.Once
	logger      *zap.Logger
}

// NewWatcher creates an inbox watcher. onImport is called for each contact
// file created or modified under one of the roots. exts restricts which
// extensions are imported; nil means every format the parser understands.
func NewWatcher(roots, exts []string, onImport func(path string), logger *zap.Logger) *Watcher {
	return &Watcher{
		roots:       roots,
		exts:        exts,
		onImport:    onImport,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Start begins watching. Missing roots are created. Runs until ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	for _, root := range w.roots {
		if err := os.MkdirAll(root, 0755); err != nil {
			fsw.Close()
			w.mu.Unlock()
			return err
		}
		if err := fsw.Add(root); err != nil {
			fsw.Close()
			w.mu.Unlock()
			return err
		}
	}
	w.watcher = fsw
	w.started = true
	w.mu.Unlock()

	w.logger.Info("inbox watcher started", zap.Strings("directories", w.roots))
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		if w.wantsFile(ev.Name) {
			w.debounceImport(ev.Name)
		}
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.cancelDebounce(ev.Name)
	}
}

// wantsFile reports whether path is a contact file the watcher should import.
// A parseable format is always required; the configured extension list can
// narrow it further.
func (w *Watcher) wantsFile(path string) bool {
	if !parse.IsContactFile(path) {
		return false
	}
	if len(w.exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) debounceImport(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.logger.Info("importing inbox file", zap.String("path", path))
		w.onImport(path)
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

// SyncExistingFiles imports contact files already present in the roots when
// the watcher starts.
func (w *Watcher) SyncExistingFiles() {
	for _, root := range w.roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			w.logger.Warn("failed to read inbox directory", zap.String("path", root), zap.Error(err))
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			path := filepath.Join(root, e.Name())
			if w.wantsFile(path) {
				w.onImport(path)
			}
		}
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
