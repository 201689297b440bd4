// Package watcher delivers filtered file events from a directory tree.
//
// Directories are watched recursively with fsnotify; new directories are
// picked up as they appear. Only file events whose path matches one of the
// configured glob patterns reach the Handler, and directory events are
// never delivered.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/phuslu/log"

	"github.com/lucasnoah/autobuilder/internal/changes"
	"github.com/lucasnoah/autobuilder/internal/logger"
)

// ErrWatcherClosed is returned when operating on a closed watcher.
var ErrWatcherClosed = errors.New("watcher is closed")

// Handler receives file events. It is called from the watcher goroutine.
type Handler interface {
	OnFileEvent(path string, kind changes.Kind)
}

// Watcher watches a directory tree and forwards matching file events.
type Watcher struct {
	mu       sync.RWMutex
	fsw      *fsnotify.Watcher
	root     string
	patterns *Patterns
	handler  Handler
	dirs     map[string]bool
	ignore   []string

	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
	log      *log.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithIgnoreDirs skips directories with the given base names (e.g. ".git").
func WithIgnoreDirs(names ...string) Option {
	return func(w *Watcher) { w.ignore = append(w.ignore, names...) }
}

// New creates a watcher for root. Call Start to begin delivering events.
func New(root string, patterns []string, handler Handler, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", abs)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		root:     abs,
		patterns: NewPatterns(patterns),
		handler:  handler,
		dirs:     make(map[string]bool),
		ignore:   []string{".git"},
		closeCh:  make(chan struct{}),
		log:      logger.WithComponent("watcher"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Root returns the absolute watch root.
func (w *Watcher) Root() string {
	return w.root
}

// Start registers every directory under the root and starts the event loop.
func (w *Watcher) Start() error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.closedWg.Add(1)
	go w.loop()
	w.log.Info().Str("root", w.root).Strs("patterns", w.patterns.Globs()).Msg("watching")
	return nil
}

// SetPatterns replaces the glob patterns used to select files.
func (w *Watcher) SetPatterns(patterns []string) {
	p := NewPatterns(patterns)
	w.mu.Lock()
	w.patterns = p
	w.mu.Unlock()
	w.log.Info().Strs("patterns", p.Globs()).Msg("patterns updated")
}

// WatchedDirs returns the directories currently registered.
func (w *Watcher) WatchedDirs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.dirs))
	for d := range w.dirs {
		out = append(out, d)
	}
	return out
}

// Close stops the event loop and releases the fsnotify watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	err := w.fsw.Close()
	w.closedWg.Wait()
	return err
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			if p == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && w.ignored(d.Name()) {
			return filepath.SkipDir
		}
		return w.addDir(p)
	})
}

func (w *Watcher) addDir(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.dirs[dir] {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.dirs[dir] = true
	return nil
}

func (w *Watcher) ignored(name string) bool {
	for _, ig := range w.ignore {
		if name == ig {
			return true
		}
	}
	return false
}

func (w *Watcher) loop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := ev.Name

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.ignored(filepath.Base(path)) {
				if err := w.addTree(path); err != nil {
					w.log.Warn().Err(err).Str("path", path).Msg("watch new directory")
				}
			}
			return
		}
	}

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		w.mu.Lock()
		wasDir := w.dirs[path]
		if wasDir {
			delete(w.dirs, path)
			prefix := path + string(filepath.Separator)
			for d := range w.dirs {
				if strings.HasPrefix(d, prefix) {
					delete(w.dirs, d)
				}
			}
		}
		w.mu.Unlock()
		if wasDir {
			return
		}
	}

	kind, ok := convertOp(ev.Op)
	if !ok {
		return
	}

	w.mu.RLock()
	matched := w.patterns.Match(path)
	w.mu.RUnlock()
	if !matched {
		w.log.Debug().Str("path", path).Str("op", ev.Op.String()).Msg("filtered")
		return
	}

	w.log.Debug().Str("path", path).Str("kind", kind.String()).Msg("file event")
	w.handler.OnFileEvent(path, kind)
}

// convertOp maps an fsnotify operation to an event kind. Structural changes
// win over writes when one event carries several operations.
func convertOp(op fsnotify.Op) (changes.Kind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return changes.KindCreated, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return changes.KindDeleted, true
	case op.Has(fsnotify.Write):
		return changes.KindModified, true
	default:
		return 0, false
	}
}
