package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/townhall/internal/logger"
)

// DefaultDebounce is how long a path must stay quiet before its change is
// reported. Editors often write a file several times in a row.
const DefaultDebounce = 500 * time.Millisecond

// Change describes a settled change to a file.
type Change struct {
	// Path is the absolute file path.
	Path string

	// Removed is true when the file no longer exists.
	Removed bool
}

// Watcher reports debounced file changes below a root directory.
type Watcher struct {
	root     string
	debounce time.Duration
}

// NewWatcher creates a watcher for root.
func NewWatcher(root string) *Watcher {
	return &Watcher{root: ResolvePath(root), debounce: DefaultDebounce}
}

// WithDebounce sets the quiet period.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Watch starts watching and returns a channel of changes. The channel is
// closed when ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context) (<-chan Change, error) {
	info, err := os.Stat(w.root)
	if err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path error: %s is not a directory", w.root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.addTree(fsw, w.root); err != nil {
		fsw.Close()
		return nil, err
	}

	out := make(chan Change)
	go w.loop(ctx, fsw, out)
	return out, nil
}

// addTree registers root and every visible subdirectory.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(w.root, path); rel != "." && isHidden(rel) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, out chan<- Change) {
	defer close(out)
	defer fsw.Close()

	var mu sync.Mutex
	timers := make(map[string]*time.Timer)
	settled := make(chan Change)

	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	schedule := func(change Change) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[change.Path]; ok {
			t.Stop()
		}
		timers[change.Path] = time.AfterFunc(w.debounce, func() {
			mu.Lock()
			delete(timers, change.Path)
			mu.Unlock()
			// Re-check the file so a create followed by a remove reports the final state.
			if _, err := os.Stat(change.Path); err != nil {
				change.Removed = true
			}
			select {
			case settled <- change:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case change := <-settled:
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if change, ok := w.handleEvent(fsw, event); ok {
				schedule(change)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("File watcher error: %v", err)
		}
	}
}

// handleEvent converts an fsnotify event into a change. Directory creations
// are added to the watch list instead of being reported.
func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event) (Change, bool) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || isHidden(rel) {
		return Change{}, false
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return Change{}, false
		}
		if info.IsDir() {
			if err := w.addTree(fsw, event.Name); err != nil {
				logger.Warn("Failed to watch new directory %s: %v", event.Name, err)
			}
			return Change{}, false
		}
		return Change{Path: event.Name}, true
	case event.Op.Has(fsnotify.Write):
		return Change{Path: event.Name}, true
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		return Change{Path: event.Name, Removed: true}, true
	default:
		return Change{}, false
	}
}
