package bibliography

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultWatchDebounce = 500 * time.Millisecond

// ChangeFunc receives the project (first path segment under the watched
// root) whose bibliography or attachments changed.
type ChangeFunc func(ctx context.Context, project, path string)

// Watcher watches a projects root and reports debounced bibliography changes
// per project.
type Watcher struct {
	root     string
	debounce time.Duration
	onChange ChangeFunc
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]pendingChange
}

type pendingChange struct {
	path string
	at   time.Time
}

func NewWatcher(root string, debounce time.Duration, onChange ChangeFunc, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		root:     root,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		watcher:  fw,
		pending:  make(map[string]pendingChange),
	}
	if err := w.addTree(root); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is cancelled, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	tick := time.NewTicker(w.debounce / 4)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("bibliography_watch_error", "error", err)
		case now := <-tick.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if err := w.addTree(event.Name); err != nil {
			w.logger.Debug("bibliography_watch_add_failed", "path", event.Name, "error", err)
		}
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	if ext != ".bib" && ext != ".pdf" {
		return
	}
	project := w.projectOf(event.Name)
	if project == "" {
		return
	}

	w.mu.Lock()
	w.pending[project] = pendingChange{path: event.Name, at: time.Now()}
	w.mu.Unlock()
}

func (w *Watcher) flush(ctx context.Context, now time.Time) {
	w.mu.Lock()
	var ready []string
	paths := make(map[string]string)
	for project, change := range w.pending {
		if now.Sub(change.at) >= w.debounce {
			ready = append(ready, project)
			paths[project] = change.path
			delete(w.pending, project)
		}
	}
	w.mu.Unlock()

	for _, project := range ready {
		w.logger.Info("bibliography_changed", "project", project, "path", paths[project])
		w.onChange(ctx, project, paths[project])
	}
}

func (w *Watcher) projectOf(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	first, _, found := strings.Cut(filepath.ToSlash(rel), "/")
	if !found {
		return ""
	}
	return first
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		return w.watcher.Add(path)
	})
}
