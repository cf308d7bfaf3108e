// Package watcher implements the optional task-file drop-directory
// hot-reload: an operator convenience that lets `enqueue --watch-dir`
// pick up new task files dropped into a directory without a repeated
// manual `enqueue` invocation. It never participates in the control
// loop's own state machine.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kadirpekel/supervisor/internal/logging"
)

// TaskFileWatcher notifies a callback when a new task file appears in dir.
type TaskFileWatcher struct {
	dir string
	log *slog.Logger
}

// New binds a TaskFileWatcher to a directory.
func New(dir string) *TaskFileWatcher {
	return &TaskFileWatcher{dir: dir, log: logging.Component("watcher")}
}

// Watch blocks, invoking onCreate once per debounced file create or
// write event, until ctx is cancelled.
func (w *TaskFileWatcher) Watch(ctx context.Context, onCreate func(path string)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create task-file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch task-file directory %q: %w", w.dir, err)
	}

	pending := make(map[string]*time.Timer)
	const debounce = 200 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			for _, t := range pending {
				t.Stop()
			}
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			path := event.Name
			if t, exists := pending[path]; exists {
				t.Stop()
			}
			pending[path] = time.AfterFunc(debounce, func() {
				onCreate(path)
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("task-file watcher error", "error", err, "dir", w.dir)
		}
	}
}

// IsTaskFile reports whether path has a recognized task-file extension.
func IsTaskFile(path string) bool {
	switch filepath.Ext(path) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
