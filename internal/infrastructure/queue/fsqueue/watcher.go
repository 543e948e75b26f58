package fsqueue

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports items published into the queue directory. It covers
// producers on the same filesystem when no message bus is configured.
type Watcher struct {
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// Watch starts watching the queue directory. Events arriving before Run are
// buffered by fsnotify.
func (q *Queue) Watch(logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create queue watcher: %w", err)
	}
	if err := w.Add(q.dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch queue dir: %w", err)
	}
	return &Watcher{watcher: w, logger: logger}, nil
}

// Run calls onItem for every published item until ctx is done. Temp files
// and removals are ignored; a rename into place arrives as Create.
func (w *Watcher) Run(ctx context.Context, onItem func()) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if strings.HasPrefix(filepath.Base(ev.Name), ".") {
				continue
			}
			onItem()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("queue_watch_error", "error", err)
		}
	}
}
