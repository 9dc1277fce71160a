package label

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Table whenever its backing file changes.
//
// The parent directory is watched rather than the file itself, because atomic writes
// replace the file through a rename and a file watch would be lost on the first save.
type Watcher struct {
	table    *Table
	w        *fsnotify.Watcher
	logger   *slog.Logger
	onReload func(Aliases)
	done     chan struct{}
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithWatchLogger sets the logger used for reload failures.
func WithWatchLogger(l *slog.Logger) WatchOption {
	return func(w *Watcher) { w.logger = l }
}

// WithOnReload registers a callback invoked after every successful reload.
func WithOnReload(fn func(Aliases)) WatchOption {
	return func(w *Watcher) { w.onReload = fn }
}

// Watch starts watching t's backing file. The watcher stops when ctx is done or Close is called.
func Watch(ctx context.Context, t *Table, opts ...WatchOption) (*Watcher, error) {
	if t.Path() == "" {
		return nil, fmt.Errorf("label: cannot watch an in-memory table")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(t.Path())); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{
		table:  t,
		w:      fw,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	w.logger = w.logger.With("component", "alias-watcher")

	go w.loop(ctx)
	return w, nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	target := filepath.Clean(w.table.Path())
	for {
		select {
		case <-ctx.Done():
			_ = w.w.Close()
			return
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if err := w.table.Load(); err != nil {
				w.logger.Warn("alias reload failed", "path", target, "error", err)
				continue
			}
			w.logger.Debug("aliases reloaded", "path", target, "count", len(w.table.Snapshot()))
			if w.onReload != nil {
				w.onReload(w.table.Snapshot())
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.logger.Warn("alias watcher error", "error", err)
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	err := w.w.Close()
	<-w.done
	return err
}
