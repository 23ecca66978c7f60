package playbook

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of fs events an editor save produces.
const debounceWindow = 250 * time.Millisecond

// Watcher hot-reloads the library when playbook files change. A reload
// that fails validation is logged and skipped; the running set is kept.
type Watcher struct {
	lib *Library
	log *slog.Logger
}

// NewWatcher creates a watcher for the library's directory.
func NewWatcher(lib *Library) *Watcher {
	return &Watcher{lib: lib, log: slog.Default()}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.lib.Dir()); err != nil {
		return err
	}
	w.log.Info("Watching playbook directory", "dir", w.lib.Dir())

	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			ext := filepath.Ext(ev.Name)
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
			} else {
				timer.Reset(debounceWindow)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			if err := w.lib.Reload(); err != nil {
				w.log.Error("Playbook reload rejected, keeping previous set", "error", err)
				continue
			}
			w.log.Info("Playbooks reloaded", "names", w.lib.Names())

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("Playbook watch error", "error", err)
		}
	}
}
