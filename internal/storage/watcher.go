package storage

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ansuz/internal/models"
)

// DefaultReconcileDelay coalesces bursts of file events into one pass.
const DefaultReconcileDelay = 200 * time.Millisecond

// ChangeCallback is called with the ids whose content changed on disk.
type ChangeCallback func(ids []models.NoteID)

// Watch follows the active location of a files library and reports content
// files edited outside the application. It restarts on the new location after
// a relocation and returns when ctx is cancelled. For other backends it
// simply waits.
func (l *Library) Watch(ctx context.Context, delay time.Duration, cb ChangeCallback) error {
	for {
		store, relocated := l.watchTarget()
		if store == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-relocated:
				continue
			}
		}

		wctx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- WatchFiles(wctx, store, delay, l.logger, cb) }()

		select {
		case <-ctx.Done():
			cancel()
			<-done
			return nil
		case <-relocated:
			cancel()
			if err := <-done; err != nil {
				l.logger.Warn("watcher: stopped with error", slog.String("error", err.Error()))
			}
		case err := <-done:
			cancel()
			return err
		}
	}
}

// WatchFiles starts an fsnotify watcher on the store directory and processes
// file change events until ctx is cancelled. Events on content files arm a
// debounce timer; when it fires the store is reconciled and cb (if non-nil)
// receives the changed ids. Writes made through the store leave the checksum
// in step and are not reported.
func WatchFiles(ctx context.Context, store *FilesStore, delay time.Duration, logger *slog.Logger, cb ChangeCallback) error {
	if delay <= 0 {
		delay = DefaultReconcileDelay
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := store.Root()
	if err := w.Add(root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	// reconcileTimer is used to debounce bursts of events.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(delay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(delay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped", slog.String("root", root))
			return nil

		case <-reconcileCh:
			changed, err := store.Reconcile(ctx)
			if err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
				continue
			}
			if len(changed) > 0 && cb != nil {
				cb(changed)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, contentExt) || strings.HasPrefix(name, ".") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("watcher: content event", slog.String("file", name), slog.String("op", ev.Op.String()))
			scheduleReconcile()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
