package pool

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/albedosehen/certvault/internal/certstore"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/events"
	"github.com/albedosehen/certvault/internal/observability"
)

// debounceWindow coalesces bursts of filesystem events (a folder copy
// touches many files) into one refresh per store.
const debounceWindow = 2 * time.Second

// fsWatcher implements Watcher on fsnotify.
type fsWatcher struct {
	paths    *Paths
	producer events.Producer
	logger   observability.Logger
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a pool watcher over the websites and apis trees.
func NewWatcher(paths *Paths, producer events.Producer, logger observability.Logger) (Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, vaulterrors.NewPoolError(vaulterrors.ErrCodeInternalError, paths.Root(), err)
	}

	w := &fsWatcher{
		paths:    paths,
		producer: producer,
		logger:   logger.WithFields(observability.Component("watcher")),
		watcher:  fw,
	}

	for _, store := range []certstore.Store{certstore.StoreWebsites, certstore.StoreAPIs} {
		dir, err := paths.StoreDir(store)
		if err != nil {
			continue
		}
		if err := fw.Add(dir); err != nil {
			// A missing store dir is tolerated; it may appear later, but
			// it will not be picked up without a restart.
			w.logger.Warn(context.Background(), "cannot watch store directory",
				observability.Store(store.String()),
				observability.Error(err))
		}
	}

	return w, nil
}

func (w *fsWatcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "pool watcher started")

	pending := make(map[certstore.Store]bool)
	timer := time.NewTimer(debounceWindow)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if store, ok := w.storeOf(event.Name); ok {
				if len(pending) == 0 {
					timer.Reset(debounceWindow)
				}
				pending[store] = true
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(ctx, err, "pool watcher error")

		case <-timer.C:
			for store := range pending {
				if err := w.producer.PublishRefresh(ctx, store, events.TriggerWatcher); err != nil {
					w.logger.Error(ctx, err, "failed to emit refresh from watcher",
						observability.Store(store.String()))
				}
			}
			pending = make(map[certstore.Store]bool)
		}
	}
}

// storeOf maps a changed path back to the store whose tree contains it.
func (w *fsWatcher) storeOf(path string) (certstore.Store, bool) {
	for _, store := range []certstore.Store{certstore.StoreWebsites, certstore.StoreAPIs} {
		dir, err := w.paths.StoreDir(store)
		if err != nil {
			continue
		}
		if len(path) >= len(dir) && path[:len(dir)] == dir {
			return store, true
		}
	}
	return "", false
}

func (w *fsWatcher) Close() error {
	return w.watcher.Close()
}
