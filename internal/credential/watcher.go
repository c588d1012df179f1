package credential

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// CacheWatcher watches the credential cache file and reloads the Manager
// when an external writer replaces it. This is how manual re-authorization
// reaches a running process: an operator (or the re-auth flow) writes a new
// refresh token to the cache file and the permanently-invalid latch clears
// without a restart.
type CacheWatcher struct {
	watcher *fsnotify.Watcher
	manager *Manager
	path    string
	logger  *slog.Logger

	done chan struct{}
}

// WatchCache starts watching the directory containing the cache file.
// The directory, not the file, is watched because atomic writers replace
// the file by rename, which would drop a file-level watch.
func WatchCache(manager *Manager, path string, logger *slog.Logger) (*CacheWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("credential: creating cache watcher: %w", err)
	}

	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("credential: watching %s: %w", filepath.Dir(path), err)
	}

	cw := &CacheWatcher{
		watcher: w,
		manager: manager,
		path:    path,
		logger:  logger,
		done:    make(chan struct{}),
	}

	go cw.run()

	logger.Info("credential cache watcher started", slog.String("path", path))

	return cw, nil
}

func (cw *CacheWatcher) run() {
	defer close(cw.done)

	for {
		select {
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}

			cw.handleEvent(ev)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}

			cw.logger.Warn("cache watcher error", slog.String("error", err.Error()))
		}
	}
}

// handleEvent reloads on create/write/rename of the cache file itself.
// The Manager's own saves also land here; ReloadFromCache treats an
// unchanged refresh token as a no-op, so self-triggering is harmless.
func (cw *CacheWatcher) handleEvent(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != filepath.Clean(cw.path) {
		return
	}

	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return
	}

	if err := cw.manager.ReloadFromCache(); err != nil {
		cw.logger.Warn("failed to reload credentials from cache",
			slog.String("error", err.Error()),
		)
	}
}

// Close stops the watcher and waits for the event loop to exit.
func (cw *CacheWatcher) Close() error {
	err := cw.watcher.Close()
	<-cw.done

	return err
}
