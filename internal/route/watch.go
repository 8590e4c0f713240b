package route

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Watcher polls a route file for modifications. A file that fails to load
// is logged and the previous routes stay in effect.
type Watcher struct {
	path     string
	interval time.Duration
	logger   *slog.Logger
	onChange func(*RouteFile) error
	onError  func(error)
	lastMod  time.Time
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// OnReloadError is called with every failed reload, whether the file did
// not load or onChange rejected it.
func OnReloadError(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onError = fn }
}

// NewWatcher records the current modification time of path so that only
// later changes trigger onChange.
func NewWatcher(path string, interval time.Duration, logger *slog.Logger, onChange func(*RouteFile) error, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     path,
		interval: interval,
		logger:   logger,
		onChange: onChange,
		onError:  func(error) {},
	}
	for _, opt := range opts {
		opt(w)
	}
	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
	}
	return w
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Warn("route file unavailable", "path", w.path, "error", err)
		return
	}
	if !info.ModTime().After(w.lastMod) {
		return
	}
	w.lastMod = info.ModTime()

	rf, err := LoadFile(w.path)
	if err != nil {
		w.logger.Error("route file reload rejected", "path", w.path, "error", err)
		w.onError(err)
		return
	}
	if err := w.onChange(rf); err != nil {
		w.logger.Error("applying reloaded routes", "path", w.path, "error", err)
		w.onError(err)
		return
	}
	w.logger.Info("routes reloaded", "path", w.path, "routes", len(rf.Routes))
}
