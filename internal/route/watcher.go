package route

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"relaymux-go/internal/metrics"
)

const defaultDebounce = 200 * time.Millisecond

// ReloadFunc produces a fresh route set, typically by re-reading the config
// file. It runs after the debounce window closes.
type ReloadFunc func() ([]Route, error)

// Watcher swaps new routes into a Table when the backing file changes on
// disk. A failed reload keeps the current table.
type Watcher struct {
	path     string
	table    *Table
	reload   ReloadFunc
	debounce time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for the file at path. debounce bounds how
// often rapid successive writes trigger a reload; zero or negative uses the
// default. m may be nil to disable metrics.
func NewWatcher(path string, table *Table, reload ReloadFunc, debounce time.Duration, logger *slog.Logger, m *metrics.Metrics) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		path:     path,
		table:    table,
		reload:   reload,
		debounce: debounce,
		logger:   logger.With("component", "route_watcher"),
		metrics:  m,
	}
}

// Watch blocks processing file events until ctx is canceled. The parent
// directory is watched rather than the file itself, so editors that replace
// the file on save keep triggering events.
func (w *Watcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()
	defer w.stopTimer()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.logger.Info("route reload watcher started",
		"path", w.path,
		"debounce_ms", w.debounce.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("route reload watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("config file event",
				"op", event.Op.String(),
				"name", event.Name,
			)
			w.scheduleReload()

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed")
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	return filepath.Clean(event.Name) == filepath.Clean(w.path)
}

// scheduleReload arms the debounce timer, pushing it back if already armed.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.applyReload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) applyReload() {
	routes, err := w.reload()
	if err != nil {
		w.countReload("failure")
		w.logger.Error("route reload failed, keeping current table", "error", err)
		return
	}
	w.table.Replace(routes)
	w.countReload("success")
	w.logger.Info("route table reloaded", "routes", len(routes))
}

func (w *Watcher) countReload(result string) {
	if w.metrics != nil {
		w.metrics.RouteReloads.WithLabelValues(result).Inc()
	}
}
