package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/smazurov/framerec/internal/logging"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a config file with loader whenever it changes and hands
// each fresh value to the registered handlers, in registration order.
//
// The parent directory is watched, not the file, so a save done as
// write-temp-then-rename still triggers a reload.
type Watcher[T any] struct {
	path     string
	debounce time.Duration
	loader   func(path string) (T, error)
	onError  func(error)
	logger   logging.Logger

	mu       sync.Mutex
	handlers []handler[T]
	lastID   uint64

	fs       *fsnotify.Watcher
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

type handler[T any] struct {
	id uint64
	fn func(T)
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce sets how long the file must stay quiet before a reload.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.debounce = d
	}
}

// WithErrorHandler is called with every failed reload, after it is logged.
func WithErrorHandler[T any](fn func(error)) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.onError = fn
	}
}

// NewConfigWatcher creates a watcher for path. Nothing is watched until Start.
func NewConfigWatcher[T any](
	path string,
	loader func(path string) (T, error),
	logger logging.Logger,
	opts ...WatcherOption[T],
) *Watcher[T] {
	w := &Watcher[T]{
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		loader:   loader,
		logger:   logger,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload adds a handler and returns a function that removes it.
func (w *Watcher[T]) OnReload(fn func(T)) func() {
	w.mu.Lock()
	w.lastID++
	id := w.lastID
	w.handlers = append(w.handlers, handler[T]{id: id, fn: fn})
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.handlers = slices.DeleteFunc(w.handlers, func(h handler[T]) bool { return h.id == id })
	}
}

// Start watches the file's directory in a background goroutine.
func (w *Watcher[T]) Start() error {
	if w.path == "" || w.path == "." {
		return errors.New("config watcher: no file to watch")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("config watcher: watch %s: %w", dir, err)
	}
	w.fs = fsw

	w.logger.Info("Watching config file", "path", w.path, "debounce", w.debounce)
	go w.run()
	return nil
}

// Stop ends the watch. No handler runs after Stop returns. Safe to call
// more than once, and before Start.
func (w *Watcher[T]) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.quit)
		if w.fs == nil {
			return
		}
		err = w.fs.Close()
		<-w.done
	})
	return err
}

func (w *Watcher[T]) run() {
	defer close(w.done)

	quiet := time.NewTimer(w.debounce)
	quiet.Stop()
	defer quiet.Stop()

	for {
		select {
		case <-w.quit:
			w.logger.Debug("Config watcher stopped")
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			// Create is what a rename-over-the-original looks like
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.logger.Debug("Config file changed", "op", ev.Op.String())
			quiet.Reset(w.debounce)

		case <-quiet.C:
			w.reload()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

// reload loads once and passes the same value to every handler. A failed
// load leaves the handlers alone so the previous config stays in effect.
func (w *Watcher[T]) reload() {
	cfg, err := w.loader(w.path)
	if err != nil {
		w.logger.Warn("Config reload failed, keeping previous", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	handlers := slices.Clone(w.handlers)
	w.mu.Unlock()

	w.logger.Info("Config reloaded", "path", w.path, "handlers", len(handlers))
	for _, h := range handlers {
		h.fn(cfg)
	}
}
