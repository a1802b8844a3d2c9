package config

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// ChangeFunc is invoked with the previous and the freshly loaded
// configuration whenever the watched file changes and still validates.
type ChangeFunc func(old, new Config)

// Watcher reloads a config file on filesystem changes.
// A reload that fails to parse or validate is logged and discarded;
// the previous configuration stays in effect.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	onChange ChangeFunc

	mu      sync.Mutex
	current Config

	done chan struct{}
	wg   sync.WaitGroup
}

// Watch loads path once and starts watching it for changes.
func Watch(path string, logger *slog.Logger, onChange ChangeFunc) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating fs watcher")
	}

	// Watch the directory, not the file: editors and config management
	// tools typically replace the file, which drops a file-level watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, errors.Wrap(err, "watching config directory")
	}

	w := &Watcher{
		path:     path,
		watcher:  fsw,
		logger:   logger,
		onChange: onChange,
		current:  cfg,
		done:     make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	return w, nil
}

// Current returns the latest valid configuration.
func (w *Watcher) Current() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err.Error())
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed, keeping previous",
			"path", w.path,
			"error", err.Error(),
		)
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	w.mu.Unlock()

	if old == cfg {
		return
	}

	w.logger.Info("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}

	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()

	return errors.Wrap(err, "closing fs watcher")
}
