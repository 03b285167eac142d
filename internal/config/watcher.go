package config

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tliron/commonlog"
)

// DefaultDebounce is how long the watcher waits after the last write
// before reloading.
const DefaultDebounce = 100 * time.Millisecond

// ChangeHandler receives the configuration before and after a reload.
type ChangeHandler func(old, updated *Config)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the reload delay.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher reloads a configuration file when it changes on disk.
//
// The containing directory is watched rather than the file, so editors
// that replace the file on save keep triggering reloads.
type Watcher struct {
	path     string
	name     string
	debounce time.Duration
	onChange ChangeHandler
	log      commonlog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	current *Config
	timer   *time.Timer
	closed  bool

	closeCh chan struct{}
	doneCh  chan struct{}
}

// NewWatcher starts watching path. current is the configuration already
// loaded from it; onChange runs on every reload that changes it.
func NewWatcher(path string, current *Config, onChange ChangeHandler, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		name:     filepath.Base(abs),
		debounce: DefaultDebounce,
		onChange: onChange,
		log:      commonlog.GetLogger("deuce.config"),
		fsw:      fsw,
		current:  current,
		closeCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.processLoop()
	return w, nil
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.closeCh)
	err := w.fsw.Close()
	<-w.doneCh
	return err
}

func (w *Watcher) processLoop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != w.name {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if !errors.Is(err, fsnotify.ErrEventOverflow) {
				w.log.Warningf("watching %s: %v", w.path, err)
			}
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Errorf("reloading %s: %v", w.path, err)
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	old := w.current
	if old != nil && old.Equal(cfg) {
		w.mu.Unlock()
		return
	}
	w.current = cfg
	w.mu.Unlock()

	w.log.Infof("reloaded %s", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}
