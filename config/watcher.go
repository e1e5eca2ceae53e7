package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last file event
// before reloading. Editors often write a file in several steps.
const DefaultDebounce = 250 * time.Millisecond

var ErrWatcherStarted = errors.New("watcher already started")

// Watcher reloads a Loader whenever one of its files changes and hands the
// changes to a callback.
type Watcher struct {
	loader   *Loader
	fsw      *fsnotify.Watcher
	files    map[string]struct{}
	debounce time.Duration
	onChange ReloadCallback
	onError  func(error)
	started  atomic.Bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a reload. Zero or negative
// values keep DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithErrorHandler receives reload and watch errors. They are dropped
// otherwise.
func WithErrorHandler(h func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = h
	}
}

// NewWatcher watches the directories of every loader file. Directories are
// watched rather than files so that atomic renames are seen.
func NewWatcher(loader *Loader, onChange ReloadCallback, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		loader:   loader,
		fsw:      fsw,
		files:    map[string]struct{}{},
		debounce: DefaultDebounce,
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}

	var dirs []string
	for _, path := range loader.Paths() {
		abs, err := filepath.Abs(path)
		if err != nil {
			fsw.Close() //nolint:errcheck // best-effort cleanup
			return nil, fmt.Errorf("config: resolve %s: %w", path, err)
		}
		w.files[abs] = struct{}{}
		if dir := filepath.Dir(abs); !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close() //nolint:errcheck // best-effort cleanup
			return nil, fmt.Errorf("config: watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Run blocks until ctx is cancelled, reloading after file changes. It must
// be called once.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrWatcherStarted
	}
	defer w.fsw.Close() //nolint:errcheck // nothing to do on close failure

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			mu.Lock()
			if timer == nil {
				timer = time.AfterFunc(w.debounce, func() { w.reload(ctx) })
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.report(fmt.Errorf("config: watch: %w", err))
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	_, ok := w.files[abs]
	return ok
}

func (w *Watcher) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	doc, changes, err := w.loader.Reload(ctx)
	if err != nil {
		w.report(err)
		return
	}
	if len(changes) == 0 || w.onChange == nil {
		return
	}
	if err := w.onChange(ctx, doc, changes); err != nil {
		w.report(err)
	}
}

func (w *Watcher) report(err error) {
	if w.onError != nil {
		w.onError(err)
	}
}
