package snapshot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

const defaultDebounce = 100 * time.Millisecond

// ReloadEvent reports one attempt to reload the watched file.
type ReloadEvent struct {
	Path      string
	Err       error
	Timestamp time.Time
}

// Watcher reloads a snapshot file into a Store whenever it changes. A file
// that fails to parse leaves the previous snapshot in place.
type Watcher struct {
	path     string
	store    *Store
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	events   chan ReloadEvent
	stop     chan struct{}
	debounce time.Duration
}

// NewWatcher creates a watcher for path feeding store.
func NewWatcher(path string, store *Store, logger *zap.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(dir, filepath.Base(abs))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		path:     abs,
		store:    store,
		watcher:  fw,
		logger:   logger.Named("snapshot-watcher"),
		events:   make(chan ReloadEvent, 10),
		stop:     make(chan struct{}),
		debounce: defaultDebounce,
	}, nil
}

// Start begins watching. The parent directory is watched so that editors
// which replace the file on save are handled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}
	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and releases its resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

// Events returns the channel of reload outcomes.
func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

func (w *Watcher) processEvents(ctx context.Context) {
	var pending <-chan time.Time
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending = time.After(w.debounce)
			}
		case <-pending:
			pending = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("snapshot watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	s, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn("snapshot reload failed, keeping previous snapshot", zap.String("path", w.path), zap.Error(err))
	} else {
		w.store.Replace(s)
		w.logger.Info("snapshot reloaded", zap.String("path", w.path))
	}

	event := ReloadEvent{Path: w.path, Err: err, Timestamp: time.Now()}
	select {
	case w.events <- event:
	default:
	}
}
