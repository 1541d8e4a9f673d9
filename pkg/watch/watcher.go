// Package watch re-runs a callback when watched event log files change.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	hmerrors "github.com/logflow/hminer/pkg/errors"
)

// DefaultDebounce is the quiet period after the last write before a change fires.
const DefaultDebounce = 500 * time.Millisecond

// Watcher monitors files and calls OnChange once per burst of writes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]*fileState
	mu       sync.Mutex
	debounce time.Duration

	// OnChange is called with the absolute path of a changed file. Calls
	// for the same file never overlap.
	OnChange func(ctx context.Context, path string) error

	// OnError receives watcher errors and errors returned by OnChange.
	OnError func(path string, err error)
}

type fileState struct {
	lastModified time.Time
	size         int64
	processing   bool
}

// NewWatcher creates a watcher with the given debounce interval. A
// non-positive interval uses DefaultDebounce.
func NewWatcher(debounce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, hmerrors.Wrap(err, hmerrors.CodeStorage, "failed to create watcher")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		watcher:  fsWatcher,
		files:    make(map[string]*fileState),
		debounce: debounce,
	}, nil
}

// Watch adds a file. Its directory is watched so that editors replacing the
// file by rename are still seen.
func (w *Watcher) Watch(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return hmerrors.Wrap(err, hmerrors.CodeStorage, "failed to resolve path").WithContext("path", path)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return hmerrors.FileNotFound(absPath)
		}
		return hmerrors.Wrap(err, hmerrors.CodeStorage, "failed to stat file").WithContext("path", absPath)
	}

	w.mu.Lock()
	w.files[absPath] = &fileState{
		lastModified: stat.ModTime(),
		size:         stat.Size(),
	}
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(absPath)); err != nil {
		return hmerrors.Wrap(err, hmerrors.CodeStorage, "failed to watch directory").WithContext("path", absPath)
	}
	return nil
}

// Run processes file events until ctx is done. It closes the watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
		w.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			absPath, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}

			w.mu.Lock()
			state, isWatched := w.files[absPath]
			w.mu.Unlock()
			if !isWatched {
				continue
			}

			if t, exists := timers[absPath]; exists {
				t.Stop()
			}
			timers[absPath] = time.AfterFunc(w.debounce, func() {
				w.handleChange(ctx, absPath, state)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.reportError("", err)
		}
	}
}

func (w *Watcher) handleChange(ctx context.Context, path string, state *fileState) {
	if ctx.Err() != nil {
		return
	}

	w.mu.Lock()
	if state.processing {
		w.mu.Unlock()
		return
	}
	state.processing = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		state.processing = false
		w.mu.Unlock()
	}()

	stat, err := os.Stat(path)
	if err != nil {
		w.reportError(path, err)
		return
	}

	w.mu.Lock()
	unchanged := stat.ModTime().Equal(state.lastModified) && stat.Size() == state.size
	state.lastModified = stat.ModTime()
	state.size = stat.Size()
	w.mu.Unlock()
	if unchanged {
		return
	}

	if w.OnChange != nil {
		if err := w.OnChange(ctx, path); err != nil {
			w.reportError(path, err)
		}
	}
}

func (w *Watcher) reportError(path string, err error) {
	if w.OnError != nil {
		w.OnError(path, err)
	}
}

// Close stops the watcher. Run closes it too, so Close is only needed when
// Run was never started.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
