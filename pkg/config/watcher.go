package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/citysim/cyclekernel/pkg/telemetry"
)

// Watcher reports changes to a set of files and directories. Events are
// debounced so an editor's burst of writes produces one callback.
type Watcher struct {
	fsw    *fsnotify.Watcher
	files  map[string]bool
	dirs   map[string]bool
	delay  time.Duration
	logger *telemetry.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits for writes to settle.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.delay = d }
}

// NewWatcher creates a watcher with nothing registered.
func NewWatcher(logger *telemetry.Logger, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if logger == nil {
		logger = telemetry.Nop()
	}
	w := &Watcher{
		fsw:    fsw,
		files:  make(map[string]bool),
		dirs:   make(map[string]bool),
		delay:  500 * time.Millisecond,
		logger: logger.NewComponentLogger("config-watcher"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Add registers paths. A file is watched through its parent directory so
// that editors replacing the file are still seen; a directory reports
// changes to any file directly inside it.
func (w *Watcher) Add(paths ...string) error {
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		dir := abs
		if info.IsDir() {
			w.dirs[abs] = true
		} else {
			w.files[abs] = true
			dir = filepath.Dir(abs)
		}
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return nil
}

// Run blocks until ctx ends, calling onChange with the sorted set of
// changed paths after each burst of events. Callbacks run on the caller's
// goroutine, one at a time.
func (w *Watcher) Run(ctx context.Context, onChange func(changed []string)) error {
	timer := time.NewTimer(w.delay)
	timer.Stop()
	defer timer.Stop()

	pending := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !w.matches(event.Name) {
				continue
			}
			w.logger.Zerolog().Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Watched file changed")
			pending[filepath.Clean(event.Name)] = true
			timer.Reset(w.delay)

		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = make(map[string]bool)
			onChange(changed)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Zerolog().Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) matches(name string) bool {
	name = filepath.Clean(name)
	return w.files[name] || w.dirs[filepath.Dir(name)]
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
