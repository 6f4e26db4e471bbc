// Package watch rebuilds the site when files under the base directory
// change, debouncing bursts of events into a single rebuild.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last event before a rebuild.
const DefaultDebounce = 200 * time.Millisecond

// RebuildFunc runs one build.
type RebuildFunc func(ctx context.Context) error

// Loop watches a directory tree and triggers rebuilds. Rebuilds never
// overlap: events arriving during a rebuild queue at most one more.
type Loop struct {
	root     string
	filter   *Filter
	debounce time.Duration
	rebuild  RebuildFunc
	logger   *slog.Logger

	pending chan struct{}
	reloads chan struct{}
}

// New returns a loop over root. A zero debounce uses DefaultDebounce.
func New(root string, filter *Filter, debounce time.Duration, rebuild RebuildFunc, logger *slog.Logger) *Loop {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Loop{
		root:     root,
		filter:   filter,
		debounce: debounce,
		rebuild:  rebuild,
		logger:   logger,
		pending:  make(chan struct{}, 1),
		reloads:  make(chan struct{}, 1),
	}
}

// Reloads delivers a value after every successful rebuild. Signals that are
// not consumed in time collapse into one.
func (l *Loop) Reloads() <-chan struct{} { return l.reloads }

// Run watches until ctx is cancelled. A failing rebuild is logged and the
// loop keeps watching.
func (l *Loop) Run(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := l.addDirsRecursive(w, l.root); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.rebuildLoop(ctx)
	}()
	defer func() { <-done }()

	l.logger.Info("watcher: started", slog.String("root", l.root), slog.Duration("debounce", l.debounce))

	// debounceTimer is owned by this goroutine only.
	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	scheduleRebuild := func() {
		if debounceTimer == nil {
			debounceTimer = time.NewTimer(l.debounce)
			debounceCh = debounceTimer.C
		} else {
			debounceTimer.Reset(l.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			l.logger.Info("watcher: stopped")
			return nil

		case <-debounceCh:
			select {
			case l.pending <- struct{}{}:
			default:
				l.logger.Debug("watcher: rebuild already pending, coalesced")
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if l.filter.Ignored(ev.Name) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := l.addDirsRecursive(w, ev.Name); addErr != nil {
						l.logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						l.logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
				}
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}

			l.logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			scheduleRebuild()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (l *Loop) rebuildLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.pending:
		}

		start := time.Now()
		if err := l.rebuild(ctx); err != nil {
			l.logger.Error("watcher: rebuild failed", slog.String("error", err.Error()))
			continue
		}
		l.logger.Info("watcher: rebuilt", slog.Duration("duration", time.Since(start)))

		select {
		case l.reloads <- struct{}{}:
		default:
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher,
// skipping ignored trees.
func (l *Loop) addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != l.root && l.filter.Ignored(path) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
