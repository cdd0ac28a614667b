package loop

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	// Debounce is the quiet period after the last change before a cycle runs.
	Debounce time.Duration

	// Ignore lists path segments whose changes never trigger a cycle.
	Ignore []string

	// OnCycle receives every cycle's outcome.
	OnCycle func(*Report, error)
}

// Watch runs a cycle after each debounced burst of changes under the target
// until ctx is cancelled. Cancellation is checked between cycles only: a
// running cycle always reaches its terminal ledger write. Storage errors
// stop the watch.
func (r *Runner) Watch(ctx context.Context, opts WatchOptions) error {
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	filter := r.newWatchFilter(opts.Ignore)
	if err := addTree(watcher, r.opts.TargetDir, filter); err != nil {
		return err
	}
	r.logger.Info("watching", "dir", r.opts.TargetDir, "debounce", opts.Debounce)

	timer := time.NewTimer(opts.Debounce)
	stopTimer(timer)
	pending := false

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("watch stopped")
			return nil

		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filter.ignored(evt.Name) {
				continue
			}
			if evt.Has(fsnotify.Create) {
				if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
					if err := addTree(watcher, evt.Name, filter); err != nil {
						r.logger.Warn("cannot watch new directory", "dir", evt.Name, "error", err)
					}
				}
			}
			r.logger.Debug("change detected", "path", evt.Name, "op", evt.Op.String())
			stopTimer(timer)
			timer.Reset(opts.Debounce)
			pending = true

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watch error", "error", err)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false

			// The cycle runs to completion even if ctx is cancelled meanwhile.
			rep, err := r.RunOnce(context.WithoutCancel(ctx))
			if opts.OnCycle != nil {
				opts.OnCycle(rep, err)
			}
			if err != nil {
				return err
			}
			drain(watcher)
		}
	}
}

// drain discards events queued while a cycle ran, which are mostly the
// cycle's own edits.
func drain(w *fsnotify.Watcher) {
	for {
		select {
		case <-w.Events:
		default:
			return
		}
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

type watchFilter struct {
	root    string
	baseDir string
	ignore  map[string]bool
}

func (r *Runner) newWatchFilter(ignore []string) watchFilter {
	f := watchFilter{root: r.opts.TargetDir, ignore: make(map[string]bool, len(ignore))}
	if abs, err := filepath.Abs(r.layout.BaseDir); err == nil {
		f.baseDir = abs
	}
	for _, seg := range ignore {
		f.ignore[seg] = true
	}
	return f
}

// ignored reports whether path is inside the data directory or has an
// ignored segment relative to the root.
func (f watchFilter) ignored(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return true
	}
	if f.baseDir != "" && (abs == f.baseDir || strings.HasPrefix(abs, f.baseDir+string(filepath.Separator))) {
		return true
	}
	rel, err := filepath.Rel(f.root, abs)
	if err != nil {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if f.ignore[seg] {
			return true
		}
	}
	return false
}

// addTree watches dir and every non-ignored directory below it.
func addTree(w *fsnotify.Watcher, dir string, f watchFilter) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && f.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
