// Package watcher turns filesystem notifications for one directory into a
// small closed set of debounced events.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pevans/ventricle/logger"
)

// DefaultDebounce is the quiet window used when Options.Debounce is zero.
const DefaultDebounce = 250 * time.Millisecond

// Op is the kind of change observed for a path.
type Op int

const (
	Created Op = iota + 1
	Modified
	Removed
)

func (o Op) String() string {
	switch o {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Event is a debounced change to one file.
type Event struct {
	Op   Op
	Path string
}

// Options tunes a Watcher.
type Options struct {
	// Debounce is the quiet period after the last notification before
	// pending events are delivered. Negative disables debouncing.
	Debounce time.Duration
	// Filter reports whether a path is relevant. Nil accepts everything.
	Filter func(path string) bool
	Logger logger.Logger
}

// Watcher watches a single directory, non-recursively.
type Watcher struct {
	dir  string
	opts Options
	fsw  *fsnotify.Watcher

	closeOnce sync.Once
}

// New starts watching dir.
func New(dir string, opts Options) (*Watcher, error) {
	if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{dir: dir, opts: opts, fsw: fsw}, nil
}

// Close stops the underlying notifier. Run returns once it observes the
// closed channels.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
	})
	return err
}

// Run delivers events to handle until ctx is cancelled or the watcher is
// closed. handle is called from Run's goroutine, one event at a time, in
// path order within each debounced batch.
func (w *Watcher) Run(ctx context.Context, handle func(Event)) error {
	log := w.opts.Logger
	pending := make(map[string]Op)

	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		slices.Sort(paths)
		for _, p := range paths {
			handle(Event{Op: pending[p], Path: p})
		}
		clear(pending)
	}

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	log.Info("Watching pulse directory", logger.String("dir", w.dir), logger.Duration("debounce", w.opts.Debounce))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			op, relevant := classify(ev.Op)
			if !relevant {
				continue
			}
			path := filepath.Clean(ev.Name)
			if w.opts.Filter != nil && !w.opts.Filter(path) {
				continue
			}

			log.Debug("File event", logger.String("path", path), logger.String("op", op.String()))
			pending[path] = merge(pending[path], op)

			if w.opts.Debounce < 0 {
				flush()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
			} else {
				timer.Reset(w.opts.Debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			flush()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn("Watcher error", logger.String("dir", w.dir), logger.Error(err))
		}
	}
}

func classify(op fsnotify.Op) (Op, bool) {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return Removed, true
	case op.Has(fsnotify.Create):
		return Created, true
	case op.Has(fsnotify.Write):
		return Modified, true
	default:
		return 0, false
	}
}

// merge folds a new op into the pending op for the same path. The latest op
// wins, except that a write following a create is still a create.
func merge(prev, next Op) Op {
	if prev == Created && next == Modified {
		return Created
	}
	return next
}
