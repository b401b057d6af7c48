package tail

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultScanInterval = 2 * time.Second

type Options struct {
	Scanner      Scanner
	ScanInterval time.Duration
	Logger       *slog.Logger
}

// Watcher tails every matching file in one directory. Change notifications
// trigger reads immediately; a periodic rescan picks up files and growth the
// notifications missed.
type Watcher struct {
	dir      string
	scanner  Scanner
	interval time.Duration
	tailer   *Tailer
	logger   *slog.Logger
}

func NewWatcher(dir string, tailer *Tailer, opts Options) *Watcher {
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = DefaultScanInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		dir:      dir,
		scanner:  opts.Scanner,
		interval: opts.ScanInterval,
		tailer:   tailer,
		logger:   opts.Logger.With("component", "watcher", "dir", dir),
	}
}

// Run seeds the registry from the files already present, then delivers
// batches of new lines on out until ctx is cancelled. Batches for one file
// are delivered in the order the lines were appended.
func (w *Watcher) Run(ctx context.Context, out chan<- Batch) error {
	// Content present at start is history; files found afterwards are new.
	seeded := w.rescan(w.tailer.Seed)
	w.logger.Info("watching", "files", seeded)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	watching := w.addWatch(fsw)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.scanner.Match(ev.Name) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				if !w.tailer.Registry().IsKnown(ev.Name) {
					w.discover(ev.Name, w.tailer.Track)
				}
				w.poll(ctx, ev.Name, out)
			case ev.Has(fsnotify.Write):
				w.poll(ctx, ev.Name, out)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("notification error", "err", err)

		case <-ticker.C:
			if !watching {
				watching = w.addWatch(fsw)
			}
			w.rescan(w.tailer.Track)
			for _, path := range w.tailer.Registry().Paths() {
				if ctx.Err() != nil {
					return nil
				}
				w.poll(ctx, path, out)
			}
		}
	}
}

func (w *Watcher) addWatch(fsw *fsnotify.Watcher) bool {
	if err := fsw.Add(w.dir); err != nil {
		w.logger.Warn("cannot watch directory, relying on rescan", "err", err)
		return false
	}
	return true
}

// rescan registers files not yet known with register and returns how many
// are registered.
func (w *Watcher) rescan(register func(string) error) int {
	paths, err := w.scanner.Scan(w.dir)
	if err != nil {
		w.logger.Debug("rescan failed", "err", err)
		return w.tailer.Registry().Len()
	}
	for _, path := range paths {
		if !w.tailer.Registry().IsKnown(path) {
			w.discover(path, register)
		}
	}
	return w.tailer.Registry().Len()
}

func (w *Watcher) discover(path string, register func(string) error) {
	if err := register(path); err != nil {
		w.logger.Warn("cannot register file", "path", path, "err", err)
		return
	}
	w.logger.Debug("registered file", "path", path)
}

func (w *Watcher) poll(ctx context.Context, path string, out chan<- Batch) {
	batch, err := w.tailer.ReadNew(path)
	if err != nil {
		w.logger.Warn("read failed", "path", path, "err", err)
		return
	}
	if batch.Empty() {
		return
	}
	select {
	case out <- batch:
	case <-ctx.Done():
	}
}
