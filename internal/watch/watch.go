// Package watch re-runs a schedule batch on a cron schedule and whenever
// the input file changes.
package watch

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	appLog "schedfill/internal/log"
	"schedfill/internal/model"
	"schedfill/internal/schedule"
)

const defaultDebounce = 250 * time.Millisecond

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// RunFunc processes one parsed batch.
type RunFunc func(ctx context.Context, events []model.Event)

// Options configure a Watcher.
type Options struct {
	// Source is a file path or http(s) URL. Only local files are watched
	// for changes.
	Source string

	// Refresh is a cron expression; empty disables timed runs.
	Refresh  string
	Location *time.Location

	Debounce time.Duration

	// Fetcher is used for URL sources.
	Fetcher *schedule.Fetcher
}

// Watcher serializes runs: a trigger that arrives while a run is in
// progress leaves at most one run pending.
type Watcher struct {
	opts Options
	run  RunFunc

	wake chan struct{}

	mu       sync.Mutex
	force    bool
	lastHash [sha256.Size]byte
	ran      bool
}

// New validates opts and returns a Watcher calling run for each batch.
func New(opts Options, run RunFunc) (*Watcher, error) {
	if opts.Source == "" || opts.Source == "-" {
		return nil, errors.New("watch: a file or URL source is required")
	}
	if run == nil {
		return nil, errors.New("watch: run func is required")
	}
	if opts.Refresh != "" {
		if _, err := cronParser.Parse(opts.Refresh); err != nil {
			return nil, fmt.Errorf("watch: invalid refresh %q: %w", opts.Refresh, err)
		}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	return &Watcher{
		opts: opts,
		run:  run,
		wake: make(chan struct{}, 1),
	}, nil
}

// Trigger requests a run. Unforced runs are skipped when the input did not
// change since the last run.
func (w *Watcher) Trigger(force bool) {
	w.mu.Lock()
	w.force = w.force || force
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done. It runs once at start.
func (w *Watcher) Run(ctx context.Context) error {
	if w.opts.Refresh != "" {
		c := cron.New(cron.WithParser(cronParser), cron.WithLocation(w.opts.Location))
		if _, err := c.AddFunc(w.opts.Refresh, func() {
			appLog.Debug("watch: cron tick", "refresh", w.opts.Refresh)
			w.Trigger(true)
		}); err != nil {
			return fmt.Errorf("watch: add cron: %w", err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
		appLog.Info("watch: cron started", "refresh", w.opts.Refresh, "tz", w.opts.Location.String())
	}

	if !schedule.IsURL(w.opts.Source) {
		fw, err := w.watchFile(ctx)
		if err != nil {
			return err
		}
		defer fw.Close()
	}

	w.Trigger(true)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.wake:
			w.once(ctx)
		}
	}
}

func (w *Watcher) once(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	w.mu.Lock()
	force := w.force
	w.force = false
	w.mu.Unlock()

	text, err := schedule.ReadInput(ctx, w.opts.Fetcher, w.opts.Source)
	if err != nil {
		appLog.Error("watch: read input failed", err, "source", w.opts.Source)
		return
	}

	h := sha256.Sum256([]byte(text))
	if !force && w.ran && h == w.lastHash {
		appLog.Debug("watch: input unchanged; skipping run", "source", w.opts.Source)
		return
	}
	w.lastHash, w.ran = h, true

	events := schedule.Parse(text)
	appLog.Info("watch: running batch", "source", w.opts.Source, "event_count", len(events), "forced", force)
	w.run(ctx, events)
}

// watchFile watches the source's directory, so editors that replace the
// file on save are still seen.
func (w *Watcher) watchFile(ctx context.Context) (*fsnotify.Watcher, error) {
	dir := filepath.Dir(w.opts.Source)
	file := filepath.Base(w.opts.Source)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: init: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch: add %s: %w", dir, err)
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.opts.Debounce, func() { w.Trigger(false) })
	}

	go func() {
		defer func() {
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timerMu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != file {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					appLog.Debug("watch: input changed", "path", ev.Name, "op", ev.Op.String())
					debounce()
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				if errors.Is(err, fsnotify.ErrEventOverflow) {
					debounce()
					continue
				}
				appLog.Warn("watch: fsnotify error", "err", err, "dir", dir)
			}
		}
	}()

	appLog.Info("watch: watching input", "path", w.opts.Source)
	return fw, nil
}
