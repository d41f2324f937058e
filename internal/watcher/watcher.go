// Package watcher ingests analysis documents as they appear in a results
// directory.
//
// The observer goroutine turns fsnotify creation events into WatchEvents on
// a bounded channel; a fixed pool of workers drains it through the ingest
// pipeline. A full queue blocks the observer (backpressure) but the observer
// itself never reads files or touches the store.
//
// Files present before Run starts are not processed; run the batch importer
// for those. Producers should write documents atomically (write to a temp
// name, then rename), since an event may fire before a plain write finishes
// and a parse failure is not retried.
//
// Typical usage:
//
//	w := watcher.New(dir, pipeline, watcher.Options{Workers: 4, QueueSize: 64})
//	if err := w.Run(ctx); err != nil { ... } // *ObserverFailure
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/minseodaa/bankdrop/internal/ingest"
	"github.com/minseodaa/bankdrop/internal/model"
)

// Processor handles one file. *ingest.Pipeline implements it.
type Processor interface {
	Process(ctx context.Context, source ingest.Source, path string) model.Outcome
	// Discard records a file that was seen but will not be processed.
	Discard(source ingest.Source, path string, reason error) model.Outcome
}

// ErrStopped is the reason given for events dropped on shutdown.
var ErrStopped = errors.New("watcher stopped before the file was processed")

// WatchEvent is a qualifying file-system notification.
type WatchEvent struct {
	Path string
	Op   fsnotify.Op
}

// ObserverFailure means the directory can no longer be observed. No further
// files will be ingested until the watcher is restarted.
type ObserverFailure struct {
	Dir string
	Err error
}

func (e *ObserverFailure) Error() string {
	return fmt.Sprintf("watch %s: observer failed: %v", e.Dir, e.Err)
}

func (e *ObserverFailure) Unwrap() error { return e.Err }

// ErrDirGone is wrapped by the ObserverFailure returned when the watched
// directory is removed or renamed.
var ErrDirGone = errors.New("watched directory removed")

// Options tunes the watcher.
type Options struct {
	// Extension filters file names, case-insensitive. Default: ".json".
	Extension string
	// Workers is the size of the processing pool. Default: 4.
	Workers int
	// QueueSize bounds pending events. Default: 64.
	QueueSize int
	// HealthInterval is how often the directory is checked for existence,
	// for platforms that do not report removal of the watched directory.
	// Default: 1s.
	HealthInterval time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Extension == "" {
		o.Extension = ".json"
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher observes one directory. Run may be called once.
type Watcher struct {
	dir  string
	proc Processor
	opts Options
	log  *slog.Logger

	state atomic.Int32
	busy  atomic.Int32
	ready chan struct{}

	events     atomic.Int64
	processed  atomic.Int64
	inserted   atomic.Int64
	skipped    atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
	vanished   atomic.Int64
	dropped    atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Events     int64 `json:"events"`
	Processed  int64 `json:"processed"`
	Inserted   int64 `json:"inserted"`
	Skipped    int64 `json:"skipped"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
	Vanished   int64 `json:"vanished"`
	Dropped    int64 `json:"dropped"`
}

// New creates a Watcher for dir. Call Run to start it.
func New(dir string, proc Processor, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{
		dir:   filepath.Clean(dir),
		proc:  proc,
		opts:  opts,
		log:   opts.Logger,
		ready: make(chan struct{}),
	}
}

// Ready is closed once the directory is being observed.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	s := State(w.state.Load())
	if s == StateWatching && w.busy.Load() > 0 {
		return StateProcessing
	}
	return s
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Events:     w.events.Load(),
		Processed:  w.processed.Load(),
		Inserted:   w.inserted.Load(),
		Skipped:    w.skipped.Load(),
		Duplicates: w.duplicates.Load(),
		Failed:     w.failed.Load(),
		Vanished:   w.vanished.Load(),
		Dropped:    w.dropped.Load(),
	}
}

// Run observes the directory until ctx is cancelled (returns nil) or the
// observer fails (returns *ObserverFailure). It waits for in-flight files
// before returning. On cancellation, queued events that no worker has
// started are dropped; on observer failure they are still processed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.state.Store(int32(StateStopped))

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return &ObserverFailure{Dir: w.dir, Err: err}
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return &ObserverFailure{Dir: w.dir, Err: err}
	}

	w.state.Store(int32(StateWatching))
	close(w.ready)
	w.log.Info("watch: started", "dir", w.dir, "workers", w.opts.Workers, "queue", w.opts.QueueSize)

	queue := make(chan WatchEvent, w.opts.QueueSize)
	var wg sync.WaitGroup
	for i := 0; i < w.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.work(ctx, queue)
		}()
	}

	err = w.observe(ctx, fsw, queue)
	close(queue)
	wg.Wait()

	if err != nil {
		w.log.Error("watch: stopped", "dir", w.dir, "error", err)
		return err
	}
	w.log.Info("watch: stopped", "dir", w.dir)
	return nil
}

func (w *Watcher) observe(ctx context.Context, fsw *fsnotify.Watcher, queue chan<- WatchEvent) error {
	health := time.NewTicker(w.opts.HealthInterval)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-health.C:
			if err := w.checkDir(); err != nil {
				return err
			}

		case ev, ok := <-fsw.Events:
			if !ok {
				return &ObserverFailure{Dir: w.dir, Err: errors.New("event channel closed")}
			}
			if filepath.Clean(ev.Name) == w.dir && (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) {
				return &ObserverFailure{Dir: w.dir, Err: ErrDirGone}
			}
			we, ok := w.qualify(ev)
			if !ok {
				continue
			}
			w.events.Add(1)
			w.log.Debug("watch: event", "path", we.Path, "op", we.Op.String())
			select {
			case queue <- we:
			case <-ctx.Done():
				w.dropped.Add(1)
				w.proc.Discard(ingest.SourceWatch, we.Path, ErrStopped)
				return nil
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return &ObserverFailure{Dir: w.dir, Err: errors.New("error channel closed")}
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// The kernel queue overflowed; events were lost but the
				// watch itself is intact.
				w.log.Warn("watch: events lost", "dir", w.dir, "error", err)
				continue
			}
			return &ObserverFailure{Dir: w.dir, Err: err}
		}
	}
}

// qualify keeps creation events (which include renames into the directory)
// for files with the configured extension.
func (w *Watcher) qualify(ev fsnotify.Event) (WatchEvent, bool) {
	if !ev.Has(fsnotify.Create) {
		return WatchEvent{}, false
	}
	if !strings.HasSuffix(strings.ToLower(ev.Name), strings.ToLower(w.opts.Extension)) {
		return WatchEvent{}, false
	}
	return WatchEvent{Path: ev.Name, Op: ev.Op}, true
}

func (w *Watcher) checkDir() error {
	info, err := os.Stat(w.dir)
	if os.IsNotExist(err) {
		return &ObserverFailure{Dir: w.dir, Err: ErrDirGone}
	}
	if err != nil {
		return &ObserverFailure{Dir: w.dir, Err: err}
	}
	if !info.IsDir() {
		return &ObserverFailure{Dir: w.dir, Err: fmt.Errorf("%s is no longer a directory", w.dir)}
	}
	return nil
}

func (w *Watcher) work(ctx context.Context, queue <-chan WatchEvent) {
	// Files already picked up finish even if shutdown starts meanwhile.
	procCtx := context.WithoutCancel(ctx)
	for ev := range queue {
		if ctx.Err() != nil {
			w.dropped.Add(1)
			w.proc.Discard(ingest.SourceWatch, ev.Path, ErrStopped)
			continue
		}
		w.handle(procCtx, ev)
	}
}

func (w *Watcher) handle(ctx context.Context, ev WatchEvent) {
	w.busy.Add(1)
	defer w.busy.Add(-1)

	// Editors and temp-file churn create files that are gone moments later.
	info, err := os.Stat(ev.Path)
	if err != nil {
		w.vanished.Add(1)
		w.proc.Discard(ingest.SourceWatch, ev.Path, fmt.Errorf("file vanished before processing: %w", err))
		return
	}
	if !info.Mode().IsRegular() {
		w.log.Debug("watch: not a regular file", "path", ev.Path)
		return
	}

	out := w.proc.Process(ctx, ingest.SourceWatch, ev.Path)
	w.processed.Add(1)
	switch out.Status {
	case model.StatusInserted:
		w.inserted.Add(1)
	case model.StatusSkipped:
		w.skipped.Add(1)
	case model.StatusDuplicate:
		w.duplicates.Add(1)
	default:
		w.failed.Add(1)
	}
}
