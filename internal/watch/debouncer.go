package watch

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer collects the paths of a burst of file events and hands them to
// the callback once the burst has been quiet for the interval. Each path is
// reported once, in the order it was first seen.
type Debouncer struct {
	interval time.Duration
	callback func(paths []string)
	logger   *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending []string
	seen    map[string]struct{}
}

// NewDebouncer creates a debouncer firing callback after interval of quiet.
func NewDebouncer(interval time.Duration, logger *slog.Logger, callback func(paths []string)) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Debouncer{
		interval: interval,
		callback: callback,
		logger:   logger,
		seen:     make(map[string]struct{}),
	}
}

// Trigger adds path to the pending burst and restarts the quiet period.
func (d *Debouncer) Trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, dup := d.seen[path]; !dup {
		d.seen[path] = struct{}{}
		d.pending = append(d.pending, path)
	}

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, d.fire)
}

// Pending returns the paths collected since the last callback.
func (d *Debouncer) Pending() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.pending...)
}

// fire takes the pending burst. A timer stopped too late finds the burst
// already taken and does nothing.
func (d *Debouncer) fire() {
	d.mu.Lock()
	paths := d.pending
	d.pending = nil
	d.seen = make(map[string]struct{})
	d.mu.Unlock()

	if len(paths) == 0 {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("debounced rebuild panicked", slog.Any("error", r), slog.Int("paths", len(paths)))
		}
	}()

	d.callback(paths)
}

// Stop cancels the pending callback and drops the collected paths.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	d.pending = nil
	d.seen = make(map[string]struct{})
}
