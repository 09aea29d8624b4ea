package inbox

import (
	"sort"
	"sync"
	"time"
)

// debouncer collects paths and flushes them once no new path has arrived for
// window. Repeated events for the same path collapse into one.
type debouncer struct {
	window  time.Duration
	paths   map[string]struct{}
	mu      sync.Mutex
	timer   *time.Timer
	onFlush func([]string)
	stopped bool
}

func newDebouncer(window time.Duration, onFlush func([]string)) *debouncer {
	return &debouncer{
		window:  window,
		paths:   make(map[string]struct{}),
		onFlush: onFlush,
	}
}

func (d *debouncer) Add(path string) {
	d.mu.Lock()

	if d.stopped {
		d.mu.Unlock()
		return
	}

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	d.paths[path] = struct{}{}

	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if !d.stopped {
			d.flushLocked()
		} else {
			d.mu.Unlock()
		}
	})

	d.mu.Unlock()
}

// flushLocked must be called with mu held; it releases mu before invoking onFlush.
func (d *debouncer) flushLocked() {
	paths := make([]string, 0, len(d.paths))
	for p := range d.paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	d.paths = make(map[string]struct{})

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	d.mu.Unlock()

	if len(paths) > 0 && d.onFlush != nil {
		d.onFlush(paths)
	}
}

// Stop cancels the pending timer and flushes whatever is queued.
func (d *debouncer) Stop() {
	d.mu.Lock()

	if d.stopped {
		d.mu.Unlock()
		return
	}

	d.stopped = true

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	if len(d.paths) > 0 {
		d.flushLocked()
	} else {
		d.mu.Unlock()
	}
}
