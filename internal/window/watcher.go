package window

import (
	"context"
	"sync"
	"time"
)

// DefaultPoll is how often the window is re-evaluated with no user action.
const DefaultPoll = 60 * time.Second

// Watcher re-checks a gate on a fixed interval and notifies subscribers
// when it opens or closes.
type Watcher struct {
	gate     Gate
	interval time.Duration
	now      func() time.Time

	mu   sync.RWMutex
	open bool
	subs []func(open bool)
}

// NewWatcher creates a watcher; a nil now uses time.Now.
func NewWatcher(g Gate, interval time.Duration, now func() time.Time) *Watcher {
	if interval <= 0 {
		interval = DefaultPoll
	}
	if now == nil {
		now = time.Now
	}
	return &Watcher{gate: g, interval: interval, now: now}
}

// Subscribe registers fn for state changes. fn is called once with the
// current state when Run starts.
func (w *Watcher) Subscribe(fn func(open bool)) {
	w.mu.Lock()
	w.subs = append(w.subs, fn)
	w.mu.Unlock()
}

// Open returns the state seen by the last evaluation.
func (w *Watcher) Open() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.open
}

// Run evaluates immediately and then on every tick until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.check(true)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(false)
		}
	}
}

func (w *Watcher) check(force bool) {
	open := w.gate.IsOpen(w.now())

	w.mu.Lock()
	changed := force || open != w.open
	w.open = open
	subs := append([]func(bool){}, w.subs...)
	w.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range subs {
		fn(open)
	}
}
