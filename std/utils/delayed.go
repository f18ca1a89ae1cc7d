package utils

import (
	"sync"
	"time"
)

// DelayedWork is a single-shot, rearmable deferred task. Submit arms the
// task to run after a delay, replacing any deadline armed earlier; the
// callback runs at most once per arming, on the timer goroutine.
type DelayedWork struct {
	mu       sync.Mutex
	fn       func()
	timer    *time.Timer
	deadline time.Time
	gen      uint64
	armed    bool
}

func NewDelayedWork(fn func()) *DelayedWork {
	return &DelayedWork{fn: fn}
}

// Submit (re)arms the task to run after d.
func (w *DelayedWork) Submit(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.gen++
	w.armed = true
	w.deadline = time.Now().Add(d)

	gen := w.gen
	w.timer = time.AfterFunc(d, func() { w.fire(gen) })
}

// Remaining reports the time left until the armed deadline.
func (w *DelayedWork) Remaining() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.armed {
		return 0, false
	}

	d := time.Until(w.deadline)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Cancel disarms the task. A callback already started is not interrupted.
func (w *DelayedWork) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.gen++
	w.armed = false
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *DelayedWork) fire(gen uint64) {
	w.mu.Lock()
	if !w.armed || gen != w.gen {
		// rearmed or cancelled after this firing was scheduled
		w.mu.Unlock()
		return
	}
	w.armed = false
	w.mu.Unlock()

	w.fn()
}
