package processor

import (
	"sync"
	"time"
)

// Flusher coalesces bursts of cart mutations into a single persistence
// write. Each notification resets a single-slot timer; the flush runs
// once the cart has been quiet for the configured delay. Close stops
// the timer and runs one final synchronous flush so no mutation is
// ever lost on shutdown.
type Flusher struct {
	mu     sync.Mutex
	delay  time.Duration
	flush  func()
	timer  *time.Timer
	closed bool
}

// NewFlusher creates a flusher invoking flush after delay of quiet.
func NewFlusher(delay time.Duration, flush func()) *Flusher {
	return &Flusher{delay: delay, flush: flush}
}

// Notify schedules a flush, replacing any pending one.
func (f *Flusher) Notify() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.delay, f.fire)
}

func (f *Flusher) fire() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.timer = nil
	f.mu.Unlock()

	f.flush()
}

// Close cancels any pending flush and runs a final one.
func (f *Flusher) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.mu.Unlock()

	f.flush()
}
