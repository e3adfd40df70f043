package search

import (
	"sync"
	"time"
)

// DefaultQuietWindow is the debounce interval used when none is configured.
const DefaultQuietWindow = 400 * time.Millisecond

// timer is the part of *time.Timer the gate needs.
type timer interface {
	Stop() bool
}

// afterFunc schedules f after d. time.AfterFunc in production, a fake clock in tests.
type afterFunc func(d time.Duration, f func()) timer

func realAfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

// Debouncer coalesces rapid query submissions into at most one effective
// query per quiet window. A new submission resets the timer and discards the
// pending value. The effective value is emitted only if it differs from the
// last emitted one.
//
// emit is called without the gate's lock held, from the timer goroutine or
// from Flush's caller.
type Debouncer struct {
	mu      sync.Mutex
	quiet   time.Duration
	after   afterFunc
	emit    func(query string)
	timer   timer
	gen     uint64 // Incremented on every Submit/Cancel; timers compare on fire
	pending string
	armed   bool
	last    string
	hasLast bool
}

// NewDebouncer creates a gate that calls emit with each effective query.
func NewDebouncer(quiet time.Duration, emit func(query string)) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuietWindow
	}
	return &Debouncer{
		quiet: quiet,
		after: realAfterFunc,
		emit:  emit,
	}
}

// Submit records a raw submission and restarts the quiet window.
func (d *Debouncer) Submit(query string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.gen++
	gen := d.gen
	d.pending = query
	d.armed = true
	d.timer = d.after(d.quiet, func() { d.fire(gen) })
}

// Flush emits the pending submission immediately instead of waiting for the
// quiet window to elapse.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if !d.armed {
		d.mu.Unlock()
		return
	}
	gen := d.gen
	d.mu.Unlock()
	d.fire(gen)
}

// Cancel discards any pending submission.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.gen++
	d.armed = false
	d.pending = ""
}

// Forget clears the memory of the last effective query, so submitting the
// same text again runs it again.
func (d *Debouncer) Forget() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = ""
	d.hasLast = false
}

// Pending reports whether a submission is waiting for the quiet window.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	// Superseded by a later Submit or Cancel
	if gen != d.gen || !d.armed {
		d.mu.Unlock()
		return
	}
	query := d.pending
	d.armed = false
	d.pending = ""
	d.stopLocked()
	if d.hasLast && query == d.last {
		d.mu.Unlock()
		return
	}
	d.last = query
	d.hasLast = true
	d.mu.Unlock()

	if d.emit != nil {
		d.emit(query)
	}
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
