// Package debounce turns bursts of free-text input into a single delayed
// intent.
package debounce

import (
	"sync"
	"time"

	"github.com/acbmarket/feedctl/internal/clock"
)

// DefaultQuiet is the quiet period used when New is given a non-positive
// duration.
const DefaultQuiet = 500 * time.Millisecond

// Emitter holds at most one pending emission. Each Submit supersedes the
// previous pending value and restarts the quiet period.
type Emitter struct {
	clock clock.Clock
	quiet time.Duration
	emit  func(string)

	mu      sync.Mutex
	timer   *clock.Timer
	pending string
	armed   bool
	seq     uint64
	closed  bool
}

// New creates an Emitter that calls emit with the last submitted text once
// quiet has passed without another Submit. A nil clock means clock.Real().
func New(clk clock.Clock, quiet time.Duration, emit func(string)) *Emitter {
	if clk == nil {
		clk = clock.Real()
	}
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	return &Emitter{clock: clk, quiet: quiet, emit: emit}
}

// Submit schedules text for emission after the quiet period, cancelling
// any emission that was still pending. Empty text is debounced the same
// way. Submit after Close is ignored.
func (e *Emitter) Submit(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	e.stopLocked()
	e.seq++
	seq := e.seq
	e.pending = text
	e.armed = true
	e.timer = e.clock.AfterFunc(e.quiet, func() { e.fire(seq) })
}

// CancelPending drops the pending emission, if any, and releases its
// timer. It reports whether anything was pending.
func (e *Emitter) CancelPending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	was := e.armed
	e.stopLocked()
	return was
}

// Flush emits the pending value now instead of waiting for the quiet
// period. It reports whether anything was emitted.
func (e *Emitter) Flush() bool {
	e.mu.Lock()
	if !e.armed || e.closed {
		e.mu.Unlock()
		return false
	}
	text := e.pending
	e.stopLocked()
	e.mu.Unlock()

	e.emit(text)
	return true
}

// Pending returns the text waiting to be emitted.
func (e *Emitter) Pending() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending, e.armed
}

// Close cancels any pending emission and makes the Emitter inert. Call it
// when the consumer is torn down so no callback fires against it.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.closed = true
}

func (e *Emitter) fire(seq uint64) {
	e.mu.Lock()
	// A newer Submit, CancelPending, or Close got here first.
	if e.closed || !e.armed || seq != e.seq {
		e.mu.Unlock()
		return
	}
	text := e.pending
	e.armed = false
	e.pending = ""
	e.timer = nil
	e.mu.Unlock()

	e.emit(text)
}

func (e *Emitter) stopLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.armed = false
	e.pending = ""
	// Invalidate a callback that already left the timer but has not yet
	// taken the lock.
	e.seq++
}
