// Package schedule provides the timing primitives the playback engine
// relies on: a coalescing debouncer for persisted writes and a bounded
// retry policy. Both run against an injectable clock so they can be
// tested without real time passing.
package schedule

import (
	"sync"
	"time"
)

// Timer is the cancellable handle returned by a Clock.
type Timer interface {
	// Stop cancels the timer. It reports whether the timer was stopped
	// before firing.
	Stop() bool
}

// Clock abstracts time for schedulers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// realClock delegates to the time package.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

// Debouncer coalesces rapid writes per key. Each key has at most one
// pending timer; scheduling again cancels and reschedules it, so a burst
// of changes issues a single write with the final value (last write wins).
type Debouncer struct {
	mu      sync.Mutex
	clock   Clock
	window  time.Duration
	pending map[string]*pendingWrite
}

type pendingWrite struct {
	timer Timer
	write func()
}

// NewDebouncer creates a debouncer with the given coalescing window.
func NewDebouncer(clock Clock, window time.Duration) *Debouncer {
	if clock == nil {
		clock = RealClock()
	}
	return &Debouncer{
		clock:   clock,
		window:  window,
		pending: make(map[string]*pendingWrite),
	}
}

// Schedule queues write to run after the coalescing window. A previous
// pending write for the same key is cancelled first.
func (d *Debouncer) Schedule(key string, write func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
	}

	p := &pendingWrite{write: write}
	p.timer = d.clock.AfterFunc(d.window, func() {
		d.mu.Lock()
		if d.pending[key] == p {
			delete(d.pending, key)
		}
		d.mu.Unlock()
		write()
	})
	d.pending[key] = p
}

// Flush cancels all pending timers and runs their writes immediately.
// Called on shutdown so the final value of every key is persisted.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	writes := make([]func(), 0, len(d.pending))
	for key, p := range d.pending {
		p.timer.Stop()
		writes = append(writes, p.write)
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, write := range writes {
		write()
	}
}

// Pending reports whether a write is queued for key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Retry is a bounded retry policy with a fixed delay and optional
// exponential backoff. It holds explicit attempt state instead of
// open-coded timer chains.
type Retry struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool

	attempt int
}

// Next returns the delay before the upcoming attempt and whether another
// attempt is allowed. The first call returns a zero delay.
func (r *Retry) Next() (time.Duration, bool) {
	if r.attempt >= r.MaxAttempts {
		return 0, false
	}
	delay := time.Duration(0)
	if r.attempt > 0 {
		delay = r.Delay
		if r.Backoff {
			delay = r.Delay << (r.attempt - 1)
		}
	}
	r.attempt++
	return delay, true
}

// Attempt returns the number of attempts made so far.
func (r *Retry) Attempt() int { return r.attempt }

// Reset clears the attempt counter.
func (r *Retry) Reset() { r.attempt = 0 }

// Do runs fn until it succeeds or attempts are exhausted, sleeping on the
// provided clock between attempts. It returns the last error.
func (r *Retry) Do(clock Clock, fn func() error) error {
	if clock == nil {
		clock = RealClock()
	}
	var err error
	for {
		delay, ok := r.Next()
		if !ok {
			return err
		}
		if delay > 0 {
			wait := make(chan struct{})
			clock.AfterFunc(delay, func() { close(wait) })
			<-wait
		}
		if err = fn(); err == nil {
			return nil
		}
	}
}
