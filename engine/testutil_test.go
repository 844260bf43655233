package engine

import (
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/readaloud/readaloud/schedule"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

// fakeClock is a manually advanced schedule.Clock.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) schedule.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward and fires due timers in order.
// Callbacks may schedule new timers; those fire too if already due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due *fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(c.now) {
				t.fired = true
				due = t
				break
			}
		}
		c.mu.Unlock()
		if due == nil {
			return
		}
		due.fn()
	}
}

// fakeCapability is a scriptable speech capability. Utterance behavior
// is configured up front; tests drive progress by emitting events on the
// returned utterances after Speak has returned.
type fakeCapability struct {
	mu          sync.Mutex
	unavailable bool
	speakErr    error

	// Behavior for utterances created by Speak.
	pauseErr  error
	resumeErr error
	rateErr   error
	volumeErr error

	utterances []*fakeUtterance
}

type fakeUtterance struct {
	mu        sync.Mutex
	text      string
	params    UtteranceParams
	emit      func(Event)
	paused    bool
	cancelled bool

	pauseErr  error
	resumeErr error
	rateErr   error
	volumeErr error

	rates []float64
	gains []float64
}

func (c *fakeCapability) Speak(text string, params UtteranceParams, emit func(Event)) (Utterance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.speakErr != nil {
		return nil, c.speakErr
	}
	u := &fakeUtterance{
		text:      text,
		params:    params,
		emit:      emit,
		pauseErr:  c.pauseErr,
		resumeErr: c.resumeErr,
		rateErr:   c.rateErr,
		volumeErr: c.volumeErr,
	}
	c.utterances = append(c.utterances, u)
	return u, nil
}

func (c *fakeCapability) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.unavailable
}

// last returns the most recent utterance.
func (c *fakeCapability) last() *fakeUtterance {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.utterances) == 0 {
		return nil
	}
	return c.utterances[len(c.utterances)-1]
}

func (c *fakeCapability) speakCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.utterances)
}

func (u *fakeUtterance) Pause() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.pauseErr != nil {
		return u.pauseErr
	}
	u.paused = true
	return nil
}

func (u *fakeUtterance) Resume() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.resumeErr != nil {
		return u.resumeErr
	}
	u.paused = false
	return nil
}

func (u *fakeUtterance) Cancel() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cancelled = true
	return nil
}

func (u *fakeUtterance) SetRate(rate float64) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.rateErr != nil {
		return u.rateErr
	}
	u.rates = append(u.rates, rate)
	return nil
}

func (u *fakeUtterance) SetVolume(gain float64) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.volumeErr != nil {
		return u.volumeErr
	}
	u.gains = append(u.gains, gain)
	return nil
}

func (u *fakeUtterance) boundary(charIndex int) {
	u.emit(BoundaryEvent{CharIndex: charIndex, Granularity: GranularityWord})
}

func (u *fakeUtterance) complete() {
	u.emit(EndedEvent{})
}

func (u *fakeUtterance) fail(err error) {
	u.emit(FailedEvent{Err: err})
}
