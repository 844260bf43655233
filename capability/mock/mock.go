// Package mock provides a deterministic in-memory speech capability for
// tests and demos. Synthesis is simulated: callers script progress by
// emitting boundary and completion events on the returned utterances.
package mock

import (
	"sync"

	"github.com/readaloud/readaloud/engine"
)

// Capability implements engine.Capability with scriptable behavior.
// Support for native pause/resume and live rate/volume mutation can be
// switched off to exercise the engine's fallback paths.
type Capability struct {
	mu sync.Mutex

	unavailable bool
	speakErr    error

	pauseSupported      bool
	losesPausedState    bool
	liveRateSupported   bool
	liveVolumeSupported bool

	utterances []*Utterance
}

// New creates a capability with full native support.
func New() *Capability {
	return &Capability{
		pauseSupported:      true,
		liveRateSupported:   true,
		liveVolumeSupported: true,
	}
}

// SetAvailable toggles the availability probe result.
func (c *Capability) SetAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unavailable = !available
}

// SetSpeakError makes subsequent Speak calls fail synchronously.
func (c *Capability) SetSpeakError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speakErr = err
}

// SetPauseSupported toggles native pause support for new utterances.
func (c *Capability) SetPauseSupported(supported bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauseSupported = supported
}

// SetLosesPausedState makes new utterances forget their paused state, so
// Resume answers ErrNoPausedUtterance and the caller must restart.
func (c *Capability) SetLosesPausedState(loses bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.losesPausedState = loses
}

// SetLiveRateSupported toggles live rate mutation for new utterances.
func (c *Capability) SetLiveRateSupported(supported bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liveRateSupported = supported
}

// SetLiveVolumeSupported toggles the live gain path for new utterances.
func (c *Capability) SetLiveVolumeSupported(supported bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liveVolumeSupported = supported
}

// Speak implements engine.Capability.
func (c *Capability) Speak(text string, params engine.UtteranceParams, emit func(engine.Event)) (engine.Utterance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.speakErr != nil {
		return nil, c.speakErr
	}
	u := &Utterance{
		Text:   text,
		Params: params,

		emit:                emit,
		pauseSupported:      c.pauseSupported,
		losesPausedState:    c.losesPausedState,
		liveRateSupported:   c.liveRateSupported,
		liveVolumeSupported: c.liveVolumeSupported,
	}
	c.utterances = append(c.utterances, u)
	return u, nil
}

// Available implements engine.Capability.
func (c *Capability) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.unavailable
}

// Last returns the most recently issued utterance, or nil.
func (c *Capability) Last() *Utterance {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.utterances) == 0 {
		return nil
	}
	return c.utterances[len(c.utterances)-1]
}

// SpeakCount returns how many utterances were issued.
func (c *Capability) SpeakCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.utterances)
}

// Utterance is one scripted utterance. Tests drive it with EmitStart,
// EmitBoundary, Complete and Fail; after Cancel, Complete or Fail no
// further events are delivered.
type Utterance struct {
	Text   string
	Params engine.UtteranceParams

	mu     sync.Mutex
	emit   func(engine.Event)
	paused bool
	done   bool

	pauseSupported      bool
	losesPausedState    bool
	liveRateSupported   bool
	liveVolumeSupported bool

	rates []float64
	gains []float64
}

// Pause implements engine.Utterance.
func (u *Utterance) Pause() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.pauseSupported {
		return engine.ErrPauseUnsupported
	}
	u.paused = true
	return nil
}

// Resume implements engine.Utterance.
func (u *Utterance) Resume() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.losesPausedState || !u.paused {
		u.paused = false
		return engine.ErrNoPausedUtterance
	}
	u.paused = false
	return nil
}

// Cancel implements engine.Utterance.
func (u *Utterance) Cancel() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.done = true
	return nil
}

// SetRate implements engine.Utterance.
func (u *Utterance) SetRate(rate float64) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.liveRateSupported {
		return engine.ErrLiveRateUnsupported
	}
	u.rates = append(u.rates, rate)
	return nil
}

// SetVolume implements engine.Utterance.
func (u *Utterance) SetVolume(gain float64) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.liveVolumeSupported {
		return engine.ErrLiveVolumeUnsupported
	}
	u.gains = append(u.gains, gain)
	return nil
}

// Paused reports whether the utterance is natively paused.
func (u *Utterance) Paused() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.paused
}

// Cancelled reports whether the utterance was cancelled or finished.
func (u *Utterance) Cancelled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.done
}

// AppliedRates returns rates applied through the live path.
func (u *Utterance) AppliedRates() []float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]float64(nil), u.rates...)
}

// AppliedGains returns gains applied through the live path.
func (u *Utterance) AppliedGains() []float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]float64(nil), u.gains...)
}

// EmitStart delivers a started event.
func (u *Utterance) EmitStart() {
	u.deliver(engine.StartedEvent{})
}

// EmitBoundary delivers a word boundary at an utterance-local offset.
func (u *Utterance) EmitBoundary(charIndex int) {
	u.deliver(engine.BoundaryEvent{CharIndex: charIndex, Granularity: engine.GranularityWord})
}

// Complete delivers the final ended event.
func (u *Utterance) Complete() {
	if u.deliver(engine.EndedEvent{}) {
		u.mu.Lock()
		u.done = true
		u.mu.Unlock()
	}
}

// Fail delivers the final failure event.
func (u *Utterance) Fail(err error) {
	if u.deliver(engine.FailedEvent{Err: err}) {
		u.mu.Lock()
		u.done = true
		u.mu.Unlock()
	}
}

// deliver emits ev unless the utterance is already done. It reports
// whether the event was delivered.
func (u *Utterance) deliver(ev engine.Event) bool {
	u.mu.Lock()
	if u.done {
		u.mu.Unlock()
		return false
	}
	emit := u.emit
	u.mu.Unlock()

	emit(ev)
	return true
}
