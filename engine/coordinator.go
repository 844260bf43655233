package engine

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Coordinator is the playback state machine. It owns the active
// PlaybackSession, drives the speech capability, and decides between
// native pause/resume and position-based restart.
//
// Native pause/resume is only a fast path: the recorded pause position is
// the source of truth, so a capability that loses its utterance state
// costs a restart from that position, never a lost session.
type Coordinator struct {
	mu sync.Mutex

	capability Capability
	speed      *SpeedController
	volume     *VolumeController
	tracker    *ProgressTracker

	machine   *StateMachine
	session   *PlaybackSession
	utterance Utterance
	voice     string

	// gen identifies the in-flight utterance. Events carrying a stale
	// gen arrive after cancellation and are discarded.
	gen uint64

	onState func(SessionState)
	onEnded func(reason EndReason, err error)

	now    func() time.Time
	logger *log.Logger
}

// NewCoordinator creates a coordinator wired to the given capability and
// setting controllers.
func NewCoordinator(capability Capability, speed *SpeedController, volume *VolumeController, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	c := &Coordinator{
		capability: capability,
		speed:      speed,
		volume:     volume,
		tracker:    NewProgressTracker(),
		machine:    NewStateMachine(),
		now:        time.Now,
		logger:     logger,
	}
	if speed != nil {
		speed.SetApplier(c)
	}
	if volume != nil {
		volume.SetApplier(c)
	}
	return c
}

// OnStateChange registers a callback invoked after each observable state
// transition.
func (c *Coordinator) OnStateChange(fn func(SessionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// OnEnded registers the end-of-session callback. The queue manager uses
// it to decide advance/halt policy; the coordinator never retries.
func (c *Coordinator) OnEnded(fn func(reason EndReason, err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEnded = fn
}

// SetVoice sets the opaque voice reference used for future utterances.
func (c *Coordinator) SetVoice(voice string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voice = voice
}

// Start begins a new playback session for text. Any existing session is
// cancelled first and its end is published before any event of the new
// session, so at most one utterance is ever active.
func (c *Coordinator) Start(text string) (PlaybackSession, error) {
	if strings.TrimSpace(text) == "" {
		return PlaybackSession{}, wrapErr(ErrInvalidInput, "coordinator", "start")
	}

	c.mu.Lock()
	if c.capability == nil || !c.capability.Available() {
		c.mu.Unlock()
		return PlaybackSession{}, wrapErr(ErrCapabilityUnavailable, "coordinator", "start")
	}

	var after []func()
	if c.session != nil && c.session.State.IsActive() {
		after = c.finishLocked(EndReplaced, nil)
	}

	c.machine = NewStateMachine()
	session := &PlaybackSession{
		Generation: c.gen + 1,
		Text:       text,
		State:      StateSpeaking,
		StartedAt:  c.now(),
	}
	c.session = session
	c.tracker.Initialize(text)
	c.machine.Transition(StateSpeaking)
	c.mu.Unlock()

	// The replaced session's end is published before the capability is
	// asked to speak, so no event of the new utterance can precede it.
	c.runAll(after)

	c.mu.Lock()
	if c.session != session {
		// A concurrent command ended the new session while the replaced
		// end was being published.
		c.mu.Unlock()
		return PlaybackSession{}, wrapErr(ErrNoActiveSession, "coordinator", "start")
	}
	if err := c.speakLocked(0); err != nil {
		c.session.State = StateEnded
		c.machine.Transition(StateEnded)
		c.session = nil
		c.mu.Unlock()
		return PlaybackSession{}, wrapErr(err, "coordinator", "speak")
	}
	snapshot := *session
	c.mu.Unlock()

	c.notifyState(StateSpeaking)
	return snapshot, nil
}

// Pause pauses the active session. It records the last known boundary
// position as the pause position before asking for a native pause, so a
// later resume never depends on the capability keeping state. Returns
// false when nothing is speaking.
func (c *Coordinator) Pause() bool {
	c.mu.Lock()
	if c.session == nil || c.session.State != StateSpeaking {
		c.mu.Unlock()
		return false
	}
	c.session.PausePosition = c.session.lastBoundary
	c.session.PausedAt = c.now()
	c.session.PauseCount++
	c.session.State = StatePaused
	c.machine.Transition(StatePaused)
	utt := c.utterance
	c.mu.Unlock()

	c.tracker.OnPause()
	if utt != nil {
		if err := utt.Pause(); err != nil {
			// Tolerated: the restart path covers capabilities that
			// cannot pause.
			c.logger.Debug("native pause unavailable", "err", err)
		}
	}
	c.notifyState(StatePaused)
	return true
}

// Resume continues a paused session. Native resume is attempted first;
// when the capability lost its utterance state the remaining text is
// re-issued from the recorded pause position and subsequent boundary
// offsets are rewritten so progress stays continuous.
func (c *Coordinator) Resume() error {
	c.mu.Lock()
	if c.session == nil || c.session.State != StatePaused {
		c.mu.Unlock()
		return wrapErr(ErrNoActiveSession, "coordinator", "resume")
	}
	c.session.TotalPausedDuration += c.now().Sub(c.session.PausedAt)

	if c.utterance != nil {
		if err := c.utterance.Resume(); err == nil {
			c.session.State = StateSpeaking
			c.machine.Transition(StateSpeaking)
			c.mu.Unlock()
			c.tracker.OnResume()
			c.notifyState(StateSpeaking)
			return nil
		} else if !errors.Is(err, ErrNoPausedUtterance) {
			c.logger.Debug("native resume failed, restarting from position", "err", err)
		}
	}

	// Native state is gone. Restart the remaining text, carrying the
	// current speed and volume settings forward. An audible splice at
	// the restart point is possible; it is reported, not smoothed over.
	pos := c.session.PausePosition
	if c.utterance != nil {
		_ = c.utterance.Cancel()
	}
	c.logger.Info("resuming via position-based restart", "position", pos)
	if err := c.speakLocked(pos); err != nil {
		after := c.finishLocked(EndFailed, err)
		c.mu.Unlock()
		c.runAll(after)
		return wrapErr(err, "coordinator", "resume restart")
	}
	c.session.State = StateSpeaking
	c.machine.Transition(StateSpeaking)
	c.mu.Unlock()

	c.tracker.OnResume()
	c.notifyState(StateSpeaking)
	return nil
}

// TogglePause pauses if speaking, resumes if paused, else does nothing.
func (c *Coordinator) TogglePause() {
	c.mu.Lock()
	state := StateIdle
	if c.session != nil {
		state = c.session.State
	}
	c.mu.Unlock()

	switch state {
	case StateSpeaking:
		c.Pause()
	case StatePaused:
		if err := c.Resume(); err != nil {
			c.logger.Warn("toggle resume failed", "err", err)
		}
	}
}

// Stop cancels playback outright and returns to Idle.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return
	}
	after := c.finishLocked(EndStopped, nil)
	c.mu.Unlock()
	c.runAll(after)
}

// State returns the current playback state.
func (c *Coordinator) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return StateIdle
	}
	return c.session.State
}

// Session returns a snapshot of the active session and whether one
// exists.
func (c *Coordinator) Session() (PlaybackSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return PlaybackSession{}, false
	}
	return *c.session, true
}

// Progress returns the current progress snapshot.
func (c *Coordinator) Progress() ProgressSnapshot {
	return c.tracker.Snapshot()
}

// ApplyRate implements RateApplier. A live rate change is tried first;
// capabilities without live-rate mutation get the remaining text
// restarted at the new rate from the last boundary, the same mechanism
// as the resume fallback.
func (c *Coordinator) ApplyRate(rate float64) {
	c.mu.Lock()
	if c.session == nil || c.session.State != StateSpeaking || c.utterance == nil {
		// A paused or idle session picks the new rate up at the next
		// utterance start.
		c.mu.Unlock()
		return
	}
	err := c.utterance.SetRate(rate)
	if err == nil {
		c.mu.Unlock()
		return
	}
	if !errors.Is(err, ErrLiveRateUnsupported) {
		c.mu.Unlock()
		c.logger.Warn("live rate change failed", "err", err)
		return
	}

	pos := c.session.lastBoundary
	_ = c.utterance.Cancel()
	c.logger.Info("restarting utterance at new rate", "rate", rate, "position", pos)
	if restartErr := c.speakLocked(pos); restartErr != nil {
		after := c.finishLocked(EndFailed, restartErr)
		c.mu.Unlock()
		c.runAll(after)
		return
	}
	c.mu.Unlock()
}

// ApplyGain implements GainApplier, forwarding the effective gain to the
// live utterance. Capabilities without a gain path apply it at the next
// utterance start.
func (c *Coordinator) ApplyGain(gain float64) {
	c.mu.Lock()
	utt := c.utterance
	c.mu.Unlock()
	if utt == nil {
		return
	}
	if err := utt.SetVolume(gain); err != nil && !errors.Is(err, ErrLiveVolumeUnsupported) {
		c.logger.Warn("live volume change failed", "err", err)
	}
}

// speakLocked issues a new utterance for the session text from offset.
// Callers hold the mutex. The capability must not emit events
// synchronously from inside Speak.
func (c *Coordinator) speakLocked(offset int) error {
	c.gen++
	gen := c.gen

	rate := DefaultSpeed
	if c.speed != nil {
		rate = c.speed.Current()
	}
	gain := 1.0
	if c.volume != nil {
		gain = c.volume.BaselineGain()
	}

	utt, err := c.capability.Speak(c.session.Text[offset:], UtteranceParams{
		Rate:   rate,
		Volume: gain,
		Voice:  c.voice,
	}, func(ev Event) {
		c.handleEvent(gen, ev)
	})
	if err != nil {
		return err
	}
	c.session.baseOffset = offset
	c.utterance = utt
	return nil
}

// handleEvent applies one capability notification. Events from a
// superseded utterance are discarded by generation.
func (c *Coordinator) handleEvent(gen uint64, ev Event) {
	c.mu.Lock()
	if gen != c.gen || c.session == nil {
		c.mu.Unlock()
		return
	}

	var after []func()
	switch ev := ev.(type) {
	case StartedEvent:
		c.logger.Debug("utterance started", "generation", gen)
	case BoundaryEvent:
		pos := c.session.baseOffset + ev.CharIndex
		// Voices may report offsets past the utterance end; the recorded
		// position must stay within the session text or the next restart
		// would slice out of range.
		if n := len(c.session.Text); pos > n {
			pos = n
		}
		if pos > c.session.lastBoundary {
			c.session.lastBoundary = pos
		}
		c.tracker.OnBoundary(pos)
	case PausedEvent:
		c.logger.Debug("native pause confirmed")
	case ResumedEvent:
		c.logger.Debug("native resume confirmed")
	case EndedEvent:
		after = c.finishLocked(EndCompleted, nil)
	case FailedEvent:
		after = c.finishLocked(EndFailed, ev.Err)
	}
	c.mu.Unlock()
	c.runAll(after)
}

// finishLocked ends the current session for the given reason and returns
// the notifications to run once the mutex is released. Stop returns to
// Idle; completion and failure land in Ended.
func (c *Coordinator) finishLocked(reason EndReason, err error) []func() {
	session := c.session
	if session == nil {
		return nil
	}

	if c.utterance != nil && reason != EndCompleted {
		_ = c.utterance.Cancel()
	}
	c.utterance = nil
	c.gen++ // invalidate in-flight events

	var finalState SessionState
	switch reason {
	case EndStopped:
		finalState = StateIdle
		session.PausePosition = 0
	default:
		finalState = StateEnded
	}
	session.State = finalState
	c.machine.Transition(StateEnded)
	c.machine.Transition(StateIdle)
	if reason == EndCompleted {
		c.tracker.OnEnd()
	}
	c.session = nil

	onState := c.onState
	onEnded := c.onEnded
	capErr := err
	if reason == EndFailed && capErr == nil {
		capErr = ErrCapabilityFailed
	}

	c.logger.Debug("session ended", "reason", reason, "err", err)
	return []func(){func() {
		if onState != nil {
			onState(finalState)
		}
		if onEnded != nil {
			onEnded(reason, capErr)
		}
	}}
}

func (c *Coordinator) notifyState(state SessionState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (c *Coordinator) runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
