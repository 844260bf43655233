package engine

// Capability is the host-provided speech synthesis service. The engine
// treats it as a black box: one utterance at a time, progress reported
// through events, and Cancel as the only universally reliable operation.
//
// Adapters must tolerate being asked for operations they do not support
// and answer with the corresponding contract error (ErrPauseUnsupported,
// ErrNoPausedUtterance, ErrLiveRateUnsupported, ErrLiveVolumeUnsupported)
// rather than failing silently.
type Capability interface {
	// Speak submits text for synthesis and returns a handle for the
	// utterance. Events for the utterance are delivered through emit,
	// possibly from the capability's own goroutine; EndedEvent or
	// FailedEvent is always last.
	Speak(text string, params UtteranceParams, emit func(Event)) (Utterance, error)

	// Available reports whether the capability can synthesize speech.
	Available() bool
}

// UtteranceParams are the synthesis parameters for one utterance.
type UtteranceParams struct {
	// Rate is the playback-rate multiplier, already clamped to [0.1, 4.0].
	Rate float64
	// Volume is the effective gain in [0.0, 1.0] after mute and domain
	// override resolution.
	Volume float64
	// Voice is an opaque voice reference; empty selects the default.
	Voice string
}

// Utterance is the handle for one in-flight speak request.
type Utterance interface {
	// Pause requests a native pause. May return ErrPauseUnsupported, or
	// succeed without the capability actually pausing; the confirmed
	// transition arrives as a PausedEvent.
	Pause() error

	// Resume requests a native resume. Returns ErrNoPausedUtterance when
	// the capability lost its paused state, in which case the caller
	// restarts from the recorded position.
	Resume() error

	// Cancel stops the utterance. No further events are delivered after
	// Cancel returns.
	Cancel() error

	// SetRate applies a new rate to the live utterance, or returns
	// ErrLiveRateUnsupported.
	SetRate(rate float64) error

	// SetVolume applies a new gain in [0.0, 1.0] to the live utterance,
	// or returns ErrLiveVolumeUnsupported.
	SetVolume(gain float64) error
}
