package engine

import "time"

// PlaybackSession is the single active reading operation. It is created
// by Start, mutated only by the Coordinator, and reset on stop, item
// completion, or queue clear.
//
// A session may span multiple utterances: after a pause whose native
// state was lost, the remaining text is re-issued as a new utterance and
// baseOffset rewrites its boundary offsets back into session coordinates.
type PlaybackSession struct {
	// Generation identifies the session. Events carrying a stale
	// generation are discarded instead of applied to a newer session.
	Generation uint64

	// Text is the full item text, immutable for the session's lifetime.
	Text string

	// State is the current playback state.
	State SessionState

	// PausePosition is the character offset recorded at pause time.
	// Valid only while State is StatePaused; always within [0, len(Text)].
	PausePosition int

	// StartedAt is when the session started speaking.
	StartedAt time.Time

	// PausedAt is when the session was last paused.
	PausedAt time.Time

	// TotalPausedDuration accumulates time spent paused.
	TotalPausedDuration time.Duration

	// PauseCount counts pause/resume cycles.
	PauseCount int

	// baseOffset is added to boundary offsets reported by the current
	// utterance. Zero for the initial utterance; set to the pause
	// position after a position-based restart.
	baseOffset int

	// lastBoundary is the highest session-coordinate boundary seen.
	lastBoundary int
}

// EndReason describes why a session ended.
type EndReason int

const (
	// EndCompleted means the utterance finished naturally.
	EndCompleted EndReason = iota
	// EndStopped means the user stopped playback.
	EndStopped
	// EndReplaced means a new session superseded this one.
	EndReplaced
	// EndFailed means the capability reported a mid-utterance error.
	EndFailed
)

// String returns the reason name.
func (r EndReason) String() string {
	switch r {
	case EndCompleted:
		return "completed"
	case EndStopped:
		return "stopped"
	case EndReplaced:
		return "replaced"
	case EndFailed:
		return "failed"
	default:
		return "unknown"
	}
}
