package engine

// Speech capability notifications, decoded once at the adapter boundary
// into one variant per notification kind. Each variant carries only the
// fields valid for that kind.

// Event is a notification from the speech capability about the current
// utterance. Adapters deliver events through the callback passed to
// Speak; the coordinator serializes them.
type Event interface {
	isEvent()
}

// Granularity is the reporting granularity of a boundary event.
type Granularity int

const (
	// GranularityWord reports word-level boundaries.
	GranularityWord Granularity = iota
	// GranularitySentence reports sentence-level boundaries.
	GranularitySentence
)

// String returns the granularity name.
func (g Granularity) String() string {
	switch g {
	case GranularityWord:
		return "word"
	case GranularitySentence:
		return "sentence"
	default:
		return "unknown"
	}
}

// StartedEvent signals synthesis of the utterance has begun.
type StartedEvent struct{}

// BoundaryEvent signals synthesis reached a character offset within the
// current utterance. Offsets are utterance-local; the coordinator adds
// the session's base offset.
type BoundaryEvent struct {
	CharIndex   int
	Granularity Granularity
}

// PausedEvent confirms a native pause took effect.
type PausedEvent struct{}

// ResumedEvent confirms a native resume took effect.
type ResumedEvent struct{}

// EndedEvent signals the utterance finished. It is always the last event
// for an utterance.
type EndedEvent struct{}

// FailedEvent signals a mid-utterance error reported by the capability.
type FailedEvent struct {
	Err error
}

func (StartedEvent) isEvent()  {}
func (BoundaryEvent) isEvent() {}
func (PausedEvent) isEvent()   {}
func (ResumedEvent) isEvent()  {}
func (EndedEvent) isEvent()    {}
func (FailedEvent) isEvent()   {}
