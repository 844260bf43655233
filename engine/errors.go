package engine

import "errors"

// Error kinds surfaced by the playback engine.
var (
	// ErrInvalidInput indicates empty or oversized text was supplied.
	ErrInvalidInput = errors.New("invalid input text")
	// ErrQueueFull indicates the queue is at its configured capacity.
	ErrQueueFull = errors.New("queue is full")
	// ErrDuplicateItem indicates an item with identical text already exists.
	ErrDuplicateItem = errors.New("duplicate queue item")
	// ErrCapabilityUnavailable indicates the speech capability is missing
	// or inaccessible.
	ErrCapabilityUnavailable = errors.New("speech capability unavailable")
	// ErrCapabilityFailed indicates a mid-utterance failure reported by
	// the speech capability.
	ErrCapabilityFailed = errors.New("speech capability error")
	// ErrPersistence indicates a store read or write failed. Playback is
	// never interrupted by it; in-memory state stays authoritative.
	ErrPersistence = errors.New("persistence failure")
	// ErrMessaging indicates a cross-process notify failed. Delivery is
	// best-effort, so this is reported but never fatal.
	ErrMessaging = errors.New("messaging failure")

	// ErrItemNotFound indicates the referenced queue item does not exist.
	ErrItemNotFound = errors.New("queue item not found")
	// ErrIndexOutOfRange indicates an invalid queue index.
	ErrIndexOutOfRange = errors.New("queue index out of range")
	// ErrNoActiveSession indicates no playback session is loaded.
	ErrNoActiveSession = errors.New("no active playback session")
)

// Capability contract errors. Adapters return these so the coordinator
// can pick its recovery strategy.
var (
	// ErrPauseUnsupported indicates the capability cannot pause a live
	// utterance. The coordinator still records the pause position; resume
	// goes through the restart path.
	ErrPauseUnsupported = errors.New("native pause unsupported")
	// ErrNoPausedUtterance indicates native utterance state was lost and
	// there is nothing to resume. The coordinator restarts from the
	// recorded pause position instead.
	ErrNoPausedUtterance = errors.New("no paused utterance to resume")
	// ErrLiveRateUnsupported indicates the rate cannot be changed without
	// restarting the utterance.
	ErrLiveRateUnsupported = errors.New("live rate change unsupported")
	// ErrLiveVolumeUnsupported indicates there is no live gain path.
	ErrLiveVolumeUnsupported = errors.New("live volume change unsupported")
)

// EngineError wraps an error with the component and action that produced
// it, for logging and cross-process reporting.
type EngineError struct {
	Err       error
	Component string
	Action    string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Err == nil {
		return e.Component + ": " + e.Action + " failed"
	}
	return e.Component + ": " + e.Action + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error { return e.Err }

// wrapErr builds an EngineError around err.
func wrapErr(err error, component, action string) *EngineError {
	return &EngineError{Err: err, Component: component, Action: action}
}
