package engine

// SessionState represents the state of a playback session.
type SessionState int

const (
	// StateIdle indicates no playback session is active.
	StateIdle SessionState = iota
	// StateSpeaking indicates an utterance is being spoken.
	StateSpeaking
	// StatePaused indicates playback is paused at a known position.
	StatePaused
	// StateEnded indicates the session finished; terminal for the item.
	StateEnded
)

// String returns the string representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// IsActive returns true if a session is speaking or paused.
func (s SessionState) IsActive() bool {
	return s == StateSpeaking || s == StatePaused
}

// CanPause returns true if a pause request is valid.
func (s SessionState) CanPause() bool { return s == StateSpeaking }

// CanResume returns true if a resume request is valid.
func (s SessionState) CanResume() bool { return s == StatePaused }

// StateMachine validates playback state transitions. Ended is terminal
// for an item; a new session re-enters through Idle.
type StateMachine struct {
	current     SessionState
	transitions map[SessionState][]SessionState
	onEnter     map[SessionState]func()
}

// NewStateMachine creates a state machine in the Idle state.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[SessionState][]SessionState{
			StateIdle:     {StateSpeaking},
			StateSpeaking: {StatePaused, StateEnded, StateIdle},
			StatePaused:   {StateSpeaking, StateEnded, StateIdle},
			StateEnded:    {StateIdle},
		},
		onEnter: make(map[SessionState]func()),
	}
}

// Transition attempts to move to the given state and reports whether the
// transition was valid.
func (sm *StateMachine) Transition(to SessionState) bool {
	valid := false
	for _, s := range sm.transitions[sm.current] {
		if s == to {
			valid = true
			break
		}
	}
	if !valid {
		return false
	}

	sm.current = to
	if fn, ok := sm.onEnter[to]; ok && fn != nil {
		fn()
	}
	return true
}

// Current returns the current state.
func (sm *StateMachine) Current() SessionState { return sm.current }

// OnEnter registers a callback invoked after entering the given state.
func (sm *StateMachine) OnEnter(state SessionState, fn func()) {
	sm.onEnter[state] = fn
}
