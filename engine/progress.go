package engine

import (
	"sync"
	"time"
)

// ProgressSnapshot is the derived progress state, recomputed on every
// boundary notification.
//
// CurrentCharacter is always "as of the last boundary" at whatever
// granularity the capability reports. No interpolation between
// boundaries is attempted; with sparse boundary events the reported
// position lags actual speech. That is a known precision limit, not a
// bug to smooth over.
type ProgressSnapshot struct {
	TotalCharacters           int
	CurrentCharacter          int
	TotalWords                int
	CurrentWord               int
	PercentComplete           float64
	TimeElapsedSeconds        float64
	EstimatedRemainingSeconds float64
}

// ProgressTracker derives reading progress from boundary, end, pause and
// resume notifications. It owns no playback control.
type ProgressTracker struct {
	mu sync.Mutex

	text       string
	totalChars int
	totalWords int

	current int // monotonically non-decreasing within a session
	ended   bool

	startedAt time.Time
	pausedAt  time.Time
	paused    bool
	pausedFor time.Duration

	now func() time.Time
}

// NewProgressTracker creates an empty tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{now: time.Now}
}

// Initialize resets all counters for a new session and starts the
// wall-clock timer.
func (t *ProgressTracker) Initialize(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.text = text
	t.totalChars = len(text)
	t.totalWords = CountWords(text)
	t.current = 0
	t.ended = false
	t.startedAt = t.now()
	t.paused = false
	t.pausedFor = 0
}

// OnBoundary records a boundary at the given session-coordinate character
// offset. Offsets below the current position are ignored so the position
// never rewinds, including across a pause/resume cycle.
func (t *ProgressTracker) OnBoundary(charIndex int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if charIndex > t.totalChars {
		charIndex = t.totalChars
	}
	if charIndex > t.current {
		t.current = charIndex
	}
}

// OnPause freezes the elapsed-time clock.
func (t *ProgressTracker) OnPause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.paused {
		t.paused = true
		t.pausedAt = t.now()
	}
}

// OnResume unfreezes the elapsed-time clock.
func (t *ProgressTracker) OnResume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		t.pausedFor += t.now().Sub(t.pausedAt)
		t.paused = false
	}
}

// OnEnd snaps all counters to completion.
func (t *ProgressTracker) OnEnd() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = t.totalChars
	t.ended = true
	if t.paused {
		t.pausedFor += t.now().Sub(t.pausedAt)
		t.paused = false
	}
}

// Position returns the current session-coordinate character offset.
func (t *ProgressTracker) Position() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Snapshot computes the current progress values.
func (t *ProgressTracker) Snapshot() ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := ProgressSnapshot{
		TotalCharacters:  t.totalChars,
		CurrentCharacter: t.current,
		TotalWords:       t.totalWords,
	}

	if t.ended {
		snap.CurrentWord = t.totalWords
		snap.PercentComplete = 100
	} else {
		snap.CurrentWord = WordsBefore(t.text, t.current)
		if t.totalChars > 0 {
			snap.PercentComplete = float64(t.current) / float64(t.totalChars) * 100
		}
	}

	if !t.startedAt.IsZero() {
		elapsed := t.now().Sub(t.startedAt) - t.pausedFor
		if t.paused {
			elapsed -= t.now().Sub(t.pausedAt)
		}
		if elapsed < 0 {
			elapsed = 0
		}
		snap.TimeElapsedSeconds = elapsed.Seconds()

		// Remaining time extrapolates from elapsed and percent complete;
		// undefined at zero progress.
		if snap.PercentComplete > 0 && !t.ended {
			total := snap.TimeElapsedSeconds / (snap.PercentComplete / 100)
			snap.EstimatedRemainingSeconds = total - snap.TimeElapsedSeconds
			if snap.EstimatedRemainingSeconds < 0 {
				snap.EstimatedRemainingSeconds = 0
			}
		}
	}

	return snap
}
