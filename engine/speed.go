package engine

import (
	"math"
	"sync"

	"github.com/charmbracelet/log"
)

// Speed bounds and defaults.
var (
	MinSpeed     = 0.1
	MaxSpeed     = 4.0
	DefaultSpeed = 1.0

	// DefaultSpeedPresets are the fixed preset multipliers.
	DefaultSpeedPresets = []float64{0.5, 0.75, 1.0, 1.25, 1.5, 2.0}
)

// ChangeSource identifies what triggered a setting change.
type ChangeSource int

const (
	// SourceUser is a direct user adjustment (slider, keypress).
	SourceUser ChangeSource = iota
	// SourcePreset is a preset selection.
	SourcePreset
	// SourceStep is an increment/decrement step.
	SourceStep
	// SourceRestore is a value restored from the persistent store.
	SourceRestore
	// SourceRemote is a command from the messaging channel.
	SourceRemote
)

// String returns the source name.
func (s ChangeSource) String() string {
	switch s {
	case SourceUser:
		return "user"
	case SourcePreset:
		return "preset"
	case SourceStep:
		return "step"
	case SourceRestore:
		return "restore"
	case SourceRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// RateApplier applies a rate change to the active utterance, restarting
// the remaining text if the capability cannot change rate live.
type RateApplier interface {
	ApplyRate(rate float64)
}

// SpeedController owns the playback-rate value. It clamps and rounds
// incoming values, applies them to the active utterance, and schedules a
// debounced persist so slider drags issue a single write.
type SpeedController struct {
	mu      sync.RWMutex
	current float64
	step    float64
	presets []float64

	applier  RateApplier
	persist  func(value float64)
	onChange func(value float64, source ChangeSource)
	logger   *log.Logger
}

// NewSpeedController creates a controller at the default speed.
func NewSpeedController(logger *log.Logger) *SpeedController {
	if logger == nil {
		logger = log.Default()
	}
	return &SpeedController{
		current: DefaultSpeed,
		step:    0.1,
		presets: append([]float64(nil), DefaultSpeedPresets...),
		logger:  logger,
	}
}

// SetApplier attaches the component that pushes rate changes into the
// active utterance.
func (sc *SpeedController) SetApplier(a RateApplier) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.applier = a
}

// SetPersist attaches the debounced persistence hook.
func (sc *SpeedController) SetPersist(fn func(value float64)) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.persist = fn
}

// OnChange registers a change notification callback.
func (sc *SpeedController) OnChange(fn func(value float64, source ChangeSource)) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.onChange = fn
}

// clampSpeed clamps to [MinSpeed, MaxSpeed] and rounds to one decimal.
func clampSpeed(v float64) float64 {
	if v < MinSpeed {
		v = MinSpeed
	}
	if v > MaxSpeed {
		v = MaxSpeed
	}
	return math.Round(v*10) / 10
}

// SetSpeed sets the playback rate. Out-of-range values are clamped, never
// rejected. Returns the applied value.
func (sc *SpeedController) SetSpeed(value float64, source ChangeSource) float64 {
	sc.mu.Lock()
	applied := clampSpeed(value)
	changed := applied != sc.current
	sc.current = applied
	applier := sc.applier
	persist := sc.persist
	onChange := sc.onChange
	sc.mu.Unlock()

	if applier != nil {
		applier.ApplyRate(applied)
	}
	if changed {
		sc.logger.Debug("speed changed", "value", applied, "source", source)
		if persist != nil {
			persist(applied)
		}
		if onChange != nil {
			onChange(applied, source)
		}
	}
	return applied
}

// SetPresetSpeed selects a preset multiplier.
func (sc *SpeedController) SetPresetSpeed(value float64) float64 {
	return sc.SetSpeed(value, SourcePreset)
}

// IncreaseSpeed steps up by the configured increment. At the upper bound
// it is a no-op, not an error.
func (sc *SpeedController) IncreaseSpeed() float64 {
	sc.mu.RLock()
	next := sc.current + sc.step
	sc.mu.RUnlock()
	return sc.SetSpeed(next, SourceStep)
}

// DecreaseSpeed steps down by the configured increment, clamping at the
// lower bound.
func (sc *SpeedController) DecreaseSpeed() float64 {
	sc.mu.RLock()
	next := sc.current - sc.step
	sc.mu.RUnlock()
	return sc.SetSpeed(next, SourceStep)
}

// Restore loads a persisted value without writing it back.
func (sc *SpeedController) Restore(value float64) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.current = clampSpeed(value)
}

// Current returns the current speed.
func (sc *SpeedController) Current() float64 {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.current
}

// Presets returns the preset multipliers.
func (sc *SpeedController) Presets() []float64 {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	presets := make([]float64, len(sc.presets))
	copy(presets, sc.presets)
	return presets
}
