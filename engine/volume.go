package engine

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/readaloud/readaloud/schedule"
)

// Volume bounds and defaults.
const (
	MinVolume = 0
	MaxVolume = 100

	// DefaultUnmuteVolume is substituted when unmuting would otherwise
	// restore a zero volume.
	DefaultUnmuteVolume = 50

	fadeSteps    = 8
	fadeInterval = 5 * time.Millisecond
)

// GainApplier pushes an effective gain in [0.0, 1.0] into the active
// utterance's gain path.
type GainApplier interface {
	ApplyGain(gain float64)
}

// VolumeController owns the volume value, the mute flag, and per-site
// overrides. Transitions fade over tens of milliseconds when a live gain
// path is attached; otherwise they apply as an instantaneous step.
type VolumeController struct {
	mu       sync.RWMutex
	current  int
	muted    bool
	previous int

	overrides map[string]float64
	origin    string // active site origin for effective-volume resolution

	applier          GainApplier
	lastGain         float64
	persist          func(volume int, muted bool)
	persistOverrides func(map[string]float64)
	onChange         func(volume int, muted bool, source ChangeSource)

	clock   schedule.Clock
	fadeGen uint64
	logger  *log.Logger
}

// NewVolumeController creates a controller at full volume.
func NewVolumeController(logger *log.Logger) *VolumeController {
	if logger == nil {
		logger = log.Default()
	}
	return &VolumeController{
		current:   MaxVolume,
		previous:  MaxVolume,
		overrides: make(map[string]float64),
		clock:     schedule.RealClock(),
		logger:    logger,
	}
}

// SetApplier attaches the live gain path.
func (vc *VolumeController) SetApplier(a GainApplier) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.applier = a
}

// SetPersist attaches the debounced persistence hooks.
func (vc *VolumeController) SetPersist(volume func(int, bool), overrides func(map[string]float64)) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.persist = volume
	vc.persistOverrides = overrides
}

// OnChange registers a change notification callback.
func (vc *VolumeController) OnChange(fn func(volume int, muted bool, source ChangeSource)) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.onChange = fn
}

// SetClock replaces the fade clock.
func (vc *VolumeController) SetClock(c schedule.Clock) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.clock = c
}

// SetVolume sets the global volume. Values are clamped to [0, 100]. A
// value of 0 mutes; any positive value unmutes.
func (vc *VolumeController) SetVolume(value int, source ChangeSource) int {
	vc.mu.Lock()
	if value < MinVolume {
		value = MinVolume
	}
	if value > MaxVolume {
		value = MaxVolume
	}
	changed := value != vc.current || (value == 0) != vc.muted
	if value > 0 {
		vc.previous = value
	}
	vc.current = value
	vc.muted = value == 0
	vc.mu.Unlock()

	vc.applyEffective()
	if changed {
		vc.notify(source)
	}
	return value
}

// ToggleMute mutes, or unmutes restoring the previous volume. Unmuting
// from a zero previous volume substitutes a non-zero default.
func (vc *VolumeController) ToggleMute() bool {
	vc.mu.Lock()
	if vc.muted {
		restore := vc.previous
		if restore == 0 {
			restore = DefaultUnmuteVolume
		}
		vc.current = restore
		vc.muted = false
	} else {
		vc.previous = vc.current
		vc.current = 0
		vc.muted = true
	}
	muted := vc.muted
	vc.mu.Unlock()

	vc.applyEffective()
	vc.notify(SourceUser)
	return muted
}

// SetDomainVolume sets a per-site override that takes precedence over the
// global volume for that origin.
func (vc *VolumeController) SetDomainVolume(origin string, value float64) {
	vc.mu.Lock()
	if value < MinVolume {
		value = MinVolume
	}
	if value > MaxVolume {
		value = MaxVolume
	}
	vc.overrides[origin] = value
	persist := vc.persistOverrides
	snapshot := vc.overrideSnapshotLocked()
	vc.mu.Unlock()

	vc.applyEffective()
	if persist != nil {
		persist(snapshot)
	}
}

// ClearDomainVolume removes a per-site override.
func (vc *VolumeController) ClearDomainVolume(origin string) {
	vc.mu.Lock()
	delete(vc.overrides, origin)
	persist := vc.persistOverrides
	snapshot := vc.overrideSnapshotLocked()
	vc.mu.Unlock()

	vc.applyEffective()
	if persist != nil {
		persist(snapshot)
	}
}

// SetOrigin sets the site origin used for effective-volume resolution.
// Called when an item from a new source starts playing.
func (vc *VolumeController) SetOrigin(origin string) {
	vc.mu.Lock()
	vc.origin = origin
	vc.mu.Unlock()
	vc.applyEffective()
}

// Current returns the global volume value.
func (vc *VolumeController) Current() int {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return vc.current
}

// IsMuted reports the mute flag.
func (vc *VolumeController) IsMuted() bool {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return vc.muted
}

// DomainOverrides returns a copy of the per-site overrides.
func (vc *VolumeController) DomainOverrides() map[string]float64 {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return vc.overrideSnapshotLocked()
}

// EffectiveGain resolves the gain for the active origin: mute wins, then
// the domain override, then the global volume. Result is in [0.0, 1.0].
func (vc *VolumeController) EffectiveGain() float64 {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return vc.effectiveGainLocked()
}

// BaselineGain returns the effective gain and records it as the last
// applied gain. Called when an utterance starts at that gain, so a later
// fade steps from the level actually playing instead of from silence.
func (vc *VolumeController) BaselineGain() float64 {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	gain := vc.effectiveGainLocked()
	vc.lastGain = gain
	return gain
}

// Restore loads persisted values without writing them back.
func (vc *VolumeController) Restore(volume int, muted bool, overrides map[string]float64) {
	vc.mu.Lock()
	if volume < MinVolume {
		volume = MinVolume
	}
	if volume > MaxVolume {
		volume = MaxVolume
	}
	vc.current = volume
	if volume > 0 {
		vc.previous = volume
	}
	vc.muted = muted || volume == 0
	if overrides != nil {
		vc.overrides = make(map[string]float64, len(overrides))
		for origin, v := range overrides {
			vc.overrides[origin] = v
		}
	}
	vc.mu.Unlock()
}

func (vc *VolumeController) effectiveGainLocked() float64 {
	if vc.muted {
		return 0
	}
	value := float64(vc.current)
	if override, ok := vc.overrides[vc.origin]; ok && vc.origin != "" {
		value = override
	}
	return value / MaxVolume
}

func (vc *VolumeController) overrideSnapshotLocked() map[string]float64 {
	snapshot := make(map[string]float64, len(vc.overrides))
	for origin, v := range vc.overrides {
		snapshot[origin] = v
	}
	return snapshot
}

// applyEffective pushes the resolved gain into the gain path, fading from
// the last applied gain over a few steps when one is attached.
func (vc *VolumeController) applyEffective() {
	vc.mu.Lock()
	applier := vc.applier
	from := vc.lastGain
	target := vc.effectiveGainLocked()
	clock := vc.clock
	vc.fadeGen++
	gen := vc.fadeGen
	vc.mu.Unlock()

	if applier == nil {
		return
	}

	// Step toward the target; a newer fade supersedes this one.
	step := 1
	var tick func()
	tick = func() {
		vc.mu.Lock()
		if gen != vc.fadeGen {
			vc.mu.Unlock()
			return
		}
		gain := from + (target-from)*float64(step)/fadeSteps
		vc.lastGain = gain
		vc.mu.Unlock()

		applier.ApplyGain(gain)
		if step < fadeSteps {
			step++
			clock.AfterFunc(fadeInterval, tick)
		}
	}
	tick()
}

func (vc *VolumeController) notify(source ChangeSource) {
	vc.mu.RLock()
	volume := vc.current
	muted := vc.muted
	persist := vc.persist
	onChange := vc.onChange
	vc.mu.RUnlock()

	vc.logger.Debug("volume changed", "value", volume, "muted", muted, "source", source)
	if persist != nil {
		persist(volume, muted)
	}
	if onChange != nil {
		onChange(volume, muted, source)
	}
}
