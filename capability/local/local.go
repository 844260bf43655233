// Package local is a speech capability backed by a local piper binary
// and the beep speaker. It supports native pause/resume, a live rate
// path through a resampler, and a live gain path through effects.Volume,
// so the engine's fast paths are exercised for real on a workstation.
//
// Word boundaries are estimated from the playback position, not reported
// by the synthesizer: the adapter maps consumed samples back onto the
// text proportionally and emits the word offsets passed along the way.
package local

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/readaloud/readaloud/engine"
)

// Config selects the piper binary and voice model. Empty fields are
// resolved from PATH and the standard voice directories.
type Config struct {
	Binary  string
	Model   string
	Timeout time.Duration

	// CacheDir stores compressed synthesized audio. Empty resolves to the
	// user cache directory; CacheMaxBytes <= 0 means 100 MB.
	CacheDir      string
	CacheMaxBytes int64
}

// Capability implements engine.Capability over piper + beep.
type Capability struct {
	synth  *synthesizer
	cache  *pcmCache
	logger *log.Logger

	speakerOnce sync.Once
	speakerErr  error
}

// New resolves the synthesizer toolchain. It fails when no piper binary
// or voice model can be found; the caller surfaces that as the
// capability being unavailable. A broken cache directory is not fatal,
// it just means every read synthesizes.
func New(cfg Config, logger *log.Logger) (*Capability, error) {
	if logger == nil {
		logger = log.Default()
	}
	synth, err := newSynthesizer(cfg.Binary, cfg.Model, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	dir := cfg.CacheDir
	if dir == "" {
		if base, err := os.UserCacheDir(); err == nil {
			dir = filepath.Join(base, "readaloud", "pcm")
		}
	}
	capacity := cfg.CacheMaxBytes
	if capacity <= 0 {
		capacity = 100 << 20
	}
	var cache *pcmCache
	if dir != "" {
		cache, err = newPCMCache(dir, capacity)
		if err != nil {
			logger.Warn("audio cache disabled", "dir", dir, "err", err)
			cache = nil
		}
	}

	logger.Debug("local synthesis ready", "binary", synth.binary, "model", synth.model)
	return &Capability{synth: synth, cache: cache, logger: logger}, nil
}

// Available implements engine.Capability.
func (c *Capability) Available() bool {
	return c != nil && c.synth != nil
}

// synthesize consults the audio cache before shelling out to piper.
func (c *Capability) synthesize(text string) ([]byte, error) {
	key := cacheKey(c.synth.model, text)
	if c.cache != nil {
		if pcm, ok := c.cache.get(key); ok {
			c.logger.Debug("audio cache hit", "bytes", len(pcm))
			return pcm, nil
		}
	}
	pcm, err := c.synth.synthesize(context.Background(), text)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.put(key, pcm); err != nil {
			c.logger.Warn("unable to cache audio", "err", err)
		}
	}
	return pcm, nil
}

// Speak implements engine.Capability. Synthesis is synchronous; playback
// and event delivery run on their own goroutines.
func (c *Capability) Speak(text string, params engine.UtteranceParams, emit func(engine.Event)) (engine.Utterance, error) {
	pcm, err := c.synthesize(text)
	if err != nil {
		return nil, err
	}

	c.speakerOnce.Do(func() {
		sr := beep.SampleRate(piperSampleRate)
		c.speakerErr = speaker.Init(sr, sr.N(time.Second/10))
	})
	if c.speakerErr != nil {
		return nil, c.speakerErr
	}

	rate := params.Rate
	if rate <= 0 {
		rate = 1.0
	}

	stream := newPCMStreamer(pcm)
	// Ratio >1 consumes source samples faster. This trades pitch for a
	// live rate path; piper's own length-scale would preserve pitch but
	// requires re-synthesis on every change.
	resampler := beep.ResampleRatio(4, rate, stream)
	ctrl := &beep.Ctrl{Streamer: resampler}
	vol, silent := gainToVolume(params.Volume)
	volume := &effects.Volume{Streamer: ctrl, Base: 2, Volume: vol, Silent: silent}

	u := &utterance{
		text:      text,
		emit:      emit,
		stream:    stream,
		resampler: resampler,
		ctrl:      ctrl,
		volume:    volume,
		quit:      make(chan struct{}),
	}

	speaker.Play(beep.Seq(volume, beep.Callback(u.finished)))
	go u.run()
	return u, nil
}

// utterance is one piper utterance playing through the speaker.
type utterance struct {
	text string
	emit func(engine.Event)

	stream    *pcmStreamer
	resampler *beep.Resampler
	ctrl      *beep.Ctrl
	volume    *effects.Volume

	mu        sync.Mutex
	cancelled bool

	quitOnce sync.Once
	quit     chan struct{}
}

// run emits the started event and estimated word boundaries until the
// utterance finishes. Boundary positions derive from the consumed sample
// count, so they freeze during a pause and track rate changes.
func (u *utterance) run() {
	u.deliver(engine.StartedEvent{})

	offsets := engine.WordOffsets(u.text)
	next := 0

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-u.quit:
			return
		case <-ticker.C:
		}

		speaker.Lock()
		pos, total := u.stream.Position(), u.stream.Len()
		speaker.Unlock()
		if total == 0 {
			continue
		}

		reached := pos * len(u.text) / total
		for next < len(offsets) && offsets[next] <= reached {
			u.deliver(engine.BoundaryEvent{
				CharIndex:   offsets[next],
				Granularity: engine.GranularityWord,
			})
			next++
		}
	}
}

// finished runs on the speaker goroutine when the stream drains. The
// ended event is delivered from a fresh goroutine: handlers may call
// back into this utterance, and the speaker lock is held here.
func (u *utterance) finished() {
	u.quitOnce.Do(func() { close(u.quit) })
	go u.deliver(engine.EndedEvent{})
}

// Pause implements engine.Utterance.
func (u *utterance) Pause() error {
	speaker.Lock()
	u.ctrl.Paused = true
	speaker.Unlock()
	// Confirmation events go out asynchronously; the caller may hold
	// locks its own event handler needs.
	go u.deliver(engine.PausedEvent{})
	return nil
}

// Resume implements engine.Utterance.
func (u *utterance) Resume() error {
	u.mu.Lock()
	cancelled := u.cancelled
	u.mu.Unlock()
	if cancelled {
		return engine.ErrNoPausedUtterance
	}

	speaker.Lock()
	u.ctrl.Paused = false
	speaker.Unlock()
	go u.deliver(engine.ResumedEvent{})
	return nil
}

// Cancel implements engine.Utterance. The stream is detached under the
// speaker lock so no further samples play, and event delivery stops.
func (u *utterance) Cancel() error {
	u.mu.Lock()
	u.cancelled = true
	u.mu.Unlock()
	u.quitOnce.Do(func() { close(u.quit) })

	speaker.Lock()
	u.ctrl.Paused = true
	u.ctrl.Streamer = nil
	speaker.Unlock()
	return nil
}

// SetRate implements engine.Utterance via the live resampler ratio.
func (u *utterance) SetRate(rate float64) error {
	if rate <= 0 {
		return engine.ErrLiveRateUnsupported
	}
	speaker.Lock()
	u.resampler.SetRatio(rate)
	speaker.Unlock()
	return nil
}

// SetVolume implements engine.Utterance via the live gain path.
func (u *utterance) SetVolume(gain float64) error {
	vol, silent := gainToVolume(gain)
	speaker.Lock()
	u.volume.Volume = vol
	u.volume.Silent = silent
	speaker.Unlock()
	return nil
}

// deliver emits ev unless the utterance was cancelled.
func (u *utterance) deliver(ev engine.Event) {
	u.mu.Lock()
	if u.cancelled {
		u.mu.Unlock()
		return
	}
	emit := u.emit
	u.mu.Unlock()
	emit(ev)
}
