// Package store persists playback settings and the reading queue in a
// JSON state file. Writes are debounced so slider drags and queue edits
// issue a single disk write, and failures never interrupt playback: the
// in-memory state stays authoritative and the error is logged.
package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/readaloud/readaloud/engine"
	"github.com/readaloud/readaloud/schedule"
)

// WriteDebounce is the coalescing window for persisted writes.
const WriteDebounce = 500 * time.Millisecond

// Store is a viper-backed state file. It implements engine.Store.
type Store struct {
	mu       sync.Mutex
	v        *viper.Viper
	path     string
	debounce *schedule.Debouncer
	logger   *log.Logger
}

// Open reads the state file at path, creating its directory if needed.
// A missing file is not an error; it appears on the first write. A nil
// clock uses real time.
func Open(path string, clock schedule.Clock, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return &Store{
		v:        v,
		path:     path,
		debounce: schedule.NewDebouncer(clock, WriteDebounce),
		logger:   logger,
	}, nil
}

// Load returns the persisted state, with defaults for anything unset.
func (s *Store) Load() engine.Persisted {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := engine.Persisted{
		Speed:  engine.DefaultSpeed,
		Volume: engine.MaxVolume,
	}
	if s.v.IsSet("playback.speed") {
		p.Speed = s.v.GetFloat64("playback.speed")
	}
	if s.v.IsSet("playback.volume") {
		p.Volume = s.v.GetInt("playback.volume")
	}
	p.Muted = s.v.GetBool("playback.muted")

	if s.v.IsSet("playback.domain_volumes") {
		p.DomainVolumes = map[string]float64{}
		for origin, value := range s.v.GetStringMap("playback.domain_volumes") {
			p.DomainVolumes[origin] = cast.ToFloat64(value)
		}
	}

	if err := s.v.UnmarshalKey("queue.items", &p.QueueItems, timeDecodeHook()); err != nil {
		s.logger.Warn("discarding unreadable queue state", "err", err)
		p.QueueItems = nil
	}
	if err := s.v.UnmarshalKey("queue.options", &p.QueueOptions); err != nil {
		s.logger.Warn("discarding unreadable queue options", "err", err)
		p.QueueOptions = engine.QueueOptions{}
	}
	return p
}

// timeDecodeHook parses the JSON-encoded time and duration fields of
// persisted queue items.
func timeDecodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		mapstructure.StringToTimeDurationHookFunc(),
	))
}

// SaveSpeed implements engine.Store.
func (s *Store) SaveSpeed(value float64) {
	s.set("speed", map[string]any{"playback.speed": value})
}

// SaveVolume implements engine.Store.
func (s *Store) SaveVolume(volume int, muted bool) {
	s.set("volume", map[string]any{
		"playback.volume": volume,
		"playback.muted":  muted,
	})
}

// SaveDomainVolumes implements engine.Store.
func (s *Store) SaveDomainVolumes(overrides map[string]float64) {
	s.set("domain_volumes", map[string]any{"playback.domain_volumes": overrides})
}

// SaveQueue implements engine.Store. The current index is not persisted;
// a restored queue starts at its first item.
func (s *Store) SaveQueue(state engine.QueueState) {
	s.set("queue", map[string]any{
		"queue.items":   state.Items,
		"queue.options": state.Options,
	})
}

// Flush writes all pending state immediately. Called on shutdown.
func (s *Store) Flush() {
	s.debounce.Flush()
}

// set applies the values and debounces a write under the given key.
func (s *Store) set(key string, values map[string]any) {
	s.mu.Lock()
	for k, v := range values {
		s.v.Set(k, v)
	}
	s.mu.Unlock()
	s.debounce.Schedule(key, s.write)
}

func (s *Store) write() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.v.WriteConfigAs(s.path); err != nil {
		s.logger.Warn("state write failed", "path", s.path, "err", err)
	}
}
