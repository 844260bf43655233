package store

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/readaloud/readaloud/engine"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path, nil, log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "state.json"))

	p := s.Load()
	if p.Speed != engine.DefaultSpeed {
		t.Errorf("default speed = %v, want %v", p.Speed, engine.DefaultSpeed)
	}
	if p.Volume != engine.MaxVolume {
		t.Errorf("default volume = %d, want %d", p.Volume, engine.MaxVolume)
	}
	if p.Muted {
		t.Error("default muted = true, want false")
	}
	if len(p.QueueItems) != 0 {
		t.Errorf("default queue = %v, want empty", p.QueueItems)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s := openTestStore(t, path)
	s.SaveSpeed(1.7)
	s.SaveVolume(0, true)
	s.SaveDomainVolumes(map[string]float64{"news.example": 35})
	s.Flush()

	reopened := openTestStore(t, path)
	p := reopened.Load()
	if p.Speed != 1.7 {
		t.Errorf("speed = %v, want 1.7", p.Speed)
	}
	if p.Volume != 0 || !p.Muted {
		t.Errorf("volume = %d muted = %v, want muted zero", p.Volume, p.Muted)
	}
	if p.DomainVolumes["news.example"] != 35 {
		t.Errorf("domain volumes = %v", p.DomainVolumes)
	}
}

func TestQueueRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	added := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	state := engine.QueueState{
		Items: []engine.QueueItem{
			{
				ID:      "item-1",
				Title:   "First",
				Text:    "some saved text",
				Source:  "docs.example",
				AddedAt: added,
				Metadata: engine.ItemMetadata{
					WordCount:            3,
					CharacterCount:       15,
					EstimatedReadingTime: 2 * time.Second,
				},
			},
			{ID: "item-2", Title: "Second", Text: "more saved text"},
		},
		CurrentIndex: 1,
		Options:      engine.QueueOptions{AutoAdvance: true, Repeat: true},
	}

	s := openTestStore(t, path)
	s.SaveQueue(state)
	s.Flush()

	p := openTestStore(t, path).Load()
	if len(p.QueueItems) != 2 {
		t.Fatalf("restored %d items, want 2", len(p.QueueItems))
	}
	first := p.QueueItems[0]
	if first.ID != "item-1" || first.Text != "some saved text" {
		t.Errorf("item = %+v", first)
	}
	if !first.AddedAt.Equal(added) {
		t.Errorf("added at = %v, want %v", first.AddedAt, added)
	}
	if first.Metadata.EstimatedReadingTime != 2*time.Second {
		t.Errorf("reading time = %v, want 2s", first.Metadata.EstimatedReadingTime)
	}
	if !p.QueueOptions.AutoAdvance || !p.QueueOptions.Repeat {
		t.Errorf("options = %+v", p.QueueOptions)
	}
}

func TestWritesAreDebounced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := openTestStore(t, path)

	// Rapid changes before the window elapses leave nothing on disk.
	for i := 1; i <= 5; i++ {
		s.SaveSpeed(float64(i))
	}
	if _, err := os.Stat(path); err == nil {
		t.Fatal("state file written before the debounce window elapsed")
	}

	s.Flush()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("state file missing after flush: %v", err)
	}
	if got := openTestStore(t, path).Load().Speed; got != 5 {
		t.Errorf("persisted speed = %v, want the last value 5", got)
	}
}

func TestFlushWithoutChangesIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := openTestStore(t, path)

	s.Flush()
	if _, err := os.Stat(path); err == nil {
		t.Error("flush with no pending writes should not create the file")
	}
}
