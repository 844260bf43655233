package engine

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestQueue() *QueueManager {
	return NewQueueManager(nil, testLogger())
}

// addThree fills the queue with three items and returns their ids.
func addThree(t *testing.T, m *QueueManager) []string {
	t.Helper()
	ids := make([]string, 0, 3)
	for _, text := range []string{"first item text", "second item text", "third item text"} {
		item, err := m.AddItem("", text, "")
		if err != nil {
			t.Fatalf("AddItem(%q) = %v", text, err)
		}
		ids = append(ids, item.ID)
	}
	return ids
}

func TestAddItemValidation(t *testing.T) {
	m := newTestQueue()

	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{"empty", "", ErrInvalidInput},
		{"whitespace only", "   \n\t", ErrInvalidInput},
		{"oversized", strings.Repeat("a", MaxTextLength+1), ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.AddItem("", tt.text, ""); !errors.Is(err, tt.wantErr) {
				t.Errorf("AddItem() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddItemRejectsDuplicateText(t *testing.T) {
	m := newTestQueue()
	if _, err := m.AddItem("a", "same text", "site-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddItem("b", "same text", "site-b"); !errors.Is(err, ErrDuplicateItem) {
		t.Errorf("AddItem() = %v, want ErrDuplicateItem", err)
	}
}

func TestAddItemQueueFull(t *testing.T) {
	m := newTestQueue()
	m.maxItems = 2
	m.AddItem("", "one", "")
	m.AddItem("", "two", "")
	if _, err := m.AddItem("", "three", ""); !errors.Is(err, ErrQueueFull) {
		t.Errorf("AddItem() = %v, want ErrQueueFull", err)
	}
}

func TestAddItemDerivesMetadata(t *testing.T) {
	m := newTestQueue()
	item, err := m.AddItem("Title", "five words of sample text", "docs.example")
	if err != nil {
		t.Fatal(err)
	}
	if item.ID == "" {
		t.Error("expected a generated id")
	}
	if item.Metadata.WordCount != 5 {
		t.Errorf("word count = %d, want 5", item.Metadata.WordCount)
	}
	if item.Metadata.CharacterCount != len("five words of sample text") {
		t.Errorf("character count = %d", item.Metadata.CharacterCount)
	}
	if item.Metadata.EstimatedReadingTime <= 0 {
		t.Error("expected a positive reading time estimate")
	}

	// The first item becomes current.
	if got := m.State().CurrentIndex; got != 0 {
		t.Errorf("current index = %d, want 0", got)
	}
}

func TestRemoveItemReindexes(t *testing.T) {
	t.Run("unknown id", func(t *testing.T) {
		m := newTestQueue()
		if err := m.RemoveItem("nope"); !errors.Is(err, ErrItemNotFound) {
			t.Errorf("RemoveItem() = %v, want ErrItemNotFound", err)
		}
	})

	t.Run("before current shifts pointer down", func(t *testing.T) {
		m := newTestQueue()
		ids := addThree(t, m)
		m.JumpToItem(2)
		m.RemoveItem(ids[0])

		state := m.State()
		if state.CurrentIndex != 1 {
			t.Errorf("current index = %d, want 1", state.CurrentIndex)
		}
		if state.Items[state.CurrentIndex].ID != ids[2] {
			t.Error("current should still be the third item")
		}
	})

	t.Run("after current leaves pointer", func(t *testing.T) {
		m := newTestQueue()
		ids := addThree(t, m)
		m.JumpToItem(1)
		m.RemoveItem(ids[2])

		if got := m.State().CurrentIndex; got != 1 {
			t.Errorf("current index = %d, want 1", got)
		}
	})

	t.Run("current last collapses to new last", func(t *testing.T) {
		m := newTestQueue()
		ids := addThree(t, m)
		m.JumpToItem(2)
		m.RemoveItem(ids[2])

		if got := m.State().CurrentIndex; got != 1 {
			t.Errorf("current index = %d, want 1", got)
		}
	})

	t.Run("last item empties the queue", func(t *testing.T) {
		m := newTestQueue()
		item, _ := m.AddItem("", "only item", "")
		m.RemoveItem(item.ID)

		state := m.State()
		if len(state.Items) != 0 || state.CurrentIndex != -1 {
			t.Errorf("state = %+v, want empty with index -1", state)
		}
	})
}

func TestReorderItems(t *testing.T) {
	t.Run("bad indices", func(t *testing.T) {
		m := newTestQueue()
		addThree(t, m)
		for _, pair := range [][2]int{{-1, 0}, {0, 3}, {3, 0}} {
			if err := m.ReorderItems(pair[0], pair[1]); !errors.Is(err, ErrIndexOutOfRange) {
				t.Errorf("ReorderItems(%d, %d) = %v, want ErrIndexOutOfRange", pair[0], pair[1], err)
			}
		}
	})

	t.Run("moving the current item follows it", func(t *testing.T) {
		m := newTestQueue()
		ids := addThree(t, m)
		m.JumpToItem(1)
		if err := m.ReorderItems(1, 2); err != nil {
			t.Fatal(err)
		}

		state := m.State()
		if state.CurrentIndex != 2 {
			t.Errorf("current index = %d, want 2", state.CurrentIndex)
		}
		got := []string{state.Items[0].ID, state.Items[1].ID, state.Items[2].ID}
		want := []string{ids[0], ids[2], ids[1]}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("order = %v, want %v", got, want)
				break
			}
		}
	})

	t.Run("moving across the current shifts it", func(t *testing.T) {
		m := newTestQueue()
		ids := addThree(t, m)
		m.JumpToItem(1)

		// Move the first item past the current one.
		m.ReorderItems(0, 2)
		state := m.State()
		if state.CurrentIndex != 0 {
			t.Errorf("current index = %d, want 0", state.CurrentIndex)
		}
		if state.Items[state.CurrentIndex].ID != ids[1] {
			t.Error("current no longer refers to the same item")
		}

		// And back the other way.
		m.ReorderItems(2, 0)
		state = m.State()
		if state.CurrentIndex != 1 {
			t.Errorf("current index = %d, want 1", state.CurrentIndex)
		}
		if state.Items[state.CurrentIndex].ID != ids[1] {
			t.Error("current no longer refers to the same item")
		}
	})
}

func TestMoveWrapsOnlyWithRepeat(t *testing.T) {
	m := newTestQueue()
	addThree(t, m)
	m.JumpToItem(2)

	if m.MoveToNext() {
		t.Error("MoveToNext() at the end without repeat should not move")
	}

	m.SetOptions(QueueOptions{Repeat: true})
	if !m.MoveToNext() {
		t.Fatal("MoveToNext() with repeat should wrap")
	}
	if got := m.State().CurrentIndex; got != 0 {
		t.Errorf("current index = %d, want 0", got)
	}

	if !m.MoveToPrevious() {
		t.Fatal("MoveToPrevious() with repeat should wrap")
	}
	if got := m.State().CurrentIndex; got != 2 {
		t.Errorf("current index = %d, want 2", got)
	}
}

func TestShuffleNeverRepeatsCurrent(t *testing.T) {
	m := newTestQueue()
	addThree(t, m)
	m.SetOptions(QueueOptions{Shuffle: true})
	m.JumpToItem(1)

	// The random draw is over len-1 slots; a draw at or past the current
	// index shifts up by one so the current item is never redrawn.
	m.SetRand(func(n int) int { return 1 })
	if !m.MoveToNext() {
		t.Fatal("MoveToNext() = false")
	}
	if got := m.State().CurrentIndex; got != 2 {
		t.Errorf("current index = %d, want 2", got)
	}

	m.JumpToItem(1)
	m.SetRand(func(n int) int { return 0 })
	m.MoveToNext()
	if got := m.State().CurrentIndex; got != 0 {
		t.Errorf("current index = %d, want 0", got)
	}
}

func TestJumpToItemBounds(t *testing.T) {
	m := newTestQueue()
	addThree(t, m)
	if err := m.JumpToItem(3); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("JumpToItem(3) = %v, want ErrIndexOutOfRange", err)
	}
	if err := m.JumpToItem(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("JumpToItem(-1) = %v, want ErrIndexOutOfRange", err)
	}
}

func TestQueuePersistsOnChange(t *testing.T) {
	m := newTestQueue()

	var writes []QueueState
	m.SetPersist(func(s QueueState) { writes = append(writes, s) })

	item, _ := m.AddItem("", "some text", "")
	m.RemoveItem(item.ID)

	if len(writes) != 2 {
		t.Fatalf("persist calls = %d, want 2", len(writes))
	}
	if len(writes[1].Items) != 0 {
		t.Error("final snapshot should be empty")
	}
}

func TestRestoreDoesNotWriteBack(t *testing.T) {
	m := newTestQueue()
	var writes int
	m.SetPersist(func(QueueState) { writes++ })

	m.Restore([]QueueItem{{ID: "x", Text: "restored text"}}, QueueOptions{AutoAdvance: true})

	if writes != 0 {
		t.Errorf("restore issued %d writes, want 0", writes)
	}
	state := m.State()
	if len(state.Items) != 1 || state.CurrentIndex != 0 {
		t.Errorf("state = %+v", state)
	}
	if !state.Options.AutoAdvance {
		t.Error("options not restored")
	}
}

// Full stack: queue, coordinator and a scripted capability.
func newPlayingQueue(t *testing.T) (*QueueManager, *fakeCapability, *fakeClock) {
	t.Helper()
	cap := &fakeCapability{}
	coord, _, _ := newTestCoordinator(cap)
	m := NewQueueManager(coord, testLogger())
	clock := newFakeClock()
	m.SetClock(clock)
	return m, cap, clock
}

func TestAutoAdvancePlaysNextAfterDelay(t *testing.T) {
	m, cap, clock := newPlayingQueue(t)
	m.SetOptions(QueueOptions{AutoAdvance: true})
	m.AddItem("", "item one text", "")
	m.AddItem("", "item two text", "")

	if err := m.PlayCurrent(); err != nil {
		t.Fatal(err)
	}
	cap.last().complete()

	// The advance waits out the inter-item delay.
	if cap.speakCount() != 1 {
		t.Fatalf("speak count before delay = %d, want 1", cap.speakCount())
	}
	clock.Advance(DefaultAdvanceDelay)

	if cap.speakCount() != 2 {
		t.Fatalf("speak count after delay = %d, want 2", cap.speakCount())
	}
	if cap.last().text != "item two text" {
		t.Errorf("now playing %q, want the second item", cap.last().text)
	}

	// Completing the last item without repeat ends the queue.
	cap.last().complete()
	clock.Advance(DefaultAdvanceDelay)
	if cap.speakCount() != 2 {
		t.Errorf("speak count = %d, queue should be complete", cap.speakCount())
	}
	if got := m.coord.State(); got != StateIdle {
		t.Errorf("playback state = %v, want %v", got, StateIdle)
	}
}

func TestAutoAdvanceWrapsWithRepeat(t *testing.T) {
	m, cap, clock := newPlayingQueue(t)
	m.SetOptions(QueueOptions{AutoAdvance: true, Repeat: true})
	m.AddItem("", "item one text", "")
	m.AddItem("", "item two text", "")
	m.JumpToItem(1)

	m.PlayCurrent()
	cap.last().complete()
	clock.Advance(DefaultAdvanceDelay)

	if cap.last().text != "item one text" {
		t.Errorf("now playing %q, want wrap to the first item", cap.last().text)
	}
}

func TestFailedItemSkippedByDefault(t *testing.T) {
	m, cap, clock := newPlayingQueue(t)
	m.SetOptions(QueueOptions{AutoAdvance: true})
	m.AddItem("", "item one text", "")
	m.AddItem("", "item two text", "")

	m.PlayCurrent()
	cap.last().fail(errors.New("synthesis error"))
	clock.Advance(DefaultAdvanceDelay)

	if cap.speakCount() != 2 {
		t.Fatalf("speak count = %d, failed item should be skipped", cap.speakCount())
	}
	if cap.last().text != "item two text" {
		t.Errorf("now playing %q, want the second item", cap.last().text)
	}
}

func TestFailedItemHaltsWhenConfigured(t *testing.T) {
	m, cap, clock := newPlayingQueue(t)
	m.SetOptions(QueueOptions{AutoAdvance: true, HaltOnError: true})
	m.AddItem("", "item one text", "")
	m.AddItem("", "item two text", "")

	m.PlayCurrent()
	cap.last().fail(errors.New("synthesis error"))
	clock.Advance(time.Second)

	if cap.speakCount() != 1 {
		t.Errorf("speak count = %d, halt-on-error must not advance", cap.speakCount())
	}
}

func TestStoppedPlaybackDoesNotAdvance(t *testing.T) {
	m, cap, clock := newPlayingQueue(t)
	m.SetOptions(QueueOptions{AutoAdvance: true})
	m.AddItem("", "item one text", "")
	m.AddItem("", "item two text", "")

	m.PlayCurrent()
	m.coord.Stop()
	clock.Advance(time.Second)

	if cap.speakCount() != 1 {
		t.Errorf("speak count = %d, stop must not trigger an advance", cap.speakCount())
	}
}

func TestRemoveCurrentItemStopsPlayback(t *testing.T) {
	m, cap, _ := newPlayingQueue(t)
	item, _ := m.AddItem("", "item one text", "")
	m.AddItem("", "item two text", "")

	m.PlayCurrent()
	m.RemoveItem(item.ID)

	if got := m.coord.State(); got != StateIdle {
		t.Errorf("playback state = %v, want %v", got, StateIdle)
	}
	if !cap.last().cancelled {
		t.Error("active utterance should have been cancelled")
	}
}

func TestClearEmptiesAndStops(t *testing.T) {
	m, cap, _ := newPlayingQueue(t)
	m.AddItem("", "item one text", "")
	m.PlayCurrent()

	m.Clear()

	state := m.State()
	if len(state.Items) != 0 || state.CurrentIndex != -1 {
		t.Errorf("state = %+v, want empty", state)
	}
	if m.coord.State() != StateIdle {
		t.Errorf("playback state = %v, want %v", m.coord.State(), StateIdle)
	}
	if !cap.last().cancelled {
		t.Error("active utterance should have been cancelled")
	}
}

func TestPlayCurrentSetsVolumeOrigin(t *testing.T) {
	m, _, _ := newPlayingQueue(t)
	m.AddItem("", "item text", "news.example")

	m.coord.volume.SetDomainVolume("news.example", 30)
	m.PlayCurrent()

	if got := m.coord.volume.EffectiveGain(); got != 0.3 {
		t.Errorf("effective gain = %v, want the domain override 0.3", got)
	}
}
