package engine

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/readaloud/readaloud/schedule"
)

// Queue limits.
const (
	// DefaultMaxQueueItems bounds queue growth.
	DefaultMaxQueueItems = 100
	// MaxTextLength bounds a single item's text.
	MaxTextLength = 100_000
	// DefaultAdvanceDelay is the pause between items on auto-advance,
	// to avoid mid-sentence artifacts between utterances.
	DefaultAdvanceDelay = 500 * time.Millisecond
)

// QueueItem is one text item queued for reading. Text is immutable after
// creation.
type QueueItem struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Text     string       `json:"text"`
	Source   string       `json:"source"`
	AddedAt  time.Time    `json:"addedAt"`
	Metadata ItemMetadata `json:"metadata"`
}

// ItemMetadata is derived at add time.
type ItemMetadata struct {
	WordCount            int           `json:"wordCount"`
	CharacterCount       int           `json:"characterCount"`
	EstimatedReadingTime time.Duration `json:"estimatedReadingTime"`
}

// QueueOptions control navigation and completion policy.
type QueueOptions struct {
	AutoAdvance bool `json:"autoAdvance"`
	Repeat      bool `json:"repeat"`
	Shuffle     bool `json:"shuffle"`
	// HaltOnError stops the queue when an item fails instead of
	// skipping to the next one.
	HaltOnError bool `json:"haltOnError"`
}

// QueueState is a read-only snapshot of the queue.
type QueueState struct {
	Items         []QueueItem   `json:"items"`
	CurrentIndex  int           `json:"currentIndex"`
	Options       QueueOptions  `json:"options"`
	TotalDuration time.Duration `json:"totalDuration"`
}

// QueueManager owns the ordered item collection and the current-item
// pointer, and reacts to session completion by advancing per its
// auto-advance, repeat and shuffle policy. It is the single source of
// truth for what is currently being read.
type QueueManager struct {
	mu      sync.Mutex
	items   []QueueItem
	current int // -1 iff the queue is empty
	opts    QueueOptions

	maxItems         int
	rejectDuplicates bool

	coord *Coordinator

	intn         func(n int) int
	advanceDelay time.Duration
	clock        schedule.Clock
	pending      schedule.Timer

	persist  func(QueueState)
	onChange func(QueueState)
	logger   *log.Logger
}

// NewQueueManager creates an empty queue wired to the coordinator. It
// registers itself for the coordinator's end-of-session notifications.
func NewQueueManager(coord *Coordinator, logger *log.Logger) *QueueManager {
	if logger == nil {
		logger = log.Default()
	}
	m := &QueueManager{
		current:          -1,
		maxItems:         DefaultMaxQueueItems,
		rejectDuplicates: true,
		coord:            coord,
		intn:             rand.IntN,
		advanceDelay:     DefaultAdvanceDelay,
		clock:            schedule.RealClock(),
		logger:           logger,
	}
	if coord != nil {
		coord.OnEnded(m.handleEnded)
	}
	return m
}

// SetPersist attaches the debounced persistence hook.
func (m *QueueManager) SetPersist(fn func(QueueState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persist = fn
}

// OnChange registers a queue-change notification callback.
func (m *QueueManager) OnChange(fn func(QueueState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// SetClock replaces the auto-advance clock.
func (m *QueueManager) SetClock(c schedule.Clock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = c
}

// SetRand replaces the shuffle random source.
func (m *QueueManager) SetRand(intn func(n int) int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intn = intn
}

// AddItem appends a new item built from the given text.
func (m *QueueManager) AddItem(title, text, source string) (QueueItem, error) {
	if strings.TrimSpace(text) == "" || len(text) > MaxTextLength {
		return QueueItem{}, wrapErr(ErrInvalidInput, "queue", "add")
	}

	m.mu.Lock()
	if len(m.items) >= m.maxItems {
		m.mu.Unlock()
		return QueueItem{}, wrapErr(ErrQueueFull, "queue", "add")
	}
	if m.rejectDuplicates {
		if _, found := lo.Find(m.items, func(it QueueItem) bool { return it.Text == text }); found {
			m.mu.Unlock()
			return QueueItem{}, wrapErr(ErrDuplicateItem, "queue", "add")
		}
	}

	item := QueueItem{
		ID:      uuid.NewString(),
		Title:   title,
		Text:    text,
		Source:  source,
		AddedAt: time.Now(),
		Metadata: ItemMetadata{
			WordCount:            CountWords(text),
			CharacterCount:       len(text),
			EstimatedReadingTime: EstimateReadingTime(text, 0),
		},
	}
	m.items = append(m.items, item)
	if m.current == -1 {
		m.current = 0
	}
	m.mu.Unlock()

	m.changed()
	return item, nil
}

// RemoveItem deletes an item by id and re-indexes the current pointer:
// removing an item before the current one shifts the pointer down;
// removing the current item keeps the pointer (now the next item) unless
// it was last, in which case the pointer collapses to the new last index
// or -1 on an empty queue.
func (m *QueueManager) RemoveItem(id string) error {
	m.mu.Lock()
	_, idx, found := lo.FindIndexOf(m.items, func(it QueueItem) bool { return it.ID == id })
	if !found {
		m.mu.Unlock()
		return wrapErr(ErrItemNotFound, "queue", "remove")
	}

	removingCurrent := idx == m.current
	m.items = append(m.items[:idx], m.items[idx+1:]...)

	switch {
	case len(m.items) == 0:
		m.current = -1
	case idx < m.current:
		m.current--
	case removingCurrent && m.current >= len(m.items):
		m.current = len(m.items) - 1
	}
	m.mu.Unlock()

	if removingCurrent && m.coord != nil && m.coord.State().IsActive() {
		m.cancelPendingAdvance()
		m.coord.Stop()
	}
	m.changed()
	return nil
}

// ReorderItems moves the item at from to position to, re-mapping the
// current pointer so it keeps referring to the same logical item.
func (m *QueueManager) ReorderItems(from, to int) error {
	m.mu.Lock()
	if from < 0 || from >= len(m.items) || to < 0 || to >= len(m.items) {
		m.mu.Unlock()
		return wrapErr(ErrIndexOutOfRange, "queue", "reorder")
	}
	if from == to {
		m.mu.Unlock()
		return nil
	}

	item := m.items[from]
	m.items = append(m.items[:from], m.items[from+1:]...)
	m.items = append(m.items[:to], append([]QueueItem{item}, m.items[to:]...)...)

	switch {
	case m.current == from:
		m.current = to
	case from < m.current && to >= m.current:
		m.current--
	case from > m.current && to <= m.current:
		m.current++
	}
	m.mu.Unlock()

	m.changed()
	return nil
}

// MoveToNext advances the current pointer and reports whether a move
// happened. Under shuffle it picks a pseudo-random index different from
// the current one; otherwise it steps forward, wrapping only when repeat
// is enabled.
func (m *QueueManager) MoveToNext() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stepLocked(1)
}

// MoveToPrevious steps the current pointer backward under the same
// wrap/shuffle rules as MoveToNext.
func (m *QueueManager) MoveToPrevious() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stepLocked(-1)
}

func (m *QueueManager) stepLocked(dir int) bool {
	if len(m.items) == 0 || m.current == -1 {
		return false
	}

	if m.opts.Shuffle && len(m.items) > 1 {
		next := m.intn(len(m.items) - 1)
		if next >= m.current {
			next++
		}
		m.current = next
		return true
	}

	next := m.current + dir
	switch {
	case next >= len(m.items):
		if !m.opts.Repeat {
			return false
		}
		next = 0
	case next < 0:
		if !m.opts.Repeat {
			return false
		}
		next = len(m.items) - 1
	}
	m.current = next
	return true
}

// JumpToItem seeks directly to an index.
func (m *QueueManager) JumpToItem(index int) error {
	m.mu.Lock()
	if index < 0 || index >= len(m.items) {
		m.mu.Unlock()
		return wrapErr(ErrIndexOutOfRange, "queue", "jump")
	}
	m.current = index
	m.mu.Unlock()

	m.changed()
	return nil
}

// PlayCurrent starts playback of the current item.
func (m *QueueManager) PlayCurrent() error {
	m.mu.Lock()
	if m.current == -1 {
		m.mu.Unlock()
		return wrapErr(ErrNoActiveSession, "queue", "play")
	}
	item := m.items[m.current]
	m.mu.Unlock()

	m.cancelPendingAdvance()
	if m.coord == nil {
		return wrapErr(ErrCapabilityUnavailable, "queue", "play")
	}
	// Domain volume overrides resolve against the item's origin at
	// utterance start.
	if m.coord.volume != nil {
		m.coord.volume.SetOrigin(item.Source)
	}
	_, err := m.coord.Start(item.Text)
	return err
}

// Clear stops playback and empties the queue.
func (m *QueueManager) Clear() {
	m.cancelPendingAdvance()
	if m.coord != nil {
		m.coord.Stop()
	}

	m.mu.Lock()
	m.items = nil
	m.current = -1
	m.mu.Unlock()

	m.changed()
}

// State returns a snapshot of the queue.
func (m *QueueManager) State() QueueState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// Options returns the queue options.
func (m *QueueManager) Options() QueueOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

// SetOptions replaces the navigation/completion policy.
func (m *QueueManager) SetOptions(opts QueueOptions) {
	m.mu.Lock()
	m.opts = opts
	m.mu.Unlock()
	m.changed()
}

// Restore loads persisted items and options without writing them back.
func (m *QueueManager) Restore(items []QueueItem, opts QueueOptions) {
	m.mu.Lock()
	m.items = append([]QueueItem(nil), items...)
	m.opts = opts
	if len(m.items) == 0 {
		m.current = -1
	} else {
		m.current = 0
	}
	m.mu.Unlock()
}

// handleEnded reacts to session completion. Completed items advance per
// policy after a short delay; failed items are skipped by default or
// halt the queue when configured. The same item is never retried.
func (m *QueueManager) handleEnded(reason EndReason, err error) {
	switch reason {
	case EndCompleted:
	case EndFailed:
		m.logger.Warn("item playback failed", "err", err)
		if m.Options().HaltOnError {
			m.logger.Info("queue halted on error")
			return
		}
	default:
		// Stopped or replaced: no advance.
		return
	}

	m.mu.Lock()
	if !m.opts.AutoAdvance || m.current == -1 {
		m.mu.Unlock()
		return
	}
	if m.pending != nil {
		m.pending.Stop()
	}
	m.pending = m.clock.AfterFunc(m.advanceDelay, m.advanceNow)
	m.mu.Unlock()
}

// advanceNow performs the deferred auto-advance step.
func (m *QueueManager) advanceNow() {
	if !m.MoveToNext() {
		// Queue complete: reset playback to idle.
		m.logger.Info("queue complete")
		if m.coord != nil {
			m.coord.Stop()
		}
		m.changed()
		return
	}
	m.changed()
	if err := m.PlayCurrent(); err != nil {
		m.logger.Warn("auto-advance start failed", "err", err)
	}
}

func (m *QueueManager) cancelPendingAdvance() {
	m.mu.Lock()
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
	m.mu.Unlock()
}

func (m *QueueManager) stateLocked() QueueState {
	return QueueState{
		Items:        append([]QueueItem(nil), m.items...),
		CurrentIndex: m.current,
		Options:      m.opts,
		TotalDuration: lo.SumBy(m.items, func(it QueueItem) time.Duration {
			return it.Metadata.EstimatedReadingTime
		}),
	}
}

func (m *QueueManager) changed() {
	m.mu.Lock()
	state := m.stateLocked()
	persist := m.persist
	onChange := m.onChange
	m.mu.Unlock()

	if persist != nil {
		persist(state)
	}
	if onChange != nil {
		onChange(state)
	}
}
