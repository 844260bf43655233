// Package ui is the terminal status surface: current item, playback
// state, progress, speed/volume, and the reading queue. It talks to the
// engine through commands and receives state through a notification
// bridge, the same channel the WebSocket transport uses.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/readaloud/readaloud/engine"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	stateStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	activeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Bridge adapts engine notifications into Bubble Tea messages. It
// implements engine.Publisher; a full buffer drops the oldest-style
// semantics in favor of never blocking the engine.
type Bridge struct {
	ch chan engine.Notification
}

// NewBridge creates a notification bridge.
func NewBridge() *Bridge {
	return &Bridge{ch: make(chan engine.Notification, 32)}
}

// Publish implements engine.Publisher.
func (b *Bridge) Publish(n engine.Notification) {
	select {
	case b.ch <- n:
	default:
	}
}

// notificationMsg wraps one engine notification for the update loop.
type notificationMsg engine.Notification

// commandResultMsg reports a rejected command.
type commandResultMsg struct {
	err error
}

// Model is the Bubble Tea model for the status surface.
type Model struct {
	engine *engine.Engine
	bridge *Bridge

	playState string
	progress  engine.ProgressSnapshot
	speed     float64
	volume    int
	muted     bool
	queue     engine.QueueState

	bar   progress.Model
	width int
	err   error
}

// NewModel creates the model around a running engine.
func NewModel(eng *engine.Engine, bridge *Bridge) Model {
	bar := progress.New(progress.WithDefaultGradient())
	return Model{
		engine:    eng,
		bridge:    bridge,
		playState: engine.StateIdle.String(),
		speed:     eng.Speed.Current(),
		volume:    eng.Volume.Current(),
		muted:     eng.Volume.IsMuted(),
		queue:     eng.Queue.State(),
		bar:       bar,
		width:     80,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.waitNotification()
}

// waitNotification blocks on the bridge until the next state change.
func (m Model) waitNotification() tea.Cmd {
	return func() tea.Msg {
		return notificationMsg(<-m.bridge.ch)
	}
}

// dispatch runs one engine command off the update loop.
func (m Model) dispatch(cmd engine.Command) tea.Cmd {
	return func() tea.Msg {
		return commandResultMsg{err: m.engine.Dispatch(cmd)}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 20
		if m.bar.Width > 60 {
			m.bar.Width = 60
		}
		return m, nil

	case notificationMsg:
		m.apply(engine.Notification(msg))
		return m, m.waitNotification()

	case commandResultMsg:
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) apply(n engine.Notification) {
	switch n.Type {
	case engine.NotifyPlaybackStateChanged:
		m.playState = n.State
		if n.Progress != nil {
			m.progress = *n.Progress
		}
	case engine.NotifySpeedChanged:
		m.speed = n.Speed
	case engine.NotifyVolumeChanged:
		m.volume = n.Volume
		m.muted = n.Muted
	case engine.NotifyQueueChanged:
		if n.Queue != nil {
			m.queue = *n.Queue
		}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.engine.Shutdown()
		return m, tea.Quit
	case " ":
		return m, m.dispatch(engine.Command{Type: engine.CmdToggle})
	case "enter":
		return m, m.dispatch(engine.Command{Type: engine.CmdStart})
	case "s":
		return m, m.dispatch(engine.Command{Type: engine.CmdStop})
	case "n", "right":
		return m, m.dispatch(engine.Command{Type: engine.CmdQueueNext})
	case "p", "left":
		return m, m.dispatch(engine.Command{Type: engine.CmdQueuePrev})
	case "+", "=":
		m.engine.Speed.IncreaseSpeed()
		return m, nil
	case "-":
		m.engine.Speed.DecreaseSpeed()
		return m, nil
	case "m":
		return m, m.dispatch(engine.Command{Type: engine.CmdToggleMute})
	case "[":
		return m, m.dispatch(engine.Command{Type: engine.CmdSetVolume, Volume: m.volume - 5})
	case "]":
		return m, m.dispatch(engine.Command{Type: engine.CmdSetVolume, Volume: m.volume + 5})
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("readaloud"))
	b.WriteString("  ")
	b.WriteString(stateStyle.Render(m.playState))
	b.WriteString("\n\n")

	if item, ok := m.currentItem(); ok {
		title := item.Title
		if title == "" {
			title = firstWords(item.Text, 8)
		}
		b.WriteString(activeStyle.Render(title))
		b.WriteString("\n")
		b.WriteString(m.bar.ViewAs(m.progress.PercentComplete / 100))
		b.WriteString(fmt.Sprintf(" %3.0f%%", m.progress.PercentComplete))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(fmt.Sprintf(
			"word %d/%d · elapsed %s · remaining ~%s",
			m.progress.CurrentWord, m.progress.TotalWords,
			clockFormat(time.Duration(m.progress.TimeElapsedSeconds)*time.Second),
			clockFormat(time.Duration(m.progress.EstimatedRemainingSeconds)*time.Second),
		)))
		b.WriteString("\n\n")
	}

	volume := fmt.Sprintf("vol %d", m.volume)
	if m.muted {
		volume = "muted"
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("speed %.1fx · %s", m.speed, volume)))
	b.WriteString("\n\n")

	b.WriteString(m.viewQueue())

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errStyle.Render(m.err.Error()))
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("space pause · n/p next/prev · +/- speed · [/] volume · m mute · s stop · q quit"))
	return b.String()
}

func (m Model) viewQueue() string {
	if len(m.queue.Items) == 0 {
		return dimStyle.Render("queue empty")
	}

	var b strings.Builder
	b.WriteString(dimStyle.Render(fmt.Sprintf("queue · %d items · ~%s total",
		len(m.queue.Items), clockFormat(m.queue.TotalDuration))))
	b.WriteString("\n")

	for i, item := range m.queue.Items {
		cursor := "  "
		style := dimStyle
		if i == m.queue.CurrentIndex {
			cursor = "> "
			style = activeStyle
		}
		title := item.Title
		if title == "" {
			title = firstWords(item.Text, 6)
		}
		line := fmt.Sprintf("%s%s (%d words, added %s)",
			cursor, title, item.Metadata.WordCount, humanize.Time(item.AddedAt))
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) currentItem() (engine.QueueItem, bool) {
	if m.queue.CurrentIndex < 0 || m.queue.CurrentIndex >= len(m.queue.Items) {
		return engine.QueueItem{}, false
	}
	return m.queue.Items[m.queue.CurrentIndex], true
}

// firstWords returns the first n words of text as a display title.
func firstWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
		return strings.Join(words, " ") + "…"
	}
	return strings.Join(words, " ")
}

// clockFormat renders a duration as m:ss or h:mm:ss.
func clockFormat(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
