package engine

// State-change notifications published to the messaging channel.
// Delivery is best-effort: a missing or slow receiver never blocks the
// engine, and in-memory state stays authoritative.

// NotificationType tags a published notification.
type NotificationType string

const (
	NotifyPlaybackStateChanged NotificationType = "PLAYBACK_STATE_CHANGED"
	NotifySpeedChanged         NotificationType = "SPEED_CHANGED"
	NotifyVolumeChanged        NotificationType = "VOLUME_CHANGED"
	NotifyQueueChanged         NotificationType = "QUEUE_CHANGED"
)

// Notification is one published state-change event.
type Notification struct {
	Type NotificationType `json:"type"`

	// PLAYBACK_STATE_CHANGED
	State    string            `json:"state,omitempty"`
	Progress *ProgressSnapshot `json:"progress,omitempty"`

	// SPEED_CHANGED
	Speed float64 `json:"speed,omitempty"`

	// VOLUME_CHANGED
	Volume int  `json:"volume,omitempty"`
	Muted  bool `json:"muted,omitempty"`

	// QUEUE_CHANGED
	Queue *QueueState `json:"queue,omitempty"`
}

// Publisher delivers notifications to whatever UI contexts are attached.
type Publisher interface {
	Publish(n Notification)
}

// CommandType tags a command accepted from the messaging channel.
type CommandType string

const (
	CmdStart        CommandType = "START"
	CmdPause        CommandType = "PAUSE"
	CmdResume       CommandType = "RESUME"
	CmdToggle       CommandType = "TOGGLE_PAUSE"
	CmdStop         CommandType = "STOP"
	CmdSetSpeed     CommandType = "SET_SPEED"
	CmdSetVolume    CommandType = "SET_VOLUME"
	CmdToggleMute   CommandType = "TOGGLE_MUTE"
	CmdQueueAdd     CommandType = "QUEUE_ADD"
	CmdQueueRemove  CommandType = "QUEUE_REMOVE"
	CmdQueueReorder CommandType = "QUEUE_REORDER"
	CmdQueueJump    CommandType = "QUEUE_JUMP"
	CmdQueueNext    CommandType = "QUEUE_NEXT"
	CmdQueuePrev    CommandType = "QUEUE_PREV"
	CmdQueueClear   CommandType = "QUEUE_CLEAR"
	CmdQueueOptions CommandType = "QUEUE_OPTIONS"
)

// Command is one control request from the messaging channel.
type Command struct {
	Type CommandType `json:"type"`

	// START / QUEUE_ADD
	Text   string `json:"text,omitempty"`
	Title  string `json:"title,omitempty"`
	Source string `json:"source,omitempty"`

	// SET_SPEED
	Speed float64 `json:"speed,omitempty"`

	// SET_VOLUME
	Volume int `json:"volume,omitempty"`

	// QUEUE_REMOVE
	ID string `json:"id,omitempty"`

	// QUEUE_REORDER / QUEUE_JUMP
	From  int `json:"from,omitempty"`
	To    int `json:"to,omitempty"`
	Index int `json:"index,omitempty"`

	// QUEUE_OPTIONS
	Options *QueueOptions `json:"options,omitempty"`
}
