// Package engine implements the playback orchestration core: the
// pause/resume coordinator, progress tracker, speed and volume
// controllers, and the reading queue. It turns a callback-driven,
// single-utterance speech capability into a multi-item, pausable,
// resumable reading session.
package engine

import (
	"github.com/charmbracelet/log"
)

// Store persists settings and the queue. Writes are expected to be
// debounced by the implementation; failures are reported, never fatal.
type Store interface {
	SaveSpeed(value float64)
	SaveVolume(volume int, muted bool)
	SaveDomainVolumes(overrides map[string]float64)
	SaveQueue(state QueueState)
	Flush()
}

// Persisted is the state read from the store at startup.
type Persisted struct {
	Speed         float64
	Volume        int
	Muted         bool
	DomainVolumes map[string]float64
	QueueItems    []QueueItem
	QueueOptions  QueueOptions
}

// Engine is the context object constructed once at startup. It wires the
// controllers, coordinator and queue together and dispatches commands
// from the messaging channel. There is no hidden global state: every
// component that needs a collaborator holds a reference handed to it
// here.
type Engine struct {
	Speed  *SpeedController
	Volume *VolumeController
	Coord  *Coordinator
	Queue  *QueueManager

	store     Store
	publisher Publisher
	logger    *log.Logger
}

// New constructs the engine around a speech capability. A nil store or
// publisher degrades to local-only operation.
func New(capability Capability, store Store, publisher Publisher, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}

	speed := NewSpeedController(logger.WithPrefix("speed"))
	volume := NewVolumeController(logger.WithPrefix("volume"))
	coord := NewCoordinator(capability, speed, volume, logger.WithPrefix("playback"))
	queue := NewQueueManager(coord, logger.WithPrefix("queue"))

	e := &Engine{
		Speed:     speed,
		Volume:    volume,
		Coord:     coord,
		Queue:     queue,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}

	if store != nil {
		speed.SetPersist(store.SaveSpeed)
		volume.SetPersist(store.SaveVolume, store.SaveDomainVolumes)
		queue.SetPersist(store.SaveQueue)
	}

	speed.OnChange(func(value float64, _ ChangeSource) {
		e.publish(Notification{Type: NotifySpeedChanged, Speed: value})
	})
	volume.OnChange(func(v int, muted bool, _ ChangeSource) {
		e.publish(Notification{Type: NotifyVolumeChanged, Volume: v, Muted: muted})
	})
	queue.OnChange(func(state QueueState) {
		e.publish(Notification{Type: NotifyQueueChanged, Queue: &state})
	})
	coord.OnStateChange(func(state SessionState) {
		progress := coord.Progress()
		e.publish(Notification{
			Type:     NotifyPlaybackStateChanged,
			State:    state.String(),
			Progress: &progress,
		})
	})

	return e
}

// Restore loads persisted state into the controllers and queue without
// writing it back through the debounced path.
func (e *Engine) Restore(p Persisted) {
	if p.Speed > 0 {
		e.Speed.Restore(p.Speed)
	}
	e.Volume.Restore(p.Volume, p.Muted, p.DomainVolumes)
	e.Queue.Restore(p.QueueItems, p.QueueOptions)
}

// Dispatch executes one command from the messaging channel. Synchronous
// rejections (invalid input, full queue, duplicates) are returned to the
// caller; capability errors surface through the ended notification.
func (e *Engine) Dispatch(cmd Command) error {
	switch cmd.Type {
	case CmdStart:
		if cmd.Text != "" {
			if _, err := e.Queue.AddItem(cmd.Title, cmd.Text, cmd.Source); err != nil {
				return err
			}
			state := e.Queue.State()
			if err := e.Queue.JumpToItem(len(state.Items) - 1); err != nil {
				return err
			}
		}
		return e.Queue.PlayCurrent()
	case CmdPause:
		e.Coord.Pause()
		return nil
	case CmdResume:
		return e.Coord.Resume()
	case CmdToggle:
		e.Coord.TogglePause()
		return nil
	case CmdStop:
		e.Coord.Stop()
		return nil
	case CmdSetSpeed:
		e.Speed.SetSpeed(cmd.Speed, SourceRemote)
		return nil
	case CmdSetVolume:
		e.Volume.SetVolume(cmd.Volume, SourceRemote)
		return nil
	case CmdToggleMute:
		e.Volume.ToggleMute()
		return nil
	case CmdQueueAdd:
		_, err := e.Queue.AddItem(cmd.Title, cmd.Text, cmd.Source)
		return err
	case CmdQueueRemove:
		return e.Queue.RemoveItem(cmd.ID)
	case CmdQueueReorder:
		return e.Queue.ReorderItems(cmd.From, cmd.To)
	case CmdQueueJump:
		if err := e.Queue.JumpToItem(cmd.Index); err != nil {
			return err
		}
		return e.Queue.PlayCurrent()
	case CmdQueueNext:
		if e.Queue.MoveToNext() {
			return e.Queue.PlayCurrent()
		}
		return nil
	case CmdQueuePrev:
		if e.Queue.MoveToPrevious() {
			return e.Queue.PlayCurrent()
		}
		return nil
	case CmdQueueClear:
		e.Queue.Clear()
		return nil
	case CmdQueueOptions:
		if cmd.Options != nil {
			e.Queue.SetOptions(*cmd.Options)
		}
		return nil
	default:
		return wrapErr(ErrInvalidInput, "engine", "dispatch "+string(cmd.Type))
	}
}

// Shutdown flushes pending writes and stops playback.
func (e *Engine) Shutdown() {
	e.Coord.Stop()
	if e.store != nil {
		e.store.Flush()
	}
}

// publish sends a notification, tolerating a missing publisher.
func (e *Engine) publish(n Notification) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(n)
}
