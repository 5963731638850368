package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/scrapinium/liveclient/internal/notify"
	"github.com/scrapinium/liveclient/internal/protocol"
	"github.com/scrapinium/liveclient/internal/store"
)

// Terminal task statuses.
const (
	statusCompleted = "completed"
	statusFailed    = "failed"
)

// Dispatcher decodes inbound frames and routes them to the entity store,
// the notifier, or the keepalive bookkeeping. Malformed frames are logged
// and swallowed; they never crash the client or mutate state.
type Dispatcher struct {
	log            zerolog.Logger
	store          *store.Store
	notifier       *notify.Notifier
	currentEpoch   func() uint64
	completedGrace time.Duration
	failedGrace    time.Duration

	mu       sync.Mutex
	lastPong time.Time
	timers   []*time.Timer
	closed   bool
}

// NewDispatcher creates a dispatcher. currentEpoch reports the connection
// manager's live epoch so stale frames can be dropped.
func NewDispatcher(log zerolog.Logger, st *store.Store, notifier *notify.Notifier, currentEpoch func() uint64, completedGrace, failedGrace time.Duration) *Dispatcher {
	return &Dispatcher{
		log:            log.With().Str("component", "dispatch").Logger(),
		store:          st,
		notifier:       notifier,
		currentEpoch:   currentEpoch,
		completedGrace: completedGrace,
		failedGrace:    failedGrace,
	}
}

// Dispatch parses and routes one raw frame. Frames tagged with an epoch
// older than the current connection epoch are dropped unseen: no ordering
// guarantee holds across a reconnect.
func (d *Dispatcher) Dispatch(f frame) {
	if cur := d.currentEpoch(); f.epoch != cur {
		d.log.Debug().Uint64("frame_epoch", f.epoch).Uint64("epoch", cur).Msg("dropping stale frame")
		return
	}

	msg, err := protocol.DecodeInbound(f.raw)
	if err != nil {
		d.log.Error().Err(err).Str("data", string(f.raw)).Msg("malformed message")
		return
	}

	switch m := msg.(type) {
	case protocol.TaskUpdate:
		d.handleTaskUpdate(m)
	case protocol.StatsUpdate:
		d.store.Replace(store.KindStats, store.StatsID, m.Stats)
	case protocol.Notice:
		d.notifier.Enqueue(notify.ParseSeverity(m.Severity), m.Message, m.Details)
	case protocol.Pong:
		d.mu.Lock()
		d.lastPong = time.Now()
		d.mu.Unlock()
	case protocol.Unknown:
		d.log.Warn().Str("type", m.Type).Msg("unknown message type")
	}
}

// handleTaskUpdate merges the partial update and, on a terminal status,
// notifies the user and schedules removal from the active view after the
// grace delay.
func (d *Dispatcher) handleTaskUpdate(m protocol.TaskUpdate) {
	d.store.Merge(store.KindTask, m.TaskID, m.Fields)
	d.log.Debug().Str("task_id", m.TaskID).Int("fields", len(m.Fields)).Msg("task merged")

	status, _ := m.Fields["status"].(string)
	switch status {
	case statusCompleted:
		d.notifier.Enqueue(notify.SeveritySuccess, fmt.Sprintf("Task %s completed", m.TaskID), "")
		d.scheduleDeactivate(m.TaskID, d.completedGrace)
	case statusFailed:
		details, _ := m.Fields["error"].(string)
		d.notifier.Enqueue(notify.SeverityError, fmt.Sprintf("Task %s failed", m.TaskID), details)
		d.scheduleDeactivate(m.TaskID, d.failedGrace)
	}
}

// scheduleDeactivate arms a grace timer that removes the task from the
// active view. Timers are tracked so Close can cancel them.
func (d *Dispatcher) scheduleDeactivate(taskID string, grace time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.timers = append(d.timers, time.AfterFunc(grace, func() {
		d.store.Deactivate(store.KindTask, taskID)
		d.log.Debug().Str("task_id", taskID).Msg("task left active view")
	}))
}

// LastPong returns when the most recent pong arrived.
func (d *Dispatcher) LastPong() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastPong
}

// Close cancels all pending grace timers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	for _, t := range d.timers {
		t.Stop()
	}
	d.timers = nil
}
