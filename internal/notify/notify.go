// Package notify implements the transient user-facing notification queue.
package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Severity classifies a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// ParseSeverity maps a wire severity string onto a known Severity,
// defaulting to info.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeveritySuccess:
		return SeveritySuccess
	case SeverityError:
		return SeverityError
	default:
		return SeverityInfo
	}
}

// Notification is a single user-facing message.
type Notification struct {
	ID        int64
	Severity  Severity
	Message   string
	Details   string
	CreatedAt time.Time
}

// Notifier maintains an ordered notification queue. Non-error notifications
// are removed automatically after a fixed delay; errors persist until
// dismissed.
type Notifier struct {
	log          zerolog.Logger
	dismissAfter time.Duration

	mu     sync.Mutex
	nextID int64
	queue  []Notification
	timers map[int64]*time.Timer
	closed bool
}

// New creates a notifier whose non-error notifications auto-dismiss after
// dismissAfter.
func New(log zerolog.Logger, dismissAfter time.Duration) *Notifier {
	return &Notifier{
		log:          log.With().Str("component", "notify").Logger(),
		dismissAfter: dismissAfter,
		timers:       make(map[int64]*time.Timer),
	}
}

// Enqueue appends a notification and arms its auto-dismiss timer unless the
// severity is error. The timer removes exactly the notification it was armed
// for, so a later notification is never dismissed in its place.
func (n *Notifier) Enqueue(sev Severity, message, details string) Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return Notification{}
	}

	n.nextID++
	note := Notification{
		ID:        n.nextID,
		Severity:  sev,
		Message:   message,
		Details:   details,
		CreatedAt: time.Now(),
	}
	n.queue = append(n.queue, note)

	if sev != SeverityError {
		id := note.ID
		n.timers[id] = time.AfterFunc(n.dismissAfter, func() {
			n.Dismiss(id)
		})
	}

	n.log.Debug().
		Int64("id", note.ID).
		Str("severity", string(sev)).
		Str("message", message).
		Msg("notification enqueued")
	return note
}

// Dismiss removes the notification with the given id, regardless of severity.
// Unknown ids are a no-op.
func (n *Notifier) Dismiss(id int64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if t, ok := n.timers[id]; ok {
		t.Stop()
		delete(n.timers, id)
	}
	for i, note := range n.queue {
		if note.ID == id {
			n.queue = append(n.queue[:i], n.queue[i+1:]...)
			return
		}
	}
}

// List returns the current queue, oldest first.
func (n *Notifier) List() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification{}, n.queue...)
}

// Close stops all pending auto-dismiss timers. Further enqueues are ignored.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
}
