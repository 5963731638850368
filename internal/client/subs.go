package client

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/scrapinium/liveclient/internal/protocol"
)

// Multiplexer tracks which task ids the client is interested in and mirrors
// that interest set to the server over the push channel. Server-side
// subscription state does not survive a connection epoch, so the whole set
// is re-sent after every successful (re)connect.
type Multiplexer struct {
	log       zerolog.Logger
	send      func(protocol.Outbound) error
	connected func() bool

	mu  sync.Mutex
	set map[string]struct{}
}

// NewMultiplexer creates a multiplexer. send writes a control message to the
// server; connected reports whether the push channel is up.
func NewMultiplexer(log zerolog.Logger, send func(protocol.Outbound) error, connected func() bool) *Multiplexer {
	return &Multiplexer{
		log:       log.With().Str("component", "subs").Logger(),
		send:      send,
		connected: connected,
		set:       make(map[string]struct{}),
	}
}

// Subscribe adds the id to the interest set. If connected, the subscribe
// control message goes out immediately; otherwise the id stays queued and is
// flushed on the next successful connection. Subscribing an already-known id
// is a no-op.
func (m *Multiplexer) Subscribe(id string) {
	m.mu.Lock()
	if _, ok := m.set[id]; ok {
		m.mu.Unlock()
		return
	}
	m.set[id] = struct{}{}
	m.mu.Unlock()

	if !m.connected() {
		m.log.Debug().Str("task_id", id).Msg("queued subscription, channel down")
		return
	}
	if err := m.send(protocol.Subscribe(id)); err != nil {
		m.log.Debug().Err(err).Str("task_id", id).Msg("subscribe send failed, will flush on reconnect")
	}
}

// Unsubscribe removes the id from the interest set and, if connected, tells
// the server. Unsubscribing an absent id is a no-op.
func (m *Multiplexer) Unsubscribe(id string) {
	m.mu.Lock()
	if _, ok := m.set[id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.set, id)
	m.mu.Unlock()

	if !m.connected() {
		return
	}
	if err := m.send(protocol.Unsubscribe(id)); err != nil {
		m.log.Debug().Err(err).Str("task_id", id).Msg("unsubscribe send failed")
	}
}

// Flush re-sends the entire interest set. Called after every successful
// (re)connection.
func (m *Multiplexer) Flush() {
	for _, id := range m.IDs() {
		if err := m.send(protocol.Subscribe(id)); err != nil {
			m.log.Debug().Err(err).Str("task_id", id).Msg("resubscribe failed")
			return
		}
	}
}

// IDs returns the interest set, sorted for stable iteration.
func (m *Multiplexer) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.set))
	for id := range m.set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
