// Package client implements the Scrapinium live-update client: a push
// channel multiplexing per-task subscriptions, an entity store merged from
// partial updates, and a polling fallback for when the channel is down.
package client

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scrapinium/liveclient/internal/config"
	"github.com/scrapinium/liveclient/internal/notify"
	"github.com/scrapinium/liveclient/internal/store"
)

// Version is the client version.
const Version = "0.4.0"

// Client wires the connection manager, dispatcher, multiplexer, store,
// notifier and poller together. It is constructed once at startup and torn
// down explicitly with Shutdown.
type Client struct {
	cfg      *config.Config
	log      zerolog.Logger
	clientID string

	store      *store.Store
	notifier   *notify.Notifier
	api        *API
	conn       *Conn
	subs       *Multiplexer
	dispatcher *Dispatcher
	poller     *Poller

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	stateHook func(ConnState)
}

// New creates a client from the given configuration.
func New(cfg *config.Config, log zerolog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		cfg:      cfg,
		log:      log.With().Str("component", "client").Logger(),
		clientID: uuid.NewString(),
		ctx:      ctx,
		cancel:   cancel,
	}

	c.store = store.New()
	c.notifier = notify.New(log, cfg.DismissAfter)
	c.api = NewAPI(cfg.APIURL, cfg.Token, c.clientID, log)
	c.conn = NewConn(cfg, log, c.clientID)
	c.subs = NewMultiplexer(log, c.conn.Send, c.conn.IsConnected)
	c.dispatcher = NewDispatcher(log, c.store, c.notifier, c.conn.CurrentEpoch, cfg.CompletedGrace, cfg.FailedGrace)
	c.poller = NewPoller(log, c.api, c.store, c.notifier, cfg.PollInterval, cfg.ListLimit)

	c.conn.onUp = c.onConnected
	c.conn.onDegraded = c.onDegraded
	c.conn.onState = c.onStateChange

	return c
}

// Run loads the initial state, opens the push channel and processes inbound
// frames. It blocks until Shutdown is called.
func (c *Client) Run() error {
	c.log.Info().
		Str("client_id", c.clientID).
		Str("url", c.cfg.ServerURL).
		Str("api", c.cfg.APIURL).
		Msg("starting client")

	c.initialLoad()
	c.conn.Connect(c.ctx)

	for {
		select {
		case <-c.ctx.Done():
			c.log.Info().Msg("client stopped")
			return nil
		case f := <-c.conn.Frames():
			c.dispatcher.Dispatch(f)
		}
	}
}

// Shutdown tears the client down: the connection loop, the poller, all grace
// and auto-dismiss timers, and any in-flight refetch.
func (c *Client) Shutdown() {
	c.log.Info().Msg("shutting down")
	c.cancel()
	if err := c.conn.Close(); err != nil {
		c.log.Debug().Err(err).Msg("error closing push channel")
	}
	c.poller.Stop()
	c.dispatcher.Close()
	c.notifier.Close()
}

// Subscribe registers interest in a task's live updates.
func (c *Client) Subscribe(taskID string) {
	c.subs.Subscribe(taskID)
}

// Unsubscribe releases interest in a task.
func (c *Client) Unsubscribe(taskID string) {
	c.subs.Unsubscribe(taskID)
}

// Reconnect requests a manual reconnect out of degraded mode.
func (c *Client) Reconnect() {
	c.conn.Reconnect()
}

// State returns the push-channel state.
func (c *Client) State() ConnState {
	return c.conn.State()
}

// Store exposes the entity store for read access.
func (c *Client) Store() *store.Store {
	return c.store
}

// Notifier exposes the notification queue.
func (c *Client) Notifier() *notify.Notifier {
	return c.notifier
}

// Poller exposes the polling fallback.
func (c *Client) Poller() *Poller {
	return c.poller
}

// API exposes the request/response collaborator.
func (c *Client) API() *API {
	return c.api
}

// OnStateChange installs a hook invoked on every connection state change,
// so an embedding UI can render a connectivity badge.
func (c *Client) OnStateChange(fn func(ConnState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateHook = fn
}

// CancelBatch asks the server to cancel a batch job. An application-level
// rejection surfaces the server message as an error notification; local
// state is left untouched.
func (c *Client) CancelBatch(ctx context.Context, id string) error {
	err := c.api.CancelBatch(ctx, id)
	if err == nil {
		c.notifier.Enqueue(notify.SeveritySuccess, "Batch "+id+" cancelled", "")
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		c.notifier.Enqueue(notify.SeverityError, "Could not cancel batch "+id, apiErr.Message)
	} else {
		c.notifier.Enqueue(notify.SeverityError, "Could not cancel batch "+id, err.Error())
	}
	return err
}

// initialLoad populates the store once before the push channel settles, so
// views have content even if the first connection attempt takes a while.
// Each fetch failure is surfaced and skipped; the client stays interactive.
func (c *Client) initialLoad() {
	if tasks, err := c.api.ListTasks(c.ctx, c.cfg.ListLimit); err != nil {
		c.report("Could not load tasks", err)
	} else {
		c.store.ReplaceAll(store.KindTask, tasks)
	}

	if batches, err := c.api.ListBatches(c.ctx, c.cfg.ListLimit); err != nil {
		c.report("Could not load batches", err)
	} else {
		c.store.ReplaceAll(store.KindBatch, batches)
	}

	if stats, err := c.api.Stats(c.ctx); err != nil {
		c.report("Could not load stats", err)
	} else {
		c.store.Replace(store.KindStats, store.StatsID, stats)
	}
}

func (c *Client) report(msg string, err error) {
	if c.ctx.Err() != nil {
		return
	}
	c.log.Error().Err(err).Msg(msg)
	c.notifier.Enqueue(notify.SeverityError, msg, err.Error())
}

// onConnected runs after every successful (re)connection: the poller stands
// down and the interest set is re-sent, since the server does not keep
// subscriptions across connection epochs.
func (c *Client) onConnected(epoch uint64) {
	if c.poller.Running() {
		c.poller.Stop()
		c.notifier.Enqueue(notify.SeveritySuccess, "Real-time updates restored", "")
	}
	c.subs.Flush()
	c.log.Debug().Uint64("epoch", epoch).Int("subscriptions", len(c.subs.IDs())).Msg("subscriptions re-sent")
}

// onDegraded runs when the retry budget is spent: the user learns that
// real-time updates are off and polling takes over.
func (c *Client) onDegraded() {
	c.notifier.Enqueue(notify.SeverityError,
		"Real-time updates disabled",
		"Could not reach the server; falling back to periodic refresh.")
	c.poller.Start()
}

func (c *Client) onStateChange(s ConnState) {
	c.mu.Lock()
	hook := c.stateHook
	c.mu.Unlock()

	if hook != nil {
		hook(s)
	}
}
