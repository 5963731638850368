package client

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/scrapinium/liveclient/internal/notify"
	"github.com/scrapinium/liveclient/internal/store"
)

// collectionFetcher is the slice of the API the poller needs.
type collectionFetcher interface {
	ListTasks(ctx context.Context, limit int) ([]store.Record, error)
	ListBatches(ctx context.Context, limit int) ([]store.Record, error)
}

// Poller periodically refetches the task and batch collections while the
// push channel is down. A poll result is authoritative and complete, so it
// replaces the store's collections instead of merging into them.
type Poller struct {
	log      zerolog.Logger
	api      collectionFetcher
	store    *store.Store
	notifier *notify.Notifier
	interval time.Duration
	limit    int

	mu       sync.Mutex
	cancel   context.CancelFunc
	running  bool
	inFlight bool
	failing  bool
	starts   int
}

// NewPoller creates a poller that refreshes every interval, fetching at most
// limit records per collection.
func NewPoller(log zerolog.Logger, api collectionFetcher, st *store.Store, notifier *notify.Notifier, interval time.Duration, limit int) *Poller {
	return &Poller{
		log:      log.With().Str("component", "poller").Logger(),
		api:      api,
		store:    st,
		notifier: notifier,
		interval: interval,
		limit:    limit,
	}
}

// Start begins periodic refetching. Calling Start while already running is a
// no-op. The first refetch happens immediately.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.starts++
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	p.log.Info().Dur("interval", p.interval).Msg("polling fallback started")
	go p.loop(ctx)
}

// Stop cancels the timer and aborts an in-flight refetch, if any.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.running = false
	p.cancel()
	p.log.Info().Msg("polling fallback stopped")
}

// Running reports whether the poller is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Starts returns how many times the poller has been started.
func (p *Poller) Starts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts
}

func (p *Poller) loop(ctx context.Context) {
	p.refreshAsync(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refreshAsync(ctx)
		}
	}
}

// refreshAsync launches one refetch unless the previous one is still
// outstanding, in which case the tick is skipped.
func (p *Poller) refreshAsync(ctx context.Context) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		p.log.Debug().Msg("refetch still outstanding, skipping tick")
		return
	}
	p.inFlight = true
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			p.inFlight = false
			p.mu.Unlock()
		}()
		p.refresh(ctx)
	}()
}

// refresh fetches both collections and replaces them in the store. The first
// failure of a streak surfaces a notification; repeats only log.
func (p *Poller) refresh(ctx context.Context) {
	tasks, err := p.api.ListTasks(ctx, p.limit)
	if err != nil {
		p.fail(ctx, err)
		return
	}
	batches, err := p.api.ListBatches(ctx, p.limit)
	if err != nil {
		p.fail(ctx, err)
		return
	}

	p.store.ReplaceAll(store.KindTask, tasks)
	p.store.ReplaceAll(store.KindBatch, batches)

	p.mu.Lock()
	p.failing = false
	p.mu.Unlock()
	p.log.Debug().Int("tasks", len(tasks)).Int("batches", len(batches)).Msg("collections refreshed")
}

func (p *Poller) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	first := !p.failing
	p.failing = true
	p.mu.Unlock()

	p.log.Error().Err(err).Msg("refetch failed")
	if first {
		p.notifier.Enqueue(notify.SeverityError, "Background refresh failed", err.Error())
	}
}
