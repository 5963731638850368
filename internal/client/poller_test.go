package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapinium/liveclient/internal/notify"
	"github.com/scrapinium/liveclient/internal/store"
)

// fakeFetcher serves canned collections with an optional per-call delay.
type fakeFetcher struct {
	mu      sync.Mutex
	tasks   []store.Record
	batches []store.Record
	err     error
	delay   time.Duration
	calls   int
}

func (f *fakeFetcher) ListTasks(ctx context.Context, limit int) ([]store.Record, error) {
	f.mu.Lock()
	f.calls++
	delay, err, tasks := f.delay, f.err, f.tasks
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (f *fakeFetcher) ListBatches(ctx context.Context, limit int) ([]store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.batches, nil
}

func (f *fakeFetcher) taskCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestPoller(t *testing.T, api collectionFetcher, interval time.Duration) (*Poller, *store.Store, *notify.Notifier) {
	t.Helper()
	st := store.New()
	notifier := notify.New(zerolog.Nop(), time.Minute)
	t.Cleanup(notifier.Close)

	p := NewPoller(zerolog.Nop(), api, st, notifier, interval, 50)
	t.Cleanup(p.Stop)
	return p, st, notifier
}

func TestPollerReplacesCollections(t *testing.T) {
	api := &fakeFetcher{
		tasks:   []store.Record{{ID: "t1", Fields: map[string]any{"status": "running"}}},
		batches: []store.Record{{ID: "b1", Fields: map[string]any{"status": "pending"}}},
	}
	p, st, _ := newTestPoller(t, api, 50*time.Millisecond)

	// Pre-existing push state is superseded by the authoritative poll.
	st.Merge(store.KindTask, "stale", map[string]any{"status": "running"})

	p.Start()

	require.Eventually(t, func() bool {
		tasks := st.List(store.KindTask)
		return len(tasks) == 1 && tasks[0].ID == "t1"
	}, time.Second, 5*time.Millisecond)

	batches := st.List(store.KindBatch)
	require.Len(t, batches, 1)
	assert.Equal(t, "b1", batches[0].ID)
}

func TestPollerStartIsIdempotent(t *testing.T) {
	api := &fakeFetcher{}
	p, _, _ := newTestPoller(t, api, time.Hour)

	p.Start()
	p.Start()
	p.Start()

	assert.Equal(t, 1, p.Starts())
	assert.True(t, p.Running())
}

func TestPollerSkipsTickWhileRefetchOutstanding(t *testing.T) {
	api := &fakeFetcher{delay: 200 * time.Millisecond}
	p, _, _ := newTestPoller(t, api, 20*time.Millisecond)

	p.Start()
	time.Sleep(120 * time.Millisecond)

	// Many ticks elapsed but the first slow refetch is still in flight, so
	// no overlapping fetch was issued.
	assert.Equal(t, 1, api.taskCalls())
}

func TestPollerStopAbortsInFlightRefetch(t *testing.T) {
	api := &fakeFetcher{delay: 5 * time.Second}
	p, _, _ := newTestPoller(t, api, time.Hour)

	p.Start()
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return promptly")
	}
	assert.False(t, p.Running())
}

func TestPollerNotifiesOncePerFailureStreak(t *testing.T) {
	api := &fakeFetcher{err: errors.New("connection refused")}
	p, _, notifier := newTestPoller(t, api, 20*time.Millisecond)

	p.Start()

	require.Eventually(t, func() bool { return api.taskCalls() >= 3 },
		time.Second, 5*time.Millisecond)

	notes := notifier.List()
	require.Len(t, notes, 1, "a failure streak surfaces a single notification")
	assert.Equal(t, notify.SeverityError, notes[0].Severity)
}
