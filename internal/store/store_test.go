package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeCreatesEntityWithOnlyGivenFields(t *testing.T) {
	s := New()

	ent := s.Merge(KindTask, "t1", map[string]any{"status": "pending"})

	assert.Equal(t, "t1", ent.ID)
	assert.Equal(t, KindTask, ent.Kind)
	assert.Equal(t, map[string]any{"status": "pending"}, ent.Fields)

	got, ok := s.Get(KindTask, "t1")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"status": "pending"}, got.Fields)
}

func TestMergePreservesAbsentFields(t *testing.T) {
	s := New()
	s.Merge(KindTask, "t1", map[string]any{"status": "running", "url": "https://example.com"})

	ent := s.Merge(KindTask, "t1", map[string]any{"status": "completed"})

	assert.Equal(t, "completed", ent.Fields["status"])
	assert.Equal(t, "https://example.com", ent.Fields["url"])
}

// Sequential merges must equal a single merge of the field-wise union applied
// in order.
func TestMergeIsAssociativePerField(t *testing.T) {
	u1 := map[string]any{"status": "running", "progress": 10}
	u2 := map[string]any{"progress": 90, "url": "https://example.com"}

	sequential := New()
	sequential.Merge(KindTask, "t1", map[string]any{"status": "pending"})
	sequential.Merge(KindTask, "t1", u1)
	sequential.Merge(KindTask, "t1", u2)

	union := map[string]any{}
	for k, v := range u1 {
		union[k] = v
	}
	for k, v := range u2 {
		union[k] = v
	}
	combined := New()
	combined.Merge(KindTask, "t1", map[string]any{"status": "pending"})
	combined.Merge(KindTask, "t1", union)

	a, _ := sequential.Get(KindTask, "t1")
	b, _ := combined.Get(KindTask, "t1")
	assert.Equal(t, b.Fields, a.Fields)
}

func TestReplaceSwapsFieldsWholesale(t *testing.T) {
	s := New()
	s.Replace(KindStats, StatsID, map[string]any{"total_tasks": 5, "cache_hits": 100})

	ent := s.Replace(KindStats, StatsID, map[string]any{"total_tasks": 6})

	assert.Equal(t, map[string]any{"total_tasks": 6}, ent.Fields)
	got, _ := s.Get(KindStats, StatsID)
	assert.NotContains(t, got.Fields, "cache_hits")
}

func TestListKeepsInsertionOrder(t *testing.T) {
	s := New()
	s.Merge(KindTask, "b", map[string]any{})
	s.Merge(KindTask, "a", map[string]any{})
	s.Merge(KindTask, "c", map[string]any{})
	s.Merge(KindTask, "a", map[string]any{"status": "running"}) // no reorder on update

	var ids []string
	for _, e := range s.List(KindTask) {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
}

func TestReplaceAllResetsCollectionAndActiveView(t *testing.T) {
	s := New()
	s.Merge(KindTask, "old", map[string]any{"status": "running"})
	s.Deactivate(KindTask, "old")

	s.ReplaceAll(KindTask, []Record{
		{ID: "n1", Fields: map[string]any{"status": "pending"}},
		{ID: "n2", Fields: map[string]any{"status": "running"}},
	})

	_, ok := s.Get(KindTask, "old")
	assert.False(t, ok, "old entity should be gone after full refresh")

	active := s.ListActive(KindTask)
	require.Len(t, active, 2)
	assert.Equal(t, "n1", active[0].ID)
	assert.Equal(t, "n2", active[1].ID)
}

func TestDeactivateKeepsEntityQueryable(t *testing.T) {
	s := New()
	s.Merge(KindTask, "t1", map[string]any{"status": "completed"})

	s.Deactivate(KindTask, "t1")

	assert.Empty(t, s.ListActive(KindTask))
	got, ok := s.Get(KindTask, "t1")
	require.True(t, ok)
	assert.Equal(t, "completed", got.Fields["status"])
	assert.Len(t, s.List(KindTask), 1)
}

func TestLastSeenAtNeverDecreases(t *testing.T) {
	s := New()
	times := []time.Time{
		time.Unix(100, 0),
		time.Unix(200, 0),
		time.Unix(150, 0), // clock went backwards
	}
	i := 0
	s.now = func() time.Time { t := times[i]; i++; return t }

	s.Merge(KindTask, "t1", map[string]any{})
	s.Merge(KindTask, "t1", map[string]any{})
	ent := s.Merge(KindTask, "t1", map[string]any{})

	assert.Equal(t, time.Unix(200, 0), ent.LastSeenAt)
}

func TestSnapshotsAreIsolatedFromLaterMutation(t *testing.T) {
	s := New()
	before := s.Merge(KindTask, "t1", map[string]any{"status": "pending"})

	s.Merge(KindTask, "t1", map[string]any{"status": "running"})

	assert.Equal(t, "pending", before.Fields["status"])
}
