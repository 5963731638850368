// Package store holds the client-side mirror of server entities.
package store

import (
	"sync"
	"time"
)

// Kind identifies an entity collection.
type Kind string

const (
	KindTask  Kind = "task"
	KindBatch Kind = "batch"
	KindStats Kind = "stats"
)

// StatsID is the identifier of the singleton stats entity.
const StatsID = "stats"

// Entity is a server-owned object mirrored client-side. Fields is a flat
// mapping of named values; LastSeenAt is display-only and never used for
// conflict resolution.
type Entity struct {
	ID         string
	Kind       Kind
	Fields     map[string]any
	LastSeenAt time.Time
}

// Record is the input shape for a full-refresh of a collection.
type Record struct {
	ID     string
	Fields map[string]any
}

// Store is an in-memory entity map keyed by (kind, id). Tasks and batches
// keep insertion order because the order is display-relevant. Entities that
// reach a terminal state can be removed from the active view while staying
// queryable.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	entities map[Kind]map[string]*Entity
	order    map[Kind][]string
	inactive map[Kind]map[string]bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		now:      time.Now,
		entities: make(map[Kind]map[string]*Entity),
		order:    make(map[Kind][]string),
		inactive: make(map[Kind]map[string]bool),
	}
}

// Merge applies a partial update: every field present in fields overwrites
// the stored value, every absent field is preserved. An unknown id creates a
// new entity holding only the given fields. The returned entity is a copy.
func (s *Store) Merge(kind Kind, id string, fields map[string]any) Entity {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.ensure(kind, id)
	for k, v := range fields {
		ent.Fields[k] = v
	}
	s.touch(ent)
	return snapshot(ent)
}

// Replace swaps the entity's fields wholesale. Used for the stats singleton,
// which is a point-in-time aggregate rather than an incrementally-updated
// object.
func (s *Store) Replace(kind Kind, id string, fields map[string]any) Entity {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.ensure(kind, id)
	ent.Fields = make(map[string]any, len(fields))
	for k, v := range fields {
		ent.Fields[k] = v
	}
	s.touch(ent)
	return snapshot(ent)
}

// ReplaceAll swaps an entire collection with the given records, in the given
// order. The active view for the kind is reset: everything fetched is active.
func (s *Store) ReplaceAll(kind Kind, records []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	byID := make(map[string]*Entity, len(records))
	order := make([]string, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		if _, dup := byID[r.ID]; dup {
			continue
		}
		fields := make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			fields[k] = v
		}
		byID[r.ID] = &Entity{ID: r.ID, Kind: kind, Fields: fields, LastSeenAt: now}
		order = append(order, r.ID)
	}
	s.entities[kind] = byID
	s.order[kind] = order
	delete(s.inactive, kind)
}

// Get returns a copy of the entity, if present.
func (s *Store) Get(kind Kind, id string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ent, ok := s.entities[kind][id]
	if !ok {
		return Entity{}, false
	}
	return snapshot(ent), true
}

// List returns copies of all entities of a kind in insertion order.
func (s *Store) List(kind Kind) []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entity, 0, len(s.order[kind]))
	for _, id := range s.order[kind] {
		out = append(out, snapshot(s.entities[kind][id]))
	}
	return out
}

// ListActive returns copies of the entities still in the active view, in
// insertion order.
func (s *Store) ListActive(kind Kind) []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entity, 0, len(s.order[kind]))
	for _, id := range s.order[kind] {
		if s.inactive[kind][id] {
			continue
		}
		out = append(out, snapshot(s.entities[kind][id]))
	}
	return out
}

// Deactivate removes an entity from the active view. It stays queryable via
// Get and List.
func (s *Store) Deactivate(kind Kind, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[kind][id]; !ok {
		return
	}
	if s.inactive[kind] == nil {
		s.inactive[kind] = make(map[string]bool)
	}
	s.inactive[kind][id] = true
}

// ensure returns the stored entity for (kind, id), creating it if absent.
// Caller holds s.mu.
func (s *Store) ensure(kind Kind, id string) *Entity {
	if s.entities[kind] == nil {
		s.entities[kind] = make(map[string]*Entity)
	}
	ent, ok := s.entities[kind][id]
	if !ok {
		ent = &Entity{ID: id, Kind: kind, Fields: make(map[string]any)}
		s.entities[kind][id] = ent
		s.order[kind] = append(s.order[kind], id)
	}
	return ent
}

// touch advances LastSeenAt, keeping it non-decreasing. Caller holds s.mu.
func (s *Store) touch(ent *Entity) {
	if now := s.now(); now.After(ent.LastSeenAt) {
		ent.LastSeenAt = now
	}
}

// snapshot copies an entity so readers never observe later mutations.
func snapshot(ent *Entity) Entity {
	fields := make(map[string]any, len(ent.Fields))
	for k, v := range ent.Fields {
		fields[k] = v
	}
	return Entity{ID: ent.ID, Kind: ent.Kind, Fields: fields, LastSeenAt: ent.LastSeenAt}
}
