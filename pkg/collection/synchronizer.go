package collection

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/centsible/centsible/internal/event_bus"
	"github.com/centsible/centsible/pkg/realtime"
	"github.com/centsible/centsible/pkg/store"
)

// Entity is anything a synchronizer can mirror. Ids are globally unique
// within an entity's table; the local index is keyed by id, never by
// position.
type Entity interface {
	EntityID() string
}

// Querier is the slice of the remote query surface a synchronizer needs:
// the scoped bulk fetch and the remote delete backing optimistic deletes.
type Querier interface {
	FetchAll(ctx context.Context, table string, filter store.Filter) ([]store.Row, error)
	Delete(ctx context.Context, table string, id string) error
}

// Config wires one synchronizer to its table.
type Config[T Entity] struct {
	// Table is the remote table mirrored locally.
	Table string
	// FilterColumn scopes the collection (owner id or parent id column).
	// Change events are subscribed per table, so incoming events are checked
	// against this column client-side before being applied.
	FilterColumn string
	Querier      Querier
	Stream       realtime.Stream
	// Decode turns an opaque row into the entity. A row that fails to decode
	// degrades that row only; it never aborts the rest of a batch.
	Decode func(store.Row) (T, error)
	// Bus, when set, receives a CollectionChanged event for every applied
	// mutation so the view layer can re-render.
	Bus *event_bus.EventBus
}

// Synchronizer keeps an in-memory ordered collection consistent with a
// remote, independently-mutating table scoped by a filter key: one bulk
// fetch on activation plus a long-lived change subscription, with change
// events applied as they arrive. Every state transition completes under one
// lock before anything else observes the collection, so no partially-applied
// state is ever visible.
type Synchronizer[T Entity] struct {
	cfg Config[T]

	mu         sync.Mutex
	generation uint64
	active     bool
	filterKey  string
	order      []string
	items      map[string]T
	fetched    bool
	fetchErr   error
}

func NewSynchronizer[T Entity](cfg Config[T]) (*Synchronizer[T], error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("table must not be empty")
	}
	if cfg.FilterColumn == "" {
		return nil, fmt.Errorf("filter column must not be empty")
	}
	if cfg.Querier == nil || cfg.Stream == nil || cfg.Decode == nil {
		return nil, fmt.Errorf("querier, stream, and decode are required")
	}
	return &Synchronizer[T]{cfg: cfg, items: make(map[string]T)}, nil
}

// Activation is the deactivation handle returned by Activate.
type Activation[T Entity] struct {
	s          *Synchronizer[T]
	generation uint64
	sub        *realtime.Subscription
	cancel     context.CancelFunc
	once       sync.Once
}

// Deactivate closes the change subscription and synchronously stops further
// events and any in-flight bulk fetch from being applied. Safe to call more
// than once and on every exit path.
func (a *Activation[T]) Deactivate() {
	a.once.Do(func() {
		a.s.mu.Lock()
		if a.s.generation == a.generation {
			a.s.active = false
		}
		a.s.mu.Unlock()
		a.cancel()
		a.sub.Unsubscribe()
		log.Debugf("deactivated %s collection for key %q", a.s.cfg.Table, a.s.filterKey)
	})
}

// Activate scopes the collection to filterKey, opens the change subscription,
// and starts the one-shot bulk fetch. A previous activation of the same
// synchronizer is superseded: its late events and fetch results become
// no-ops. The subscription is opened before the fetch is issued so events
// racing the fetch are never lost; the bulk-fetch apply only fills ids not
// already present, so an event that arrived first wins.
func (s *Synchronizer[T]) Activate(ctx context.Context, filterKey string) (*Activation[T], error) {
	if filterKey == "" {
		return nil, fmt.Errorf("filter key must not be empty")
	}

	s.mu.Lock()
	s.generation++
	generation := s.generation
	s.active = true
	s.filterKey = filterKey
	s.items = make(map[string]T)
	s.order = nil
	s.fetched = false
	s.fetchErr = nil
	s.mu.Unlock()

	sub, err := s.cfg.Stream.Subscribe(s.cfg.Table, realtime.AllEvents...)
	if err != nil {
		s.mu.Lock()
		if s.generation == generation {
			s.active = false
		}
		s.mu.Unlock()
		return nil, fmt.Errorf("could not subscribe to %s changes: %w", s.cfg.Table, err)
	}

	activationCtx, cancel := context.WithCancel(ctx)
	activation := &Activation[T]{s: s, generation: generation, sub: sub, cancel: cancel}

	go func() {
		for ev := range sub.Events() {
			s.applyChangeEvent(generation, ev)
		}
	}()
	go func() {
		// The subscription must be released even when only the parent
		// context ends the activation.
		<-activationCtx.Done()
		activation.Deactivate()
	}()
	go func() {
		rows, err := s.cfg.Querier.FetchAll(activationCtx, s.cfg.Table, store.Filter{
			Column: s.cfg.FilterColumn,
			Value:  filterKey,
		})
		s.applyBulkFetch(generation, rows, err)
	}()

	log.Debugf("activated %s collection for key %q", s.cfg.Table, filterKey)
	return activation, nil
}

// Snapshot returns a copy of the collection in its current order. The view
// layer only ever reads snapshots; it never mutates the collection directly.
func (s *Synchronizer[T]) Snapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// Ready reports whether the bulk fetch has completed (successfully or not).
func (s *Synchronizer[T]) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetched
}

// Err returns the surfaced bulk-fetch error state, if any. A failed fetch
// leaves the collection empty and is not retried.
func (s *Synchronizer[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchErr
}

// FilterKey returns the scope of the current activation.
func (s *Synchronizer[T]) FilterKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterKey
}

// applyBulkFetch replaces the collection baseline in one atomic transition.
// Only ids not already present are filled in: a change event that raced
// ahead of the fetch already carries the newer image and must not be
// overwritten by the older fetch result.
func (s *Synchronizer[T]) applyBulkFetch(generation uint64, rows []store.Row, err error) {
	s.mu.Lock()
	if generation != s.generation || !s.active {
		s.mu.Unlock()
		log.Debugf("discarding stale bulk fetch for table %s", s.cfg.Table)
		return
	}

	if err != nil {
		s.fetchErr = err
		s.fetched = true
		table, key := s.cfg.Table, s.filterKey
		s.mu.Unlock()
		log.Errorf("bulk fetch for %s (key %q) failed: %v", table, key, err)
		s.notify(table, key, "REFRESH", "")
		return
	}

	for _, row := range rows {
		entity, decodeErr := s.cfg.Decode(row)
		if decodeErr != nil {
			log.Warnf("skipping undecodable %s row %q: %v", s.cfg.Table, row.ID(), decodeErr)
			continue
		}
		id := entity.EntityID()
		if _, exists := s.items[id]; exists {
			continue
		}
		s.items[id] = entity
		s.order = append(s.order, id)
	}
	s.fetched = true
	table, key := s.cfg.Table, s.filterKey
	s.mu.Unlock()

	s.notify(table, key, "REFRESH", "")
}

// applyChangeEvent merges one push event into the collection:
// INSERT appends unless the id is already present (a duplicate insert is a
// no-op on existing fields), UPDATE replaces in place or degrades to an
// insert when the id is still unknown, DELETE removes and is a no-op when
// absent. An UPDATE whose new image belongs to another filter key removes
// the locally held row. Events for other filter keys and events arriving
// after deactivation are ignored.
func (s *Synchronizer[T]) applyChangeEvent(generation uint64, ev realtime.ChangeEvent) {
	s.mu.Lock()
	if generation != s.generation || !s.active {
		s.mu.Unlock()
		return
	}

	changed := false
	entityID := ""
	switch ev.Kind {
	case realtime.EventInsert, realtime.EventUpdate:
		if ev.New == nil || ev.New.Field(s.cfg.FilterColumn) != s.filterKey {
			if ev.Kind == realtime.EventUpdate {
				// An update that re-assigns the row to another filter key
				// moves it out of this scope; keeping the stale image would
				// show the row in both scopes.
				entityID = ev.New.ID()
				if entityID == "" {
					entityID = ev.Old.ID()
				}
				changed = s.removeLocked(entityID)
			}
			break
		}
		entity, err := s.cfg.Decode(ev.New)
		if err != nil {
			log.Warnf("skipping undecodable %s %s event: %v", s.cfg.Table, ev.Kind, err)
			break
		}
		entityID = entity.EntityID()
		_, exists := s.items[entityID]
		switch {
		case ev.Kind == realtime.EventInsert && exists:
			// Bulk fetch and first push delivered the same row; keep the
			// one already applied.
		case exists:
			s.items[entityID] = entity
			changed = true
		default:
			s.items[entityID] = entity
			s.order = append(s.order, entityID)
			changed = true
		}
	case realtime.EventDelete:
		entityID = ev.Old.ID()
		if entityID == "" {
			entityID = ev.New.ID()
		}
		changed = s.removeLocked(entityID)
	}

	table, key := s.cfg.Table, s.filterKey
	s.mu.Unlock()

	if changed {
		s.notify(table, key, string(ev.Kind), entityID)
	}
}

// OptimisticDelete removes the entity locally before the remote delete
// resolves, keeping the full pre-image so a rejected delete restores the
// entity verbatim at its original position. Deleting an id that is not
// present is a no-op, which also makes concurrent deletes of the same id
// idempotent.
func (s *Synchronizer[T]) OptimisticDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	generation := s.generation
	preImage, present := s.items[id]
	position := s.positionLocked(id)
	if present {
		s.removeLocked(id)
	}
	table, key := s.cfg.Table, s.filterKey
	s.mu.Unlock()

	if !present {
		return nil
	}
	s.notify(table, key, string(realtime.EventDelete), id)

	if err := s.cfg.Querier.Delete(ctx, s.cfg.Table, id); err != nil {
		s.restore(generation, preImage, position)
		return fmt.Errorf("could not delete %s %s: %w", s.cfg.Table, id, err)
	}
	// The feed's own DELETE event, if it still arrives, finds the id gone
	// and is a no-op.
	return nil
}

// restore reinserts a captured pre-image after a failed optimistic delete.
func (s *Synchronizer[T]) restore(generation uint64, preImage T, position int) {
	id := preImage.EntityID()
	s.mu.Lock()
	if generation != s.generation || !s.active {
		s.mu.Unlock()
		return
	}
	if _, exists := s.items[id]; exists {
		// A concurrent event already brought the row back.
		s.mu.Unlock()
		return
	}
	s.items[id] = preImage
	if position < 0 || position > len(s.order) {
		position = len(s.order)
	}
	s.order = append(s.order[:position], append([]string{id}, s.order[position:]...)...)
	table, key := s.cfg.Table, s.filterKey
	s.mu.Unlock()

	log.Warnf("remote delete of %s %s failed, restored local entity", table, id)
	s.notify(table, key, string(realtime.EventInsert), id)
}

func (s *Synchronizer[T]) positionLocked(id string) int {
	for i, existing := range s.order {
		if existing == id {
			return i
		}
	}
	return -1
}

func (s *Synchronizer[T]) removeLocked(id string) bool {
	if _, exists := s.items[id]; !exists {
		return false
	}
	delete(s.items, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Synchronizer[T]) notify(table, filterKey, kind, entityID string) {
	if s.cfg.Bus == nil {
		return
	}
	err := s.cfg.Bus.Publish(event_bus.NewEvent(context.Background(), event_bus.CollectionChangedType, event_bus.CollectionChanged{
		Table:     table,
		FilterKey: filterKey,
		Kind:      kind,
		EntityID:  entityID,
	}))
	if err != nil {
		log.Warnf("collection change notification failed: %v", err)
	}
}
