package realtime

import (
	"sync"

	"github.com/centsible/centsible/pkg/store"
	log "github.com/sirupsen/logrus"
)

// EventKind tags a change event pushed by the remote change feed.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
)

// AllEvents is the full event-kind set a synchronizer listens for.
var AllEvents = []EventKind{EventInsert, EventUpdate, EventDelete}

// ChangeEvent is a push-delivered row change. New carries the row image after
// the change (INSERT/UPDATE); Old carries the prior image (UPDATE/DELETE).
// Delivery order across rows is not guaranteed to match commit order; only
// per-row ordering is assumed.
type ChangeEvent struct {
	Kind  EventKind
	Table string
	New   store.Row
	Old   store.Row
}

// Stream delivers table-scoped change events. Subscriptions are scoped by
// table only; consumers filter against their own filter key before applying.
type Stream interface {
	Subscribe(table string, kinds ...EventKind) (*Subscription, error)
}

// Subscription is a cancellable stream of change events for one table.
// Unsubscribe stops delivery and closes the event channel; it is safe to call
// more than once and on every exit path.
type Subscription struct {
	table   string
	kinds   map[EventKind]bool
	mu      sync.Mutex
	closed  bool
	ch      chan ChangeEvent
	onClose func()
}

func newSubscription(table string, kinds []EventKind, onClose func()) *Subscription {
	kindSet := make(map[EventKind]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}
	return &Subscription{
		table:   table,
		kinds:   kindSet,
		ch:      make(chan ChangeEvent, 64),
		onClose: onClose,
	}
}

// Events returns the channel delivering change events until Unsubscribe.
func (s *Subscription) Events() <-chan ChangeEvent {
	return s.ch
}

// Unsubscribe stops delivery and closes the event channel.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	if s.onClose != nil {
		s.onClose()
	}
}

// deliver hands one event to the subscriber if it matches the subscribed
// table and kinds. A subscriber that stopped draining loses events rather
// than blocking the feed.
func (s *Subscription) deliver(ev ChangeEvent) {
	if ev.Table != s.table || !s.kinds[ev.Kind] {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		log.Warnf("realtime: dropping %s event for table %s: subscriber not draining", ev.Kind, ev.Table)
	}
}
