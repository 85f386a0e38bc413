package realtime

import "sync"

// MemoryStream is an in-process Stream used by tests and by local runs that
// have no change feed to connect to. Publish fans an event out to every
// matching subscription synchronously.
type MemoryStream struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewMemoryStream() *MemoryStream {
	return &MemoryStream{subs: make(map[*Subscription]struct{})}
}

func (m *MemoryStream) Subscribe(table string, kinds ...EventKind) (*Subscription, error) {
	if len(kinds) == 0 {
		kinds = AllEvents
	}
	var sub *Subscription
	sub = newSubscription(table, kinds, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, sub)
	})
	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()
	return sub, nil
}

// Publish delivers the event to all live subscriptions for its table.
func (m *MemoryStream) Publish(ev ChangeEvent) {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subs))
	for sub := range m.subs {
		subs = append(subs, sub)
	}
	m.mu.Unlock()
	for _, sub := range subs {
		sub.deliver(ev)
	}
}
