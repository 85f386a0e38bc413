package expense

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/centsible/centsible/internal/event_bus"
	"github.com/centsible/centsible/pkg/collection"
	"github.com/centsible/centsible/pkg/realtime"
)

// Manager holds one expense synchronizer per budget, activated lazily on
// first access. Budgets not looked at never open a subscription or issue a
// fetch.
type Manager struct {
	ctx     context.Context
	querier collection.Querier
	stream  realtime.Stream
	bus     *event_bus.EventBus

	mu     sync.Mutex
	active map[string]*activeCollection
}

type activeCollection struct {
	sync       *collection.Synchronizer[Expense]
	activation *collection.Activation[Expense]
}

// NewManager takes the application context: activations live until the
// budget is deleted or the process shuts down, so a request context must
// never scope them.
func NewManager(ctx context.Context, querier collection.Querier, stream realtime.Stream, bus *event_bus.EventBus) *Manager {
	return &Manager{
		ctx:     ctx,
		querier: querier,
		stream:  stream,
		bus:     bus,
		active:  make(map[string]*activeCollection),
	}
}

// Collection returns the synchronizer for budgetID, activating it on first
// use.
func (m *Manager) Collection(budgetID string) (*collection.Synchronizer[Expense], error) {
	if budgetID == "" {
		return nil, fmt.Errorf("budget id must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.active[budgetID]; ok {
		return existing.sync, nil
	}

	sync, err := collection.NewSynchronizer(collection.Config[Expense]{
		Table:        Table,
		FilterColumn: FilterColumn,
		Querier:      m.querier,
		Stream:       m.stream,
		Decode:       FromRow,
		Bus:          m.bus,
	})
	if err != nil {
		return nil, err
	}
	activation, err := sync.Activate(m.ctx, budgetID)
	if err != nil {
		return nil, fmt.Errorf("could not activate expenses of budget %s: %w", budgetID, err)
	}
	m.active[budgetID] = &activeCollection{sync: sync, activation: activation}
	log.Debugf("tracking expenses of budget %s", budgetID)
	return sync, nil
}

// Deactivate drops the synchronizer of one budget, typically after the
// budget itself was deleted.
func (m *Manager) Deactivate(budgetID string) {
	m.mu.Lock()
	entry, ok := m.active[budgetID]
	if ok {
		delete(m.active, budgetID)
	}
	m.mu.Unlock()
	if ok {
		entry.activation.Deactivate()
	}
}

// DeactivateAll drops every active synchronizer, used on sign-out and on
// shutdown.
func (m *Manager) DeactivateAll() {
	m.mu.Lock()
	entries := make([]*activeCollection, 0, len(m.active))
	for _, entry := range m.active {
		entries = append(entries, entry)
	}
	m.active = make(map[string]*activeCollection)
	m.mu.Unlock()

	for _, entry := range entries {
		entry.activation.Deactivate()
	}
}
