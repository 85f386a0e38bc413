package budget

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/centsible/centsible/internal/event_bus"
	"github.com/centsible/centsible/pkg/collection"
	"github.com/centsible/centsible/pkg/realtime"
	"github.com/centsible/centsible/pkg/session"
	"github.com/centsible/centsible/pkg/store"
)

// Mutator is the slice of the remote query surface budgets are written
// through. Reads come from the synchronized collection, not from here.
type Mutator interface {
	Insert(ctx context.Context, table string, row store.Row) (store.Row, error)
	Update(ctx context.Context, table string, id string, patch store.Row) (store.Row, error)
}

// ExpenseRemover performs the cascade a budget delete triggers. The remote
// side defines no cascade of its own, so orphaning is prevented client-side:
// a budget's expenses are deleted before the budget itself.
type ExpenseRemover interface {
	RemoveAllForBudget(ctx context.Context, budgetID string) error
}

type Service interface {
	List(ctx context.Context) ([]Budget, error)
	Create(ctx context.Context, budget Budget) (Budget, error)
	Update(ctx context.Context, budget Budget) (Budget, error)
	Delete(ctx context.Context, id string) error
}

type ServiceImpl struct {
	mutator  Mutator
	sync     *collection.Synchronizer[Budget]
	expenses ExpenseRemover
}

func NewService(mutator Mutator, sync *collection.Synchronizer[Budget], expenses ExpenseRemover) *ServiceImpl {
	return &ServiceImpl{mutator: mutator, sync: sync, expenses: expenses}
}

// NewSynchronizer builds the owner-scoped budget collection.
func NewSynchronizer(querier collection.Querier, stream realtime.Stream, bus *event_bus.EventBus) (*collection.Synchronizer[Budget], error) {
	return collection.NewSynchronizer(collection.Config[Budget]{
		Table:        Table,
		FilterColumn: FilterColumn,
		Querier:      querier,
		Stream:       stream,
		Decode:       FromRow,
		Bus:          bus,
	})
}

// List returns the synchronized snapshot of the signed-in owner's budgets.
// A failed bulk fetch keeps surfacing as an error until reactivation.
func (s *ServiceImpl) List(ctx context.Context) ([]Budget, error) {
	if err := s.sync.Err(); err != nil {
		return nil, fmt.Errorf("budget collection unavailable: %w", err)
	}
	return s.sync.Snapshot(), nil
}

func (s *ServiceImpl) Create(ctx context.Context, budget Budget) (Budget, error) {
	ownerID, err := session.CurrentID(ctx)
	if err != nil {
		return Budget{}, fmt.Errorf("failed to get current identity: %w", err)
	}
	if budget.Title == "" {
		return Budget{}, fmt.Errorf("budget title must not be empty")
	}
	budget.OwnerID = ownerID
	if budget.ID == "" {
		budget.ID = uuid.NewString()
	}

	row, err := s.mutator.Insert(ctx, Table, budget.ToRow())
	if err != nil {
		return Budget{}, err
	}
	created, err := FromRow(row)
	if err != nil {
		return Budget{}, fmt.Errorf("could not decode created budget: %w", err)
	}
	// The collection itself is updated by the feed's INSERT event.
	return created, nil
}

func (s *ServiceImpl) Update(ctx context.Context, budget Budget) (Budget, error) {
	if _, err := session.CurrentID(ctx); err != nil {
		return Budget{}, fmt.Errorf("failed to get current identity: %w", err)
	}
	if budget.ID == "" {
		return Budget{}, fmt.Errorf("budget id must not be empty")
	}

	patch := budget.ToRow()
	delete(patch, "id")
	delete(patch, "user_id")
	row, err := s.mutator.Update(ctx, Table, budget.ID, patch)
	if err != nil {
		return Budget{}, err
	}
	updated, err := FromRow(row)
	if err != nil {
		return Budget{}, fmt.Errorf("could not decode updated budget: %w", err)
	}
	return updated, nil
}

// Delete removes the budget optimistically after cascading over its
// expenses. If the cascade fails the budget stays, so no expense is ever
// orphaned by a half-applied delete.
func (s *ServiceImpl) Delete(ctx context.Context, id string) error {
	if _, err := session.CurrentID(ctx); err != nil {
		return fmt.Errorf("failed to get current identity: %w", err)
	}

	if s.expenses != nil {
		if err := s.expenses.RemoveAllForBudget(ctx, id); err != nil {
			log.Warnf("budget %s not deleted: expense cascade failed: %v", id, err)
			return fmt.Errorf("could not delete expenses of budget %s: %w", id, err)
		}
	}
	return s.sync.OptimisticDelete(ctx, id)
}
