package expense

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/centsible/centsible/internal/utils"
	"github.com/centsible/centsible/pkg/collection"
	"github.com/centsible/centsible/pkg/money"
	"github.com/centsible/centsible/pkg/session"
	"github.com/centsible/centsible/pkg/store"
)

// Mutator is the slice of the remote query surface expenses are written
// through. Reads come from the synchronized collections, not from here.
type Mutator interface {
	Insert(ctx context.Context, table string, row store.Row) (store.Row, error)
	Update(ctx context.Context, table string, id string, patch store.Row) (store.Row, error)
}

// Summary aggregates one budget's expenses for the overview screen.
type Summary struct {
	Count        int
	TotalSpend   money.Money
	AverageSpend money.Money
}

type Service interface {
	List(ctx context.Context, budgetID string) ([]Expense, error)
	Create(ctx context.Context, expense Expense) (Expense, error)
	Update(ctx context.Context, expense Expense) (Expense, error)
	Delete(ctx context.Context, budgetID string, id string) error
	Summarize(ctx context.Context, budgetID string) (Summary, error)
	RemoveAllForBudget(ctx context.Context, budgetID string) error
}

type ServiceImpl struct {
	manager *Manager
	mutator Mutator
	querier collection.Querier
	clock   utils.Clock
}

func NewService(manager *Manager, mutator Mutator, querier collection.Querier, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{manager: manager, mutator: mutator, querier: querier, clock: clock}
}

// List returns the synchronized snapshot of one budget's expenses,
// activating the collection on first access.
func (s *ServiceImpl) List(ctx context.Context, budgetID string) ([]Expense, error) {
	sync, err := s.manager.Collection(budgetID)
	if err != nil {
		return nil, err
	}
	if err := sync.Err(); err != nil {
		return nil, fmt.Errorf("expense collection unavailable: %w", err)
	}
	return sync.Snapshot(), nil
}

func (s *ServiceImpl) Create(ctx context.Context, expense Expense) (Expense, error) {
	authorID, err := session.CurrentID(ctx)
	if err != nil {
		return Expense{}, fmt.Errorf("failed to get current identity: %w", err)
	}
	if expense.BudgetID == "" {
		return Expense{}, fmt.Errorf("expense budget id must not be empty")
	}
	if expense.Amount.IsZero() {
		return Expense{}, fmt.Errorf("expense amount must be greater than zero")
	}
	expense.AuthorID = authorID
	if expense.ID == "" {
		expense.ID = uuid.NewString()
	}
	if expense.OccurredAt.IsZero() {
		expense.OccurredAt = s.clock.Now()
	}

	row, err := s.mutator.Insert(ctx, Table, expense.ToRow())
	if err != nil {
		return Expense{}, err
	}
	created, err := FromRow(row)
	if err != nil {
		return Expense{}, fmt.Errorf("could not decode created expense: %w", err)
	}
	// The collection itself is updated by the feed's INSERT event.
	return created, nil
}

func (s *ServiceImpl) Update(ctx context.Context, expense Expense) (Expense, error) {
	if _, err := session.CurrentID(ctx); err != nil {
		return Expense{}, fmt.Errorf("failed to get current identity: %w", err)
	}
	if expense.ID == "" {
		return Expense{}, fmt.Errorf("expense id must not be empty")
	}

	patch := expense.ToRow()
	delete(patch, "id")
	delete(patch, "user_id")
	delete(patch, "budget_id")
	row, err := s.mutator.Update(ctx, Table, expense.ID, patch)
	if err != nil {
		return Expense{}, err
	}
	updated, err := FromRow(row)
	if err != nil {
		return Expense{}, fmt.Errorf("could not decode updated expense: %w", err)
	}
	return updated, nil
}

// Delete removes one expense optimistically; a rejected remote delete puts
// it back where it was.
func (s *ServiceImpl) Delete(ctx context.Context, budgetID string, id string) error {
	if _, err := session.CurrentID(ctx); err != nil {
		return fmt.Errorf("failed to get current identity: %w", err)
	}
	sync, err := s.manager.Collection(budgetID)
	if err != nil {
		return err
	}
	return sync.OptimisticDelete(ctx, id)
}

// Summarize computes the running total and per-expense average over the
// synchronized collection.
func (s *ServiceImpl) Summarize(ctx context.Context, budgetID string) (Summary, error) {
	expenses, err := s.List(ctx, budgetID)
	if err != nil {
		return Summary{}, err
	}
	amounts := make([]money.Money, 0, len(expenses))
	for _, e := range expenses {
		amounts = append(amounts, e.Amount)
	}
	total := money.Sum(amounts)
	return Summary{
		Count:        len(expenses),
		TotalSpend:   total,
		AverageSpend: total.Div(int64(len(expenses))),
	}, nil
}

// RemoveAllForBudget deletes every expense of a budget remotely, working
// from a fresh fetch rather than the local snapshot so expenses the local
// collection has not seen yet are removed too. Afterwards the budget's
// synchronizer is dropped.
func (s *ServiceImpl) RemoveAllForBudget(ctx context.Context, budgetID string) error {
	rows, err := s.querier.FetchAll(ctx, Table, store.Filter{Column: FilterColumn, Value: budgetID})
	if err != nil {
		return fmt.Errorf("could not list expenses of budget %s: %w", budgetID, err)
	}
	for _, row := range rows {
		id := row.ID()
		if id == "" {
			continue
		}
		if err := s.querier.Delete(ctx, Table, id); err != nil {
			return fmt.Errorf("could not delete expense %s: %w", id, err)
		}
	}
	s.manager.Deactivate(budgetID)
	log.Debugf("removed %d expenses of budget %s", len(rows), budgetID)
	return nil
}
