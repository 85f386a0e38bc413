package budget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centsible/centsible/pkg/collection"
	"github.com/centsible/centsible/pkg/realtime"
	"github.com/centsible/centsible/pkg/session"
	"github.com/centsible/centsible/pkg/store"
)

var ctx = session.WithIdentity(context.Background(), session.Identity{ID: "user-1", Username: "ana"})

type stubQuerier struct {
	mu        sync.Mutex
	rows      []store.Row
	deleteErr error
	deleted   []string
}

func (q *stubQuerier) FetchAll(ctx context.Context, table string, filter store.Filter) ([]store.Row, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var matching []store.Row
	for _, row := range q.rows {
		if row.Field(filter.Column) == filter.Value {
			matching = append(matching, row)
		}
	}
	return matching, nil
}

func (q *stubQuerier) Delete(ctx context.Context, table string, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deleteErr != nil {
		return q.deleteErr
	}
	q.deleted = append(q.deleted, id)
	return nil
}

type stubRemover struct {
	removed []string
	err     error
}

func (r *stubRemover) RemoveAllForBudget(ctx context.Context, budgetID string) error {
	if r.err != nil {
		return r.err
	}
	r.removed = append(r.removed, budgetID)
	return nil
}

func budgetRow(id, ownerID, title string) store.Row {
	return store.Row{"id": id, "user_id": ownerID, "title": title, "frequency": "month", "budget_type": "personal"}
}

func setupService(t *testing.T, querier *stubQuerier, remover ExpenseRemover) (*ServiceImpl, *collection.Synchronizer[Budget]) {
	t.Helper()
	sync, err := NewSynchronizer(querier, realtime.NewMemoryStream(), nil)
	require.NoError(t, err)
	activation, err := sync.Activate(context.Background(), "user-1")
	require.NoError(t, err)
	t.Cleanup(activation.Deactivate)
	require.Eventually(t, sync.Ready, time.Second, time.Millisecond)
	return NewService(NewStubMutator(), sync, remover), sync
}

func TestServiceImpl_List(t *testing.T) {
	t.Run("returns the synchronized snapshot", func(t *testing.T) {
		querier := &stubQuerier{rows: []store.Row{
			budgetRow("b1", "user-1", "Groceries"),
			budgetRow("b2", "other-user", "Not mine"),
		}}
		service, _ := setupService(t, querier, nil)

		budgets, err := service.List(ctx)

		require.NoError(t, err)
		require.Len(t, budgets, 1)
		assert.Equal(t, "Groceries", budgets[0].Title)
	})
}

func TestServiceImpl_Create(t *testing.T) {
	t.Run("assigns owner and id from the session", func(t *testing.T) {
		service, _ := setupService(t, &stubQuerier{}, nil)

		created, err := service.Create(ctx, Budget{Title: "Travel", Period: PeriodWeek, Kind: KindPersonal})

		require.NoError(t, err)
		assert.Equal(t, "user-1", created.OwnerID)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, PeriodWeek, created.Period)
	})

	t.Run("rejects an empty title", func(t *testing.T) {
		service, _ := setupService(t, &stubQuerier{}, nil)

		_, err := service.Create(ctx, Budget{})

		assert.Error(t, err)
	})

	t.Run("returns error when context has no identity", func(t *testing.T) {
		service, _ := setupService(t, &stubQuerier{}, nil)

		_, err := service.Create(context.Background(), Budget{Title: "Travel"})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get current identity")
	})
}

func TestServiceImpl_Update(t *testing.T) {
	t.Run("patches without touching id or owner", func(t *testing.T) {
		mutator := NewStubMutator()
		sync, err := NewSynchronizer(&stubQuerier{}, realtime.NewMemoryStream(), nil)
		require.NoError(t, err)
		service := NewService(mutator, sync, nil)

		updated, err := service.Update(ctx, Budget{ID: "b1", Title: "Renamed", Period: PeriodDay})

		require.NoError(t, err)
		assert.Equal(t, "b1", updated.ID)
		assert.Equal(t, "Renamed", updated.Title)
		assert.Equal(t, PeriodDay, updated.Period)
	})

	t.Run("rejects a missing id", func(t *testing.T) {
		service, _ := setupService(t, &stubQuerier{}, nil)

		_, err := service.Update(ctx, Budget{Title: "No id"})

		assert.Error(t, err)
	})
}

func TestServiceImpl_Delete(t *testing.T) {
	t.Run("cascades over expenses then deletes the budget", func(t *testing.T) {
		querier := &stubQuerier{rows: []store.Row{budgetRow("b1", "user-1", "Groceries")}}
		remover := &stubRemover{}
		service, sync := setupService(t, querier, remover)
		require.Eventually(t, func() bool { return len(sync.Snapshot()) == 1 }, time.Second, time.Millisecond)

		err := service.Delete(ctx, "b1")

		require.NoError(t, err)
		assert.Equal(t, []string{"b1"}, remover.removed)
		assert.Equal(t, []string{"b1"}, querier.deleted)
		assert.Empty(t, sync.Snapshot())
	})

	t.Run("keeps the budget when the cascade fails", func(t *testing.T) {
		querier := &stubQuerier{rows: []store.Row{budgetRow("b1", "user-1", "Groceries")}}
		remover := &stubRemover{err: errors.New("cascade failed")}
		service, sync := setupService(t, querier, remover)
		require.Eventually(t, func() bool { return len(sync.Snapshot()) == 1 }, time.Second, time.Millisecond)

		err := service.Delete(ctx, "b1")

		assert.Error(t, err)
		assert.Len(t, sync.Snapshot(), 1)
		assert.Empty(t, querier.deleted)
	})
}
