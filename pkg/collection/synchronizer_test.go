package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centsible/centsible/pkg/realtime"
	"github.com/centsible/centsible/pkg/store"
)

type item struct {
	ID     string
	Amount int64
	Note   string
}

func (i item) EntityID() string { return i.ID }

func decodeItem(row store.Row) (item, error) {
	id := row.ID()
	if id == "" {
		return item{}, fmt.Errorf("row has no id")
	}
	var amount int64
	if n, ok := row["amount"].(json.Number); ok {
		parsed, err := n.Int64()
		if err != nil {
			return item{}, err
		}
		amount = parsed
	}
	return item{ID: id, Amount: amount, Note: row.String("note")}, nil
}

type stubQuerier struct {
	mu        sync.Mutex
	rows      []store.Row
	fetchErr  error
	fetchGate chan struct{}
	deleteErr error
	deleted   []string
}

func (q *stubQuerier) FetchAll(ctx context.Context, table string, filter store.Filter) ([]store.Row, error) {
	if q.fetchGate != nil {
		select {
		case <-q.fetchGate:
		case <-ctx.Done():
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fetchErr != nil {
		return nil, q.fetchErr
	}
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

func itemRow(id string, budgetID string, amount int64, note string) store.Row {
	return store.Row{
		"id":        id,
		"budget_id": budgetID,
		"amount":    json.Number(fmt.Sprintf("%d", amount)),
		"note":      note,
	}
}

func newTestSynchronizer(t *testing.T, querier *stubQuerier, stream realtime.Stream) *Synchronizer[item] {
	t.Helper()
	s, err := NewSynchronizer(Config[item]{
		Table:        "items",
		FilterColumn: "budget_id",
		Querier:      querier,
		Stream:       stream,
		Decode:       decodeItem,
	})
	require.NoError(t, err)
	return s
}

func waitForIDs(t *testing.T, s *Synchronizer[item], want ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		snapshot := s.Snapshot()
		if len(snapshot) != len(want) {
			return false
		}
		for i, id := range want {
			if snapshot[i].ID != id {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond, "expected collection ids %v, got %v", want, s.Snapshot())
}

func waitReady(t *testing.T, s *Synchronizer[item]) {
	t.Helper()
	require.Eventually(t, s.Ready, time.Second, time.Millisecond)
}

func TestSynchronizer_Activate(t *testing.T) {
	t.Run("rejects an empty filter key", func(t *testing.T) {
		s := newTestSynchronizer(t, &stubQuerier{}, realtime.NewMemoryStream())

		_, err := s.Activate(context.Background(), "")

		assert.Error(t, err)
	})

	t.Run("bulk fetch populates the collection in fetched order", func(t *testing.T) {
		// given
		querier := &stubQuerier{rows: []store.Row{
			itemRow("i1", "b1", 500, "coffee"),
			itemRow("i2", "b1", 700, "lunch"),
			itemRow("i3", "b2", 900, "elsewhere"),
		}}
		s := newTestSynchronizer(t, querier, realtime.NewMemoryStream())

		// when
		activation, err := s.Activate(context.Background(), "b1")
		require.NoError(t, err)
		defer activation.Deactivate()

		// then only rows for the filter key appear
		waitForIDs(t, s, "i1", "i2")
		assert.NoError(t, s.Err())
	})

	t.Run("an undecodable row degrades that row only", func(t *testing.T) {
		querier := &stubQuerier{rows: []store.Row{
			itemRow("i1", "b1", 500, "good"),
			{"budget_id": "b1", "note": "row without id"},
			itemRow("i2", "b1", 700, "also good"),
		}}
		s := newTestSynchronizer(t, querier, realtime.NewMemoryStream())

		activation, err := s.Activate(context.Background(), "b1")
		require.NoError(t, err)
		defer activation.Deactivate()

		waitForIDs(t, s, "i1", "i2")
	})

	t.Run("a failed bulk fetch leaves the collection empty and surfaces the error", func(t *testing.T) {
		fetchErr := errors.New("remote unavailable")
		s := newTestSynchronizer(t, &stubQuerier{fetchErr: fetchErr}, realtime.NewMemoryStream())

		activation, err := s.Activate(context.Background(), "b1")
		require.NoError(t, err)
		defer activation.Deactivate()

		waitReady(t, s)
		assert.Empty(t, s.Snapshot())
		assert.ErrorIs(t, s.Err(), fetchErr)
	})
}

func TestSynchronizer_ChangeEvents(t *testing.T) {
	setup := func(t *testing.T, rows ...store.Row) (*Synchronizer[item], *realtime.MemoryStream, *stubQuerier, *Activation[item]) {
		querier := &stubQuerier{rows: rows}
		stream := realtime.NewMemoryStream()
		s := newTestSynchronizer(t, querier, stream)
		activation, err := s.Activate(context.Background(), "b1")
		require.NoError(t, err)
		t.Cleanup(activation.Deactivate)
		waitReady(t, s)
		return s, stream, querier, activation
	}

	t.Run("insert event appends matching rows", func(t *testing.T) {
		s, stream, _, _ := setup(t)

		stream.Publish(realtime.ChangeEvent{Kind: realtime.EventInsert, Table: "items", New: itemRow("i1", "b1", 500, "coffee")})

		waitForIDs(t, s, "i1")
		assert.Equal(t, int64(500), s.Snapshot()[0].Amount)
	})

	t.Run("insert event for another filter key is ignored", func(t *testing.T) {
		s, stream, _, _ := setup(t)

		stream.Publish(realtime.ChangeEvent{Kind: realtime.EventInsert, Table: "items", New: itemRow("ix", "b2", 100, "other budget")})
		stream.Publish(realtime.ChangeEvent{Kind: realtime.EventInsert, Table: "items", New: itemRow("i1", "b1", 500, "mine")})

		waitForIDs(t, s, "i1")
	})

	t.Run("duplicate insert for a present id is a no-op on its fields", func(t *testing.T) {
		s, stream, _, _ := setup(t, itemRow("i1", "b1", 500, "original"))
		waitForIDs(t, s, "i1")

		stream.Publish(realtime.ChangeEvent{Kind: realtime.EventInsert, Table: "items", New: itemRow("i1", "b1", 999, "duplicate")})
		stream.Publish(realtime.ChangeEvent{Kind: realtime.EventInsert, Table: "items", New: itemRow("i2", "b1", 100, "marker")})

		waitForIDs(t, s, "i1", "i2")
		assert.Equal(t, "original", s.Snapshot()[0].Note)
		assert.Equal(t, int64(500), s.Snapshot()[0].Amount)
	})

	t.Run("update event replaces the entity in place", func(t *testing.T) {
		s, stream, _, _ := setup(t, itemRow("i1", "b1", 500, "old"), itemRow("i2", "b1", 100, "keep"))
		waitForIDs(t, s, "i1", "i2")

		stream.Publish(realtime.ChangeEvent{Kind: realtime.EventUpdate, Table: "items", New: itemRow("i1", "b1", 800, "new")})

		require.Eventually(t, func() bool {
			return s.Snapshot()[0].Note == "new"
		}, time.Second, time.Millisecond)
		waitForIDs(t, s, "i1", "i2")
		assert.Equal(t, int64(800), s.Snapshot()[0].Amount)
	})

	t.Run("update event for an unknown id is treated as an insert", func(t *testing.T) {
		s, stream, _, _ := setup(t)

		stream.Publish(realtime.ChangeEvent{Kind: realtime.EventUpdate, Table: "items", New: itemRow("i1", "b1", 800, "arrived before fetch")})

		waitForIDs(t, s, "i1")
	})

	t.Run("update re-assigning the row to another filter key removes it", func(t *testing.T) {
		s, stream, _, _ := setup(t, itemRow("i1", "b1", 500, "mine"), itemRow("i2", "b1", 100, "keep"))
		waitForIDs(t, s, "i1", "i2")

		stream.Publish(realtime.ChangeEvent{Kind: realtime.EventUpdate, Table: "items", New: itemRow("i1", "b2", 500, "moved away")})

		waitForIDs(t, s, "i2")
	})

	t.Run("delete event removes the entity and repeating it is idempotent", func(t *testing.T) {
		s, stream, _, _ := setup(t, itemRow("i1", "b1", 500, "a"), itemRow("i2", "b1", 100, "b"))
		waitForIDs(t, s, "i1", "i2")

		deleteEvent := realtime.ChangeEvent{Kind: realtime.EventDelete, Table: "items", Old: store.Row{"id": "i1"}}
		stream.Publish(deleteEvent)
		waitForIDs(t, s, "i2")

		// applying the same delete again leaves the collection unchanged
		stream.Publish(deleteEvent)
		stream.Publish(realtime.ChangeEvent{Kind: realtime.EventInsert, Table: "items", New: itemRow("i3", "b1", 1, "marker")})
		waitForIDs(t, s, "i2", "i3")
	})

	t.Run("interleavings converge keyed by id", func(t *testing.T) {
		// The same event set applied in two different orders (for distinct
		// ids) must converge to the same collection content.
		events := []realtime.ChangeEvent{
			{Kind: realtime.EventInsert, Table: "items", New: itemRow("a", "b1", 1, "a")},
			{Kind: realtime.EventInsert, Table: "items", New: itemRow("b", "b1", 2, "b")},
			{Kind: realtime.EventUpdate, Table: "items", New: itemRow("a", "b1", 10, "a2")},
			{Kind: realtime.EventDelete, Table: "items", Old: store.Row{"id": "b"}},
			{Kind: realtime.EventInsert, Table: "items", New: itemRow("c", "b1", 3, "c")},
		}
		orders := [][]int{{0, 1, 2, 3, 4}, {1, 0, 4, 2, 3}}

		var results []map[string]item
		for _, order := range orders {
			s, stream, _, _ := setup(t)
			for _, idx := range order {
				stream.Publish(events[idx])
			}
			require.Eventually(t, func() bool { return len(s.Snapshot()) == 2 }, time.Second, time.Millisecond)
			byID := make(map[string]item)
			for _, it := range s.Snapshot() {
				byID[it.ID] = it
			}
			results = append(results, byID)
		}

		assert.Equal(t, results[0], results[1])
		assert.Equal(t, int64(10), results[0]["a"].Amount)
		assert.NotContains(t, results[0], "b")
	})
}

func TestSynchronizer_FetchEventRace(t *testing.T) {
	t.Run("event arriving during the fetch wins over the fetched image", func(t *testing.T) {
		// given a gated fetch returning an older image of i1
		gate := make(chan struct{})
		querier := &stubQuerier{
			rows:      []store.Row{itemRow("i1", "b1", 500, "stale"), itemRow("i2", "b1", 100, "fresh")},
			fetchGate: gate,
		}
		stream := realtime.NewMemoryStream()
		s := newTestSynchronizer(t, querier, stream)
		activation, err := s.Activate(context.Background(), "b1")
		require.NoError(t, err)
		defer activation.Deactivate()

		// when a newer update for i1 arrives while the fetch is in flight
		stream.Publish(realtime.ChangeEvent{Kind: realtime.EventUpdate, Table: "items", New: itemRow("i1", "b1", 900, "newer")})
		waitForIDs(t, s, "i1")
		close(gate)

		// then the bulk-fetch apply fills only the missing id
		waitReady(t, s)
		waitForIDs(t, s, "i1", "i2")
		assert.Equal(t, "newer", s.Snapshot()[0].Note)
		assert.Equal(t, int64(900), s.Snapshot()[0].Amount)
	})
}

func TestSynchronizer_Deactivate(t *testing.T) {
	t.Run("an in-flight fetch resolving after deactivation is discarded", func(t *testing.T) {
		gate := make(chan struct{})
		querier := &stubQuerier{rows: []store.Row{itemRow("i1", "b1", 500, "late")}, fetchGate: gate}
		s := newTestSynchronizer(t, querier, realtime.NewMemoryStream())

		activation, err := s.Activate(context.Background(), "b1")
		require.NoError(t, err)

		activation.Deactivate()
		close(gate)

		// the late result must never be applied
		time.Sleep(20 * time.Millisecond)
		assert.Empty(t, s.Snapshot())
	})

	t.Run("events after deactivation are no-ops", func(t *testing.T) {
		stream := realtime.NewMemoryStream()
		s := newTestSynchronizer(t, &stubQuerier{}, stream)
		activation, err := s.Activate(context.Background(), "b1")
		require.NoError(t, err)
		waitReady(t, s)

		activation.Deactivate()
		stream.Publish(realtime.ChangeEvent{Kind: realtime.EventInsert, Table: "items", New: itemRow("i1", "b1", 500, "late")})

		time.Sleep(20 * time.Millisecond)
		assert.Empty(t, s.Snapshot())
	})

	t.Run("cancelling the activation context releases the subscription", func(t *testing.T) {
		stream := realtime.NewMemoryStream()
		s := newTestSynchronizer(t, &stubQuerier{}, stream)
		ctx, cancel := context.WithCancel(context.Background())

		_, err := s.Activate(ctx, "b1")
		require.NoError(t, err)
		waitReady(t, s)

		cancel()
		require.Eventually(t, func() bool { return !s.isActive() }, time.Second, time.Millisecond)

		stream.Publish(realtime.ChangeEvent{Kind: realtime.EventInsert, Table: "items", New: itemRow("i1", "b1", 500, "late")})
		time.Sleep(20 * time.Millisecond)
		assert.Empty(t, s.Snapshot())
	})

	t.Run("deactivate is idempotent", func(t *testing.T) {
		s := newTestSynchronizer(t, &stubQuerier{}, realtime.NewMemoryStream())
		activation, err := s.Activate(context.Background(), "b1")
		require.NoError(t, err)

		activation.Deactivate()
		assert.NotPanics(t, activation.Deactivate)
	})
}

func TestSynchronizer_OptimisticDelete(t *testing.T) {
	setup := func(t *testing.T, querier *stubQuerier) *Synchronizer[item] {
		querier.rows = []store.Row{
			itemRow("1", "b1", 500, "first"),
			itemRow("2", "b1", 700, "second"),
		}
		s := newTestSynchronizer(t, querier, realtime.NewMemoryStream())
		activation, err := s.Activate(context.Background(), "b1")
		require.NoError(t, err)
		t.Cleanup(activation.Deactivate)
		waitForIDs(t, s, "1", "2")
		return s
	}

	t.Run("removes locally before the remote call and confirms on success", func(t *testing.T) {
		querier := &stubQuerier{}
		s := setup(t, querier)

		err := s.OptimisticDelete(context.Background(), "1")

		require.NoError(t, err)
		waitForIDs(t, s, "2")
		assert.Equal(t, []string{"1"}, querier.deleted)
	})

	t.Run("restores the full pre-image at its position on remote failure", func(t *testing.T) {
		querier := &stubQuerier{deleteErr: errors.New("rejected")}
		s := setup(t, querier)

		err := s.OptimisticDelete(context.Background(), "1")

		assert.Error(t, err)
		waitForIDs(t, s, "1", "2")
		restored := s.Snapshot()[0]
		assert.Equal(t, int64(500), restored.Amount)
		assert.Equal(t, "first", restored.Note)
	})

	t.Run("deleting an absent id is a no-op", func(t *testing.T) {
		querier := &stubQuerier{}
		s := setup(t, querier)

		require.NoError(t, s.OptimisticDelete(context.Background(), "1"))
		// second attempt on the same id: no error and no second remote call
		require.NoError(t, s.OptimisticDelete(context.Background(), "1"))

		assert.Equal(t, []string{"1"}, querier.deleted)
	})
}

func TestSynchronizer_EmptyThenInsertScenario(t *testing.T) {
	// Activate for a budget with no expenses, then receive the first insert.
	stream := realtime.NewMemoryStream()
	s := newTestSynchronizer(t, &stubQuerier{}, stream)
	activation, err := s.Activate(context.Background(), "budget-B")
	require.NoError(t, err)
	defer activation.Deactivate()

	waitReady(t, s)
	require.Empty(t, s.Snapshot())

	stream.Publish(realtime.ChangeEvent{Kind: realtime.EventInsert, Table: "items", New: itemRow("e1", "budget-B", 1050, "first expense")})

	waitForIDs(t, s, "e1")
	assert.Equal(t, int64(1050), s.Snapshot()[0].Amount)
}

// isActive is a test hook for observing deactivation driven by context
// cancellation.
func (s *Synchronizer[T]) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
