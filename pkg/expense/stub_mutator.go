package expense

import (
	"context"
	"sync"

	"github.com/centsible/centsible/pkg/store"
)

// StubMutator is an in-memory Mutator used in tests.
type StubMutator struct {
	mu       sync.Mutex
	inserted []store.Row
	updated  map[string]store.Row
	failWith error
}

func NewStubMutator() *StubMutator {
	return &StubMutator{updated: make(map[string]store.Row)}
}

func (s *StubMutator) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *StubMutator) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.inserted = append(s.inserted, row)
	return row, nil
}

func (s *StubMutator) Update(ctx context.Context, table string, id string, patch store.Row) (store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	merged := store.Row{"id": id}
	for k, v := range patch {
		merged[k] = v
	}
	s.updated[id] = merged
	return merged, nil
}

func (s *StubMutator) Inserted() []store.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Row(nil), s.inserted...)
}
