package profile

import (
	"context"
	"fmt"
	"sync"

	"github.com/centsible/centsible/pkg/store"
)

// Fetcher is the slice of the query surface the profile lookup needs.
type Fetcher interface {
	FetchAll(ctx context.Context, table string, filter store.Filter) ([]store.Row, error)
}

type Service interface {
	// Get resolves a profile by identity id. Results are cached: display
	// names change rarely and every expense row wants one.
	Get(ctx context.Context, id string) (Profile, error)
}

type ServiceImpl struct {
	fetcher Fetcher

	mu    sync.RWMutex
	cache map[string]Profile
}

func NewService(fetcher Fetcher) *ServiceImpl {
	return &ServiceImpl{
		fetcher: fetcher,
		cache:   make(map[string]Profile),
	}
}

func (s *ServiceImpl) Get(ctx context.Context, id string) (Profile, error) {
	if id == "" {
		return Profile{}, ErrProfileNotFound
	}

	s.mu.RLock()
	cached, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	rows, err := s.fetcher.FetchAll(ctx, "profiles", store.Filter{Column: "id", Value: id})
	if err != nil {
		return Profile{}, fmt.Errorf("could not fetch profile %s: %w", id, err)
	}
	if len(rows) == 0 {
		return Profile{}, ErrProfileNotFound
	}
	p, err := FromRow(rows[0])
	if err != nil {
		return Profile{}, err
	}

	s.mu.Lock()
	s.cache[id] = p
	s.mu.Unlock()
	return p, nil
}
