package persistence

import (
	"context"
	"sync"
	"time"
)

// InMemoryTombstoneStore is a goroutine-safe TombstoneStore backed by a map.
// Its contents do not survive a restart.
type InMemoryTombstoneStore struct {
	mu     sync.RWMutex
	graves map[string]Tombstone
}

var _ TombstoneStore = (*InMemoryTombstoneStore)(nil)

func NewInMemoryTombstoneStore() *InMemoryTombstoneStore {
	return &InMemoryTombstoneStore{graves: make(map[string]Tombstone)}
}

func (s *InMemoryTombstoneStore) Bury(ctx context.Context, t Tombstone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.graves[t.Ticket]; !exists {
		s.graves[t.Ticket] = t
	}
	return nil
}

func (s *InMemoryTombstoneStore) IsBuried(ctx context.Context, ticket string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.graves[ticket]
	return ok, nil
}

func (s *InMemoryTombstoneStore) Purge(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for ticket, t := range s.graves {
		if t.SweptAt.Before(before) {
			delete(s.graves, ticket)
			n++
		}
	}
	return n, nil
}
