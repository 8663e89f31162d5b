package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"barangay/api/internal/domain"
)

// MemoryStore keeps everything in process. It backs tests and the
// single-instance development server.
type MemoryStore struct {
	mu        sync.RWMutex
	requests  map[string]domain.Request
	officials map[string]domain.Official
	units     map[string]domain.Unit
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:  make(map[string]domain.Request),
		officials: make(map[string]domain.Official),
		units:     make(map[string]domain.Unit),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) ListRequests(_ context.Context, filter RequestFilter) ([]domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Request, 0, len(s.requests))
	for _, req := range s.requests {
		if filter.Matches(req) {
			items = append(items, req.Clone())
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].RequestDate.Equal(items[j].RequestDate) {
			return items[i].RequestDate.After(items[j].RequestDate)
		}
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *MemoryStore) GetRequest(_ context.Context, id string) (domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return domain.Request{}, ErrNotFound
	}
	return req.Clone(), nil
}

func (s *MemoryStore) InsertRequest(_ context.Context, req domain.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return fmt.Errorf("insert request: duplicate id %s", req.ID)
	}
	s.requests[req.ID] = req.Clone()
	return nil
}

func (s *MemoryStore) UpdateRequest(_ context.Context, req domain.Request, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.requests[req.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return &domain.ConflictError{RequestID: req.ID, Expected: expectedVersion, Actual: current.Version}
	}
	next := current
	next.Status = req.Status
	next.UpdatedAt = req.UpdatedAt
	next.Processed = req.Processed
	next.Accepted = req.Accepted
	next.Declined = req.Declined
	next.Restored = req.Restored
	next.Version = expectedVersion + 1
	s.requests[req.ID] = next.Clone()
	return nil
}

func (s *MemoryStore) ListOfficials(_ context.Context, unitID string) ([]domain.Official, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Official, 0)
	for _, official := range s.officials {
		if official.UnitID == unitID {
			items = append(items, official)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].TermStart.Equal(items[j].TermStart) {
			return items[i].TermStart.After(items[j].TermStart)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *MemoryStore) InsertOfficial(_ context.Context, official domain.Official) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.officials[official.ID]; exists {
		return fmt.Errorf("insert official: duplicate id %s", official.ID)
	}
	s.officials[official.ID] = official
	return nil
}

func (s *MemoryStore) GetUnit(_ context.Context, unitID string) (domain.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unit, ok := s.units[unitID]
	if !ok {
		return domain.Unit{}, ErrNotFound
	}
	return unit, nil
}

func (s *MemoryStore) UpsertUnit(_ context.Context, unit domain.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[unit.ID] = unit
	return nil
}
