package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fnf/trading-core/internal/model"
	"github.com/shopspring/decimal"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[string]*model.Position
	events    []model.LedgerEvent
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[string]*model.Position),
	}
}

func (s *MemoryStore) InsertPosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.positions[p.ID]; exists {
		return fmt.Errorf("position %s already exists", p.ID)
	}

	// Store a copy to avoid external mutation.
	copy := *p
	s.positions[p.ID] = &copy
	return nil
}

func (s *MemoryStore) UpdatePosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.positions[p.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, p.ID)
	}
	copy := *p
	s.positions[p.ID] = &copy
	return nil
}

func (s *MemoryStore) GetPosition(_ context.Context, id string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) ListPositions(_ context.Context, status string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]model.Position, 0, len(s.positions))
	for _, p := range s.positions {
		if status != "" && p.Status != status {
			continue
		}
		positions = append(positions, *p)
	}
	// Deterministic order for callers and tests.
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].OpenedAt.Equal(positions[j].OpenedAt) {
			return positions[i].ID < positions[j].ID
		}
		return positions[i].OpenedAt.Before(positions[j].OpenedAt)
	})
	return positions, nil
}

func (s *MemoryStore) InsertEvent(_ context.Context, e *model.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *e)
	return nil
}

func (s *MemoryStore) GetEventsByPosition(_ context.Context, positionID string) ([]model.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEvent
	for _, e := range s.events {
		if e.PositionID == positionID {
			result = append(result, e)
		}
	}
	return result, nil
}

// GetSymbolExposures sums open quantities per symbol under a single lock.
func (s *MemoryStore) GetSymbolExposures(_ context.Context) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exposures := make(map[string]decimal.Decimal)
	for _, p := range s.positions {
		if p.Status != model.StatusOpen {
			continue
		}
		exposures[p.Symbol] = exposures[p.Symbol].Add(p.Quantity)
	}
	return exposures, nil
}
