package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/fnf/trading-core/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) InsertPosition(ctx context.Context, p *model.Position) error {
	if err := s.primary.InsertPosition(ctx, p); err != nil {
		return err
	}
	s.cachePosition(ctx, p)
	s.rdb.Del(ctx, exposuresKey())
	return nil
}

func (s *CachedStore) UpdatePosition(ctx context.Context, p *model.Position) error {
	if err := s.primary.UpdatePosition(ctx, p); err != nil {
		return err
	}
	// Invalidate; next read will re-populate.
	s.rdb.Del(ctx, positionKey(p.ID), exposuresKey())
	return nil
}

func (s *CachedStore) InsertEvent(ctx context.Context, e *model.LedgerEvent) error {
	return s.primary.InsertEvent(ctx, e)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPosition(ctx context.Context, id string) (*model.Position, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, positionKey(id)).Bytes()
	if err == nil {
		var p model.Position
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	// Cache miss: read from primary.
	p, err := s.primary.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cachePosition(ctx, p)
	return p, nil
}

func (s *CachedStore) GetSymbolExposures(ctx context.Context) (map[string]decimal.Decimal, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, exposuresKey()).Bytes()
	if err == nil {
		var exposures map[string]decimal.Decimal
		if json.Unmarshal(data, &exposures) == nil {
			return exposures, nil
		}
	}

	// Cache miss.
	exposures, err := s.primary.GetSymbolExposures(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(exposures); err == nil {
		s.rdb.Set(ctx, exposuresKey(), data, s.ttl)
	}
	return exposures, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListPositions(ctx context.Context, status string) ([]model.Position, error) {
	return s.primary.ListPositions(ctx, status)
}

func (s *CachedStore) GetEventsByPosition(ctx context.Context, positionID string) ([]model.LedgerEvent, error) {
	return s.primary.GetEventsByPosition(ctx, positionID)
}

// --- Cache helpers ---

func (s *CachedStore) cachePosition(ctx context.Context, p *model.Position) {
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, positionKey(p.ID), data, s.ttl)
	}
}

func positionKey(id string) string { return fmt.Sprintf("position:%s", id) }
func exposuresKey() string         { return "exposures" }
