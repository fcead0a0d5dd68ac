package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/parity-engine/internal/metrics"
	"github.com/atmx/parity-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache of pricing snapshots. Every write bumps a generation counter, so
// cached snapshots from earlier generations are never read again and expire
// by TTL. Redis failures degrade to the primary store; they are logged, not
// returned.
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

func (s *CachedStore) CreateHotel(ctx context.Context, h *model.Hotel) error {
	if err := s.primary.CreateHotel(ctx, h); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedStore) InsertContract(ctx context.Context, c *model.Contract) error {
	if err := s.primary.InsertContract(ctx, c); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedStore) InsertDiscount(ctx context.Context, d *model.Discount) error {
	if err := s.primary.InsertDiscount(ctx, d); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedStore) InsertRate(ctx context.Context, r *model.ExchangeRate) error {
	if err := s.primary.InsertRate(ctx, r); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedStore) UpdateSettings(ctx context.Context, st model.Settings) error {
	if err := s.primary.UpdateSettings(ctx, st); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedStore) InitSettings(ctx context.Context, st model.Settings) (bool, error) {
	wrote, err := s.primary.InitSettings(ctx, st)
	if wrote {
		s.invalidate(ctx)
	}
	return wrote, err
}

func (s *CachedStore) Reset(ctx context.Context) error {
	if err := s.primary.Reset(ctx); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) Snapshot(ctx context.Context, hotelID string) (*model.Snapshot, error) {
	gen, err := s.generation(ctx)
	if err == nil {
		data, err := s.rdb.Get(ctx, snapshotKey(gen, hotelID)).Bytes()
		switch {
		case err == nil:
			var snap model.Snapshot
			if json.Unmarshal(data, &snap) == nil {
				metrics.SnapshotCache.WithLabelValues("hit").Inc()
				return &snap, nil
			}
			metrics.SnapshotCache.WithLabelValues("miss").Inc()
		case errors.Is(err, redis.Nil):
			metrics.SnapshotCache.WithLabelValues("miss").Inc()
		default:
			metrics.SnapshotCache.WithLabelValues("error").Inc()
			slog.Warn("snapshot cache read failed", "hotel_id", hotelID, "error", err)
		}
	} else {
		metrics.SnapshotCache.WithLabelValues("error").Inc()
		slog.Warn("snapshot cache generation read failed", "error", err)
	}

	// Cache miss: read from primary.
	snap, err := s.primary.Snapshot(ctx, hotelID)
	if err != nil {
		return nil, err
	}

	// Only cache under a generation we actually read; a concurrent write
	// will have moved past it.
	if gen != "" {
		if data, err := json.Marshal(snap); err == nil {
			s.rdb.Set(ctx, snapshotKey(gen, hotelID), data, s.ttl)
		}
	}
	return snap, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetHotel(ctx context.Context, id string) (*model.Hotel, error) {
	return s.primary.GetHotel(ctx, id)
}

func (s *CachedStore) ListHotels(ctx context.Context) ([]model.Hotel, error) {
	return s.primary.ListHotels(ctx)
}

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	return s.primary.GetMarket(ctx, id)
}

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) ListContracts(ctx context.Context, f Filter) ([]model.Contract, error) {
	return s.primary.ListContracts(ctx, f)
}

func (s *CachedStore) ListDiscounts(ctx context.Context, f Filter) ([]model.Discount, error) {
	return s.primary.ListDiscounts(ctx, f)
}

func (s *CachedStore) ListRates(ctx context.Context, f Filter) ([]model.ExchangeRate, error) {
	return s.primary.ListRates(ctx, f)
}

func (s *CachedStore) GetSettings(ctx context.Context) (model.Settings, error) {
	return s.primary.GetSettings(ctx)
}

func (s *CachedStore) AppendChangelog(ctx context.Context, e *model.ChangelogEntry) error {
	return s.primary.AppendChangelog(ctx, e)
}

func (s *CachedStore) ListChangelog(ctx context.Context, limit int) ([]model.ChangelogEntry, error) {
	return s.primary.ListChangelog(ctx, limit)
}

// --- Cache helpers ---

// generation returns the current snapshot generation, "0" before the first
// write.
func (s *CachedStore) generation(ctx context.Context) (string, error) {
	gen, err := s.rdb.Get(ctx, generationKey).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

func (s *CachedStore) invalidate(ctx context.Context) {
	if err := s.rdb.Incr(ctx, generationKey).Err(); err != nil {
		slog.Warn("snapshot cache invalidation failed", "error", err)
	}
}

const generationKey = "parity:snapshot:generation"

func snapshotKey(gen, hotelID string) string {
	if hotelID == "" {
		hotelID = "*"
	}
	return fmt.Sprintf("parity:snapshot:%s:%s", gen, hotelID)
}
