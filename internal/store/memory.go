package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/atmx/parity-engine/internal/model"
)

// MemoryStore implements Store with in-memory slices. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	hotels    []model.Hotel
	markets   []model.Market
	contracts []model.Contract
	discounts []model.Discount
	rates     []model.ExchangeRate
	settings  model.Settings
	saved     bool // settings written at least once
	changelog []model.ChangelogEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) CreateHotel(_ context.Context, h *model.Hotel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.ContainsFunc(s.hotels, func(e model.Hotel) bool { return e.ID == h.ID }) {
		return fmt.Errorf("hotel %s: %w", h.ID, ErrAlreadyExists)
	}
	s.hotels = append(s.hotels, *h)
	return nil
}

func (s *MemoryStore) GetHotel(_ context.Context, id string) (*model.Hotel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := slices.IndexFunc(s.hotels, func(h model.Hotel) bool { return h.ID == id })
	if i < 0 {
		return nil, fmt.Errorf("hotel %s: %w", id, ErrNotFound)
	}
	h := s.hotels[i]
	return &h, nil
}

func (s *MemoryStore) ListHotels(_ context.Context) ([]model.Hotel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.hotels), nil
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.ContainsFunc(s.markets, func(e model.Market) bool { return e.ID == m.ID }) {
		return fmt.Errorf("market %s: %w", m.ID, ErrAlreadyExists)
	}
	s.markets = append(s.markets, *m)
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := slices.IndexFunc(s.markets, func(m model.Market) bool { return m.ID == id })
	if i < 0 {
		return nil, fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	m := s.markets[i]
	return &m, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.markets), nil
}

func (s *MemoryStore) InsertContract(_ context.Context, c *model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.ContainsFunc(s.contracts, func(e model.Contract) bool { return e.ID == c.ID }) {
		return fmt.Errorf("contract %s: %w", c.ID, ErrAlreadyExists)
	}
	s.contracts = append(s.contracts, *c)
	return nil
}

func (s *MemoryStore) ListContracts(_ context.Context, f Filter) ([]model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Contract
	for _, c := range s.contracts {
		if f.match(c.HotelID, c.MarketID) {
			result = append(result, c)
		}
	}
	slices.Reverse(result)
	slices.SortStableFunc(result, func(a, b model.Contract) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return result, nil
}

func (s *MemoryStore) InsertDiscount(_ context.Context, d *model.Discount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.ContainsFunc(s.discounts, func(e model.Discount) bool { return e.ID == d.ID }) {
		return fmt.Errorf("discount %s: %w", d.ID, ErrAlreadyExists)
	}
	s.discounts = append(s.discounts, *d)
	return nil
}

func (s *MemoryStore) ListDiscounts(_ context.Context, f Filter) ([]model.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Discount
	for _, d := range s.discounts {
		if f.match(d.HotelID, d.MarketID) {
			result = append(result, d)
		}
	}
	slices.Reverse(result)
	slices.SortStableFunc(result, func(a, b model.Discount) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return result, nil
}

func (s *MemoryStore) InsertRate(_ context.Context, r *model.ExchangeRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.ContainsFunc(s.rates, func(e model.ExchangeRate) bool { return e.ID == r.ID }) {
		return fmt.Errorf("exchange rate %s: %w", r.ID, ErrAlreadyExists)
	}
	s.rates = append(s.rates, *r)
	return nil
}

func (s *MemoryStore) ListRates(_ context.Context, f Filter) ([]model.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ExchangeRate
	for _, r := range s.rates {
		if f.MarketID == "" || f.MarketID == r.MarketID {
			result = append(result, r)
		}
	}
	slices.Reverse(result)
	slices.SortStableFunc(result, func(a, b model.ExchangeRate) int {
		if c := cmp.Compare(b.Date, a.Date); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) GetSettings(_ context.Context) (model.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *MemoryStore) UpdateSettings(_ context.Context, settings model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.saved = true
	return nil
}

func (s *MemoryStore) InitSettings(_ context.Context, settings model.Settings) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved {
		return false, nil
	}
	s.settings = settings
	s.saved = true
	return true, nil
}

func (s *MemoryStore) AppendChangelog(_ context.Context, e *model.ChangelogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changelog = append(s.changelog, *e)
	return nil
}

func (s *MemoryStore) ListChangelog(_ context.Context, limit int) ([]model.ChangelogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Clone(s.changelog)
	slices.Reverse(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Snapshot copies every collection under a single read lock, so the pricing
// core sees one consistent state.
func (s *MemoryStore) Snapshot(_ context.Context, hotelID string) (*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f := Filter{HotelID: hotelID}
	snap := &model.Snapshot{
		Hotels:   slices.Clone(s.hotels),
		Markets:  slices.Clone(s.markets),
		Rates:    slices.Clone(s.rates),
		Settings: s.settings,
	}
	for _, c := range s.contracts {
		if f.match(c.HotelID, c.MarketID) {
			snap.Contracts = append(snap.Contracts, c)
		}
	}
	for _, d := range s.discounts {
		if f.match(d.HotelID, d.MarketID) {
			snap.Discounts = append(snap.Discounts, d)
		}
	}
	return snap, nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hotels, s.markets = nil, nil
	s.contracts, s.discounts, s.rates = nil, nil, nil
	s.settings, s.saved = model.Settings{}, false
	s.changelog = nil
	return nil
}
