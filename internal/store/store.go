// Package store defines the persistence interface for the parity engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// snapshot cache), and in-memory (for testing and development).
//
// Contracts, discounts and exchange rates are append-only: a correction is a
// new record, never an update.
package store

import (
	"context"
	"errors"

	"github.com/atmx/parity-engine/internal/model"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Filter narrows record listings. Empty fields match everything.
type Filter struct {
	HotelID  string
	MarketID string
}

func (f Filter) match(hotelID, marketID string) bool {
	return (f.HotelID == "" || f.HotelID == hotelID) &&
		(f.MarketID == "" || f.MarketID == marketID)
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis caches pricing snapshots.
type Store interface {
	// --- Catalog ---

	CreateHotel(ctx context.Context, h *model.Hotel) error
	GetHotel(ctx context.Context, id string) (*model.Hotel, error)
	// ListHotels returns hotels in catalog (insertion) order.
	ListHotels(ctx context.Context) ([]model.Hotel, error)

	CreateMarket(ctx context.Context, m *model.Market) error
	GetMarket(ctx context.Context, id string) (*model.Market, error)
	// ListMarkets returns markets in catalog (insertion) order.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// --- Effective-dated records ---

	InsertContract(ctx context.Context, c *model.Contract) error
	// ListContracts returns contracts newest-created first.
	ListContracts(ctx context.Context, f Filter) ([]model.Contract, error)

	InsertDiscount(ctx context.Context, d *model.Discount) error
	// ListDiscounts returns discounts newest-created first.
	ListDiscounts(ctx context.Context, f Filter) ([]model.Discount, error)

	InsertRate(ctx context.Context, r *model.ExchangeRate) error
	// ListRates returns exchange rates newest date first. Filter.HotelID is
	// ignored.
	ListRates(ctx context.Context, f Filter) ([]model.ExchangeRate, error)

	// --- Settings & audit ---

	// GetSettings returns the zero Settings until settings are first saved.
	GetSettings(ctx context.Context) (model.Settings, error)
	UpdateSettings(ctx context.Context, s model.Settings) error
	// InitSettings saves s only if settings have never been saved, and
	// reports whether it did.
	InitSettings(ctx context.Context, s model.Settings) (bool, error)

	AppendChangelog(ctx context.Context, e *model.ChangelogEntry) error
	// ListChangelog returns up to limit entries, newest first. limit <= 0
	// returns everything.
	ListChangelog(ctx context.Context, limit int) ([]model.ChangelogEntry, error)

	// --- Pricing input ---

	// Snapshot returns every collection the pricing core needs. Contracts
	// and discounts are restricted to hotelID when it is non-empty. Records
	// are in creation order.
	Snapshot(ctx context.Context, hotelID string) (*model.Snapshot, error)

	// Reset deletes every record, the settings and the changelog.
	Reset(ctx context.Context) error
}
