// Package model defines the core domain types shared across the parity engine.
// All monetary values and percentages use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Key identifies the (hotel, market) pair that contracts and discounts are
// entered against.
type Key struct {
	HotelID  string
	MarketID string
}

// Hotel is a property whose contracted prices are tracked.
type Hotel struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Market is a sales market. Its prices are quoted in Currency.
type Market struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Currency string `json:"currency" db:"currency"`
}

// Contract is an immutable price agreement for one (hotel, market) pair,
// valid over [StartDate, EndDate] inclusive. Corrections are entered as new
// contracts; the most recently created one wins on overlapping dates.
type Contract struct {
	ID         string          `json:"id" db:"id"`
	HotelID    string          `json:"hotel_id" db:"hotel_id"`
	MarketID   string          `json:"market_id" db:"market_id"`
	StartDate  Date            `json:"start_date" db:"start_date"`
	EndDate    Date            `json:"end_date" db:"end_date"`
	Price      decimal.Decimal `json:"price" db:"price"`           // per person, market-local currency
	Commission decimal.Decimal `json:"commission" db:"commission"` // percent
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// Discount is an optional percentage overlay on the contract price for the
// same (hotel, market) pair.
type Discount struct {
	ID        string          `json:"id" db:"id"`
	HotelID   string          `json:"hotel_id" db:"hotel_id"`
	MarketID  string          `json:"market_id" db:"market_id"`
	StartDate Date            `json:"start_date" db:"start_date"`
	EndDate   Date            `json:"end_date" db:"end_date"`
	Percent   decimal.Decimal `json:"percent" db:"percent"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// ExchangeRate is one observation of a market's currency against the
// reference currency: reference = local × Rate.
type ExchangeRate struct {
	ID        string          `json:"id" db:"id"`
	MarketID  string          `json:"market_id" db:"market_id"`
	Date      Date            `json:"date" db:"date"`
	Rate      decimal.Decimal `json:"rate" db:"rate"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Settings is the process-wide pricing configuration. Thresholds are
// expressed in percent, the same unit as change series values.
type Settings struct {
	ReferenceMarketID string          `json:"reference_market_id" db:"reference_market_id"`
	WarningThreshold  decimal.Decimal `json:"warning_threshold" db:"warning_threshold"`
	CriticalThreshold decimal.Decimal `json:"critical_threshold" db:"critical_threshold"`
}

// ChangelogEntry is an audit record appended on every catalog write.
type ChangelogEntry struct {
	ID        string    `json:"id" db:"id"`
	Kind      string    `json:"kind" db:"kind"`
	Message   string    `json:"message" db:"message"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// Snapshot is a read-only view of every record collection at one point in
// time. The pricing core only ever reads a snapshot.
type Snapshot struct {
	Hotels    []Hotel        `json:"hotels"`
	Markets   []Market       `json:"markets"`
	Contracts []Contract     `json:"contracts"`
	Discounts []Discount     `json:"discounts"`
	Rates     []ExchangeRate `json:"rates"`
	Settings  Settings       `json:"settings"`
}

// ReferenceMarketID returns the configured reference market, falling back to
// the first catalog market when none is configured.
func (s *Snapshot) ReferenceMarketID() string {
	if s.Settings.ReferenceMarketID != "" {
		return s.Settings.ReferenceMarketID
	}
	if len(s.Markets) > 0 {
		return s.Markets[0].ID
	}
	return ""
}

// Market looks up a catalog market by id.
func (s *Snapshot) Market(id string) (Market, bool) {
	for _, m := range s.Markets {
		if m.ID == id {
			return m, true
		}
	}
	return Market{}, false
}

// Hotel looks up a catalog hotel by id.
func (s *Snapshot) Hotel(id string) (Hotel, bool) {
	for _, h := range s.Hotels {
		if h.ID == id {
			return h, true
		}
	}
	return Hotel{}, false
}

// --- Effective-dated record accessors ---

func (c Contract) RecordKey() Key { return Key{HotelID: c.HotelID, MarketID: c.MarketID} }
func (c Contract) Window() (start, end Date) { return c.StartDate, c.EndDate }
func (c Contract) Created() time.Time { return c.CreatedAt }
func (d Discount) RecordKey() Key { return Key{HotelID: d.HotelID, MarketID: d.MarketID} }
func (d Discount) Window() (start, end Date) { return d.StartDate, d.EndDate }
func (d Discount) Created() time.Time { return d.CreatedAt }
func (r ExchangeRate) Created() time.Time { return r.CreatedAt }
