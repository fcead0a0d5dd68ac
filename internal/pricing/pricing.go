// Package pricing computes the net price of a hotel in a market on a date,
// normalized into the reference currency:
//
//	net = price × (1 − commission/100) × (1 − discount/100) × rate
//
// The contract and discount are the effective records from package resolver;
// the rate comes from package fx. Arithmetic is exact decimal arithmetic and
// the result is rounded to PriceScale places, half away from zero
// (1.005 → 1.01, −1.005 → −1.01).
//
// A missing contract or rate is not an error: the price is simply
// unavailable on that date.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/parity-engine/internal/fx"
	"github.com/atmx/parity-engine/internal/model"
	"github.com/atmx/parity-engine/internal/resolver"
)

// PriceScale is the number of decimal places of every published price.
var PriceScale int32 = 2

var hundred = decimal.NewFromInt(100)

// Reasons a net price can be unavailable.
const (
	ReasonNoContract = "no_contract"
	ReasonNoRate     = "no_rate"
)

// Quote is the full breakdown of one net price lookup.
type Quote struct {
	HotelID     string              `json:"hotel_id"`
	MarketID    string              `json:"market_id"`
	Date        model.Date          `json:"date"`
	Contract    *model.Contract     `json:"contract,omitempty"`
	Discount    *model.Discount     `json:"discount,omitempty"`
	LocalNet    decimal.NullDecimal `json:"local_net"` // unrounded, market-local currency
	Rate        decimal.NullDecimal `json:"rate"`
	Net         decimal.NullDecimal `json:"net"` // reference currency, rounded
	Unavailable string              `json:"unavailable,omitempty"`
}

// Calculator resolves net prices against one snapshot. It is immutable and
// safe for concurrent use.
type Calculator struct {
	contracts []model.Contract
	discounts []model.Discount
	rates     *fx.Converter
}

// NewCalculator builds a calculator over the snapshot's collections. The
// snapshot must not be modified while the calculator is in use.
func NewCalculator(snap *model.Snapshot) *Calculator {
	return &Calculator{
		contracts: snap.Contracts,
		discounts: snap.Discounts,
		rates:     fx.NewConverter(snap.Markets, snap.Rates, snap.ReferenceMarketID()),
	}
}

// Converter exposes the rate converter built for the snapshot.
func (c *Calculator) Converter() *fx.Converter {
	return c.rates
}

// NetPrice returns the net price in the reference currency, or an invalid
// NullDecimal when it is unavailable.
func (c *Calculator) NetPrice(hotelID, marketID string, date model.Date) decimal.NullDecimal {
	return c.Quote(hotelID, marketID, date).Net
}

// Quote resolves the effective contract, discount and rate and combines them.
func (c *Calculator) Quote(hotelID, marketID string, date model.Date) Quote {
	q := Quote{HotelID: hotelID, MarketID: marketID, Date: date}
	key := model.Key{HotelID: hotelID, MarketID: marketID}

	contract, ok := resolver.EffectiveOn(c.contracts, key, date)
	if !ok {
		q.Unavailable = ReasonNoContract
		return q
	}
	q.Contract = &contract

	local := contract.Price.Mul(factor(contract.Commission))
	if discount, ok := resolver.EffectiveOn(c.discounts, key, date); ok {
		q.Discount = &discount
		local = local.Mul(factor(discount.Percent))
	}
	q.LocalNet = decimal.NewNullDecimal(local)

	q.Rate = c.rates.RateOn(marketID, date)
	// A zero rate is a placeholder, not a conversion.
	if !q.Rate.Valid || q.Rate.Decimal.IsZero() {
		q.Unavailable = ReasonNoRate
		return q
	}

	q.Net = decimal.NewNullDecimal(local.Mul(q.Rate.Decimal).Round(PriceScale))
	return q
}

// factor converts a percentage reduction into a multiplier: 10 → 0.9.
func factor(percent decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Sub(percent.Div(hundred))
}
