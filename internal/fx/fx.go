// Package fx converts market-local prices into the reference currency using
// step-function (last observation carried forward) exchange rate lookup.
//
// A Converter is built once per snapshot and indexes the rates per market,
// so repeated lookups over a date range do not rescan the collection.
package fx

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/parity-engine/internal/model"
	"github.com/atmx/parity-engine/internal/resolver"
)

var one = decimal.NewFromInt(1)

// Converter maps (market, date) to the multiplier that normalizes a local
// price into the reference currency.
type Converter struct {
	reference string // reference currency code
	markets   map[string]model.Market
	byMarket  map[string][]model.ExchangeRate // ascending by date, input order within a date
}

// NewConverter indexes rates for the given market catalog. The reference
// currency is the currency of referenceMarketID in the catalog.
func NewConverter(markets []model.Market, rates []model.ExchangeRate, referenceMarketID string) *Converter {
	c := &Converter{
		markets:  make(map[string]model.Market, len(markets)),
		byMarket: make(map[string][]model.ExchangeRate),
	}
	for _, m := range markets {
		c.markets[m.ID] = m
	}
	if ref, ok := c.markets[referenceMarketID]; ok {
		c.reference = ref.Currency
	}

	for _, r := range rates {
		c.byMarket[r.MarketID] = append(c.byMarket[r.MarketID], r)
	}
	for _, list := range c.byMarket {
		slices.SortStableFunc(list, func(a, b model.ExchangeRate) int {
			return strings.Compare(string(a.Date), string(b.Date))
		})
	}
	return c
}

// ReferenceCurrency returns the currency all converted prices are expressed in.
func (c *Converter) ReferenceCurrency() string {
	return c.reference
}

// RateOn returns the conversion rate for marketID on date.
//
//   - Markets quoted in the reference currency always convert at 1.
//   - Otherwise the latest observation dated on or before date is used;
//     duplicates on that date resolve to the most recently created one.
//   - Dates before the first observation, markets without observations and
//     markets missing from the catalog are unavailable. Rates are never
//     back-filled.
func (c *Converter) RateOn(marketID string, date model.Date) decimal.NullDecimal {
	market, ok := c.markets[marketID]
	if !ok {
		return decimal.NullDecimal{}
	}
	if c.reference != "" && strings.EqualFold(market.Currency, c.reference) {
		return decimal.NewNullDecimal(one)
	}

	list := c.byMarket[marketID]
	// First observation strictly after date; everything before it is <= date.
	idx, _ := slices.BinarySearchFunc(list, date, func(r model.ExchangeRate, target model.Date) int {
		if r.Date <= target {
			return -1
		}
		return 1
	})
	if idx == 0 {
		return decimal.NullDecimal{}
	}

	last := list[idx-1].Date
	start := idx - 1
	for start > 0 && list[start-1].Date == last {
		start--
	}
	rate, _ := resolver.Latest(list[start:idx], func(model.ExchangeRate) bool { return true },
		resolver.CreatedAfter[model.ExchangeRate])
	return decimal.NewNullDecimal(rate.Rate)
}
