// Package series builds per-market net price series aligned with a date range
// and derives spread and percentage-change series from them.
//
// Every series is positional: Prices[i] belongs to Dates[i], and a missing
// price stays in place as an invalid decimal.NullDecimal. Offset-based change
// calculations depend on that alignment.
package series

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/parity-engine/internal/model"
)

// Scale is the number of decimal places of derived spread and change values.
var Scale int32 = 2

var hundred = decimal.NewFromInt(100)

// PriceSource yields the net price of a hotel in a market on a date.
// *pricing.Calculator satisfies it.
type PriceSource interface {
	NetPrice(hotelID, marketID string, date model.Date) decimal.NullDecimal
}

// Series is one market's prices over the date range of its Set.
type Series struct {
	MarketID   string                `json:"market_id"`
	ColorIndex int                   `json:"color_index"`
	Prices     []decimal.NullDecimal `json:"prices"`
}

// Set is the result of Build: one aligned series per market, the reference
// market's included.
type Set struct {
	HotelID     string             `json:"hotel_id"`
	Dates       []model.Date       `json:"dates"`
	ReferenceID string             `json:"reference_market_id"`
	Series      map[string]*Series `json:"series"`

	order []string
}

// Build computes the net price of every requested market on every date.
// Duplicate market ids are ignored. The reference market is added when it
// was not requested.
func Build(src PriceSource, catalog []model.Market, hotelID string, dates []model.Date, marketIDs []string, referenceID string) *Set {
	catalogIndex := make(map[string]int, len(catalog))
	for i, m := range catalog {
		catalogIndex[m.ID] = i
	}

	s := &Set{
		HotelID:     hotelID,
		Dates:       dates,
		ReferenceID: referenceID,
		Series:      make(map[string]*Series, len(marketIDs)+1),
	}

	add := func(marketID string, requestIndex int) {
		if _, ok := s.Series[marketID]; ok {
			return
		}
		color, ok := catalogIndex[marketID]
		if !ok {
			color = requestIndex
		}
		prices := make([]decimal.NullDecimal, len(dates))
		for i, date := range dates {
			prices[i] = src.NetPrice(hotelID, marketID, date)
		}
		s.Series[marketID] = &Series{MarketID: marketID, ColorIndex: color, Prices: prices}
	}

	requested := make([]string, 0, len(marketIDs)+1)
	for i, id := range marketIDs {
		if _, ok := s.Series[id]; !ok {
			requested = append(requested, id)
		}
		add(id, i)
	}
	if referenceID != "" {
		if _, ok := s.Series[referenceID]; !ok {
			requested = append(requested, referenceID)
		}
		add(referenceID, len(marketIDs))
	}

	s.order = OrderMarkets(requested, catalog, referenceID)
	return s
}

// MarketIDs returns the market ids of the set in display order.
func (s *Set) MarketIDs() []string {
	return append([]string(nil), s.order...)
}

// Ordered returns the series in display order: the reference market first,
// then catalog order, then markets missing from the catalog.
func (s *Set) Ordered() []*Series {
	out := make([]*Series, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.Series[id])
	}
	return out
}

// Reference returns the reference market's series, or nil when the set was
// built without one.
func (s *Set) Reference() *Series {
	return s.Series[s.ReferenceID]
}

// Spread returns marketID's spread against the reference market. It returns
// nil when either series is missing from the set.
func (s *Set) Spread(marketID string) []decimal.NullDecimal {
	market, ref := s.Series[marketID], s.Reference()
	if market == nil || ref == nil {
		return nil
	}
	return Spread(market.Prices, ref.Prices)
}

// Change returns marketID's percentage change series for metric m. It
// returns nil when the market is missing from the set.
func (s *Set) Change(marketID string, m Metric) []decimal.NullDecimal {
	market := s.Series[marketID]
	if market == nil {
		return nil
	}
	return Change(market.Prices, m.Offset())
}

// Spread computes prices[i] − reference[i] for aligned series. An index is
// unavailable when either side is.
func Spread(prices, reference []decimal.NullDecimal) []decimal.NullDecimal {
	out := make([]decimal.NullDecimal, len(prices))
	for i, p := range prices {
		if i >= len(reference) || !p.Valid || !reference[i].Valid {
			continue
		}
		out[i] = decimal.NewNullDecimal(p.Decimal.Sub(reference[i].Decimal).Round(Scale))
	}
	return out
}

// Change computes the percentage change of each price against the price
// offset positions earlier.
func Change(prices []decimal.NullDecimal, offset int) []decimal.NullDecimal {
	out := make([]decimal.NullDecimal, len(prices))
	for i := range prices {
		out[i] = ChangeAt(prices, i, offset)
	}
	return out
}

// ChangeAt is the change at index i: (p[i] − p[i−offset]) / p[i−offset] × 100.
// It is unavailable before the offset, when either price is missing and when
// the earlier price is zero.
func ChangeAt(prices []decimal.NullDecimal, i, offset int) decimal.NullDecimal {
	j := i - offset
	if offset <= 0 || j < 0 || i >= len(prices) {
		return decimal.NullDecimal{}
	}
	cur, prev := prices[i], prices[j]
	if !cur.Valid || !prev.Valid || prev.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	pct := cur.Decimal.Sub(prev.Decimal).Div(prev.Decimal).Mul(hundred)
	return decimal.NewNullDecimal(pct.Round(Scale))
}
