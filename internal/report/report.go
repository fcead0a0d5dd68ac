// Package report turns a series.Set into the tabular dashboard view: summary
// cards per market, a per-date table with threshold severities, and file
// exports of that table.
package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/parity-engine/internal/model"
	"github.com/atmx/parity-engine/internal/series"
	"github.com/atmx/parity-engine/internal/stats"
)

var ErrUnknownMode = errors.New("report: unknown mode")

// UnknownMarketName labels markets missing from the catalog.
const UnknownMarketName = "Unknown market"

// Severity classifies a percentage value against the configured thresholds.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Thresholds are percentage magnitudes.
type Thresholds struct {
	Warning  decimal.Decimal `json:"warning"`
	Critical decimal.Decimal `json:"critical"`
}

func ThresholdsOf(s model.Settings) Thresholds {
	return Thresholds{Warning: s.WarningThreshold, Critical: s.CriticalThreshold}
}

// Classify compares |value| with the critical threshold first, then the
// warning threshold.
func Classify(value decimal.Decimal, th Thresholds) Severity {
	abs := value.Abs()
	switch {
	case abs.GreaterThanOrEqual(th.Critical):
		return SeverityCritical
	case abs.GreaterThanOrEqual(th.Warning):
		return SeverityWarning
	default:
		return SeverityNormal
	}
}

// Mode selects what the dashboard compares.
type Mode string

const (
	ModeSpread Mode = "spread"
	ModeChange Mode = "change"
)

// ParseMode accepts a mode name case-insensitively. An empty string selects
// ModeSpread.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSpread:
		return ModeSpread, nil
	case ModeChange:
		return ModeChange, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Card summarizes one market. In spread mode the statistics are over its
// net prices; in change mode over the selected metric's change values.
type Card struct {
	MarketID  string        `json:"market_id"`
	Name      string        `json:"name"`
	Reference bool          `json:"reference"`
	Metric    string        `json:"metric,omitempty"`
	Summary   stats.Summary `json:"summary"`
}

// Cell is one table value. Severity is only set for change values.
type Cell struct {
	Value    decimal.NullDecimal `json:"value"`
	Severity Severity            `json:"severity,omitempty"`
}

type Row struct {
	Date  model.Date `json:"date"`
	Cells []Cell     `json:"cells"`
}

// Table has one column title per cell plus the leading date column.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Dashboard is the complete view over one hotel and date range.
type Dashboard struct {
	HotelID           string           `json:"hotel_id"`
	HotelName         string           `json:"hotel_name"`
	Mode              Mode             `json:"mode"`
	Metric            series.Metric    `json:"metric"`
	ReferenceMarketID string           `json:"reference_market_id"`
	Currency          string           `json:"currency"`
	Thresholds        Thresholds       `json:"thresholds"`
	Dates             []model.Date     `json:"dates"`
	Series            []*series.Series `json:"series"`
	Cards             []Card           `json:"cards"`
	Table             Table            `json:"table"`
}

// BuildDashboard derives cards and table from set. The snapshot supplies
// market and hotel names, the reference currency and the thresholds.
func BuildDashboard(set *series.Set, snap *model.Snapshot, mode Mode, metric series.Metric) *Dashboard {
	names := nameLookup(snap)
	currency := ""
	if ref, ok := snap.Market(set.ReferenceID); ok {
		currency = ref.Currency
	}
	hotelName := set.HotelID
	if h, ok := snap.Hotel(set.HotelID); ok {
		hotelName = h.Name
	}

	d := &Dashboard{
		HotelID:           set.HotelID,
		HotelName:         hotelName,
		Mode:              mode,
		Metric:            metric,
		ReferenceMarketID: set.ReferenceID,
		Currency:          currency,
		Thresholds:        ThresholdsOf(snap.Settings),
		Dates:             set.Dates,
		Series:            set.Ordered(),
	}

	for _, s := range d.Series {
		card := Card{MarketID: s.MarketID, Name: names(s.MarketID), Reference: s.MarketID == set.ReferenceID}
		if mode == ModeChange {
			card.Metric = metric.Label()
			card.Summary = stats.SummarizeSeries(series.Change(s.Prices, metric.Offset()))
		} else {
			card.Summary = stats.SummarizeSeries(s.Prices)
		}
		d.Cards = append(d.Cards, card)
	}

	if mode == ModeChange {
		d.Table = changeTable(set, d.Series, names, d.Thresholds)
	} else {
		d.Table = spreadTable(set, d.Series, names, currency)
	}
	return d
}

func nameLookup(snap *model.Snapshot) func(string) string {
	return func(id string) string {
		if m, ok := snap.Market(id); ok && m.Name != "" {
			return m.Name
		}
		return UnknownMarketName
	}
}

func withCurrency(name, currency string) string {
	if currency == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, currency)
}

// spreadTable: Date, reference price, then price and spread per other market.
func spreadTable(set *series.Set, ordered []*series.Series, names func(string) string, currency string) Table {
	refPrices := make([]decimal.NullDecimal, len(set.Dates))
	if ref := set.Reference(); ref != nil {
		refPrices = ref.Prices
	}

	t := Table{Columns: []string{"Date", withCurrency(names(set.ReferenceID), currency)}}
	var others []*series.Series
	for _, s := range ordered {
		if s.MarketID == set.ReferenceID {
			continue
		}
		others = append(others, s)
		t.Columns = append(t.Columns, withCurrency(names(s.MarketID), currency), names(s.MarketID)+" Spread")
	}
	spreads := make([][]decimal.NullDecimal, len(others))
	for i, s := range others {
		spreads[i] = series.Spread(s.Prices, refPrices)
	}

	for i, date := range set.Dates {
		row := Row{Date: date, Cells: []Cell{{Value: refPrices[i]}}}
		for j, s := range others {
			row.Cells = append(row.Cells, Cell{Value: s.Prices[i]}, Cell{Value: spreads[j][i]})
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// changeTable: Date, then every metric per market, each cell classified.
func changeTable(set *series.Set, ordered []*series.Series, names func(string) string, th Thresholds) Table {
	t := Table{Columns: []string{"Date"}}
	changes := make([][]decimal.NullDecimal, 0, len(ordered)*len(series.Metrics))
	for _, s := range ordered {
		for _, m := range series.Metrics {
			t.Columns = append(t.Columns, names(s.MarketID)+" "+m.Label())
			changes = append(changes, series.Change(s.Prices, m.Offset()))
		}
	}

	for i, date := range set.Dates {
		row := Row{Date: date, Cells: make([]Cell, 0, len(changes))}
		for _, c := range changes {
			cell := Cell{Value: c[i]}
			if c[i].Valid {
				cell.Severity = Classify(c[i].Decimal, th)
			}
			row.Cells = append(row.Cells, cell)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
