package series

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/parity-engine/internal/model"
	"github.com/atmx/parity-engine/internal/pricing"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func p(f float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(f))
}

var none = decimal.NullDecimal{}

// table is a PriceSource backed by fixed per-market price lists indexed by
// day of April 2024.
type table map[string][]decimal.NullDecimal

func (tb table) NetPrice(_ string, marketID string, date model.Date) decimal.NullDecimal {
	prices := tb[marketID]
	day := date.Time().Day() - 1
	if day >= len(prices) {
		return none
	}
	return prices[day]
}

var catalog = []model.Market{
	{ID: "market-eur", Name: "Europe (EUR)", Currency: "EUR"},
	{ID: "market-gbp", Name: "United Kingdom (GBP)", Currency: "GBP"},
	{ID: "market-try", Name: "Turkey (TRY)", Currency: "TRY"},
}

func april(t *testing.T, days int) []model.Date {
	t.Helper()
	dates, err := model.DateRange("2024-04-01", model.MustDate("2024-04-01").AddDays(days-1))
	if err != nil {
		t.Fatalf("date range: %v", err)
	}
	return dates
}

func equalSeries(t *testing.T, label string, got, want []decimal.NullDecimal) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: expected %d values, got %d", label, len(want), len(got))
	}
	for i := range want {
		if got[i].Valid != want[i].Valid {
			t.Errorf("%s[%d]: expected valid=%v, got %v", label, i, want[i].Valid, got[i].Valid)
			continue
		}
		if want[i].Valid && !got[i].Decimal.Equal(want[i].Decimal) {
			t.Errorf("%s[%d]: expected %s, got %s", label, i, want[i].Decimal, got[i].Decimal)
		}
	}
}

func TestBuild_AlignedWithDates(t *testing.T) {
	src := table{
		"market-eur": {p(100), none, p(102)},
		"market-gbp": {none, p(98), p(99)},
	}
	dates := april(t, 3)
	set := Build(src, catalog, "H", dates, []string{"market-gbp"}, "market-eur")

	if len(set.Series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(set.Series))
	}
	for id, s := range set.Series {
		if len(s.Prices) != len(dates) {
			t.Errorf("%s: expected %d prices, got %d", id, len(dates), len(s.Prices))
		}
	}
	equalSeries(t, "eur", set.Series["market-eur"].Prices, []decimal.NullDecimal{p(100), none, p(102)})
	equalSeries(t, "gbp", set.Series["market-gbp"].Prices, []decimal.NullDecimal{none, p(98), p(99)})
}

func TestBuild_ReferencePinnedFirst(t *testing.T) {
	src := table{}
	dates := april(t, 2)

	for _, requested := range [][]string{
		{"market-try", "market-gbp"},
		{"market-gbp", "market-try", "market-eur"},
		{"market-eur", "market-try", "market-gbp"},
	} {
		set := Build(src, catalog, "H", dates, requested, "market-eur")
		got := set.MarketIDs()
		want := []string{"market-eur", "market-gbp", "market-try"}
		if !slices.Equal(got, want) {
			t.Errorf("requested %v: expected %v, got %v", requested, want, got)
		}
		if set.Ordered()[0].MarketID != "market-eur" {
			t.Errorf("requested %v: expected reference series first", requested)
		}
	}

	// A non-first catalog market can be the reference too.
	set := Build(src, catalog, "H", dates, []string{"market-eur", "market-try"}, "market-try")
	if got := set.MarketIDs(); !slices.Equal(got, []string{"market-try", "market-eur"}) {
		t.Errorf("expected try pinned first, got %v", got)
	}
}

func TestBuild_DeduplicatesRequest(t *testing.T) {
	calls := 0
	src := countingSource(func() { calls++ })
	dates := april(t, 4)

	set := Build(src, catalog, "H", dates, []string{"market-gbp", "market-gbp", "market-eur"}, "market-eur")

	if len(set.Series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(set.Series))
	}
	if calls != 2*len(dates) {
		t.Errorf("expected one lookup per (market, date), got %d", calls)
	}
}

type countingSource func()

func (c countingSource) NetPrice(string, string, model.Date) decimal.NullDecimal {
	c()
	return none
}

func TestBuild_ColorIndex(t *testing.T) {
	dates := april(t, 1)

	set := Build(table{}, catalog, "H", dates, []string{"market-try", "market-x"}, "market-eur")
	if got := set.Series["market-try"].ColorIndex; got != 2 {
		t.Errorf("catalog market: expected color 2, got %d", got)
	}
	if got := set.Series["market-x"].ColorIndex; got != 1 {
		t.Errorf("unknown market: expected request position 1, got %d", got)
	}
	if got := set.Series["market-eur"].ColorIndex; got != 0 {
		t.Errorf("reference: expected catalog color 0, got %d", got)
	}

	set = Build(table{}, catalog, "H", dates, []string{"market-gbp"}, "market-zzz")
	if got := set.Series["market-zzz"].ColorIndex; got != 1 {
		t.Errorf("unrequested unknown reference: expected %d, got %d", 1, got)
	}
}

func TestOrderMarkets_UnknownLastStable(t *testing.T) {
	got := OrderMarkets([]string{"z", "market-try", "a", "market-eur", "market-gbp", "a"}, catalog, "market-gbp")
	want := []string{"market-gbp", "market-eur", "market-try", "z", "a"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestOrderMarkets_Empty(t *testing.T) {
	if got := OrderMarkets(nil, catalog, "market-eur"); len(got) != 0 {
		t.Errorf("expected empty order, got %v", got)
	}
}

func TestSpread(t *testing.T) {
	src := table{
		"market-eur": {p(100), p(100), none, p(100.5)},
		"market-gbp": {p(104.25), none, p(90), p(99.99)},
	}
	set := Build(src, catalog, "H", april(t, 4), []string{"market-gbp"}, "market-eur")

	equalSeries(t, "spread", set.Spread("market-gbp"), []decimal.NullDecimal{p(4.25), none, none, p(-0.51)})
	equalSeries(t, "self", set.Spread("market-eur"), []decimal.NullDecimal{p(0), p(0), none, p(0)})
	if set.Spread("market-try") != nil {
		t.Error("expected nil spread for a market outside the set")
	}
}

func TestChange(t *testing.T) {
	prices := []decimal.NullDecimal{p(100), p(110), none, p(0), p(50), p(100)}

	equalSeries(t, "dod", Change(prices, 1), []decimal.NullDecimal{
		none,
		p(10),
		none, // current missing
		none, // previous missing
		none, // previous is zero
		p(100),
	})
	equalSeries(t, "offset 2", Change(prices, 2), []decimal.NullDecimal{
		none, none, none, p(-100), none, none,
	})
}

func TestChange_Rounded(t *testing.T) {
	prices := []decimal.NullDecimal{p(110), p(100), p(300)}
	equalSeries(t, "dod", Change(prices, 1), []decimal.NullDecimal{none, p(-9.09), p(200)})

	prices = []decimal.NullDecimal{p(3), p(3.02)}
	// 0.6666… rounds to 0.67
	equalSeries(t, "dod", Change(prices, 1), []decimal.NullDecimal{none, p(0.67)})
}

func TestChange_OffsetBoundary(t *testing.T) {
	flat := make([]decimal.NullDecimal, 40)
	for i := range flat {
		flat[i] = p(120)
	}
	for _, m := range Metrics {
		got := Change(flat, m.Offset())
		for i, v := range got {
			if i < m.Offset() && v.Valid {
				t.Errorf("%s[%d]: expected unavailable before the offset, got %s", m, i, v.Decimal)
			}
			if i >= m.Offset() && (!v.Valid || !v.Decimal.IsZero()) {
				t.Errorf("%s[%d]: expected 0, got %+v", m, i, v)
			}
		}
	}
}

func TestChangeAt_OutOfRange(t *testing.T) {
	prices := []decimal.NullDecimal{p(1), p(2)}
	if ChangeAt(prices, 5, 1).Valid {
		t.Error("expected unavailable past the end")
	}
	if ChangeAt(prices, 1, 0).Valid {
		t.Error("expected unavailable for a zero offset")
	}
}

func TestSetChange(t *testing.T) {
	src := table{"market-eur": make([]decimal.NullDecimal, 10)}
	for i := range src["market-eur"] {
		src["market-eur"][i] = p(float64(100 + i))
	}
	set := Build(src, catalog, "H", april(t, 10), nil, "market-eur")

	wow := set.Change("market-eur", WeekOverWeek)
	if len(wow) != 10 {
		t.Fatalf("expected 10 values, got %d", len(wow))
	}
	for i := 0; i < 7; i++ {
		if wow[i].Valid {
			t.Errorf("wow[%d]: expected unavailable", i)
		}
	}
	// (107 − 100) / 100 × 100
	if !wow[7].Valid || !wow[7].Decimal.Equal(d(7)) {
		t.Errorf("wow[7]: expected 7, got %+v", wow[7])
	}
	if set.Change("market-gbp", DayOverDay) != nil {
		t.Error("expected nil change for a market outside the set")
	}
}

func TestMetrics(t *testing.T) {
	tests := []struct {
		in     string
		want   Metric
		offset int
		label  string
	}{
		{"", DayOverDay, 1, "DoD %"},
		{"dod", DayOverDay, 1, "DoD %"},
		{"WoW", WeekOverWeek, 7, "WoW %"},
		{" mom ", MonthOverMonth, 30, "MoM %"},
	}
	for _, tt := range tests {
		m, err := ParseMetric(tt.in)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tt.in, err)
		}
		if m != tt.want || m.Offset() != tt.offset || m.Label() != tt.label {
			t.Errorf("%q: expected %s/%d/%s, got %s/%d/%s", tt.in, tt.want, tt.offset, tt.label, m, m.Offset(), m.Label())
		}
	}

	if _, err := ParseMetric("yoy"); !errors.Is(err, ErrUnknownMetric) {
		t.Errorf("expected ErrUnknownMetric, got %v", err)
	}
}

func TestBuild_WithCalculator(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	snap := &model.Snapshot{
		Markets: catalog,
		Contracts: []model.Contract{
			{ID: "e", HotelID: "H", MarketID: "market-eur", StartDate: "2024-04-01", EndDate: "2024-04-30", Price: d(140), Commission: d(10), CreatedAt: t0},
			{ID: "g", HotelID: "H", MarketID: "market-gbp", StartDate: "2024-04-02", EndDate: "2024-04-30", Price: d(110), Commission: d(12), CreatedAt: t0},
		},
		Rates: []model.ExchangeRate{
			{ID: "r", MarketID: "market-gbp", Date: "2024-04-01", Rate: d(1.15), CreatedAt: t0},
		},
		Settings: model.Settings{ReferenceMarketID: "market-eur"},
	}
	calc := pricing.NewCalculator(snap)
	set := Build(calc, snap.Markets, "H", april(t, 3), []string{"market-gbp"}, snap.ReferenceMarketID())

	equalSeries(t, "eur", set.Series["market-eur"].Prices, []decimal.NullDecimal{p(126), p(126), p(126)})
	equalSeries(t, "gbp", set.Series["market-gbp"].Prices, []decimal.NullDecimal{none, p(111.32), p(111.32)})
	// 111.32 − 126
	equalSeries(t, "spread", set.Spread("market-gbp"), []decimal.NullDecimal{none, p(-14.68), p(-14.68)})
}
