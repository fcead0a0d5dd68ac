package fx

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/parity-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var (
	t0      = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	markets = []model.Market{
		{ID: "market-eur", Name: "Europe (EUR)", Currency: "EUR"},
		{ID: "market-gbp", Name: "United Kingdom (GBP)", Currency: "GBP"},
		{ID: "market-try", Name: "Turkey (TRY)", Currency: "TRY"},
	}
)

func rate(id, marketID, date string, value float64, createdOffset time.Duration) model.ExchangeRate {
	return model.ExchangeRate{
		ID:        id,
		MarketID:  marketID,
		Date:      model.MustDate(date),
		Rate:      d(value),
		CreatedAt: t0.Add(createdOffset),
	}
}

func expectRate(t *testing.T, got decimal.NullDecimal, want float64) {
	t.Helper()
	if !got.Valid {
		t.Fatalf("expected rate %v, got unavailable", want)
	}
	if !got.Decimal.Equal(d(want)) {
		t.Errorf("expected rate %v, got %s", want, got.Decimal)
	}
}

func expectUnavailable(t *testing.T, got decimal.NullDecimal) {
	t.Helper()
	if got.Valid {
		t.Errorf("expected unavailable, got %s", got.Decimal)
	}
}

func TestRateOn_ReferenceCurrencyIdentity(t *testing.T) {
	// No rates at all.
	c := NewConverter(markets, nil, "market-eur")
	expectRate(t, c.RateOn("market-eur", "2024-04-01"), 1)

	// Spurious rates for the reference-currency market are ignored.
	c = NewConverter(markets, []model.ExchangeRate{
		rate("r1", "market-eur", "2024-04-01", 1.7, 0),
	}, "market-eur")
	expectRate(t, c.RateOn("market-eur", "2024-04-01"), 1)
	expectRate(t, c.RateOn("market-eur", "1999-01-01"), 1)

	if c.ReferenceCurrency() != "EUR" {
		t.Errorf("expected reference currency EUR, got %s", c.ReferenceCurrency())
	}
}

func TestRateOn_IdentityFollowsCurrencyNotMarket(t *testing.T) {
	catalog := append([]model.Market{}, markets...)
	catalog = append(catalog, model.Market{ID: "market-de", Name: "Germany", Currency: "EUR"})

	c := NewConverter(catalog, nil, "market-eur")
	expectRate(t, c.RateOn("market-de", "2024-04-01"), 1)
}

func TestRateOn_ExactMatch(t *testing.T) {
	c := NewConverter(markets, []model.ExchangeRate{
		rate("r1", "market-gbp", "2024-04-01", 1.15, 0),
		rate("r2", "market-gbp", "2024-04-05", 1.17, 0),
	}, "market-eur")
	expectRate(t, c.RateOn("market-gbp", "2024-04-05"), 1.17)
	expectRate(t, c.RateOn("market-gbp", "2024-04-01"), 1.15)
}

func TestRateOn_ForwardFill(t *testing.T) {
	// Deliberately unsorted input.
	c := NewConverter(markets, []model.ExchangeRate{
		rate("r3", "market-gbp", "2024-04-10", 1.19, 0),
		rate("r1", "market-gbp", "2024-04-01", 1.15, 0),
		rate("r2", "market-gbp", "2024-04-05", 1.17, 0),
	}, "market-eur")

	expectRate(t, c.RateOn("market-gbp", "2024-04-04"), 1.15)
	expectRate(t, c.RateOn("market-gbp", "2024-04-09"), 1.17)
	expectRate(t, c.RateOn("market-gbp", "2024-12-31"), 1.19)
}

func TestRateOn_NoBackFill(t *testing.T) {
	c := NewConverter(markets, []model.ExchangeRate{
		rate("r1", "market-gbp", "2024-04-05", 1.15, 0),
		rate("r2", "market-gbp", "2024-04-06", 1.16, 0),
	}, "market-eur")

	expectUnavailable(t, c.RateOn("market-gbp", "2024-04-04"))
	expectUnavailable(t, c.RateOn("market-gbp", "2024-01-01"))
}

func TestRateOn_EmptyRatesForForeignMarket(t *testing.T) {
	c := NewConverter(markets, []model.ExchangeRate{
		rate("r1", "market-gbp", "2024-04-01", 1.15, 0),
	}, "market-eur")

	expectUnavailable(t, c.RateOn("market-try", "2024-04-01"))
}

func TestRateOn_UnknownMarket(t *testing.T) {
	c := NewConverter(markets, []model.ExchangeRate{
		rate("r1", "market-usd", "2024-04-01", 0.92, 0),
	}, "market-eur")

	expectUnavailable(t, c.RateOn("market-usd", "2024-04-01"))
}

func TestRateOn_DuplicateDateLatestCreatedWins(t *testing.T) {
	c := NewConverter(markets, []model.ExchangeRate{
		rate("r1", "market-gbp", "2024-04-01", 1.10, 0),
		rate("late", "market-gbp", "2024-04-05", 1.20, 2*time.Minute),
		rate("early", "market-gbp", "2024-04-05", 1.18, time.Minute),
	}, "market-eur")

	expectRate(t, c.RateOn("market-gbp", "2024-04-05"), 1.20)
	expectRate(t, c.RateOn("market-gbp", "2024-04-07"), 1.20)
}

func TestRateOn_DuplicateDateTieGoesToFirstInInput(t *testing.T) {
	c := NewConverter(markets, []model.ExchangeRate{
		rate("a", "market-gbp", "2024-04-05", 1.11, 0),
		rate("b", "market-gbp", "2024-04-05", 1.22, 0),
	}, "market-eur")

	expectRate(t, c.RateOn("market-gbp", "2024-04-05"), 1.11)
}

func TestRateOn_UnknownReferenceMarket(t *testing.T) {
	c := NewConverter(markets, []model.ExchangeRate{
		rate("r1", "market-eur", "2024-04-01", 1, 0),
	}, "market-missing")

	// Without a reference currency nothing gets the implicit identity rate.
	expectRate(t, c.RateOn("market-eur", "2024-04-02"), 1)
	expectUnavailable(t, c.RateOn("market-gbp", "2024-04-02"))
	if c.ReferenceCurrency() != "" {
		t.Errorf("expected empty reference currency, got %q", c.ReferenceCurrency())
	}
}
