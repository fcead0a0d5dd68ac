package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/parity-engine/internal/model"
)

// SampleStart is the first day covered by the sample data set.
const SampleStart model.Date = "2024-04-01"

const sampleDays = 30

// SeedSample loads the demo data set (two hotels, EUR/GBP/TRY markets,
// April 2024 contracts, discounts and daily rates) into an empty store.
// It reports false without writing anything when markets already exist.
func SeedSample(ctx context.Context, st Store, now time.Time) (bool, error) {
	existing, err := st.ListMarkets(ctx)
	if err != nil {
		return false, fmt.Errorf("check existing markets: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	now = now.UTC()
	ago := func(ms int) time.Time { return now.Add(-time.Duration(ms) * time.Millisecond) }
	d := decimal.NewFromInt

	hotels := []model.Hotel{
		{ID: "hotel-aurora", Name: "Hotel Aurora"},
		{ID: "hotel-meridian", Name: "Hotel Meridian"},
	}
	markets := []model.Market{
		{ID: "market-eur", Name: "Europe (EUR)", Currency: "EUR"},
		{ID: "market-gbp", Name: "United Kingdom (GBP)", Currency: "GBP"},
		{ID: "market-try", Name: "Turkey (TRY)", Currency: "TRY"},
	}
	contract := func(hotel, market string, start, end model.Date, price, commission int64, ms int) model.Contract {
		return model.Contract{
			ID: uuid.NewString(), HotelID: hotel, MarketID: market,
			StartDate: start, EndDate: end,
			Price: d(price), Commission: d(commission), CreatedAt: ago(ms),
		}
	}
	contracts := []model.Contract{
		contract("hotel-aurora", "market-eur", "2024-04-01", "2024-04-30", 140, 10, 1000),
		contract("hotel-aurora", "market-gbp", "2024-04-01", "2024-04-30", 110, 12, 900),
		contract("hotel-aurora", "market-try", "2024-04-01", "2024-04-30", 4200, 8, 800),
		contract("hotel-meridian", "market-eur", "2024-04-01", "2024-04-30", 160, 9, 700),
		contract("hotel-meridian", "market-gbp", "2024-04-01", "2024-04-30", 125, 11, 600),
		contract("hotel-meridian", "market-try", "2024-04-01", "2024-04-30", 4700, 7, 500),
		contract("hotel-aurora", "market-eur", "2024-04-15", "2024-04-30", 150, 9, 400),
		contract("hotel-meridian", "market-gbp", "2024-04-18", "2024-04-30", 130, 10, 300),
	}
	discount := func(hotel, market string, start, end model.Date, percent int64, ms int) model.Discount {
		return model.Discount{
			ID: uuid.NewString(), HotelID: hotel, MarketID: market,
			StartDate: start, EndDate: end,
			Percent: d(percent), CreatedAt: ago(ms),
		}
	}
	discounts := []model.Discount{
		discount("hotel-aurora", "market-gbp", "2024-04-10", "2024-04-20", 7, 600),
		discount("hotel-aurora", "market-try", "2024-04-05", "2024-04-25", 5, 400),
		discount("hotel-meridian", "market-eur", "2024-04-12", "2024-04-22", 6, 350),
	}

	for i := range hotels {
		if err := st.CreateHotel(ctx, &hotels[i]); err != nil {
			return false, err
		}
	}
	for i := range markets {
		if err := st.CreateMarket(ctx, &markets[i]); err != nil {
			return false, err
		}
	}
	for i := range contracts {
		if err := st.InsertContract(ctx, &contracts[i]); err != nil {
			return false, err
		}
	}
	for i := range discounts {
		if err := st.InsertDiscount(ctx, &discounts[i]); err != nil {
			return false, err
		}
	}
	for _, r := range SampleRates(markets, now) {
		if err := st.InsertRate(ctx, &r); err != nil {
			return false, err
		}
	}
	if err := st.UpdateSettings(ctx, model.Settings{
		ReferenceMarketID: "market-eur",
		WarningThreshold:  d(5),
		CriticalThreshold: d(10),
	}); err != nil {
		return false, err
	}
	if err := st.AppendChangelog(ctx, &model.ChangelogEntry{
		ID: uuid.NewString(), Kind: "system", Message: "Sample data loaded", Timestamp: now,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// SampleRates generates one rate per market per day for thirty days from
// SampleStart. EUR markets get 1; GBP oscillates around 1.15 and everything
// else around 0.028, rounded to four places.
func SampleRates(markets []model.Market, now time.Time) []model.ExchangeRate {
	var rates []model.ExchangeRate
	for i := 0; i < sampleDays; i++ {
		date := SampleStart.AddDays(i)
		created := now.Add(time.Duration(i-200) * time.Millisecond)
		for _, m := range markets {
			rate := decimal.NewFromInt(1)
			if m.Currency != "EUR" {
				base, amplitude := 0.028, 0.0025
				if m.Currency == "GBP" {
					base, amplitude = 1.15, 0.02
				}
				noise := math.Sin(float64(i+1)/4) * amplitude
				rate = decimal.NewFromFloat(base + noise).Round(4)
			}
			rates = append(rates, model.ExchangeRate{
				ID:        uuid.NewString(),
				MarketID:  m.ID,
				Date:      date,
				Rate:      rate,
				CreatedAt: created,
			})
		}
	}
	return rates
}

// EnsureSettings stores defaults when settings have never been saved. It
// reports whether defaults were written.
func EnsureSettings(ctx context.Context, st Store, defaults model.Settings) (bool, error) {
	wrote, err := st.InitSettings(ctx, defaults)
	if err != nil {
		return false, fmt.Errorf("store default settings: %w", err)
	}
	return wrote, nil
}
