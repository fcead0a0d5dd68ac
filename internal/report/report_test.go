package report

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/atmx/parity-engine/internal/model"
	"github.com/atmx/parity-engine/internal/series"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func p(f float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(f))
}

var none = decimal.NullDecimal{}

// fixed serves prices by market and position in the date range.
type fixed struct {
	start  model.Date
	prices map[string][]decimal.NullDecimal
}

func (f fixed) NetPrice(_ string, marketID string, date model.Date) decimal.NullDecimal {
	idx := int(date.Time().Sub(f.start.Time()).Hours() / 24)
	list := f.prices[marketID]
	if idx < 0 || idx >= len(list) {
		return none
	}
	return list[idx]
}

func testSnapshot() *model.Snapshot {
	return &model.Snapshot{
		Hotels: []model.Hotel{{ID: "hotel-aurora", Name: "Aurora Resort"}},
		Markets: []model.Market{
			{ID: "market-eur", Name: "Europe", Currency: "EUR"},
			{ID: "market-gbp", Name: "United Kingdom", Currency: "GBP"},
		},
		Settings: model.Settings{
			ReferenceMarketID: "market-eur",
			WarningThreshold:  d(5),
			CriticalThreshold: d(10),
		},
	}
}

func testSet(t *testing.T) *series.Set {
	t.Helper()
	dates, err := model.DateRange("2024-04-01", "2024-04-03")
	require.NoError(t, err)
	src := fixed{start: "2024-04-01", prices: map[string][]decimal.NullDecimal{
		"market-eur": {p(100), p(106), p(120)},
		"market-gbp": {p(98), none, p(110.5)},
		"market-xyz": {p(1), p(1), p(1)},
	}}
	snap := testSnapshot()
	return series.Build(src, snap.Markets, "hotel-aurora", dates, []string{"market-xyz", "market-gbp"}, "market-eur")
}

func TestClassify(t *testing.T) {
	th := Thresholds{Warning: d(5), Critical: d(10)}
	tests := []struct {
		value float64
		want  Severity
	}{
		{0, SeverityNormal},
		{4.99, SeverityNormal},
		{5, SeverityWarning},
		{-5, SeverityWarning},
		{9.99, SeverityWarning},
		{10, SeverityCritical},
		{-25.5, SeverityCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(d(tt.value), th), "value %v", tt.value)
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeSpread, m)

	m, err = ParseMode("Change")
	require.NoError(t, err)
	assert.Equal(t, ModeChange, m)

	_, err = ParseMode("heatmap")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestBuildDashboard_Spread(t *testing.T) {
	dash := BuildDashboard(testSet(t), testSnapshot(), ModeSpread, series.DayOverDay)

	assert.Equal(t, "Aurora Resort", dash.HotelName)
	assert.Equal(t, "EUR", dash.Currency)
	assert.Equal(t, []string{
		"Date",
		"Europe (EUR)",
		"United Kingdom (EUR)", "United Kingdom Spread",
		"Unknown market (EUR)", "Unknown market Spread",
	}, dash.Table.Columns)
	require.Len(t, dash.Table.Rows, 3)

	row := dash.Table.Rows[0]
	assert.Equal(t, model.Date("2024-04-01"), row.Date)
	require.Len(t, row.Cells, 5)
	assert.True(t, row.Cells[0].Value.Decimal.Equal(d(100)))
	assert.True(t, row.Cells[2].Value.Decimal.Equal(d(-2)))
	assert.Empty(t, row.Cells[2].Severity)

	// GBP missing on day two: no price, no spread.
	assert.False(t, dash.Table.Rows[1].Cells[1].Value.Valid)
	assert.False(t, dash.Table.Rows[1].Cells[2].Value.Valid)

	require.Len(t, dash.Cards, 3)
	assert.Equal(t, "market-eur", dash.Cards[0].MarketID)
	assert.True(t, dash.Cards[0].Reference)
	assert.Equal(t, "market-gbp", dash.Cards[1].MarketID)
	assert.Equal(t, UnknownMarketName, dash.Cards[2].Name)

	gbp := dash.Cards[1].Summary
	assert.Equal(t, 2, gbp.Count)
	assert.True(t, gbp.Average.Decimal.Equal(d(104.25)))
	assert.True(t, gbp.Min.Decimal.Equal(d(98)))
	assert.Empty(t, dash.Cards[1].Metric)
}

func TestBuildDashboard_Change(t *testing.T) {
	dash := BuildDashboard(testSet(t), testSnapshot(), ModeChange, series.DayOverDay)

	require.Len(t, dash.Table.Columns, 1+3*3)
	assert.Equal(t, "Europe DoD %", dash.Table.Columns[1])
	assert.Equal(t, "Europe WoW %", dash.Table.Columns[2])
	assert.Equal(t, "Europe MoM %", dash.Table.Columns[3])
	assert.Equal(t, "United Kingdom DoD %", dash.Table.Columns[4])

	// Day one has no previous value for any metric.
	for _, c := range dash.Table.Rows[0].Cells {
		assert.False(t, c.Value.Valid)
		assert.Empty(t, c.Severity)
	}

	// EUR 100 → 106 → 120: +6% warning, then +13.21% critical.
	day2 := dash.Table.Rows[1].Cells[0]
	assert.True(t, day2.Value.Decimal.Equal(d(6)))
	assert.Equal(t, SeverityWarning, day2.Severity)
	day3 := dash.Table.Rows[2].Cells[0]
	assert.True(t, day3.Value.Decimal.Equal(d(13.21)))
	assert.Equal(t, SeverityCritical, day3.Severity)

	eur := dash.Cards[0]
	assert.Equal(t, "DoD %", eur.Metric)
	assert.Equal(t, 2, eur.Summary.Count)
	assert.True(t, eur.Summary.Max.Decimal.Equal(d(13.21)))

	// Unknown market is flat: 0% is normal.
	xyz := dash.Table.Rows[1].Cells[6]
	assert.True(t, xyz.Value.Decimal.IsZero())
	assert.Equal(t, SeverityNormal, xyz.Severity)
}

func TestWriteCSV(t *testing.T) {
	dash := BuildDashboard(testSet(t), testSnapshot(), ModeSpread, series.DayOverDay)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, dash))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, dash.Table.Columns, records[0])
	assert.Equal(t, []string{"2024-04-01", "100.00", "98.00", "-2.00", "1.00", "-99.00"}, records[1])
	assert.Equal(t, []string{"2024-04-02", "106.00", "", "", "1.00", "-105.00"}, records[2])
	assert.Equal(t, []string{"2024-04-03", "120.00", "110.50", "-9.50", "1.00", "-119.00"}, records[3])
}

func TestWriteXLSX(t *testing.T) {
	dash := BuildDashboard(testSet(t), testSnapshot(), ModeSpread, series.DayOverDay)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, dash))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	header, err := f.GetCellValue(SheetName, "B1")
	require.NoError(t, err)
	assert.Equal(t, "Europe (EUR)", header)

	date, err := f.GetCellValue(SheetName, "A2")
	require.NoError(t, err)
	assert.Equal(t, "2024-04-01", date)

	price, err := f.GetCellValue(SheetName, "D4")
	require.NoError(t, err)
	assert.Equal(t, "-9.5", price)

	missing, err := f.GetCellValue(SheetName, "C3")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestExport(t *testing.T) {
	dash := BuildDashboard(testSet(t), testSnapshot(), ModeChange, series.WeekOverWeek)

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, dash, FormatCSV))
	assert.Contains(t, buf.String(), "Europe WoW %")

	err := Export(&buf, dash, Format("pdf"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
	assert.Contains(t, f.ContentType(), "spreadsheetml")

	_, err = ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestFileName(t *testing.T) {
	now := time.Date(2024, 4, 30, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*60*60))
	assert.Equal(t, "dashboard-spread-2024-05-01.csv", FileName(ModeSpread, FormatCSV, now))
	assert.Equal(t, "dashboard-change-2024-05-01.xlsx", FileName(ModeChange, FormatXLSX, now))
}
