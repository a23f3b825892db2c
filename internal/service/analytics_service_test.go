package service

import (
	"testing"
	"time"

	"purchase-tracker/internal/models"
	"purchase-tracker/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDeadStockFrom(t *testing.T) {
	now := day("2026-06-01")

	summaries := []store.ObservationSummary{
		// bought twice months ago, nothing recent -> dead stock
		{ProductID: 1, ProductName: "Oat Milk", InvoiceDate: day("2026-02-10"), Quantity: 4},
		{ProductID: 1, ProductName: "Oat Milk", InvoiceDate: day("2026-03-05"), Quantity: 4},
		// still being bought
		{ProductID: 2, ProductName: "Coffee Beans", InvoiceDate: day("2026-02-15"), Quantity: 2},
		{ProductID: 2, ProductName: "Coffee Beans", InvoiceDate: day("2026-05-20"), Quantity: 2},
		// only one prior buy, not enough history
		{ProductID: 3, ProductName: "Saffron", InvoiceDate: day("2026-03-01"), Quantity: 1},
	}

	items := deadStockFrom(summaries, now, 45)
	require.Len(t, items, 1)
	assert.Equal(t, int64(1), items[0].ProductID)
	assert.Equal(t, 2, items[0].PriorBuys)
	assert.Equal(t, day("2026-03-05"), items[0].LastPurchased)
	assert.Equal(t, 88, items[0].DaysSince)
}

func TestDeadStockFrom_SortedByStaleness(t *testing.T) {
	now := day("2026-06-01")

	summaries := []store.ObservationSummary{
		{ProductID: 1, ProductName: "A", InvoiceDate: day("2026-02-01"), Quantity: 1},
		{ProductID: 1, ProductName: "A", InvoiceDate: day("2026-03-20"), Quantity: 1},
		{ProductID: 2, ProductName: "B", InvoiceDate: day("2026-01-10"), Quantity: 1},
		{ProductID: 2, ProductName: "B", InvoiceDate: day("2026-02-01"), Quantity: 1},
	}

	items := deadStockFrom(summaries, now, 45)
	require.Len(t, items, 2)
	assert.Equal(t, int64(2), items[0].ProductID) // stalest first
	assert.Equal(t, int64(1), items[1].ProductID)
}

func TestAvgIntervalDays(t *testing.T) {
	dates := []time.Time{
		day("2026-01-01"),
		day("2026-01-08"),
		day("2026-01-15"),
		day("2026-01-22"),
	}
	interval, ok := avgIntervalDays(dates)
	require.True(t, ok)
	assert.Equal(t, 7, interval)
}

func TestAvgIntervalDays_UnevenGaps(t *testing.T) {
	dates := []time.Time{
		day("2026-01-01"),
		day("2026-01-06"),
		day("2026-01-16"),
	}
	interval, ok := avgIntervalDays(dates)
	require.True(t, ok)
	assert.Equal(t, 8, interval) // (5+10)/2 rounded
}

func TestAvgIntervalDays_TooFew(t *testing.T) {
	_, ok := avgIntervalDays([]time.Time{day("2026-01-01")})
	assert.False(t, ok)
}

func TestSeasonalFrom(t *testing.T) {
	obs := []models.VendorPriceObservation{
		{InvoiceDate: day("2025-01-10"), UnitPrice: 10.00},
		{InvoiceDate: day("2026-01-12"), UnitPrice: 12.00},
		{InvoiceDate: day("2025-07-01"), UnitPrice: 6.00},
	}

	points := seasonalFrom(obs)
	require.Len(t, points, 2)

	jan := points[0]
	assert.Equal(t, time.January, jan.Month)
	assert.InDelta(t, 11.00, jan.AvgPrice, 0.001)
	assert.InDelta(t, 10.00, jan.MinPrice, 0.001)
	assert.InDelta(t, 12.00, jan.MaxPrice, 0.001)
	assert.Equal(t, 2, jan.Count)

	jul := points[1]
	assert.Equal(t, time.July, jul.Month)
	assert.Equal(t, 1, jul.Count)
}

func TestSeasonalFrom_Empty(t *testing.T) {
	assert.Empty(t, seasonalFrom(nil))
}
