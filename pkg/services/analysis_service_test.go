package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketAnalysis(t *testing.T) {
	store := newTestStore()
	svc := NewAnalysisService(store)

	got, ok := svc.MarketAnalysis("BMS0001")
	require.True(t, ok)

	item, _ := store.Item("BMS0001")
	cummins, _ := item.CompetitorPriceFor("Cummins")
	cheapest, _ := item.CheapestCompetitor()

	assert.Equal(t, "BMS0001", got.ItemID)
	assert.True(t, got.OurPrice.Equal(decimal.NewFromInt(500)))
	assert.True(t, got.CumminsPrice.Equal(cummins))
	assert.Equal(t, cheapest.Name, got.CheapestCompetitor)

	expected := item.Price.Sub(cummins).Div(cummins).Mul(decimal.NewFromInt(100)).StringFixed(1)
	assert.Equal(t, expected, got.VariancePercent)
	if item.Price.LessThan(cummins) {
		assert.Equal(t, recommendCheaper, got.Recommendation)
	} else {
		assert.Equal(t, recommendPremium, got.Recommendation)
	}

	_, ok = svc.MarketAnalysis("BMS9999")
	assert.False(t, ok)
}

func TestSalesAnalysis(t *testing.T) {
	store := newTestStore()
	svc := NewAnalysisService(store)

	got, ok := svc.SalesAnalysis("BMS0002")
	require.True(t, ok)

	trends := store.MarketTrends("BMS0002")
	require.Len(t, trends, 12)

	total, volume := 0, 0
	for _, tr := range trends {
		total += tr.BMSSales
		volume += tr.BMSSales
		for _, q := range tr.CompetitorSales {
			volume += q
		}
	}
	assert.Equal(t, total, got.TotalSales)
	assert.Equal(t, volume, got.MarketVolume)
	assert.Greater(t, got.MarketVolume, got.TotalSales)

	share, err := decimal.NewFromString(got.MarketShare)
	require.NoError(t, err)
	assert.True(t, share.GreaterThan(decimal.Zero))
	assert.True(t, share.LessThan(decimal.NewFromInt(100)))

	_, ok = svc.SalesAnalysis("BMS9999")
	assert.False(t, ok)
}
