package services

import (
	"bms-chat-api/pkg/mockdb"
	"bms-chat-api/pkg/models"

	"github.com/shopspring/decimal"
)

const (
	benchmarkCompetitor = "Cummins"
	salesWindowMonths   = 12

	recommendCheaper = "Strong competitive advantage. Highlight price savings."
	recommendPremium = "Premium pricing detected. Focus on quality and durability."
)

var hundred = decimal.NewFromInt(100)

// AnalysisService は価格競争力と販売シェアの分析を行います。
type AnalysisService struct {
	store *mockdb.Store
}

// NewAnalysisService は新しいAnalysisServiceを生成します。
func NewAnalysisService(store *mockdb.Store) *AnalysisService {
	return &AnalysisService{store: store}
}

// MarketAnalysis は自社価格とCummins価格の差、および最安の競合を返します。
func (s *AnalysisService) MarketAnalysis(itemID string) (models.MarketAnalysis, bool) {
	item, ok := s.store.Item(itemID)
	if !ok {
		return models.MarketAnalysis{}, false
	}
	benchmark, ok := item.CompetitorPriceFor(benchmarkCompetitor)
	if !ok || benchmark.IsZero() {
		return models.MarketAnalysis{}, false
	}
	cheapest, _ := item.CheapestCompetitor()

	variance := item.Price.Sub(benchmark).Div(benchmark).Mul(hundred)
	recommendation := recommendPremium
	if variance.IsNegative() {
		recommendation = recommendCheaper
	}

	return models.MarketAnalysis{
		ItemID:             item.ID,
		ItemName:           item.Name,
		OurPrice:           item.Price,
		CumminsPrice:       benchmark,
		CheapestCompetitor: cheapest.Name,
		CheapestPrice:      cheapest.Price,
		VariancePercent:    variance.StringFixed(1),
		Recommendation:     recommendation,
	}, true
}

// SalesAnalysis は直近12か月の販売数、市場シェア、トレンドを返します。
func (s *AnalysisService) SalesAnalysis(itemID string) (models.SalesAnalysis, bool) {
	trends := s.store.MarketTrends(itemID)
	if len(trends) == 0 {
		return models.SalesAnalysis{}, false
	}
	if len(trends) > salesWindowMonths {
		trends = trends[len(trends)-salesWindowMonths:]
	}

	total := 0
	volume := 0
	for _, t := range trends {
		total += t.BMSSales
		volume += t.BMSSales
		for _, qty := range t.CompetitorSales {
			volume += qty
		}
	}

	share := decimal.Zero
	if volume > 0 {
		share = decimal.NewFromInt(int64(total)).Div(decimal.NewFromInt(int64(volume))).Mul(hundred)
	}

	trend := models.TrendDown
	if trends[len(trends)-1].BMSSales > trends[0].BMSSales {
		trend = models.TrendUp
	}

	return models.SalesAnalysis{
		ItemID:       itemID,
		TotalSales:   total,
		MarketShare:  share.StringFixed(1),
		Trend:        trend,
		MarketVolume: volume,
	}, true
}
