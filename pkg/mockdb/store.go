// Package mockdb は起動時に生成される合成エンタープライズデータ（カタログ、在庫、受注、予測、市場動向）を保持します。
// 生成後は読み取り専用で、複数のgoroutineから同時に参照できます。
package mockdb

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"bms-chat-api/pkg/models"

	"github.com/shopspring/decimal"
)

// Locations 在庫拠点
var Locations = []string{
	"Houston DC", "Chicago RDC", "Atlanta RDC", "Los Angeles DC", "Seattle DC",
	"Miami DC", "New York DC", "Denver DC", "Toronto DC", "Vancouver DC",
}

// Competitors 価格比較の対象となる競合他社
var Competitors = []string{"Cummins", "Caterpillar", "Detroit Diesel", "Volvo Penta"}

var categories = []string{"Engine Parts", "Transmission", "Hydraulics", "Electronics", "Filters"}

const (
	itemCount        = 20
	orderCount       = 1850
	firstOrderNumber = 1000
	defaultOrderCap  = 50
	trendMonths      = 12
)

var knowledgeBase = []models.KnowledgeDoc{
	{
		ID:      "KB001",
		Title:   "Heavy Duty Engine Market Analysis 2024",
		Content: "The market for heavy-duty engines is seeing a 5% CAGR. Competitor Cummins is aggressively pricing their X15 series. BMS0001 remains competitive due to higher durability ratings.",
		Tags:    []string{"market", "engine", "competitor"},
	},
	{
		ID:      "KB002",
		Title:   "Supply Chain Disruptions - Electronics",
		Content: "Global chip shortages are affecting BMS0004 and BMS0009 availability. Lead times have increased by 4 weeks. Recommend increasing safety stock in Chicago RDC.",
		Tags:    []string{"supply chain", "risk", "electronics"},
	},
	{
		ID:      "KB003",
		Title:   "Competitor Pricing Strategy - Q3",
		Content: "Caterpillar has lowered prices on hydraulic components by 8% to capture market share. BMS needs to review pricing for BMS0003 and BMS0008 to maintain margins.",
		Tags:    []string{"pricing", "competitor", "strategy"},
	},
}

// Store 合成データのスナップショット
type Store struct {
	items     []models.CatalogItem
	itemIndex map[string]int
	inventory []models.InventoryRecord
	orders    []models.Order // 日付の新しい順
	orderByID map[string]int
	forecasts []models.ForecastRecord
	trends    []models.MarketTrend
	generated time.Time
}

// OrderFilter 受注検索の条件
type OrderFilter struct {
	ItemID string
	Status models.OrderStatus
	Limit  int // 0のときは50件
}

var (
	defaultStore *Store
	defaultOnce  sync.Once
)

// Default はプロセス全体で共有されるストアを返します。
func Default() *Store {
	defaultOnce.Do(func() {
		now := time.Now()
		defaultStore = New(uint64(now.UnixNano()), now)
	})
	return defaultStore
}

// New はseedから決定的にデータを生成します。受注日は2023-01-01からnowの間に分布します。
func New(seed uint64, now time.Time) *Store {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	s := &Store{
		itemIndex: make(map[string]int, itemCount),
		orderByID: make(map[string]int, orderCount),
		generated: now,
	}

	s.generateItems(r)
	s.generateInventory(r)
	s.generateOrders(r, now)
	s.generateForecasts(r)
	s.generateTrends(r, now)
	return s
}

func (s *Store) generateItems(r *rand.Rand) {
	for i := 0; i < itemCount; i++ {
		category := categories[i%len(categories)]
		base := decimal.NewFromInt(int64(500 + i*150))

		competitors := make([]models.CompetitorPrice, 0, len(Competitors))
		for _, name := range Competitors {
			factor := decimal.NewFromFloat(0.9 + r.Float64()*0.3)
			competitors = append(competitors, models.CompetitorPrice{
				Name:        name,
				Price:       base.Mul(factor).Round(2),
				LastUpdated: "2024-05-15",
			})
		}

		item := models.CatalogItem{
			ID:          fmt.Sprintf("BMS%04d", i+1),
			Name:        fmt.Sprintf("%s - Series %c", category, 'A'+i),
			Category:    category,
			Price:       base,
			Description: fmt.Sprintf("High performance %s for industrial applications.", strings.ToLower(category)),
			Competitors: competitors,
		}
		s.itemIndex[item.ID] = len(s.items)
		s.items = append(s.items, item)
	}
}

func (s *Store) generateInventory(r *rand.Rand) {
	for idx := range s.items {
		total := 0
		for _, loc := range Locations {
			// 一部の拠点には在庫レコードが存在しない
			if r.Float64() <= 0.2 {
				continue
			}
			qty := r.IntN(500)
			s.inventory = append(s.inventory, models.InventoryRecord{
				ItemID:   s.items[idx].ID,
				Location: loc,
				Quantity: qty,
				Status:   models.StatusForQuantity(qty),
			})
			total += qty
		}
		s.items[idx].Stock = total
	}
}

func (s *Store) generateOrders(r *rand.Rand, now time.Time) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	span := now.Sub(start)
	if span <= 0 {
		span = 24 * time.Hour
	}

	orders := make([]models.Order, 0, orderCount)
	for i := 0; i < orderCount; i++ {
		item := s.items[r.IntN(len(s.items))]
		qty := r.IntN(10) + 1
		customer := r.IntN(100) + 100
		date := start.Add(time.Duration(r.Int64N(int64(span))))

		orders = append(orders, models.Order{
			OrderID:      fmt.Sprintf("ORD-24-%d", firstOrderNumber+i),
			CustomerID:   fmt.Sprintf("CUST-%d", customer),
			CustomerName: fmt.Sprintf("Customer %d", customer),
			ItemID:       item.ID,
			Quantity:     qty,
			Status:       models.OrderStatuses[r.IntN(len(models.OrderStatuses))],
			Value:        item.Price.Mul(decimal.NewFromInt(int64(qty))),
			Date:         date.Format("2006-01-02"),
		})
	}

	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].Date != orders[j].Date {
			return orders[i].Date > orders[j].Date
		}
		return orders[i].OrderID > orders[j].OrderID
	})
	for i, o := range orders {
		s.orderByID[o.OrderID] = i
	}
	s.orders = orders
}

func (s *Store) generateForecasts(r *rand.Rand) {
	for _, item := range s.items {
		for year := 2020; year <= 2025; year++ {
			future := year == 2025
			demand := r.IntN(5000) + 1000

			rec := models.ForecastRecord{
				ItemID:      item.ID,
				Month:       fmt.Sprintf("%d-01", year),
				Region:      "North America",
				ForecastQty: demand,
				Trend:       models.TrendDown,
			}
			if !future {
				rec.ActualQty = float64(demand) * (0.8 + r.Float64()*0.4)
				rec.Accuracy = r.IntN(20) + 80
			}
			if r.Float64() > 0.5 {
				rec.Trend = models.TrendUp
			}
			s.forecasts = append(s.forecasts, rec)
		}
	}
}

func (s *Store) generateTrends(r *rand.Rand, now time.Time) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(trendMonths - 1), 0)
	for _, item := range s.items {
		for m := 0; m < trendMonths; m++ {
			comp := make(map[string]int, len(Competitors))
			for _, name := range Competitors {
				comp[name] = r.IntN(700) + 100
			}
			s.trends = append(s.trends, models.MarketTrend{
				ItemID:          item.ID,
				Month:           first.AddDate(0, m, 0).Format("2006-01"),
				BMSSales:        r.IntN(800) + 200,
				CompetitorSales: comp,
			})
		}
	}
}

// GeneratedAt はデータ生成時刻を返します。
func (s *Store) GeneratedAt() time.Time { return s.generated }

// Items はカタログ全体を返します。
func (s *Store) Items() []models.CatalogItem {
	out := make([]models.CatalogItem, len(s.items))
	copy(out, s.items)
	return out
}

// Item はIDで品目を検索します。
func (s *Store) Item(id string) (models.CatalogItem, bool) {
	idx, ok := s.itemIndex[id]
	if !ok {
		return models.CatalogItem{}, false
	}
	return s.items[idx], true
}

// Inventory は品目の拠点別在庫を返します。
func (s *Store) Inventory(itemID string) []models.InventoryRecord {
	var out []models.InventoryRecord
	for _, rec := range s.inventory {
		if rec.ItemID == itemID {
			out = append(out, rec)
		}
	}
	return out
}

// AllInventory は全在庫レコードを返します。
func (s *Store) AllInventory() []models.InventoryRecord {
	out := make([]models.InventoryRecord, len(s.inventory))
	copy(out, s.inventory)
	return out
}

// Orders は条件に一致する受注を新しい順に返します。
func (s *Store) Orders(f OrderFilter) []models.Order {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultOrderCap
	}
	out := make([]models.Order, 0, limit)
	for _, o := range s.orders {
		if f.ItemID != "" && o.ItemID != f.ItemID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Order は受注IDで完全一致検索します。
func (s *Store) Order(id string) (models.Order, bool) {
	idx, ok := s.orderByID[id]
	if !ok {
		return models.Order{}, false
	}
	return s.orders[idx], true
}

// OrderCount は受注の総数です。
func (s *Store) OrderCount() int { return len(s.orders) }

// Forecast は品目の予測レコードを返します。
func (s *Store) Forecast(itemID string) []models.ForecastRecord {
	var out []models.ForecastRecord
	for _, f := range s.forecasts {
		if f.ItemID == itemID {
			out = append(out, f)
		}
	}
	return out
}

// AllForecasts は全予測レコードを返します。
func (s *Store) AllForecasts() []models.ForecastRecord {
	out := make([]models.ForecastRecord, len(s.forecasts))
	copy(out, s.forecasts)
	return out
}

// MarketTrends は品目の月次市場動向を古い順に返します。
func (s *Store) MarketTrends(itemID string) []models.MarketTrend {
	var out []models.MarketTrend
	for _, t := range s.trends {
		if t.ItemID == itemID {
			out = append(out, t)
		}
	}
	return out
}

// KnowledgeBase は静的なナレッジベース文書を返します。
func (s *Store) KnowledgeBase() []models.KnowledgeDoc {
	out := make([]models.KnowledgeDoc, len(knowledgeBase))
	copy(out, knowledgeBase)
	return out
}

// Locations は在庫拠点の一覧を返します。
func (s *Store) Locations() []string {
	return append([]string(nil), Locations...)
}

// Competitors は競合他社の一覧を返します。
func (s *Store) Competitors() []string {
	return append([]string(nil), Competitors...)
}
