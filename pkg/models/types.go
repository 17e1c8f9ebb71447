package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Role はダッシュボード利用者の役割タグです。サーバー側での権限チェックには使いません。
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSales    Role = "sales"
	RoleCustomer Role = "customer"
	RoleNone     Role = ""
)

// ParseRole は文字列から役割を取得します。大文字小文字と前後の空白は無視し、未知の値は制限なしとして扱います。
func ParseRole(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleSales, RoleCustomer:
		return r
	}
	return RoleNone
}

// StockStatus 在庫ステータス
type StockStatus string

const (
	StatusInStock    StockStatus = "In Stock"
	StatusLowStock   StockStatus = "Low Stock"
	StatusOutOfStock StockStatus = "Out of Stock"
)

// LowStockThreshold 未満の数量は「Low Stock」になります。
const LowStockThreshold = 50

// StatusForQuantity は数量から在庫ステータスを決定します。
func StatusForQuantity(qty int) StockStatus {
	switch {
	case qty <= 0:
		return StatusOutOfStock
	case qty < LowStockThreshold:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// CompetitorPrice 競合他社の価格
type CompetitorPrice struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	LastUpdated string          `json:"last_updated"`
}

// CatalogItem 製品カタログの1品目
type CatalogItem struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	Price       decimal.Decimal   `json:"price"`
	Stock       int               `json:"stock"` // 全拠点の在庫数量の合計
	Description string            `json:"description"`
	Competitors []CompetitorPrice `json:"competitors,omitempty"`
}

// CompetitorPriceFor は指定した競合の価格を返します。
func (i CatalogItem) CompetitorPriceFor(name string) (decimal.Decimal, bool) {
	for _, c := range i.Competitors {
		if c.Name == name {
			return c.Price, true
		}
	}
	return decimal.Zero, false
}

// CheapestCompetitor は最安の競合を返します。
func (i CatalogItem) CheapestCompetitor() (CompetitorPrice, bool) {
	if len(i.Competitors) == 0 {
		return CompetitorPrice{}, false
	}
	cheapest := i.Competitors[0]
	for _, c := range i.Competitors[1:] {
		if c.Price.LessThan(cheapest.Price) {
			cheapest = c
		}
	}
	return cheapest, true
}

// InventoryRecord 拠点ごとの在庫
type InventoryRecord struct {
	ItemID   string      `json:"item_id"`
	Location string      `json:"location"`
	Quantity int         `json:"quantity"`
	Status   StockStatus `json:"status"`
}

// OrderStatus 受注ステータス
type OrderStatus string

const (
	OrderPending     OrderStatus = "Pending"
	OrderShipped     OrderStatus = "Shipped"
	OrderDelivered   OrderStatus = "Delivered"
	OrderBackordered OrderStatus = "Backordered"
	OrderCancelled   OrderStatus = "Cancelled"
)

// OrderStatuses は生成時に選ばれるステータスの一覧です。
var OrderStatuses = []OrderStatus{OrderPending, OrderShipped, OrderDelivered, OrderBackordered, OrderCancelled}

// Order 受注。生成後は変更されません。
type Order struct {
	OrderID      string          `json:"order_id"`
	CustomerID   string          `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	ItemID       string          `json:"item_id"`
	Quantity     int             `json:"quantity"`
	Status       OrderStatus     `json:"status"`
	Value        decimal.Decimal `json:"value"`
	Date         string          `json:"date"` // YYYY-MM-DD
}

// TrendDirection 需要トレンドの方向
type TrendDirection string

const (
	TrendUp   TrendDirection = "Up"
	TrendDown TrendDirection = "Down"
)

// ForecastRecord 販売予測。将来期間の実績は0です。
type ForecastRecord struct {
	ItemID      string         `json:"item_id"`
	Month       string         `json:"month"` // YYYY-MM
	Region      string         `json:"region"`
	ForecastQty int            `json:"forecast_qty"`
	ActualQty   float64        `json:"actual_qty"`
	Accuracy    int            `json:"accuracy"` // %
	Trend       TrendDirection `json:"trend"`
}

// MarketTrend 月次の自社販売数と競合販売数
type MarketTrend struct {
	ItemID          string         `json:"item_id"`
	Month           string         `json:"month"`
	BMSSales        int            `json:"bms_sales"`
	CompetitorSales map[string]int `json:"competitor_sales"`
}

// KnowledgeDoc 市場分析のナレッジベース文書
type KnowledgeDoc struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// MessageRole チャットメッセージの送信者
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// Attachment アシスタントメッセージに付くダウンロード可能なレポート
type Attachment struct {
	Type  string `json:"type"`
	Title string `json:"title"`
}

// ChatMessage セッション内のチャットメッセージ
type ChatMessage struct {
	ID         string      `json:"id"`
	Role       MessageRole `json:"role"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	IsOffline  bool        `json:"is_offline,omitempty"` // ルールベース応答へフォールバックした場合
	Attachment *Attachment `json:"attachment,omitempty"`
}

// HistoryMessage プロバイダーに渡す会話履歴の1件
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ReportData チャット応答から抽出したレポート
type ReportData struct {
	Title   string     `json:"title"`
	Summary string     `json:"summary"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// MarketAnalysis 品目ごとの価格競争力分析
type MarketAnalysis struct {
	ItemID             string          `json:"item_id"`
	ItemName           string          `json:"item_name"`
	OurPrice           decimal.Decimal `json:"our_price"`
	CumminsPrice       decimal.Decimal `json:"cummins_price"`
	CheapestCompetitor string          `json:"cheapest_competitor"`
	CheapestPrice      decimal.Decimal `json:"cheapest_price"`
	VariancePercent    string          `json:"variance_percent"`
	Recommendation     string          `json:"recommendation"`
}

// SalesAnalysis 直近12か月の販売・シェア分析
type SalesAnalysis struct {
	ItemID       string         `json:"item_id"`
	TotalSales   int            `json:"total_sales"`
	MarketShare  string         `json:"market_share"`
	Trend        TrendDirection `json:"trend"`
	MarketVolume int            `json:"market_volume"`
}
