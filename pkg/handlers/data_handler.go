package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"bms-chat-api/pkg/logging"
	"bms-chat-api/pkg/mockdb"
	"bms-chat-api/pkg/models"
	"bms-chat-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxOrderLimit は1回の受注検索で返す最大件数です。
const maxOrderLimit = 500

// CustomerCatalogItem 顧客向けのカタログ表示。競合価格と在庫数量は含みません。
type CustomerCatalogItem struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Category     string             `json:"category"`
	Price        decimal.Decimal    `json:"price"`
	Description  string             `json:"description"`
	Availability models.StockStatus `json:"availability"`
}

// DataHandler はダッシュボード向けのデータ参照APIのハンドラです。
type DataHandler struct {
	store    *mockdb.Store
	builder  *services.ContextBuilder
	analysis *services.AnalysisService
	exporter *services.ReportExporter
	logger   *zap.Logger
	now      func() time.Time
}

// NewDataHandler は新しいDataHandlerを生成します。
func NewDataHandler(store *mockdb.Store, builder *services.ContextBuilder, analysis *services.AnalysisService, exporter *services.ReportExporter, logger *zap.Logger) *DataHandler {
	return &DataHandler{
		store:    store,
		builder:  builder,
		analysis: analysis,
		exporter: exporter,
		logger:   logging.OrNop(logger).Named("data_handler"),
		now:      time.Now,
	}
}

// GetCatalog はカタログを返します。role=customerのときは秘匿した形式で返します。
func (h *DataHandler) GetCatalog(c *gin.Context) {
	items := h.store.Items()
	if models.ParseRole(c.Query("role")) != models.RoleCustomer {
		c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
		return
	}

	out := make([]CustomerCatalogItem, 0, len(items))
	for _, item := range items {
		availability := models.StatusOutOfStock
		if item.Stock > 0 {
			availability = models.StatusInStock
		}
		out = append(out, CustomerCatalogItem{
			ID:           item.ID,
			Name:         item.Name,
			Category:     item.Category,
			Price:        item.Price,
			Description:  item.Description,
			Availability: availability,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": out, "count": len(out)})
}

// GetInventory は品目の拠点別在庫を返します。
func (h *DataHandler) GetInventory(c *gin.Context) {
	item, ok := h.item(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"item_id":   item.ID,
		"total":     item.Stock,
		"locations": h.store.Inventory(item.ID),
	})
}

// GetOrders は受注を新しい順に返します。item_id, status, limitで絞り込めます。
func (h *DataHandler) GetOrders(c *gin.Context) {
	limit := queryInt(c, "limit", 0)
	if limit > maxOrderLimit {
		limit = maxOrderLimit
	}
	orders := h.store.Orders(mockdb.OrderFilter{
		ItemID: strings.ToUpper(c.Query("item_id")),
		Status: models.OrderStatus(c.Query("status")),
		Limit:  limit,
	})
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders), "total": h.store.OrderCount()})
}

// GetOrder は受注IDで1件返します。
func (h *DataHandler) GetOrder(c *gin.Context) {
	id := strings.ToUpper(c.Param("orderID"))
	order, ok := h.store.Order(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "order " + id + " not found"})
		return
	}
	c.JSON(http.StatusOK, order)
}

// GetForecast は品目の販売予測を返します。
func (h *DataHandler) GetForecast(c *gin.Context) {
	item, ok := h.item(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": item.ID, "forecasts": h.store.Forecast(item.ID)})
}

// GetMarketAnalysis は価格競争力分析を返します。
func (h *DataHandler) GetMarketAnalysis(c *gin.Context) {
	id := strings.ToUpper(c.Param("itemID"))
	result, ok := h.analysis.MarketAnalysis(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "item " + id + " not found"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetSalesAnalysis は販売・シェア分析を返します。
func (h *DataHandler) GetSalesAnalysis(c *gin.Context) {
	id := strings.ToUpper(c.Param("itemID"))
	result, ok := h.analysis.SalesAnalysis(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "item " + id + " not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": result, "trends": h.store.MarketTrends(id)})
}

// GetKnowledge はナレッジベースを返します。
func (h *DataHandler) GetKnowledge(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"documents": h.store.KnowledgeBase()})
}

// GetContext はプロバイダーに送られるシステムコンテキストを返します。
func (h *DataHandler) GetContext(c *gin.Context) {
	role := models.ParseRole(c.Query("role"))
	c.JSON(http.StatusOK, gin.H{"role": role, "context": h.builder.Build(role)})
}

// DownloadInventoryReport は在庫レポートのExcelファイルを返します。
func (h *DataHandler) DownloadInventoryReport(c *gin.Context) {
	writeXLSX(c, h.logger, "BMS_Inventory_Report.xlsx", func(w io.Writer) error {
		return h.exporter.WriteInventoryReport(w, h.now())
	})
}

// DownloadSalesReport は販売予測レポートのExcelファイルを返します。
func (h *DataHandler) DownloadSalesReport(c *gin.Context) {
	writeXLSX(c, h.logger, "BMS_Sales_Report.xlsx", func(w io.Writer) error {
		return h.exporter.WriteSalesReport(w, h.now())
	})
}

func (h *DataHandler) item(c *gin.Context) (models.CatalogItem, bool) {
	id := strings.ToUpper(c.Param("itemID"))
	item, ok := h.store.Item(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "item " + id + " not found"})
		return models.CatalogItem{}, false
	}
	return item, true
}
