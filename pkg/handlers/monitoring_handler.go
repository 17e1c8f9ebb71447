package handlers

import (
	"net/http"

	"bms-chat-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// 集計期間のクエリ値と時間数
var monitoringPeriods = map[string]int{
	"1h":  1,
	"24h": 24,
	"7d":  24 * 7,
}

// MonitoringHandler はモニタリング関連の操作のハンドラです。
type MonitoringHandler struct {
	Service *services.MonitoringService
}

// NewMonitoringHandler は新しいMonitoringHandlerを生成します。
func NewMonitoringHandler(service *services.MonitoringService) *MonitoringHandler {
	return &MonitoringHandler{Service: service}
}

// GetLogs は集計されたログデータを返します。未知の期間は24hとして扱います。
func (h *MonitoringHandler) GetLogs(c *gin.Context) {
	hours, ok := monitoringPeriods[c.DefaultQuery("period", "24h")]
	if !ok {
		hours = 24
	}
	c.JSON(http.StatusOK, h.Service.GetDashboardData(hours))
}
