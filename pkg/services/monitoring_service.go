package services

import (
	"sort"
	"strings"
	"sync"
	"time"

	"bms-chat-api/pkg/logging"
	"bms-chat-api/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 保持するリクエストログの上限
const maxLogEntries = 10000

// LogEntry は単一のリクエストログを表します。
type LogEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"status_code"`
	ResponseTime time.Duration `json:"response_time"`
}

// MonitoringService はAPIのリクエストを記録し、集計します。
type MonitoringService struct {
	mu     sync.RWMutex
	logs   []LogEntry
	logger *zap.Logger
	now    func() time.Time
}

// NewMonitoringService は新しいMonitoringServiceを生成します。
func NewMonitoringService(logger *zap.Logger) *MonitoringService {
	return &MonitoringService{
		logs:   make([]LogEntry, 0),
		logger: logging.OrNop(logger).Named("http"),
		now:    time.Now,
	}
}

// LogRequest はリクエストを記録します。上限を超えた分は古い順に破棄します。
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	if over := len(s.logs) - maxLogEntries; over > 0 {
		s.logs = append(s.logs[:0], s.logs[over:]...)
	}
}

// LoggingMiddleware はリクエストをzapで出力し、Prometheusとダッシュボード用ログに記録します。
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		status := c.Writer.Status()

		metrics.RecordHTTPRequest(c.Request.Method, route, status, elapsed)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
		}
		if status >= 500 {
			s.logger.Error("リクエスト処理に失敗しました", fields...)
		} else {
			s.logger.Info("リクエストを処理しました", fields...)
		}

		// 管理系とメトリクスのエンドポイントはダッシュボードの集計から除外
		if strings.HasPrefix(path, "/api/v1/admin") || strings.HasPrefix(path, "/api/v1/monitoring") || path == "/metrics" {
			return
		}
		s.LogRequest(LogEntry{
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   status,
			ResponseTime: elapsed,
		})
	}
}

// RequestBucket 1時間ごとのリクエスト数
type RequestBucket struct {
	Time     string `json:"time"`
	Requests int    `json:"requests"`
}

// StatusCount ステータス区分ごとの件数
type StatusCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// EndpointLatency エンドポイントごとの平均応答時間（ミリ秒）
type EndpointLatency struct {
	Endpoint     string `json:"endpoint"`
	ResponseTime int64  `json:"responseTime"`
}

// DashboardData はダッシュボードに表示するための集計済みデータです。
type DashboardData struct {
	RequestsOverTime []RequestBucket   `json:"requestsOverTime"`
	Endpoints        map[string]int    `json:"endpoints"`
	StatusCodes      []StatusCount     `json:"statusCodes"`
	AvgResponseTimes []EndpointLatency `json:"avgResponseTimes"`
	RecentErrors     []LogEntry        `json:"recentErrors"`
}

// GetDashboardData は直近periodHours時間のログを集計します。
func (s *MonitoringService) GetDashboardData(periodHours int) DashboardData {
	if periodHours <= 0 {
		periodHours = 24
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().UTC()
	since := now.Add(-time.Duration(periodHours) * time.Hour)

	var recent []LogEntry
	for _, l := range s.logs {
		if l.Timestamp.After(since) {
			recent = append(recent, l)
		}
	}

	// 過去から現在の順に時間バケットを用意
	buckets := make([]RequestBucket, periodHours)
	index := make(map[time.Time]int, periodHours)
	for i := 0; i < periodHours; i++ {
		hour := now.Add(-time.Duration(periodHours-1-i) * time.Hour).Truncate(time.Hour)
		buckets[i] = RequestBucket{Time: hour.Format("15:00")}
		index[hour] = i
	}

	endpoints := make(map[string]int)
	statuses := map[string]int{"2xx Success": 0, "4xx Client Error": 0, "5xx Server Error": 0}
	latencySum := make(map[string]time.Duration)
	var errs []LogEntry

	for _, l := range recent {
		if i, ok := index[l.Timestamp.UTC().Truncate(time.Hour)]; ok {
			buckets[i].Requests++
		}
		endpoints[l.Path]++
		latencySum[l.Path] += l.ResponseTime

		switch {
		case l.StatusCode >= 500:
			statuses["5xx Server Error"]++
		case l.StatusCode >= 400:
			statuses["4xx Client Error"]++
		case l.StatusCode >= 200 && l.StatusCode < 300:
			statuses["2xx Success"]++
		}
	}

	for i := len(recent) - 1; i >= 0 && len(errs) < 10; i-- {
		if recent[i].StatusCode >= 500 {
			errs = append(errs, recent[i])
		}
	}

	statusList := make([]StatusCount, 0, len(statuses))
	for name, v := range statuses {
		statusList = append(statusList, StatusCount{Name: name, Value: v})
	}
	sort.Slice(statusList, func(i, j int) bool { return statusList[i].Name < statusList[j].Name })

	latencies := make([]EndpointLatency, 0, len(latencySum))
	for path, sum := range latencySum {
		latencies = append(latencies, EndpointLatency{Endpoint: path, ResponseTime: sum.Milliseconds() / int64(endpoints[path])})
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i].Endpoint < latencies[j].Endpoint })

	if errs == nil {
		errs = []LogEntry{}
	}
	return DashboardData{
		RequestsOverTime: buckets,
		Endpoints:        endpoints,
		StatusCodes:      statusList,
		AvgResponseTimes: latencies,
		RecentErrors:     errs,
	}
}
