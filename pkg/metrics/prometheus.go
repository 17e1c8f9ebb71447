// Package metrics はチャットAPIのPrometheusメトリクスを定義します。
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bms_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bms_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 上流AIプロバイダーへの呼び出し
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bms_upstream_calls_total",
			Help: "Total number of calls made to upstream AI providers",
		},
		[]string{"provider", "shape", "status"},
	)

	UpstreamCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bms_upstream_call_duration_seconds",
			Help:    "Duration of calls to upstream AI providers",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "shape"},
	)

	ChatRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bms_chat_replies_total",
			Help: "Total number of assistant replies by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
)

// RecordUpstreamCall は上流呼び出しを記録します。statusが0のときは通信エラーです。
func RecordUpstreamCall(provider, shape string, status int, duration time.Duration) {
	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	UpstreamCallsTotal.WithLabelValues(provider, shape, label).Inc()
	UpstreamCallDuration.WithLabelValues(provider, shape).Observe(duration.Seconds())
}

// RecordReply はチャット応答の結果を記録します。
func RecordReply(provider, outcome string) {
	ChatRepliesTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordHTTPRequest はHTTPリクエストを記録します。
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
