// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ベンダークライアントとトランザクションミラーから利用する。
type MetricsCollector interface {
	RecordVendorRequest(endpoint string, statusCode int)
	RecordVendorLatency(duration time.Duration)
	RecordTokenRefresh()
	RecordRefreshSuccess()
	RecordRefreshFailure()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	vendorRequests *prometheus.CounterVec
	vendorLatency  prometheus.Histogram
	tokenRefresh   prometheus.Counter
	refreshSuccess prometheus.Counter
	refreshFail    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		vendorRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signman_vendor_request_total",
			Help: "ベンダーAPIリクエストのエンドポイント・ステータスコード別の合計数",
		}, []string{"endpoint", "status_code"}),
		vendorLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signman_vendor_latency_seconds",
			Help:    "ベンダーAPIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		tokenRefresh: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signman_token_refresh_total",
			Help: "アクセストークン取得の合計数（キャッシュヒットは含まない）",
		}),
		refreshSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signman_mirror_refresh_success_total",
			Help: "トランザクションミラーのリフレッシュ成功の合計数",
		}),
		refreshFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signman_mirror_refresh_fail_total",
			Help: "トランザクションミラーのリフレッシュ失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.vendorRequests,
		c.vendorLatency,
		c.tokenRefresh,
		c.refreshSuccess,
		c.refreshFail,
	)

	return c
}

// RecordVendorRequest はベンダーAPIリクエストの結果を記録する。
func (c *Collector) RecordVendorRequest(endpoint string, statusCode int) {
	c.vendorRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
}

// RecordVendorLatency はベンダーAPIリクエストのレイテンシを記録する。
func (c *Collector) RecordVendorLatency(duration time.Duration) {
	c.vendorLatency.Observe(duration.Seconds())
}

// RecordTokenRefresh はトークン取得（ネットワーク呼び出しを伴うもの）を記録する。
func (c *Collector) RecordTokenRefresh() {
	c.tokenRefresh.Inc()
}

// RecordRefreshSuccess はミラーのリフレッシュ成功を記録する。
func (c *Collector) RecordRefreshSuccess() {
	c.refreshSuccess.Inc()
}

// RecordRefreshFailure はミラーのリフレッシュ失敗を記録する。
func (c *Collector) RecordRefreshFailure() {
	c.refreshFail.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
