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
// 取り込みオーケストレーターと上流向けHTTPクライアントから利用する。
type MetricsCollector interface {
	RecordFetchSuccess(platform string)
	RecordFetchFailure(platform string, reason string)
	RecordUpstreamStatus(platform string, statusCode int)
	RecordFetchLatency(platform string, duration time.Duration)
	RecordStatsAppended(platform string)
	RecordIngestOutcome(status string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchSuccess   *prometheus.CounterVec
	fetchFail      *prometheus.CounterVec
	upstreamStatus *prometheus.CounterVec
	fetchLatency   *prometheus.HistogramVec
	statsAppended  *prometheus.CounterVec
	ingestTotal    *prometheus.CounterVec
	ingestDuration prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profiletracker_fetch_success_total",
			Help: "プラットフォーム別の統計取得成功数",
		}, []string{"platform"}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profiletracker_fetch_fail_total",
			Help: "プラットフォーム別・理由別の統計取得失敗数",
		}, []string{"platform", "reason"}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profiletracker_upstream_http_status_total",
			Help: "上流サイトが返したHTTPステータスコード別のレスポンス数",
		}, []string{"platform", "status_code"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "profiletracker_fetch_latency_seconds",
			Help:    "アダプタ1回分の取得レイテンシ（秒）",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"platform"}),
		statsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profiletracker_stats_appended_total",
			Help: "履歴に追記された統計レコード数",
		}, []string{"platform"}),
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profiletracker_ingest_total",
			Help: "結果別の取り込みバッチ数",
		}, []string{"status"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "profiletracker_ingest_duration_seconds",
			Help:    "取り込みバッチ全体の所要時間（秒）",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30},
		}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.upstreamStatus,
		c.fetchLatency,
		c.statsAppended,
		c.ingestTotal,
		c.ingestDuration,
	)

	return c
}

// RecordFetchSuccess は取得成功を記録する。
func (c *Collector) RecordFetchSuccess(platform string) {
	c.fetchSuccess.WithLabelValues(platform).Inc()
}

// RecordFetchFailure は取得失敗を記録する。reasonはplatform.ErrorKindの値。
func (c *Collector) RecordFetchFailure(platform string, reason string) {
	c.fetchFail.WithLabelValues(platform, reason).Inc()
}

// RecordUpstreamStatus は上流のHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(platform string, statusCode int) {
	c.upstreamStatus.WithLabelValues(platform, strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency は取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(platform string, duration time.Duration) {
	c.fetchLatency.WithLabelValues(platform).Observe(duration.Seconds())
}

// RecordStatsAppended は履歴への追記を記録する。
func (c *Collector) RecordStatsAppended(platform string) {
	c.statsAppended.WithLabelValues(platform).Inc()
}

// RecordIngestOutcome はバッチの結果と所要時間を記録する。
func (c *Collector) RecordIngestOutcome(status string, duration time.Duration) {
	c.ingestTotal.WithLabelValues(status).Inc()
	c.ingestDuration.Observe(duration.Seconds())
}

// NopCollector は何も記録しないMetricsCollector。
// CLIの単発実行など、メトリクスを公開しない経路で使用する。
type NopCollector struct{}

func (NopCollector) RecordFetchSuccess(string) {}
func (NopCollector) RecordFetchFailure(string, string) {}
func (NopCollector) RecordUpstreamStatus(string, int) {}
func (NopCollector) RecordFetchLatency(string, time.Duration) {}
func (NopCollector) RecordStatsAppended(string) {}
func (NopCollector) RecordIngestOutcome(string, time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
