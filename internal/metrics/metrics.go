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
// 認証サービス・ブローカー・ワーカーから利用する。
type MetricsCollector interface {
	RecordRegistration(outcome string)
	RecordLogin(outcome string)
	RecordFederatedOutcome(outcome string)
	RecordSessionsSwept(count int64)
	RecordProviderLatency(operation string, duration time.Duration)
	RecordGamesSynced(count int)
	RecordHTTPStatus(statusCode int)
}

// 結果ラベルの共通値。失敗時はエラーコードをラベルに使う。
const (
	OutcomeSuccess = "success"
	OutcomeLinked  = "linked"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations   *prometheus.CounterVec
	logins          *prometheus.CounterVec
	federated       *prometheus.CounterVec
	sessionsSwept   prometheus.Counter
	providerLatency *prometheus.HistogramVec
	gamesSynced     prometheus.Counter
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalyst_registrations_total",
			Help: "アカウント登録の試行数（結果別）",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalyst_logins_total",
			Help: "パスワードログインの試行数（結果別）",
		}, []string{"outcome"}),
		federated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalyst_federated_logins_total",
			Help: "Steamログインcallbackの結果別件数",
		}, []string{"outcome"}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalyst_sessions_swept_total",
			Help: "期限切れとして削除されたセッションの合計数",
		}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalyst_provider_request_seconds",
			Help:    "Steamへのリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		gamesSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalyst_games_synced_total",
			Help: "同期されたライブラリゲームの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalyst_http_responses_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.registrations,
		c.logins,
		c.federated,
		c.sessionsSwept,
		c.providerLatency,
		c.gamesSynced,
		c.httpStatus,
	)

	return c
}

// RecordRegistration はアカウント登録の結果を記録する。
func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

// RecordLogin はパスワードログインの結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordFederatedOutcome はSteamログインcallbackの結果を記録する。
func (c *Collector) RecordFederatedOutcome(outcome string) {
	c.federated.WithLabelValues(outcome).Inc()
}

// RecordSessionsSwept は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsSwept(count int64) {
	c.sessionsSwept.Add(float64(count))
}

// RecordProviderLatency はSteamへのリクエストのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(operation string, duration time.Duration) {
	c.providerLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordGamesSynced は同期したゲーム数を記録する。
func (c *Collector) RecordGamesSynced(count int) {
	c.gamesSynced.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordRegistration(string)                   {}
func (Nop) RecordLogin(string)                          {}
func (Nop) RecordFederatedOutcome(string)               {}
func (Nop) RecordSessionsSwept(int64)                   {}
func (Nop) RecordProviderLatency(string, time.Duration) {}
func (Nop) RecordGamesSynced(int)                       {}
func (Nop) RecordHTTPStatus(int)                        {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
