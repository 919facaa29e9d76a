package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定名・ラベルのメトリクスを探す。labelが空の場合は最初の系列を返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name, labelValue string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelValue == "" {
				return m
			}
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == labelValue {
					return m
				}
			}
		}
	}
	t.Fatalf("metric %s{%s} not found", name, labelValue)
	return nil
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestCollector_CountersByOutcome は結果ラベル別にカウンタが増加することを検証する。
func TestCollector_CountersByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRegistration(OutcomeSuccess)
	c.RecordRegistration("EMAIL_TAKEN")
	c.RecordLogin("INVALID_CREDENTIALS")
	c.RecordLogin("INVALID_CREDENTIALS")
	c.RecordFederatedOutcome(OutcomeLinked)

	tests := []struct {
		name  string
		label string
		want  float64
	}{
		{"catalyst_registrations_total", OutcomeSuccess, 1},
		{"catalyst_registrations_total", "EMAIL_TAKEN", 1},
		{"catalyst_logins_total", "INVALID_CREDENTIALS", 2},
		{"catalyst_federated_logins_total", OutcomeLinked, 1},
	}
	for _, tt := range tests {
		got := findMetric(t, reg, tt.name, tt.label).GetCounter().GetValue()
		if got != tt.want {
			t.Errorf("%s{%s} = %v, want %v", tt.name, tt.label, got, tt.want)
		}
	}
}

// TestCollector_SweptAndSynced は件数カウンタが加算されることを検証する。
func TestCollector_SweptAndSynced(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionsSwept(3)
	c.RecordSessionsSwept(0)
	c.RecordGamesSynced(42)

	if got := findMetric(t, reg, "catalyst_sessions_swept_total", "").GetCounter().GetValue(); got != 3 {
		t.Errorf("sessions_swept_total = %v, want 3", got)
	}
	if got := findMetric(t, reg, "catalyst_games_synced_total", "").GetCounter().GetValue(); got != 42 {
		t.Errorf("games_synced_total = %v, want 42", got)
	}
}

// TestCollector_ProviderLatency はレイテンシが操作別ヒストグラムに記録されることを検証する。
func TestCollector_ProviderLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordProviderLatency("verify", 150*time.Millisecond)
	c.RecordProviderLatency("verify", 250*time.Millisecond)

	h := findMetric(t, reg, "catalyst_provider_request_seconds", "verify").GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", h.GetSampleCount())
	}
	if h.GetSampleSum() < 0.39 || h.GetSampleSum() > 0.41 {
		t.Errorf("sample sum = %v, want ~0.4", h.GetSampleSum())
	}
}

// TestCollector_HTTPStatus はステータスコード別に記録されることを検証する。
func TestCollector_HTTPStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(401)
	c.RecordHTTPStatus(401)

	if got := findMetric(t, reg, "catalyst_http_responses_total", "401").GetCounter().GetValue(); got != 2 {
		t.Errorf("http_responses_total{401} = %v, want 2", got)
	}
}

// TestNop_ImplementsCollector はNopが何もせずに呼び出せることを検証する。
func TestNop_ImplementsCollector(t *testing.T) {
	var c MetricsCollector = Nop{}
	c.RecordRegistration(OutcomeSuccess)
	c.RecordSessionsSwept(1)
	c.RecordProviderLatency("verify", time.Second)
}
