package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"ai-voice-relay-service/internal/observability/metrics"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name   string
		ready  ReadinessFunc
		status int
		body   string
	}{
		{"ready", func() error { return nil }, http.StatusOK, "ready"},
		{"no relayer", func() error { return errors.New("relayer not wired") }, http.StatusServiceUnavailable, "relayer not wired"},
		{"not wired", nil, http.StatusServiceUnavailable, "readiness not wired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, newMux(prometheus.NewRegistry(), tt.ready), "/readyz")
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Errorf("expected body to contain %q, got %q", tt.body, rec.Body.String())
			}
		})
	}
}

func TestHealthzIgnoresReadiness(t *testing.T) {
	rec := get(t, newMux(prometheus.NewRegistry(), nil), "/healthz")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("unexpected liveness response %d %q", rec.Code, rec.Body.String())
	}
}

func TestMetricsExposesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.RecordRelayStart()

	rec := get(t, newMux(reg, nil), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ai_voice_relay_relays_total 1") {
		t.Errorf("relay counter missing from /metrics output")
	}
}
