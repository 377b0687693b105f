package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Usable verifies that all Prometheus metrics can be used without
// panic, ensuring label dimensions match usage across client, http, service, and cache packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/sessions/{id}/history", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/sessions/{id}/history").Observe(0.01)
	ArchiveAPICallsTotal.WithLabelValues("success").Inc()
	ArchiveAPIDuration.WithLabelValues("success").Observe(0.1)
	FetchErrorsTotal.WithLabelValues("upstream_5xx").Inc()
	CacheHitsTotal.WithLabelValues("in_memory").Inc()
	CacheMissesTotal.WithLabelValues("sqlite").Inc()
	CacheErrorsTotal.WithLabelValues("set").Inc()
	ForecastDuration.WithLabelValues("linear").Observe(0.2)
}

// TestRecordCircuitBreakerTransition verifies the gauge tracks the latest state.
func TestRecordCircuitBreakerTransition(t *testing.T) {
	RecordCircuitBreakerTransition("open")
	if got := testutil.ToFloat64(CircuitBreakerState); got != 2 {
		t.Errorf("CircuitBreakerState = %v, want 2", got)
	}
	RecordCircuitBreakerTransition("half-open")
	if got := testutil.ToFloat64(CircuitBreakerState); got != 1 {
		t.Errorf("CircuitBreakerState = %v, want 1", got)
	}
	RecordCircuitBreakerTransition("closed")
	if got := testutil.ToFloat64(CircuitBreakerState); got != 0 {
		t.Errorf("CircuitBreakerState = %v, want 0", got)
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
