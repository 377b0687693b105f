package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// setupBenchmarkSession returns a server with one session holding a
// two-year history.
func setupBenchmarkSession(b *testing.B) (*testServer, string) {
	ts := newTestServer(b, &stubFetcher{temp: 3}, nil)
	id := ts.createSession(b)
	if w := ts.applyQuery(b, id, "2022-01-01", "2024-01-01"); w.Code != http.StatusOK {
		b.Fatalf("PUT query status = %d", w.Code)
	}
	return ts, id
}

// BenchmarkHandler_GetHistory benchmarks the historical view with both rolling means.
func BenchmarkHandler_GetHistory(b *testing.B) {
	ts, id := setupBenchmarkSession(b)
	path := "/sessions/" + id + "/history?threshold=5&rolling=7,30"

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		ts.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			b.Fatalf("status = %d", w.Code)
		}
	}
}

// BenchmarkHandler_GetForecast_Memoized benchmarks repeated forecast reads,
// which hit the session memo after the first fit.
func BenchmarkHandler_GetForecast_Memoized(b *testing.B) {
	ts, id := setupBenchmarkSession(b)
	path := "/sessions/" + id + "/forecast"

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		ts.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			b.Fatalf("status = %d", w.Code)
		}
	}
}

// BenchmarkHandler_GetHistoryThresholds benchmarks the default table range.
func BenchmarkHandler_GetHistoryThresholds(b *testing.B) {
	ts, id := setupBenchmarkSession(b)
	path := "/sessions/" + id + "/history/thresholds"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		ts.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}
}
