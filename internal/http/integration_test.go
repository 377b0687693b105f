//go:build integration
// +build integration

package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/mintemp-dashboard/internal/dashboard"
	"github.com/kjstillabower/mintemp-dashboard/internal/forecast"
	"github.com/kjstillabower/mintemp-dashboard/internal/testhelpers"
)

// setupIntegrationRouter serves the API over the real archive.
func setupIntegrationRouter(t *testing.T) (http.Handler, func()) {
	cfg := testhelpers.GetIntegrationConfig(t)
	svc, _, cleanup := testhelpers.SetupIntegrationService(t, cfg)

	cities := testCities()
	store := dashboard.NewStore(dashboard.Deps{
		Fetcher:    svc,
		Locations:  cities,
		Forecaster: forecast.New(),
	}, time.Minute, time.Minute)
	logger := zap.NewNop()
	h := NewHandler(store, cities, nil, testDashboardConfig(), logger)
	return NewRouter(h, logger, nil, 60*time.Second), cleanup
}

func serve(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIntegration_DashboardFlow(t *testing.T) {
	router, cleanup := setupIntegrationRouter(t)
	defer cleanup()

	w := serve(t, router, http.MethodPost, "/sessions", "")
	var created struct {
		ID string `json:"id"`
	}
	decode(t, w, &created)

	w = serve(t, router, http.MethodPut, "/sessions/"+created.ID+"/query",
		`{"city":"Urbana, Illinois","start_date":"2022-01-01","end_date":"2024-01-01","unit":"fahrenheit"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT query status = %d (body %s)", w.Code, w.Body.String())
	}
	var q queryResponse
	decode(t, w, &q)
	if !strings.HasSuffix(q.Coordinates.Label, "°E") {
		t.Errorf("coordinates label = %q", q.Coordinates.Label)
	}

	w = serve(t, router, http.MethodGet, "/sessions/"+created.ID+"/history/thresholds?low=0&high=15", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET thresholds status = %d", w.Code)
	}

	w = serve(t, router, http.MethodGet, "/sessions/"+created.ID+"/forecast", "")
	var fc forecastResponse
	decode(t, w, &fc)
	if !fc.Eligible || len(fc.Points) != forecast.DaysPerYear {
		t.Errorf("forecast eligible %v points %d, want %d", fc.Eligible, len(fc.Points), forecast.DaysPerYear)
	}
}

func TestIntegration_SecondQueryServedFromCache(t *testing.T) {
	router, cleanup := setupIntegrationRouter(t)
	defer cleanup()

	body := `{"city":"Austin, Texas","start_date":"2023-01-01","end_date":"2023-02-01","unit":"celsius"}`
	for i := 0; i < 2; i++ {
		w := serve(t, router, http.MethodPost, "/sessions", "")
		var created struct {
			ID string `json:"id"`
		}
		decode(t, w, &created)

		start := time.Now()
		w = serve(t, router, http.MethodPut, "/sessions/"+created.ID+"/query", body)
		if w.Code != http.StatusOK {
			t.Fatalf("query %d status = %d (body %s)", i, w.Code, w.Body.String())
		}
		t.Logf("query %d took %s", i, time.Since(start))
	}
}
