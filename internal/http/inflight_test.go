package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kjstillabower/mintemp-dashboard/internal/observability"
)

// blockingForecastRouter serves a session forecast route that holds each
// request until release is closed.
func blockingForecastRouter(started chan<- struct{}, release <-chan struct{}) *mux.Router {
	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/sessions/{id}/forecast", func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return router
}

func TestWaitForInFlight_BlocksUntilSessionRequestsFinish(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	router := blockingForecastRouter(started, release)
	gaugeBefore := testutil.ToFloat64(observability.HTTPRequestsInFlight)

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sessions/"+id+"/forecast", nil))
		}(id)
	}
	<-started
	<-started

	if got := InFlightCount(); got != 2 {
		t.Errorf("InFlightCount() = %d, want 2 while forecasts are running", got)
	}
	if got := testutil.ToFloat64(observability.HTTPRequestsInFlight) - gaugeBefore; got != 2 {
		t.Errorf("httpRequestsInFlight delta = %v, want 2", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	err := WaitForInFlight(ctx, 5*time.Millisecond)
	cancel()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForInFlight() with requests pending error = %v, want DeadlineExceeded", err)
	}

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- WaitForInFlight(ctx, 5*time.Millisecond)
	}()
	close(release)
	wg.Wait()

	if err := <-done; err != nil {
		t.Errorf("WaitForInFlight() after release error = %v, want nil", err)
	}
	if got := InFlightCount(); got != 0 {
		t.Errorf("InFlightCount() = %d, want 0", got)
	}
	if got := testutil.ToFloat64(observability.HTTPRequestsInFlight) - gaugeBefore; got != 0 {
		t.Errorf("httpRequestsInFlight delta = %v, want 0", got)
	}
}

func TestInFlightTracker_ConcurrentUpdates(t *testing.T) {
	tracker := &InFlightTracker{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Increment()
			tracker.Decrement()
		}()
	}
	wg.Wait()
	if got := tracker.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
	if err := tracker.WaitForZero(context.Background(), time.Millisecond); err != nil {
		t.Errorf("WaitForZero() on idle tracker error = %v", err)
	}
}
