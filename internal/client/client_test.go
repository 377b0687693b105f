package client

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/mintemp-dashboard/internal/models"
	"github.com/kjstillabower/mintemp-dashboard/internal/observability"
	"github.com/kjstillabower/mintemp-dashboard/internal/series"
)

func testQuery() models.WeatherQuery {
	return models.WeatherQuery{
		Latitude:  40.1106,
		Longitude: -88.1972,
		StartDate: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC),
		Unit:      models.Fahrenheit,
	}
}

func archiveBody() map[string]interface{} {
	return map[string]interface{}{
		"latitude":  40.12,
		"longitude": -88.21,
		"daily": map[string]interface{}{
			"time":               []int64{1640995200, 1641081600, 1641168000},
			"temperature_2m_min": []interface{}{10.5, nil, -3.2},
		},
	}
}

func newTestClient(t *testing.T, url string, attempts int) *OpenMeteoClient {
	t.Helper()
	c, err := NewOpenMeteoClientWithRetry("", url, 2*time.Second, attempts, time.Millisecond, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenMeteoClientWithRetry() error = %v", err)
	}
	return c
}

func TestNewOpenMeteoClient_InvalidURL(t *testing.T) {
	if _, err := NewOpenMeteoClient("", "", time.Second); err == nil {
		t.Fatal("NewOpenMeteoClient() expected error for empty URL")
	}
}

func TestOpenMeteoClient_FetchDailyMin_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		checks := map[string]string{
			"latitude":         "40.1106",
			"longitude":        "-88.1972",
			"start_date":       "2022-01-01",
			"end_date":         "2022-01-03",
			"daily":            "temperature_2m_min",
			"temperature_unit": "fahrenheit",
			"timeformat":       "unixtime",
		}
		for k, want := range checks {
			if got := q.Get(k); got != want {
				t.Errorf("query %s = %q, want %q", k, got, want)
			}
		}
		if q.Has("apikey") {
			t.Error("apikey sent without a configured key")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(archiveBody())
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 1)
	got, err := c.FetchDailyMin(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("FetchDailyMin() error = %v", err)
	}

	if got.Latitude != 40.12 || got.Longitude != -88.21 {
		t.Errorf("coordinates = (%v, %v), want (40.12, -88.21)", got.Latitude, got.Longitude)
	}
	d := got.Daily
	if d.TimeStart != 1640995200 || d.TimeEnd != 1641254400 || d.IntervalSeconds != 86400 {
		t.Errorf("axis = (%d, %d, %d), want (1640995200, 1641254400, 86400)", d.TimeStart, d.TimeEnd, d.IntervalSeconds)
	}
	if len(d.Values) != 3 || d.Values[0] != 10.5 || !math.IsNaN(d.Values[1]) || d.Values[2] != -3.2 {
		t.Errorf("values = %v, want [10.5 NaN -3.2]", d.Values)
	}
}

func TestOpenMeteoClient_FetchDailyMin_SendsAPIKey(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("apikey")
		_ = json.NewEncoder(w).Encode(archiveBody())
	}))
	defer server.Close()

	c, err := NewOpenMeteoClientWithRetry("secret-key", server.URL, time.Second, 1, time.Millisecond, time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenMeteoClientWithRetry() error = %v", err)
	}
	if _, err := c.FetchDailyMin(context.Background(), testQuery()); err != nil {
		t.Fatalf("FetchDailyMin() error = %v", err)
	}
	if gotKey != "secret-key" {
		t.Errorf("apikey = %q, want secret-key", gotKey)
	}
}

func TestOpenMeteoClient_FetchDailyMin_InvalidRange(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 3)
	q := testQuery()
	q.EndDate = q.StartDate

	_, err := c.FetchDailyMin(context.Background(), q)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("FetchDailyMin() error = %v, want *FetchError", err)
	}
	if !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("FetchDailyMin() error = %v, want ErrInvalidQuery", err)
	}
	if calls.Load() != 0 {
		t.Errorf("provider called %d times, want 0", calls.Load())
	}
}

func TestOpenMeteoClient_FetchDailyMin_ErrorHandling(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantErr      error
		wantAttempts int32
		wantMessage  string
	}{
		{
			name:         "400 carries provider reason",
			status:       http.StatusBadRequest,
			body:         `{"error":true,"reason":"Latitude must be in range of -90 to 90°. Given: 100.0."}`,
			wantErr:      ErrBadRequest,
			wantAttempts: 1,
			wantMessage:  "Latitude must be in range of -90 to 90°. Given: 100.0.",
		},
		{
			name:         "429 retried until exhausted",
			status:       http.StatusTooManyRequests,
			wantErr:      ErrRateLimited,
			wantAttempts: 3,
		},
		{
			name:         "503 retried until exhausted",
			status:       http.StatusServiceUnavailable,
			wantErr:      ErrUpstreamFailure,
			wantAttempts: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, 3)
			_, err := c.FetchDailyMin(context.Background(), testQuery())
			if err == nil {
				t.Fatal("FetchDailyMin() expected error, got nil")
			}
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("FetchDailyMin() error = %T, want *FetchError", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FetchDailyMin() error = %v, want %v", err, tt.wantErr)
			}
			if attempts.Load() != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", attempts.Load(), tt.wantAttempts)
			}
			if tt.wantMessage != "" && err.Error() != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMessage)
			}
		})
	}
}

func TestOpenMeteoClient_FetchDailyMin_RetryThenSuccess(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(archiveBody())
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 5)
	if _, err := c.FetchDailyMin(context.Background(), testQuery()); err != nil {
		t.Fatalf("FetchDailyMin() error = %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestOpenMeteoClient_FetchDailyMin_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchDailyMin(ctx, testQuery())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("FetchDailyMin() error = %v, want context.Canceled", err)
	}
}

func TestOpenMeteoClient_FetchDailyMin_MalformedShape(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"uneven axis", `{"latitude":1,"longitude":2,"daily":{"time":[0,86400,200000],"temperature_2m_min":[1,2,3]}}`},
		{"fewer values", `{"latitude":1,"longitude":2,"daily":{"time":[0,86400,172800],"temperature_2m_min":[1,2]}}`},
		{"more values", `{"latitude":1,"longitude":2,"daily":{"time":[0,86400],"temperature_2m_min":[1,2,3]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, 3)
			_, err := c.FetchDailyMin(context.Background(), testQuery())
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("FetchDailyMin() error = %v, want *FetchError", err)
			}
			if !errors.Is(err, series.ErrMalformedResponse) {
				t.Errorf("FetchDailyMin() error = %v, want ErrMalformedResponse", err)
			}
			if got := attempts.Load(); got != 1 {
				t.Errorf("attempts = %d, want 1", got)
			}
		})
	}
}

func TestOpenMeteoClient_FetchDailyMin_CorrelationID(t *testing.T) {
	var captured string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Get("X-Correlation-ID")
		_ = json.NewEncoder(w).Encode(archiveBody())
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 1)
	ctx := observability.WithCorrelationID(context.Background(), "corr-123")
	if _, err := c.FetchDailyMin(ctx, testQuery()); err != nil {
		t.Fatalf("FetchDailyMin() error = %v", err)
	}
	if captured != "corr-123" {
		t.Errorf("X-Correlation-ID = %q, want corr-123", captured)
	}
}

func TestOpenMeteoClient_CircuitBreakerOpens(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	var transitions []gobreaker.State
	c := newTestClient(t, server.URL, 1)
	c.SetCircuitBreaker(NewCircuitBreaker(BreakerConfig{
		FailureThreshold: 2,
		Timeout:          time.Minute,
		OnStateChange: func(from, to gobreaker.State) {
			transitions = append(transitions, to)
		},
	}))

	for i := 0; i < 2; i++ {
		if _, err := c.FetchDailyMin(context.Background(), testQuery()); !errors.Is(err, ErrUpstreamFailure) {
			t.Fatalf("call %d error = %v, want ErrUpstreamFailure", i, err)
		}
	}
	_, err := c.FetchDailyMin(context.Background(), testQuery())
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("FetchDailyMin() error = %v, want ErrCircuitOpen", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("provider attempts = %d, want 2", attempts.Load())
	}
	if len(transitions) != 1 || transitions[0] != gobreaker.StateOpen {
		t.Errorf("transitions = %v, want [open]", transitions)
	}
}

func TestOpenMeteoClient_CircuitBreakerIgnoresBadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, Timeout: time.Minute})
	c := newTestClient(t, server.URL, 1)
	c.SetCircuitBreaker(cb)

	for i := 0; i < 3; i++ {
		if _, err := c.FetchDailyMin(context.Background(), testQuery()); !errors.Is(err, ErrBadRequest) {
			t.Fatalf("call %d error = %v, want ErrBadRequest", i, err)
		}
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("breaker state = %v, want closed", cb.State())
	}
}

func TestCalculateBackoff_Bounded(t *testing.T) {
	c := &OpenMeteoClient{retryBaseDelay: 100 * time.Millisecond, retryMaxDelay: 300 * time.Millisecond}
	if d := c.calculateBackoff(1); d < 100*time.Millisecond || d > 110*time.Millisecond {
		t.Errorf("attempt 1 backoff = %v, want ~100ms", d)
	}
	if d := c.calculateBackoff(2); d < 200*time.Millisecond || d > 220*time.Millisecond {
		t.Errorf("attempt 2 backoff = %v, want ~200ms", d)
	}
	if d := c.calculateBackoff(6); d > 330*time.Millisecond {
		t.Errorf("attempt 6 backoff = %v, want capped near 300ms", d)
	}
}
