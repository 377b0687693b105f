package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/mintemp-dashboard/internal/models"
	"github.com/kjstillabower/mintemp-dashboard/internal/observability"
	"github.com/kjstillabower/mintemp-dashboard/internal/series"
)

// ArchiveClient fetches daily minimum temperatures for a past date range.
type ArchiveClient interface {
	FetchDailyMin(ctx context.Context, q models.WeatherQuery) (models.ProviderResponse, error)
}

var (
	ErrInvalidQuery    = errors.New("invalid query")
	ErrBadRequest      = errors.New("provider rejected request")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
	ErrCircuitOpen     = errors.New("circuit breaker open")
)

// FetchError is returned for every unrecoverable fetch failure. Message
// carries the provider's reason when it sent one.
type FetchError struct {
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "fetch failed"
}

func (e *FetchError) Unwrap() error { return e.Err }

// dailyIntervalSeconds is the step between archive rows for daily variables.
const dailyIntervalSeconds = 86400

type OpenMeteoClient struct {
	apiKey         string
	apiURL         string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *gobreaker.CircuitBreaker
}

func NewOpenMeteoClient(apiKey, apiURL string, timeout time.Duration) (*OpenMeteoClient, error) {
	return NewOpenMeteoClientWithRetry(apiKey, apiURL, timeout, 5, 200*time.Millisecond, 5*time.Second)
}

// NewOpenMeteoClientWithRetry builds a client. apiKey is optional; when set
// it is sent as the commercial "apikey" parameter.
func NewOpenMeteoClientWithRetry(apiKey, apiURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenMeteoClient, error) {
	if _, err := url.Parse(apiURL); err != nil || apiURL == "" {
		return nil, fmt.Errorf("invalid archive API URL %q", apiURL)
	}
	if retryAttempts <= 0 {
		retryAttempts = 1
	}
	return &OpenMeteoClient{
		apiKey:         apiKey,
		apiURL:         apiURL,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker wraps every attempt in cb. Pass nil to disable.
func (c *OpenMeteoClient) SetCircuitBreaker(cb *gobreaker.CircuitBreaker) {
	c.breaker = cb
}

type archiveResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Daily     struct {
		Time           []int64    `json:"time"`
		TemperatureMin []*float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

type archiveError struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// FetchDailyMin retrieves the daily minimum temperature series for q,
// retrying transient failures with exponential backoff.
func (c *OpenMeteoClient) FetchDailyMin(ctx context.Context, q models.WeatherQuery) (models.ProviderResponse, error) {
	if !q.EndDate.After(q.StartDate) {
		return models.ProviderResponse{}, &FetchError{
			Message: "end date must be after start date",
			Err:     ErrInvalidQuery,
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.ArchiveAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return models.ProviderResponse{}, &FetchError{Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		result, err := c.attempt(ctx, q)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !c.isRetryable(ctx, err) {
			return models.ProviderResponse{}, asFetchError(err)
		}
	}

	return models.ProviderResponse{}, asFetchError(fmt.Errorf("exhausted retries: %w", lastErr))
}

func (c *OpenMeteoClient) attempt(ctx context.Context, q models.WeatherQuery) (models.ProviderResponse, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, q)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.callAPI(ctx, q)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return models.ProviderResponse{}, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return models.ProviderResponse{}, err
	}
	return out.(models.ProviderResponse), nil
}

func (c *OpenMeteoClient) callAPI(ctx context.Context, q models.WeatherQuery) (models.ProviderResponse, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, q)
	if err != nil {
		observability.ArchiveAPICallsTotal.WithLabelValues("error").Inc()
		return models.ProviderResponse{}, fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.ArchiveAPICallsTotal.WithLabelValues("error").Inc()
		observability.ArchiveAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.ProviderResponse{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.ProviderResponse{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.ArchiveAPICallsTotal.WithLabelValues(status).Inc()
	observability.ArchiveAPIDuration.WithLabelValues(status).Observe(duration)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.ProviderResponse{}, fmt.Errorf("read response body: %w", err)
	}

	if err := c.handleErrorResponse(resp.StatusCode, body); err != nil {
		return models.ProviderResponse{}, err
	}

	var apiResp archiveResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.ProviderResponse{}, &FetchError{Message: "parse response: " + err.Error(), Err: err}
	}

	return mapResponse(apiResp)
}

// isRetryable reports whether err is transient: rate limits, 5xx, and
// transport failures while the caller's context is still live.
func (c *OpenMeteoClient) isRetryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrBadRequest) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func (c *OpenMeteoClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if c.retryMaxDelay > 0 && delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OpenMeteoClient) buildRequest(ctx context.Context, q models.WeatherQuery) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(q.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(q.Longitude, 'f', -1, 64))
	params.Set("start_date", q.StartDate.Format(models.DateLayout))
	params.Set("end_date", q.EndDate.Format(models.DateLayout))
	params.Set("daily", "temperature_2m_min")
	params.Set("temperature_unit", string(q.Unit))
	params.Set("timeformat", "unixtime")
	params.Set("timezone", "GMT")
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *OpenMeteoClient) handleErrorResponse(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	reason := providerReason(body)
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &FetchError{Message: reason, Err: ErrRateLimited}
	case statusCode >= 500:
		return &FetchError{Message: reason, Err: fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, statusCode)}
	default:
		return &FetchError{Message: reason, Err: fmt.Errorf("%w: HTTP %d", ErrBadRequest, statusCode)}
	}
}

// providerReason extracts {"error":true,"reason":...} from an error body.
func providerReason(body []byte) string {
	var e archiveError
	if err := json.Unmarshal(body, &e); err == nil && e.Reason != "" {
		return e.Reason
	}
	return ""
}

// mapResponse folds the unix time array into a (start, end, interval)
// triple. Shape errors wrap series.ErrMalformedResponse.
func mapResponse(apiResp archiveResponse) (models.ProviderResponse, error) {
	times := apiResp.Daily.Time
	interval := int64(dailyIntervalSeconds)
	if len(times) >= 2 {
		interval = times[1] - times[0]
	}
	if interval <= 0 {
		return models.ProviderResponse{}, &FetchError{Message: "parse response: non-increasing time axis", Err: series.ErrMalformedResponse}
	}
	for i := 1; i < len(times); i++ {
		if times[i]-times[i-1] != interval {
			return models.ProviderResponse{}, &FetchError{Message: fmt.Sprintf("parse response: uneven time axis at index %d", i), Err: series.ErrMalformedResponse}
		}
	}

	if len(apiResp.Daily.TemperatureMin) != len(times) {
		return models.ProviderResponse{}, &FetchError{
			Message: fmt.Sprintf("parse response: %d values for %d timestamps", len(apiResp.Daily.TemperatureMin), len(times)),
			Err:     series.ErrMalformedResponse,
		}
	}

	var start, end int64
	if len(times) > 0 {
		start = times[0]
		end = times[len(times)-1] + interval
	}

	values := make([]float64, len(apiResp.Daily.TemperatureMin))
	for i, v := range apiResp.Daily.TemperatureMin {
		if v == nil {
			values[i] = math.NaN()
			continue
		}
		values[i] = *v
	}

	return models.ProviderResponse{
		Latitude:  apiResp.Latitude,
		Longitude: apiResp.Longitude,
		Daily: models.DailyVariable{
			TimeStart:       start,
			TimeEnd:         end,
			IntervalSeconds: interval,
			Values:          values,
		},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// asFetchError wraps err in a FetchError unless it already is one.
func asFetchError(err error) error {
	if fe, ok := err.(*FetchError); ok {
		return fe
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.Message != "" {
		return &FetchError{Message: fe.Message, Err: err}
	}
	return &FetchError{Message: err.Error(), Err: err}
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
