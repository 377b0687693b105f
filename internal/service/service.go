// Package service fetches archive responses through the shared response
// cache, folding concurrent identical requests into one upstream call.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/mintemp-dashboard/internal/cache"
	"github.com/kjstillabower/mintemp-dashboard/internal/client"
	"github.com/kjstillabower/mintemp-dashboard/internal/models"
	"github.com/kjstillabower/mintemp-dashboard/internal/observability"
	"github.com/kjstillabower/mintemp-dashboard/internal/series"
	"github.com/kjstillabower/mintemp-dashboard/internal/traffic"
	"github.com/kjstillabower/mintemp-dashboard/internal/validation"
)

// WeatherService is the Weather Fetcher: cache-aside over the archive
// client. Every failure it returns is a *client.FetchError.
type WeatherService struct {
	client    client.ArchiveClient
	cache     cache.Cache
	ttl       time.Duration
	coalescer *requestCoalescer
}

// NewWeatherService creates a WeatherService. ttl 0 caches forever, which is
// safe for past date ranges. coalesceTimeout 0 disables coalescing.
func NewWeatherService(c client.ArchiveClient, ch cache.Cache, ttl, coalesceTimeout time.Duration) *WeatherService {
	var coalescer *requestCoalescer
	if coalesceTimeout > 0 {
		coalescer = newRequestCoalescer(coalesceTimeout)
	}
	return &WeatherService{
		client:    c,
		cache:     ch,
		ttl:       ttl,
		coalescer: coalescer,
	}
}

// Fetch returns the archive response for q, from cache when present.
func (s *WeatherService) Fetch(ctx context.Context, q models.WeatherQuery) (models.ProviderResponse, error) {
	logger := observability.LoggerFromContext(ctx)
	start := time.Now()

	if err := validateQuery(q); err != nil {
		return models.ProviderResponse{}, s.fail(logger, q, err)
	}
	key := q.CacheKey()
	backend := s.cache.Name()

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("cache get failed", zap.String("key", key), zap.String("error_category", categorizeCacheError(err)), zap.Error(err))
	} else if ok {
		_, normErr := series.Normalize(cached)
		if normErr == nil {
			observability.CacheHitsTotal.WithLabelValues(backend).Inc()
			logger.Debug("cache hit", zap.String("key", key), zap.Duration("duration", time.Since(start)))
			return cached, nil
		}
		logger.Warn("discarding malformed cache entry", zap.String("key", key), zap.Error(normErr))
	}
	observability.CacheMissesTotal.WithLabelValues(backend).Inc()
	logger.Debug("cache miss, fetching archive", zap.String("key", key))

	var resp models.ProviderResponse
	var upstreamErr error
	if s.coalescer != nil {
		var shared bool
		resp, shared, upstreamErr = s.coalescer.GetOrDo(ctx, key, func() (models.ProviderResponse, error) {
			// detached so one waiter leaving does not cancel the others
			return s.client.FetchDailyMin(context.WithoutCancel(ctx), q)
		})
		if shared {
			observability.RequestCoalescingHitsTotal.Inc()
		}
	} else {
		resp, upstreamErr = s.client.FetchDailyMin(ctx, q)
	}
	if upstreamErr != nil {
		return models.ProviderResponse{}, s.fail(logger, q, upstreamErr)
	}
	// malformed payloads are never cached so the next query asks again
	if _, err := series.Normalize(resp); err != nil {
		return models.ProviderResponse{}, s.fail(logger, q, &client.FetchError{Message: err.Error(), Err: err})
	}
	traffic.RecordFetchSuccess()

	if setErr := s.cache.Set(ctx, key, resp, s.ttl); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		logger.Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
	}
	logger.Debug("archive response served",
		zap.String("key", key),
		zap.Int("days", len(resp.Daily.Values)),
		zap.Duration("duration", time.Since(start)))
	return resp, nil
}

func (s *WeatherService) fail(logger *zap.Logger, q models.WeatherQuery, err error) error {
	category := client.CategorizeError(err)
	observability.FetchErrorsTotal.WithLabelValues(string(category)).Inc()
	if !errors.Is(err, client.ErrInvalidQuery) {
		traffic.RecordFetchError()
	}
	logger.Info("archive fetch failed",
		zap.String("key", q.CacheKey()),
		zap.String("error_category", string(category)),
		zap.Error(err))

	var fe *client.FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &client.FetchError{Message: err.Error(), Err: err}
}

func validateQuery(q models.WeatherQuery) error {
	if !q.EndDate.After(q.StartDate) {
		return &client.FetchError{
			Message: fmt.Sprintf("end date %s must be after start date %s",
				q.EndDate.Format(models.DateLayout), q.StartDate.Format(models.DateLayout)),
			Err: client.ErrInvalidQuery,
		}
	}
	if err := validation.Struct(q); err != nil {
		return &client.FetchError{Message: err.Error(), Err: client.ErrInvalidQuery}
	}
	return nil
}

// categorizeCacheError returns a stable label for cache error logs (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
