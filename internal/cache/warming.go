package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/mintemp-dashboard/internal/models"
	"github.com/kjstillabower/mintemp-dashboard/internal/observability"
)

// ResponseFetcher is implemented by the service layer; fetching through it
// populates the cache. Declared here to avoid importing service.
type ResponseFetcher interface {
	Fetch(ctx context.Context, q models.WeatherQuery) (models.ProviderResponse, error)
}

// warmConcurrency bounds parallel archive calls during warming.
const warmConcurrency = 4

// CacheWarmer prefetches archive responses for a fixed list of queries.
type CacheWarmer struct {
	fetcher   ResponseFetcher
	logger    *zap.Logger
	timeout   time.Duration
	scheduler *gocron.Scheduler
}

// NewCacheWarmer creates a CacheWarmer. timeout bounds each warm run.
func NewCacheWarmer(fetcher ResponseFetcher, logger *zap.Logger, timeout time.Duration) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger, timeout: timeout}
}

// Warm fetches every query with bounded concurrency. All queries are
// attempted; failures are joined into the returned error.
func (w *CacheWarmer) Warm(ctx context.Context, queries []models.WeatherQuery) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("queries", len(queries)))

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(warmConcurrency)
	for _, q := range queries {
		q := q
		g.Go(func() error {
			if _, err := w.fetcher.Fetch(ctx, q); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", q.CacheKey(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	w.logger.Info("cache warming complete",
		zap.Int("queries", len(queries)),
		zap.Int("errors", len(errs)),
		zap.Duration("duration", time.Since(start)))
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return errors.Join(errs...)
	}
	return nil
}

// StartPeriodic runs Warm immediately and then every interval on a gocron
// scheduler until Stop is called.
func (w *CacheWarmer) StartPeriodic(queries []models.WeatherQuery, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("warm interval must be positive, got %s", interval)
	}
	s := gocron.NewScheduler(time.UTC)
	_, err := s.Every(interval).StartImmediately().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := w.Warm(ctx, queries); err != nil {
			w.logger.Warn("periodic cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cache warming: %w", err)
	}
	s.StartAsync()
	w.scheduler = s
	return nil
}

// Stop halts the periodic scheduler if one is running.
func (w *CacheWarmer) Stop() {
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
}
