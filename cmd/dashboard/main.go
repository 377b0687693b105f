package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/mintemp-dashboard/internal/cache"
	"github.com/kjstillabower/mintemp-dashboard/internal/client"
	"github.com/kjstillabower/mintemp-dashboard/internal/config"
	"github.com/kjstillabower/mintemp-dashboard/internal/dashboard"
	"github.com/kjstillabower/mintemp-dashboard/internal/forecast"
	httphandler "github.com/kjstillabower/mintemp-dashboard/internal/http"
	"github.com/kjstillabower/mintemp-dashboard/internal/lifecycle"
	"github.com/kjstillabower/mintemp-dashboard/internal/locations"
	"github.com/kjstillabower/mintemp-dashboard/internal/models"
	"github.com/kjstillabower/mintemp-dashboard/internal/observability"
	"github.com/kjstillabower/mintemp-dashboard/internal/service"
)

// closer is implemented by cache backends holding connections or files.
type closer interface {
	Close() error
}

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	cities, err := locations.LoadFile(cfg.LocationsFile)
	if err != nil {
		logger.Fatal("locations", zap.Error(err))
	}
	logger.Info("locations loaded", zap.String("file", cfg.LocationsFile), zap.Int("cities", cities.Len()))

	archiveClient, err := client.NewOpenMeteoClientWithRetry(
		cfg.ArchiveAPIKey,
		cfg.ArchiveAPIURL,
		cfg.ArchiveAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("archive client", zap.Error(err))
	}
	archiveClient.SetCircuitBreaker(client.NewCircuitBreaker(client.BreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		HalfOpenRequests: cfg.BreakerHalfOpenRequests,
		Timeout:          cfg.BreakerTimeout,
		OnStateChange: func(from, to gobreaker.State) {
			observability.RecordCircuitBreakerTransition(to.String())
			logger.Warn("circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}))
	observability.CircuitBreakerState.Set(0)
	logger.Info("circuit breaker enabled", zap.Uint32("failure_threshold", cfg.BreakerFailureThreshold), zap.Duration("timeout", cfg.BreakerTimeout))

	cacheSvc, cachePing, cacheCloser := openCache(cfg, logger)
	weatherService := service.NewWeatherService(archiveClient, cacheSvc, cfg.CacheTTL, cfg.CoalesceTimeout)

	store := dashboard.NewStore(dashboard.Deps{
		Fetcher:    weatherService,
		Locations:  cities,
		Forecaster: forecast.New(),
	}, cfg.SessionTTL, cfg.SessionCleanup)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:     cfg.DegradedWindow,
		DegradedErrorPct:   cfg.DegradedErrorPct,
		DegradedMinFetches: cfg.DegradedMinFetches,
		CachePing:          cachePing,
	}
	dashboardConfig := httphandler.DashboardConfig{
		DateMin:          cfg.DateMin,
		DateMax:          cfg.DateMax,
		DefaultStartDate: cfg.DefaultStartDate,
		DefaultEndDate:   cfg.DefaultEndDate,
		DefaultCity:      cfg.DefaultCity,
	}
	handler := httphandler.NewHandler(store, cities, healthConfig, dashboardConfig, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout)

	var warmer *cache.CacheWarmer
	if cfg.WarmEnabled {
		queries := warmQueries(cfg, cities, logger)
		if len(queries) > 0 {
			warmer = cache.NewCacheWarmer(weatherService, logger, cfg.WarmTimeout)
			if err := warmer.StartPeriodic(queries, cfg.WarmInterval); err != nil {
				logger.Error("cache warming not started", zap.Error(err))
				warmer = nil
			}
		}
	}

	// Multi-year fetches and forecast fits run inside the request.
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	if warmer != nil {
		warmer.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if cacheCloser != nil {
		if err := cacheCloser.Close(); err != nil {
			logger.Error("cache close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
	if err := observability.FlushTelemetry(logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}

// openCache builds the configured backend. Memcached and SQLite also
// return a ping for the health check and a closer for shutdown.
func openCache(cfg *config.Config, logger *zap.Logger) (cache.Cache, func() error, closer) {
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, mc.Ping, mc
	case "sqlite":
		sc, err := cache.NewSQLiteCache(cfg.SQLitePath)
		if err != nil {
			logger.Fatal("sqlite cache", zap.Error(err))
		}
		logger.Info("cache backend: sqlite", zap.String("path", cfg.SQLitePath))
		return sc, sc.Ping, sc
	default:
		logger.Info("cache backend: in_memory")
		return cache.NewInMemoryCache(), nil, nil
	}
}

// warmQueries expands the warm cities into the default date range in both
// units. Cities missing from the table are skipped.
func warmQueries(cfg *config.Config, cities *locations.Table, logger *zap.Logger) []models.WeatherQuery {
	var queries []models.WeatherQuery
	for _, city := range cfg.WarmCities {
		lat, lng, err := cities.Lookup(city)
		if err != nil {
			logger.Warn("warm city not in table", zap.String("city", city))
			continue
		}
		for _, unit := range []models.Unit{models.Fahrenheit, models.Celsius} {
			queries = append(queries, models.WeatherQuery{
				Latitude:  lat,
				Longitude: lng,
				StartDate: cfg.DefaultStartDate,
				EndDate:   cfg.DefaultEndDate,
				Unit:      unit,
			})
		}
	}
	return queries
}
