//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/mintemp-dashboard/internal/cache"
	"github.com/kjstillabower/mintemp-dashboard/internal/client"
	"github.com/kjstillabower/mintemp-dashboard/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "in_memory", "memcached" or "sqlite"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// The public archive needs no key, so tests run only when
// INTEGRATION_ARCHIVE is set to avoid hitting the network by accident.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	if os.Getenv("INTEGRATION_ARCHIVE") == "" {
		t.Skip("INTEGRATION_ARCHIVE not set, skipping integration test")
	}

	apiURL := os.Getenv("ARCHIVE_API_URL")
	if apiURL == "" {
		apiURL = "https://archive-api.open-meteo.com/v1/archive"
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		APIKey:        os.Getenv("ARCHIVE_API_KEY"),
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationService creates a fetch service over the real archive.
// Returns the service, its cache and a cleanup function.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, cache.Cache, func()) {
	archive := SetupIntegrationClient(t, cfg)

	var cacheSvc cache.Cache
	cleanup := func() {}
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			cacheSvc = mc
			cleanup = func() { _ = mc.Close() }
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available (%v), using in-memory cache", err)
			cacheSvc = cache.NewInMemoryCache()
		}
	case "sqlite":
		sc, err := cache.NewSQLiteCache(":memory:")
		if err != nil {
			t.Fatalf("NewSQLiteCache() error = %v", err)
		}
		cacheSvc = sc
		cleanup = func() { _ = sc.Close() }
	default:
		cacheSvc = cache.NewInMemoryCache()
	}

	return service.NewWeatherService(archive, cacheSvc, 0, 30*time.Second), cacheSvc, cleanup
}

// SetupIntegrationClient creates an archive client with retries and a breaker.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenMeteoClient {
	c, err := client.NewOpenMeteoClientWithRetry(cfg.APIKey, cfg.APIURL, 20*time.Second, 3, 200*time.Millisecond, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenMeteoClientWithRetry() error = %v", err)
	}
	c.SetCircuitBreaker(client.NewCircuitBreaker(client.BreakerConfig{}))
	return c
}
