package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/mintemp-dashboard/internal/models"
)

// Config holds service configuration loaded from YAML, .env and env.
// CacheBackend is "in_memory", "memcached" or "sqlite"; a CacheTTL of 0
// never expires.
type Config struct {
	ServerPort string

	ArchiveAPIKey     string
	ArchiveAPIURL     string
	ArchiveAPITimeout time.Duration

	RequestTimeout time.Duration

	CacheBackend          string
	CacheTTL              time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	SQLitePath            string

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	BreakerFailureThreshold uint32
	BreakerHalfOpenRequests uint32
	BreakerTimeout          time.Duration

	CoalesceTimeout time.Duration

	DateMin          time.Time
	DateMax          time.Time
	DefaultStartDate time.Time
	DefaultEndDate   time.Time

	LocationsFile string
	DefaultCity   string

	SessionTTL     time.Duration
	SessionCleanup time.Duration

	WarmEnabled  bool
	WarmInterval time.Duration
	WarmTimeout  time.Duration
	WarmCities   []string

	DegradedWindow     time.Duration
	DegradedErrorPct   int
	DegradedMinFetches int

	ShutdownTimeout time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	ArchiveAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"archive_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CoalesceTimeout  string `yaml:"coalesce_timeout"`
		CircuitBreaker   struct {
			FailureThreshold uint32 `yaml:"failure_threshold"`
			HalfOpenRequests uint32 `yaml:"half_open_requests"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Dates struct {
		Min          string `yaml:"min"`
		Max          string `yaml:"max"`
		DefaultStart string `yaml:"default_start"`
		DefaultEnd   string `yaml:"default_end"`
	} `yaml:"dates"`

	Locations struct {
		File        string `yaml:"file"`
		DefaultCity string `yaml:"default_city"`
	} `yaml:"locations"`

	Sessions struct {
		TTL     string `yaml:"ttl"`
		Cleanup string `yaml:"cleanup"`
	} `yaml:"sessions"`

	Warm struct {
		Enabled  bool     `yaml:"enabled"`
		Interval string   `yaml:"interval"`
		Timeout  string   `yaml:"timeout"`
		Cities   []string `yaml:"cities"`
	} `yaml:"warm"`

	Health struct {
		DegradedWindow     string `yaml:"degraded_window"`
		DegradedErrorPct   int    `yaml:"degraded_error_pct"`
		DegradedMinFetches int    `yaml:"degraded_min_fetches"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	ArchiveAPIKey string `yaml:"archive_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml, after loading .env into the environment. The archive
// API key is optional: ARCHIVE_API_KEY env, then the secrets file. Call
// from project root.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.ArchiveAPIKey = os.Getenv("ARCHIVE_API_KEY")
	if cfg.ArchiveAPIKey == "" {
		key, err := readSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.ArchiveAPIKey = key
	}

	cfg.ArchiveAPIURL = fc.ArchiveAPI.URL
	if cfg.ArchiveAPIURL == "" {
		cfg.ArchiveAPIURL = "https://archive-api.open-meteo.com/v1/archive"
	}
	cfg.ArchiveAPITimeout = parseDurationOrZero(fc.ArchiveAPI.Timeout, 10*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 30*time.Second)

	cfg.CacheBackend = envOr("CACHE_BACKEND", fc.Cache.Backend, "in_memory")
	cfg.CacheBackend = strings.ToLower(cfg.CacheBackend)
	cfg.CacheTTL = parseDurationOrZero(fc.Cache.TTL, 0)
	cfg.MemcachedAddrs = envOr("MEMCACHED_ADDRS", fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.SQLitePath = envOr("SQLITE_PATH", fc.Cache.SQLite.Path, ".cache/archive.sqlite")

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 5
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 200*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 5*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}
	cfg.CoalesceTimeout = parseDurationOrZero(fc.Reliability.CoalesceTimeout, 30*time.Second)
	cb := fc.Reliability.CircuitBreaker
	cfg.BreakerFailureThreshold = cb.FailureThreshold
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerHalfOpenRequests = cb.HalfOpenRequests
	if cfg.BreakerHalfOpenRequests == 0 {
		cfg.BreakerHalfOpenRequests = 1
	}
	cfg.BreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	dateFields := []struct {
		dst *time.Time
		raw string
		def string
		key string
	}{
		{&cfg.DateMin, fc.Dates.Min, "2020-01-01", "dates.min"},
		{&cfg.DateMax, fc.Dates.Max, "2024-01-01", "dates.max"},
		{&cfg.DefaultStartDate, fc.Dates.DefaultStart, "2022-01-01", "dates.default_start"},
		{&cfg.DefaultEndDate, fc.Dates.DefaultEnd, "2024-01-01", "dates.default_end"},
	}
	for _, f := range dateFields {
		d, err := parseDate(f.raw, f.def)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = d
	}

	cfg.LocationsFile = envOr("LOCATIONS_FILE", fc.Locations.File, "data/cities.csv")
	cfg.DefaultCity = fc.Locations.DefaultCity
	if cfg.DefaultCity == "" {
		cfg.DefaultCity = "Urbana, Illinois"
	}

	cfg.SessionTTL = parseDuration(fc.Sessions.TTL, 30*time.Minute)
	cfg.SessionCleanup = parseDuration(fc.Sessions.Cleanup, 5*time.Minute)

	cfg.WarmEnabled = fc.Warm.Enabled
	cfg.WarmInterval = parseDuration(fc.Warm.Interval, 24*time.Hour)
	cfg.WarmTimeout = parseDuration(fc.Warm.Timeout, 2*time.Minute)
	cfg.WarmCities = fc.Warm.Cities
	if len(cfg.WarmCities) == 0 {
		cfg.WarmCities = []string{cfg.DefaultCity}
	}

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}
	cfg.DegradedMinFetches = fc.Health.DegradedMinFetches
	if cfg.DegradedMinFetches <= 0 {
		cfg.DegradedMinFetches = 5
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return sec.ArchiveAPIKey, nil
}

// envOr returns the trimmed env var, then the file value, then def.
func envOr(key, fileVal, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	if v := strings.TrimSpace(fileVal); v != "" {
		return v
	}
	return def
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero and negative durations are returned as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func parseDate(s, def string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = def
	}
	return time.Parse(models.DateLayout, s)
}

// validate performs post-load validation of configuration values.
// RequestTimeout is raised to exceed ArchiveAPITimeout when needed.
func validate(cfg *Config) error {
	if cfg.ArchiveAPITimeout <= 0 {
		return fmt.Errorf("archive_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.ArchiveAPITimeout {
		cfg.RequestTimeout = cfg.ArchiveAPITimeout + time.Second
	}
	if cfg.CacheTTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got %s", cfg.CacheTTL)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached", "sqlite":
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or sqlite, got %q", cfg.CacheBackend)
	}
	if !cfg.DateMax.After(cfg.DateMin) {
		return fmt.Errorf("dates.max %s must be after dates.min %s",
			cfg.DateMax.Format(models.DateLayout), cfg.DateMin.Format(models.DateLayout))
	}
	if cfg.DefaultStartDate.Before(cfg.DateMin) || cfg.DefaultEndDate.After(cfg.DateMax) ||
		!cfg.DefaultEndDate.After(cfg.DefaultStartDate) {
		return fmt.Errorf("default date range must lie inside the date window and end after it starts")
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be at most 100, got %d", cfg.DegradedErrorPct)
	}
	return nil
}
