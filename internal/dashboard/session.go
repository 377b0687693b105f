// Package dashboard holds per-session state: the current query, the
// normalized history, the fetch error state and the memoized forecast.
// Every view is a function of that state and checks the error state first.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/mintemp-dashboard/internal/forecast"
	"github.com/kjstillabower/mintemp-dashboard/internal/models"
	"github.com/kjstillabower/mintemp-dashboard/internal/observability"
	"github.com/kjstillabower/mintemp-dashboard/internal/series"
)

var (
	// ErrNoData is returned by views before the first successful fetch.
	ErrNoData = errors.New("no data loaded")
	// ErrFetchFailed matches the StateError every view returns while the
	// session error state is set.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrSuperseded is returned by ApplyQuery when a newer query started
	// before this one finished; its result was discarded.
	ErrSuperseded = errors.New("superseded by a newer query")
)

// StateError carries the stored fetch failure. errors.Is(err, ErrFetchFailed) holds.
type StateError struct {
	Err error
}

func (e *StateError) Error() string { return e.Err.Error() }

func (e *StateError) Unwrap() error { return e.Err }

func (e *StateError) Is(target error) bool { return target == ErrFetchFailed }

// Fetcher returns archive responses.
type Fetcher interface {
	Fetch(ctx context.Context, q models.WeatherQuery) (models.ProviderResponse, error)
}

// Locator resolves "City, State" keys.
type Locator interface {
	Lookup(cityState string) (lat, lng float64, err error)
}

// ForecastRunner produces forecasts for eligible histories.
type ForecastRunner interface {
	Forecast(ctx context.Context, s models.DailySeries, cfg forecast.Config) (models.ForecastSeries, error)
}

// Deps are the collaborators shared by all sessions.
type Deps struct {
	Fetcher    Fetcher
	Locations  Locator
	Forecaster ForecastRunner
}

// Query is the input that triggers a fetch.
type Query struct {
	City      string
	StartDate time.Time
	EndDate   time.Time
	Unit      models.Unit
}

// Session is one user's dashboard state. Safe for concurrent use; the last
// started query wins.
type Session struct {
	ID      string
	Created time.Time

	deps Deps

	mu     sync.Mutex
	gen    uint64
	query  Query
	loaded Query
	series *models.DailySeries
	err    error

	fcfg    forecast.Config
	fcGen   uint64
	fcMemo  *models.ForecastSeries
	fcMemoG uint64
}

// NewSession returns an empty session with the default forecast config.
func NewSession(id string, deps Deps) *Session {
	return &Session{
		ID:      id,
		Created: time.Now(),
		deps:    deps,
		fcfg:    forecast.DefaultConfig(),
	}
}

// ApplyQuery resolves the city, fetches and normalizes the history and
// commits it, replacing the previous history wholesale. Any failure is
// stored as the session error state and returned. A result that finishes
// after a newer ApplyQuery started is discarded with ErrSuperseded.
func (s *Session) ApplyQuery(ctx context.Context, q Query) error {
	logger := observability.LoggerFromContext(ctx).With(zap.String("session_id", s.ID))

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.query = q
	s.mu.Unlock()

	hist, err := s.load(ctx, q)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		observability.StaleFetchDiscardedTotal.Inc()
		logger.Warn("discarding superseded fetch", zap.Uint64("generation", gen), zap.Uint64("current", s.gen))
		return ErrSuperseded
	}
	s.fcGen++
	if err != nil {
		s.err = err
		s.series = nil
		logger.Info("session fetch failed", zap.String("city", q.City), zap.Error(err))
		return err
	}
	s.err = nil
	s.series = &hist
	s.loaded = q
	logger.Info("session history loaded",
		zap.String("city", q.City),
		zap.String("start_date", q.StartDate.Format(models.DateLayout)),
		zap.String("end_date", q.EndDate.Format(models.DateLayout)),
		zap.String("unit", string(q.Unit)),
		zap.Int("days", hist.Len()))
	return nil
}

func (s *Session) load(ctx context.Context, q Query) (models.DailySeries, error) {
	lat, lng, err := s.deps.Locations.Lookup(q.City)
	if err != nil {
		return models.DailySeries{}, err
	}
	resp, err := s.deps.Fetcher.Fetch(ctx, models.WeatherQuery{
		Latitude:  lat,
		Longitude: lng,
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
		Unit:      q.Unit,
	})
	if err != nil {
		return models.DailySeries{}, err
	}
	return series.Normalize(resp)
}

// SetForecastConfig replaces the trend and horizon and drops the memoized forecast.
func (s *Session) SetForecastConfig(trend forecast.Trend, horizonYears int) error {
	if trend != forecast.Flat && trend != forecast.Linear {
		return fmt.Errorf("unknown trend %q", trend)
	}
	if horizonYears < 1 {
		return fmt.Errorf("horizon must be at least one year, got %d", horizonYears)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fcfg.Trend = trend
	s.fcfg.HorizonYears = horizonYears
	s.fcGen++
	return nil
}

// Query returns the last query started on this session.
func (s *Session) Query() Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// ForecastConfig returns the current forecast config.
func (s *Session) ForecastConfig() forecast.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fcfg
}

// Unit returns the unit of the loaded history, falling back to the last
// started query before anything has loaded.
func (s *Session) Unit() models.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.series != nil {
		return s.loaded.Unit
	}
	if s.query.Unit != "" {
		return s.query.Unit
	}
	return models.Fahrenheit
}

// Err returns the stored fetch failure, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// history returns the committed history and unit, or the state error.
func (s *Session) history() (models.DailySeries, models.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyLocked()
}

func (s *Session) historyLocked() (models.DailySeries, models.Unit, error) {
	if s.err != nil {
		return models.DailySeries{}, "", &StateError{Err: s.err}
	}
	if s.series == nil {
		return models.DailySeries{}, "", ErrNoData
	}
	return *s.series, s.loaded.Unit, nil
}
