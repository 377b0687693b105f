// Package forecast extends a daily minimum-temperature history with an
// additive trend plus seasonality model and a prediction interval.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/mintemp-dashboard/internal/models"
	"github.com/kjstillabower/mintemp-dashboard/internal/observability"
)

var (
	// ErrMalformedForecast means the model returned bounds out of order.
	ErrMalformedForecast = errors.New("malformed forecast")
	// ErrInsufficientHistory means the history spans less than MinHistory.
	ErrInsufficientHistory = errors.New("insufficient history for forecast")
)

// Trend is the long-term growth shape of the model.
type Trend string

const (
	Flat   Trend = "flat"
	Linear Trend = "linear"
)

// ParseTrend accepts "flat" or "linear"; empty means flat.
func ParseTrend(s string) (Trend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "flat":
		return Flat, nil
	case "linear":
		return Linear, nil
	}
	return "", fmt.Errorf("unknown trend %q", s)
}

const (
	// DaysPerYear is the horizon unit: Y years forecast 365*Y days.
	DaysPerYear = 365
	// DefaultConfidence is the prediction interval width.
	DefaultConfidence = 0.95
	// MinHistory is the span last-first a history needs before it is forecast.
	MinHistory = DaysPerYear * 24 * time.Hour
)

const day = 24 * time.Hour

// Config selects the trend shape, horizon and interval width.
type Config struct {
	Trend        Trend
	HorizonYears int
	Confidence   float64
}

// DefaultConfig is a flat one-year forecast at 95%.
func DefaultConfig() Config {
	return Config{Trend: Flat, HorizonYears: 1, Confidence: DefaultConfidence}
}

func (c Config) validate() error {
	if c.Trend != Flat && c.Trend != Linear {
		return fmt.Errorf("unknown trend %q", c.Trend)
	}
	if c.HorizonYears < 1 {
		return fmt.Errorf("horizon must be at least one year, got %d", c.HorizonYears)
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		return fmt.Errorf("confidence must be in (0, 1), got %v", c.Confidence)
	}
	return nil
}

// Eligible reports whether the history is long enough to forecast.
// A series of 365 consecutive days spans 364 days and is not.
func Eligible(s models.DailySeries) bool {
	return s.Span() >= MinHistory
}

// Estimate is one predicted value with its interval.
type Estimate struct {
	Yhat  float64
	Lower float64
	Upper float64
}

// Model is a curve fitter on zone-less timestamps. Predict returns one
// estimate per input date.
type Model interface {
	Fit(ds []time.Time, y []float64) error
	Predict(ds []time.Time) ([]Estimate, error)
}

// ModelFactory builds a fresh model for one forecast.
type ModelFactory func(cfg Config) Model

// Forecaster runs a model over a history and keeps the future rows.
type Forecaster struct {
	newModel ModelFactory
}

// New returns a Forecaster backed by AdditiveModel.
func New() *Forecaster {
	return &Forecaster{newModel: func(cfg Config) Model {
		return NewAdditiveModel(cfg.Trend, cfg.Confidence)
	}}
}

// NewWithModel returns a Forecaster using a custom model factory.
func NewWithModel(factory ModelFactory) *Forecaster {
	return &Forecaster{newModel: factory}
}

// Forecast fits the model on the history and predicts daily from the first
// historical date through last+365*HorizonYears, returning only dates after
// the last historical date. Histories that are not Eligible return
// ErrInsufficientHistory without invoking the model.
func (f *Forecaster) Forecast(ctx context.Context, s models.DailySeries, cfg Config) (models.ForecastSeries, error) {
	logger := observability.LoggerFromContext(ctx)
	if err := cfg.validate(); err != nil {
		return models.ForecastSeries{}, err
	}
	if !Eligible(s) {
		observability.ForecastGatedTotal.Inc()
		return models.ForecastSeries{}, fmt.Errorf("%w: span %s", ErrInsufficientHistory, s.Span())
	}
	if err := ctx.Err(); err != nil {
		return models.ForecastSeries{}, err
	}

	start := time.Now()
	ds := make([]time.Time, 0, s.Len())
	y := make([]float64, 0, s.Len())
	for _, p := range s.Points {
		if math.IsNaN(p.TemperatureMin) {
			continue
		}
		ds = append(ds, StripZone(p.Date))
		y = append(y, p.TemperatureMin)
	}

	model := f.newModel(cfg)
	if err := model.Fit(ds, y); err != nil {
		return models.ForecastSeries{}, fmt.Errorf("fit forecast model: %w", err)
	}

	first := StripZone(s.First())
	last := StripZone(s.Last())
	horizonDays := DaysPerYear * cfg.HorizonYears
	future := DailyRange(first, last.Add(time.Duration(horizonDays)*day))

	est, err := model.Predict(future)
	if err != nil {
		return models.ForecastSeries{}, fmt.Errorf("predict forecast: %w", err)
	}
	if len(est) != len(future) {
		return models.ForecastSeries{}, fmt.Errorf("%w: %d estimates for %d dates", ErrMalformedForecast, len(est), len(future))
	}

	out := models.ForecastSeries{
		Points:     make([]models.ForecastPoint, 0, horizonDays),
		Trend:      string(cfg.Trend),
		Horizon:    cfg.HorizonYears,
		Confidence: cfg.Confidence,
	}
	for i, d := range future {
		if !d.After(last) {
			continue
		}
		e := est[i]
		if !(e.Lower <= e.Yhat && e.Yhat <= e.Upper) {
			return models.ForecastSeries{}, fmt.Errorf("%w: %s lower=%v yhat=%v upper=%v",
				ErrMalformedForecast, d.Format(models.DateLayout), e.Lower, e.Yhat, e.Upper)
		}
		out.Points = append(out.Points, models.ForecastPoint{
			Date:          d,
			PointEstimate: e.Yhat,
			LowerBound:    e.Lower,
			UpperBound:    e.Upper,
		})
	}

	elapsed := time.Since(start)
	observability.ForecastDuration.WithLabelValues(string(cfg.Trend)).Observe(elapsed.Seconds())
	logger.Debug("forecast computed",
		zap.String("trend", string(cfg.Trend)),
		zap.Int("horizon_years", cfg.HorizonYears),
		zap.Int("history_days", s.Len()),
		zap.Int("forecast_days", out.Len()),
		zap.Duration("duration", elapsed))
	return out, nil
}

// StripZone re-expresses t's wall clock in UTC, dropping its zone offset.
func StripZone(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// DailyRange returns every day from first through last inclusive.
func DailyRange(first, last time.Time) []time.Time {
	if last.Before(first) {
		return nil
	}
	n := int(last.Sub(first)/day) + 1
	out := make([]time.Time, n)
	for i := range out {
		out[i] = first.Add(time.Duration(i) * day)
	}
	return out
}
