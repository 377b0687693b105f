package dashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/kjstillabower/mintemp-dashboard/internal/forecast"
	"github.com/kjstillabower/mintemp-dashboard/internal/models"
	"github.com/kjstillabower/mintemp-dashboard/internal/series"
	"github.com/kjstillabower/mintemp-dashboard/internal/summary"
)

// Coordinates is the grid point the archive answered for.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Label     string  `json:"label"`
}

// RollingMean is one trailing-average line of the historical plot.
type RollingMean struct {
	Window int
	Values []float64
}

// HistoricalView is the data behind the historical plot.
type HistoricalView struct {
	Unit      models.Unit
	Threshold float64
	AtOrAbove []models.DailyPoint
	Below     []models.DailyPoint
	Points    []models.DailyPoint // rolling means align with these
	Rolling   []RollingMean
	Extents   series.Extents
	HasExtent bool
}

// ForecastView is the data behind the forecast plot. Eligible is false when
// the history is too short; Series is empty then.
type ForecastView struct {
	Unit      models.Unit
	Threshold float64
	Eligible  bool
	Series    models.ForecastSeries
}

// FormatCoordinates renders the coordinates label.
func FormatCoordinates(lat, lng float64) string {
	return fmt.Sprintf("%.4f°N, %.4f°E", lat, lng)
}

// Coordinates returns the response coordinates of the loaded history.
func (s *Session) Coordinates() (Coordinates, error) {
	hist, _, err := s.history()
	if err != nil {
		return Coordinates{}, err
	}
	return Coordinates{
		Latitude:  hist.Latitude,
		Longitude: hist.Longitude,
		Label:     FormatCoordinates(hist.Latitude, hist.Longitude),
	}, nil
}

// Historical splits the history around threshold and adds the requested
// rolling means. windows must be positive.
func (s *Session) Historical(threshold float64, windows []int) (HistoricalView, error) {
	hist, unit, err := s.history()
	if err != nil {
		return HistoricalView{}, err
	}
	for _, w := range windows {
		if w <= 0 {
			return HistoricalView{}, fmt.Errorf("rolling window must be positive, got %d", w)
		}
	}
	above, below := series.SplitByThreshold(hist.Points, threshold)
	view := HistoricalView{
		Unit:      unit,
		Threshold: threshold,
		AtOrAbove: above,
		Below:     below,
		Points:    hist.Points,
	}
	temps := hist.Temperatures()
	for _, w := range windows {
		view.Rolling = append(view.Rolling, RollingMean{Window: w, Values: series.RollingMean(temps, w)})
	}
	view.Extents, view.HasExtent = series.AxisExtents(hist)
	return view, nil
}

// HistoricalTable thresholds the daily minimum over low..high.
func (s *Session) HistoricalTable(low, high int) (models.ThresholdTable, error) {
	hist, _, err := s.history()
	if err != nil {
		return models.ThresholdTable{}, err
	}
	return summary.Historical(hist, low, high), nil
}

// Forecast returns the forecast for the loaded history and current config,
// computing it at most once per history and config.
func (s *Session) Forecast(ctx context.Context, threshold float64) (ForecastView, error) {
	fc, unit, eligible, err := s.forecast(ctx)
	if err != nil {
		return ForecastView{}, err
	}
	return ForecastView{Unit: unit, Threshold: threshold, Eligible: eligible, Series: fc}, nil
}

// ForecastTable thresholds the forecast lower bound over low..high. The
// table is empty when the history is too short to forecast.
func (s *Session) ForecastTable(ctx context.Context, low, high int) (models.ThresholdTable, bool, error) {
	fc, _, eligible, err := s.forecast(ctx)
	if err != nil {
		return models.ThresholdTable{}, false, err
	}
	if !eligible {
		return models.ThresholdTable{}, false, nil
	}
	return summary.Forecast(fc, low, high), true, nil
}

func (s *Session) forecast(ctx context.Context) (models.ForecastSeries, models.Unit, bool, error) {
	s.mu.Lock()
	hist, unit, err := s.historyLocked()
	if err != nil {
		s.mu.Unlock()
		return models.ForecastSeries{}, "", false, err
	}
	if !forecast.Eligible(hist) {
		s.mu.Unlock()
		return models.ForecastSeries{}, unit, false, nil
	}
	if s.fcMemo != nil && s.fcMemoG == s.fcGen {
		fc := *s.fcMemo
		s.mu.Unlock()
		return fc, unit, true, nil
	}
	cfg := s.fcfg
	gen := s.fcGen
	s.mu.Unlock()

	fc, err := s.deps.Forecaster.Forecast(ctx, hist, cfg)
	if errors.Is(err, forecast.ErrInsufficientHistory) {
		return models.ForecastSeries{}, unit, false, nil
	}
	if err != nil {
		return models.ForecastSeries{}, "", false, err
	}

	s.mu.Lock()
	if gen == s.fcGen {
		s.fcMemo = &fc
		s.fcMemoG = gen
	}
	s.mu.Unlock()
	return fc, unit, true, nil
}
