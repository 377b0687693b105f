package series

import (
	"math"
	"time"

	"github.com/kjstillabower/mintemp-dashboard/internal/models"
)

// Rolling windows offered by the historical plot.
const (
	WeeklyWindow  = 7
	MonthlyWindow = 30
)

// Axis padding used by the historical plot.
const (
	xPadding      = 90 * 24 * time.Hour
	yPaddingBelow = 2.0
	yPaddingAbove = 15.0
)

// RollingMean returns the trailing mean over window values. Positions before
// the window fills, and windows containing NaN, are NaN.
func RollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	var sum float64
	var nans int
	for i, v := range values {
		if math.IsNaN(v) {
			nans++
		} else {
			sum += v
		}
		if i >= window {
			old := values[i-window]
			if math.IsNaN(old) {
				nans--
			} else {
				sum -= old
			}
		}
		if i < window-1 || nans > 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(window)
	}
	return out
}

// SplitByThreshold partitions points into those at or above threshold and
// those strictly below. NaN temperatures fall in neither.
func SplitByThreshold(points []models.DailyPoint, threshold float64) (atOrAbove, below []models.DailyPoint) {
	for _, p := range points {
		switch {
		case math.IsNaN(p.TemperatureMin):
		case p.TemperatureMin < threshold:
			below = append(below, p)
		default:
			atOrAbove = append(atOrAbove, p)
		}
	}
	return atOrAbove, below
}

// Extents bounds the plotting area.
type Extents struct {
	XMin time.Time `json:"xMin"`
	XMax time.Time `json:"xMax"`
	YMin float64   `json:"yMin"`
	YMax float64   `json:"yMax"`
}

// AxisExtents pads the date range by 90 days on each side and the
// temperature range by 2 below and 15 above. ok is false when the series
// has no finite temperature.
func AxisExtents(s models.DailySeries) (Extents, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range s.Points {
		if math.IsNaN(p.TemperatureMin) {
			continue
		}
		lo = math.Min(lo, p.TemperatureMin)
		hi = math.Max(hi, p.TemperatureMin)
	}
	if s.Len() == 0 || math.IsInf(lo, 1) {
		return Extents{}, false
	}
	return Extents{
		XMin: s.First().Add(-xPadding),
		XMax: s.Last().Add(xPadding),
		YMin: lo - yPaddingBelow,
		YMax: hi + yPaddingAbove,
	}, true
}
