package models

import "time"

// DailyPoint is one day of a historical series.
type DailyPoint struct {
	Date           time.Time `json:"date"`
	TemperatureMin float64   `json:"temperatureMin"`
}

// DailySeries is a gapless, strictly increasing daily series plus the
// grid-snapped coordinates the provider answered for.
type DailySeries struct {
	Points    []DailyPoint `json:"points"`
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
}

// Len returns the number of days in the series.
func (s DailySeries) Len() int { return len(s.Points) }

// First returns the first date, or the zero time for an empty series.
func (s DailySeries) First() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[0].Date
}

// Last returns the last date, or the zero time for an empty series.
func (s DailySeries) Last() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[len(s.Points)-1].Date
}

// Span is the distance between the first and last date.
func (s DailySeries) Span() time.Duration {
	if len(s.Points) < 2 {
		return 0
	}
	return s.Last().Sub(s.First())
}

// Temperatures returns the temperature column.
func (s DailySeries) Temperatures() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.TemperatureMin
	}
	return out
}

// ForecastPoint is one forecast day with its prediction interval.
type ForecastPoint struct {
	Date          time.Time `json:"date"`
	PointEstimate float64   `json:"pointEstimate"`
	LowerBound    float64   `json:"lowerBound"`
	UpperBound    float64   `json:"upperBound"`
}

// ForecastSeries holds forecast rows dated strictly after the history.
type ForecastSeries struct {
	Points     []ForecastPoint `json:"points"`
	Trend      string          `json:"trend"`
	Horizon    int             `json:"horizonYears"`
	Confidence float64         `json:"confidence"`
}

// Len returns the number of forecast days.
func (s ForecastSeries) Len() int { return len(s.Points) }

// ThresholdRow is one line of a threshold table. Proportion is exact;
// Display is the rounded string shown in tables.
type ThresholdRow struct {
	Temperature int     `json:"temp"`
	DaysBelow   int     `json:"daysBelow"`
	Proportion  float64 `json:"proportionBelow"`
	Display     string  `json:"proportionDisplay"`
}

// ThresholdTable is ordered by temperature descending.
type ThresholdTable struct {
	Rows      []ThresholdRow `json:"rows"`
	TotalDays int            `json:"totalDays"`
}
