// Package summary counts days below each integer temperature of a range.
package summary

import (
	"strconv"
	"strings"

	"github.com/kjstillabower/mintemp-dashboard/internal/models"
)

// Field picks the scalar a row is compared against.
type Field func(i int) float64

// Summarize builds the table for thresholds low..high inclusive, ordered by
// temperature descending. A row counts toward days_below when field(i) < t,
// so NaN never counts; it still counts toward the total. low > high yields
// an empty table.
func Summarize(total int, field Field, low, high int) models.ThresholdTable {
	table := models.ThresholdTable{TotalDays: total}
	if low > high {
		return table
	}

	table.Rows = make([]models.ThresholdRow, 0, high-low+1)
	for t := high; t >= low; t-- {
		thr := float64(t)
		below := 0
		for i := 0; i < total; i++ {
			if field(i) < thr {
				below++
			}
		}
		var p float64
		if total > 0 {
			p = float64(below) / float64(total)
		}
		table.Rows = append(table.Rows, models.ThresholdRow{
			Temperature: t,
			DaysBelow:   below,
			Proportion:  p,
			Display:     FormatProportion(p),
		})
	}
	return table
}

// Historical thresholds the daily minimum temperature.
func Historical(s models.DailySeries, low, high int) models.ThresholdTable {
	return Summarize(s.Len(), func(i int) float64 { return s.Points[i].TemperatureMin }, low, high)
}

// Forecast thresholds the lower bound, the worst case of the interval.
func Forecast(s models.ForecastSeries, low, high int) models.ThresholdTable {
	return Summarize(s.Len(), func(i int) float64 { return s.Points[i].LowerBound }, low, high)
}

// FormatProportion rounds to 3 decimals and trims trailing zeros and the point.
func FormatProportion(p float64) string {
	s := strconv.FormatFloat(p, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
