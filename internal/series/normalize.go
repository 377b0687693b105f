// Package series turns archive responses into daily series and derives the
// arrays the historical plot draws.
package series

import (
	"errors"
	"fmt"
	"time"

	"github.com/kjstillabower/mintemp-dashboard/internal/models"
)

// ErrMalformedResponse is returned when the payload shape does not match its time axis.
var ErrMalformedResponse = errors.New("malformed response")

// DayInterval is the only interval the archive returns for daily variables.
const DayInterval = int64(24 * 60 * 60)

// Normalize rebuilds the half-open date axis [TimeStart, TimeEnd) stepping by
// IntervalSeconds and pairs each date with its value in provider order.
// The response coordinates are carried as-is; they are grid-snapped and
// usually differ from the query coordinates.
func Normalize(resp models.ProviderResponse) (models.DailySeries, error) {
	d := resp.Daily
	if d.IntervalSeconds <= 0 {
		return models.DailySeries{}, fmt.Errorf("%w: interval %d seconds", ErrMalformedResponse, d.IntervalSeconds)
	}
	if d.TimeEnd < d.TimeStart {
		return models.DailySeries{}, fmt.Errorf("%w: time_end %d before time_start %d", ErrMalformedResponse, d.TimeEnd, d.TimeStart)
	}

	n := AxisLength(d.TimeStart, d.TimeEnd, d.IntervalSeconds)
	if len(d.Values) != n {
		return models.DailySeries{}, fmt.Errorf("%w: %d values for a %d-step time axis", ErrMalformedResponse, len(d.Values), n)
	}

	points := make([]models.DailyPoint, n)
	for i := 0; i < n; i++ {
		ts := d.TimeStart + int64(i)*d.IntervalSeconds
		points[i] = models.DailyPoint{
			Date:           time.Unix(ts, 0).UTC(),
			TemperatureMin: d.Values[i],
		}
	}
	return models.DailySeries{
		Points:    points,
		Latitude:  resp.Latitude,
		Longitude: resp.Longitude,
	}, nil
}

// AxisLength is the number of steps in [start, end) at the given interval.
func AxisLength(start, end, interval int64) int {
	if interval <= 0 || end <= start {
		return 0
	}
	return int((end - start + interval - 1) / interval)
}
