package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used on the wire and in query params.
const DateLayout = "2006-01-02"

// Unit is the temperature unit requested from the archive provider.
type Unit string

const (
	Fahrenheit Unit = "fahrenheit"
	Celsius    Unit = "celsius"
)

// ParseUnit accepts "fahrenheit"/"celsius" and the short forms "f"/"c".
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "f", "fahrenheit":
		return Fahrenheit, nil
	case "c", "celsius":
		return Celsius, nil
	}
	return "", fmt.Errorf("unknown temperature unit %q", s)
}

// Symbol returns the display suffix for axis labels.
func (u Unit) Symbol() string {
	if u == Celsius {
		return "°C"
	}
	return "°F"
}

// LocationRecord is one row of the precomputed city table.
type LocationRecord struct {
	CityState string  `json:"cityState"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// WeatherQuery describes one archive request. EndDate is inclusive on the
// provider side.
type WeatherQuery struct {
	Latitude  float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64   `json:"longitude" validate:"gte=-180,lte=180"`
	StartDate time.Time `json:"startDate" validate:"required"`
	EndDate   time.Time `json:"endDate" validate:"required,gtfield=StartDate"`
	Unit      Unit      `json:"unit" validate:"oneof=fahrenheit celsius"`
}

// CacheKey identifies the query for response caching. Coordinates are
// rounded to 4 decimals, which is finer than the provider's grid.
func (q WeatherQuery) CacheKey() string {
	return fmt.Sprintf("archive:%.4f:%.4f:%s:%s:%s",
		q.Latitude, q.Longitude,
		q.StartDate.Format(DateLayout), q.EndDate.Format(DateLayout),
		q.Unit)
}

// ProviderResponse is the archive payload reduced to the parts the
// normalizer needs. Values may contain NaN for missing observations.
type ProviderResponse struct {
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Daily     DailyVariable `json:"daily"`
	FetchedAt time.Time     `json:"fetchedAt"`
}

// DailyVariable holds one daily variable on a regular time axis.
// TimeEnd is exclusive.
type DailyVariable struct {
	TimeStart       int64     `json:"timeStart"`
	TimeEnd         int64     `json:"timeEnd"`
	IntervalSeconds int64     `json:"intervalSeconds"`
	Values          []float64 `json:"values"`
}

type dailyVariableJSON struct {
	TimeStart       int64      `json:"timeStart"`
	TimeEnd         int64      `json:"timeEnd"`
	IntervalSeconds int64      `json:"intervalSeconds"`
	Values          []*float64 `json:"values"`
}

// MarshalJSON encodes NaN values as null; encoding/json rejects NaN.
func (d DailyVariable) MarshalJSON() ([]byte, error) {
	out := dailyVariableJSON{
		TimeStart:       d.TimeStart,
		TimeEnd:         d.TimeEnd,
		IntervalSeconds: d.IntervalSeconds,
		Values:          NullableFloats(d.Values),
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes null values as NaN.
func (d *DailyVariable) UnmarshalJSON(b []byte) error {
	var in dailyVariableJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	d.TimeStart = in.TimeStart
	d.TimeEnd = in.TimeEnd
	d.IntervalSeconds = in.IntervalSeconds
	d.Values = make([]float64, len(in.Values))
	for i, v := range in.Values {
		if v == nil {
			d.Values[i] = math.NaN()
			continue
		}
		d.Values[i] = *v
	}
	return nil
}

// Nullable returns nil for NaN so the value encodes as JSON null.
func Nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// NullableFloats maps Nullable over vs.
func NullableFloats(vs []float64) []*float64 {
	out := make([]*float64, len(vs))
	for i, v := range vs {
		out[i] = Nullable(v)
	}
	return out
}
