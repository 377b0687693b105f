package locations

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kjstillabower/mintemp-dashboard/internal/models"
)

// MinPopulation is the exclusive population cutoff for the city table.
const MinPopulation = 10000

// Build reads a raw cities CSV (city, state_name, population, lat, lng and
// any other columns), keeps cities with population above MinPopulation and
// returns one record per "City, State" key. The last occurrence of a key wins.
// Output order follows first appearance of each key.
func Build(r io.Reader) ([]models.LocationRecord, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read raw header: %w", err)
	}
	cols, err := columnIndex(header, "city", "state_name", "population", "lat", "lng")
	if err != nil {
		return nil, err
	}

	order := make([]string, 0)
	byKey := make(map[string]models.LocationRecord)
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read raw row %d: %w", line, err)
		}
		pop, err := strconv.ParseFloat(strings.TrimSpace(row[cols["population"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse population on row %d: %w", line, err)
		}
		if pop <= MinPopulation {
			continue
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(row[cols["lat"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse lat on row %d: %w", line, err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(row[cols["lng"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse lng on row %d: %w", line, err)
		}
		key := Key(row[cols["city"]], row[cols["state_name"]])
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = models.LocationRecord{CityState: key, Latitude: lat, Longitude: lng}
	}

	out := make([]models.LocationRecord, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out, nil
}

// Key builds the lookup key for a city.
func Key(city, stateName string) string {
	return city + ", " + stateName
}

// Write emits records as a location table CSV.
func Write(w io.Writer, records []models.LocationRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"city_state", "lat", "lng"}); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.CityState,
			strconv.FormatFloat(r.Latitude, 'f', -1, 64),
			strconv.FormatFloat(r.Longitude, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
