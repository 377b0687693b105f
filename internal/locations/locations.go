// Package locations maps "City, State" keys to coordinates using the
// precomputed city table.
package locations

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/kjstillabower/mintemp-dashboard/internal/models"
)

// ErrNotFound is returned when a city key is not in the table.
var ErrNotFound = errors.New("location not found")

// Table is a read-only city lookup. Safe for concurrent use once loaded.
type Table struct {
	records map[string]models.LocationRecord
	keys    []string
}

// NewTable builds a table from records. Later duplicates replace earlier ones.
func NewTable(records []models.LocationRecord) *Table {
	t := &Table{records: make(map[string]models.LocationRecord, len(records))}
	for _, r := range records {
		t.records[r.CityState] = r
	}
	t.keys = make([]string, 0, len(t.records))
	for k := range t.records {
		t.keys = append(t.keys, k)
	}
	sort.Strings(t.keys)
	return t
}

// LoadFile reads a location table CSV from path.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open location table: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a location table CSV with columns city_state, lat, lng.
func Load(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read location header: %w", err)
	}
	cols, err := columnIndex(header, "city_state", "lat", "lng")
	if err != nil {
		return nil, err
	}

	var records []models.LocationRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read location row %d: %w", line, err)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(row[cols["lat"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse lat on row %d: %w", line, err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(row[cols["lng"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse lng on row %d: %w", line, err)
		}
		records = append(records, models.LocationRecord{
			CityState: row[cols["city_state"]],
			Latitude:  lat,
			Longitude: lng,
		})
	}
	return NewTable(records), nil
}

// Lookup returns the coordinates for cityState.
func (t *Table) Lookup(cityState string) (lat, lng float64, err error) {
	r, ok := t.records[cityState]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrNotFound, cityState)
	}
	return r.Latitude, r.Longitude, nil
}

// Record returns the full record for cityState.
func (t *Table) Record(cityState string) (models.LocationRecord, error) {
	r, ok := t.records[cityState]
	if !ok {
		return models.LocationRecord{}, fmt.Errorf("%w: %q", ErrNotFound, cityState)
	}
	return r, nil
}

// Keys returns all city keys in sorted order.
func (t *Table) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Len returns the number of distinct keys.
func (t *Table) Len() int { return len(t.records) }

func columnIndex(header []string, names ...string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))] = i
	}
	out := make(map[string]int, len(names))
	for _, n := range names {
		i, ok := idx[n]
		if !ok {
			return nil, fmt.Errorf("missing column %q", n)
		}
		out[n] = i
	}
	return out, nil
}
