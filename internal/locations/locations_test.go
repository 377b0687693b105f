package locations

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const rawCities = `city,city_ascii,state_id,state_name,population,lat,lng
Urbana,Urbana,IL,Illinois,42461,40.1106,-88.1972
Tiny,Tiny,IL,Illinois,900,40.0,-88.0
Springfield,Springfield,IL,Illinois,114394,39.7710,-89.6537
Springfield,Springfield,MO,Missouri,169176,37.1943,-93.2915
Springfield,Springfield,IL,Illinois,20000,39.9,-89.9
Cutoff,Cutoff,IL,Illinois,10000,41.0,-87.0
`

func TestBuild_FiltersAndDeduplicates(t *testing.T) {
	records, err := Build(strings.NewReader(rawCities))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Build() returned %d records, want 3: %+v", len(records), records)
	}
	want := []string{"Urbana, Illinois", "Springfield, Illinois", "Springfield, Missouri"}
	for i, w := range want {
		if records[i].CityState != w {
			t.Errorf("records[%d].CityState = %q, want %q", i, records[i].CityState, w)
		}
	}
	// last write wins for the duplicated key
	if records[1].Latitude != 39.9 || records[1].Longitude != -89.9 {
		t.Errorf("Springfield, Illinois = (%v, %v), want (39.9, -89.9)", records[1].Latitude, records[1].Longitude)
	}
}

func TestBuild_MissingColumn(t *testing.T) {
	_, err := Build(strings.NewReader("city,state_name,lat,lng\nA,B,1,2\n"))
	if err == nil || !strings.Contains(err.Error(), "population") {
		t.Fatalf("Build() error = %v, want missing population column", err)
	}
}

func TestWriteLoad_PreservesCoordinates(t *testing.T) {
	records, err := Build(strings.NewReader(rawCities))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	var buf bytes.Buffer
	if err := Write(&buf, records); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	table, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	lat, lng, err := table.Lookup("Urbana, Illinois")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if lat != 40.1106 || lng != -88.1972 {
		t.Errorf("Lookup() = (%v, %v), want (40.1106, -88.1972)", lat, lng)
	}
	if table.Len() != 3 {
		t.Errorf("Len() = %d, want 3", table.Len())
	}
}

func TestLookup_NotFound(t *testing.T) {
	table := NewTable(nil)
	_, _, err := table.Lookup("Nowhere, Nevada")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup() error = %v, want ErrNotFound", err)
	}
	if _, err := table.Record("Nowhere, Nevada"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Record() error = %v, want ErrNotFound", err)
	}
}

func TestLoad_Keys(t *testing.T) {
	csv := "city_state,lat,lng\n\"Urbana, Illinois\",40.1106,-88.1972\n\"Austin, Texas\",30.3004,-97.7522\n"
	table, err := Load(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	keys := table.Keys()
	if len(keys) != 2 || keys[0] != "Austin, Texas" || keys[1] != "Urbana, Illinois" {
		t.Errorf("Keys() = %v, want sorted", keys)
	}
}

func TestLoad_BadLatitude(t *testing.T) {
	_, err := Load(strings.NewReader("city_state,lat,lng\nX,abc,1\n"))
	if err == nil {
		t.Fatal("Load() expected error for unparsable lat")
	}
}

func TestBuild_HeaderWithByteOrderMark(t *testing.T) {
	raw := "\uFEFFcity,state_name,population,lat,lng\nUrbana,Illinois,42461,40.1106,-88.1972\n"
	records, err := Build(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(records) != 1 || records[0].CityState != "Urbana, Illinois" {
		t.Errorf("Build() = %+v, want Urbana, Illinois", records)
	}
}
