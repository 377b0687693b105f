package validation

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateCityKey_EmptyAndWhitespace(t *testing.T) {
	for _, in := range []string{"", "   ", "\t"} {
		if _, err := ValidateCityKey(in, 100); !errors.Is(err, ErrCityEmpty) {
			t.Errorf("ValidateCityKey(%q) error = %v, want ErrCityEmpty", in, err)
		}
	}
}

func TestValidateCityKey_TooLong(t *testing.T) {
	long := strings.Repeat("a", 95) + ", Ohio"
	if _, err := ValidateCityKey(long, 100); !errors.Is(err, ErrCityTooLong) {
		t.Errorf("error = %v, want ErrCityTooLong", err)
	}
}

func TestValidateCityKey_InvalidChars(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"slash", "Urb/ana, Illinois"},
		{"question", "Urbana?, Illinois"},
		{"hash", "Urbana#, Illinois"},
		{"control", "Urbana\x00, Illinois"},
		{"percent", "Urbana%, Illinois"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ValidateCityKey(tc.input, 100); !errors.Is(err, ErrCityInvalidChars) {
				t.Errorf("error = %v, want ErrCityInvalidChars", err)
			}
		})
	}
}

func TestValidateCityKey_Format(t *testing.T) {
	for _, in := range []string{"Urbana", "Urbana,Illinois", ", Illinois", "Urbana, "} {
		if _, err := ValidateCityKey(in, 100); err == nil {
			t.Errorf("ValidateCityKey(%q) expected error", in)
		}
	}
}

func TestValidateCityKey_Valid(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Urbana, Illinois", "Urbana, Illinois"},
		{"  St. Louis, Missouri  ", "St. Louis, Missouri"},
		{"Coeur d'Alene, Idaho", "Coeur d'Alene, Idaho"},
		{"Winston-Salem, North Carolina", "Winston-Salem, North Carolina"},
		{"Cañon City, Colorado", "Cañon City, Colorado"},
	}
	for _, tc := range tests {
		got, err := ValidateCityKey(tc.input, 100)
		if err != nil {
			t.Errorf("ValidateCityKey(%q) error = %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ValidateCityKey(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

type dateRange struct {
	Start time.Time `validate:"required"`
	End   time.Time `validate:"required,gtfield=Start"`
	Years int       `validate:"gte=1,lte=5"`
}

func TestStruct(t *testing.T) {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := Struct(dateRange{Start: start, End: start.AddDate(1, 0, 0), Years: 1}); err != nil {
		t.Errorf("Struct(valid) error = %v", err)
	}
	err := Struct(dateRange{Start: start, End: start, Years: 9})
	if err == nil {
		t.Fatal("Struct(invalid) expected error")
	}
	if !strings.Contains(err.Error(), "End failed gtfield=Start") || !strings.Contains(err.Error(), "Years failed lte=5") {
		t.Errorf("Struct() error = %q", err)
	}
}
