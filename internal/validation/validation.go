package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ErrCityEmpty is returned when the city key is empty or whitespace-only after trim.
var ErrCityEmpty = errors.New("city is required")

// ErrCityTooLong is returned when the city key exceeds the maximum length.
var ErrCityTooLong = errors.New("city too long")

// ErrCityInvalidChars is returned when the city key contains disallowed characters.
var ErrCityInvalidChars = errors.New("city contains invalid characters")

// ErrCityFormat is returned when the key is not of the form "City, State".
var ErrCityFormat = errors.New(`city must be "City, State"`)

var validate = validator.New()

// ValidateCityKey trims the input, enforces maxLen (in runes) and the
// "City, State" shape, and restricts to letters (Unicode), digits, space,
// comma, hyphen, period and apostrophe. Table membership is checked by the
// location lookup, not here.
func ValidateCityKey(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCityEmpty
	}
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	city, state, ok := strings.Cut(s, ", ")
	if !ok || strings.TrimSpace(city) == "" || strings.TrimSpace(state) == "" {
		return "", ErrCityFormat
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

// Struct validates v against its `validate` tags. Field failures are
// flattened into one error naming each field and rule.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(parts, "; "))
}
