package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/flux/internal/constants"
)

// LoadLocation loads a timezone location from an IANA timezone name.
// If the timezone is "Local" or empty, it returns the system's local timezone.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" || timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(timezone)
}

// ValidateTimezone checks if the timezone name is valid.
func ValidateTimezone(timezone string) bool {
	_, err := LoadLocation(timezone)
	return err == nil
}

// Layouts accepted for ISO-8601 instants that carry a date but no offset.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// Layouts accepted for ISO-8601 instants with an offset.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
}

// ParseISO parses an ISO-8601 instant. A value without a date component is
// placed on the current date of now; a value without an offset is read in
// now's location.
func ParseISO(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}

	if !strings.Contains(value, "T") && !hasDate(value) {
		value = now.Format(constants.DateFormat) + "T" + value
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, now.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 time %q", value)
}

// hasDate reports whether value starts with a YYYY-MM-DD date.
func hasDate(value string) bool {
	if len(value) < 10 || value[4] != '-' || value[7] != '-' {
		return false
	}
	for _, i := range []int{0, 1, 2, 3, 5, 6, 8, 9} {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	return true
}

// CeilTo rounds t up to the next multiple of d. Values already on a boundary
// are returned unchanged.
func CeilTo(t time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return t
	}
	floor := t.Truncate(d)
	if floor.Equal(t) {
		return t
	}
	return floor.Add(d)
}

// FormatClock renders t as HH:MM in its own location.
func FormatClock(t time.Time) string {
	return t.Format(constants.TimeFormat)
}
