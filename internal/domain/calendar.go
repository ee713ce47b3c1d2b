package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AcademicYear returns the Aug-Jul cycle label for a month, e.g. March 2025 -> "2024-2025".
func AcademicYear(month time.Month, year int) string {
	if month >= time.August {
		return fmt.Sprintf("%d-%d", year, year+1)
	}
	return fmt.Sprintf("%d-%d", year-1, year)
}

// ParseMonth accepts a month name ("March"), a three-letter abbreviation ("mar") or a number ("3").
func ParseMonth(raw string) (time.Month, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, NewValidationError("month", "month is required")
	}
	if n, err := strconv.Atoi(value); err == nil {
		if n < 1 || n > 12 {
			return 0, NewValidationError("month", "month must be between 1 and 12")
		}
		return time.Month(n), nil
	}
	lower := strings.ToLower(value)
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		if lower == name || (len(lower) == 3 && strings.HasPrefix(name, lower)) {
			return m, nil
		}
	}
	return 0, NewValidationError("month", fmt.Sprintf("unknown month %q", raw))
}

// EndOfMonth is the last instant of the given month in loc.
func EndOfMonth(month time.Month, year int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return first.AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// ValidatePeriod checks a (month, year) pair.
func ValidatePeriod(month time.Month, year int) error {
	if month < time.January || month > time.December {
		return NewValidationError("month", "month must be between 1 and 12")
	}
	if year < 2000 || year > 2100 {
		return NewValidationError("year", "year must be between 2000 and 2100")
	}
	return nil
}
