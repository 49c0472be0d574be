// Package cashflow converts dated cash flows into year-offset coefficients.
package cashflow

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the only accepted date key format.
const DateLayout = "2006-01-02"

const (
	minEntries  = 2
	daysPerYear = 365.0
	hoursPerDay = 24
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Flow maps YYYY-MM-DD dates to signed amounts.
type Flow map[string]float64

// Offsets maps elapsed years since the earliest date to the amount at that date.
type Offsets map[float64]float64

// Validate checks the flow for caller errors. Every failure wraps ErrInvalidInput.
func (f Flow) Validate() error {
	if len(f) < minEntries {
		return fmt.Errorf("%w: need at least %d entries, got %d", ErrInvalidInput, minEntries, len(f))
	}
	for date, amount := range f {
		if _, err := ParseDate(date); err != nil {
			return err
		}
		if math.IsNaN(amount) || math.IsInf(amount, 0) {
			return fmt.Errorf("%w: amount for %s is not a finite number", ErrInvalidInput, date)
		}
	}
	return nil
}

// IsZero reports whether every amount is exactly zero.
func (f Flow) IsZero() bool {
	for _, amount := range f {
		if amount != 0 {
			return false
		}
	}
	return true
}

// Dates returns the keys in chronological order.
func (f Flow) Dates() []string {
	dates := make([]string, 0, len(f))
	for d := range f {
		dates = append(dates, d)
	}
	// ISO dates sort lexicographically in calendar order.
	sort.Strings(dates)
	return dates
}

// Offsets anchors the flow at its earliest date and returns elapsed-year keys.
// The flow must be valid.
func (f Flow) Offsets() (Offsets, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	dates := f.Dates()
	anchor, _ := ParseDate(dates[0])

	out := make(Offsets, len(f))
	for _, d := range dates {
		t, _ := ParseDate(d)
		out[float64(ElapsedDays(anchor, t))/daysPerYear] = f[d]
	}
	return out, nil
}

// ParseDate parses a YYYY-MM-DD key, rejecting other layouts and impossible dates.
func ParseDate(s string) (time.Time, error) {
	if !datePattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidInput, s)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %v", ErrInvalidInput, s, err)
	}
	return t, nil
}

// ElapsedDays returns the signed number of calendar days from a to b.
func ElapsedDays(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Round(b.Sub(a).Hours() / hoursPerDay))
}

// Parse builds a Flow from loosely typed values, as decoded from JSON or YAML.
// Accepted amounts are floats, integers, json.Number and numeric strings.
func Parse(raw map[string]any) (Flow, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: cash flow is missing", ErrInvalidInput)
	}
	f := make(Flow, len(raw))
	for date, v := range raw {
		amount, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("%w: amount for %s: %v", ErrInvalidInput, date, err)
		}
		f[date] = amount
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// ParseAmount converts one loosely typed number the way Parse does.
func ParseAmount(v any) (float64, error) {
	x, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return x, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, fmt.Errorf("empty string is not a number")
		}
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", n)
		}
		return x, nil
	case nil:
		return 0, fmt.Errorf("value is undefined")
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
