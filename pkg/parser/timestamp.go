package parser

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Common timestamp layouts ordered by likelihood.
var commonLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseTimestamp parses s into nanoseconds since the Unix epoch. layout is
// tried first when non-empty. Plain numbers are read as Unix seconds when
// they have ten or more integer digits and as Excel serial dates otherwise.
// Zero and negative serials are valid, so plain ordinals keep their order.
func ParseTimestamp(s, layout string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidTimestamp
	}

	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixNano(), nil
		}
	}
	for _, l := range commonLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UnixNano(), nil
		}
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		intDigits := len(strings.SplitN(strings.TrimPrefix(s, "-"), ".", 2)[0])
		if intDigits >= 10 {
			sec := int64(v)
			nsec := int64((v - float64(sec)) * 1e9)
			return time.Unix(sec, nsec).UnixNano(), nil
		}
		return excelSerial(v).UnixNano(), nil
	}

	return 0, ErrInvalidTimestamp
}

// excelSerial converts an Excel serial date (days since 1899-12-30).
func excelSerial(v float64) time.Time {
	days := math.Floor(v)
	t := excelEpoch.AddDate(0, 0, int(days))
	if fraction := v - days; fraction > 0 {
		t = t.Add(time.Duration(fraction * 24 * float64(time.Hour)))
	}
	return t
}
