package timeutil

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ToUnixSeconds normalizes the time representations accepted at the API
// boundary into integer Unix seconds (UTC). Accepted inputs:
//
//   - integer kinds (already unix seconds)
//   - json.Number / float64 (as decoded from JSON)
//   - string: all-digits unix seconds, or ISO-8601 with or without a
//     trailing 'Z' (naive values are treated as UTC)
//   - time.Time
//
// Everything past this boundary deals in int64 seconds only.
func ToUnixSeconds(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		return int64(t), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, errors.Wrapf(err, "non-integer timestamp %q", t.String())
		}
		return n, nil
	case time.Time:
		return t.UTC().Unix(), nil
	case string:
		return parseTimeString(t)
	default:
		return 0, errors.Errorf("unsupported time value %v", v)
	}
}

func parseTimeString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty time value")
	}

	if isDigits(s) {
		var n int64
		for _, c := range s {
			n = n*10 + int64(c-'0')
		}
		return n, nil
	}

	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05", // naive ISO, assume UTC
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
	}
	var lastErr error
	for _, l := range layouts {
		if dt, err := time.ParseInLocation(l, s, time.UTC); err == nil {
			return dt.UTC().Unix(), nil
		} else {
			lastErr = err
		}
	}
	return 0, errors.Wrapf(lastErr, "unrecognized time value %q", s)
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// CAD "cd" close-approach times come in a few string layouts, e.g.
// "2025-Nov-23 18:00". All are treated as UTC.
var cadLayouts = []string{
	"2006-Jan-02 15:04",
	"2006-Jan-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseCADTime converts a CAD "cd" field into unix seconds.
func ParseCADTime(cd string) (int64, error) {
	cd = strings.TrimSpace(cd)
	var lastErr error
	for _, l := range cadLayouts {
		if dt, err := time.ParseInLocation(l, cd, time.UTC); err == nil {
			return dt.UTC().Unix(), nil
		} else {
			lastErr = err
		}
	}
	return 0, errors.Wrapf(lastErr, "unrecognized cd time %q", cd)
}
