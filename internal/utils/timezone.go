package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseLocation parses a timezone string into a time.Location. Accepts
// IANA names ("Asia/Shanghai") and fixed offsets like "UTC+8" or
// "UTC-03:30". Empty input means UTC.
func ParseLocation(tz string) (*time.Location, error) {
	trimmed := strings.TrimSpace(tz)
	if trimmed == "" {
		return time.UTC, nil
	}

	upper := strings.ToUpper(trimmed)
	if upper == "UTC" || upper == "GMT" {
		return time.UTC, nil
	}

	if strings.HasPrefix(upper, "UTC") || strings.HasPrefix(upper, "GMT") {
		return parseFixedOffset(tz, strings.TrimPrefix(strings.TrimPrefix(upper, "UTC"), "GMT"))
	}

	return time.LoadLocation(trimmed)
}

func parseFixedOffset(original, offset string) (*time.Location, error) {
	if offset == "" {
		return time.UTC, nil
	}
	sign := 1
	switch offset[0] {
	case '+':
		offset = offset[1:]
	case '-':
		sign = -1
		offset = offset[1:]
	default:
		return nil, fmt.Errorf("invalid UTC offset format: %q", original)
	}

	hours, minutes := 0, 0
	var err error
	if h, m, found := strings.Cut(offset, ":"); found {
		if hours, err = strconv.Atoi(h); err != nil {
			return nil, fmt.Errorf("invalid UTC offset hour in %q: %w", original, err)
		}
		if minutes, err = strconv.Atoi(m); err != nil {
			return nil, fmt.Errorf("invalid UTC offset minute in %q: %w", original, err)
		}
	} else if hours, err = strconv.Atoi(offset); err != nil {
		return nil, fmt.Errorf("invalid UTC offset hour in %q: %w", original, err)
	}

	if minutes < 0 || minutes >= 60 || hours < 0 || hours > 14 {
		return nil, fmt.Errorf("UTC offset out of range in %q", original)
	}

	seconds := sign * (hours*3600 + minutes*60)
	return time.FixedZone(fmt.Sprintf("UTC%+03d:%02d", sign*hours, minutes), seconds), nil
}
