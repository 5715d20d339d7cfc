package utils

import (
	"fmt"
	"time"
)

// ResetTime resets the time component based on the granularity specified.
// Pass "minute" to reset seconds to zero.
// Pass "hour" to reset minutes and seconds to zero.
func ResetTime(t time.Time, granularity string) time.Time {
	switch granularity {
	case "minute":
		return t.Truncate(time.Minute) // Resets seconds to zero
	case "hour":
		return t.Truncate(time.Hour) // Resets minutes and seconds to zero
	default:
		fmt.Println("Invalid granularity. Please use 'minute' or 'hour'.")
		return t
	}
}

// ExchangeLocation returns the exchange-local timezone (IST). Falls back to
// a fixed +05:30 zone when the tzdata lookup fails.
func ExchangeLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}

// NextOccurrence returns the next time the given wall-clock hour/minute
// occurs in loc, at or after now.
func NextOccurrence(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if candidate.Before(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// SameDayOrNext anchors a wall-clock hour/minute to the date of ref in loc,
// rolling to the next day when the result would not be after ref.
func SameDayOrNext(ref time.Time, hour, minute int, loc *time.Location) time.Time {
	local := ref.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// ParseExpiryDate accepts the two formats the exchange uses for option
// expiries: "2006-01-02" and "02-01-2006".
func ParseExpiryDate(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "02-01-2006"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable expiry date %q", s)
}
