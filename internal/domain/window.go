package domain

import (
	"errors"
	"strings"
	"time"
)

// Window is a closed time interval [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Valid() bool {
	return !w.Start.After(w.End)
}

// Overlaps reports whether other conflicts with w. Bounds are inclusive, so
// a window ending exactly when w starts overlaps it.
func (w Window) Overlaps(other Window) bool {
	if w.within(other.Start) || w.within(other.End) {
		return true
	}
	return !other.Start.After(w.Start) && !other.End.Before(w.End)
}

// Contains reports whether other lies entirely inside w.
func (w Window) Contains(other Window) bool {
	return !other.Start.Before(w.Start) && !other.End.After(w.End)
}

func (w Window) within(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

var ErrInvalidTimestamp = errors.New("invalid timestamp")

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
}

var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC3339 and the zone-less "YYYY-MM-DD HH:MM[:SS]"
// forms. Zone-less values are read in loc (UTC when nil).
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidTimestamp
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidTimestamp
}
