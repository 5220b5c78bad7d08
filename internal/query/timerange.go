package query

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cwinsights/internal/model"
)

type Relative struct {
	Label string
	Span  time.Duration
}

const day = 24 * time.Hour

var RelativeOptions = []Relative{
	{"1 minute", time.Minute},
	{"5 minutes", 5 * time.Minute},
	{"10 minutes", 10 * time.Minute},
	{"15 minutes", 15 * time.Minute},
	{"30 minutes", 30 * time.Minute},
	{"1 hour", time.Hour},
	{"2 hours", 2 * time.Hour},
	{"3 hours", 3 * time.Hour},
	{"5 hours", 5 * time.Hour},
	{"12 hours", 12 * time.Hour},
	{"1 day", day},
	{"2 days", 2 * day},
	{"3 days", 3 * day},
	{"5 days", 5 * day},
	{"7 days", 7 * day},
	{"14 days", 14 * day},
	{"30 days", 30 * day},
}

const DefaultRelative = "1 hour"

// DefaultRelativeIndex is the position of DefaultRelative in RelativeOptions.
func DefaultRelativeIndex() int {
	i, _ := FindRelative(DefaultRelative)
	return i
}

// FindRelative looks an option up by label ("1 hour") or by Go duration
// syntax ("1h", "90m"). Durations that are not one of the options are
// accepted and returned with index -1.
func FindRelative(s string) (int, Relative) {
	s = strings.TrimSpace(strings.ToLower(s))
	for i, o := range RelativeOptions {
		if o.Label == s {
			return i, o
		}
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		for i, o := range RelativeOptions {
			if o.Span == d {
				return i, o
			}
		}
		return -1, Relative{Label: d.String(), Span: d}
	}
	return -1, Relative{}
}

// Range ends at now.
func (r Relative) Range(now time.Time) model.TimeRange {
	return model.TimeRange{Start: now.Add(-r.Span), End: now}
}

// TimeLayout is the absolute time format shown in the form.
const TimeLayout = "2006-01-02 15:04:05"

var timeLayouts = []string{TimeLayout, "2006-01-02 15:04", "2006-01-02"}

var errTimeFormat = errors.New("use YYYY-MM-DD[ HH:MM[:SS]] format")

// ParseTime reads an absolute time in loc (time.Local when nil).
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &ValidationError{Field: "time", Reason: "time value is required"}
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ValidationError{Field: "time", Reason: fmt.Sprintf("%q: %v", s, errTimeFormat)}
}

// AbsoluteRange parses both ends of a range.
func AbsoluteRange(from, to string, loc *time.Location) (model.TimeRange, error) {
	start, err := ParseTime(from, loc)
	if err != nil {
		return model.TimeRange{}, fmt.Errorf("from: %w", err)
	}
	end, err := ParseTime(to, loc)
	if err != nil {
		return model.TimeRange{}, fmt.Errorf("to: %w", err)
	}
	return model.TimeRange{Start: start, End: end}, nil
}

// FormatTime renders t the way ParseTime reads it back.
func FormatTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(TimeLayout)
}
