package scheduling

import (
	"fmt"
	"regexp"
	"strconv"
)

// Clock is a time of day in minutes since midnight.
type Clock int

// MinutesPerDay bounds valid Clock values.
const MinutesPerDay = 24 * 60

var clockRE = regexp.MustCompile(`^(\d{1,2})(?:[:hH](\d{2})?)?$`)

// NewClock builds a Clock from hour and minute.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock accepts "14:30", "9:05", "14h30", "14h" and "14".
func ParseClock(s string) (Clock, error) {
	m := clockRE.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("scheduling: invalid time %q", s)
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if hour > 23 || minute > 59 {
		return 0, fmt.Errorf("scheduling: time %q out of range", s)
	}
	return NewClock(hour, minute), nil
}

// Hour returns the hour component.
func (c Clock) Hour() int { return int(c) / 60 }

// Minute returns the minute component.
func (c Clock) Minute() int { return int(c) % 60 }

// String formats c as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// Interval is a half-open [Start, End) range within a day.
type Interval struct {
	Start Clock
	End   Clock
}

// Span returns the interval starting at start lasting minutes.
func Span(start Clock, minutes int) Interval {
	return Interval{Start: start, End: start + Clock(minutes)}
}

// Overlaps reports whether the two half-open intervals share any minute.
// Intervals that only touch at a boundary do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start < other.End && i.End > other.Start
}

// Contains reports whether other lies entirely within i.
func (i Interval) Contains(other Interval) bool {
	return other.Start >= i.Start && other.End <= i.End
}

func (i Interval) String() string {
	return i.Start.String() + "-" + i.End.String()
}
