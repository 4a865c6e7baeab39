package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const isoLayout = "2006-01-02"

// Date is a calendar day without a time-of-day component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// New builds a Date, normalising overflowing days and months the way time.Date does.
func New(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseISO parses a YYYY-MM-DD string.
func ParseISO(s string) (Date, error) {
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("dates: parse %q: %w", s, err)
	}
	return DateOf(t), nil
}

var dayMonthRE = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(?:/(\d{2}|\d{4}))?$`)

// ParseDayMonth parses "dd/mm/yyyy", "dd/mm/yy" or "dd/mm". When the year is
// missing the next occurrence on or after ref is used.
func ParseDayMonth(s string, ref Date) (Date, error) {
	m := dayMonthRE.FindStringSubmatch(s)
	if m == nil {
		return Date{}, fmt.Errorf("dates: %q is not a day/month date", s)
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return Date{}, fmt.Errorf("dates: %q is out of range", s)
	}

	year := ref.Year
	explicitYear := m[3] != ""
	if explicitYear {
		year, _ = strconv.Atoi(m[3])
		if len(m[3]) == 2 {
			year += 2000
		}
	}

	d := New(year, time.Month(month), day)
	if d.Day != day {
		// 31/02 rolled into March
		return Date{}, fmt.Errorf("dates: %q is not a real day", s)
	}
	if !explicitYear && d.Before(ref) {
		d = New(year+1, time.Month(month), day)
	}
	return d, nil
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return New(d.Year, d.Month, d.Day+n)
}

// Weekday returns the day of the week.
func (d Date) Weekday() time.Weekday {
	return d.In(time.UTC).Weekday()
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.In(time.UTC).Before(other.In(time.UTC))
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return other.Before(d)
}

// String formats d as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.In(time.UTC).Format(isoLayout)
}

// Brazilian formats d as dd/mm/yyyy.
func (d Date) Brazilian() string {
	if d.IsZero() {
		return ""
	}
	return d.In(time.UTC).Format("02/01/2006")
}
