package dates

import (
	"regexp"
	"strings"
	"time"

	"github.com/wolfman30/booking-assistant/internal/textnorm"
)

// Kind classifies a relative date reference.
type Kind int

const (
	KindWeekday Kind = iota
	KindToday
	KindTomorrow
	KindDayAfterTomorrow
)

// Reference is a relative date expression found in text, already resolved.
type Reference struct {
	Token string
	Kind  Kind
	Date  Date
}

// Occurrence pairs a weekday with the date it resolves to.
type Occurrence struct {
	Weekday time.Weekday
	Name    string
	Date    Date
}

var relativeOffsets = map[string]int{
	"hoje":               0,
	"today":              0,
	"amanha":             1,
	"tomorrow":           1,
	"depois de amanha":   2,
	"day after tomorrow": 2,
}

// Full names are safe to scan for inside sentences. Abbreviations such as
// "ter" or "sex" collide with ordinary Portuguese words, so they only count
// when the whole token is the abbreviation.
var weekdayNames = map[string]time.Weekday{
	"domingo":       time.Sunday,
	"segunda":       time.Monday,
	"segunda-feira": time.Monday,
	"terca":         time.Tuesday,
	"terca-feira":   time.Tuesday,
	"quarta":        time.Wednesday,
	"quarta-feira":  time.Wednesday,
	"quinta":        time.Thursday,
	"quinta-feira":  time.Thursday,
	"sexta":         time.Friday,
	"sexta-feira":   time.Friday,
	"sabado":        time.Saturday,
	"sunday":        time.Sunday,
	"monday":        time.Monday,
	"tuesday":       time.Tuesday,
	"wednesday":     time.Wednesday,
	"thursday":      time.Thursday,
	"friday":        time.Friday,
	"saturday":      time.Saturday,
}

var weekdayAbbreviations = map[string]time.Weekday{
	"dom": time.Sunday,
	"seg": time.Monday,
	"ter": time.Tuesday,
	"qua": time.Wednesday,
	"qui": time.Thursday,
	"sex": time.Friday,
	"sab": time.Saturday,
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

var portugueseWeekdays = [...]string{"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado"}

// referenceRE lists longer alternatives first so "depois de amanha" wins over "amanha".
var referenceRE = regexp.MustCompile(`\b(depois de amanha|day after tomorrow|amanha|tomorrow|hoje|today|(?:segunda|terca|quarta|quinta|sexta)(?:-feira)?|domingo|sabado|sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)

// WeekdayName returns the Portuguese name of wd.
func WeekdayName(wd time.Weekday) string {
	return portugueseWeekdays[wd]
}

// Resolver maps relative date tokens to calendar dates.
type Resolver struct {
	loc *time.Location
}

// NewResolver creates a resolver that interprets "now" in loc.
func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{loc: loc}
}

// Today returns the calendar day of now in the resolver's location.
func (r *Resolver) Today(now time.Time) Date {
	return DateOf(now.In(r.loc))
}

// Resolve converts a single token into a date. A weekday equal to today's
// weekday resolves to next week's occurrence.
func (r *Resolver) Resolve(token string, now time.Time) (Date, bool) {
	folded := textnorm.Fold(token)
	if folded == "" {
		return Date{}, false
	}
	today := r.Today(now)
	if offset, ok := relativeOffsets[folded]; ok {
		return today.AddDays(offset), true
	}
	if wd, ok := lookupWeekday(folded); ok {
		return NextWeekday(today, wd), true
	}
	return Date{}, false
}

// FindReference scans text for the most relevant relative date expression.
// Today/tomorrow mentions override weekday names; among equals the last
// mention wins.
func (r *Resolver) FindReference(text string, now time.Time) (Reference, bool) {
	folded := textnorm.Fold(text)
	matches := referenceRE.FindAllString(folded, -1)
	if len(matches) == 0 {
		return Reference{}, false
	}

	var relative, weekday string
	for _, m := range matches {
		if _, ok := relativeOffsets[m]; ok {
			relative = m
			continue
		}
		weekday = m
	}

	token := weekday
	kind := KindWeekday
	if relative != "" {
		token = relative
		switch relativeOffsets[relative] {
		case 0:
			kind = KindToday
		case 1:
			kind = KindTomorrow
		default:
			kind = KindDayAfterTomorrow
		}
	}

	date, ok := r.Resolve(token, now)
	if !ok {
		return Reference{}, false
	}
	return Reference{Token: token, Kind: kind, Date: date}, true
}

// HasReference reports whether text mentions a weekday or today/tomorrow.
func HasReference(text string) bool {
	return referenceRE.MatchString(textnorm.Fold(text))
}

// NextOccurrences returns, for every weekday, the date it resolves to from now.
// The list starts with tomorrow and runs for seven days.
func (r *Resolver) NextOccurrences(now time.Time) []Occurrence {
	today := r.Today(now)
	out := make([]Occurrence, 0, 7)
	for i := 1; i <= 7; i++ {
		d := today.AddDays(i)
		out = append(out, Occurrence{Weekday: d.Weekday(), Name: WeekdayName(d.Weekday()), Date: d})
	}
	return out
}

// NextWeekday returns the first date strictly after from that falls on wd.
func NextWeekday(from Date, wd time.Weekday) Date {
	diff := int(wd) - int(from.Weekday())
	if diff <= 0 {
		diff += 7
	}
	return from.AddDays(diff)
}

func lookupWeekday(folded string) (time.Weekday, bool) {
	folded = strings.TrimSuffix(strings.TrimSpace(folded), ".")
	if wd, ok := weekdayNames[folded]; ok {
		return wd, true
	}
	if wd, ok := weekdayAbbreviations[folded]; ok {
		return wd, true
	}
	if strings.HasSuffix(folded, " feira") {
		return lookupWeekday(strings.TrimSuffix(folded, " feira") + "-feira")
	}
	return 0, false
}
