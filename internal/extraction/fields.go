package extraction

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/booking-assistant/internal/dates"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
	"github.com/wolfman30/booking-assistant/internal/textnorm"
)

var (
	numericDateRE = regexp.MustCompile(`\b(\d{1,2}/\d{1,2}(?:/\d{2,4})?)\b`)
	dayOfMonthRE  = regexp.MustCompile(`\bdia (\d{1,2})\b`)
	clockRE       = regexp.MustCompile(`\b((?:[01]?\d|2[0-3])(?::[0-5]\d|h(?:[0-5]\d)?))(?:\b|$)`)
	// "as 14" is "às 14" after folding.
	bareHourRE = regexp.MustCompile(`\b(?:as|at) ([01]?\d|2[0-3])\b`)
	phoneRE    = regexp.MustCompile(`\+?\d[\d\s().-]{8,}\d`)
)

var (
	nameLabels         = []string{"nome", "name", "cliente", "client"}
	professionalLabels = []string{"profissional", "professional", "atendente", "com"}
	serviceLabels      = []string{"servico", "service", "procedimento", "procedure"}
	dateLabels         = []string{"data", "date", "dia", "day"}
	timeLabels         = []string{"horario", "hora", "time", "hour"}
	phoneLabels        = []string{"telefone", "phone", "celular", "whatsapp", "contato", "fone"}
)

// findTimes returns every clock mentioned in text, in order.
func findTimes(text string) []scheduling.Clock {
	folded := textnorm.Fold(text)
	type hit struct {
		pos   int
		clock scheduling.Clock
	}
	var hits []hit
	for _, loc := range clockRE.FindAllStringSubmatchIndex(folded, -1) {
		if c, err := scheduling.ParseClock(folded[loc[2]:loc[3]]); err == nil {
			hits = append(hits, hit{loc[0], c})
		}
	}
	for _, loc := range bareHourRE.FindAllStringSubmatchIndex(folded, -1) {
		if end := loc[3]; end < len(folded) && (folded[end] == ':' || folded[end] == 'h') {
			continue
		}
		if c, err := scheduling.ParseClock(folded[loc[2]:loc[3]]); err == nil {
			hits = append(hits, hit{loc[0], c})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	out := make([]scheduling.Clock, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.clock)
	}
	return out
}

// lastTime returns the latest clock mentioned in text.
func lastTime(text string) (scheduling.Clock, bool) {
	times := findTimes(text)
	if len(times) == 0 {
		return 0, false
	}
	return times[len(times)-1], true
}

// findDates returns every absolute or relative date in text, resolved
// against now.
func findDates(text string, resolver *dates.Resolver, now time.Time) []dates.Date {
	today := resolver.Today(now)
	var out []dates.Date
	for _, m := range numericDateRE.FindAllString(text, -1) {
		if d, err := dates.ParseDayMonth(m, today); err == nil {
			out = append(out, d)
		}
	}
	folded := textnorm.Fold(text)
	for _, m := range dayOfMonthRE.FindAllStringSubmatch(folded, -1) {
		if d, ok := nextDayOfMonth(today, m[1]); ok {
			out = append(out, d)
		}
	}
	for _, word := range dateTokens(folded) {
		if d, ok := resolver.Resolve(word, now); ok {
			out = append(out, d)
		}
	}
	return out
}

// lastDate returns the most relevant date in text: an explicit dd/mm date
// wins over relative expressions, which follow the resolver's precedence.
func lastDate(text string, resolver *dates.Resolver, now time.Time) (dates.Date, bool) {
	today := resolver.Today(now)
	if ms := numericDateRE.FindAllString(text, -1); len(ms) > 0 {
		for i := len(ms) - 1; i >= 0; i-- {
			if d, err := dates.ParseDayMonth(ms[i], today); err == nil {
				return d, true
			}
		}
	}
	if ref, ok := resolver.FindReference(text, now); ok {
		return ref.Date, true
	}
	if ms := dayOfMonthRE.FindAllStringSubmatch(textnorm.Fold(text), -1); len(ms) > 0 {
		return nextDayOfMonth(today, ms[len(ms)-1][1])
	}
	return dates.Date{}, false
}

// dateTokens returns the words and two-word phrases the resolver may know.
func dateTokens(folded string) []string {
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r == '-')
	})
	out := make([]string, 0, len(words)+2)
	for i, w := range words {
		if len(w) < 4 {
			// Abbreviations such as "ter" or "sex" are too ambiguous in prose.
			continue
		}
		out = append(out, w)
		if i+2 < len(words) && w == "depois" && words[i+1] == "de" {
			out = append(out, "depois de "+words[i+2])
		}
	}
	return out
}

func nextDayOfMonth(today dates.Date, raw string) (dates.Date, bool) {
	day, err := strconv.Atoi(raw)
	if err != nil || day < 1 || day > 31 {
		return dates.Date{}, false
	}
	for i := 0; i < 3; i++ {
		month := today.Month + time.Month(i)
		year := today.Year
		for month > 12 {
			month -= 12
			year++
		}
		d := dates.New(year, month, day)
		if d.Day != day || d.Before(today) {
			continue
		}
		return d, true
	}
	return dates.Date{}, false
}

func lastPhone(text string) (string, bool) {
	ms := phoneRE.FindAllString(text, -1)
	for i := len(ms) - 1; i >= 0; i-- {
		if digits := textnorm.Digits(ms[i]); len(digits) >= 10 && len(digits) <= 13 {
			return digits, true
		}
	}
	return "", false
}

// cleanName trims punctuation and emoji around an extracted person name.
func cleanName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= 0xC0 && r <= 0x24F)
	})
	return strings.Join(strings.Fields(s), " ")
}
