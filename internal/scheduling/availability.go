package scheduling

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wolfman30/booking-assistant/internal/dates"
	"github.com/wolfman30/booking-assistant/internal/textnorm"
)

// Outcome is the checker's verdict for a candidate slot.
type Outcome int

const (
	// OutcomeFree means nothing overlaps the candidate.
	OutcomeFree Outcome = iota
	// OutcomeUpdateInPlace means the same client already holds an overlapping
	// appointment, which should be updated instead of duplicated, and no other
	// client overlaps.
	OutcomeUpdateInPlace
	// OutcomeConflict means another client's appointment overlaps. Existing is
	// still set when the same client also overlaps.
	OutcomeConflict
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFree:
		return "free"
	case OutcomeUpdateInPlace:
		return "update_in_place"
	case OutcomeConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Slot is a candidate booking to test against a calendar.
type Slot struct {
	Date            dates.Date
	Start           Clock
	DurationMinutes int
	ClientPhone     string
}

// Interval returns the slot's half-open interval.
func (s Slot) Interval() Interval {
	return Span(s.Start, s.DurationMinutes)
}

// Verdict describes how a candidate slot relates to existing bookings.
// OffSchedule does not change Outcome; callers decide whether it blocks.
type Verdict struct {
	Outcome     Outcome
	Existing    *Appointment
	Conflicts   []Appointment
	OffSchedule bool
}

// Checker evaluates candidate slots against a professional's calendar.
type Checker struct{}

// NewChecker returns a Checker.
func NewChecker() *Checker {
	return &Checker{}
}

// Check compares slot with the professional's active appointments on the same
// date. Another client's overlap always yields OutcomeConflict, even when the
// same client also overlaps, so moving a booking never lands on someone else.
func (c *Checker) Check(prof Professional, existing []Appointment, slot Slot) Verdict {
	verdict := Verdict{Outcome: OutcomeFree}
	if !prof.WorksOn(slot.Date.Weekday()) || !prof.Hours().Contains(slot.Interval()) {
		verdict.OffSchedule = true
	}

	candidate := slot.Interval()
	for _, appt := range existing {
		if appt.ProfessionalID != prof.ID || appt.Date != slot.Date || !appt.Status.Active() {
			continue
		}
		if !candidate.Overlaps(appt.Interval()) {
			continue
		}
		if textnorm.SamePhone(appt.ClientPhone, slot.ClientPhone) {
			if verdict.Existing == nil {
				a := appt
				verdict.Existing = &a
			}
			continue
		}
		verdict.Conflicts = append(verdict.Conflicts, appt)
	}

	switch {
	case len(verdict.Conflicts) > 0:
		verdict.Outcome = OutcomeConflict
	case verdict.Existing != nil:
		verdict.Outcome = OutcomeUpdateInPlace
	}
	return verdict
}

// RenderWeek describes the professional's occupancy for days consecutive days
// starting at from. The text is embedded in the extraction prompt so the model
// sees which slots are taken.
func RenderWeek(prof Professional, appointments []Appointment, from dates.Date, days int) string {
	if days <= 0 {
		days = 7
	}
	byDate := make(map[dates.Date][]Interval)
	for _, appt := range appointments {
		if appt.ProfessionalID != prof.ID || !appt.Status.Active() {
			continue
		}
		byDate[appt.Date] = append(byDate[appt.Date], appt.Interval())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", prof.Name)
	for i := 0; i < days; i++ {
		d := from.AddDays(i)
		fmt.Fprintf(&b, "- %s (%s): ", dates.WeekdayName(d.Weekday()), d.Brazilian())
		if !prof.WorksOn(d.Weekday()) {
			b.WriteString("indisponível (não atende neste dia)\n")
			continue
		}
		fmt.Fprintf(&b, "atende %s", prof.Hours())
		busy := byDate[d]
		if len(busy) == 0 {
			b.WriteString(", agenda livre\n")
			continue
		}
		sort.Slice(busy, func(i, j int) bool { return busy[i].Start < busy[j].Start })
		parts := make([]string, 0, len(busy))
		for _, iv := range busy {
			parts = append(parts, iv.String())
		}
		fmt.Fprintf(&b, ", ocupado %s\n", strings.Join(parts, ", "))
	}
	return b.String()
}
