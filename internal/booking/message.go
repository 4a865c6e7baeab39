package booking

import (
	"fmt"
	"strings"

	"github.com/wolfman30/booking-assistant/internal/dates"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
)

// ConfirmationText is the WhatsApp reply sent after a successful commit.
// Rejected results get an apology asking for another time.
func ConfirmationText(r Result) string {
	appt := r.Appointment
	switch r.Outcome {
	case OutcomeRejected:
		if r.Verdict.OffSchedule && r.Verdict.Outcome != scheduling.OutcomeConflict {
			who := "a profissional"
			if r.Professional.Name != "" {
				who = r.Professional.Name
			}
			return fmt.Sprintf("Poxa, %s não atende nesse dia ou horário. Pode me dizer outro horário que funcione para você?", who)
		}
		return "Poxa, esse horário acabou de ser ocupado. Pode me dizer outro horário que funcione para você?"
	case OutcomeDuplicate:
		if appt.ID == "" {
			return ""
		}
	}

	var b strings.Builder
	if r.Outcome == OutcomeUpdated {
		b.WriteString("Pronto! Seu agendamento foi atualizado ✅\n")
	} else {
		b.WriteString("Pronto! Seu agendamento está confirmado ✅\n")
	}
	if r.Service.Name != "" {
		fmt.Fprintf(&b, "✂️ %s", r.Service.Name)
		if r.Professional.Name != "" {
			fmt.Fprintf(&b, " com %s", r.Professional.Name)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "📅 %s, %s às %s\n", dates.WeekdayName(appt.Date.Weekday()), appt.Date.Brazilian(), appt.Time)
	b.WriteString("Até lá!")
	return b.String()
}
