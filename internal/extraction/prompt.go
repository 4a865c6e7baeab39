package extraction

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/booking-assistant/internal/dates"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
)

const calendarDays = 7

// BuildPrompt renders the system prompt for model extraction: today's date,
// the weekday lookup table, each professional's week and the catalog ids.
func BuildPrompt(in Input, resolver *dates.Resolver, now time.Time) string {
	today := resolver.Today(now)
	var b strings.Builder

	b.WriteString("Você extrai dados de agendamento de uma conversa de WhatsApp entre um cliente e o assistente de um salão.\n")
	fmt.Fprintf(&b, "Hoje é %s, %s (%s).\n\n", dates.WeekdayName(today.Weekday()), today.Brazilian(), today)

	b.WriteString("Datas dos próximos dias (use esta tabela, nunca calcule):\n")
	for _, occ := range resolver.NextOccurrences(now) {
		fmt.Fprintf(&b, "- %s = %s\n", occ.Name, occ.Date)
	}
	fmt.Fprintf(&b, "- hoje = %s\n- amanhã = %s\n\n", today, today.AddDays(1))

	b.WriteString("Profissionais (id: nome):\n")
	for _, p := range in.Professionals {
		if p.Active {
			fmt.Fprintf(&b, "- %s: %s\n", p.ID, p.Name)
		}
	}
	b.WriteString("\nServiços (id: nome, duração):\n")
	for _, s := range in.Services {
		fmt.Fprintf(&b, "- %s: %s, %d min\n", s.ID, s.Name, s.DurationMinutes)
	}

	b.WriteString("\nAgenda da semana:\n")
	for _, p := range in.Professionals {
		if !p.Active {
			continue
		}
		b.WriteString(scheduling.RenderWeek(p, in.Appointments, today, calendarDays))
	}

	b.WriteString("\nRegras:\n")
	b.WriteString("- Use somente informações escritas na conversa. Nunca invente data, horário, profissional ou serviço.\n")
	b.WriteString("- Se o cliente corrigiu algum dado, use o valor mais recente.\n")
	b.WriteString("- appointmentDate no formato AAAA-MM-DD e appointmentTime no formato HH:MM (24h).\n")
	b.WriteString("- professionalId e serviceId devem ser ids da lista acima.\n")
	fmt.Fprintf(&b, "- Se faltar qualquer campo, responda apenas %s.\n", InsufficientSentinel)
	b.WriteString("- Caso contrário responda com uma única linha JSON, sem texto extra:\n")
	b.WriteString(`{"clientName":"","clientPhone":"","professionalId":"","serviceId":"","appointmentDate":"","appointmentTime":""}`)
	b.WriteString("\n")
	return b.String()
}
