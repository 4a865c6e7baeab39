package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/dates"
	"github.com/wolfman30/booking-assistant/internal/llm"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
)

const (
	defaultReplyTimeout   = 30 * time.Second
	defaultReplyMaxTokens = 500
)

// ReplyInput is what the assistant knows when it answers.
type ReplyInput struct {
	TenantName    string
	Messages      []conversation.Message
	Professionals []scheduling.Professional
	Services      []scheduling.Service
	Appointments  []scheduling.Appointment
	Now           time.Time
}

// Responder writes the assistant's next WhatsApp message with a language
// model. It is told to close every booking with the labeled summary the
// confirmation detector and summary extractor recognise.
type Responder struct {
	client      llm.Client
	model       string
	resolver    *dates.Resolver
	timeout     time.Duration
	maxTokens   int32
	temperature float32
}

func NewResponder(client llm.Client, model string, resolver *dates.Resolver, timeout time.Duration, maxTokens int32, temperature float32) *Responder {
	if client == nil {
		panic("worker: llm client required")
	}
	if resolver == nil {
		panic("worker: date resolver required")
	}
	if timeout <= 0 {
		timeout = defaultReplyTimeout
	}
	if maxTokens <= 0 {
		maxTokens = defaultReplyMaxTokens
	}
	return &Responder{
		client:      client,
		model:       model,
		resolver:    resolver,
		timeout:     timeout,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Reply returns the next assistant message, or "" when the customer has
// not said anything since the last reply.
func (r *Responder) Reply(ctx context.Context, in ReplyInput) (string, error) {
	chat := chatMessages(in.Messages)
	if len(chat) == 0 || chat[len(chat)-1].Role != llm.RoleUser {
		return "", nil
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	resp, err := r.client.Complete(ctx, llm.Request{
		Model:       r.model,
		System:      []string{r.systemPrompt(in, now)},
		Messages:    chat,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("worker: reply completion: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (r *Responder) systemPrompt(in ReplyInput, now time.Time) string {
	today := r.resolver.Today(now)
	var b strings.Builder
	name := in.TenantName
	if name == "" {
		name = "o salão"
	}
	fmt.Fprintf(&b, "Você é a assistente de agendamentos de %s no WhatsApp. Responda em português, de forma curta e simpática.\n", name)
	fmt.Fprintf(&b, "Hoje é %s, %s.\n\n", dates.WeekdayName(today.Weekday()), today.Brazilian())

	b.WriteString("Próximos dias:\n")
	for _, occ := range r.resolver.NextOccurrences(now) {
		fmt.Fprintf(&b, "- %s: %s\n", occ.Name, occ.Date.Brazilian())
	}
	b.WriteString("\nServiços:\n")
	for _, s := range in.Services {
		fmt.Fprintf(&b, "- %s (%d min)\n", s.Name, s.DurationMinutes)
	}
	b.WriteString("\nAgenda das profissionais:\n")
	for _, p := range in.Professionals {
		if p.Active {
			b.WriteString(scheduling.RenderWeek(p, in.Appointments, today, 7))
		}
	}

	b.WriteString("\nColete nome, profissional, serviço, data e horário. Nunca ofereça horários ocupados ou fora do expediente.\n")
	b.WriteString("Quando tiver tudo, envie exatamente este resumo e aguarde a resposta:\n")
	b.WriteString("👤 Nome: <nome>\n💇 Profissional: <profissional>\n✂️ Serviço: <serviço>\n📅 Data: <dia da semana>, <dd/mm/aaaa>\n⏰ Horário: <HH:MM>\n")
	b.WriteString("Está correto? Responda SIM para confirmar.\n")
	return b.String()
}

// chatMessages maps the transcript to alternating model turns, merging
// consecutive messages from the same side and dropping leading assistant
// turns.
func chatMessages(messages []conversation.Message) []llm.Message {
	var out []llm.Message
	for _, m := range messages {
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		role := llm.RoleUser
		if m.Role == conversation.RoleAssistant {
			role = llm.RoleAssistant
		}
		if len(out) == 0 && role == llm.RoleAssistant {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n" + text
			continue
		}
		out = append(out, llm.Message{Role: role, Content: text})
	}
	return out
}
