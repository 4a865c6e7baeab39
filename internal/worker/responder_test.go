package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/dates"
	"github.com/wolfman30/booking-assistant/internal/llm"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
)

type captureLLM struct {
	req  llm.Request
	text string
}

func (c *captureLLM) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	c.req = req
	return llm.Response{Text: c.text}, nil
}

func msg(role conversation.Role, content string) conversation.Message {
	return conversation.Message{Role: role, Content: content}
}

func TestChatMessagesMergesAndTrims(t *testing.T) {
	got := chatMessages([]conversation.Message{
		msg(conversation.RoleAssistant, "Bem-vinda!"),
		msg(conversation.RoleCustomer, "Oi"),
		msg(conversation.RoleCustomer, "quero marcar"),
		msg(conversation.RoleCustomer, "  "),
		msg(conversation.RoleAssistant, "Claro!"),
		msg(conversation.RoleCustomer, "quinta"),
	})
	if len(got) != 3 {
		t.Fatalf("got %d turns: %+v", len(got), got)
	}
	if got[0].Role != llm.RoleUser || got[0].Content != "Oi\nquero marcar" {
		t.Fatalf("first turn = %+v", got[0])
	}
	if got[1].Role != llm.RoleAssistant || got[2].Role != llm.RoleUser {
		t.Fatalf("roles = %s, %s", got[1].Role, got[2].Role)
	}
}

func TestReplySkipsWhenAssistantSpokeLast(t *testing.T) {
	client := &captureLLM{text: "não deveria"}
	r := NewResponder(client, "m", dates.NewResolver(time.UTC), 0, 0, 0)
	text, err := r.Reply(context.Background(), ReplyInput{
		Messages: []conversation.Message{
			msg(conversation.RoleCustomer, "Oi"),
			msg(conversation.RoleAssistant, "Olá!"),
		},
	})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if text != "" || client.req.Model != "" {
		t.Fatalf("expected no completion, got %q", text)
	}
}

func TestReplyPromptCarriesCatalogAndSummaryFormat(t *testing.T) {
	client := &captureLLM{text: "  Temos horário às 15h.  "}
	r := NewResponder(client, "model-x", dates.NewResolver(time.FixedZone("BRT", -3*60*60)), time.Second, 200, 0.2)
	weekdays := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	text, err := r.Reply(context.Background(), ReplyInput{
		TenantName: "Salão Bela",
		Messages:   []conversation.Message{msg(conversation.RoleCustomer, "Tem horário quinta?")},
		Professionals: []scheduling.Professional{
			{ID: "prof-ana", Name: "Ana", Active: true, WorkDays: weekdays, WorkStart: scheduling.NewClock(9, 0), WorkEnd: scheduling.NewClock(18, 0)},
		},
		Services: []scheduling.Service{{ID: "svc-corte", Name: "Corte", DurationMinutes: 30}},
		Now:      testNow,
	})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if text != "Temos horário às 15h." {
		t.Fatalf("text = %q", text)
	}
	if client.req.Model != "model-x" || client.req.MaxTokens != 200 {
		t.Fatalf("request = %+v", client.req)
	}
	system := strings.Join(client.req.System, "\n")
	for _, want := range []string{"Salão Bela", "18/03/2025", "quinta-feira: 20/03/2025", "Corte (30 min)", "👤 Nome:", "Responda SIM"} {
		if !strings.Contains(system, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, system)
		}
	}
}
