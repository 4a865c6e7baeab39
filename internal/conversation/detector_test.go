package conversation

import "testing"

const mariaSummary = "Perfeito! Confira o resumo:\n👤 Nome: Maria Silva\n💇 Profissional: Ana\n✂️ Serviço: Corte\n📅 Data: quinta-feira, 20/03/2025\n⏰ Horário: 14:30\nEstá correto? Responda SIM para confirmar."

func msg(role Role, content string) Message {
	return Message{Role: role, Content: content, Kind: KindText}
}

func TestEvaluateSimAfterSummaryConfirms(t *testing.T) {
	eval := NewDetector(0).Evaluate([]Message{
		msg(RoleCustomer, "Quero cortar o cabelo com a Ana na quinta às 14:30"),
		msg(RoleAssistant, "Qual o seu nome?"),
		msg(RoleCustomer, "Maria Silva"),
		msg(RoleAssistant, mariaSummary),
		msg(RoleCustomer, "Sim"),
	})
	if eval.State != StateConfirmed || !eval.Confirmed() {
		t.Fatalf("expected confirmed, got %s", eval.State)
	}
	if eval.SummaryIndex != 3 || eval.ConfirmationIndex != 4 || eval.ConfirmationText != "Sim" {
		t.Fatalf("unexpected indexes %+v", eval)
	}
	if !eval.HasDateReference {
		t.Fatal("expected date reference from 'quinta'")
	}
}

func TestEvaluateSimWithoutSummaryDoesNotTransition(t *testing.T) {
	eval := NewDetector(0).Evaluate([]Message{
		msg(RoleCustomer, "Oi, vocês atendem sábado?"),
		msg(RoleAssistant, "Atendemos sim! Gostaria de agendar um horário?"),
		msg(RoleCustomer, "sim"),
	})
	if eval.State != StateCollecting {
		t.Fatalf("expected collecting, got %s", eval.State)
	}
	if !eval.Suppressed {
		t.Fatal("expected affirmative to a plain question to be suppressed")
	}
}

func TestEvaluateSummaryAwaitingAnswer(t *testing.T) {
	eval := NewDetector(0).Evaluate([]Message{
		msg(RoleCustomer, "amanhã 10h com a Ana"),
		msg(RoleAssistant, mariaSummary),
	})
	if eval.State != StateSummarySent || eval.SummaryIndex != 1 {
		t.Fatalf("expected summary sent, got %+v", eval)
	}
}

func TestEvaluateNewQuestionAfterSummarySuppresses(t *testing.T) {
	eval := NewDetector(0).Evaluate([]Message{
		msg(RoleAssistant, mariaSummary),
		msg(RoleCustomer, "na verdade prefiro de tarde"),
		msg(RoleAssistant, "Claro! Quer manter a Ana como profissional?"),
		msg(RoleCustomer, "sim"),
	})
	if eval.State != StateCollecting || !eval.Suppressed {
		t.Fatalf("expected suppressed collecting, got %+v", eval)
	}
}

func TestEvaluateConfirmationRequestAfterSummaryKeepsContext(t *testing.T) {
	eval := NewDetector(0).Evaluate([]Message{
		msg(RoleCustomer, "pode ser sexta"),
		msg(RoleAssistant, mariaSummary),
		msg(RoleCustomer, "hmm"),
		msg(RoleAssistant, "Posso confirmar o agendamento?"),
		msg(RoleCustomer, "pode confirmar"),
	})
	if eval.State != StateConfirmed || eval.SummaryIndex != 1 {
		t.Fatalf("expected confirmation against earlier summary, got %+v", eval)
	}
}

func TestEvaluateReportsMissingDateReference(t *testing.T) {
	summary := "👤 Nome: João\n📅 Data: a combinar\n⏰ Horário: 15:00\nEstá correto?"
	eval := NewDetector(0).Evaluate([]Message{
		msg(RoleCustomer, "quero um horário às 15h"),
		msg(RoleAssistant, summary),
		msg(RoleCustomer, "isso"),
	})
	if eval.State != StateConfirmed {
		t.Fatalf("expected confirmed, got %s", eval.State)
	}
	if eval.HasDateReference {
		t.Fatal("expected no date reference")
	}
}

func TestIsAffirmative(t *testing.T) {
	tests := map[string]bool{
		"sim":                      true,
		"Sim!":                     true,
		"SIM, CONFIRMO":            true,
		"s":                        true,
		"ok":                       true,
		"Está correto":             true,
		"yes, confirm":             true,
		"That's correct.":          true,
		"sim, pode marcar 👍":       true,
		"ok vou ver":               false,
		"não":                      false,
		"sim, mas quero mudar":     false,
		"no":                       false,
		"s é a inicial do meu nome": false,
		"":                         false,
		"simples":                  false,
	}
	for in, want := range tests {
		if got := IsAffirmative(in); got != want {
			t.Errorf("IsAffirmative(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsSummary(t *testing.T) {
	if !IsSummary(mariaSummary) {
		t.Fatal("expected emoji summary to be recognised")
	}
	plain := "Name: John\nDate: Friday 21/03\nTime: 10:00\nIs this correct? Reply YES to confirm."
	if !IsSummary(plain) {
		t.Fatal("expected english plain-label summary to be recognised")
	}
	if IsSummary("📅 Data: 20/03\n⏰ Horário: 14:30") {
		t.Fatal("summary without name and confirmation request should not match")
	}
}

func TestTranscript(t *testing.T) {
	got := Transcript([]Message{msg(RoleCustomer, " oi "), msg(RoleAssistant, "Olá!"), msg(RoleCustomer, "  ")})
	if got != "Cliente: oi\nAssistente: Olá!\n" {
		t.Fatalf("unexpected transcript %q", got)
	}
}
