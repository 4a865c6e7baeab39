package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/booking-assistant/internal/booking"
	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/dates"
	"github.com/wolfman30/booking-assistant/internal/extraction"
	"github.com/wolfman30/booking-assistant/internal/messaging"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
	"github.com/wolfman30/booking-assistant/internal/store"
)

const mariaSummary = "Perfeito! Confira o resumo:\n👤 Nome: Maria Silva\n💇 Profissional: Ana\n✂️ Serviço: Corte\n📅 Data: quinta-feira, 20/03/2025\n⏰ Horário: 14:30\nEstá correto? Responda SIM para confirmar."

// Tuesday 2025-03-18, 10:00 in São Paulo.
var testNow = time.Date(2025, time.March, 18, 13, 0, 0, 0, time.UTC)

var thursday = dates.New(2025, time.March, 20)

func clock() time.Time { return testNow }

type sentMessage struct {
	instance, to, body string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *recordingSender) SendText(_ context.Context, instance, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{instance, to, body})
	return nil
}

func (s *recordingSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

type stubReplier struct {
	text  string
	calls int
}

func (r *stubReplier) Reply(context.Context, ReplyInput) (string, error) {
	r.calls++
	return r.text, nil
}

type countingCommitter struct {
	next  committer
	mu    sync.Mutex
	calls int
}

func (c *countingCommitter) Commit(ctx context.Context, req booking.Request) (booking.Result, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.next.Commit(ctx, req)
}

type fixture struct {
	mem       *store.Memory
	sender    *recordingSender
	commits   *countingCommitter
	processor *Processor
}

func newFixture(t *testing.T, opts ...ProcessorOption) fixture {
	t.Helper()
	mem := store.NewMemory()
	weekdays := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	mem.SeedTenant(store.Tenant{ID: "t1", Name: "Salão Bela", Instance: "bela"},
		[]scheduling.Professional{
			{ID: "prof-ana", TenantID: "t1", Name: "Ana", Active: true, WorkDays: weekdays, WorkStart: scheduling.NewClock(9, 0), WorkEnd: scheduling.NewClock(18, 0)},
		},
		[]scheduling.Service{
			{ID: "svc-corte", TenantID: "t1", Name: "Corte", DurationMinutes: 30},
		},
	)
	resolver := dates.NewResolver(time.FixedZone("BRT", -3*60*60))
	ex := extraction.NewExtractor(extraction.NewSummaryExtractor(resolver, nil), nil, nil)
	commits := &countingCommitter{next: booking.NewEngine(mem, booking.WithClock(clock))}
	sender := &recordingSender{}
	opts = append([]ProcessorOption{WithClock(clock)}, opts...)
	p := NewProcessor(mem, conversation.NewDetector(3), ex, commits, sender, resolver, opts...)
	return fixture{mem: mem, sender: sender, commits: commits, processor: p}
}

func (f fixture) say(t *testing.T, role conversation.Role, content string) {
	t.Helper()
	_, err := f.mem.CreateMessage(context.Background(), conversation.Message{
		ThreadID: "conv-1",
		Role:     role,
		Content:  content,
	})
	require.NoError(t, err)
}

func (f fixture) mariaConversation(t *testing.T) {
	f.say(t, conversation.RoleCustomer, "Oi, quero marcar um corte com a Ana")
	f.say(t, conversation.RoleAssistant, "Claro! Qual dia e horário você prefere?")
	f.say(t, conversation.RoleCustomer, "Quinta às 14:30. Meu nome é Maria Silva")
	f.say(t, conversation.RoleAssistant, mariaSummary)
	f.say(t, conversation.RoleCustomer, "sim")
}

func inbound() messaging.Inbound {
	return messaging.Inbound{
		TenantID:       "t1",
		Instance:       "bela",
		ConversationID: "conv-1",
		ContactPhone:   "5511988887777",
		MessageID:      "wamid-1",
	}
}

func appointmentsOn(t *testing.T, mem *store.Memory, d dates.Date) []scheduling.Appointment {
	t.Helper()
	appts, err := mem.AppointmentsByTenant(context.Background(), "t1", d, d)
	require.NoError(t, err)
	return appts
}

func TestProcessConfirmationCommitsAndReplies(t *testing.T) {
	f := newFixture(t)
	f.mariaConversation(t)

	require.NoError(t, f.processor.Process(context.Background(), inbound()))

	appts := appointmentsOn(t, f.mem, thursday)
	require.Len(t, appts, 1)
	assert.Equal(t, "prof-ana", appts[0].ProfessionalID)
	assert.Equal(t, scheduling.NewClock(14, 30), appts[0].Time)

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "bela", sent[0].instance)
	assert.Equal(t, "5511988887777", sent[0].to)
	assert.Contains(t, sent[0].body, "confirmado")
	assert.Contains(t, sent[0].body, "20/03/2025 às 14:30")

	msgs, err := f.mem.MessagesByConversation(context.Background(), "conv-1")
	require.NoError(t, err)
	last := msgs[len(msgs)-1]
	assert.Equal(t, conversation.RoleAssistant, last.Role)
	assert.Equal(t, sent[0].body, last.Content)
}

func TestProcessAffirmativeWithoutSummaryDoesNotCommit(t *testing.T) {
	replier := &stubReplier{text: "Qual serviço você gostaria?"}
	f := newFixture(t, WithResponder(replier))
	f.say(t, conversation.RoleCustomer, "Oi")
	f.say(t, conversation.RoleAssistant, "Olá! Quer agendar algo para quinta?")
	f.say(t, conversation.RoleCustomer, "sim")

	require.NoError(t, f.processor.Process(context.Background(), inbound()))

	assert.Empty(t, appointmentsOn(t, f.mem, thursday))
	assert.Equal(t, 1, replier.calls)
	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Qual serviço você gostaria?", sent[0].body)
}

func TestProcessTwiceCommitsOnce(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("gateway down")
	f.mariaConversation(t)

	require.NoError(t, f.processor.Process(context.Background(), inbound()))
	require.NoError(t, f.processor.Process(context.Background(), inbound()))

	assert.Len(t, appointmentsOn(t, f.mem, thursday), 1)
	assert.Equal(t, 2, f.commits.calls)
	assert.Empty(t, f.sender.messages())
}

func TestProcessSkipsConfirmationAlreadyInStateStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	states := conversation.NewRedisStateStore(rdb, time.Hour)

	f := newFixture(t, WithStateStore(states))
	f.sender.err = errors.New("gateway down")
	f.mariaConversation(t)

	require.NoError(t, f.processor.Process(context.Background(), inbound()))
	rec, ok, err := states.Load(context.Background(), "conv-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, conversation.StateConfirmed, rec.State)
	assert.NotEmpty(t, rec.ConfirmationMessageID)

	require.NoError(t, f.processor.Process(context.Background(), inbound()))
	assert.Len(t, appointmentsOn(t, f.mem, thursday), 1)
	assert.Equal(t, 1, f.commits.calls)
}

func TestProcessConfirmationWithoutDateReferenceAsksAgain(t *testing.T) {
	replier := &stubReplier{text: "Para qual dia seria?"}
	f := newFixture(t, WithResponder(replier))
	f.say(t, conversation.RoleCustomer, "Quero um corte com a Ana às 14:30, sou Maria Silva")
	f.say(t, conversation.RoleAssistant, "👤 Nome: Maria Silva\n💇 Profissional: Ana\n✂️ Serviço: Corte\n📅 Data: a definir\n⏰ Horário: 14:30\nEstá correto?")
	f.say(t, conversation.RoleCustomer, "sim")

	require.NoError(t, f.processor.Process(context.Background(), inbound()))

	assert.Equal(t, 1, replier.calls)
	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Para qual dia seria?", sent[0].body)
}

func TestProcessConflictSendsApology(t *testing.T) {
	f := newFixture(t)
	_, err := f.mem.CreateAppointment(context.Background(), scheduling.Appointment{
		TenantID:        "t1",
		ProfessionalID:  "prof-ana",
		ServiceID:       "svc-corte",
		ClientName:      "Joana",
		ClientPhone:     "5511977776666",
		Date:            thursday,
		Time:            scheduling.NewClock(14, 30),
		DurationMinutes: 30,
		Status:          scheduling.StatusConfirmed,
	})
	require.NoError(t, err)
	f.mariaConversation(t)

	require.NoError(t, f.processor.Process(context.Background(), inbound()))

	assert.Len(t, appointmentsOn(t, f.mem, thursday), 1)
	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.True(t, strings.HasPrefix(sent[0].body, "Poxa"), sent[0].body)
}

func TestHandleInboundDebouncesBurst(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, nil)
	f := newFixture(t, WithDebouncer(d))
	f.mariaConversation(t)

	for i := 0; i < 3; i++ {
		f.processor.HandleInbound(context.Background(), inbound())
	}
	require.NoError(t, d.Shutdown(context.Background()))

	assert.Len(t, appointmentsOn(t, f.mem, thursday), 1)
	assert.Len(t, f.sender.messages(), 1)
}
