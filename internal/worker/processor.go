package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-assistant/internal/booking"
	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/dates"
	"github.com/wolfman30/booking-assistant/internal/extraction"
	"github.com/wolfman30/booking-assistant/internal/messaging"
	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
	"github.com/wolfman30/booking-assistant/internal/store"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

var tracer = otel.Tracer("booking.internal.worker")

// calendarHorizon is how many days of appointments feed extraction and replies.
const calendarHorizon = 14

type extractor interface {
	Extract(ctx context.Context, in extraction.Input) (extraction.Candidate, error)
}

type committer interface {
	Commit(ctx context.Context, req booking.Request) (booking.Result, error)
}

type replier interface {
	Reply(ctx context.Context, in ReplyInput) (string, error)
}

// Sender delivers WhatsApp text messages.
type Sender interface {
	SendText(ctx context.Context, instance, to, body string) error
}

// StateStore persists the detector's last result per conversation.
type StateStore interface {
	Save(ctx context.Context, conversationID string, rec conversation.StateRecord) error
	Load(ctx context.Context, conversationID string) (conversation.StateRecord, bool, error)
}

// Processor runs detector, extraction and commit for a conversation, and
// answers the customer when no booking is ready.
type Processor struct {
	repo      store.Repository
	detector  *conversation.Detector
	extractor extractor
	engine    committer
	sender    Sender
	responder replier
	states    StateStore
	debouncer *Debouncer
	resolver  *dates.Resolver
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

type ProcessorOption func(*Processor)

func WithResponder(r replier) ProcessorOption {
	return func(p *Processor) { p.responder = r }
}

func WithStateStore(s StateStore) ProcessorOption {
	return func(p *Processor) { p.states = s }
}

// WithDebouncer makes HandleInbound delay processing per conversation.
// Without one, HandleInbound processes synchronously.
func WithDebouncer(d *Debouncer) ProcessorOption {
	return func(p *Processor) { p.debouncer = d }
}

func WithMetrics(m *metrics.BookingMetrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

func WithLogger(l *logging.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

func NewProcessor(repo store.Repository, detector *conversation.Detector, ex extractor, engine committer, sender Sender, resolver *dates.Resolver, opts ...ProcessorOption) *Processor {
	if repo == nil {
		panic("worker: repository required")
	}
	if detector == nil {
		panic("worker: detector required")
	}
	if ex == nil {
		panic("worker: extractor required")
	}
	if engine == nil {
		panic("worker: commit engine required")
	}
	if sender == nil {
		panic("worker: sender required")
	}
	if resolver == nil {
		panic("worker: date resolver required")
	}
	p := &Processor{
		repo:      repo,
		detector:  detector,
		extractor: ex,
		engine:    engine,
		sender:    sender,
		resolver:  resolver,
		logger:    logging.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleInbound implements messaging.InboundHandler.
func (p *Processor) HandleInbound(ctx context.Context, in messaging.Inbound) {
	if p.debouncer == nil {
		if err := p.Process(ctx, in); err != nil {
			p.logger.WithConversation(in.TenantID, in.ConversationID).Error("conversation processing failed", "error", err)
		}
		return
	}
	scheduled := p.debouncer.Schedule(in.ConversationID, func(ctx context.Context) {
		if err := p.Process(ctx, in); err != nil {
			p.logger.WithConversation(in.TenantID, in.ConversationID).Error("conversation processing failed", "error", err)
		}
	})
	if !scheduled {
		p.logger.WithConversation(in.TenantID, in.ConversationID).Warn("debouncer closed, dropping inbound message", "message_id", in.MessageID)
	}
}

// Process evaluates the conversation once and acts on the result.
func (p *Processor) Process(ctx context.Context, in messaging.Inbound) error {
	ctx, span := tracer.Start(ctx, "worker.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", in.TenantID),
		attribute.String("conversation.id", in.ConversationID),
	)
	log := p.logger.WithConversation(in.TenantID, in.ConversationID)

	messages, err := p.repo.MessagesByConversation(ctx, in.ConversationID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("worker: load messages: %w", err)
	}

	eval := p.detector.Evaluate(messages)
	p.metrics.ObserveEvaluation(eval.State.String(), eval.Suppressed)
	log.Debug("conversation evaluated", "state", eval.State.String(), "suppressed", eval.Suppressed)

	if eval.Confirmed() && p.alreadyHandled(ctx, in.ConversationID, messages, eval, log) {
		log.Info("confirmation already processed", "message_id", messageID(messages, eval.ConfirmationIndex))
		return nil
	}
	defer p.saveState(ctx, in.ConversationID, messages, eval, log)

	cat, err := p.loadCatalog(ctx, in.TenantID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if !eval.Confirmed() {
		return p.respond(ctx, in, messages, cat, log)
	}
	if !eval.HasDateReference {
		p.metrics.ObserveExtraction("none", "no_date_reference")
		log.Info("confirmation without a date reference, asking again")
		return p.respond(ctx, in, messages, cat, log)
	}

	cand, err := p.extractor.Extract(ctx, extraction.Input{
		TenantID:      in.TenantID,
		ContactPhone:  in.ContactPhone,
		Messages:      messages,
		SummaryIndex:  eval.SummaryIndex,
		Professionals: cat.professionals,
		Services:      cat.services,
		Appointments:  cat.appointments,
		Now:           p.now(),
	})
	if err != nil {
		p.metrics.ObserveExtraction(sourceLabel(cand.Source), extractionResult(err))
		if extraction.IsInsufficient(err) {
			log.Info("confirmation could not be extracted", "error", err)
			return p.respond(ctx, in, messages, cat, log)
		}
		span.RecordError(err)
		return fmt.Errorf("worker: extract: %w", err)
	}
	p.metrics.ObserveExtraction(sourceLabel(cand.Source), "ok")

	res, err := p.engine.Commit(ctx, booking.Request{
		TenantID:       in.TenantID,
		ConversationID: in.ConversationID,
		ContactPhone:   in.ContactPhone,
		Candidate:      cand,
	})
	if res.Outcome != "" {
		p.metrics.ObserveCommit(string(res.Outcome))
	}
	switch {
	case errors.Is(err, booking.ErrScheduleConflict):
		return p.send(ctx, in, booking.ConfirmationText(res), log)
	case errors.Is(err, booking.ErrInsufficientData), errors.Is(err, booking.ErrResolutionFailure):
		log.Info("booking request incomplete", "error", err)
		return p.respond(ctx, in, messages, cat, log)
	case err != nil:
		span.RecordError(err)
		return fmt.Errorf("worker: commit: %w", err)
	}

	if res.Outcome == booking.OutcomeDuplicate {
		log.Info("booking already committed for this confirmation", "appointment_id", res.Appointment.ID)
		return nil
	}
	if text := booking.ConfirmationText(res); text != "" {
		return p.send(ctx, in, text, log)
	}
	return nil
}

type catalog struct {
	tenant        store.Tenant
	professionals []scheduling.Professional
	services      []scheduling.Service
	appointments  []scheduling.Appointment
}

func (p *Processor) loadCatalog(ctx context.Context, tenantID string) (catalog, error) {
	var cat catalog
	profs, err := p.repo.ProfessionalsByTenant(ctx, tenantID)
	if err != nil {
		return cat, fmt.Errorf("worker: load professionals: %w", err)
	}
	svcs, err := p.repo.ServicesByTenant(ctx, tenantID)
	if err != nil {
		return cat, fmt.Errorf("worker: load services: %w", err)
	}
	today := p.resolver.Today(p.now())
	appts, err := p.repo.AppointmentsByTenant(ctx, tenantID, today, today.AddDays(calendarHorizon))
	if err != nil {
		return cat, fmt.Errorf("worker: load appointments: %w", err)
	}
	cat.professionals, cat.services, cat.appointments = profs, svcs, appts
	return cat, nil
}

// respond asks the model for the next assistant message and sends it.
func (p *Processor) respond(ctx context.Context, in messaging.Inbound, messages []conversation.Message, cat catalog, log *logging.Logger) error {
	if p.responder == nil {
		return nil
	}
	if cat.tenant.ID == "" && in.Instance != "" {
		if tenant, err := p.repo.TenantByInstance(ctx, in.Instance); err == nil {
			cat.tenant = tenant
		}
	}
	text, err := p.responder.Reply(ctx, ReplyInput{
		TenantName:    cat.tenant.Name,
		Messages:      messages,
		Professionals: cat.professionals,
		Services:      cat.services,
		Appointments:  cat.appointments,
		Now:           p.now(),
	})
	if err != nil {
		log.Warn("assistant reply failed", "error", err)
		return nil
	}
	if text == "" {
		return nil
	}
	return p.send(ctx, in, text, log)
}

// send delivers text and records it as an assistant message so the next
// evaluation sees it. Delivery failures are logged, not returned.
func (p *Processor) send(ctx context.Context, in messaging.Inbound, text string, log *logging.Logger) error {
	if err := p.sender.SendText(ctx, in.Instance, in.ContactPhone, text); err != nil {
		p.metrics.ObserveOutbound("failed")
		log.Warn("failed to send reply", "error", err)
		return nil
	}
	p.metrics.ObserveOutbound("sent")
	if _, err := p.repo.CreateMessage(ctx, conversation.Message{
		ID:        uuid.NewString(),
		ThreadID:  in.ConversationID,
		Role:      conversation.RoleAssistant,
		Content:   text,
		Kind:      conversation.KindText,
		CreatedAt: p.now().UTC(),
	}); err != nil {
		return fmt.Errorf("worker: record reply: %w", err)
	}
	return nil
}

// alreadyHandled reports whether the stored state shows this exact
// confirmation message was processed before.
func (p *Processor) alreadyHandled(ctx context.Context, conversationID string, messages []conversation.Message, eval conversation.Evaluation, log *logging.Logger) bool {
	if p.states == nil {
		return false
	}
	rec, ok, err := p.states.Load(ctx, conversationID)
	if err != nil {
		log.Warn("failed to load conversation state", "error", err)
		return false
	}
	id := messageID(messages, eval.ConfirmationIndex)
	return ok && rec.State == conversation.StateConfirmed && id != "" && rec.ConfirmationMessageID == id
}

func (p *Processor) saveState(ctx context.Context, conversationID string, messages []conversation.Message, eval conversation.Evaluation, log *logging.Logger) {
	if p.states == nil {
		return
	}
	rec := conversation.StateRecord{
		State:                 eval.State,
		SummaryMessageID:      messageID(messages, eval.SummaryIndex),
		ConfirmationMessageID: messageID(messages, eval.ConfirmationIndex),
		UpdatedAt:             p.now().UTC(),
	}
	if err := p.states.Save(context.WithoutCancel(ctx), conversationID, rec); err != nil {
		log.Warn("failed to save conversation state", "error", err)
	}
}

func messageID(messages []conversation.Message, idx int) string {
	if idx < 0 || idx >= len(messages) {
		return ""
	}
	return messages[idx].ID
}

func extractionResult(err error) string {
	switch {
	case errors.Is(err, extraction.ErrMalformedModelOutput):
		return "malformed"
	case errors.Is(err, extraction.ErrResolutionFailure):
		return "unresolved"
	case errors.Is(err, extraction.ErrInsufficientData):
		return "insufficient"
	default:
		return "error"
	}
}

func sourceLabel(s extraction.Source) string {
	if s == "" {
		return "none"
	}
	return string(s)
}
