// Package booking turns a confirmed candidate into a persisted appointment.
package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/booking-assistant/internal/extraction"
	"github.com/wolfman30/booking-assistant/internal/notify"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
	"github.com/wolfman30/booking-assistant/internal/store"
	"github.com/wolfman30/booking-assistant/internal/textnorm"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

var tracer = otel.Tracer("booking.internal.booking")

const defaultIdempotencyWindow = 5 * time.Minute

// Outcome is what a commit did.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
)

// ConflictPolicy decides what happens when another client holds an
// overlapping slot.
type ConflictPolicy string

const (
	PolicyReject ConflictPolicy = "reject"
	PolicyAllow  ConflictPolicy = "allow"
)

// ParseConflictPolicy maps a config value to a policy, defaulting to reject.
func ParseConflictPolicy(s string) ConflictPolicy {
	if strings.EqualFold(strings.TrimSpace(s), string(PolicyAllow)) {
		return PolicyAllow
	}
	return PolicyReject
}

// Request is a confirmed booking ready to commit.
type Request struct {
	TenantID       string
	ConversationID string
	ContactPhone   string
	Candidate      extraction.Candidate
}

// Result describes the commit. Appointment is empty for rejected commits and
// for duplicates whose original could not be loaded.
type Result struct {
	Outcome      Outcome
	Appointment  scheduling.Appointment
	Client       scheduling.Client
	Professional scheduling.Professional
	Service      scheduling.Service
	Verdict      scheduling.Verdict
}

// Engine validates, deduplicates, conflict-checks and persists bookings.
type Engine struct {
	repo      store.Repository
	checker   *scheduling.Checker
	publisher notify.Publisher
	claimer   Claimer
	policy    ConflictPolicy
	window    time.Duration
	logger    *logging.Logger
	now       func() time.Time
}

type Option func(*Engine)

func WithPublisher(p notify.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithClaimer(c Claimer) Option {
	return func(e *Engine) { e.claimer = c }
}

func WithConflictPolicy(p ConflictPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithIdempotencyWindow sets how recent a tagged appointment must be to
// count as the same confirmation.
func WithIdempotencyWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(repo store.Repository, opts ...Option) *Engine {
	if repo == nil {
		panic("booking: repository required")
	}
	e := &Engine{
		repo:    repo,
		checker: scheduling.NewChecker(),
		policy:  PolicyReject,
		window:  defaultIdempotencyWindow,
		logger:  logging.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ConversationTag marks appointments created from a conversation so a
// repeated confirmation can be recognised.
func ConversationTag(conversationID string) string {
	return "[conv:" + conversationID + "]"
}

// Commit persists the candidate. Duplicates are a successful no-op. Under the
// reject policy another client's overlap returns ErrScheduleConflict and a slot
// outside the professional's schedule returns ErrOutsideSchedule, both with a
// Rejected result and nothing written.
func (e *Engine) Commit(ctx context.Context, req Request) (Result, error) {
	ctx, span := tracer.Start(ctx, "booking.commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("conversation.id", req.ConversationID),
	)
	log := e.logger.WithConversation(req.TenantID, req.ConversationID)

	cand := req.Candidate
	if cand.ClientPhone == "" {
		cand.ClientPhone = textnorm.Digits(req.ContactPhone)
	}
	if missing := required(cand); len(missing) > 0 {
		return Result{Outcome: OutcomeRejected}, fmt.Errorf("%w: missing %v", ErrInsufficientData, missing)
	}

	prof, svc, err := e.catalog(ctx, req.TenantID, cand)
	if err != nil {
		span.RecordError(err)
		return Result{Outcome: OutcomeRejected}, err
	}
	result := Result{Professional: prof, Service: svc}

	key := idempotencyKey(req, cand)
	claimed, taken := e.claim(ctx, key, log)
	release := func() {
		if claimed {
			if err := e.claimer.Release(context.WithoutCancel(ctx), key); err != nil {
				log.Warn("failed to release idempotency claim", "error", err)
			}
		}
	}

	appts, err := e.repo.AppointmentsByTenant(ctx, req.TenantID, cand.Date, cand.Date)
	if err != nil {
		release()
		span.RecordError(err)
		return Result{}, fmt.Errorf("booking: load appointments: %w", err)
	}
	if dup, ok := e.recent(appts, req.ConversationID, cand); ok || taken {
		result.Outcome = OutcomeDuplicate
		if ok {
			result.Appointment = dup
		}
		log.Info("duplicate confirmation ignored", "appointment_id", result.Appointment.ID)
		return result, nil
	}

	client, err := e.upsertClient(ctx, req, cand)
	if err != nil {
		release()
		span.RecordError(err)
		return Result{}, err
	}
	result.Client = client

	slot := scheduling.Slot{
		Date:            cand.Date,
		Start:           cand.Time,
		DurationMinutes: svc.DurationMinutes,
		ClientPhone:     cand.ClientPhone,
	}
	verdict := e.checker.Check(prof, appts, slot)
	result.Verdict = verdict
	if blocked := blockedBy(verdict, prof, cand); blocked != nil {
		if e.policy != PolicyAllow {
			release()
			result.Outcome = OutcomeRejected
			log.Info("booking rejected",
				"professional_id", prof.ID,
				"date", cand.Date.String(),
				"time", cand.Time.String(),
				"conflicts", len(verdict.Conflicts),
				"off_schedule", verdict.OffSchedule,
			)
			return result, blocked
		}
		log.Warn("booking despite schedule check", "error", blocked)
	}

	var appt scheduling.Appointment
	if verdict.Existing != nil {
		appt, err = e.update(ctx, *verdict.Existing, req, cand, svc)
		result.Outcome = OutcomeUpdated
	} else {
		appt, err = e.create(ctx, req, cand, client, svc)
		result.Outcome = OutcomeCreated
	}
	if err != nil {
		release()
		span.RecordError(err)
		return Result{}, err
	}
	result.Appointment = appt
	log.Info("booking committed",
		"appointment_id", appt.ID,
		"outcome", string(result.Outcome),
		"source", string(cand.Source),
	)

	e.emit(ctx, result, log)
	return result, nil
}

// blockedBy reports why the verdict should stop a commit, or nil.
func blockedBy(v scheduling.Verdict, prof scheduling.Professional, c extraction.Candidate) error {
	switch {
	case v.Outcome == scheduling.OutcomeConflict:
		return fmt.Errorf("%w: %s on %s at %s", ErrScheduleConflict, prof.Name, c.Date, c.Time)
	case v.OffSchedule:
		return fmt.Errorf("%w: %s on %s at %s", ErrOutsideSchedule, prof.Name, c.Date, c.Time)
	}
	return nil
}

func required(c extraction.Candidate) []string {
	var missing []string
	if c.ProfessionalID == "" {
		missing = append(missing, "professional")
	}
	if c.ServiceID == "" {
		missing = append(missing, "service")
	}
	if c.Date.IsZero() {
		missing = append(missing, "date")
	}
	if !c.HasTime {
		missing = append(missing, "time")
	}
	if textnorm.Digits(c.ClientPhone) == "" {
		missing = append(missing, "client_phone")
	}
	return missing
}

func (e *Engine) catalog(ctx context.Context, tenantID string, c extraction.Candidate) (scheduling.Professional, scheduling.Service, error) {
	profs, err := e.repo.ProfessionalsByTenant(ctx, tenantID)
	if err != nil {
		return scheduling.Professional{}, scheduling.Service{}, fmt.Errorf("booking: load professionals: %w", err)
	}
	svcs, err := e.repo.ServicesByTenant(ctx, tenantID)
	if err != nil {
		return scheduling.Professional{}, scheduling.Service{}, fmt.Errorf("booking: load services: %w", err)
	}

	var prof *scheduling.Professional
	for i := range profs {
		if profs[i].ID == c.ProfessionalID && profs[i].Active {
			prof = &profs[i]
			break
		}
	}
	if prof == nil {
		return scheduling.Professional{}, scheduling.Service{}, fmt.Errorf("%w: professional %s", ErrResolutionFailure, c.ProfessionalID)
	}
	for _, s := range svcs {
		if s.ID == c.ServiceID {
			return *prof, s, nil
		}
	}
	return scheduling.Professional{}, scheduling.Service{}, fmt.Errorf("%w: service %s", ErrResolutionFailure, c.ServiceID)
}

func idempotencyKey(req Request, c extraction.Candidate) string {
	return strings.Join([]string{req.TenantID, req.ConversationID, c.ProfessionalID, c.Date.String(), c.Time.String()}, ":")
}

// claim reports whether this commit holds the key and whether another
// commit already does. Claim errors are logged and ignored.
func (e *Engine) claim(ctx context.Context, key string, log *logging.Logger) (claimed, taken bool) {
	if e.claimer == nil {
		return false, false
	}
	ok, err := e.claimer.Claim(ctx, key, e.window)
	if err != nil {
		log.Warn("idempotency claim failed", "error", err)
		return false, false
	}
	return ok, !ok
}

// recent finds an appointment this conversation already committed for the
// same slot within the idempotency window.
func (e *Engine) recent(appts []scheduling.Appointment, conversationID string, c extraction.Candidate) (scheduling.Appointment, bool) {
	tag := ConversationTag(conversationID)
	cutoff := e.now().Add(-e.window)
	for _, a := range appts {
		if !strings.Contains(a.Notes, tag) {
			continue
		}
		if a.ProfessionalID != c.ProfessionalID || a.Date != c.Date || a.Time != c.Time {
			continue
		}
		touched := a.UpdatedAt
		if touched.IsZero() || a.CreatedAt.After(touched) {
			touched = a.CreatedAt
		}
		if !touched.Before(cutoff) {
			return a, true
		}
	}
	return scheduling.Appointment{}, false
}

func (e *Engine) upsertClient(ctx context.Context, req Request, c extraction.Candidate) (scheduling.Client, error) {
	clients, err := e.repo.ClientsByTenant(ctx, req.TenantID)
	if err != nil {
		return scheduling.Client{}, fmt.Errorf("booking: load clients: %w", err)
	}
	for _, existing := range clients {
		if textnorm.SamePhone(existing.Phone, c.ClientPhone) {
			return existing, nil
		}
	}
	name := strings.TrimSpace(c.ClientName)
	if name != "" {
		folded := textnorm.Fold(name)
		for _, existing := range clients {
			if textnorm.Digits(existing.Phone) == "" && textnorm.Fold(existing.Name) == folded {
				return existing, nil
			}
		}
	} else {
		name = PlaceholderName(c.ClientPhone)
	}

	client, err := e.repo.CreateClient(ctx, scheduling.Client{
		TenantID: req.TenantID,
		Name:     name,
		Phone:    textnorm.Digits(c.ClientPhone),
		Notes:    "Cadastrado via WhatsApp " + ConversationTag(req.ConversationID),
	})
	if err != nil {
		return scheduling.Client{}, fmt.Errorf("booking: create client: %w", err)
	}
	return client, nil
}

// PlaceholderName names a client whose name was never given.
func PlaceholderName(phone string) string {
	digits := textnorm.Digits(phone)
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	return "Cliente " + digits
}

func (e *Engine) create(ctx context.Context, req Request, c extraction.Candidate, client scheduling.Client, svc scheduling.Service) (scheduling.Appointment, error) {
	name := strings.TrimSpace(c.ClientName)
	if name == "" {
		name = client.Name
	}
	appt, err := e.repo.CreateAppointment(ctx, scheduling.Appointment{
		TenantID:        req.TenantID,
		ProfessionalID:  c.ProfessionalID,
		ServiceID:       svc.ID,
		ClientName:      name,
		ClientPhone:     textnorm.Digits(c.ClientPhone),
		Date:            c.Date,
		Time:            c.Time,
		DurationMinutes: svc.DurationMinutes,
		Status:          scheduling.StatusConfirmed,
		Notes:           "Agendado via WhatsApp " + ConversationTag(req.ConversationID),
	})
	if err != nil {
		return scheduling.Appointment{}, fmt.Errorf("booking: create appointment: %w", err)
	}
	return appt, nil
}

func (e *Engine) update(ctx context.Context, existing scheduling.Appointment, req Request, c extraction.Candidate, svc scheduling.Service) (scheduling.Appointment, error) {
	existing.ServiceID = svc.ID
	existing.Time = c.Time
	existing.DurationMinutes = svc.DurationMinutes
	existing.Status = scheduling.StatusConfirmed
	if name := strings.TrimSpace(c.ClientName); name != "" {
		existing.ClientName = name
	}
	if tag := ConversationTag(req.ConversationID); !strings.Contains(existing.Notes, tag) {
		existing.Notes = strings.TrimSpace(existing.Notes + " " + tag)
	}
	appt, err := e.repo.UpdateAppointment(ctx, existing)
	if err != nil {
		return scheduling.Appointment{}, fmt.Errorf("booking: update appointment: %w", err)
	}
	return appt, nil
}

// emit publishes the commit. Failures are logged, never returned.
func (e *Engine) emit(ctx context.Context, r Result, log *logging.Logger) {
	if e.publisher == nil {
		return
	}
	typ := notify.EventBookingCreated
	if r.Outcome == OutcomeUpdated {
		typ = notify.EventBookingUpdated
	}
	ev := notify.Event{
		Type:             typ,
		TenantID:         r.Appointment.TenantID,
		AppointmentID:    r.Appointment.ID,
		ClientName:       r.Appointment.ClientName,
		ServiceName:      r.Service.Name,
		ProfessionalName: r.Professional.Name,
		Date:             r.Appointment.Date.String(),
		Time:             r.Appointment.Time.String(),
		OccurredAt:       e.now().UTC(),
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		log.Warn("failed to publish booking event", "appointment_id", r.Appointment.ID, "error", err)
	}
}
