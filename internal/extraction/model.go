package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/dates"
	"github.com/wolfman30/booking-assistant/internal/llm"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
	"github.com/wolfman30/booking-assistant/internal/textnorm"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// InsufficientSentinel is what the model answers when the transcript does
// not hold a complete booking.
const InsufficientSentinel = "DADOS_INSUFICIENTES"

const (
	defaultModelTimeout   = 30 * time.Second
	defaultModelMaxTokens = 300
)

// modelOutput is the one-line JSON contract the prompt asks for.
type modelOutput struct {
	ClientName      string `json:"clientName"`
	ClientPhone     string `json:"clientPhone"`
	ProfessionalID  string `json:"professionalId"`
	ServiceID       string `json:"serviceId"`
	AppointmentDate string `json:"appointmentDate"`
	AppointmentTime string `json:"appointmentTime"`
}

// ModelExtractor asks a language model to read the booking out of the
// transcript and then checks every field against the text.
type ModelExtractor struct {
	client      llm.Client
	model       string
	resolver    *dates.Resolver
	timeout     time.Duration
	maxTokens   int32
	temperature float32
	logger      *logging.Logger
}

type ModelOption func(*ModelExtractor)

// WithTimeout bounds each completion call.
func WithTimeout(d time.Duration) ModelOption {
	return func(e *ModelExtractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithMaxTokens(n int32) ModelOption {
	return func(e *ModelExtractor) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

func WithTemperature(t float32) ModelOption {
	return func(e *ModelExtractor) { e.temperature = t }
}

func WithLogger(logger *logging.Logger) ModelOption {
	return func(e *ModelExtractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewModelExtractor(client llm.Client, model string, resolver *dates.Resolver, opts ...ModelOption) *ModelExtractor {
	if client == nil {
		panic("extraction: llm client required")
	}
	if resolver == nil {
		panic("extraction: date resolver required")
	}
	e := &ModelExtractor{
		client:    client,
		model:     model,
		resolver:  resolver,
		timeout:   defaultModelTimeout,
		maxTokens: defaultModelMaxTokens,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *ModelExtractor) Extract(ctx context.Context, in Input) (Candidate, error) {
	ctx, span := tracer.Start(ctx, "extraction.model")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", in.TenantID))

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	transcript := conversation.Transcript(in.Messages)
	if strings.TrimSpace(transcript) == "" {
		return Candidate{}, fmt.Errorf("%w: empty transcript", ErrInsufficientData)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	resp, err := e.client.Complete(callCtx, llm.Request{
		Model:       e.model,
		System:      []string{BuildPrompt(in, e.resolver, now)},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: transcript}},
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
	})
	if err != nil {
		span.RecordError(err)
		return Candidate{}, fmt.Errorf("extraction: model completion: %w", err)
	}

	cleaned := SanitizeModelOutput(resp.Text)
	if strings.Contains(cleaned, InsufficientSentinel) {
		return Candidate{}, fmt.Errorf("%w: model reported missing fields", ErrInsufficientData)
	}

	var out modelOutput
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		e.logger.Warn("model returned malformed extraction",
			"tenant_id", in.TenantID,
			"raw", resp.Text,
			"cleaned", cleaned,
			"error", err,
		)
		return Candidate{}, fmt.Errorf("%w: %v", ErrMalformedModelOutput, err)
	}

	cand, err := e.candidateFrom(out, in, now)
	if err != nil {
		span.RecordError(err)
		return cand, err
	}
	if err := e.crossCheck(cand, in, now); err != nil {
		e.logger.Warn("model extraction not supported by transcript",
			"tenant_id", in.TenantID,
			"cleaned", cleaned,
			"error", err,
		)
		return Candidate{}, err
	}

	applyCustomerPriority(&cand, in, e.resolver, now)
	if err := finalize(&cand, in, e.resolver, now); err != nil {
		return cand, err
	}
	return cand, nil
}

func (e *ModelExtractor) candidateFrom(out modelOutput, in Input, now time.Time) (Candidate, error) {
	cand := Candidate{
		Source:      SourceModel,
		ClientName:  cleanName(out.ClientName),
		ClientPhone: textnorm.Digits(out.ClientPhone),
	}

	if id := strings.TrimSpace(out.ProfessionalID); id != "" {
		prof, err := entityByID("professional", id, activeProfessionals(in.Professionals))
		if err != nil {
			return Candidate{}, err
		}
		cand.ProfessionalID, cand.ProfessionalName = prof.ID, prof.Name
	}
	if id := strings.TrimSpace(out.ServiceID); id != "" {
		svc, err := entityByID("service", id, serviceEntities(in.Services))
		if err != nil {
			return Candidate{}, err
		}
		cand.ServiceID, cand.ServiceName = svc.ID, svc.Name
	}

	if raw := strings.TrimSpace(out.AppointmentDate); raw != "" {
		d, err := dates.ParseISO(raw)
		if err != nil {
			d, err = dates.ParseDayMonth(raw, e.resolver.Today(now))
		}
		if err != nil {
			return Candidate{}, fmt.Errorf("%w: date %q", ErrMalformedModelOutput, raw)
		}
		cand.Date = d
	}
	if raw := strings.TrimSpace(out.AppointmentTime); raw != "" {
		c, err := scheduling.ParseClock(raw)
		if err != nil {
			return Candidate{}, fmt.Errorf("%w: time %q", ErrMalformedModelOutput, raw)
		}
		cand.Time, cand.HasTime = c, true
	}
	return cand, nil
}

// crossCheck rejects any date, time, professional or service the model
// returned that the conversation never mentions, even when the tenant has a
// single professional or service.
func (e *ModelExtractor) crossCheck(c Candidate, in Input, now time.Time) error {
	all := conversation.AllText(in.Messages)

	if !c.Date.IsZero() {
		supported := false
		for _, d := range findDates(all, e.resolver, now) {
			if d == c.Date {
				supported = true
				break
			}
		}
		if !supported {
			return fmt.Errorf("%w: date %s not mentioned in conversation", ErrInsufficientData, c.Date)
		}
	}

	if c.HasTime {
		supported := false
		for _, t := range findTimes(all) {
			if t == c.Time {
				supported = true
				break
			}
		}
		if !supported {
			return fmt.Errorf("%w: time %s not mentioned in conversation", ErrInsufficientData, c.Time)
		}
	}

	if c.ProfessionalID != "" && !mentioned(entity{ID: c.ProfessionalID, Name: c.ProfessionalName}, all) {
		return fmt.Errorf("%w: professional %s not mentioned in conversation", ErrInsufficientData, c.ProfessionalName)
	}
	if c.ServiceID != "" && !mentioned(entity{ID: c.ServiceID, Name: c.ServiceName}, all) {
		return fmt.Errorf("%w: service %s not mentioned in conversation", ErrInsufficientData, c.ServiceName)
	}
	return nil
}

// SanitizeModelOutput strips code fences, control characters and wrapping
// quotes, then isolates the outermost JSON object if there is one.
func SanitizeModelOutput(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimLeft(s, "`")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`")
	if i := strings.IndexByte(s, '{'); i >= 0 {
		if j := strings.LastIndexByte(s, '}'); j > i {
			s = s[i : j+1]
		}
	}
	return strings.TrimSpace(s)
}

// IsInsufficient reports whether err means the conversation lacks data,
// as opposed to an infrastructure failure.
func IsInsufficient(err error) bool {
	return errors.Is(err, ErrInsufficientData) || errors.Is(err, ErrResolutionFailure)
}
