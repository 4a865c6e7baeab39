package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/dates"
	"github.com/wolfman30/booking-assistant/internal/textnorm"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

var tracer = otel.Tracer("booking.internal.extraction")

// SummaryExtractor reads the labeled fields of the assistant's rendered
// summary, falling back to the customer's messages and then the whole
// transcript for anything the summary lacks.
type SummaryExtractor struct {
	resolver *dates.Resolver
	logger   *logging.Logger
}

func NewSummaryExtractor(resolver *dates.Resolver, logger *logging.Logger) *SummaryExtractor {
	if resolver == nil {
		panic("extraction: date resolver required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SummaryExtractor{resolver: resolver, logger: logger}
}

func (e *SummaryExtractor) Extract(ctx context.Context, in Input) (Candidate, error) {
	_, span := tracer.Start(ctx, "extraction.summary")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", in.TenantID))

	summary, ok := in.summary()
	if !ok {
		return Candidate{}, fmt.Errorf("%w: no summary in context", ErrInsufficientData)
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	customer := conversation.CustomerText(in.Messages)
	all := conversation.AllText(in.Messages)
	sources := []string{summary.Content, customer, all}

	profs := activeProfessionals(in.Professionals)
	svcs := serviceEntities(in.Services)
	cand := Candidate{Source: SourceRegex}

	nameRules := Cascade{LabeledField{Labels: nameLabels}, CapitalizedNamePair{Exclude: exclusions(profs, svcs)}}
	if v, ok := firstMatch(nameRules, sources); ok {
		cand.ClientName = cleanName(v)
	}

	profRules := Cascade{LabeledField{Labels: professionalLabels}, KnownEntityScan{Names: entityNames(profs)}}
	if raw, ok := firstMatch(profRules, sources); ok {
		prof, err := resolveEntity("professional", raw, profs, all)
		if err != nil {
			span.RecordError(err)
			return Candidate{}, err
		}
		cand.ProfessionalID, cand.ProfessionalName = prof.ID, prof.Name
	}

	svcRules := Cascade{LabeledField{Labels: serviceLabels}, KnownEntityScan{Names: entityNames(svcs)}}
	if raw, ok := firstMatch(svcRules, sources); ok {
		svc, err := resolveEntity("service", raw, svcs, all)
		if err != nil {
			span.RecordError(err)
			return Candidate{}, err
		}
		cand.ServiceID, cand.ServiceName = svc.ID, svc.Name
	}

	for _, src := range sources {
		text := src
		if v, ok := (LabeledField{Labels: dateLabels}).Apply(src); ok {
			text = v
		}
		if d, ok := lastDate(text, e.resolver, now); ok {
			cand.Date = d
			break
		}
	}

	for _, src := range sources {
		text := src
		if v, ok := (LabeledField{Labels: timeLabels}).Apply(src); ok {
			text = v
		}
		if c, ok := lastTime(text); ok {
			cand.Time, cand.HasTime = c, true
			break
		}
	}

	if v, ok := (LabeledField{Labels: phoneLabels}).Apply(summary.Content); ok {
		cand.ClientPhone = textnorm.Digits(v)
	}

	applyCustomerPriority(&cand, in, e.resolver, now)
	if err := finalize(&cand, in, e.resolver, now); err != nil {
		e.logger.Debug("summary extraction incomplete", "tenant_id", in.TenantID, "error", err)
		return cand, err
	}
	return cand, nil
}

func firstMatch(c Cascade, sources []string) (string, bool) {
	for _, src := range sources {
		if v, _, ok := c.Apply(src); ok {
			return v, true
		}
	}
	return "", false
}

func entityNames(es []entity) []string {
	names := make([]string, len(es))
	for i, e := range es {
		names[i] = e.Name
	}
	return names
}

// exclusions lists folded words that cannot start or end a client name.
func exclusions(profs, svcs []entity) map[string]bool {
	out := map[string]bool{
		"oi": true, "ola": true, "bom": true, "boa": true, "obrigado": true, "obrigada": true,
		"segunda": true, "terca": true, "quarta": true, "quinta": true, "sexta": true, "sabado": true, "domingo": true,
		"hoje": true, "amanha": true, "sim": true, "nao": true, "ok": true, "perfeito": true, "confira": true,
	}
	for _, group := range [][]entity{profs, svcs} {
		for _, e := range group {
			for _, w := range strings.Fields(textnorm.Fold(e.Name)) {
				out[w] = true
			}
		}
	}
	return out
}

// applyCustomerPriority lets what the customer typed win over the
// assistant's restatement. Name and phone may come from any customer
// message; date and time only from messages sent after the summary.
func applyCustomerPriority(c *Candidate, in Input, resolver *dates.Resolver, now time.Time) {
	customer := conversation.CustomerText(in.Messages)
	profs := activeProfessionals(in.Professionals)
	svcs := serviceEntities(in.Services)

	nameRules := Cascade{LabeledField{Labels: nameLabels}, CapitalizedNamePair{Exclude: exclusions(profs, svcs)}}
	if v, _, ok := nameRules.Apply(customer); ok {
		c.ClientName = cleanName(v)
	}
	if phone, ok := lastPhone(customer); ok {
		c.ClientPhone = phone
	}

	after := in.afterSummary()
	if after == "" {
		return
	}
	if d, ok := lastDate(after, resolver, now); ok {
		c.Date = d
	}
	if t, ok := lastTime(after); ok {
		c.Time, c.HasTime = t, true
	}
}

// finalize backfills the phone and enforces that every required field is
// present and the date is not in the past.
func finalize(c *Candidate, in Input, resolver *dates.Resolver, now time.Time) error {
	if c.ClientPhone == "" {
		c.ClientPhone = textnorm.Digits(in.ContactPhone)
	}
	if missing := c.Missing(); len(missing) > 0 {
		return insufficient(missing)
	}
	if c.Date.Before(resolver.Today(now)) {
		return fmt.Errorf("%w: date %s is in the past", ErrInsufficientData, c.Date)
	}
	return nil
}
