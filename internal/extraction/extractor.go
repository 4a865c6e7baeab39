package extraction

import (
	"context"
	"errors"

	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// Strategy turns a conversation into a booking candidate.
type Strategy interface {
	Extract(ctx context.Context, in Input) (Candidate, error)
}

// Extractor runs the summary reader when an assistant summary exists and
// falls back to the model when it cannot produce a complete candidate.
type Extractor struct {
	summary Strategy
	model   Strategy
	logger  *logging.Logger
}

// NewExtractor wires the two strategies. model may be nil, in which case
// only summaries can be booked.
func NewExtractor(summary, model Strategy, logger *logging.Logger) *Extractor {
	if summary == nil {
		panic("extraction: summary strategy required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Extractor{summary: summary, model: model, logger: logger}
}

func (e *Extractor) Extract(ctx context.Context, in Input) (Candidate, error) {
	if _, ok := in.summary(); ok {
		cand, err := e.summary.Extract(ctx, in)
		if err == nil {
			return cand, nil
		}
		if !IsInsufficient(err) || e.model == nil {
			return cand, err
		}
		e.logger.Info("summary extraction failed, trying model", "tenant_id", in.TenantID, "error", err)
	}
	if e.model == nil {
		return Candidate{}, errors.Join(ErrInsufficientData, errors.New("extraction: no summary and no model configured"))
	}
	return e.model.Extract(ctx, in)
}
