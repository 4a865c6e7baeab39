package extraction

import (
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/dates"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
)

var (
	// ErrInsufficientData means a required field could not be found.
	ErrInsufficientData = errors.New("extraction: insufficient data")
	// ErrResolutionFailure means a professional or service name matched no
	// catalog entry.
	ErrResolutionFailure = errors.New("extraction: entity resolution failed")
	// ErrMalformedModelOutput means the model answered with something other
	// than the JSON contract. It is a kind of insufficient data.
	ErrMalformedModelOutput = fmt.Errorf("extraction: malformed model output: %w", ErrInsufficientData)
)

// Source records which strategy produced a candidate.
type Source string

const (
	SourceRegex Source = "regex"
	SourceModel Source = "model"
)

// Candidate is a booking read out of a conversation, not yet validated
// against the calendar.
type Candidate struct {
	ProfessionalID   string
	ProfessionalName string
	ServiceID        string
	ServiceName      string
	ClientName       string
	ClientPhone      string
	Date             dates.Date
	Time             scheduling.Clock
	HasTime          bool
	Source           Source
}

// Missing lists the required fields that are still empty. Phone is not
// required here; it is backfilled from the contact.
func (c Candidate) Missing() []string {
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
	if c.ClientName == "" {
		missing = append(missing, "client_name")
	}
	return missing
}

// Input is everything an extraction strategy may read.
type Input struct {
	TenantID      string
	ContactPhone  string
	Messages      []conversation.Message
	SummaryIndex  int
	Professionals []scheduling.Professional
	Services      []scheduling.Service
	Appointments  []scheduling.Appointment
	Now           time.Time
}

func (in Input) summary() (conversation.Message, bool) {
	if in.SummaryIndex < 0 || in.SummaryIndex >= len(in.Messages) {
		return conversation.Message{}, false
	}
	return in.Messages[in.SummaryIndex], true
}

// afterSummary returns the customer's text sent after the summary.
func (in Input) afterSummary() string {
	if in.SummaryIndex < 0 || in.SummaryIndex >= len(in.Messages) {
		return ""
	}
	return conversation.CustomerText(in.Messages[in.SummaryIndex+1:])
}

func insufficient(missing []string) error {
	return fmt.Errorf("%w: missing %v", ErrInsufficientData, missing)
}
