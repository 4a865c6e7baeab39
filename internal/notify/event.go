// Package notify fans booking events out to dashboards and other services.
package notify

import (
	"context"
	"errors"
	"time"
)

// EventType names what happened to a booking.
type EventType string

const (
	EventBookingCreated EventType = "booking.created"
	EventBookingUpdated EventType = "booking.updated"
)

// Event is the payload pushed to subscribers after a commit.
type Event struct {
	Type             EventType `json:"type"`
	TenantID         string    `json:"tenantId"`
	AppointmentID    string    `json:"appointmentId"`
	ClientName       string    `json:"clientName"`
	ServiceName      string    `json:"serviceName"`
	ProfessionalName string    `json:"professionalName"`
	Date             string    `json:"date"`
	Time             string    `json:"time"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// Publisher delivers events. Implementations must not block on slow
// consumers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
