package store

import (
	"context"
	"errors"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/dates"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate is returned when an insert hits an existing id.
var ErrDuplicate = errors.New("store: duplicate")

// Tenant is a company using the assistant. Instance is the messaging gateway
// instance its WhatsApp number is connected through.
type Tenant struct {
	ID       string
	Name     string
	Instance string
}

// Repository is the persistence collaborator shared by the booking flow.
// Every query is scoped to a tenant.
type Repository interface {
	TenantByInstance(ctx context.Context, instance string) (Tenant, error)
	ProfessionalsByTenant(ctx context.Context, tenantID string) ([]scheduling.Professional, error)
	ServicesByTenant(ctx context.Context, tenantID string) ([]scheduling.Service, error)
	// AppointmentsByTenant returns appointments dated within [from, to].
	AppointmentsByTenant(ctx context.Context, tenantID string, from, to dates.Date) ([]scheduling.Appointment, error)
	ClientsByTenant(ctx context.Context, tenantID string) ([]scheduling.Client, error)
	CreateClient(ctx context.Context, client scheduling.Client) (scheduling.Client, error)
	CreateAppointment(ctx context.Context, appt scheduling.Appointment) (scheduling.Appointment, error)
	UpdateAppointment(ctx context.Context, appt scheduling.Appointment) (scheduling.Appointment, error)
	MessagesByConversation(ctx context.Context, threadID string) ([]conversation.Message, error)
	CreateMessage(ctx context.Context, msg conversation.Message) (conversation.Message, error)
}
