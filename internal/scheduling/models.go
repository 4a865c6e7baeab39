package scheduling

import (
	"time"

	"github.com/wolfman30/booking-assistant/internal/dates"
)

// AppointmentStatus tracks an appointment's lifecycle.
type AppointmentStatus string

const (
	StatusPending         AppointmentStatus = "pending"
	StatusAwaitingPayment AppointmentStatus = "awaiting_payment"
	StatusConfirmed       AppointmentStatus = "confirmed"
	StatusCancelled       AppointmentStatus = "cancelled"
)

// Active reports whether the appointment still occupies the calendar.
func (s AppointmentStatus) Active() bool {
	return s != StatusCancelled
}

// Professional is a tenant-scoped worker with a weekly schedule.
type Professional struct {
	ID        string
	TenantID  string
	Name      string
	Active    bool
	WorkDays  []time.Weekday
	WorkStart Clock
	WorkEnd   Clock
}

// WorksOn reports whether wd is one of the professional's work days.
func (p Professional) WorksOn(wd time.Weekday) bool {
	for _, d := range p.WorkDays {
		if d == wd {
			return true
		}
	}
	return false
}

// Hours returns the professional's daily work window.
func (p Professional) Hours() Interval {
	return Interval{Start: p.WorkStart, End: p.WorkEnd}
}

// Service is a tenant-scoped offering.
type Service struct {
	ID              string
	TenantID        string
	Name            string
	DurationMinutes int
	PriceCents      int64
}

// Client is a tenant-scoped customer, unique by phone digits.
type Client struct {
	ID        string
	TenantID  string
	Name      string
	Phone     string
	Email     string
	Notes     string
	CreatedAt time.Time
}

// Appointment is a committed booking.
type Appointment struct {
	ID              string
	TenantID        string
	ProfessionalID  string
	ServiceID       string
	ClientName      string
	ClientPhone     string
	Date            dates.Date
	Time            Clock
	DurationMinutes int
	Status          AppointmentStatus
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Interval returns the half-open [start, start+duration) interval.
func (a Appointment) Interval() Interval {
	return Span(a.Time, a.DurationMinutes)
}
