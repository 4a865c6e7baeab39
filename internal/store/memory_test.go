package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/dates"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
)

func TestMemoryClientsAreUniqueByPhoneDigits(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	first, err := m.CreateClient(ctx, scheduling.Client{TenantID: "t1", Name: "Maria", Phone: "+55 (11) 98888-7777"})
	require.NoError(t, err)
	second, err := m.CreateClient(ctx, scheduling.Client{TenantID: "t1", Name: "Maria S.", Phone: "5511988887777"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	clients, _ := m.ClientsByTenant(ctx, "t1")
	assert.Len(t, clients, 1)
	other, _ := m.ClientsByTenant(ctx, "t2")
	assert.Empty(t, other)
}

func TestMemoryAppointmentsFilteredByRange(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := dates.New(2025, time.March, 20)
	for i, day := range []dates.Date{base.AddDays(2), base, base.AddDays(10)} {
		_, err := m.CreateAppointment(ctx, scheduling.Appointment{TenantID: "t1", Date: day, Time: scheduling.NewClock(9+i, 0), DurationMinutes: 30})
		require.NoError(t, err)
	}
	appts, err := m.AppointmentsByTenant(ctx, "t1", base, base.AddDays(7))
	require.NoError(t, err)
	require.Len(t, appts, 2)
	assert.Equal(t, base, appts[0].Date)
	assert.Equal(t, scheduling.StatusPending, appts[0].Status)

	_, err = m.UpdateAppointment(ctx, scheduling.Appointment{ID: "nope", TenantID: "t1"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryMessagesDeduplicateByID(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	msg := conversation.Message{ID: "wamid-1", ThreadID: "th", Role: conversation.RoleCustomer, Content: "oi"}
	_, err := m.CreateMessage(ctx, msg)
	require.NoError(t, err)
	_, err = m.CreateMessage(ctx, msg)
	assert.ErrorIs(t, err, ErrDuplicate)

	msgs, _ := m.MessagesByConversation(ctx, "th")
	assert.Len(t, msgs, 1)
}

func TestMemoryTenantByInstance(t *testing.T) {
	m := NewMemory()
	m.SeedTenant(Tenant{ID: "t1", Name: "Bella", Instance: "bella"}, []scheduling.Professional{{ID: "p1", Name: "Ana"}}, nil)
	tenant, err := m.TenantByInstance(context.Background(), "bella")
	require.NoError(t, err)
	assert.Equal(t, "t1", tenant.ID)
	profs, _ := m.ProfessionalsByTenant(context.Background(), "t1")
	assert.Equal(t, "t1", profs[0].TenantID)

	_, err = m.TenantByInstance(context.Background(), "other")
	assert.ErrorIs(t, err, ErrNotFound)
}
