package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/dates"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
	"github.com/wolfman30/booking-assistant/internal/textnorm"
)

// Memory is an in-process Repository for local development and tests.
type Memory struct {
	mu            sync.RWMutex
	tenants       map[string]Tenant
	professionals map[string][]scheduling.Professional
	services      map[string][]scheduling.Service
	clients       map[string][]scheduling.Client
	appointments  map[string]scheduling.Appointment
	messages      map[string][]conversation.Message
	messageIDs    map[string]struct{}
	now           func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		tenants:       make(map[string]Tenant),
		professionals: make(map[string][]scheduling.Professional),
		services:      make(map[string][]scheduling.Service),
		clients:       make(map[string][]scheduling.Client),
		appointments:  make(map[string]scheduling.Appointment),
		messages:      make(map[string][]conversation.Message),
		messageIDs:    make(map[string]struct{}),
		now:           time.Now,
	}
}

// SeedTenant registers a tenant with its catalog.
func (m *Memory) SeedTenant(t Tenant, profs []scheduling.Professional, svcs []scheduling.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = t
	for i := range profs {
		profs[i].TenantID = t.ID
	}
	for i := range svcs {
		svcs[i].TenantID = t.ID
	}
	m.professionals[t.ID] = append(m.professionals[t.ID], profs...)
	m.services[t.ID] = append(m.services[t.ID], svcs...)
}

func (m *Memory) TenantByInstance(_ context.Context, instance string) (Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tenants {
		if t.Instance == instance {
			return t, nil
		}
	}
	return Tenant{}, ErrNotFound
}

func (m *Memory) ProfessionalsByTenant(_ context.Context, tenantID string) ([]scheduling.Professional, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]scheduling.Professional(nil), m.professionals[tenantID]...), nil
}

func (m *Memory) ServicesByTenant(_ context.Context, tenantID string) ([]scheduling.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]scheduling.Service(nil), m.services[tenantID]...), nil
}

func (m *Memory) AppointmentsByTenant(_ context.Context, tenantID string, from, to dates.Date) ([]scheduling.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []scheduling.Appointment
	for _, a := range m.appointments {
		if a.TenantID != tenantID || a.Date.Before(from) || a.Date.After(to) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (m *Memory) ClientsByTenant(_ context.Context, tenantID string) ([]scheduling.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]scheduling.Client(nil), m.clients[tenantID]...), nil
}

func (m *Memory) CreateClient(_ context.Context, c scheduling.Client) (scheduling.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	digits := textnorm.Digits(c.Phone)
	for _, existing := range m.clients[c.TenantID] {
		if digits != "" && textnorm.Digits(existing.Phone) == digits {
			return existing, nil
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now().UTC()
	}
	m.clients[c.TenantID] = append(m.clients[c.TenantID], c)
	return c, nil
}

func (m *Memory) CreateAppointment(_ context.Context, a scheduling.Appointment) (scheduling.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, exists := m.appointments[a.ID]; exists {
		return scheduling.Appointment{}, ErrDuplicate
	}
	now := m.now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = scheduling.StatusPending
	}
	m.appointments[a.ID] = a
	return a, nil
}

func (m *Memory) UpdateAppointment(_ context.Context, a scheduling.Appointment) (scheduling.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.appointments[a.ID]
	if !ok || existing.TenantID != a.TenantID {
		return scheduling.Appointment{}, ErrNotFound
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = m.now().UTC()
	m.appointments[a.ID] = a
	return a, nil
}

func (m *Memory) MessagesByConversation(_ context.Context, threadID string) ([]conversation.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]conversation.Message(nil), m.messages[threadID]...), nil
}

func (m *Memory) CreateMessage(_ context.Context, msg conversation.Message) (conversation.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, seen := m.messageIDs[msg.ID]; seen {
		return msg, ErrDuplicate
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now().UTC()
	}
	if msg.Kind == "" {
		msg.Kind = conversation.KindText
	}
	m.messageIDs[msg.ID] = struct{}{}
	m.messages[msg.ThreadID] = append(m.messages[msg.ThreadID], msg)
	return msg, nil
}
