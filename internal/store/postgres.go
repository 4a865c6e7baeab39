package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/dates"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
	"github.com/wolfman30/booking-assistant/internal/textnorm"
)

var tracer = otel.Tracer("booking.internal.store")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Repository on a pgx pool.
type Postgres struct {
	db  querier
	now func() time.Time
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return &Postgres{db: pool, now: time.Now}
}

func newPostgresWithQuerier(q querier) *Postgres {
	if q == nil {
		panic("store: querier required")
	}
	return &Postgres{db: q, now: time.Now}
}

func startSpan(ctx context.Context, name, tenantID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("tenant.id", tenantID)))
}

func (p *Postgres) TenantByInstance(ctx context.Context, instance string) (Tenant, error) {
	ctx, span := startSpan(ctx, "store.tenant_by_instance", "")
	defer span.End()

	var t Tenant
	err := p.db.QueryRow(ctx,
		`SELECT id::text, name, instance_name FROM tenants WHERE instance_name = $1`,
		instance,
	).Scan(&t.ID, &t.Name, &t.Instance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		span.RecordError(err)
		return Tenant{}, fmt.Errorf("store: tenant by instance: %w", err)
	}
	return t, nil
}

func (p *Postgres) ProfessionalsByTenant(ctx context.Context, tenantID string) ([]scheduling.Professional, error) {
	ctx, span := startSpan(ctx, "store.professionals", tenantID)
	defer span.End()

	rows, err := p.db.Query(ctx, `
		SELECT id::text, tenant_id::text, name, active, work_days, work_start_minute, work_end_minute
		FROM professionals
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store: list professionals: %w", err)
	}
	defer rows.Close()

	var out []scheduling.Professional
	for rows.Next() {
		var (
			prof       scheduling.Professional
			workDays   []int32
			start, end int32
		)
		if err := rows.Scan(&prof.ID, &prof.TenantID, &prof.Name, &prof.Active, &workDays, &start, &end); err != nil {
			return nil, fmt.Errorf("store: scan professional: %w", err)
		}
		for _, d := range workDays {
			prof.WorkDays = append(prof.WorkDays, time.Weekday(d))
		}
		prof.WorkStart = scheduling.Clock(start)
		prof.WorkEnd = scheduling.Clock(end)
		out = append(out, prof)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate professionals: %w", err)
	}
	return out, nil
}

func (p *Postgres) ServicesByTenant(ctx context.Context, tenantID string) ([]scheduling.Service, error) {
	ctx, span := startSpan(ctx, "store.services", tenantID)
	defer span.End()

	rows, err := p.db.Query(ctx, `
		SELECT id::text, tenant_id::text, name, duration_minutes, price_cents
		FROM services
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store: list services: %w", err)
	}
	defer rows.Close()

	var out []scheduling.Service
	for rows.Next() {
		var (
			svc      scheduling.Service
			duration int32
		)
		if err := rows.Scan(&svc.ID, &svc.TenantID, &svc.Name, &duration, &svc.PriceCents); err != nil {
			return nil, fmt.Errorf("store: scan service: %w", err)
		}
		svc.DurationMinutes = int(duration)
		out = append(out, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate services: %w", err)
	}
	return out, nil
}

const appointmentColumns = `id::text, tenant_id::text, professional_id::text, service_id::text, client_name, client_phone,
	appointment_date, appointment_time, duration_minutes, status, notes, created_at, updated_at`

func (p *Postgres) AppointmentsByTenant(ctx context.Context, tenantID string, from, to dates.Date) ([]scheduling.Appointment, error) {
	ctx, span := startSpan(ctx, "store.appointments", tenantID)
	defer span.End()

	rows, err := p.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND appointment_date BETWEEN $2 AND $3
		ORDER BY appointment_date, appointment_time
	`, tenantID, toPGDate(from), toPGDate(to))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store: list appointments: %w", err)
	}
	defer rows.Close()

	var out []scheduling.Appointment
	for rows.Next() {
		var (
			appt     scheduling.Appointment
			day      pgtype.Date
			clock    pgtype.Time
			duration int32
			status   string
		)
		if err := rows.Scan(&appt.ID, &appt.TenantID, &appt.ProfessionalID, &appt.ServiceID, &appt.ClientName,
			&appt.ClientPhone, &day, &clock, &duration, &status, &appt.Notes, &appt.CreatedAt, &appt.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan appointment: %w", err)
		}
		appt.Date = fromPGDate(day)
		appt.Time = fromPGTime(clock)
		appt.DurationMinutes = int(duration)
		appt.Status = scheduling.AppointmentStatus(status)
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate appointments: %w", err)
	}
	return out, nil
}

func (p *Postgres) ClientsByTenant(ctx context.Context, tenantID string) ([]scheduling.Client, error) {
	ctx, span := startSpan(ctx, "store.clients", tenantID)
	defer span.End()

	rows, err := p.db.Query(ctx, `
		SELECT id::text, tenant_id::text, name, phone, email, notes, created_at
		FROM clients
		WHERE tenant_id = $1
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store: list clients: %w", err)
	}
	defer rows.Close()

	var out []scheduling.Client
	for rows.Next() {
		var c scheduling.Client
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.Email, &c.Notes, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan client: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate clients: %w", err)
	}
	return out, nil
}

// CreateClient inserts a client. A concurrent insert for the same phone
// digits resolves to the existing row.
func (p *Postgres) CreateClient(ctx context.Context, c scheduling.Client) (scheduling.Client, error) {
	ctx, span := startSpan(ctx, "store.create_client", c.TenantID)
	defer span.End()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = p.now().UTC()
	}
	err := p.db.QueryRow(ctx, `
		INSERT INTO clients (id, tenant_id, name, phone, phone_digits, email, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, phone_digits) DO UPDATE SET phone = clients.phone
		RETURNING id::text, name, created_at
	`, c.ID, c.TenantID, c.Name, c.Phone, textnorm.Digits(c.Phone), c.Email, c.Notes, c.CreatedAt).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return scheduling.Client{}, fmt.Errorf("store: create client: %w", err)
	}
	return c, nil
}

func (p *Postgres) CreateAppointment(ctx context.Context, a scheduling.Appointment) (scheduling.Appointment, error) {
	ctx, span := startSpan(ctx, "store.create_appointment", a.TenantID)
	defer span.End()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := p.now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = scheduling.StatusPending
	}

	_, err := p.db.Exec(ctx, `
		INSERT INTO appointments (
			id, tenant_id, professional_id, service_id, client_name, client_phone,
			appointment_date, appointment_time, duration_minutes, status, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, a.ID, a.TenantID, a.ProfessionalID, a.ServiceID, a.ClientName, a.ClientPhone,
		toPGDate(a.Date), toPGTime(a.Time), a.DurationMinutes, string(a.Status), a.Notes, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return scheduling.Appointment{}, fmt.Errorf("store: create appointment: %w", err)
	}
	return a, nil
}

func (p *Postgres) UpdateAppointment(ctx context.Context, a scheduling.Appointment) (scheduling.Appointment, error) {
	ctx, span := startSpan(ctx, "store.update_appointment", a.TenantID)
	defer span.End()

	a.UpdatedAt = p.now().UTC()
	tag, err := p.db.Exec(ctx, `
		UPDATE appointments SET
			professional_id = $3, service_id = $4, client_name = $5, client_phone = $6,
			appointment_date = $7, appointment_time = $8, duration_minutes = $9,
			status = $10, notes = $11, updated_at = $12
		WHERE id = $1 AND tenant_id = $2
	`, a.ID, a.TenantID, a.ProfessionalID, a.ServiceID, a.ClientName, a.ClientPhone,
		toPGDate(a.Date), toPGTime(a.Time), a.DurationMinutes, string(a.Status), a.Notes, a.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return scheduling.Appointment{}, fmt.Errorf("store: update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scheduling.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (p *Postgres) MessagesByConversation(ctx context.Context, threadID string) ([]conversation.Message, error) {
	ctx, span := startSpan(ctx, "store.messages", "")
	defer span.End()

	rows, err := p.db.Query(ctx, `
		SELECT id, thread_id::text, role, content, kind, created_at
		FROM conversation_messages
		WHERE thread_id = $1
		ORDER BY created_at, id
	`, threadID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []conversation.Message
	for rows.Next() {
		var (
			m          conversation.Message
			role, kind string
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &role, &m.Content, &kind, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		m.Role = conversation.Role(role)
		m.Kind = conversation.Kind(kind)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate messages: %w", err)
	}
	return out, nil
}

// CreateMessage appends a message. Ids are the gateway's message ids when
// known, so a redelivered webhook returns ErrDuplicate.
func (p *Postgres) CreateMessage(ctx context.Context, m conversation.Message) (conversation.Message, error) {
	ctx, span := startSpan(ctx, "store.create_message", "")
	defer span.End()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = p.now().UTC()
	}
	if m.Kind == "" {
		m.Kind = conversation.KindText
	}
	tag, err := p.db.Exec(ctx, `
		INSERT INTO conversation_messages (id, thread_id, role, content, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, m.ID, m.ThreadID, string(m.Role), m.Content, string(m.Kind), m.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return conversation.Message{}, fmt.Errorf("store: create message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return m, ErrDuplicate
	}
	return m, nil
}

func toPGDate(d dates.Date) pgtype.Date {
	if d.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

func fromPGDate(d pgtype.Date) dates.Date {
	if !d.Valid {
		return dates.Date{}
	}
	return dates.DateOf(d.Time)
}

func toPGTime(c scheduling.Clock) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * int64(time.Minute/time.Microsecond), Valid: true}
}

func fromPGTime(t pgtype.Time) scheduling.Clock {
	if !t.Valid {
		return 0
	}
	return scheduling.Clock(t.Microseconds / int64(time.Minute/time.Microsecond))
}
