package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLStore persists conversation threads in PostgreSQL.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	if db == nil {
		panic("conversation: sql db required")
	}
	return &SQLStore{db: db}
}

// ResolveThread returns the contact's most recently active thread, bumping its
// activity time, or opens a new one.
func (s *SQLStore) ResolveThread(ctx context.Context, tenantID, contactPhone string, now time.Time) (Thread, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(contactPhone) == "" {
		return Thread{}, errors.New("conversation: tenant and contact phone required")
	}
	now = now.UTC()

	var th Thread
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, contact_phone, created_at, last_activity_at
		FROM conversation_threads
		WHERE tenant_id = $1 AND contact_phone = $2
		ORDER BY last_activity_at DESC
		LIMIT 1
	`, tenantID, contactPhone).Scan(&th.ID, &th.TenantID, &th.ContactPhone, &th.CreatedAt, &th.LastActivityAt)
	switch {
	case err == nil:
		if _, err := s.db.ExecContext(ctx,
			`UPDATE conversation_threads SET last_activity_at = $1 WHERE id = $2`,
			now, th.ID,
		); err != nil {
			return Thread{}, fmt.Errorf("conversation: touch thread: %w", err)
		}
		th.LastActivityAt = now
		return th, nil
	case !errors.Is(err, sql.ErrNoRows):
		return Thread{}, fmt.Errorf("conversation: find thread: %w", err)
	}

	th = Thread{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		ContactPhone:   contactPhone,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_threads (id, tenant_id, contact_phone, created_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5)
	`, th.ID, th.TenantID, th.ContactPhone, th.CreatedAt, th.LastActivityAt); err != nil {
		return Thread{}, fmt.Errorf("conversation: create thread: %w", err)
	}
	return th, nil
}

// Thread loads a thread by id.
func (s *SQLStore) Thread(ctx context.Context, id string) (Thread, error) {
	var th Thread
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, contact_phone, created_at, last_activity_at
		FROM conversation_threads WHERE id = $1
	`, id).Scan(&th.ID, &th.TenantID, &th.ContactPhone, &th.CreatedAt, &th.LastActivityAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Thread{}, fmt.Errorf("conversation: unknown thread %s", id)
		}
		return Thread{}, fmt.Errorf("conversation: load thread: %w", err)
	}
	return th, nil
}
